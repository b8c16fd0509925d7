// Package config loads, normalizes, and validates needledrop configuration
// data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DATABASE_URL and MEILI_MASTER_KEY. The Config type centralizes every knob
// the daemon and CLI need, so temp/audio directories, Redis and Postgres
// connection details, and downloader binaries are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

// Package spotdl wraps the spotdl CLI, the metadata-driven Spotify downloader
// used when freyr cannot serve a Spotify URL.
package spotdl

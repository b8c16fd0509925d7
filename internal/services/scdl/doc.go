// Package scdl wraps the scdl CLI, the dedicated SoundCloud downloader.
package scdl

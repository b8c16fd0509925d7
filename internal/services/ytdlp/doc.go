// Package ytdlp wraps the yt-dlp CLI, the general-purpose media extractor
// used for YouTube URLs.
package ytdlp

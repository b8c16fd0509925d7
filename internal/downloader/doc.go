// Package downloader implements the audio source strategy: given a track's
// candidate source URLs and an optional preferred tool, it attempts the
// acquisition tools in a declarative precedence order until one produces a
// local audio file.
//
// A transient tool failure never aborts the chain; each failure is logged and
// the next candidate runs. Only full exhaustion surfaces an error, tagged so
// the queue can retry the whole strategy.
package downloader

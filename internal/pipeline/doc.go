// Package pipeline contains the two queue handlers that move a track
// from source URL to analyzed, playable audio: download (acquire and
// convert) and analyze (extract features and write back).
package pipeline

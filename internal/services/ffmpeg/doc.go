// Package ffmpeg wraps the ffmpeg CLI for the two conversions the pipeline
// needs: a mono analysis waveform and a compressed playback encode.
package ffmpeg

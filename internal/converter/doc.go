// Package converter turns a raw downloaded track into the artifacts the
// rest of the pipeline consumes: an archived copy of the original, a
// playback encode for streaming, and a mono WAV for feature analysis.
package converter

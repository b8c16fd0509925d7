// Package analysis calls the feature-extraction service and maps its raw
// descriptor payload onto the fields stored per track.
package analysis

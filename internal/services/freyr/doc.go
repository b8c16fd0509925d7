// Package freyr wraps the freyr CLI, the catalog-grab tool used for Apple
// Music and Spotify URLs.
//
// It exposes a Client with an injectable Executor so tests can simulate tool
// output without invoking the real binary. Downloads land in a caller-chosen
// directory and the newest non-empty .m4a file is taken as the result.
package freyr

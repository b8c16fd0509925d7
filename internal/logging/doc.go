// Package logging constructs the slog loggers used across needledrop.
//
// It maps config values to handler choices (console or JSON), exposes typed
// attribute helpers so call sites stay terse, and provides component loggers
// that stamp a consistent component attribute for filtering.
package logging

// Package settings stores per-friend acquisition preferences. Each friend
// gets a row seeded with defaults the first time anything asks for it.
package settings

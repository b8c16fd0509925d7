// Package tracks writes pipeline results back onto catalog track records.
// The database row is the source of truth; the search index receives a
// best-effort copy after every successful write.
package tracks

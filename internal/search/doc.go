// Package search pushes track documents into the Meilisearch index. The
// index is a read-model convenience; callers treat failures here as
// non-fatal and keep the database as the source of truth.
package search

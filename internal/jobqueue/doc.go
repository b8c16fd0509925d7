// Package jobqueue implements a durable, priority-ordered job queue on
// Redis with bounded retries, delayed redelivery, and per-state retention
// trimming. Each queue owns its own key namespace; a fixed-size worker
// pool drains it.
package jobqueue

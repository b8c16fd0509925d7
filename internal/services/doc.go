// Package services defines shared utilities consumed by the pipeline job
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs and queue names for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into terminal versus retryable outcomes for the queue.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform across stages.
package services

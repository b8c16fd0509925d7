// Package daemon assembles and supervises the long-running pieces of the
// pipeline: the two worker pools, the HTTP API, and the shared clients
// they sit on. A file lock enforces one daemon per host.
package daemon

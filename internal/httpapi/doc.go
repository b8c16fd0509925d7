// Package httpapi exposes the pipeline over HTTP: queue ingress and
// introspection, the worker-facing job status surface, per-friend
// settings, and audio file serving for the analysis service.
package httpapi

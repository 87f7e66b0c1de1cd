// Package notifications delivers merge batch outcomes to an ntfy topic.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers can wire it unconditionally. Recorder adapts a Service to the job
// runner's Recorder hook and chains to the history store.
package notifications

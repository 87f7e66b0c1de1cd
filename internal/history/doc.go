// Package history persists merge batches and their per-pair outcomes in a
// SQLite database so past runs can be listed after the daemon restarts.
//
// Store implements job.Recorder. Writes retry briefly on SQLITE_BUSY; the
// database runs in WAL mode so the CLI can read while the daemon writes.
package history

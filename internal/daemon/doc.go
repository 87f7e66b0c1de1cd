// Package daemon coordinates the long-running avmerge process.
//
// It wires configuration, the job runner, optional history storage, the
// directory watcher, and the HTTP API into a single lifecycle with
// flock-based locking to prevent multiple instances. With watch.auto_merge
// enabled it starts a batch whenever new arrivals settle and the runner is
// idle, skipping pairs whose output already exists.
//
// Keep orchestration logic here: matching, command building, and subprocess
// control live in their own packages while the daemon focuses on startup,
// shutdown, and high level coordination.
package daemon

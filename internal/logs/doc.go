// Package logs reads the daemon log file for `avmerge logs`.
//
// Tail returns either the last N lines or everything after a byte offset,
// and in follow mode polls until new lines arrive or the wait expires. The
// returned offset is the cursor for the next call, so IPC clients can page
// through a growing file without holding it open.
package logs

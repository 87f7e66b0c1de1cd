// Package logstream prints and follows the avmerge daemon log from either a
// running daemon (over IPC) or the log file itself.
package logstream

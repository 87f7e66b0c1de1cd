// Command avmerge is the command-line front end for the audio/video merge
// engine.
//
// Foreground commands (merge, match, check, history) work directly against
// the configured directories and history database. The job, logs, and daemon
// command groups talk to a running daemon over its IPC socket; `avmerge
// daemon start` launches one in the background.
package main

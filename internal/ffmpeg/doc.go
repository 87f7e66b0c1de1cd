// Package ffmpeg executes merge invocations as external processes.
//
// Each run starts ffmpeg in its own process group so cancellation can
// terminate the whole tree: the group receives SIGTERM when the context is
// cancelled and SIGKILL if it is still alive after the grace period. Stderr
// is scanned for time= progress lines and the tail is kept for error reports.
package ffmpeg

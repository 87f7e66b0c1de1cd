// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// The merge runner uses it to learn each video's duration so ffmpeg's
// time= progress ticks can be turned into a per-pair percentage, and to
// confirm an input actually carries the stream kind it was classified as.
package ffprobe

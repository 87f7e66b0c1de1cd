// Package command turns a matched pair and an option set into ffmpeg
// argument lists.
//
// Builders are pure: the same pair, options, and output directory always
// produce the same Invocation. Codec substitutions forced by the container
// (WebM accepts only VP9 video and Opus audio here) and by loudness
// normalization are returned as Adjustments so callers can log them.
package command

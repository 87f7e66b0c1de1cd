// Package options defines the immutable OptionSet that describes how an
// audio/video pair is merged, along with its defaults, validation rules, and
// the parser that turns raw key/value payloads (CLI flags, web forms, JSON
// bodies) into a validated set.
//
// Validation happens once, before a batch starts; every later consumer can
// assume the codecs and containers are recognised values.
package options

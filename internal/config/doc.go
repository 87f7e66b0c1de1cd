// Package config loads, normalizes, and validates avmerge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AVMERGE_API_TOKEN. The Config type centralizes every knob the daemon and CLI
// need, allowing capture directories, merge defaults, and the external
// transcoder location to be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

// Package api defines the wire-format types and the merge control service
// shared by the HTTP API and the IPC layer.
//
// # Key Types
//
// MergeStatus: transport view of job.Status. Running, Message and Percent keep
// the keys browser clients already poll for.
//
// Request: a start or find-matches payload. Keys are accepted in camelCase
// (mp3Dir, replaceAudio) and snake_case (audio_dir, replace_audio).
//
// MergeService: resolves a Request against the configured defaults, runs the
// matcher, and drives the job runner.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript consumers. Timestamps use
// RFC3339 with milliseconds. Failures on start and stop are reported in the
// body as success=false with a message so form-based clients need no status
// code handling; HTTP handlers still set a matching status code.
package api

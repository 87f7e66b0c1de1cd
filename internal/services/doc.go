// Package services defines shared utilities consumed by the merge engine and
// its front ends.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, pair indexes, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so configuration,
//     missing-executable, and subprocess failures stay distinguishable with
//     errors.Is after they cross package boundaries.
//
// Use these helpers when wiring new components so operational behaviour (error
// classification, observability) stays uniform across the engine.
package services

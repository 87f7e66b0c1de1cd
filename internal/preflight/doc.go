// Package preflight provides readiness checks for the external executables
// and directories avmerge depends on.
//
// These checks run in two contexts:
//   - The CLI "avmerge check" command prints every result.
//   - The daemon reports the same results through its status endpoint.
//
// Output-directory absence is not a failure: the runner creates it on start.
package preflight

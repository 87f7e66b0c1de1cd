// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// client used by the CLI.
//
// Payloads reuse the HTTP API DTOs from internal/api so both surfaces report
// the same shapes. Batch failures such as "Already running" travel in the
// response body; RPC errors are reserved for transport and internal faults.
package ipc

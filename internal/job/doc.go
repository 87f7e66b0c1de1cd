// Package job runs merge batches one at a time.
//
// Runner owns a single execution slot. Start atomically claims the slot,
// validates options, and launches a background goroutine that merges each
// pair in matcher order through an ffmpeg Executor. Status returns a snapshot
// under the runner's lock and never blocks on the batch. Stop cancels the
// batch context, which terminates the in-flight ffmpeg process group; no
// further pairs are started once the stop is observed.
//
// A failed pair is recorded and the batch moves on. The batch ends Failed
// when every pair failed, Stopped when it was interrupted, and Completed
// otherwise. Terminal states are kept until the next Start.
package job

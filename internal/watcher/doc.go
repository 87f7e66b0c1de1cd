// Package watcher reports audio and video files arriving in the capture
// directories.
//
// Arrivals are buffered until the directories have been quiet for the settle
// period, then Settled fires once. Consumers take the buffer with Drain; files
// that arrive while a consumer is busy stay pending until the next Drain.
package watcher

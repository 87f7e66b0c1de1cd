package daemon

import (
	"context"

	"avmerge/internal/api"
	"avmerge/internal/logging"
	"avmerge/internal/watcher"
)

// runAutoMerge starts a batch each time arrivals settle while the runner is
// idle. Arrivals that settle during a batch are picked up when it ends.
func (d *Daemon) runAutoMerge(ctx context.Context, w *watcher.Watcher) {
	var batchDone <-chan struct{}
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.Settled():
		case <-batchDone:
			batchDone = nil
		}
		if len(w.Pending()) == 0 {
			continue
		}
		if d.runner.Busy() {
			batchDone = d.runner.Done()
			continue
		}
		if d.autoMerge(w) {
			batchDone = d.runner.Done()
		}
	}
}

// autoMerge drains the arrival buffer and starts a batch for every pair that
// has no output yet. It reports whether a batch was started.
func (d *Daemon) autoMerge(w *watcher.Watcher) bool {
	arrivals := w.Drain()
	logger := d.logger.With(logging.String(logging.FieldComponent, "auto-merge"))

	result, err := d.matcher.Match(d.cfg.Paths.AudioDir, d.cfg.Paths.VideoDir)
	if err != nil {
		logging.WarnWithContext(logger, "auto-merge matching failed", "auto_merge_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the capture directories still exist"),
		)
		return false
	}
	opts := d.cfg.MergeOptions()
	pairs := api.PendingPairs(result.Pairs, opts, d.cfg.Paths.OutputDir)
	if len(pairs) == 0 {
		logger.Debug("no new pairs to merge", logging.Int("arrivals", len(arrivals)), logging.Int("matched", len(result.Pairs)))
		return false
	}

	resp, err := d.service.StartPairs(pairs, opts, d.cfg.Paths.OutputDir)
	if err != nil {
		logging.WarnWithContext(logger, "auto-merge start failed", "auto_merge_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run avmerge check to verify ffmpeg"),
		)
		return false
	}
	logger.Info("auto-merge started",
		logging.String(logging.FieldJobID, resp.JobID),
		logging.Int("pair_count", len(pairs)),
		logging.Int("arrivals", len(arrivals)),
		logging.String(logging.FieldEventType, "auto_merge_started"),
	)
	return true
}

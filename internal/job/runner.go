package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"avmerge/internal/command"
	"avmerge/internal/ffmpeg"
	"avmerge/internal/logging"
	"avmerge/internal/matcher"
	"avmerge/internal/options"
	"avmerge/internal/services"
)

// Prober reports media durations for intra-pair progress.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Recorder persists batch outcomes. Errors are logged and never affect the batch.
type Recorder interface {
	RecordBatchStarted(ctx context.Context, status Status) error
	RecordPair(ctx context.Context, jobID string, result PairResult) error
	RecordBatchFinished(ctx context.Context, status Status) error
}

// Config wires a Runner's collaborators. Executor and Binary are required.
type Config struct {
	Executor ffmpeg.Executor
	Binary   string
	Prober   Prober
	Recorder Recorder
	Events   *EventBus
	Logger   *slog.Logger

	// LookPath resolves Binary before each batch; nil uses ffmpeg.LookPath.
	LookPath func(string) (string, error)
}

// Runner executes at most one merge batch at a time.
type Runner struct {
	executor ffmpeg.Executor
	binary   string
	prober   Prober
	recorder Recorder
	events   *EventBus
	logger   *slog.Logger
	lookPath func(string) (string, error)

	mu      sync.Mutex
	status  Status
	cancel  context.CancelFunc
	done    chan struct{}
	sampler *logging.ProgressSampler
}

// NewRunner constructs an idle runner.
func NewRunner(cfg Config) *Runner {
	events := cfg.Events
	if events == nil {
		events = NewEventBus(0)
	}
	lookPath := cfg.LookPath
	if lookPath == nil {
		lookPath = ffmpeg.LookPath
	}
	done := make(chan struct{})
	close(done)
	return &Runner{
		executor: cfg.Executor,
		binary:   cfg.Binary,
		prober:   cfg.Prober,
		recorder: cfg.Recorder,
		events:   events,
		logger:   logging.NewComponentLogger(cfg.Logger, "runner"),
		lookPath: lookPath,
		status:   Status{State: StateIdle, Message: "idle"},
		done:     done,
		sampler:  logging.NewProgressSampler(25),
	}
}

// Events exposes the runner's event log.
func (r *Runner) Events() *EventBus {
	return r.events
}

// Status returns a snapshot of the current state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.clone()
}

// Busy reports whether a batch holds the execution slot.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.State.Active()
}

// Done returns a channel closed when the current batch (if any) finishes.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Wait blocks until the current batch finishes or ctx ends.
func (r *Runner) Wait(ctx context.Context) error {
	select {
	case <-r.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start claims the execution slot and merges pairs in order in the
// background. The batch lives until it finishes, Stop is called, or ctx is
// cancelled; callers serving requests should pass a long-lived context.
// Prechecks and history writes run outside the status lock.
func (r *Runner) Start(ctx context.Context, pairs []matcher.Pair, opts options.OptionSet, outputDir string) (string, error) {
	if err := r.busyError(); err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	opts = opts.Clone()
	checkErr := r.precheck(opts, outputDir)

	r.mu.Lock()
	if r.status.State.Active() {
		err := r.busyErrorLocked()
		r.mu.Unlock()
		return "", err
	}
	if checkErr != nil {
		now := time.Now().UTC()
		r.status = Status{
			JobID:      jobID,
			State:      StateFailed,
			Message:    "batch rejected",
			LastError:  checkErr.Error(),
			Options:    opts.String(),
			OutputDir:  outputDir,
			StartedAt:  now,
			FinishedAt: now,
		}
		r.mu.Unlock()
		r.events.Publish(Event{JobID: jobID, Type: EventBatchFinished, State: StateFailed, PairIndex: -1, Message: "batch rejected", Error: checkErr.Error()})
		logging.ErrorWithContext(r.logger, "batch rejected", "batch_rejected",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(checkErr),
			logging.String(logging.FieldErrorHint, errorHint(checkErr)),
		)
		return "", checkErr
	}
	if !validTransition(r.status.State, StateRunning) {
		from := r.status.State
		r.mu.Unlock()
		return "", fmt.Errorf("runner: invalid transition %s -> %s", from, StateRunning)
	}

	batchCtx, cancel := context.WithCancel(services.WithJobID(ctx, jobID))
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.sampler.Reset()
	r.status = Status{
		JobID:      jobID,
		State:      StateRunning,
		TotalPairs: len(pairs),
		Message:    fmt.Sprintf("merging %d pair(s)", len(pairs)),
		OutputDir:  outputDir,
		Options:    opts.String(),
		StartedAt:  time.Now().UTC(),
	}
	snapshot := r.status.clone()
	r.mu.Unlock()

	r.events.Publish(Event{JobID: jobID, Type: EventBatchStarted, State: StateRunning, PairIndex: -1, Message: snapshot.Message})
	r.logger.Info("batch started",
		logging.String(logging.FieldJobID, jobID),
		logging.Int("pair_count", len(pairs)),
		logging.String("options", snapshot.Options),
		logging.String("output_dir", outputDir),
		logging.String(logging.FieldEventType, "batch_started"),
	)

	batch := append([]matcher.Pair(nil), pairs...)
	go r.run(batchCtx, cancel, done, jobID, snapshot, batch, opts, outputDir)
	return jobID, nil
}

func (r *Runner) busyError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.status.State.Active() {
		return nil
	}
	return r.busyErrorLocked()
}

func (r *Runner) busyErrorLocked() error {
	return services.Wrap(services.ErrAlreadyRunning, "runner", "start", fmt.Sprintf("job %s is %s", r.status.JobID, r.status.State), nil)
}

// Stop requests cancellation of the running batch. It is a no-op when no
// batch is active.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.State != StateRunning {
		return
	}
	r.status.State = StateStopping
	r.status.Message = "stopping"
	jobID := r.status.JobID
	if r.cancel != nil {
		r.cancel()
	}
	r.events.Publish(Event{JobID: jobID, Type: EventStopRequested, State: StateStopping, PairIndex: r.status.CurrentIndex})
	r.logger.Info("stop requested", logging.String(logging.FieldJobID, jobID), logging.String(logging.FieldEventType, "stop_requested"))
}

func (r *Runner) precheck(opts options.OptionSet, outputDir string) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(outputDir) == "" {
		return services.Wrap(services.ErrConfiguration, "runner", "start", "output directory not set", nil)
	}
	if r.executor == nil {
		return services.Wrap(services.ErrConfiguration, "runner", "start", "no executor configured", nil)
	}
	if _, err := r.lookPath(r.binary); err != nil {
		if !errors.Is(err, services.ErrExecutableNotFound) {
			err = services.Wrap(services.ErrExecutableNotFound, "runner", "start", r.binary, err)
		}
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "runner", "start", "create output directory", err)
	}
	return nil
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, jobID string, started Status, pairs []matcher.Pair, opts options.OptionSet, outputDir string) {
	defer close(done)
	defer cancel()

	r.record(ctx, func(ctx context.Context) error { return r.recorder.RecordBatchStarted(ctx, started) })

	interrupted := false
	for i, pair := range pairs {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		result, stopped := r.runPair(services.WithPairIndex(ctx, i), i, len(pairs), pair, opts, outputDir)
		if stopped {
			interrupted = true
			break
		}
		r.finishPair(ctx, jobID, result, len(pairs))
	}
	if ctx.Err() != nil {
		interrupted = true
	}
	r.finishBatch(ctx, jobID, interrupted)
}

func (r *Runner) runPair(ctx context.Context, index, total int, pair matcher.Pair, opts options.OptionSet, outputDir string) (PairResult, bool) {
	logger := logging.WithContext(ctx, r.logger)
	result := PairResult{
		Index:     index,
		Audio:     pair.Audio.Path,
		Video:     pair.Video.Path,
		Method:    pair.Method,
		StartedAt: time.Now().UTC(),
	}

	r.update(func(s *Status) {
		if s.State == StateRunning {
			s.Message = fmt.Sprintf("merging %d/%d: %s", index+1, total, pair.Video.Name)
		}
		s.CurrentPair = pair.Video.Name
		s.PairPercent = 0
	})
	r.events.Publish(Event{JobID: jobIDFrom(ctx), Type: EventPairStarted, State: StateRunning, PairIndex: index, Message: pair.Audio.Name + " + " + pair.Video.Name})
	logger.Info("pair started",
		logging.String("audio", pair.Audio.Path),
		logging.String("video", pair.Video.Path),
		logging.String("match_method", string(pair.Method)),
	)

	primary, err := command.Build(pair, opts, outputDir)
	if err != nil {
		return r.failPair(result, err), false
	}
	result.Output = primary.Output
	result.Adjustments = append(result.Adjustments, primary.Adjustments...)
	r.reportAdjustments(ctx, logger, index, primary)

	duration := r.probe(ctx, logger, pair.Video.Path)
	err = r.executor.Run(ctx, primary, duration, r.progressFunc(logger, index))
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("pair interrupted", logging.String("output", primary.Output))
			removePartial(logger, primary.Output)
			return result, true
		}
		return r.failPair(result, err), false
	}

	result.Success = true
	if opts.Social != nil {
		r.runSocial(ctx, logger, index, pair, primary, opts, outputDir, duration, &result)
	}
	result.FinishedAt = time.Now().UTC()
	return result, false
}

func (r *Runner) runSocial(ctx context.Context, logger *slog.Logger, index int, pair matcher.Pair, primary command.Invocation, opts options.OptionSet, outputDir string, total time.Duration, result *PairResult) {
	social, err := command.BuildSocial(pair, primary, opts, outputDir)
	if err == nil {
		result.Adjustments = append(result.Adjustments, social.Adjustments...)
		r.reportAdjustments(ctx, logger, index, social)
		err = r.executor.Run(ctx, social, total, nil)
	}
	if err != nil {
		if ctx.Err() != nil {
			removePartial(logger, social.Output)
			err = fmt.Errorf("social variant interrupted: %w", ctx.Err())
		}
		result.SocialError = err.Error()
		r.events.Publish(Event{JobID: jobIDFrom(ctx), Type: EventSocialFailed, State: StateRunning, PairIndex: index, Output: social.Output, Error: err.Error()})
		logging.WarnWithContext(logger, "social variant failed", "social_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ffmpeg output for the social profile"),
			logging.String(logging.FieldImpact, "primary merge kept; social file missing"),
		)
		return
	}
	result.SocialOutput = social.Output
}

func (r *Runner) failPair(result PairResult, err error) PairResult {
	result.Success = false
	result.Error = err.Error()
	result.FinishedAt = time.Now().UTC()
	return result
}

func (r *Runner) finishPair(ctx context.Context, jobID string, result PairResult, total int) {
	logger := logging.WithContext(services.WithPairIndex(ctx, result.Index), r.logger)

	r.update(func(s *Status) {
		s.Results = append(s.Results, result)
		if !result.Success {
			s.Failures = append(s.Failures, PairFailure{Index: result.Index, Audio: result.Audio, Video: result.Video, Error: result.Error})
			s.LastError = result.Error
		}
		s.CurrentIndex++
		s.Percent = batchPercent(s.CurrentIndex, total)
		s.PairPercent = 100
	})

	if result.Success {
		r.events.Publish(Event{JobID: jobID, Type: EventPairCompleted, State: StateRunning, PairIndex: result.Index, Output: result.Output})
		logger.Info("pair complete",
			logging.String("output", result.Output),
			logging.Duration("elapsed", result.Duration()),
			logging.String(logging.FieldEventType, "pair_completed"),
		)
	} else {
		r.events.Publish(Event{JobID: jobID, Type: EventPairFailed, State: StateRunning, PairIndex: result.Index, Error: result.Error})
		logging.ErrorWithContext(logger, "pair failed", "pair_failed",
			logging.String("video", result.Video),
			logging.String("error", result.Error),
			logging.String(logging.FieldErrorHint, "inspect the input files; the batch continues with the next pair"),
		)
	}
	r.record(ctx, func(ctx context.Context) error { return r.recorder.RecordPair(ctx, jobID, result) })
}

func (r *Runner) finishBatch(ctx context.Context, jobID string, interrupted bool) {
	var snapshot Status
	r.update(func(s *Status) {
		if s.State == StateStopping {
			interrupted = true
		}
		succeeded := s.Succeeded()
		failed := len(s.Failures)
		var next State
		switch {
		case interrupted:
			next = StateStopped
			s.Message = fmt.Sprintf("stopped after %d of %d pair(s)", s.CurrentIndex, s.TotalPairs)
		case s.TotalPairs > 0 && succeeded == 0:
			next = StateFailed
			s.Message = fmt.Sprintf("all %d pair(s) failed", failed)
		default:
			next = StateCompleted
			s.Percent = 100
			s.Message = fmt.Sprintf("completed: %d succeeded, %d failed", succeeded, failed)
		}
		if validTransition(s.State, next) {
			s.State = next
		}
		s.CurrentPair = ""
		s.FinishedAt = time.Now().UTC()
		snapshot = s.clone()
	})

	r.events.Publish(Event{JobID: jobID, Type: EventBatchFinished, State: snapshot.State, PairIndex: -1, Message: snapshot.Message, Error: snapshot.LastError})
	attrs := []logging.Attr{
		logging.String(logging.FieldJobID, jobID),
		logging.String("state", string(snapshot.State)),
		logging.Int("succeeded", snapshot.Succeeded()),
		logging.Int("failed", len(snapshot.Failures)),
		logging.Int("pair_count", snapshot.TotalPairs),
		logging.String(logging.FieldEventType, "batch_finished"),
	}
	if snapshot.State == StateFailed {
		logging.ErrorWithContext(r.logger, "batch failed", "batch_finished", append(attrs, logging.String(logging.FieldErrorHint, snapshot.LastError))...)
	} else {
		r.logger.Info("batch finished", logging.Args(attrs...)...)
	}
	r.record(ctx, func(ctx context.Context) error { return r.recorder.RecordBatchFinished(ctx, snapshot) })
}

func (r *Runner) reportAdjustments(ctx context.Context, logger *slog.Logger, index int, inv command.Invocation) {
	for _, adj := range inv.Adjustments {
		attrs := logging.DecisionAttrs("codec_adjustment", adj.To, adj.Reason)
		attrs = append(attrs, logging.String("field", adj.Field), logging.String("requested", adj.From), logging.Bool("social", inv.Social))
		logger.Info("codec adjusted", logging.Args(attrs...)...)
		r.events.Publish(Event{JobID: jobIDFrom(ctx), Type: EventAdjustment, State: StateRunning, PairIndex: index, Message: adj.String()})
	}
}

func (r *Runner) probe(ctx context.Context, logger *slog.Logger, path string) time.Duration {
	if r.prober == nil {
		return 0
	}
	d, err := r.prober.Duration(ctx, path)
	if err != nil {
		logger.Debug("duration probe failed", logging.String("path", path), logging.Error(err))
		return 0
	}
	return d
}

func (r *Runner) progressFunc(logger *slog.Logger, index int) ffmpeg.ProgressFunc {
	return func(p ffmpeg.Progress) {
		if p.Percent < 0 {
			return
		}
		r.update(func(s *Status) { s.PairPercent = p.Percent })
		if r.sampler.ShouldLog(index, p.Percent) {
			logger.Debug("pair progress", logging.Float64("pair_percent", p.Percent), logging.Duration("elapsed_media", p.Elapsed))
		}
	}
}

func (r *Runner) update(fn func(*Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.status)
}

func (r *Runner) record(ctx context.Context, fn func(context.Context) error) {
	if r.recorder == nil {
		return
	}
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		logging.WarnWithContext(r.logger, "history write failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check history.path permissions"),
			logging.String(logging.FieldImpact, "batch continues; history incomplete"),
		)
	}
}

func removePartial(logger *slog.Logger, path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debug("remove partial output failed", logging.String("path", filepath.Base(path)), logging.Error(err))
	}
}

func jobIDFrom(ctx context.Context) string {
	id, _ := services.JobIDFromContext(ctx)
	return id
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, services.ErrExecutableNotFound):
		return "install ffmpeg or set ffmpeg.binary"
	case errors.Is(err, services.ErrConfiguration):
		return "fix the merge options and start again"
	default:
		return "check logs for details"
	}
}

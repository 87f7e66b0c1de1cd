package job

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"avmerge/internal/command"
	"avmerge/internal/ffmpeg"
	"avmerge/internal/logging"
	"avmerge/internal/matcher"
	"avmerge/internal/media"
	"avmerge/internal/options"
	"avmerge/internal/services"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls []command.Invocation
	run   func(ctx context.Context, call int, inv command.Invocation, onProgress ffmpeg.ProgressFunc) error
}

func (f *fakeExecutor) Run(ctx context.Context, inv command.Invocation, _ time.Duration, onProgress ffmpeg.ProgressFunc) error {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, inv)
	f.mu.Unlock()
	if f.run == nil {
		return nil
	}
	return f.run(ctx, call, inv, onProgress)
}

func (f *fakeExecutor) Calls() []command.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]command.Invocation(nil), f.calls...)
}

type memoryRecorder struct {
	mu       sync.Mutex
	started  []Status
	pairs    []PairResult
	finished []Status
}

func (m *memoryRecorder) RecordBatchStarted(_ context.Context, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, status)
	return nil
}

func (m *memoryRecorder) RecordPair(_ context.Context, _ string, result PairResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairs = append(m.pairs, result)
	return nil
}

func (m *memoryRecorder) RecordBatchFinished(_ context.Context, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, status)
	return nil
}

func testPairs(n int) []matcher.Pair {
	pairs := make([]matcher.Pair, n)
	for i := range pairs {
		stem := fmt.Sprintf("take%d", i+1)
		pairs[i] = matcher.Pair{
			Audio:  media.MediaFile{Path: "/in/" + stem + ".mp3", Name: stem + ".mp3", Stem: stem},
			Video:  media.MediaFile{Path: "/in/" + stem + ".mkv", Name: stem + ".mkv", Stem: stem},
			Method: matcher.MethodName,
		}
	}
	return pairs
}

func newTestRunner(t *testing.T, exec ffmpeg.Executor, rec Recorder) *Runner {
	t.Helper()
	return NewRunner(Config{
		Executor: exec,
		Binary:   "ffmpeg",
		Recorder: rec,
		Logger:   logging.NewNop(),
		LookPath: func(string) (string, error) { return "/usr/bin/ffmpeg", nil },
	})
}

func waitDone(t *testing.T, r *Runner) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("batch did not finish: %v (status %+v)", err, r.Status())
	}
	return r.Status()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunnerStatusBeforeStart(t *testing.T) {
	r := newTestRunner(t, &fakeExecutor{}, nil)
	status := r.Status()
	if status.State != StateIdle || status.TotalPairs != 0 || status.JobID != "" {
		t.Fatalf("unexpected initial status: %+v", status)
	}
	if r.Busy() {
		t.Fatal("idle runner reports busy")
	}
	select {
	case <-r.Done():
	default:
		t.Fatal("Done should be closed when no batch ran")
	}
}

func TestRunnerCompletesBatchInOrder(t *testing.T) {
	exec := &fakeExecutor{}
	rec := &memoryRecorder{}
	r := newTestRunner(t, exec, rec)
	outDir := t.TempDir()

	jobID, err := r.Start(context.Background(), testPairs(3), options.Default(), outDir)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := waitDone(t, r)

	if status.State != StateCompleted || status.JobID != jobID {
		t.Fatalf("unexpected final status: %+v", status)
	}
	if status.CurrentIndex != 3 || status.TotalPairs != 3 || status.Percent != 100 {
		t.Fatalf("unexpected counters: %+v", status)
	}
	calls := exec.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 invocations, got %d", len(calls))
	}
	for i, inv := range calls {
		want := filepath.Join(outDir, fmt.Sprintf("take%d.mp4", i+1))
		if inv.Output != want {
			t.Fatalf("call %d output = %q, want %q", i, inv.Output, want)
		}
	}
	if status.Succeeded() != 3 || len(status.Failures) != 0 {
		t.Fatalf("unexpected results: %+v", status.Results)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.started) != 1 || len(rec.pairs) != 3 || len(rec.finished) != 1 {
		t.Fatalf("unexpected history calls: %d %d %d", len(rec.started), len(rec.pairs), len(rec.finished))
	}
	if rec.finished[0].State != StateCompleted {
		t.Fatalf("recorded final state %q", rec.finished[0].State)
	}
}

func TestRunnerSecondPairFailureStillCompletes(t *testing.T) {
	exec := &fakeExecutor{run: func(_ context.Context, call int, _ command.Invocation, _ ffmpeg.ProgressFunc) error {
		if call == 1 {
			return &ffmpeg.ExitError{Code: 1, Stderr: "Invalid data found when processing input"}
		}
		return nil
	}}
	r := newTestRunner(t, exec, nil)

	if _, err := r.Start(context.Background(), testPairs(3), options.Default(), t.TempDir()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := waitDone(t, r)

	if status.State != StateCompleted || status.Percent != 100 {
		t.Fatalf("unexpected final status: %+v", status)
	}
	if len(status.Failures) != 1 || status.Failures[0].Index != 1 {
		t.Fatalf("expected exactly one failure at index 1, got %+v", status.Failures)
	}
	if status.LastError == "" {
		t.Fatal("expected last error to be retained")
	}
	if len(exec.Calls()) != 3 {
		t.Fatalf("failure must not block remaining pairs, got %d calls", len(exec.Calls()))
	}
}

func TestRunnerAllPairsFail(t *testing.T) {
	exec := &fakeExecutor{run: func(context.Context, int, command.Invocation, ffmpeg.ProgressFunc) error {
		return &ffmpeg.ExitError{Code: 1}
	}}
	r := newTestRunner(t, exec, nil)

	if _, err := r.Start(context.Background(), testPairs(2), options.Default(), t.TempDir()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := waitDone(t, r)
	if status.State != StateFailed || len(status.Failures) != 2 {
		t.Fatalf("unexpected final status: %+v", status)
	}
}

func TestRunnerRejectsOverlappingStart(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	exec := &fakeExecutor{run: func(ctx context.Context, call int, _ command.Invocation, _ ffmpeg.ProgressFunc) error {
		if call == 0 {
			started <- struct{}{}
			<-release
		}
		return nil
	}}
	r := newTestRunner(t, exec, nil)
	outDir := t.TempDir()

	firstID, err := r.Start(context.Background(), testPairs(2), options.Default(), outDir)
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	<-started

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Start(context.Background(), testPairs(1), options.Default(), outDir)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, services.ErrAlreadyRunning) {
			t.Fatalf("expected ErrAlreadyRunning, got %v", err)
		}
	}
	if status := r.Status(); status.JobID != firstID || status.State != StateRunning {
		t.Fatalf("first batch disturbed: %+v", status)
	}

	close(release)
	status := waitDone(t, r)
	if status.State != StateCompleted || status.JobID != firstID || status.TotalPairs != 2 {
		t.Fatalf("unexpected final status: %+v", status)
	}
	if len(exec.Calls()) != 2 {
		t.Fatalf("rejected starts must not run pairs, got %d calls", len(exec.Calls()))
	}
}

func TestRunnerStopMidBatch(t *testing.T) {
	blocking := make(chan struct{}, 1)
	exec := &fakeExecutor{run: func(ctx context.Context, call int, _ command.Invocation, _ ffmpeg.ProgressFunc) error {
		if call == 1 {
			blocking <- struct{}{}
			<-ctx.Done()
			return fmt.Errorf("ffmpeg interrupted: %w", ctx.Err())
		}
		return nil
	}}
	r := newTestRunner(t, exec, nil)

	if _, err := r.Start(context.Background(), testPairs(3), options.Default(), t.TempDir()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-blocking
	r.Stop()
	if state := r.Status().State; state != StateStopping && state != StateStopped {
		t.Fatalf("expected stopping, got %s", state)
	}
	r.Stop()

	status := waitDone(t, r)
	if status.State != StateStopped {
		t.Fatalf("expected stopped, got %+v", status)
	}
	if status.CurrentIndex != 1 || status.CurrentIndex >= status.TotalPairs {
		t.Fatalf("unexpected current index %d of %d", status.CurrentIndex, status.TotalPairs)
	}
	if len(status.Failures) != 0 {
		t.Fatalf("interrupted pair must not count as failure: %+v", status.Failures)
	}
	if len(exec.Calls()) != 2 {
		t.Fatalf("no invocation may start after stop, got %d calls", len(exec.Calls()))
	}
}

func TestRunnerStopWhenIdleIsNoop(t *testing.T) {
	r := newTestRunner(t, &fakeExecutor{}, nil)
	r.Stop()
	if r.Status().State != StateIdle {
		t.Fatalf("stop changed idle state to %s", r.Status().State)
	}
}

type blockingRecorder struct {
	memoryRecorder
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRecorder) RecordBatchStarted(ctx context.Context, status Status) error {
	close(b.entered)
	<-b.release
	return b.memoryRecorder.RecordBatchStarted(ctx, status)
}

func statusWithin(t *testing.T, r *Runner, limit time.Duration) Status {
	t.Helper()
	got := make(chan Status, 1)
	go func() { got <- r.Status() }()
	select {
	case status := <-got:
		return status
	case <-time.After(limit):
		t.Fatalf("Status blocked for more than %s", limit)
		return Status{}
	}
}

func TestRunnerStatusDoesNotWaitForHistoryWrite(t *testing.T) {
	rec := &blockingRecorder{entered: make(chan struct{}), release: make(chan struct{})}
	r := newTestRunner(t, &fakeExecutor{}, rec)

	jobID, err := r.Start(context.Background(), testPairs(1), options.Default(), t.TempDir())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-rec.entered

	status := statusWithin(t, r, 200*time.Millisecond)
	if status.JobID != jobID || status.State != StateRunning {
		t.Fatalf("unexpected status during history write: %+v", status)
	}
	if !r.Busy() {
		t.Fatal("runner must report busy while the batch is starting")
	}

	close(rec.release)
	if final := waitDone(t, r); final.State != StateCompleted {
		t.Fatalf("unexpected final status: %+v", final)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.started) != 1 || len(rec.pairs) != 1 || len(rec.finished) != 1 {
		t.Fatalf("unexpected history calls: %d %d %d", len(rec.started), len(rec.pairs), len(rec.finished))
	}
}

func TestRunnerStatusDoesNotWaitForPrecheck(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	r := NewRunner(Config{
		Executor: &fakeExecutor{},
		Binary:   "ffmpeg",
		Logger:   logging.NewNop(),
		LookPath: func(string) (string, error) {
			close(entered)
			<-release
			return "/usr/bin/ffmpeg", nil
		},
	})

	outDir := t.TempDir()
	errs := make(chan error, 1)
	go func() {
		_, err := r.Start(context.Background(), testPairs(1), options.Default(), outDir)
		errs <- err
	}()
	<-entered

	if status := statusWithin(t, r, 200*time.Millisecond); status.State != StateIdle {
		t.Fatalf("unexpected status during precheck: %+v", status)
	}
	close(release)
	if err := <-errs; err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, r)
}

func TestRunnerInvalidOptionsFailImmediately(t *testing.T) {
	exec := &fakeExecutor{}
	r := newTestRunner(t, exec, nil)
	opts := options.Default()
	opts.AudioCodec = "flac"

	_, err := r.Start(context.Background(), testPairs(1), opts, t.TempDir())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	status := r.Status()
	if status.State != StateFailed || status.LastError == "" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if len(exec.Calls()) != 0 {
		t.Fatal("no subprocess may run for invalid options")
	}
}

func TestRunnerMissingExecutableFailsFast(t *testing.T) {
	exec := &fakeExecutor{}
	r := NewRunner(Config{
		Executor: exec,
		Binary:   "ffmpeg",
		Logger:   logging.NewNop(),
		LookPath: func(string) (string, error) { return "", errors.New("not on PATH") },
	})

	_, err := r.Start(context.Background(), testPairs(2), options.Default(), t.TempDir())
	if !errors.Is(err, services.ErrExecutableNotFound) {
		t.Fatalf("expected ErrExecutableNotFound, got %v", err)
	}
	if len(exec.Calls()) != 0 {
		t.Fatal("no pairs may be attempted without the executable")
	}
}

func TestRunnerEmptyBatchCompletes(t *testing.T) {
	r := newTestRunner(t, &fakeExecutor{}, nil)
	if _, err := r.Start(context.Background(), nil, options.Default(), t.TempDir()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := waitDone(t, r)
	if status.State != StateCompleted || status.Percent != 100 || status.TotalPairs != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestRunnerRestartsAfterTerminalState(t *testing.T) {
	r := newTestRunner(t, &fakeExecutor{}, nil)
	first, err := r.Start(context.Background(), testPairs(1), options.Default(), t.TempDir())
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	waitDone(t, r)

	second, err := r.Start(context.Background(), testPairs(2), options.Default(), t.TempDir())
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	status := waitDone(t, r)
	if second == first || status.JobID != second || status.TotalPairs != 2 || len(status.Results) != 2 {
		t.Fatalf("status not reinitialized: %+v", status)
	}
}

func TestRunnerSocialFailureIsNonFatal(t *testing.T) {
	exec := &fakeExecutor{run: func(_ context.Context, _ int, inv command.Invocation, _ ffmpeg.ProgressFunc) error {
		if inv.Social {
			return &ffmpeg.ExitError{Code: 1, Stderr: "crop area too large"}
		}
		return nil
	}}
	r := newTestRunner(t, exec, nil)
	opts := options.Default()
	social := options.DefaultSocial()
	opts.Social = &social

	if _, err := r.Start(context.Background(), testPairs(1), opts, t.TempDir()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := waitDone(t, r)
	if status.State != StateCompleted || len(status.Failures) != 0 {
		t.Fatalf("social failure should not fail the pair: %+v", status)
	}
	result := status.Results[0]
	if !result.Success || result.SocialError == "" || result.SocialOutput != "" {
		t.Fatalf("unexpected pair result: %+v", result)
	}
	if len(exec.Calls()) != 2 {
		t.Fatalf("expected primary and social invocations, got %d", len(exec.Calls()))
	}
}

func TestRunnerReportsPairProgress(t *testing.T) {
	release := make(chan struct{})
	exec := &fakeExecutor{run: func(_ context.Context, _ int, _ command.Invocation, onProgress ffmpeg.ProgressFunc) error {
		onProgress(ffmpeg.Progress{Elapsed: 5 * time.Second, Total: 10 * time.Second, Percent: 50})
		<-release
		return nil
	}}
	r := newTestRunner(t, exec, nil)

	if _, err := r.Start(context.Background(), testPairs(1), options.Default(), t.TempDir()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return r.Status().PairPercent == 50 })
	status := r.Status()
	if status.Percent != 0 || status.CurrentPair != "take1.mkv" {
		t.Fatalf("unexpected in-flight status: %+v", status)
	}
	close(release)
	waitDone(t, r)
}

func TestRunnerPublishesEvents(t *testing.T) {
	exec := &fakeExecutor{run: func(_ context.Context, call int, _ command.Invocation, _ ffmpeg.ProgressFunc) error {
		if call == 0 {
			return &ffmpeg.ExitError{Code: 1}
		}
		return nil
	}}
	r := newTestRunner(t, exec, nil)
	opts := options.Default()
	opts.OutputFormat = options.FormatWebM

	if _, err := r.Start(context.Background(), testPairs(2), opts, t.TempDir()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, r)

	counts := map[EventType]int{}
	for _, e := range r.Events().Since(0) {
		counts[e.Type]++
	}
	if counts[EventBatchStarted] != 1 || counts[EventBatchFinished] != 1 {
		t.Fatalf("unexpected batch events: %v", counts)
	}
	if counts[EventPairStarted] != 2 || counts[EventPairFailed] != 1 || counts[EventPairCompleted] != 1 {
		t.Fatalf("unexpected pair events: %v", counts)
	}
	if counts[EventAdjustment] != 4 {
		t.Fatalf("expected webm adjustments for each pair, got %d", counts[EventAdjustment])
	}
}

func TestStatusSnapshotIsIsolated(t *testing.T) {
	r := newTestRunner(t, &fakeExecutor{}, nil)
	if _, err := r.Start(context.Background(), testPairs(1), options.Default(), t.TempDir()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := waitDone(t, r)
	status.Results[0].Output = "mutated"
	if r.Status().Results[0].Output == "mutated" {
		t.Fatal("snapshot shares memory with runner state")
	}
}

func TestBatchPercent(t *testing.T) {
	tests := []struct {
		current, total, want int
	}{
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
		{0, 0, 100},
	}
	for _, tt := range tests {
		if got := batchPercent(tt.current, tt.total); got != tt.want {
			t.Fatalf("batchPercent(%d, %d) = %d, want %d", tt.current, tt.total, got, tt.want)
		}
	}
}

func TestValidTransition(t *testing.T) {
	if !validTransition(StateIdle, StateRunning) || !validTransition(StateCompleted, StateRunning) {
		t.Fatal("start must be accepted from idle and terminal states")
	}
	if validTransition(StateRunning, StateRunning) || validTransition(StateStopping, StateCompleted) {
		t.Fatal("unexpected transition allowed")
	}
}

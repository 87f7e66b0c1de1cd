package history_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"avmerge/internal/history"
	"avmerge/internal/job"
	"avmerge/internal/matcher"
	"avmerge/internal/services"
	"avmerge/internal/testsupport"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.OpenPath(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func startBatch(t *testing.T, store *history.Store, jobID string, started time.Time) job.Status {
	t.Helper()
	status := job.Status{
		JobID:      jobID,
		State:      job.StateRunning,
		TotalPairs: 2,
		OutputDir:  "/out",
		Options:    "audio=aac video=copy format=mp4",
		StartedAt:  started,
	}
	if err := store.RecordBatchStarted(context.Background(), status); err != nil {
		t.Fatalf("RecordBatchStarted: %v", err)
	}
	return status
}

func TestRecordBatchLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	status := startBatch(t, store, "job-1", started)

	ok := job.PairResult{Index: 0, Audio: "a.mp3", Video: "a.mkv", Method: matcher.MethodName, Output: "/out/a.mp4", Success: true, StartedAt: started, FinishedAt: started.Add(time.Minute)}
	bad := job.PairResult{Index: 1, Audio: "b.mp3", Video: "b.mkv", Method: matcher.MethodName, Error: "exit status 1"}
	for _, r := range []job.PairResult{ok, bad} {
		if err := store.RecordPair(ctx, "job-1", r); err != nil {
			t.Fatalf("RecordPair: %v", err)
		}
	}

	status.State = job.StateCompleted
	status.Results = []job.PairResult{ok, bad}
	status.Failures = []job.PairFailure{{Index: 1, Audio: "b.mp3", Video: "b.mkv", Error: "exit status 1"}}
	status.LastError = "exit status 1"
	status.Message = "completed: 1 succeeded, 1 failed"
	status.FinishedAt = started.Add(2 * time.Minute)
	if err := store.RecordBatchFinished(ctx, status); err != nil {
		t.Fatalf("RecordBatchFinished: %v", err)
	}

	batch, err := store.GetBatch(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if batch == nil || batch.State != job.StateCompleted || batch.Succeeded != 1 || batch.Failed != 1 {
		t.Fatalf("unexpected batch: %#v", batch)
	}
	if batch.Duration() != 2*time.Minute || batch.LastError != "exit status 1" {
		t.Fatalf("unexpected batch details: %#v", batch)
	}

	pairs, err := store.Pairs(ctx, "job-1")
	if err != nil {
		t.Fatalf("Pairs: %v", err)
	}
	if len(pairs) != 2 || !pairs[0].Success || pairs[1].Success || pairs[1].Error == "" {
		t.Fatalf("unexpected pairs: %#v", pairs)
	}
	if pairs[0].Method != "name" || !pairs[0].FinishedAt.Equal(started.Add(time.Minute)) {
		t.Fatalf("unexpected pair details: %#v", pairs[0])
	}
}

func TestListBatchesNewestFirst(t *testing.T) {
	store := openStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	startBatch(t, store, "old", base)
	startBatch(t, store, "mid", base.Add(time.Hour))
	startBatch(t, store, "new", base.Add(2*time.Hour))

	batches, err := store.ListBatches(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if len(batches) != 2 || batches[0].JobID != "new" || batches[1].JobID != "mid" {
		t.Fatalf("unexpected order: %#v", batches)
	}
}

func TestGetBatchMissing(t *testing.T) {
	store := openStore(t)
	batch, err := store.GetBatch(context.Background(), "nope")
	if err != nil || batch != nil {
		t.Fatalf("expected nil batch, got %#v, %v", batch, err)
	}
}

func TestRecordBatchFinishedUnknownJob(t *testing.T) {
	store := openStore(t)
	err := store.RecordBatchFinished(context.Background(), job.Status{JobID: "ghost", State: job.StateFailed})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkInterruptedAndPrune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	startBatch(t, store, "stale", base)
	startBatch(t, store, "recent", base.Add(48*time.Hour))

	n, err := store.MarkInterrupted(ctx, base.Add(49*time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("MarkInterrupted = %d, %v", n, err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[job.StateStopped] != 2 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	if err := store.RecordPair(ctx, "stale", job.PairResult{Index: 0, Audio: "a", Video: "v"}); err != nil {
		t.Fatalf("RecordPair: %v", err)
	}
	pruned, err := store.Prune(ctx, base.Add(24*time.Hour))
	if err != nil || pruned != 1 {
		t.Fatalf("Prune = %d, %v", pruned, err)
	}
	pairs, err := store.Pairs(ctx, "stale")
	if err != nil || len(pairs) != 0 {
		t.Fatalf("pairs should cascade on prune, got %#v, %v", pairs, err)
	}

	cleared, err := store.Clear(ctx)
	if err != nil || cleared != 1 {
		t.Fatalf("Clear = %d, %v", cleared, err)
	}
}

func TestOpenFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	if store.Path() != cfg.History.Path {
		t.Fatalf("path = %q, want %q", store.Path(), cfg.History.Path)
	}

	cfg.History.Enabled = false
	if _, err := history.Open(cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration when disabled, got %v", err)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := history.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	startBatch(t, store, "persisted", time.Now())
	_ = store.Close()

	reopened, err := history.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	batch, err := reopened.GetBatch(context.Background(), "persisted")
	if err != nil || batch == nil {
		t.Fatalf("expected persisted batch, got %#v, %v", batch, err)
	}
}

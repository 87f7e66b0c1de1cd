package api

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"avmerge/internal/history"
	"avmerge/internal/job"
	"avmerge/internal/logging"
	"avmerge/internal/matcher"
	"avmerge/internal/media"
	"avmerge/internal/options"
	"avmerge/internal/services"
	"avmerge/internal/testsupport"
)

type fakeRunner struct {
	mu      sync.Mutex
	status  job.Status
	started [][]matcher.Pair
	outDirs []string
	stopped int
	events  *job.EventBus
	err     error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{status: job.Status{State: job.StateIdle}, events: job.NewEventBus(10)}
}

func (f *fakeRunner) Start(_ context.Context, pairs []matcher.Pair, _ options.OptionSet, outputDir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.started = append(f.started, pairs)
	f.outDirs = append(f.outDirs, outputDir)
	f.status = job.Status{JobID: "job-1", State: job.StateRunning, TotalPairs: len(pairs)}
	return "job-1", nil
}

func (f *fakeRunner) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	f.status.State = job.StateStopping
}

func (f *fakeRunner) Status() job.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeRunner) Events() *job.EventBus { return f.events }

type fakeHistory struct {
	batches []history.Batch
}

func (f fakeHistory) ListBatches(_ context.Context, limit int) ([]history.Batch, error) {
	if limit > 0 && limit < len(f.batches) {
		return f.batches[:limit], nil
	}
	return f.batches, nil
}

func newTestService(t *testing.T, runner Runner, hist HistoryReader) (*MergeService, Dirs) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	svc, err := NewMergeService(MergeServiceConfig{
		Config:  cfg,
		Runner:  runner,
		Matcher: matcher.New(cfg.Matching.AudioExtensions, cfg.Matching.VideoExtensions, logging.NewNop()),
		History: hist,
		Logger:  logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewMergeService: %v", err)
	}
	return svc, Dirs{Audio: cfg.Paths.AudioDir, Video: cfg.Paths.VideoDir, Output: cfg.Paths.OutputDir}
}

func seedPair(t *testing.T, dirs Dirs, stem string) {
	t.Helper()
	testsupport.WriteFile(t, filepath.Join(dirs.Audio, stem+".mp3"), 8)
	testsupport.WriteFile(t, filepath.Join(dirs.Video, stem+".mkv"), 8)
}

func TestMergeServiceStartUsesConfiguredDirectories(t *testing.T) {
	runner := newFakeRunner()
	svc, dirs := newTestService(t, runner, nil)
	seedPair(t, dirs, "intro")
	seedPair(t, dirs, "outro")

	resp, err := svc.Start(Request{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !resp.Success || resp.JobID != "job-1" || resp.Pairs != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(runner.started) != 1 || runner.outDirs[0] != dirs.Output {
		t.Fatalf("runner not started as expected: %+v", runner.outDirs)
	}
	if got := svc.Status(); !got.Running || got.TotalPairs != 2 {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestMergeServiceStartWhileRunning(t *testing.T) {
	runner := newFakeRunner()
	runner.status.State = job.StateRunning
	svc, _ := newTestService(t, runner, nil)

	resp, err := svc.Start(Request{})
	if !errors.Is(err, services.ErrAlreadyRunning) || resp.Success || resp.Message != "Already running" {
		t.Fatalf("unexpected result: %+v, %v", resp, err)
	}
	if len(runner.started) != 0 {
		t.Fatal("runner must not be started")
	}
}

func TestMergeServiceStartMissingDirectory(t *testing.T) {
	svc, _ := newTestService(t, newFakeRunner(), nil)
	resp, err := svc.Start(Request{Dirs: Dirs{Audio: filepath.Join(t.TempDir(), "nope")}})
	if !errors.Is(err, services.ErrNotFound) || resp.Success {
		t.Fatalf("expected ErrNotFound, got %+v, %v", resp, err)
	}
}

func TestMergeServiceStop(t *testing.T) {
	runner := newFakeRunner()
	svc, _ := newTestService(t, runner, nil)

	if resp := svc.Stop(); !resp.Success || resp.Stopping || resp.Message != "Not running" {
		t.Fatalf("stop while idle: %+v", resp)
	}
	if runner.stopped != 0 {
		t.Fatalf("idle stop reached the runner %d time(s)", runner.stopped)
	}
	runner.status.State = job.StateCompleted
	if resp := svc.Stop(); !resp.Success || resp.Stopping {
		t.Fatalf("stop after completion: %+v", resp)
	}
	runner.status.State = job.StateRunning
	if resp := svc.Stop(); !resp.Success || !resp.Stopping || runner.stopped != 1 {
		t.Fatalf("stop while running: %+v (stopped %d)", resp, runner.stopped)
	}
}

func TestMergeServiceFindMatches(t *testing.T) {
	svc, dirs := newTestService(t, newFakeRunner(), nil)
	seedPair(t, dirs, "scene")
	testsupport.WriteFile(t, filepath.Join(dirs.Video, "extra.mkv"), 8)

	resp, err := svc.FindMatches(Request{})
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if !resp.Success || resp.Method != "name" || len(resp.Matches) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Matches[0].Mp3 != "scene.mp3" || resp.Matches[0].Mkv != "scene.mkv" {
		t.Fatalf("unexpected match: %+v", resp.Matches[0])
	}
	if len(resp.ExcessVideo) != 1 || resp.ExcessVideo[0] != "extra.mkv" {
		t.Fatalf("unexpected excess: %+v", resp.ExcessVideo)
	}
}

func TestMergeServiceEventsAndHistory(t *testing.T) {
	runner := newFakeRunner()
	runner.events.Publish(job.Event{Type: job.EventBatchStarted, JobID: "job-1"})
	runner.events.Publish(job.Event{Type: job.EventPairStarted, JobID: "job-1"})
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, runner, fakeHistory{batches: []history.Batch{
		{JobID: "b", State: job.StateCompleted, StartedAt: started},
		{JobID: "a", State: job.StateFailed, StartedAt: started.Add(-time.Hour)},
	}})

	events := svc.Events(1)
	if len(events.Events) != 1 || events.Events[0].Type != "pair_started" || events.Next != 2 {
		t.Fatalf("unexpected events: %+v", events)
	}
	if empty := svc.Events(2); len(empty.Events) != 0 || empty.Next != 2 {
		t.Fatalf("cursor should hold when nothing is new: %+v", empty)
	}

	hist, err := svc.History(context.Background(), 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist.Batches) != 1 || hist.Batches[0].JobID != "b" || hist.Batches[0].StartedAt != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestPendingPairsSkipsExistingOutputs(t *testing.T) {
	outDir := t.TempDir()
	pairs := []matcher.Pair{
		{Video: mediaFile("/in/done.mkv", "done"), Audio: mediaFile("/in/done.mp3", "done")},
		{Video: mediaFile("/in/new.mkv", "new"), Audio: mediaFile("/in/new.mp3", "new")},
	}
	if err := os.WriteFile(filepath.Join(outDir, "done.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	pending := PendingPairs(pairs, options.Default(), outDir)
	if len(pending) != 1 || pending[0].Video.Stem != "new" {
		t.Fatalf("unexpected pending pairs: %+v", pending)
	}
}

func mediaFile(path, stem string) media.MediaFile {
	return media.MediaFile{Path: path, Name: filepath.Base(path), Stem: stem}
}

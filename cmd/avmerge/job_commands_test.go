package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"avmerge/internal/api"
	"avmerge/internal/job"
)

func TestJobStartStatusEvents(t *testing.T) {
	env := setupCLITestEnv(t, fakeFFmpegOptions(t))
	writePair(t, env.cfg, "a.mp3", "a.mkv")

	out, _, err := runCLI(t, []string{"job", "start", "--format", "webm"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("job start: %v", err)
	}
	requireContains(t, out, "with 1 pair(s)")

	waitFor(t, 5*time.Second, func() bool {
		return env.daemon.Status(context.Background()).Job.State == job.StateCompleted
	})
	requireFile(t, filepath.Join(env.cfg.Paths.OutputDir, "a.webm"))

	out, _, err = runCLI(t, []string{"job", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("job status: %v", err)
	}
	requireContains(t, out, "completed")
	requireContains(t, out, "== Merge ==")

	out, _, err = runCLI(t, []string{"job", "status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("job status --json: %v", err)
	}
	var merge api.MergeStatus
	if err := json.Unmarshal([]byte(out), &merge); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if merge.State != "completed" || merge.TotalPairs != 1 {
		t.Fatalf("unexpected merge status: %+v", merge)
	}

	out, _, err = runCLI(t, []string{"job", "events"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("job events: %v", err)
	}
	requireContains(t, out, "batch_started")
	requireContains(t, out, "pair_completed pair=1")
	requireContains(t, out, "batch_finished")
}

func TestJobStopIdle(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"job", "stop"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("job stop: %v", err)
	}
	requireContains(t, out, "Not running")
}

func TestJobStartRejected(t *testing.T) {
	env := setupCLITestEnv(t, fakeFFmpegOptions(t))
	_, _, err := runCLI(t, []string{"job", "start", "--audio-dir", filepath.Join(env.cfg.Paths.AudioDir, "missing")}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected start to be rejected")
	}
	requireContains(t, err.Error(), "start rejected")
}

func TestJobStatusWithoutDaemon(t *testing.T) {
	_, configPath := newCLIConfig(t)
	socket := filepath.Join(t.TempDir(), "absent.sock")
	_, _, err := runCLI(t, []string{"job", "status"}, socket, configPath)
	if err == nil {
		t.Fatal("expected dial error")
	}
	requireContains(t, err.Error(), "avmerge daemon start")
}

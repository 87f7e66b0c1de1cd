//go:build linux

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"avmerge/internal/logging"
)

// processAlive treats zombies as dead since an unreaped child cannot run.
func processAlive(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	fields := strings.Fields(string(data))
	return len(fields) > 2 && fields[2] != "Z"
}

func waitForFile(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil && strings.TrimSpace(string(data)) != "" {
			return strings.TrimSpace(string(data))
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
	return ""
}

func TestRunnerCancelKillsProcessGroup(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	bin := writeStub(t, fmt.Sprintf(`sleep 30 &
echo $! > %s
wait`, pidFile))
	runner := NewRunner(bin, 500*time.Millisecond, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx, testInvocation("/tmp/out.mp4"), 0, nil)
	}()

	childPID, err := strconv.Atoi(waitForFile(t, pidFile))
	if err != nil {
		t.Fatalf("parse child pid: %v", err)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	deadline := time.Now().Add(3 * time.Second)
	for processAlive(childPID) {
		if time.Now().After(deadline) {
			t.Fatalf("child process %d survived cancellation", childPID)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRunnerCleanExitDuringStopKeepsSuccess(t *testing.T) {
	bin := writeStub(t, `trap '' TERM
printf 'frame=1 time=00:00:01.00 bitrate=1 speed=1.0x\r' >&2
sleep 0.3
exit 0`)
	runner := NewRunner(bin, 2*time.Second, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := runner.Run(ctx, testInvocation("/tmp/out.mp4"), 0, func(Progress) { cancel() })
	if err != nil {
		t.Fatalf("clean exit after stop must succeed, got %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("expected the stop to have been requested during the run")
	}
}

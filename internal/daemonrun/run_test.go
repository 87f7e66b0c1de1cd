package daemonrun

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"avmerge/internal/ipc"
	"avmerge/internal/testsupport"
)

func TestRunServesUntilShutdown(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(context.Background(), cfg, Options{LogLevel: "debug"})
	}()

	var client *ipc.Client
	deadline := time.Now().Add(5 * time.Second)
	for {
		c, err := ipc.Dial(cfg.SocketPath())
		if err == nil {
			status, statusErr := c.Status()
			if statusErr == nil && status.Running {
				client = c
				break
			}
			c.Close()
		}
		if time.Now().After(deadline) {
			t.Fatalf("daemon did not become ready: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	defer client.Close()

	data, err := os.ReadFile(PIDPath(cfg))
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file contents %q", data)
	}

	if _, err := client.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}

	if _, err := os.Stat(PIDPath(cfg)); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, got %v", err)
	}
	if info, err := os.Stat(cfg.LogPath()); err != nil || info.Size() == 0 {
		t.Fatalf("expected daemon log file to be written: %v", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"avmerge/internal/config"
	"avmerge/internal/job"
	"avmerge/internal/logging"
	"avmerge/internal/notifications"
)

type captured struct {
	calls    int
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		c.calls++
		c.title = r.Header.Get("Title")
		c.tags = r.Header.Get("Tags")
		c.priority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		c.body = string(body)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, c
}

func configFor(url string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = url
	cfg.Notifications.RequestTimeoutSeconds = 5
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if svc.Enabled() {
		t.Fatal("expected disabled service without a topic")
	}
	if err := svc.NotifyBatchFinished(context.Background(), job.Status{State: job.StateCompleted}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsBatchOutcomes(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ok := job.PairResult{Success: true}
	tests := []struct {
		name           string
		status         job.Status
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "completed",
			status: job.Status{
				State: job.StateCompleted, TotalPairs: 2, OutputDir: "/out",
				Results: []job.PairResult{ok, ok}, StartedAt: start, FinishedAt: start.Add(90 * time.Second),
			},
			expectTitle:   "avmerge - Batch Complete",
			expectMessage: "2 pair(s) merged in 1m30s\nOutput: /out",
			expectTags:    "avmerge,batch,completed",
		},
		{
			name: "partial failure",
			status: job.Status{
				State:      job.StateCompleted,
				TotalPairs: 2,
				Results:    []job.PairResult{ok, {Success: false}},
				Failures:   []job.PairFailure{{Index: 1, Error: "boom"}},
				StartedAt:  start,
				FinishedAt: start.Add(5 * time.Second),
			},
			expectTitle:   "avmerge - Batch Complete (with errors)",
			expectMessage: "1 merged, 1 failed in 5s",
			expectTags:    "avmerge,batch,warning",
		},
		{
			name: "failed",
			status: job.Status{
				State: job.StateFailed, TotalPairs: 1, LastError: "ffmpeg exited 1",
				Failures: []job.PairFailure{{Index: 0, Error: "ffmpeg exited 1"}},
			},
			expectTitle:    "avmerge - Batch Failed",
			expectMessage:  "All 1 pair(s) failed\nffmpeg exited 1",
			expectTags:     "avmerge,batch,failed",
			expectPriority: "high",
		},
		{
			name: "stopped",
			status: job.Status{
				State: job.StateStopped, TotalPairs: 3,
				Results: []job.PairResult{ok}, StartedAt: start, FinishedAt: start.Add(2 * time.Second),
			},
			expectTitle:   "avmerge - Batch Stopped",
			expectMessage: "Stopped after 1 of 3 pair(s) in 2s",
			expectTags:    "avmerge,batch,stopped",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, got := newNtfyServer(t, http.StatusOK)
			svc := notifications.NewService(configFor(server.URL))
			if err := svc.NotifyBatchFinished(context.Background(), tc.status); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			if got.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got.title)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got.body)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyServiceSkipsSuccessWhenDisabled(t *testing.T) {
	server, got := newNtfyServer(t, http.StatusOK)
	cfg := configFor(server.URL)
	cfg.Notifications.OnSuccess = false
	svc := notifications.NewService(cfg)

	status := job.Status{State: job.StateCompleted, TotalPairs: 1, Results: []job.PairResult{{Success: true}}}
	if err := svc.NotifyBatchFinished(context.Background(), status); err != nil {
		t.Fatalf("NotifyBatchFinished: %v", err)
	}
	if got.calls != 0 {
		t.Fatalf("expected no call for a clean batch, got %d", got.calls)
	}
	if err := svc.NotifyBatchFinished(context.Background(), job.Status{State: job.StateFailed, TotalPairs: 1}); err != nil {
		t.Fatalf("NotifyBatchFinished failed batch: %v", err)
	}
	if got.calls != 1 {
		t.Fatalf("expected failed batch to notify, got %d calls", got.calls)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server, _ := newNtfyServer(t, http.StatusForbidden)
	svc := notifications.NewService(configFor(server.URL))
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for 403")
	}
}

func TestNotifyErrorMessage(t *testing.T) {
	server, got := newNtfyServer(t, http.StatusOK)
	svc := notifications.NewService(configFor(server.URL))
	if err := svc.NotifyError(context.Background(), errors.New("disk full"), "auto-merge"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}
	if got.body != "Error with auto-merge: disk full" || got.priority != "high" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

type memoryRecorder struct {
	started, pairs, finished int
	finishErr                error
}

func (m *memoryRecorder) RecordBatchStarted(context.Context, job.Status) error {
	m.started++
	return nil
}

func (m *memoryRecorder) RecordPair(context.Context, string, job.PairResult) error {
	m.pairs++
	return nil
}

func (m *memoryRecorder) RecordBatchFinished(context.Context, job.Status) error {
	m.finished++
	return m.finishErr
}

func TestRecorderChainsAndNotifies(t *testing.T) {
	server, got := newNtfyServer(t, http.StatusOK)
	inner := &memoryRecorder{finishErr: errors.New("db locked")}
	rec := notifications.NewRecorder(inner, notifications.NewService(configFor(server.URL)), logging.NewNop())

	ctx := context.Background()
	status := job.Status{JobID: "j1", State: job.StateFailed, TotalPairs: 1}
	if err := rec.RecordBatchStarted(ctx, status); err != nil {
		t.Fatalf("RecordBatchStarted: %v", err)
	}
	if err := rec.RecordPair(ctx, "j1", job.PairResult{}); err != nil {
		t.Fatalf("RecordPair: %v", err)
	}
	if err := rec.RecordBatchFinished(ctx, status); err == nil || err.Error() != "db locked" {
		t.Fatalf("expected inner error to surface, got %v", err)
	}
	if inner.started != 1 || inner.pairs != 1 || inner.finished != 1 {
		t.Fatalf("inner recorder not called: %+v", inner)
	}
	if got.calls != 1 || got.title != "avmerge - Batch Failed" {
		t.Fatalf("expected failure notification, got %+v", got)
	}
}

func TestRecorderWithoutInner(t *testing.T) {
	server, got := newNtfyServer(t, http.StatusInternalServerError)
	rec := notifications.NewRecorder(nil, notifications.NewService(configFor(server.URL)), nil)
	status := job.Status{JobID: "j2", State: job.StateCompleted, TotalPairs: 0}
	if err := rec.RecordBatchFinished(context.Background(), status); err != nil {
		t.Fatalf("delivery failure must not surface: %v", err)
	}
	if got.calls != 1 {
		t.Fatalf("expected one delivery attempt, got %d", got.calls)
	}
}

package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"avmerge/internal/api"
	"avmerge/internal/config"
	"avmerge/internal/logging"
	"avmerge/internal/testsupport"
)

func newTestDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	d, err := New(cfg, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func newTestHandler(t *testing.T, cfg *config.Config) (*Daemon, http.Handler) {
	t.Helper()
	d := newTestDaemon(t, cfg)
	srv, err := newAPIServer(cfg, d, logging.NewNop())
	if err != nil {
		t.Fatalf("newAPIServer: %v", err)
	}
	return d, srv.routes(cfg.Paths.APIToken)
}

func serve(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestAPIStatusIdle(t *testing.T) {
	_, h := newTestHandler(t, testsupport.NewConfig(t))

	for _, path := range []string{"/api/status", "/status"} {
		w := serve(h, http.MethodGet, path, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
		status := decodeBody[api.MergeStatus](t, w)
		if status.Running || status.State != "idle" {
			t.Fatalf("%s: unexpected status %+v", path, status)
		}
		if w.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s: expected request id header", path)
		}
	}
}

func TestAPIMethodNotAllowed(t *testing.T) {
	_, h := newTestHandler(t, testsupport.NewConfig(t))
	w := serve(h, http.MethodGet, "/api/start", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestAPIStopIdleIsNoop(t *testing.T) {
	_, h := newTestHandler(t, testsupport.NewConfig(t))
	w := serve(h, http.MethodPost, "/api/stop", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeBody[api.StopResponse](t, w)
	if !resp.Success || resp.Stopping || resp.Message != "Not running" {
		t.Fatalf("unexpected stop response %+v", resp)
	}
}

func TestAPIStartMissingDirectory(t *testing.T) {
	_, h := newTestHandler(t, testsupport.NewConfig(t))
	w := serve(h, http.MethodPost, "/api/start", `{"mp3Dir":"/does/not/exist"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[api.StartResponse](t, w)
	if resp.Success || !strings.Contains(resp.Message, "does not exist") {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestAPIStartMalformedBody(t *testing.T) {
	_, h := newTestHandler(t, testsupport.NewConfig(t))
	w := serve(h, http.MethodPost, "/api/start", `{"mp3Dir":`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAPIStartMergesPairs(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithFFmpeg(testsupport.FakeFFmpeg(t, ""), testsupport.FakeFFprobe(t, "2.0")),
	)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.AudioDir, "take1.mp3"), 16)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.VideoDir, "take1.mkv"), 16)
	d, h := newTestHandler(t, cfg)

	w := serve(h, http.MethodPost, "/api/start", `{}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[api.StartResponse](t, w)
	if !resp.Success || resp.Pairs != 1 || resp.JobID == "" {
		t.Fatalf("unexpected start response %+v", resp)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.runner.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	status := decodeBody[api.MergeStatus](t, serve(h, http.MethodGet, "/api/status", "", nil))
	if status.State != "completed" || status.JobID != resp.JobID {
		t.Fatalf("unexpected final status %+v", status)
	}
	if len(status.Results) != 1 || !status.Results[0].Success {
		t.Fatalf("unexpected results %+v", status.Results)
	}
	if _, err := os.Stat(status.Results[0].Output); err != nil {
		t.Fatalf("expected output file: %v", err)
	}

	events := decodeBody[api.EventsResponse](t, serve(h, http.MethodGet, "/api/events?since=0", "", nil))
	if len(events.Events) == 0 || events.Next == 0 {
		t.Fatalf("expected events, got %+v", events)
	}
	later := decodeBody[api.EventsResponse](t, serve(h, http.MethodGet, "/api/events?since="+strconv.FormatInt(events.Next, 10), "", nil))
	if len(later.Events) != 0 {
		t.Fatalf("expected no events after cursor, got %d", len(later.Events))
	}
}

func TestBatchFinishSendsNotification(t *testing.T) {
	titles := make(chan string, 1)
	ntfy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		titles <- r.Header.Get("Title")
	}))
	defer ntfy.Close()

	cfg := testsupport.NewConfig(t,
		testsupport.WithFFmpeg(testsupport.FakeFFmpeg(t, "exit 3"), ""),
	)
	cfg.Notifications.NtfyTopic = ntfy.URL
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.AudioDir, "take1.mp3"), 16)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.VideoDir, "take1.mkv"), 16)
	d, h := newTestHandler(t, cfg)

	if w := serve(h, http.MethodPost, "/api/start", `{}`, nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.runner.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	select {
	case title := <-titles:
		if title != "avmerge - Batch Failed" {
			t.Fatalf("unexpected notification title %q", title)
		}
	case <-ctx.Done():
		t.Fatal("no notification received")
	}
}

func TestAPIFindMatches(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.AudioDir, "song.mp3"), 16)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.VideoDir, "song.mkv"), 16)
	_, h := newTestHandler(t, cfg)

	w := serve(h, http.MethodPost, "/find_matches", `{}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[api.MatchResponse](t, w)
	if len(resp.Matches) != 1 || resp.Method != "name" {
		t.Fatalf("unexpected matches %+v", resp)
	}
	if resp.Matches[0].Mp3 != "song.mp3" || resp.Matches[0].Mkv != "song.mkv" {
		t.Fatalf("unexpected match names %+v", resp.Matches[0])
	}
}

func TestAPIEventsInvalidCursor(t *testing.T) {
	_, h := newTestHandler(t, testsupport.NewConfig(t))
	w := serve(h, http.MethodGet, "/api/events?since=abc", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAPIHistoryWithoutStore(t *testing.T) {
	_, h := newTestHandler(t, testsupport.NewConfig(t, testsupport.WithHistoryDisabled()))
	w := serve(h, http.MethodGet, "/api/history", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeBody[api.HistoryResponse](t, w)
	if resp.Batches == nil || len(resp.Batches) != 0 {
		t.Fatalf("expected empty batch list, got %+v", resp.Batches)
	}
}

func TestAPIDaemonStatus(t *testing.T) {
	_, h := newTestHandler(t, testsupport.NewConfig(t, testsupport.WithStubbedBinaries()))
	w := serve(h, http.MethodGet, "/api/daemon", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeBody[api.DaemonStatus](t, w)
	if resp.Running {
		t.Fatalf("daemon not started but reported running")
	}
	if len(resp.Dependencies) != 2 {
		t.Fatalf("expected two dependencies, got %+v", resp.Dependencies)
	}
}

func TestAPIBearerToken(t *testing.T) {
	_, h := newTestHandler(t, testsupport.NewConfig(t, testsupport.WithAPIToken("secret")))

	if w := serve(h, http.MethodGet, "/api/status", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(h, http.MethodGet, "/api/status", "", map[string]string{"Authorization": "Bearer wrong"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	if w := serve(h, http.MethodGet, "/api/status", "", map[string]string{"Authorization": "Bearer secret"}); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	_, h := newTestHandler(t, testsupport.NewConfig(t))
	w := serve(h, http.MethodGet, "/api/status", "", map[string]string{"X-Request-ID": "req-42"})
	if got := w.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"avmerge/internal/config"
	"avmerge/internal/job"
)

const userAgent = "avmerge/0.1"

// Service publishes batch milestones to an operator.
type Service interface {
	NotifyBatchFinished(ctx context.Context, status job.Status) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
	Enabled() bool
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		onSuccess: cfg.Notifications.OnSuccess,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	onSuccess bool
}

func (n *ntfyService) Enabled() bool { return true }

func (n *ntfyService) NotifyBatchFinished(ctx context.Context, status job.Status) error {
	succeeded := status.Succeeded()
	failed := len(status.Failures)
	took := status.FinishedAt.Sub(status.StartedAt).Round(time.Second)
	if took < 0 {
		took = 0
	}

	var data payload
	switch {
	case status.State == job.StateStopped:
		data = payload{
			title:   "avmerge - Batch Stopped",
			message: fmt.Sprintf("Stopped after %d of %d pair(s) in %s", succeeded+failed, status.TotalPairs, took),
			tags:    []string{"avmerge", "batch", "stopped"},
		}
	case status.State == job.StateFailed:
		message := fmt.Sprintf("All %d pair(s) failed", status.TotalPairs)
		if status.LastError != "" {
			message += "\n" + status.LastError
		}
		data = payload{
			title:    "avmerge - Batch Failed",
			message:  message,
			tags:     []string{"avmerge", "batch", "failed"},
			priority: "high",
		}
	case failed > 0:
		data = payload{
			title:   "avmerge - Batch Complete (with errors)",
			message: fmt.Sprintf("%d merged, %d failed in %s", succeeded, failed, took),
			tags:    []string{"avmerge", "batch", "warning"},
		}
	default:
		if !n.onSuccess {
			return nil
		}
		message := fmt.Sprintf("%d pair(s) merged in %s", succeeded, took)
		if status.OutputDir != "" {
			message += "\nOutput: " + status.OutputDir
		}
		data = payload{
			title:   "avmerge - Batch Complete",
			message: message,
			tags:    []string{"avmerge", "batch", "completed"},
		}
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "avmerge - Error",
		message:  builder.String(),
		tags:     []string{"avmerge", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "avmerge - Test",
		message:  "Notification system test",
		tags:     []string{"avmerge", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyBatchFinished(context.Context, job.Status) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error      { return nil }
func (noopService) TestNotification(context.Context) error                { return nil }
func (noopService) Enabled() bool                                         { return false }

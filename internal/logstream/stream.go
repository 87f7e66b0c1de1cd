package logstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"avmerge/internal/ipc"
	"avmerge/internal/logs"
)

const followWait = time.Second

// idleBackoff paces polling when a source returns immediately with nothing
// new, as a missing log file does.
var idleBackoff = 500 * time.Millisecond

// Source reads a window of log lines.
type Source interface {
	Tail(ctx context.Context, opts logs.TailOptions) (logs.TailResult, error)
}

// TailClient captures the IPC log tail contract.
type TailClient interface {
	LogTail(req ipc.LogTailRequest) (*ipc.LogTailResponse, error)
}

// IPCSource tails the daemon log through a running daemon.
type IPCSource struct {
	Client TailClient
}

func (s IPCSource) Tail(ctx context.Context, opts logs.TailOptions) (logs.TailResult, error) {
	if err := ctx.Err(); err != nil {
		return logs.TailResult{Offset: opts.Offset}, err
	}
	resp, err := s.Client.LogTail(ipc.LogTailRequest{
		Offset:     opts.Offset,
		Limit:      opts.Limit,
		Follow:     opts.Follow,
		WaitMillis: int(opts.Wait / time.Millisecond),
	})
	if err != nil {
		return logs.TailResult{Offset: opts.Offset}, fmt.Errorf("tail logs: %w", err)
	}
	if resp == nil {
		return logs.TailResult{Offset: opts.Offset}, errors.New("log tail response missing")
	}
	return logs.TailResult{Lines: resp.Lines, Offset: resp.Offset}, nil
}

// FileSource reads the log file directly, for when the daemon is offline.
type FileSource struct {
	Path string
}

func (s FileSource) Tail(ctx context.Context, opts logs.TailOptions) (logs.TailResult, error) {
	return logs.Tail(ctx, s.Path, opts)
}

// Filters select lines by substring. Component and JobID match both the
// console key=value and JSON encodings of those attributes.
type Filters struct {
	Component string
	JobID     string
	Search    string
}

func (f Filters) match(line string) bool {
	if c := strings.TrimSpace(f.Component); c != "" && !hasAttr(line, "component", c) {
		return false
	}
	if id := strings.TrimSpace(f.JobID); id != "" && !hasAttr(line, "job_id", id) {
		return false
	}
	if s := strings.TrimSpace(f.Search); s != "" && !strings.Contains(strings.ToLower(line), strings.ToLower(s)) {
		return false
	}
	return true
}

func hasAttr(line, key, value string) bool {
	return strings.Contains(line, key+"="+value) ||
		strings.Contains(line, fmt.Sprintf("%q:%q", key, value))
}

// Options controls stream behavior.
type Options struct {
	Lines   int
	Follow  bool
	Filters Filters
}

// Stream prints the last opts.Lines lines from source and, with Follow,
// keeps printing new ones until ctx ends. It reports whether any line was
// emitted.
func Stream(ctx context.Context, source Source, opts Options, onLine func(string)) (bool, error) {
	if source == nil {
		return false, errors.New("log source is required")
	}
	req := logs.TailOptions{Offset: -1, Limit: opts.Lines}
	if opts.Lines <= 0 {
		req = logs.TailOptions{Offset: 0}
	}

	printed := false
	for {
		resp, err := source.Tail(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return printed, nil
			}
			return printed, err
		}
		for _, line := range resp.Lines {
			if !opts.Filters.match(line) {
				continue
			}
			if onLine != nil {
				onLine(line)
			}
			printed = true
		}
		if !opts.Follow {
			return printed, nil
		}
		idle := len(resp.Lines) == 0 && resp.Offset == req.Offset
		req = logs.TailOptions{Offset: resp.Offset, Follow: true, Wait: followWait}
		if idle {
			select {
			case <-ctx.Done():
				return printed, nil
			case <-time.After(idleBackoff):
			}
			continue
		}
		select {
		case <-ctx.Done():
			return printed, nil
		default:
		}
	}
}

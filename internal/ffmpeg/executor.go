package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"avmerge/internal/command"
	"avmerge/internal/logging"
	"avmerge/internal/services"
)

const (
	defaultKillGrace = 5 * time.Second
	stderrTailLines  = 20
)

// Executor runs one invocation to completion, reporting progress.
type Executor interface {
	Run(ctx context.Context, inv command.Invocation, total time.Duration, onProgress ProgressFunc) error
}

// ExitError reports a non-zero ffmpeg exit.
type ExitError struct {
	Code   int
	Output string
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("ffmpeg exited with status %d", e.Code)
	if last := lastLine(e.Stderr); last != "" {
		msg += ": " + last
	}
	return msg
}

// Is lets errors.Is match services.ErrSubprocess.
func (e *ExitError) Is(target error) bool {
	return target == services.ErrSubprocess
}

// Runner is the process-backed Executor.
type Runner struct {
	binary    string
	killGrace time.Duration
	logger    *slog.Logger
}

// NewRunner builds a Runner for the given ffmpeg binary. A non-positive grace
// falls back to five seconds.
func NewRunner(binary string, killGrace time.Duration, logger *slog.Logger) *Runner {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if killGrace <= 0 {
		killGrace = defaultKillGrace
	}
	return &Runner{
		binary:    binary,
		killGrace: killGrace,
		logger:    logging.NewComponentLogger(logger, "ffmpeg"),
	}
}

// Binary returns the configured executable.
func (r *Runner) Binary() string {
	return r.binary
}

// Run starts ffmpeg and blocks until it exits. When ctx is cancelled the
// process group is terminated and the returned error wraps ctx.Err().
func (r *Runner) Run(ctx context.Context, inv command.Invocation, total time.Duration, onProgress ProgressFunc) error {
	if len(inv.Args) == 0 {
		return services.Wrap(services.ErrConfiguration, "ffmpeg", "run", "empty invocation", nil)
	}
	logger := logging.WithContext(ctx, r.logger)

	cmd := exec.CommandContext(ctx, r.binary, inv.Args...) //nolint:gosec
	group := configureProcessGroup(cmd, r.killGrace)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	logger.Debug("starting ffmpeg", logging.String("command", inv.CommandLine(r.binary)))
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return services.Wrap(services.ErrExecutableNotFound, "ffmpeg", "start", r.binary, err)
		}
		return services.Wrap(services.ErrSubprocess, "ffmpeg", "start", r.binary, err)
	}
	logger.Debug("ffmpeg started", logging.Int("pid", cmd.Process.Pid))

	errTail := &tail{n: stderrTailLines}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(scanStatsLines)
		for scanner.Scan() {
			line := scanner.Text()
			if elapsed, speed, ok := ParseProgressLine(line); ok {
				if onProgress != nil {
					onProgress(newProgress(elapsed, total, speed))
				}
				continue
			}
			errTail.add(line)
		}
	}()

	wg.Wait()
	waitErr := cmd.Wait()
	group.release()

	// Wait reports ctx.Err() once Cancel has signalled, even when ffmpeg
	// went on to exit cleanly; a clean exit means the output is complete.
	if waitErr == nil || (cmd.ProcessState != nil && cmd.ProcessState.Success()) {
		if ctx.Err() != nil {
			logger.Info("ffmpeg finished as stop arrived", logging.String("output", inv.Output))
		}
		if onProgress != nil && total > 0 {
			onProgress(newProgress(total, total, 0))
		}
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Info("ffmpeg terminated", logging.String("reason", ctxErr.Error()))
		return fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode(), Output: inv.Output, Stderr: errTail.String()}
	}
	return services.Wrap(services.ErrSubprocess, "ffmpeg", "wait", inv.Output, waitErr)
}

// LookPath resolves the binary, failing with services.ErrExecutableNotFound.
func LookPath(binary string) (string, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return "", services.Wrap(services.ErrExecutableNotFound, "ffmpeg", "lookup", "binary not configured", nil)
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", services.Wrap(services.ErrExecutableNotFound, "ffmpeg", "lookup", fmt.Sprintf("binary %q not found", binary), err)
	}
	return path, nil
}

// Version returns the first line of `<binary> -version`.
func Version(ctx context.Context, binary string) (string, error) {
	path, err := LookPath(binary)
	if err != nil {
		return "", err
	}
	out, err := exec.CommandContext(ctx, path, "-version").Output() //nolint:gosec
	if err != nil {
		return "", services.Wrap(services.ErrSubprocess, "ffmpeg", "version", path, err)
	}
	return firstLine(string(out)), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

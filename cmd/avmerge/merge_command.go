package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"avmerge/internal/api"
	"avmerge/internal/command"
	"avmerge/internal/config"
	"avmerge/internal/history"
	"avmerge/internal/job"
	"avmerge/internal/logging"
	"avmerge/internal/matcher"
	"avmerge/internal/notifications"
	"avmerge/internal/options"
)

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var dirs dirFlags
	var opts optionFlags
	var dryRun bool
	var skipExisting bool

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Match audio to video and merge every pair in the foreground",
		Long: "Match audio to video and merge every pair in the foreground.\n\n" +
			"Pairs run one at a time. Ctrl-C stops the current ffmpeg process, removes its\n" +
			"partial output and skips the remaining pairs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			audioDir, videoDir, outDir, err := dirs.resolve(cfg)
			if err != nil {
				return err
			}
			set, err := opts.resolve(cmd, cfg)
			if err != nil {
				return err
			}
			logger, closeLogs, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLogs()

			result, err := matcher.New(cfg.Matching.AudioExtensions, cfg.Matching.VideoExtensions, logger).Match(audioDir, videoDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if amb := result.Ambiguity(); amb != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", amb)
			}
			pairs := result.Pairs
			if skipExisting {
				pairs = api.PendingPairs(pairs, set, outDir)
			}
			if len(pairs) == 0 {
				fmt.Fprintln(out, "No pairs to merge")
				return nil
			}
			fmt.Fprintf(out, "Matched %d pair(s) by %s: %s\n", len(pairs), result.Method, result.Reason)

			if dryRun {
				return printPlan(out, pairs, set, outDir, cfg.FFmpegBinary())
			}
			return runForeground(cmd, cfg, logger, pairs, set, outDir)
		},
	}
	dirs.register(cmd)
	opts.register(cmd)
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Print the ffmpeg commands without running them")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Skip pairs whose output file already exists")
	return cmd
}

func printPlan(w io.Writer, pairs []matcher.Pair, set options.OptionSet, outDir, binary string) error {
	for i, pair := range pairs {
		plan, err := command.Plan(pair, set, outDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n[%d/%d] %s + %s\n", i+1, len(pairs), pair.Video.Name, pair.Audio.Name)
		for _, inv := range plan {
			for _, adj := range inv.Adjustments {
				fmt.Fprintf(w, "  note: %s\n", adj)
			}
			fmt.Fprintf(w, "  %s\n", inv.CommandLine(binary))
		}
	}
	return nil
}

func runForeground(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, pairs []matcher.Pair, set options.OptionSet, outDir string) error {
	var recorder job.Recorder
	if cfg.History.Enabled {
		store, err := history.Open(cfg)
		if err != nil {
			logging.WarnWithContext(logger, "history unavailable", "history_open_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "this batch will not be recorded"),
			)
		} else {
			defer store.Close()
			recorder = store
		}
	}
	recorder = notifications.NewRecorder(recorder, notifications.NewService(cfg), logger)
	runner := job.NewRunnerFromConfig(cfg, recorder, logger)

	sigCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The batch outlives the signal context so Stop can clean up partial output.
	if _, err := runner.Start(context.Background(), pairs, set, outDir); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	followEvents(out, runner, sigCtx.Done())

	status := runner.Status()
	fmt.Fprintln(out)
	fmt.Fprint(out, renderSummary(status))
	switch status.State {
	case job.StateFailed:
		return fmt.Errorf("all %d pair(s) failed: %s", status.TotalPairs, status.LastError)
	case job.StateStopped:
		return context.Canceled
	}
	if n := len(status.Failures); n > 0 {
		return fmt.Errorf("%d of %d pair(s) failed", n, status.TotalPairs)
	}
	return nil
}

// followEvents prints runner events until the batch finishes. A value on
// interrupt asks the runner to stop once.
func followEvents(w io.Writer, runner *job.Runner, interrupt <-chan struct{}) {
	bus := runner.Events()
	done := runner.Done()
	var since int64
	flush := func() {
		for _, e := range bus.Since(since) {
			since = e.Seq
			if line := eventLine(e); line != "" {
				fmt.Fprintln(w, line)
			}
		}
	}
	for {
		changed := bus.Changed()
		flush()
		select {
		case <-done:
			flush()
			return
		case <-interrupt:
			fmt.Fprintln(w, "Stopping...")
			runner.Stop()
			interrupt = nil
		case <-changed:
		}
	}
}

func eventLine(e job.Event) string {
	prefix := ""
	if e.PairIndex >= 0 {
		prefix = fmt.Sprintf("[%d] ", e.PairIndex+1)
	}
	switch e.Type {
	case job.EventPairStarted:
		return prefix + e.Message
	case job.EventPairCompleted:
		return prefix + "done -> " + e.Output
	case job.EventPairFailed:
		return prefix + "FAILED: " + e.Error
	case job.EventAdjustment:
		return prefix + "note: " + e.Message
	case job.EventSocialFailed:
		return prefix + "social variant failed: " + e.Error
	case job.EventStopRequested:
		return "stop requested"
	case job.EventBatchFinished:
		return e.Message
	default:
		return ""
	}
}

func renderSummary(status job.Status) string {
	rows := make([][]string, 0, len(status.Results))
	for _, r := range status.Results {
		result := "ok"
		detail := filepath.Base(r.Output)
		if !r.Success {
			result = "failed"
			detail = r.Error
		} else if r.SocialError != "" {
			detail += " (social failed)"
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Index + 1),
			r.Video,
			r.Audio,
			string(r.Method),
			result,
			r.Duration().Round(time.Millisecond).String(),
			detail,
		})
	}
	footer := []string{"", "", "", "", string(status.State),
		status.FinishedAt.Sub(status.StartedAt).Round(time.Millisecond).String(),
		fmt.Sprintf("%d ok, %d failed", status.Succeeded(), len(status.Failures))}
	return renderTable(
		[]string{"#", "Video", "Audio", "Match", "Result", "Took", "Output"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		footer,
	)
}

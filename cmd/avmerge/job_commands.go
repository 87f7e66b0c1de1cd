package main

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"avmerge/internal/api"
	"avmerge/internal/ipc"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Control merge batches on the running daemon",
	}
	jobCmd.AddCommand(newJobStartCommand(ctx))
	jobCmd.AddCommand(newJobStopCommand(ctx))
	jobCmd.AddCommand(newJobStatusCommand(ctx))
	jobCmd.AddCommand(newJobEventsCommand(ctx))
	return jobCmd
}

func newJobStartCommand(ctx *commandContext) *cobra.Command {
	var dirs dirFlags
	var opts optionFlags

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a merge batch on the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := opts.raw(cmd)
			if err != nil {
				return err
			}
			req := ipc.StartRequest{
				AudioDir:  strings.TrimSpace(dirs.audio),
				VideoDir:  strings.TrimSpace(dirs.video),
				OutputDir: strings.TrimSpace(dirs.output),
				Options:   raw,
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Start(req)
				if err != nil {
					return err
				}
				if !resp.Success {
					return fmt.Errorf("start rejected: %s", resp.Message)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started job %s with %d pair(s)\n", resp.JobID, resp.Pairs)
				return nil
			})
		},
	}
	dirs.register(cmd)
	opts.register(cmd)
	return cmd
}

func newJobStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !resp.Stopping {
					fmt.Fprintln(out, resp.Message)
					return nil
				}
				fmt.Fprintln(out, "Stop requested")
				return nil
			})
		},
	}
}

func newJobStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show progress of the current or last batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status.Merge)
				}
				out := cmd.OutOrStdout()
				printMergeStatus(out, status.Merge, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printMergeStatus(w io.Writer, m api.MergeStatus, colorize bool) {
	if m.JobID == "" {
		fmt.Fprintln(w, "No batch has run since the daemon started")
		return
	}
	lines := []string{
		renderStatusLine("Job", stateKind(m.State), m.JobID, colorize),
		renderStatusLine("State", stateKind(m.State), m.State, colorize),
		renderStatusLine("Progress", statusInfo, fmt.Sprintf("%d%% (pair %d of %d)", m.Percent, pairNumber(m), m.TotalPairs), colorize),
	}
	if m.CurrentPair != "" && m.Running {
		lines = append(lines, renderStatusLine("Current pair", statusInfo, fmt.Sprintf("%s (%.0f%%)", m.CurrentPair, m.PairPercent), colorize))
	}
	if m.Message != "" {
		lines = append(lines, renderStatusLine("Message", statusInfo, m.Message, colorize))
	}
	if m.OutputDir != "" {
		lines = append(lines, renderStatusLine("Output", statusInfo, m.OutputDir, colorize))
	}
	for _, f := range m.Failures {
		lines = append(lines, renderStatusLine(fmt.Sprintf("Pair %d", f.Index+1), statusError, f.Error, colorize))
	}
	printSection(w, "Merge", colorize, lines)
}

func pairNumber(m api.MergeStatus) int {
	if m.TotalPairs == 0 {
		return 0
	}
	n := m.CurrentIndex + 1
	if n > m.TotalPairs {
		n = m.TotalPairs
	}
	return n
}

func newJobEventsCommand(ctx *commandContext) *cobra.Command {
	var since int64
	var follow bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print batch events from the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if since < 0 {
				return fmt.Errorf("--since must be >= 0")
			}
			if interval <= 0 {
				interval = time.Second
			}
			sigCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				cursor := since
				for {
					resp, err := client.Events(cursor)
					if err != nil {
						return err
					}
					for _, e := range resp.Events {
						fmt.Fprintln(out, formatAPIEvent(e))
					}
					cursor = resp.Next
					if !follow {
						return nil
					}
					select {
					case <-sigCtx.Done():
						return nil
					case <-time.After(interval):
					}
				}
			})
		},
	}
	cmd.Flags().Int64Var(&since, "since", 0, "Only show events after this sequence number")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling for new events")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval with --follow")
	return cmd
}

func formatAPIEvent(e api.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s %s", e.Sequence, e.Timestamp, e.Type)
	if e.PairIndex >= 0 {
		fmt.Fprintf(&b, " pair=%d", e.PairIndex+1)
	}
	for _, part := range []string{e.Message, e.Output, e.Error} {
		if part != "" {
			b.WriteString(" ")
			b.WriteString(part)
		}
	}
	return b.String()
}

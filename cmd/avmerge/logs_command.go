package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"avmerge/internal/logstream"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var filters logstream.Filters

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		Long: "Show the daemon log. The running daemon serves the log over its socket;\n" +
			"when it is offline the log file is read directly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines <= 0 {
				return fmt.Errorf("--lines must be positive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sigCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			var source logstream.Source = logstream.FileSource{Path: cfg.LogPath()}
			if client, err := ctx.dialClient(); err == nil {
				defer client.Close()
				source = logstream.IPCSource{Client: client}
			}

			out := cmd.OutOrStdout()
			printed, err := logstream.Stream(sigCtx, source, logstream.Options{
				Lines:   lines,
				Follow:  follow,
				Filters: filters,
			}, func(line string) {
				fmt.Fprintln(out, line)
			})
			if err != nil {
				return err
			}
			if !printed && !follow {
				fmt.Fprintln(cmd.ErrOrStderr(), "No log lines")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new log lines")
	cmd.Flags().StringVar(&filters.Component, "component", "", "Only lines from this component (runner, daemon, watcher, ...)")
	cmd.Flags().StringVar(&filters.JobID, "job", "", "Only lines for this job ID")
	cmd.Flags().StringVar(&filters.Search, "grep", "", "Only lines containing this text (case-insensitive)")
	return cmd
}

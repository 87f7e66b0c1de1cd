package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"avmerge/internal/api"
	"avmerge/internal/daemonctl"
	"avmerge/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background merge daemon",
	}
	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonRestartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	return daemonCmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the avmerge daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), 10*time.Second)
			if err != nil {
				return err
			}
			printStartResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func printStartResult(w io.Writer, result daemonctl.StartResult) {
	switch result.State {
	case daemonctl.StartStateStarted:
		fmt.Fprintf(w, "Daemon started (pid %d)\n", result.PID)
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintf(w, "Daemon already running (pid %d)\n", result.PID)
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the avmerge daemon (stops any running batch)",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := stopDaemon(ctx, cmd.OutOrStdout())
			return err
		},
	}
}

// stopDaemon reports whether a daemon was running.
func stopDaemon(ctx *commandContext, w io.Writer) (bool, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return false, err
	}
	result, err := daemonctl.StopAndTerminate(ctx.socketPath(), cfg, 5*time.Second)
	if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		fmt.Fprintln(w, "Daemon is not running")
		return false, nil
	}
	if err != nil {
		return true, err
	}
	if result.ForcedKill && result.PID > 0 {
		fmt.Fprintf(w, "Daemon did not exit in time; killed pid %d\n", result.PID)
	}
	fmt.Fprintln(w, "Daemon stopped")
	return true, nil
}

func newDaemonRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the avmerge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			if _, err := stopDaemon(ctx, out); err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), 10*time.Second)
			if err != nil {
				return err
			}
			printStartResult(out, result)
			return nil
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and recent batch status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, struct {
					Offline bool             `json:"offline"`
					Status  api.DaemonStatus `json:"status"`
					Recent  []api.Batch      `json:"recent"`
				}{snap.Offline, snap.Status, snap.Recent})
			}
			printSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printSnapshot(w io.Writer, snap daemonctl.Snapshot) {
	colorize := shouldColorize(w)
	status := snap.Status

	var daemonLines []string
	if snap.Offline {
		daemonLines = append(daemonLines, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	} else {
		daemonLines = append(daemonLines,
			renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize),
			renderStatusLine("Watching", statusInfo, yesNo(status.Watching), colorize),
		)
		if len(status.Pending) > 0 {
			daemonLines = append(daemonLines, renderStatusLine("Pending", statusInfo, strings.Join(status.Pending, ", "), colorize))
		}
	}
	if status.HistoryPath != "" {
		daemonLines = append(daemonLines, renderStatusLine("History", statusInfo, status.HistoryPath, colorize))
	}
	printSection(w, "Daemon", colorize, daemonLines)
	fmt.Fprintln(w)

	printSection(w, "Dependencies", colorize, dependencyLines(status.Dependencies, colorize))

	if !snap.Offline {
		fmt.Fprintln(w)
		printMergeStatus(w, status.Merge, colorize)
	}

	fmt.Fprintln(w)
	for _, line := range renderSectionHeader("Recent Batches", colorize) {
		fmt.Fprintln(w, line)
	}
	if len(snap.Recent) == 0 {
		fmt.Fprintln(w, "No batches recorded")
		return
	}
	rows := make([][]string, 0, len(snap.Recent))
	for _, b := range snap.Recent {
		rows = append(rows, []string{b.JobID, b.State, b.StartedAt, fmt.Sprintf("%d/%d", b.Succeeded, b.TotalPairs)})
	}
	fmt.Fprint(w, renderTable(
		[]string{"Job", "State", "Started", "OK"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
		nil,
	))
}

func dependencyLines(deps []api.DependencyStatus, colorize bool) []string {
	lines := make([]string, 0, len(deps))
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Version != "" {
				message = dep.Version
			} else if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		lines = append(lines, renderStatusLine(dep.Name, checkKind(false, dep.Optional), detail, colorize))
	}
	return lines
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			socket := ""
			if ctx.socketFlag != nil {
				socket = strings.TrimSpace(*ctx.socketFlag)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				SocketPath:  socket,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&development, "dev", false, "Development logging (source locations)")
	return cmd
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{}
	if ctx.socketFlag != nil {
		opts.SocketPath = strings.TrimSpace(*ctx.socketFlag)
	}
	opts.ConfigPath = ctx.configPath()
	return opts
}

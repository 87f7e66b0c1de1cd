package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"avmerge/internal/config"
	"avmerge/internal/history"
)

var errHistoryDisabled = errors.New("history is disabled (set [history] enabled = true in the config)")

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded merge batches",
	}
	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryPruneCommand(ctx))
	historyCmd.AddCommand(newHistoryClearCommand(ctx))
	return historyCmd
}

// withStore opens the history database directly. SQLite handles the
// concurrent daemon connection.
func withStore(ctx *commandContext, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return errHistoryDisabled
	}
	store, err := history.Open(cfg)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recent batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *history.Store) error {
				batches, err := store.ListBatches(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, batches)
				}
				out := cmd.OutOrStdout()
				if len(batches) == 0 {
					fmt.Fprintln(out, "No batches recorded")
					return nil
				}
				fmt.Fprint(out, renderBatchTable(batches))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of batches to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderBatchTable(batches []history.Batch) string {
	rows := make([][]string, 0, len(batches))
	for _, b := range batches {
		took := "-"
		if d := b.Duration(); d > 0 {
			took = d.Round(time.Second).String()
		}
		rows = append(rows, []string{
			b.JobID,
			string(b.State),
			b.StartedAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(b.TotalPairs),
			strconv.Itoa(b.Succeeded),
			strconv.Itoa(b.Failed),
			took,
		})
	}
	return renderTable(
		[]string{"Job", "State", "Started", "Pairs", "OK", "Failed", "Took"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
		nil,
	)
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one batch and its pairs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *history.Store) error {
				batch, err := store.GetBatch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if batch == nil {
					return fmt.Errorf("batch %s not found", args[0])
				}
				pairs, err := store.Pairs(cmd.Context(), batch.JobID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, struct {
						Batch history.Batch  `json:"batch"`
						Pairs []history.Pair `json:"pairs"`
					}{*batch, pairs})
				}
				printBatch(cmd, *batch, pairs)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printBatch(cmd *cobra.Command, batch history.Batch, pairs []history.Pair) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	lines := []string{
		renderStatusLine("State", stateKind(string(batch.State)), string(batch.State), colorize),
		renderStatusLine("Started", statusInfo, batch.StartedAt.Local().Format(time.RFC3339), colorize),
		renderStatusLine("Pairs", statusInfo, fmt.Sprintf("%d total, %d ok, %d failed", batch.TotalPairs, batch.Succeeded, batch.Failed), colorize),
	}
	if !batch.FinishedAt.IsZero() {
		lines = append(lines, renderStatusLine("Took", statusInfo, batch.Duration().Round(time.Millisecond).String(), colorize))
	}
	if batch.OutputDir != "" {
		lines = append(lines, renderStatusLine("Output", statusInfo, batch.OutputDir, colorize))
	}
	if batch.Options != "" {
		lines = append(lines, renderStatusLine("Options", statusInfo, batch.Options, colorize))
	}
	if batch.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, batch.LastError, colorize))
	}
	printSection(out, "Batch "+batch.JobID, colorize, lines)
	if len(pairs) == 0 {
		return
	}
	fmt.Fprintln(out)
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		result := "ok"
		detail := filepath.Base(p.Output)
		if !p.Success {
			result = "failed"
			detail = p.Error
		} else if p.SocialError != "" {
			detail += " (social failed)"
		}
		rows = append(rows, []string{strconv.Itoa(p.Index + 1), p.Video, p.Audio, p.Method, result, detail})
	}
	fmt.Fprint(out, renderTable(
		[]string{"#", "Video", "Audio", "Match", "Result", "Output"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
		nil,
	))
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete batches older than a duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withStore(ctx, func(store *history.Store) error {
				removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d batch(es)\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age threshold, e.g. 720h")
	return cmd
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every recorded batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *history.Store) error {
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d batch(es)\n", removed)
				return nil
			})
		},
	}
}

// historyPath reports where batches are stored, or "" when disabled.
func historyPath(cfg *config.Config) string {
	if cfg == nil || !cfg.History.Enabled {
		return ""
	}
	return cfg.History.Path
}

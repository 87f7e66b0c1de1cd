package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"avmerge/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify ffmpeg and the configured directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			if asJSON {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				lines := make([]string, 0, len(results)+1)
				for _, r := range results {
					lines = append(lines, renderStatusLine(r.Name, checkKind(r.Passed && !r.Warning, r.Warning), r.Detail, colorize))
				}
				if path := historyPath(cfg); path != "" {
					lines = append(lines, renderStatusLine("History", statusInfo, path, colorize))
				}
				printSection(out, "Preflight", colorize, lines)
			}
			if !preflight.Passed(results) {
				return fmt.Errorf("preflight checks failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"avmerge/internal/api"
	"avmerge/internal/logging"
	"avmerge/internal/matcher"
)

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var dirs dirFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Show how audio and video files would be paired",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			audioDir, videoDir, _, err := dirs.resolve(cfg)
			if err != nil {
				return err
			}
			m := matcher.New(cfg.Matching.AudioExtensions, cfg.Matching.VideoExtensions, logging.NewNop())
			result, err := m.Match(audioDir, videoDir)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.FromMatchResult(result))
			}
			printMatches(cmd, api.FromMatchResult(result))
			if amb := result.Ambiguity(); amb != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", amb)
			}
			return nil
		},
	}
	dirs.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printMatches(cmd *cobra.Command, resp api.MatchResponse) {
	out := cmd.OutOrStdout()
	if len(resp.Matches) == 0 {
		fmt.Fprintln(out, "No pairs matched")
	} else {
		rows := make([][]string, 0, len(resp.Matches))
		for i, m := range resp.Matches {
			rows = append(rows, []string{fmt.Sprintf("%d", i+1), m.Mkv, m.Mp3, m.Method})
		}
		fmt.Fprint(out, renderTable(
			[]string{"#", "Video", "Audio", "Match"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
			nil,
		))
		fmt.Fprintf(out, "%d pair(s) by %s: %s\n", len(resp.Matches), resp.Method, resp.Reason)
	}
	unmatched := []struct {
		label string
		names []string
	}{
		{"Skipped", resp.Skipped},
		{"Excess audio", resp.ExcessAudio},
		{"Excess video", resp.ExcessVideo},
	}
	for _, u := range unmatched {
		if len(u.names) > 0 {
			fmt.Fprintf(out, "%s: %s\n", u.label, strings.Join(u.names, ", "))
		}
	}
}

package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"avmerge/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create, inspect, and validate the avmerge configuration",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool
	var toStdout bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the sample configuration",
		Long: "Write the sample configuration to ~/.config/avmerge/config.toml or --path.\n" +
			"The sample documents every section: paths, merge, matching, ffmpeg, watch,\n" +
			"history, notifications and logging.",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if toStdout {
				_, err := io.WriteString(out, config.Sample())
				return err
			}

			target, err := initTarget(targetPath)
			if err != nil {
				return err
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
				case !errors.Is(statErr, os.ErrNotExist):
					return fmt.Errorf("inspect %s: %w", target, statErr)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}

			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Next: point [paths] audio_dir and video_dir at your capture folders,")
			fmt.Fprintln(out, "then run `avmerge match` to preview the pairs.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Write the sample here instead of the default location")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "Print the sample instead of writing a file")
	return cmd
}

func initTarget(flagValue string) (string, error) {
	if strings.TrimSpace(flagValue) == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("default config path: %w", err)
		}
		return path, nil
	}
	path, err := config.ExpandPath(strings.TrimSpace(flagValue))
	if err != nil {
		return "", fmt.Errorf("config path %q: %w", flagValue, err)
	}
	return path, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and report what it resolves to",
		Long: "Load the configuration, apply environment overrides, and validate every\n" +
			"section. Output and log directories are created; missing capture\n" +
			"directories are reported but do not fail validation.",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			source := path
			if !exists {
				source = path + " (not found, defaults used)"
			}
			lines := []string{
				renderStatusLine("Config path", statusInfo, source, colorize),
				captureDirLine("Audio dir", cfg.Paths.AudioDir, colorize),
				captureDirLine("Video dir", cfg.Paths.VideoDir, colorize),
				renderStatusLine("Output dir", statusOK, cfg.Paths.OutputDir, colorize),
				renderStatusLine("Merge defaults", statusInfo, cfg.MergeOptions().String(), colorize),
				renderStatusLine("Watch", statusInfo, watchSummary(cfg.Watch), colorize),
				renderStatusLine("History", statusInfo, historySummary(cfg), colorize),
				renderStatusLine("Notifications", statusInfo, notifySummary(cfg.Notifications), colorize),
			}
			printSection(out, "Configuration", colorize, lines)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			effective := *cfg
			if effective.Paths.APIToken != "" {
				effective.Paths.APIToken = "<redacted>"
			}
			data, err := toml.Marshal(effective)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func captureDirLine(label, dir string, colorize bool) string {
	info, err := os.Stat(dir)
	switch {
	case err != nil:
		return renderStatusLine(label, statusWarn, dir+" (missing)", colorize)
	case !info.IsDir():
		return renderStatusLine(label, statusWarn, dir+" (not a directory)", colorize)
	default:
		return renderStatusLine(label, statusOK, dir, colorize)
	}
}

func watchSummary(w config.Watch) string {
	switch {
	case !w.Enabled:
		return "disabled"
	case w.AutoMerge:
		return fmt.Sprintf("enabled, auto-merge after %ds", w.SettleSeconds)
	default:
		return "enabled"
	}
}

func historySummary(cfg *config.Config) string {
	if path := historyPath(cfg); path != "" {
		return path
	}
	return "disabled"
}

func notifySummary(n config.Notifications) string {
	if n.NtfyTopic == "" {
		return "disabled"
	}
	target := n.NtfyTopic
	if u, err := url.Parse(n.NtfyTopic); err == nil && u.Host != "" {
		target = u.Host + u.Path
	}
	if !n.OnSuccess {
		return "ntfy " + target + " (failures and stops only)"
	}
	return "ntfy " + target
}

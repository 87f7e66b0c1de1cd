package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"avmerge/internal/options"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	AudioDir  string `toml:"audio_dir"`
	VideoDir  string `toml:"video_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Merge holds the default option set applied when a caller omits a value.
type Merge struct {
	ReplaceAudio      bool   `toml:"replace_audio"`
	KeepOriginalTrack bool   `toml:"keep_original_track"`
	Normalize         bool   `toml:"normalize"`
	AudioCodec        string `toml:"audio_codec"`
	VideoCodec        string `toml:"video_codec"`
	OutputFormat      string `toml:"output_format"`
	Social            bool   `toml:"social"`
	SocialWidth       int    `toml:"social_width"`
	SocialHeight      int    `toml:"social_height"`
	SocialFormat      string `toml:"social_format"`
}

// Matching controls which files the matcher considers.
type Matching struct {
	AudioExtensions []string `toml:"audio_extensions"`
	VideoExtensions []string `toml:"video_extensions"`
}

// FFmpeg locates the external transcoder.
type FFmpeg struct {
	Binary           string `toml:"binary"`
	FFprobeBinary    string `toml:"ffprobe_binary"`
	KillGraceSeconds int    `toml:"kill_grace_seconds"`
}

// Watch configures the capture directory watcher.
type Watch struct {
	Enabled       bool `toml:"enabled"`
	AutoMerge     bool `toml:"auto_merge"`
	SettleSeconds int  `toml:"settle_seconds"`
}

// History configures the optional job history database.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Notifications configures ntfy delivery of batch outcomes. An empty topic
// disables notifications.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	OnSuccess             bool   `toml:"on_success"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Config encapsulates all configuration values for avmerge.
//
// Configuration sections by subsystem:
//   - Paths: capture/output directories, log directory, API bind address
//   - Merge: default option set for merges
//   - Matching: audio and video file extensions
//   - FFmpeg: transcoder and probe binaries
//   - Watch: directory watcher and auto-merge
//   - History: SQLite job history
//   - Notifications: ntfy topic for batch outcomes
//   - Logging: log format, level, and optional extra file
type Config struct {
	Paths         Paths         `toml:"paths"`
	Merge         Merge         `toml:"merge"`
	Matching      Matching      `toml:"matching"`
	FFmpeg        FFmpeg        `toml:"ffmpeg"`
	Watch         Watch         `toml:"watch"`
	History       History       `toml:"history"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/avmerge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("avmerge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes into. Capture
// directories are left alone; a missing capture directory is a user error the
// matcher reports.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.History.Enabled && strings.TrimSpace(c.History.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(c.History.Path), 0o755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}
	return nil
}

// MergeOptions converts the [merge] section into an option set. Callers should
// rely on Validate having accepted the values.
func (c *Config) MergeOptions() options.OptionSet {
	set := options.OptionSet{
		ReplaceAudio:      c.Merge.ReplaceAudio,
		KeepOriginalTrack: c.Merge.KeepOriginalTrack,
		Normalize:         c.Merge.Normalize,
		AudioCodec:        options.AudioCodec(c.Merge.AudioCodec),
		VideoCodec:        options.VideoCodec(c.Merge.VideoCodec),
		OutputFormat:      options.Format(c.Merge.OutputFormat),
	}
	if c.Merge.Social {
		set.Social = &options.SocialProfile{
			Width:  c.Merge.SocialWidth,
			Height: c.Merge.SocialHeight,
			Format: options.Format(c.Merge.SocialFormat),
		}
	}
	return set
}

// FFmpegBinary returns the transcoder executable name or path.
func (c *Config) FFmpegBinary() string {
	if b := strings.TrimSpace(c.FFmpeg.Binary); b != "" {
		return b
	}
	return defaultFFmpegBinary
}

// FFprobeBinary returns the ffprobe executable used for duration probing.
func (c *Config) FFprobeBinary() string {
	if b := strings.TrimSpace(c.FFmpeg.FFprobeBinary); b != "" {
		return b
	}
	return defaultFFprobeBinary
}

// SocketPath returns the daemon's JSON-RPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "avmerge.sock")
}

// LockPath returns the daemon's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "avmerged.lock")
}

// LogPath returns the main log file written by the daemon and CLI.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "avmerge.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// Sample returns the embedded sample configuration.
func Sample() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

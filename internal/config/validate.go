package config

import (
	"errors"
	"fmt"
	"strings"

	"avmerge/internal/options"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMerge(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateFFmpeg(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateMerge() error {
	if !options.AudioCodec(c.Merge.AudioCodec).Valid() {
		return fmt.Errorf("merge.audio_codec: unsupported value %q", c.Merge.AudioCodec)
	}
	if !options.VideoCodec(c.Merge.VideoCodec).Valid() {
		return fmt.Errorf("merge.video_codec: unsupported value %q", c.Merge.VideoCodec)
	}
	if !options.Format(c.Merge.OutputFormat).Valid() {
		return fmt.Errorf("merge.output_format: unsupported value %q", c.Merge.OutputFormat)
	}
	if !options.Format(c.Merge.SocialFormat).Valid() {
		return fmt.Errorf("merge.social_format: unsupported value %q", c.Merge.SocialFormat)
	}
	if c.Merge.Social {
		if err := c.MergeOptions().Validate(); err != nil {
			return fmt.Errorf("merge: %w", err)
		}
	}
	return nil
}

func (c *Config) validateMatching() error {
	audio := make(map[string]struct{}, len(c.Matching.AudioExtensions))
	for _, ext := range c.Matching.AudioExtensions {
		audio[ext] = struct{}{}
	}
	for _, ext := range c.Matching.VideoExtensions {
		if _, ok := audio[ext]; ok {
			return fmt.Errorf("matching: extension %q listed as both audio and video", ext)
		}
	}
	return nil
}

func (c *Config) validateFFmpeg() error {
	if c.FFmpeg.KillGraceSeconds < 0 {
		return errors.New("ffmpeg.kill_grace_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateWatch() error {
	if c.Watch.SettleSeconds < 0 {
		return errors.New("watch.settle_seconds must not be negative")
	}
	if c.Watch.AutoMerge && !c.Watch.Enabled {
		return errors.New("watch.auto_merge requires watch.enabled")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeoutSeconds < 0 {
		return errors.New("notifications.request_timeout_seconds must not be negative")
	}
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic: %q must be an http(s) URL", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

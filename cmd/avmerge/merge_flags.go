package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"avmerge/internal/config"
	"avmerge/internal/options"
)

// dirFlags override the configured capture and output directories.
type dirFlags struct {
	audio  string
	video  string
	output string
}

func (f *dirFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.audio, "audio-dir", "", "Directory holding audio recordings (default from config)")
	cmd.Flags().StringVar(&f.video, "video-dir", "", "Directory holding video captures (default from config)")
	cmd.Flags().StringVar(&f.output, "output-dir", "", "Directory merged files are written to (default from config)")
}

// resolve fills unset directories from cfg and expands "~".
func (f dirFlags) resolve(cfg *config.Config) (audio, video, output string, err error) {
	pick := func(flag, fallback string) (string, error) {
		if strings.TrimSpace(flag) == "" {
			return fallback, nil
		}
		return config.ExpandPath(flag)
	}
	if audio, err = pick(f.audio, cfg.Paths.AudioDir); err != nil {
		return "", "", "", err
	}
	if video, err = pick(f.video, cfg.Paths.VideoDir); err != nil {
		return "", "", "", err
	}
	if output, err = pick(f.output, cfg.Paths.OutputDir); err != nil {
		return "", "", "", err
	}
	return audio, video, output, nil
}

// optionFlags collect merge option overrides. Only flags the user set are
// forwarded so configured defaults still apply.
type optionFlags struct {
	replaceAudio bool
	keepOriginal bool
	normalize    bool
	social       bool
	audioCodec   string
	videoCodec   string
	format       string
	set          []string
}

func (f *optionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVar(&f.replaceAudio, "replace-audio", false, "Replace the video's audio instead of adding a track")
	flags.BoolVar(&f.keepOriginal, "keep-original", true, "Keep the original audio as a second track")
	flags.BoolVar(&f.normalize, "normalize", false, "Loudness-normalize the new audio")
	flags.BoolVar(&f.social, "social", false, "Also produce a resized social-media variant")
	flags.StringVar(&f.audioCodec, "audio-codec", "", "Audio codec: aac, mp3 or copy")
	flags.StringVar(&f.videoCodec, "video-codec", "", "Video codec: copy, h264 or hevc")
	flags.StringVar(&f.format, "format", "", "Output container: mp4, mov or webm")
	flags.StringArrayVar(&f.set, "set", nil, "Raw option override as key=value (repeatable)")
}

func (f *optionFlags) raw(cmd *cobra.Command) (map[string]string, error) {
	flags := cmd.Flags()
	raw := make(map[string]string)
	boolFlags := []struct {
		name string
		key  string
		val  bool
	}{
		{"replace-audio", options.KeyReplaceAudio, f.replaceAudio},
		{"keep-original", options.KeyKeepOriginal, f.keepOriginal},
		{"normalize", options.KeyNormalize, f.normalize},
		{"social", options.KeySocial, f.social},
	}
	for _, b := range boolFlags {
		if flags.Changed(b.name) {
			raw[b.key] = strconv.FormatBool(b.val)
		}
	}
	stringFlags := []struct {
		name string
		key  string
		val  string
	}{
		{"audio-codec", options.KeyAudioCodec, f.audioCodec},
		{"video-codec", options.KeyVideoCodec, f.videoCodec},
		{"format", options.KeyOutputFormat, f.format},
	}
	for _, s := range stringFlags {
		if flags.Changed(s.name) {
			raw[s.key] = s.val
		}
	}
	for _, kv := range f.set {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --set value %q (want key=value)", kv)
		}
		raw[strings.TrimSpace(key)] = value
	}
	return raw, nil
}

func (f *optionFlags) resolve(cmd *cobra.Command, cfg *config.Config) (options.OptionSet, error) {
	raw, err := f.raw(cmd)
	if err != nil {
		return options.OptionSet{}, err
	}
	return options.Parse(raw, cfg.MergeOptions())
}

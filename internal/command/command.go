package command

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"avmerge/internal/matcher"
	"avmerge/internal/options"
	"avmerge/internal/services"
)

const (
	encoderCopy = "copy"
	encoderX264 = "libx264"
	encoderX265 = "libx265"
	encoderVP9  = "libvpx-vp9"
	encoderAAC  = "aac"
	encoderMP3  = "libmp3lame"
	encoderOpus = "libopus"

	loudnormFilter = "loudnorm"
)

// Adjustment records a codec choice the builder overrode.
type Adjustment struct {
	Field  string `json:"field"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

func (a Adjustment) String() string {
	return fmt.Sprintf("%s %s -> %s (%s)", a.Field, a.From, a.To, a.Reason)
}

// Invocation is one fully specified ffmpeg run. Args excludes the binary.
type Invocation struct {
	Args        []string     `json:"args"`
	Output      string       `json:"output"`
	Format      string       `json:"format"`
	Social      bool         `json:"social,omitempty"`
	Adjustments []Adjustment `json:"adjustments,omitempty"`
}

// CommandLine renders the invocation for display, quoting arguments that
// contain shell metacharacters.
func (inv Invocation) CommandLine(binary string) string {
	parts := make([]string, 0, len(inv.Args)+1)
	parts = append(parts, quote(binary))
	for _, arg := range inv.Args {
		parts = append(parts, quote(arg))
	}
	return strings.Join(parts, " ")
}

// OutputPath returns where the primary merge for pair is written.
func OutputPath(pair matcher.Pair, format options.Format, outputDir string) string {
	stem := pair.Video.Stem
	ext := format.Extension()
	out := filepath.Join(outputDir, stem+ext)
	if samePath(out, pair.Video.Path) || samePath(out, pair.Audio.Path) {
		out = filepath.Join(outputDir, stem+"_merged"+ext)
	}
	return out
}

// SocialOutputPath returns where the social variant for pair is written.
func SocialOutputPath(pair matcher.Pair, format options.Format, outputDir string) string {
	return filepath.Join(outputDir, pair.Video.Stem+"_social"+format.Extension())
}

// Build produces the primary merge invocation. Invalid options fail with an
// error matching services.ErrConfiguration.
func Build(pair matcher.Pair, opts options.OptionSet, outputDir string) (Invocation, error) {
	if err := opts.Validate(); err != nil {
		return Invocation{}, err
	}
	if strings.TrimSpace(pair.Video.Path) == "" || strings.TrimSpace(pair.Audio.Path) == "" {
		return Invocation{}, services.Wrap(services.ErrConfiguration, "command", "build", "pair is missing an input path", nil)
	}

	format := opts.OutputFormat
	inv := Invocation{
		Output: OutputPath(pair, format, outputDir),
		Format: string(format),
	}

	videoEnc := videoEncoder(opts.VideoCodec)
	audioEnc := audioEncoder(opts.AudioCodec)
	originalEnc := encoderCopy

	if format == options.FormatWebM {
		if videoEnc != encoderVP9 {
			inv.adjust("video_codec", videoEnc, encoderVP9, "webm requires VP9 video")
			videoEnc = encoderVP9
		}
		if audioEnc != encoderOpus {
			inv.adjust("audio_codec", audioEnc, encoderOpus, "webm requires Opus audio")
			audioEnc = encoderOpus
		}
		originalEnc = encoderOpus
	}
	if opts.Normalize && audioEnc == encoderCopy {
		inv.adjust("audio_codec", encoderCopy, encoderAAC, "loudness normalization requires re-encoding")
		audioEnc = encoderAAC
	}

	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", pair.Video.Path,
		"-i", pair.Audio.Path,
		"-map", "0:v:0",
		"-map", "1:a:0",
	}
	switch {
	case opts.ReplaceAudio:
	case opts.KeepOriginalTrack:
		args = append(args, "-map", "0:a?")
	default:
		args = append(args, "-map", "-0:a")
	}

	args = append(args, "-c:v", videoEnc)
	if opts.VideoCodec == options.VideoHEVC && format != options.FormatWebM {
		args = append(args, "-tag:v", "hvc1")
	}
	// The stream-wide codec covers every kept original track; -c:a:0 then
	// overrides it for the added track.
	if opts.KeepsOriginal() {
		args = append(args, "-c:a", originalEnc)
	}
	args = append(args, "-c:a:0", audioEnc)
	if opts.Normalize {
		args = append(args, "-filter:a:0", loudnormFilter)
	}
	args = append(args, containerArgs(format)...)
	args = append(args, inv.Output)

	inv.Args = args
	return inv, nil
}

// BuildSocial derives the resized social-media variant from a primary
// invocation. It reads the primary's output as its only input.
func BuildSocial(pair matcher.Pair, primary Invocation, opts options.OptionSet, outputDir string) (Invocation, error) {
	if opts.Social == nil {
		return Invocation{}, services.Wrap(services.ErrConfiguration, "command", "build_social", "no social profile configured", nil)
	}
	if err := opts.Validate(); err != nil {
		return Invocation{}, err
	}
	if strings.TrimSpace(primary.Output) == "" {
		return Invocation{}, services.Wrap(services.ErrConfiguration, "command", "build_social", "primary invocation has no output", nil)
	}

	profile := *opts.Social
	format := profile.Format
	inv := Invocation{
		Output: SocialOutputPath(pair, format, outputDir),
		Format: string(format),
		Social: true,
	}

	videoEnc := encoderX264
	if opts.VideoCodec == options.VideoHEVC {
		videoEnc = encoderX265
	}
	audioEnc := encoderCopy
	switch {
	case format == options.FormatWebM:
		videoEnc = encoderVP9
		if options.Format(primary.Format) != options.FormatWebM {
			audioEnc = encoderOpus
		}
	case options.Format(primary.Format) == options.FormatWebM:
		inv.adjust("audio_codec", encoderOpus, encoderAAC, fmt.Sprintf("%s social output cannot carry Opus from the webm primary", format))
		audioEnc = encoderAAC
	}

	w := strconv.Itoa(profile.Width)
	h := strconv.Itoa(profile.Height)
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", primary.Output,
		"-map", "0:v:0",
		"-map", "0:a?",
		"-vf", "scale=" + w + ":" + h + ":force_original_aspect_ratio=increase,crop=" + w + ":" + h,
		"-c:v", videoEnc,
		"-c:a", audioEnc,
	}
	args = append(args, containerArgs(format)...)
	args = append(args, inv.Output)

	inv.Args = args
	return inv, nil
}

// Plan returns the primary invocation followed by the social variant when a
// social profile is set.
func Plan(pair matcher.Pair, opts options.OptionSet, outputDir string) ([]Invocation, error) {
	primary, err := Build(pair, opts, outputDir)
	if err != nil {
		return nil, err
	}
	plan := []Invocation{primary}
	if opts.Social != nil {
		social, err := BuildSocial(pair, primary, opts, outputDir)
		if err != nil {
			return nil, err
		}
		plan = append(plan, social)
	}
	return plan, nil
}

func (inv *Invocation) adjust(field, from, to, reason string) {
	inv.Adjustments = append(inv.Adjustments, Adjustment{Field: field, From: from, To: to, Reason: reason})
}

func videoEncoder(codec options.VideoCodec) string {
	switch codec {
	case options.VideoH264:
		return encoderX264
	case options.VideoHEVC:
		return encoderX265
	default:
		return encoderCopy
	}
}

func audioEncoder(codec options.AudioCodec) string {
	switch codec {
	case options.AudioMP3:
		return encoderMP3
	case options.AudioCopy:
		return encoderCopy
	default:
		return encoderAAC
	}
}

func containerArgs(format options.Format) []string {
	switch format {
	case options.FormatMP4, options.FormatMOV:
		return []string{"-movflags", "+faststart", "-f", string(format)}
	default:
		return []string{"-f", string(format)}
	}
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return filepath.Clean(a) == filepath.Clean(b)
}

func quote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t\n'\"\\$`!*?[]{}()<>|&;#~") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

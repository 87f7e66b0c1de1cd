package options

import (
	"errors"
	"fmt"
	"strings"

	"avmerge/internal/services"
)

// AudioCodec selects how the new audio track is encoded.
type AudioCodec string

const (
	AudioAAC  AudioCodec = "aac"
	AudioMP3  AudioCodec = "mp3"
	AudioCopy AudioCodec = "copy"
)

// VideoCodec selects how the video stream is encoded.
type VideoCodec string

const (
	VideoCopy VideoCodec = "copy"
	VideoH264 VideoCodec = "h264"
	VideoHEVC VideoCodec = "hevc"
)

// Format is an output container.
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
	FormatMOV  Format = "mov"
)

const (
	DefaultSocialWidth  = 1080
	DefaultSocialHeight = 1080
)

// Valid reports whether c is a recognised audio codec.
func (c AudioCodec) Valid() bool {
	switch c {
	case AudioAAC, AudioMP3, AudioCopy:
		return true
	}
	return false
}

// Valid reports whether c is a recognised video codec.
func (c VideoCodec) Valid() bool {
	switch c {
	case VideoCopy, VideoH264, VideoHEVC:
		return true
	}
	return false
}

// Valid reports whether f is a supported container.
func (f Format) Valid() bool {
	switch f {
	case FormatMP4, FormatWebM, FormatMOV:
		return true
	}
	return false
}

// Extension returns the file extension for the container, including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// SocialProfile describes the resized social-media variant.
type SocialProfile struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format Format `json:"format"`
}

// OptionSet describes how a pair is merged. Treat values as immutable; use
// Clone before handing a set to another goroutine. KeepOriginalTrack is
// ignored when ReplaceAudio is true.
type OptionSet struct {
	ReplaceAudio      bool           `json:"replace_audio"`
	KeepOriginalTrack bool           `json:"keep_original_track"`
	Normalize         bool           `json:"normalize"`
	AudioCodec        AudioCodec     `json:"audio_codec"`
	VideoCodec        VideoCodec     `json:"video_codec"`
	OutputFormat      Format         `json:"output_format"`
	Social            *SocialProfile `json:"social,omitempty"`
}

// Default returns the option set used when a caller supplies nothing.
func Default() OptionSet {
	return OptionSet{
		KeepOriginalTrack: true,
		AudioCodec:        AudioAAC,
		VideoCodec:        VideoCopy,
		OutputFormat:      FormatMP4,
	}
}

// DefaultSocial returns the social profile applied when the social flag is set
// without explicit dimensions.
func DefaultSocial() SocialProfile {
	return SocialProfile{Width: DefaultSocialWidth, Height: DefaultSocialHeight, Format: FormatMP4}
}

// Clone returns a deep copy.
func (o OptionSet) Clone() OptionSet {
	out := o
	if o.Social != nil {
		social := *o.Social
		out.Social = &social
	}
	return out
}

// KeepsOriginal reports whether the video's own audio is carried into the output.
func (o OptionSet) KeepsOriginal() bool {
	return !o.ReplaceAudio && o.KeepOriginalTrack
}

// Validate checks every field and reports all problems at once. The returned
// error matches services.ErrConfiguration.
func (o OptionSet) Validate() error {
	var problems []error
	if !o.AudioCodec.Valid() {
		problems = append(problems, fmt.Errorf("audio codec: unsupported value %q (want aac, mp3, or copy)", o.AudioCodec))
	}
	if !o.VideoCodec.Valid() {
		problems = append(problems, fmt.Errorf("video codec: unsupported value %q (want copy, h264, or hevc)", o.VideoCodec))
	}
	if !o.OutputFormat.Valid() {
		problems = append(problems, fmt.Errorf("output format: unsupported value %q (want mp4, webm, or mov)", o.OutputFormat))
	}
	if s := o.Social; s != nil {
		if !s.Format.Valid() {
			problems = append(problems, fmt.Errorf("social format: unsupported value %q (want mp4, webm, or mov)", s.Format))
		}
		if s.Width <= 0 || s.Height <= 0 {
			problems = append(problems, fmt.Errorf("social size: %dx%d must be positive", s.Width, s.Height))
		} else if s.Width%2 != 0 || s.Height%2 != 0 {
			problems = append(problems, fmt.Errorf("social size: %dx%d must use even dimensions", s.Width, s.Height))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "options", "validate", "", errors.Join(problems...))
}

// String renders a compact summary for log lines.
func (o OptionSet) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "audio=%s video=%s format=%s", o.AudioCodec, o.VideoCodec, o.OutputFormat)
	switch {
	case o.ReplaceAudio:
		b.WriteString(" track=replace")
	case o.KeepOriginalTrack:
		b.WriteString(" track=add+keep")
	default:
		b.WriteString(" track=add")
	}
	if o.Normalize {
		b.WriteString(" normalize")
	}
	if o.Social != nil {
		fmt.Fprintf(&b, " social=%dx%d/%s", o.Social.Width, o.Social.Height, o.Social.Format)
	}
	return b.String()
}

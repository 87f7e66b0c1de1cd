package options

import (
	"fmt"
	"strconv"
	"strings"

	"avmerge/internal/services"
)

// Raw keys accepted by Parse. Lookups ignore case, underscores, and hyphens,
// so "replace_audio", "replace-audio", and "replaceAudio" are equivalent.
const (
	KeyReplaceAudio = "replace_audio"
	KeyKeepOriginal = "keep_original"
	KeyNormalize    = "normalize"
	KeyAudioCodec   = "audio_codec"
	KeyVideoCodec   = "video_codec"
	KeyOutputFormat = "output_format"
	KeySocial       = "social"
	KeySocialWidth  = "social_width"
	KeySocialHeight = "social_height"
	KeySocialFormat = "social_format"
)

var keyAliases = map[string]string{
	"replace":           KeyReplaceAudio,
	"replaceaudio":      KeyReplaceAudio,
	"keep":              KeyKeepOriginal,
	"keeporiginal":      KeyKeepOriginal,
	"keeporiginaltrack": KeyKeepOriginal,
	"normalize":         KeyNormalize,
	"normalizeaudio":    KeyNormalize,
	"audiocodec":        KeyAudioCodec,
	"videocodec":        KeyVideoCodec,
	"outputformat":      KeyOutputFormat,
	"format":            KeyOutputFormat,
	"social":            KeySocial,
	"socialmedia":       KeySocial,
	"socialwidth":       KeySocialWidth,
	"socialheight":      KeySocialHeight,
	"socialformat":      KeySocialFormat,
}

// CanonicalKey maps a raw key to its canonical form. Unknown keys return "".
func CanonicalKey(raw string) string {
	folded := strings.ToLower(strings.TrimSpace(raw))
	folded = strings.NewReplacer("_", "", "-", "", " ", "").Replace(folded)
	return keyAliases[folded]
}

// Parse overlays raw key/value pairs on base and validates the result. Unknown
// keys are ignored so callers can pass whole form payloads. Social dimensions
// only take effect when the social flag resolves to true.
func Parse(raw map[string]string, base OptionSet) (OptionSet, error) {
	out := base.Clone()
	values := make(map[string]string, len(raw))
	for key, value := range raw {
		if canonical := CanonicalKey(key); canonical != "" {
			values[canonical] = strings.TrimSpace(value)
		}
	}

	var err error
	if out.ReplaceAudio, err = boolValue(values, KeyReplaceAudio, out.ReplaceAudio); err != nil {
		return OptionSet{}, err
	}
	if out.KeepOriginalTrack, err = boolValue(values, KeyKeepOriginal, out.KeepOriginalTrack); err != nil {
		return OptionSet{}, err
	}
	if out.Normalize, err = boolValue(values, KeyNormalize, out.Normalize); err != nil {
		return OptionSet{}, err
	}
	if v, ok := values[KeyAudioCodec]; ok && v != "" {
		out.AudioCodec = AudioCodec(strings.ToLower(v))
	}
	if v, ok := values[KeyVideoCodec]; ok {
		switch lower := strings.ToLower(v); lower {
		case "", "none":
			out.VideoCodec = VideoCopy
		default:
			out.VideoCodec = VideoCodec(lower)
		}
	}
	if v, ok := values[KeyOutputFormat]; ok && v != "" {
		out.OutputFormat = Format(strings.ToLower(v))
	}

	social, err := boolValue(values, KeySocial, out.Social != nil)
	if err != nil {
		return OptionSet{}, err
	}
	if social {
		profile := DefaultSocial()
		if out.Social != nil {
			profile = *out.Social
		}
		if profile.Width, err = intValue(values, KeySocialWidth, profile.Width); err != nil {
			return OptionSet{}, err
		}
		if profile.Height, err = intValue(values, KeySocialHeight, profile.Height); err != nil {
			return OptionSet{}, err
		}
		if v, ok := values[KeySocialFormat]; ok && v != "" {
			profile.Format = Format(strings.ToLower(v))
		}
		out.Social = &profile
	} else {
		out.Social = nil
	}

	if err := out.Validate(); err != nil {
		return OptionSet{}, err
	}
	return out, nil
}

// ParseBool accepts the spellings HTML forms and CLIs commonly send.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "", "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", value)
}

func boolValue(values map[string]string, key string, fallback bool) (bool, error) {
	v, ok := values[key]
	if !ok {
		return fallback, nil
	}
	parsed, err := ParseBool(v)
	if err != nil {
		return false, services.Wrap(services.ErrConfiguration, "options", "parse", key, err)
	}
	return parsed, nil
}

func intValue(values map[string]string, key string, fallback int) (int, error) {
	v, ok := values[key]
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "options", "parse", key, fmt.Errorf("invalid integer %q", v))
	}
	return parsed, nil
}

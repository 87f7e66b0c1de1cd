package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"avmerge/internal/options"
	"avmerge/internal/services"
)

// maxRequestBytes bounds decoded request bodies.
const maxRequestBytes = 1 << 20

// Dirs names the directories a batch reads from and writes to.
type Dirs struct {
	Audio  string `json:"audio"`
	Video  string `json:"video"`
	Output string `json:"output"`
}

// Request is a start or find-matches payload. Dirs left empty fall back to
// configured defaults; Options holds raw option values keyed as sent.
type Request struct {
	Dirs    Dirs              `json:"dirs"`
	Options map[string]string `json:"options,omitempty"`
}

var dirAliases = map[string]string{
	"mp3dir":    "audio",
	"audiodir":  "audio",
	"audio":     "audio",
	"mkvdir":    "video",
	"videodir":  "video",
	"video":     "video",
	"outdir":    "output",
	"outputdir": "output",
	"output":    "output",
}

// DecodeRequest reads a flat JSON object. Directory keys are recognised in
// camelCase and snake_case; every other key is kept as a raw option value.
// An empty body yields an empty Request.
func DecodeRequest(r io.Reader) (Request, error) {
	var raw map[string]any
	dec := json.NewDecoder(io.LimitReader(r, maxRequestBytes))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return Request{}, nil
		}
		return Request{}, services.Wrap(services.ErrConfiguration, "api", "decode request", "invalid JSON body", err)
	}
	return RequestFromMap(raw)
}

// RequestFromMap builds a Request from already-decoded values.
func RequestFromMap(raw map[string]any) (Request, error) {
	req := Request{Options: make(map[string]string)}
	for key, value := range raw {
		str, err := stringValue(value)
		if err != nil {
			return Request{}, services.Wrap(services.ErrConfiguration, "api", "decode request", key, err)
		}
		folded := strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(key)))
		switch dirAliases[folded] {
		case "audio":
			req.Dirs.Audio = str
		case "video":
			req.Dirs.Video = str
		case "output":
			req.Dirs.Output = str
		default:
			req.Options[key] = str
		}
	}
	return req, nil
}

// Resolve fills empty directories from defaults and overlays the raw options
// on base. Option errors match services.ErrConfiguration.
func (r Request) Resolve(defaults Dirs, base options.OptionSet) (Dirs, options.OptionSet, error) {
	dirs := Dirs{
		Audio:  firstNonEmpty(r.Dirs.Audio, defaults.Audio),
		Video:  firstNonEmpty(r.Dirs.Video, defaults.Video),
		Output: firstNonEmpty(r.Dirs.Output, defaults.Output),
	}
	opts, err := options.Parse(r.Options, base)
	if err != nil {
		return Dirs{}, options.OptionSet{}, err
	}
	return dirs, opts, nil
}

func stringValue(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

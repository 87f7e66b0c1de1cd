package matcher

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"avmerge/internal/logging"
	"avmerge/internal/media"
	"avmerge/internal/services"
)

// Method records which tier produced a pair.
type Method string

const (
	MethodName  Method = "name"
	MethodTime  Method = "time"
	MethodOrder Method = "order"
)

// Pair is one audio file matched with one video file.
type Pair struct {
	Audio  media.MediaFile `json:"audio"`
	Video  media.MediaFile `json:"video"`
	Method Method          `json:"method"`
}

// Result is the outcome of one matching run. Pairs are in processing order.
type Result struct {
	Pairs       []Pair            `json:"pairs"`
	Method      Method            `json:"method,omitempty"`
	Reason      string            `json:"reason"`
	Skipped     []media.MediaFile `json:"skipped,omitempty"`
	ExcessAudio []media.MediaFile `json:"excess_audio,omitempty"`
	ExcessVideo []media.MediaFile `json:"excess_video,omitempty"`
}

// Unpaired returns every input file that did not end up in a pair.
func (r Result) Unpaired() []media.MediaFile {
	out := make([]media.MediaFile, 0, len(r.Skipped)+len(r.ExcessAudio)+len(r.ExcessVideo))
	out = append(out, r.Skipped...)
	out = append(out, r.ExcessAudio...)
	out = append(out, r.ExcessVideo...)
	return out
}

// Ambiguity returns an *AmbiguityError describing skipped stems, or nil.
func (r Result) Ambiguity() error {
	if len(r.Skipped) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	var stems []string
	for _, f := range r.Skipped {
		if _, ok := seen[f.Stem]; ok {
			continue
		}
		seen[f.Stem] = struct{}{}
		stems = append(stems, f.Stem)
	}
	sort.Strings(stems)
	return &AmbiguityError{Stems: stems}
}

// AmbiguityError lists stems the name tier could not pair. It is reported
// alongside a successful result and never aborts matching.
type AmbiguityError struct {
	Stems []string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("ambiguous stems skipped: %s", strings.Join(e.Stems, ", "))
}

// Is lets errors.Is match services.ErrMatchingAmbiguity.
func (e *AmbiguityError) Is(target error) bool {
	return target == services.ErrMatchingAmbiguity
}

// Matcher scans capture directories and pairs their contents.
type Matcher struct {
	audioExts []string
	videoExts []string
	logger    *slog.Logger
}

// New constructs a matcher for the given extension lists.
func New(audioExts, videoExts []string, logger *slog.Logger) *Matcher {
	return &Matcher{
		audioExts: append([]string(nil), audioExts...),
		videoExts: append([]string(nil), videoExts...),
		logger:    logging.NewComponentLogger(logger, "matcher"),
	}
}

// Match scans both directories and pairs their files. It has no side effects
// beyond reading directory listings.
func (m *Matcher) Match(audioDir, videoDir string) (Result, error) {
	audio, err := media.Scan(audioDir, media.KindAudio, m.audioExts)
	if err != nil {
		return Result{}, err
	}
	video, err := media.Scan(videoDir, media.KindVideo, m.videoExts)
	if err != nil {
		return Result{}, err
	}

	result := Compute(audio, video)
	attrs := append(logging.DecisionAttrs("match_tier", string(result.Method), result.Reason),
		logging.Int("pair_count", len(result.Pairs)),
		logging.Int("audio_files", len(audio)),
		logging.Int("video_files", len(video)),
	)
	m.logger.Info("matching complete", logging.Args(attrs...)...)
	var ambiguous *AmbiguityError
	if errors.As(result.Ambiguity(), &ambiguous) {
		logging.WarnWithContext(m.logger, "ambiguous stems skipped", "match_ambiguous",
			logging.String("stems", strings.Join(ambiguous.Stems, ",")),
			logging.String(logging.FieldErrorHint, "rename duplicates so each stem is unique per directory"),
			logging.String(logging.FieldImpact, "skipped files are not merged"),
		)
	}
	if len(result.ExcessAudio)+len(result.ExcessVideo) > 0 {
		m.logger.Info("unpaired files", logging.Int("audio", len(result.ExcessAudio)), logging.Int("video", len(result.ExcessVideo)))
	}
	return result, nil
}

// Compute pairs already-discovered files. It is deterministic for a given
// input regardless of slice order.
func Compute(audio, video []media.MediaFile) Result {
	if len(audio) == 0 || len(video) == 0 {
		return Result{
			Reason:      "no candidates on one side",
			ExcessAudio: sortedByName(audio),
			ExcessVideo: sortedByName(video),
		}
	}
	if result, ok := byName(audio, video); ok {
		return result
	}
	if result, ok := byTime(audio, video); ok {
		return result
	}
	return byOrder(audio, video)
}

func byName(audio, video []media.MediaFile) (Result, bool) {
	fold := cases.Fold()
	key := func(f media.MediaFile) string { return fold.String(f.Stem) }

	audioGroups := groupBy(audio, key)
	videoGroups := groupBy(video, key)

	var stems []string
	for stem, a := range audioGroups {
		v, ok := videoGroups[stem]
		if ok && len(a) == 1 && len(v) == 1 {
			stems = append(stems, stem)
		}
	}
	if len(stems) == 0 {
		return Result{}, false
	}
	sort.Strings(stems)

	result := Result{Method: MethodName, Reason: "stems matched by name"}
	paired := make(map[string]struct{}, len(stems))
	for _, stem := range stems {
		result.Pairs = append(result.Pairs, Pair{
			Audio:  audioGroups[stem][0],
			Video:  videoGroups[stem][0],
			Method: MethodName,
		})
		paired[stem] = struct{}{}
	}

	for _, f := range sortedByName(audio) {
		stem := key(f)
		if _, ok := paired[stem]; ok {
			continue
		}
		if _, both := videoGroups[stem]; both {
			result.Skipped = append(result.Skipped, f)
		} else {
			result.ExcessAudio = append(result.ExcessAudio, f)
		}
	}
	for _, f := range sortedByName(video) {
		stem := key(f)
		if _, ok := paired[stem]; ok {
			continue
		}
		if _, both := audioGroups[stem]; both {
			result.Skipped = append(result.Skipped, f)
		} else {
			result.ExcessVideo = append(result.ExcessVideo, f)
		}
	}
	return result, true
}

func byTime(audio, video []media.MediaFile) (Result, bool) {
	if !timestampsUsable(audio, video) {
		return Result{}, false
	}
	a := sortedByName(audio)
	v := sortedByName(video)
	byCreated := func(files []media.MediaFile) {
		sort.SliceStable(files, func(i, j int) bool { return files[i].Created.Before(files[j].Created) })
	}
	byCreated(a)
	byCreated(v)
	return positional(a, v, MethodTime, "no stem matches; paired by creation time"), true
}

func byOrder(audio, video []media.MediaFile) Result {
	return positional(sortedByName(audio), sortedByName(video), MethodOrder, "creation times unavailable or identical; paired alphabetically")
}

func positional(audio, video []media.MediaFile, method Method, reason string) Result {
	n := min(len(audio), len(video))
	result := Result{Method: method, Reason: reason, Pairs: make([]Pair, 0, n)}
	for k := range n {
		result.Pairs = append(result.Pairs, Pair{Audio: audio[k], Video: video[k], Method: method})
	}
	if len(audio) > n {
		result.ExcessAudio = append([]media.MediaFile(nil), audio[n:]...)
	}
	if len(video) > n {
		result.ExcessVideo = append([]media.MediaFile(nil), video[n:]...)
	}
	return result
}

// timestampsUsable is false when any file lacks a timestamp or when every
// timestamp is identical, since ordering would then be arbitrary.
func timestampsUsable(audio, video []media.MediaFile) bool {
	var first media.MediaFile
	distinct := false
	for i, f := range append(append([]media.MediaFile(nil), audio...), video...) {
		if !f.HasTimestamp() {
			return false
		}
		if i == 0 {
			first = f
			continue
		}
		if !f.Created.Equal(first.Created) {
			distinct = true
		}
	}
	return distinct
}

func groupBy(files []media.MediaFile, key func(media.MediaFile) string) map[string][]media.MediaFile {
	groups := make(map[string][]media.MediaFile, len(files))
	for _, f := range sortedByName(files) {
		k := key(f)
		groups[k] = append(groups[k], f)
	}
	return groups
}

func sortedByName(files []media.MediaFile) []media.MediaFile {
	out := append([]media.MediaFile(nil), files...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Path < out[j].Path
	})
	return out
}

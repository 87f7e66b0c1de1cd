package job

import (
	"math"
	"time"

	"avmerge/internal/command"
	"avmerge/internal/matcher"
)

// PairResult is the outcome of one merged pair.
type PairResult struct {
	Index        int                  `json:"index"`
	Audio        string               `json:"audio"`
	Video        string               `json:"video"`
	Method       matcher.Method       `json:"method"`
	Output       string               `json:"output,omitempty"`
	SocialOutput string               `json:"social_output,omitempty"`
	Success      bool                 `json:"success"`
	Error        string               `json:"error,omitempty"`
	SocialError  string               `json:"social_error,omitempty"`
	Adjustments  []command.Adjustment `json:"adjustments,omitempty"`
	StartedAt    time.Time            `json:"started_at"`
	FinishedAt   time.Time            `json:"finished_at"`
}

// Duration reports how long the pair took.
func (r PairResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// PairFailure identifies a pair whose merge failed.
type PairFailure struct {
	Index int    `json:"index"`
	Audio string `json:"audio"`
	Video string `json:"video"`
	Error string `json:"error"`
}

// Status is a point-in-time copy of the runner state.
type Status struct {
	JobID        string        `json:"job_id,omitempty"`
	State        State         `json:"state"`
	CurrentIndex int           `json:"current_index"`
	TotalPairs   int           `json:"total_pairs"`
	Percent      int           `json:"percent"`
	PairPercent  float64       `json:"pair_percent"`
	CurrentPair  string        `json:"current_pair,omitempty"`
	Message      string        `json:"message"`
	LastError    string        `json:"last_error,omitempty"`
	Failures     []PairFailure `json:"failures,omitempty"`
	Results      []PairResult  `json:"results,omitempty"`
	OutputDir    string        `json:"output_dir,omitempty"`
	Options      string        `json:"options,omitempty"`
	StartedAt    time.Time     `json:"started_at,omitzero"`
	FinishedAt   time.Time     `json:"finished_at,omitzero"`
}

// Succeeded counts successful pairs.
func (s Status) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Success {
			n++
		}
	}
	return n
}

func (s Status) clone() Status {
	out := s
	out.Failures = append([]PairFailure(nil), s.Failures...)
	out.Results = make([]PairResult, len(s.Results))
	for i, r := range s.Results {
		r.Adjustments = append([]command.Adjustment(nil), r.Adjustments...)
		out.Results[i] = r
	}
	if len(s.Results) == 0 {
		out.Results = nil
	}
	return out
}

// batchPercent is round(current/total*100); an empty batch is 100.
func batchPercent(current, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(current) / float64(total) * 100))
}

package history

import (
	"time"

	"avmerge/internal/job"
)

// Batch is one persisted merge batch.
type Batch struct {
	JobID      string    `json:"job_id"`
	State      job.State `json:"state"`
	TotalPairs int       `json:"total_pairs"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	OutputDir  string    `json:"output_dir,omitempty"`
	Options    string    `json:"options,omitempty"`
	Message    string    `json:"message,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Duration reports the wall-clock time of a finished batch.
func (b Batch) Duration() time.Duration {
	if b.FinishedAt.IsZero() {
		return 0
	}
	return b.FinishedAt.Sub(b.StartedAt)
}

// Pair is one persisted pair outcome.
type Pair struct {
	JobID        string    `json:"job_id"`
	Index        int       `json:"index"`
	Audio        string    `json:"audio"`
	Video        string    `json:"video"`
	Method       string    `json:"method,omitempty"`
	Output       string    `json:"output,omitempty"`
	SocialOutput string    `json:"social_output,omitempty"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	SocialError  string    `json:"social_error,omitempty"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
}

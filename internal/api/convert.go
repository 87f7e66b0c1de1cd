package api

import (
	"path/filepath"
	"time"

	"avmerge/internal/deps"
	"avmerge/internal/history"
	"avmerge/internal/job"
	"avmerge/internal/matcher"
	"avmerge/internal/media"
)

// FromStatus converts a runner snapshot.
func FromStatus(s job.Status) MergeStatus {
	out := MergeStatus{
		Running:      s.State.Active(),
		State:        string(s.State),
		Message:      s.Message,
		Percent:      s.Percent,
		PairPercent:  s.PairPercent,
		CurrentIndex: s.CurrentIndex,
		TotalPairs:   s.TotalPairs,
		CurrentPair:  s.CurrentPair,
		JobID:        s.JobID,
		LastError:    s.LastError,
		OutputDir:    s.OutputDir,
		StartedAt:    formatTime(s.StartedAt),
		FinishedAt:   formatTime(s.FinishedAt),
	}
	if out.Message == "" && s.State == job.StateIdle {
		out.Message = "Ready"
	}
	for _, f := range s.Failures {
		out.Failures = append(out.Failures, PairFailure(f))
	}
	for _, r := range s.Results {
		out.Results = append(out.Results, fromPairResult(r))
	}
	return out
}

func fromPairResult(r job.PairResult) PairResult {
	out := PairResult{
		Index:        r.Index,
		Audio:        r.Audio,
		Video:        r.Video,
		Method:       string(r.Method),
		Success:      r.Success,
		Output:       r.Output,
		SocialOutput: r.SocialOutput,
		Error:        r.Error,
		SocialError:  r.SocialError,
		DurationMS:   r.Duration().Milliseconds(),
	}
	for _, adj := range r.Adjustments {
		out.Adjustments = append(out.Adjustments, adj.String())
	}
	return out
}

// FromMatchResult converts a matcher result.
func FromMatchResult(r matcher.Result) MatchResponse {
	out := MatchResponse{
		Success:     true,
		Method:      string(r.Method),
		Reason:      r.Reason,
		Matches:     make([]Match, 0, len(r.Pairs)),
		Skipped:     names(r.Skipped),
		ExcessAudio: names(r.ExcessAudio),
		ExcessVideo: names(r.ExcessVideo),
	}
	for _, p := range r.Pairs {
		out.Matches = append(out.Matches, Match{
			Audio:  p.Audio.Path,
			Video:  p.Video.Path,
			Method: string(p.Method),
			Mp3:    p.Audio.Name,
			Mkv:    p.Video.Name,
		})
	}
	return out
}

// FromEvents converts runner events and computes the next cursor.
func FromEvents(events []job.Event, since int64) EventsResponse {
	out := EventsResponse{Events: make([]Event, 0, len(events)), Next: since}
	for _, e := range events {
		out.Events = append(out.Events, Event{
			Sequence:  e.Seq,
			Timestamp: formatTime(e.Timestamp),
			JobID:     e.JobID,
			Type:      string(e.Type),
			State:     string(e.State),
			PairIndex: e.PairIndex,
			Message:   e.Message,
			Output:    e.Output,
			Error:     e.Error,
		})
		if e.Seq > out.Next {
			out.Next = e.Seq
		}
	}
	return out
}

// FromBatches converts history records.
func FromBatches(batches []history.Batch) []Batch {
	out := make([]Batch, 0, len(batches))
	for _, b := range batches {
		out = append(out, Batch{
			JobID:      b.JobID,
			State:      string(b.State),
			TotalPairs: b.TotalPairs,
			Succeeded:  b.Succeeded,
			Failed:     b.Failed,
			OutputDir:  b.OutputDir,
			Options:    b.Options,
			Message:    b.Message,
			LastError:  b.LastError,
			StartedAt:  formatTime(b.StartedAt),
			FinishedAt: formatTime(b.FinishedAt),
		})
	}
	return out
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, DependencyStatus{
			Name:        s.Name,
			Command:     s.Command,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Version:     s.Version,
			Detail:      s.Detail,
		})
	}
	return out
}

func names(files []media.MediaFile) []string {
	if len(files) == 0 {
		return nil
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, filepath.Base(f.Path))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

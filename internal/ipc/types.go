package ipc

import "avmerge/internal/api"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse mirrors the HTTP API daemon status.
type StatusResponse = api.DaemonStatus

// DependencyStatus describes availability of an external dependency.
type DependencyStatus = api.DependencyStatus

// StartRequest starts a batch. Empty directories fall back to the daemon's
// configured paths and Options uses the same keys as the HTTP API.
type StartRequest struct {
	AudioDir  string            `json:"audio_dir"`
	VideoDir  string            `json:"video_dir"`
	OutputDir string            `json:"output_dir"`
	Options   map[string]string `json:"options"`
}

func (r StartRequest) toAPI() api.Request {
	return api.Request{
		Dirs:    api.Dirs{Audio: r.AudioDir, Video: r.VideoDir, Output: r.OutputDir},
		Options: r.Options,
	}
}

// StartResponse reports whether the batch was accepted.
type StartResponse = api.StartResponse

// StopRequest stops the running batch.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse = api.StopResponse

// MatchRequest previews pairing for the given directories.
type MatchRequest = StartRequest

// MatchResponse lists proposed pairs.
type MatchResponse = api.MatchResponse

// EventsRequest fetches runner events after Since.
type EventsRequest struct {
	Since int64 `json:"since"`
}

// EventsResponse carries events and the next cursor.
type EventsResponse = api.EventsResponse

// HistoryRequest lists recorded batches.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse lists batches newest first.
type HistoryResponse = api.HistoryResponse

// LogTailRequest reads the daemon log. Offset -1 with Limit returns the last
// lines; Follow waits up to WaitMillis for new output.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

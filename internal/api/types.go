package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// MergeStatus describes the runner state in a transport-friendly format.
type MergeStatus struct {
	Running      bool          `json:"running"`
	State        string        `json:"state"`
	Message      string        `json:"message"`
	Percent      int           `json:"percent"`
	PairPercent  float64       `json:"pairPercent"`
	CurrentIndex int           `json:"currentIndex"`
	TotalPairs   int           `json:"totalPairs"`
	CurrentPair  string        `json:"currentPair,omitempty"`
	JobID        string        `json:"jobId,omitempty"`
	LastError    string        `json:"lastError,omitempty"`
	Failures     []PairFailure `json:"failures,omitempty"`
	Results      []PairResult  `json:"results,omitempty"`
	OutputDir    string        `json:"outputDir,omitempty"`
	StartedAt    string        `json:"startedAt,omitempty"`
	FinishedAt   string        `json:"finishedAt,omitempty"`
}

// PairFailure identifies a failed pair.
type PairFailure struct {
	Index int    `json:"index"`
	Audio string `json:"audio"`
	Video string `json:"video"`
	Error string `json:"error"`
}

// PairResult is the outcome of one pair.
type PairResult struct {
	Index        int      `json:"index"`
	Audio        string   `json:"audio"`
	Video        string   `json:"video"`
	Method       string   `json:"method"`
	Success      bool     `json:"success"`
	Output       string   `json:"output,omitempty"`
	SocialOutput string   `json:"socialOutput,omitempty"`
	Error        string   `json:"error,omitempty"`
	SocialError  string   `json:"socialError,omitempty"`
	Adjustments  []string `json:"adjustments,omitempty"`
	DurationMS   int64    `json:"durationMs"`
}

// StartResponse reports whether a batch was accepted.
type StartResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	JobID   string `json:"jobId,omitempty"`
	Pairs   int    `json:"pairs"`
}

// StopResponse reports the stop outcome. A stop with nothing running
// succeeds with Stopping false.
type StopResponse struct {
	Success  bool   `json:"success"`
	Stopping bool   `json:"stopping"`
	Message  string `json:"message,omitempty"`
}

// Match is one proposed pair. Mp3 and Mkv repeat the base names under the
// keys older clients read.
type Match struct {
	Audio  string `json:"audio"`
	Video  string `json:"video"`
	Method string `json:"method"`
	Mp3    string `json:"mp3"`
	Mkv    string `json:"mkv"`
}

// MatchResponse lists the pairs the matcher would merge.
type MatchResponse struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message,omitempty"`
	Method      string   `json:"method,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Matches     []Match  `json:"matches"`
	Skipped     []string `json:"skipped,omitempty"`
	ExcessAudio []string `json:"excessAudio,omitempty"`
	ExcessVideo []string `json:"excessVideo,omitempty"`
}

// Event is one runner event.
type Event struct {
	Sequence  int64  `json:"seq"`
	Timestamp string `json:"ts"`
	JobID     string `json:"jobId,omitempty"`
	Type      string `json:"type"`
	State     string `json:"state,omitempty"`
	PairIndex int    `json:"pairIndex"`
	Message   string `json:"message,omitempty"`
	Output    string `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
}

// EventsResponse carries events after a cursor. Next is the cursor for the
// following request.
type EventsResponse struct {
	Events []Event `json:"events"`
	Next   int64   `json:"next"`
}

// Batch summarizes a recorded batch.
type Batch struct {
	JobID      string `json:"jobId"`
	State      string `json:"state"`
	TotalPairs int    `json:"totalPairs"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	OutputDir  string `json:"outputDir,omitempty"`
	Options    string `json:"options,omitempty"`
	Message    string `json:"message,omitempty"`
	LastError  string `json:"lastError,omitempty"`
	StartedAt  string `json:"startedAt,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
}

// HistoryResponse lists recorded batches, newest first.
type HistoryResponse struct {
	Batches []Batch `json:"batches"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	LockFilePath string             `json:"lockFilePath"`
	HistoryPath  string             `json:"historyPath,omitempty"`
	Watching     bool               `json:"watching"`
	Pending      []string           `json:"pending,omitempty"`
	Merge        MergeStatus        `json:"merge"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

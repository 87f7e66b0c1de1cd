package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"avmerge/internal/command"
	"avmerge/internal/config"
	"avmerge/internal/history"
	"avmerge/internal/job"
	"avmerge/internal/logging"
	"avmerge/internal/matcher"
	"avmerge/internal/options"
	"avmerge/internal/services"
)

// Runner is the job runner surface the service drives.
type Runner interface {
	Start(ctx context.Context, pairs []matcher.Pair, opts options.OptionSet, outputDir string) (string, error)
	Stop()
	Status() job.Status
	Events() *job.EventBus
}

// Matcher pairs files in two directories.
type Matcher interface {
	Match(audioDir, videoDir string) (matcher.Result, error)
}

// HistoryReader lists recorded batches.
type HistoryReader interface {
	ListBatches(ctx context.Context, limit int) ([]history.Batch, error)
}

// MergeServiceConfig wires a MergeService. Context outlives individual
// requests and parents every batch the service starts.
type MergeServiceConfig struct {
	Context context.Context
	Config  *config.Config
	Runner  Runner
	Matcher Matcher
	History HistoryReader
	Logger  *slog.Logger
}

// MergeService exposes merge operations returning API DTOs.
type MergeService struct {
	ctx     context.Context
	cfg     *config.Config
	runner  Runner
	matcher Matcher
	history HistoryReader
	logger  *slog.Logger
}

// NewMergeService constructs a service. Config, Runner and Matcher are required.
func NewMergeService(cfg MergeServiceConfig) (*MergeService, error) {
	if cfg.Config == nil || cfg.Runner == nil || cfg.Matcher == nil {
		return nil, errors.New("merge service requires config, runner, and matcher")
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &MergeService{
		ctx:     ctx,
		cfg:     cfg.Config,
		runner:  cfg.Runner,
		matcher: cfg.Matcher,
		history: cfg.History,
		logger:  logger,
	}, nil
}

// Status returns the current runner status.
func (s *MergeService) Status() MergeStatus {
	return FromStatus(s.runner.Status())
}

// Start matches the requested directories and starts a batch. Failures are
// reported in the response and also returned so callers can map status codes.
func (s *MergeService) Start(req Request) (StartResponse, error) {
	if s.runner.Status().State.Active() {
		err := services.Wrap(services.ErrAlreadyRunning, "api", "start", "Already running", nil)
		return StartResponse{Message: "Already running"}, err
	}
	dirs, opts, err := s.resolve(req)
	if err != nil {
		return StartResponse{Message: err.Error()}, err
	}
	result, err := s.matcher.Match(dirs.Audio, dirs.Video)
	if err != nil {
		return StartResponse{Message: err.Error()}, err
	}
	return s.StartPairs(result.Pairs, opts, dirs.Output)
}

// StartPairs starts a batch for already-matched pairs.
func (s *MergeService) StartPairs(pairs []matcher.Pair, opts options.OptionSet, outputDir string) (StartResponse, error) {
	jobID, err := s.runner.Start(s.ctx, pairs, opts, outputDir)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, services.ErrAlreadyRunning) {
			msg = "Already running"
		}
		return StartResponse{Message: msg}, err
	}
	return StartResponse{
		Success: true,
		JobID:   jobID,
		Pairs:   len(pairs),
		Message: fmt.Sprintf("started %d pair(s)", len(pairs)),
	}, nil
}

// Stop requests cancellation of the running batch. Stopping an idle or
// finished runner is a no-op that still succeeds.
func (s *MergeService) Stop() StopResponse {
	if !s.runner.Status().State.Active() {
		return StopResponse{Success: true, Message: "Not running"}
	}
	s.runner.Stop()
	return StopResponse{Success: true, Stopping: true, Message: "Operation stopped by user"}
}

// FindMatches reports the pairs a start with the same request would merge.
func (s *MergeService) FindMatches(req Request) (MatchResponse, error) {
	dirs, _, err := s.resolve(req)
	if err != nil {
		return MatchResponse{Message: err.Error(), Matches: []Match{}}, err
	}
	result, err := s.matcher.Match(dirs.Audio, dirs.Video)
	if err != nil {
		return MatchResponse{Message: err.Error(), Matches: []Match{}}, err
	}
	resp := FromMatchResult(result)
	if amb := result.Ambiguity(); amb != nil {
		resp.Message = amb.Error()
	}
	return resp, nil
}

// Events returns runner events after the since cursor.
func (s *MergeService) Events(since int64) EventsResponse {
	return FromEvents(s.runner.Events().Since(since), since)
}

// History lists recorded batches. Without a history store it returns none.
func (s *MergeService) History(ctx context.Context, limit int) (HistoryResponse, error) {
	if s.history == nil {
		return HistoryResponse{Batches: []Batch{}}, nil
	}
	batches, err := s.history.ListBatches(ctx, limit)
	if err != nil {
		return HistoryResponse{}, err
	}
	return HistoryResponse{Batches: FromBatches(batches)}, nil
}

// PendingPairs filters out pairs whose primary output already exists in
// outputDir. Auto-merge uses this so finished work is not redone.
func PendingPairs(pairs []matcher.Pair, opts options.OptionSet, outputDir string) []matcher.Pair {
	var out []matcher.Pair
	for _, p := range pairs {
		target := command.OutputPath(p, opts.OutputFormat, outputDir)
		if _, err := os.Stat(target); err == nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *MergeService) resolve(req Request) (Dirs, options.OptionSet, error) {
	defaults := Dirs{Audio: s.cfg.Paths.AudioDir, Video: s.cfg.Paths.VideoDir, Output: s.cfg.Paths.OutputDir}
	dirs, opts, err := req.Resolve(defaults, s.cfg.MergeOptions())
	if err != nil {
		return Dirs{}, options.OptionSet{}, err
	}
	for _, field := range []*string{&dirs.Audio, &dirs.Video, &dirs.Output} {
		expanded, err := config.ExpandPath(*field)
		if err != nil {
			return Dirs{}, options.OptionSet{}, services.Wrap(services.ErrConfiguration, "api", "resolve", *field, err)
		}
		*field = expanded
	}
	for _, check := range []struct{ label, dir string }{{"audio", dirs.Audio}, {"video", dirs.Video}} {
		label, dir := check.label, check.dir
		if strings.TrimSpace(dir) == "" {
			return Dirs{}, options.OptionSet{}, services.Wrap(services.ErrConfiguration, "api", "resolve", label+" directory is required", nil)
		}
		if _, err := os.Stat(dir); err != nil {
			return Dirs{}, options.OptionSet{}, services.Wrap(services.ErrNotFound, "api", "resolve", fmt.Sprintf("%s directory '%s' does not exist", label, dir), nil)
		}
	}
	return dirs, opts, nil
}

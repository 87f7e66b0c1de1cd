package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"avmerge/internal/job"
	"avmerge/internal/services"
)

const batchColumns = "job_id, state, total_pairs, succeeded, failed, output_dir, options, message, last_error, started_at, finished_at"

const pairColumns = "job_id, pair_index, audio, video, method, output, social_output, success, error, social_error, started_at, finished_at"

var _ job.Recorder = (*Store)(nil)

// RecordBatchStarted inserts the batch row.
func (s *Store) RecordBatchStarted(ctx context.Context, status job.Status) error {
	if strings.TrimSpace(status.JobID) == "" {
		return services.Wrap(services.ErrConfiguration, "history", "record batch", "job id is empty", nil)
	}
	_, err := s.exec(ctx,
		`INSERT INTO batches (job_id, state, total_pairs, output_dir, options, message, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		status.JobID, string(status.State), status.TotalPairs,
		nullString(status.OutputDir), nullString(status.Options), nullString(status.Message),
		formatTime(status.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", status.JobID, err)
	}
	return nil
}

// RecordPair stores one pair outcome. Recording the same index twice replaces
// the earlier row.
func (s *Store) RecordPair(ctx context.Context, jobID string, result job.PairResult) error {
	_, err := s.exec(ctx,
		`INSERT OR REPLACE INTO pair_results (`+pairColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID, result.Index, result.Audio, result.Video,
		nullString(string(result.Method)), nullString(result.Output), nullString(result.SocialOutput),
		boolToInt(result.Success), nullString(result.Error), nullString(result.SocialError),
		formatTime(result.StartedAt), formatTime(result.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert pair %d of %s: %w", result.Index, jobID, err)
	}
	return nil
}

// RecordBatchFinished stores the final state and counters.
func (s *Store) RecordBatchFinished(ctx context.Context, status job.Status) error {
	res, err := s.exec(ctx,
		`UPDATE batches SET state = ?, succeeded = ?, failed = ?, message = ?, last_error = ?, finished_at = ?
		 WHERE job_id = ?`,
		string(status.State), status.Succeeded(), len(status.Failures),
		nullString(status.Message), nullString(status.LastError), formatTime(status.FinishedAt),
		status.JobID,
	)
	if err != nil {
		return fmt.Errorf("finish batch %s: %w", status.JobID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return services.Wrap(services.ErrNotFound, "history", "finish batch", "unknown job "+status.JobID, nil)
	}
	return nil
}

// ListBatches returns the most recent batches first. A limit <= 0 returns all.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches ORDER BY started_at DESC, job_id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// GetBatch returns the batch with jobID, or nil when it does not exist.
func (s *Store) GetBatch(ctx context.Context, jobID string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE job_id = ?`, jobID)
	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", jobID, err)
	}
	return &batch, nil
}

// Pairs returns the recorded pairs of a batch in index order.
func (s *Store) Pairs(ctx context.Context, jobID string) ([]Pair, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pairColumns+` FROM pair_results WHERE job_id = ? ORDER BY pair_index`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list pairs of %s: %w", jobID, err)
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		pair, err := scanPair(rows)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (Batch, error) {
	var (
		jobID      string
		state      string
		total      int
		succeeded  int
		failed     int
		outputDir  sql.NullString
		opts       sql.NullString
		message    sql.NullString
		lastError  sql.NullString
		startedRaw sql.NullString
		finishRaw  sql.NullString
	)
	if err := row.Scan(&jobID, &state, &total, &succeeded, &failed, &outputDir, &opts, &message, &lastError, &startedRaw, &finishRaw); err != nil {
		return Batch{}, err
	}
	return Batch{
		JobID:      jobID,
		State:      job.State(state),
		TotalPairs: total,
		Succeeded:  succeeded,
		Failed:     failed,
		OutputDir:  outputDir.String,
		Options:    opts.String,
		Message:    message.String,
		LastError:  lastError.String,
		StartedAt:  parseTime(startedRaw),
		FinishedAt: parseTime(finishRaw),
	}, nil
}

func scanPair(row scanner) (Pair, error) {
	var (
		pair        Pair
		method      sql.NullString
		output      sql.NullString
		social      sql.NullString
		success     int
		errMsg      sql.NullString
		socialErr   sql.NullString
		startedRaw  sql.NullString
		finishedRaw sql.NullString
	)
	if err := row.Scan(&pair.JobID, &pair.Index, &pair.Audio, &pair.Video, &method, &output, &social, &success, &errMsg, &socialErr, &startedRaw, &finishedRaw); err != nil {
		return Pair{}, err
	}
	pair.Method = method.String
	pair.Output = output.String
	pair.SocialOutput = social.String
	pair.Success = success != 0
	pair.Error = errMsg.String
	pair.SocialError = socialErr.String
	pair.StartedAt = parseTime(startedRaw)
	pair.FinishedAt = parseTime(finishedRaw)
	return pair, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package history

import (
	"context"
	"fmt"
	"time"

	"avmerge/internal/job"
)

// Stats counts batches by final state.
func (s *Store) Stats(ctx context.Context) (map[job.State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM batches GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[job.State]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[job.State(state)] = count
	}
	return stats, rows.Err()
}

// MarkInterrupted closes batches left running by a process that exited
// without finishing them. It returns the number of batches updated.
func (s *Store) MarkInterrupted(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`UPDATE batches SET state = ?, message = ?, finished_at = ?
		 WHERE state IN (?, ?)`,
		string(job.StateStopped), "interrupted: daemon exited mid-batch", formatTime(at),
		string(job.StateRunning), string(job.StateStopping),
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted batches: %w", err)
	}
	return res.RowsAffected()
}

// Prune deletes batches started before cutoff along with their pairs.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM batches WHERE started_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every recorded batch.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM batches`)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return res.RowsAffected()
}

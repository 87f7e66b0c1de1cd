package notifications

import (
	"context"
	"log/slog"

	"avmerge/internal/job"
	"avmerge/internal/logging"
)

// Recorder forwards batch outcomes to an optional inner recorder and sends
// a notification when a batch finishes. Delivery failures are logged only.
type Recorder struct {
	next    job.Recorder
	service Service
	logger  *slog.Logger
}

// NewRecorder wraps next, which may be nil.
func NewRecorder(next job.Recorder, service Service, logger *slog.Logger) *Recorder {
	if service == nil {
		service = noopService{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recorder{next: next, service: service, logger: logging.NewComponentLogger(logger, "notifications")}
}

func (r *Recorder) RecordBatchStarted(ctx context.Context, status job.Status) error {
	if r.next == nil {
		return nil
	}
	return r.next.RecordBatchStarted(ctx, status)
}

func (r *Recorder) RecordPair(ctx context.Context, jobID string, result job.PairResult) error {
	if r.next == nil {
		return nil
	}
	return r.next.RecordPair(ctx, jobID, result)
}

func (r *Recorder) RecordBatchFinished(ctx context.Context, status job.Status) error {
	var err error
	if r.next != nil {
		err = r.next.RecordBatchFinished(ctx, status)
	}
	if !r.service.Enabled() {
		return err
	}
	if notifyErr := r.service.NotifyBatchFinished(ctx, status); notifyErr != nil {
		logging.WarnWithContext(r.logger, "batch notification failed", "notification_failed",
			logging.String(logging.FieldJobID, status.JobID),
			logging.Error(notifyErr),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
			logging.String(logging.FieldImpact, "operator was not notified of this batch"),
		)
	}
	return err
}

package workers

import (
	"context"
	"fmt"

	"github.com/edulane/insights-api/internal/models"
	"github.com/edulane/insights-api/internal/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SnapshotBuilder is the slice of the aggregation service the pre-warmer
// needs: an unconditional rebuild for one key.
type SnapshotBuilder interface {
	BuildAndSaveSnapshot(ctx context.Context, studentID uuid.UUID, courseID *uuid.UUID, rangeKey string) (*models.BehaviorSummarySnapshot, error)
}

// SnapshotPrewarmer processes snapshot pre-warm jobs so interactive callers
// hit a fresh cache instead of paying for aggregation inline.
type SnapshotPrewarmer struct {
	builder SnapshotBuilder
	logger  *zap.Logger
}

// NewSnapshotPrewarmer creates a new pre-warm worker.
func NewSnapshotPrewarmer(builder SnapshotBuilder, logger *zap.Logger) *SnapshotPrewarmer {
	return &SnapshotPrewarmer{
		builder: builder,
		logger:  logger,
	}
}

// ProcessJob processes a single queue message, acking on success and
// nacking with retry accounting on failure. Exhausted jobs go to the DLQ.
func (w *SnapshotPrewarmer) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	if !job.ShouldProcess() {
		if job.IsExpired() {
			w.logger.Info("prewarm_job_expired",
				zap.String("job_id", job.ID.String()),
			)
			if nackErr := msg.Nack(false); nackErr != nil {
				w.logger.Warn("prewarm_nack_failed", zap.Error(nackErr))
			}
			return nil
		}
		// Not ready yet, requeue for later
		if nackErr := msg.Nack(true); nackErr != nil {
			w.logger.Warn("prewarm_nack_failed", zap.Error(nackErr))
		}
		return nil
	}

	if job.Type != queue.JobTypeSnapshotPrewarm {
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Warn("prewarm_nack_failed", zap.Error(nackErr))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	snapshot, err := w.builder.BuildAndSaveSnapshot(ctx, job.StudentID, job.CourseID, job.RangeKey)
	if err != nil {
		return w.handleJobError(msg, job, err)
	}

	w.logger.Info("prewarm_job_done",
		zap.String("job_id", job.ID.String()),
		zap.String("snapshot_id", snapshot.ID.String()),
		zap.String("student_id", job.StudentID.String()),
		zap.String("range_key", job.RangeKey),
	)

	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack job: %w", ackErr)
	}
	return nil
}

// Run consumes jobs until ctx is cancelled or the queue fails.
func (w *SnapshotPrewarmer) Run(ctx context.Context, jobs queue.JobQueue, prefetch int) error {
	msgs, errs, err := jobs.Consume(ctx, prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case consumeErr, ok := <-errs:
			if !ok {
				return nil
			}
			w.logger.Warn("prewarm_consume_error", zap.Error(consumeErr))
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := w.ProcessJob(ctx, msg); err != nil {
				w.logger.Warn("prewarm_job_failed",
					zap.String("job_id", msg.Job.ID.String()),
					zap.Error(err),
				)
			}
		}
	}
}

func (w *SnapshotPrewarmer) handleJobError(msg queue.MessageInterface, job *queue.Job, err error) error {
	if job.CanRetry() {
		job.IncrementRetry()
		w.logger.Warn("prewarm_job_retry",
			zap.String("job_id", job.ID.String()),
			zap.Int("attempt", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Error(err),
		)
		if nackErr := msg.Nack(true); nackErr != nil {
			w.logger.Warn("prewarm_nack_failed", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	// Max retries exceeded, send to DLQ
	w.logger.Error("prewarm_job_dead_lettered",
		zap.String("job_id", job.ID.String()),
		zap.Int("max_retries", job.MaxRetries),
		zap.Error(err),
	)
	if nackErr := msg.Nack(false); nackErr != nil {
		w.logger.Warn("prewarm_nack_failed", zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (max retries): %w", err)
}

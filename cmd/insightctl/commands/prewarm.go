package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/edulane/insights-api/internal/config"
	"github.com/edulane/insights-api/internal/queue"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewPrewarmCmd creates the prewarm command, which enqueues a snapshot
// rebuild job for the worker fleet.
func NewPrewarmCmd() *cobra.Command {
	var (
		studentID string
		courseID  string
		rangeKey  string
		delay     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "prewarm",
		Short: "Enqueue a snapshot pre-warm job",
		Long:  "Enqueue a job that rebuilds the summary snapshot for one (student, course, range) key.",
		RunE: func(cmd *cobra.Command, args []string) error {
			student, course, err := parseKeyFlags(studentID, courseID)
			if err != nil {
				return err
			}
			if rangeKey == "" {
				return fmt.Errorf("--range is required (e.g. 7d)")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.RabbitMQURL == "" {
				return fmt.Errorf("RABBITMQ_URL is required for prewarm")
			}

			jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
			if err != nil {
				return fmt.Errorf("connect to RabbitMQ: %w", err)
			}
			defer func() { _ = jobQueue.Close() }()

			job := queue.NewSnapshotPrewarmJob(student, course, rangeKey)
			if delay > 0 {
				notBefore := time.Now().Add(delay)
				job.NotBefore = &notBefore
			}

			if err := jobQueue.Enqueue(context.Background(), job); err != nil {
				return fmt.Errorf("enqueue job: %w", err)
			}

			fmt.Printf("Enqueued pre-warm job %s for student %s range %s\n", job.ID, student, rangeKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&studentID, "student", "", "Student UUID (required)")
	cmd.Flags().StringVar(&courseID, "course", "", "Course UUID (optional)")
	cmd.Flags().StringVar(&rangeKey, "range", "", "Range key (e.g. 7d) (required)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Delay before the job becomes eligible")
	return cmd
}

func parseKeyFlags(studentID, courseID string) (uuid.UUID, *uuid.UUID, error) {
	if studentID == "" {
		return uuid.Nil, nil, fmt.Errorf("--student is required")
	}
	student, err := uuid.Parse(studentID)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("invalid student UUID: %w", err)
	}
	var course *uuid.UUID
	if courseID != "" {
		parsed, err := uuid.Parse(courseID)
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("invalid course UUID: %w", err)
		}
		course = &parsed
	}
	return student, course, nil
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/edulane/insights-api/internal/config"
	"github.com/edulane/insights-api/internal/database"
	"github.com/edulane/insights-api/internal/services/analytics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewSnapshotCmd creates the snapshot command, which builds a snapshot
// synchronously against the database.
func NewSnapshotCmd() *cobra.Command {
	var (
		studentID string
		courseID  string
		rangeKey  string
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Build a summary snapshot now",
		Long:  "Aggregate the current window for one key and insert a new snapshot row, bypassing the cache.",
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
			policy, err := config.LoadPolicy(cfg.PolicyFile)
			if err != nil {
				return fmt.Errorf("load policy: %w", err)
			}

			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer func() { _ = db.Close() }()

			aggregator := analytics.NewAggregator(
				database.NewEventRepository(db),
				database.NewSnapshotRepository(db),
				policy.Ranges,
				policy.EventLoadLimit,
				zap.NewNop(),
			)

			snapshot, err := aggregator.BuildAndSaveSnapshot(context.Background(), student, course, rangeKey)
			if err != nil {
				return fmt.Errorf("build snapshot: %w", err)
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(snapshot)
		},
	}
	cmd.Flags().StringVar(&studentID, "student", "", "Student UUID (required)")
	cmd.Flags().StringVar(&courseID, "course", "", "Course UUID (optional)")
	cmd.Flags().StringVar(&rangeKey, "range", "", "Range key (e.g. 7d) (required)")
	return cmd
}

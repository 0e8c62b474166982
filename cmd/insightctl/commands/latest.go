package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/edulane/insights-api/internal/config"
	"github.com/edulane/insights-api/internal/database"
	"github.com/edulane/insights-api/internal/models"
	"github.com/spf13/cobra"
)

// NewLatestCmd creates the latest command, which prints the most recent
// insight row for a key.
func NewLatestCmd() *cobra.Command {
	var (
		studentID string
		courseID  string
		rangeKey  string
	)
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the latest insight for a key",
		RunE: func(cmd *cobra.Command, args []string) error {
			student, course, err := parseKeyFlags(studentID, courseID)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer func() { _ = db.Close() }()

			repo := database.NewInsightRepository(db)
			var insight *models.BehaviorInsight
			if rangeKey == "" {
				insight, err = repo.GetLatestByStudentCourse(context.Background(), student, course, models.InsightSchemaVersion)
			} else {
				insight, err = repo.GetLatestByStudentCourseRange(context.Background(), student, course, rangeKey, models.InsightSchemaVersion)
			}
			if err != nil {
				return fmt.Errorf("get latest insight: %w", err)
			}
			if insight == nil {
				fmt.Println("No insight exists for this key.")
				return nil
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(insight)
		},
	}
	cmd.Flags().StringVar(&studentID, "student", "", "Student UUID (required)")
	cmd.Flags().StringVar(&courseID, "course", "", "Course UUID (optional)")
	cmd.Flags().StringVar(&rangeKey, "range", "", "Range key (optional, latest across ranges when omitted)")
	return cmd
}

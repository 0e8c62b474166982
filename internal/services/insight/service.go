package insight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edulane/insights-api/internal/database"
	"github.com/edulane/insights-api/internal/locks"
	"github.com/edulane/insights-api/internal/models"
	"github.com/edulane/insights-api/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrForceNotAllowed is returned when a student self-trigger carries force.
	ErrForceNotAllowed = errors.New("force is not allowed on student self-trigger")
	// ErrQuotaExceeded is returned when the student's rolling insight quota is spent.
	ErrQuotaExceeded = errors.New("insight quota exceeded")
)

// NoEvidenceMessage marks partial insights produced for empty snapshots.
const NoEvidenceMessage = "NO_EVIDENCE"

// Policy holds the tunable generation limits.
type Policy struct {
	Cooldown      time.Duration
	QuotaLimit    int64
	QuotaWindow   time.Duration
	AITimeout     time.Duration
	LockTTL       time.Duration
	PromptVersion string
	DefaultModel  string
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		Cooldown:      168 * time.Hour,
		QuotaLimit:    7,
		QuotaWindow:   24 * time.Hour,
		AITimeout:     30 * time.Second,
		LockTTL:       45 * time.Second,
		PromptVersion: DefaultPromptVersion,
		DefaultModel:  ai.DefaultOpenAIModel,
	}
}

// SummaryProvider is the slice of the aggregation service the insight
// service depends on. Stage 2 never reads events directly; snapshots are
// its only evidence.
type SummaryProvider interface {
	GetOrBuildSummary(ctx context.Context, studentID uuid.UUID, courseID *uuid.UUID, rangeKey string) (*models.BehaviorSummarySnapshot, error)
}

// GenerateInput describes one generation attempt.
type GenerateInput struct {
	OperatorID         uuid.UUID
	StudentID          uuid.UUID
	CourseID           *uuid.UUID
	RangeKey           string
	Model              string
	Force              bool
	StudentSelfTrigger bool
}

// Response is the terminal outcome of a generate or getLatest call. Reused
// reports that an existing insight was returned without a new row being
// written.
type Response struct {
	Insight        *models.BehaviorInsight `json:"insight"`
	Reused         bool                    `json:"reused"`
	QuotaRemaining *int64                  `json:"quota_remaining,omitempty"`
	CooldownUntil  *time.Time              `json:"cooldown_until,omitempty"`
}

// Service implements insight generation over cached summaries with
// cooldown, quota, and no-evidence policy enforcement.
type Service struct {
	summaries SummaryProvider
	insights  database.InsightRepositoryInterface
	client    ai.CompletionClient
	locker    locks.KeyedLocker
	policy    Policy
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new insight service.
func NewService(
	summaries SummaryProvider,
	insights database.InsightRepositoryInterface,
	client ai.CompletionClient,
	locker locks.KeyedLocker,
	policy Policy,
	logger *zap.Logger,
) *Service {
	if locker == nil {
		locker = locks.NewMemoryLocker()
	}
	return &Service{
		summaries: summaries,
		insights:  insights,
		client:    client,
		locker:    locker,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// Generate runs one attempt of the policy state machine. AI failures and
// schema violations produce a persisted failed insight in the response, not
// an error; errors are reserved for validation and storage problems.
func (s *Service) Generate(ctx context.Context, input GenerateInput) (*Response, error) {
	if input.StudentSelfTrigger && input.Force {
		return nil, ErrForceNotAllowed
	}

	snapshot, err := s.summaries.GetOrBuildSummary(ctx, input.StudentID, input.CourseID, input.RangeKey)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	// Cooldown applies only to student self-triggers: a repeat request
	// within the window returns the existing insight unchanged.
	if input.StudentSelfTrigger {
		latest, err := s.insights.GetLatestByStudentCourseRange(ctx, input.StudentID, input.CourseID, input.RangeKey, models.InsightSchemaVersion)
		if err != nil {
			return nil, err
		}
		if latest != nil && now.Sub(latest.GeneratedAt) < s.policy.Cooldown {
			s.logger.Info("insight_cooldown_hit",
				zap.String("student_id", input.StudentID.String()),
				zap.String("range_key", input.RangeKey),
				zap.String("insight_id", latest.ID.String()),
			)
			return s.respond(ctx, latest, true)
		}
	}

	count, err := s.insights.CountByStudentSince(ctx, input.StudentID, models.InsightSchemaVersion, now.Add(-s.policy.QuotaWindow))
	if err != nil {
		return nil, err
	}
	if count >= s.policy.QuotaLimit {
		s.logger.Info("insight_quota_exceeded",
			zap.String("student_id", input.StudentID.String()),
			zap.Int64("count", count),
			zap.Int64("limit", s.policy.QuotaLimit),
		)
		return nil, ErrQuotaExceeded
	}

	if !snapshot.HasEvidence() {
		insight := s.newInsight(input, snapshot, models.InsightStatusPartial)
		message := NoEvidenceMessage
		insight.ErrorMessage = &message
		if err := s.insights.Insert(ctx, insight); err != nil {
			return nil, err
		}
		s.logger.Info("insight_no_evidence",
			zap.String("student_id", input.StudentID.String()),
			zap.String("snapshot_id", snapshot.ID.String()),
		)
		return s.respond(ctx, insight, false)
	}

	// Advisory lock around the AI call only. Losing the race means another
	// request is already generating for this key; reuse its row when it has
	// landed, otherwise proceed anyway (duplication is accepted).
	lockKey := lockKey(input.StudentID, input.CourseID, input.RangeKey)
	acquired, release, err := s.locker.TryAcquire(ctx, lockKey, s.policy.LockTTL)
	if err != nil {
		s.logger.Warn("insight_lock_error", zap.String("key", lockKey), zap.Error(err))
	}
	if err == nil && !acquired {
		existing, lookupErr := s.insights.GetLatestBySnapshot(ctx, snapshot.ID, models.InsightSchemaVersion)
		if lookupErr == nil && existing != nil {
			return s.respond(ctx, existing, true)
		}
	}
	if release != nil {
		defer release()
	}

	insight, err := s.callAndValidate(ctx, input, snapshot)
	if err != nil {
		return nil, err
	}

	if err := s.insights.Insert(ctx, insight); err != nil {
		return nil, err
	}

	s.logger.Info("insight_generated",
		zap.String("insight_id", insight.ID.String()),
		zap.String("student_id", input.StudentID.String()),
		zap.String("snapshot_id", snapshot.ID.String()),
		zap.String("status", string(insight.Status)),
	)

	return s.respond(ctx, insight, false)
}

// GetLatest returns the most recent insight for the key without generation
// side effects, or nil when none exists. Quota and cooldown metadata are
// attached for UI use.
func (s *Service) GetLatest(ctx context.Context, studentID uuid.UUID, courseID *uuid.UUID, rangeKey string) (*Response, error) {
	var (
		latest *models.BehaviorInsight
		err    error
	)
	if rangeKey == "" {
		latest, err = s.insights.GetLatestByStudentCourse(ctx, studentID, courseID, models.InsightSchemaVersion)
	} else {
		latest, err = s.insights.GetLatestByStudentCourseRange(ctx, studentID, courseID, rangeKey, models.InsightSchemaVersion)
	}
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}

	return s.respond(ctx, latest, true)
}

func (s *Service) callAndValidate(ctx context.Context, input GenerateInput, snapshot *models.BehaviorSummarySnapshot) (*models.BehaviorInsight, error) {
	insight := s.newInsight(input, snapshot, models.InsightStatusSuccess)

	system, user, err := BuildPrompt(s.policy.PromptVersion, snapshot)
	if err != nil {
		return s.failInsight(insight, err), nil
	}

	raw, err := s.client.Complete(ctx, ai.CompletionRequest{
		System:  system,
		Prompt:  user,
		Model:   insight.Model,
		Timeout: s.policy.AITimeout,
	})
	if err != nil {
		// Do not persist a row for caller-side cancellation; the attempt
		// never reached a terminal AI outcome.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("insight_ai_call_failed",
			zap.String("student_id", input.StudentID.String()),
			zap.Error(err),
		)
		return s.failInsight(insight, err), nil
	}

	narrative, err := ParseNarrative(raw)
	if err != nil {
		s.logger.Warn("insight_validation_failed",
			zap.String("student_id", input.StudentID.String()),
			zap.Error(err),
		)
		return s.failInsight(insight, err), nil
	}

	insight.Narrative = narrative
	return insight, nil
}

func (s *Service) newInsight(input GenerateInput, snapshot *models.BehaviorSummarySnapshot, status models.InsightStatus) *models.BehaviorInsight {
	model := input.Model
	if model == "" {
		model = s.policy.DefaultModel
	}
	return &models.BehaviorInsight{
		ID:            uuid.New(),
		SchemaVersion: models.InsightSchemaVersion,
		SnapshotID:    snapshot.ID,
		StudentID:     input.StudentID,
		CourseID:      input.CourseID,
		RangeKey:      input.RangeKey,
		Model:         model,
		PromptVersion: s.policy.PromptVersion,
		Status:        status,
		GeneratedAt:   s.now().UTC(),
	}
}

func (s *Service) failInsight(insight *models.BehaviorInsight, cause error) *models.BehaviorInsight {
	message := ai.TruncateString(cause.Error(), 500)
	insight.Status = models.InsightStatusFailed
	insight.Narrative = nil
	insight.ErrorMessage = &message
	return insight
}

func (s *Service) respond(ctx context.Context, insight *models.BehaviorInsight, reused bool) (*Response, error) {
	resp := &Response{Insight: insight, Reused: reused}

	now := s.now().UTC()
	count, err := s.insights.CountByStudentSince(ctx, insight.StudentID, models.InsightSchemaVersion, now.Add(-s.policy.QuotaWindow))
	if err == nil {
		remaining := s.policy.QuotaLimit - count
		if remaining < 0 {
			remaining = 0
		}
		resp.QuotaRemaining = &remaining
	}

	if until := insight.GeneratedAt.Add(s.policy.Cooldown); until.After(now) {
		resp.CooldownUntil = &until
	}

	return resp, nil
}

func lockKey(studentID uuid.UUID, courseID *uuid.UUID, rangeKey string) string {
	course := "none"
	if courseID != nil {
		course = courseID.String()
	}
	return fmt.Sprintf("insight:%s:%s:%s", studentID, course, rangeKey)
}

package insight

import (
	"encoding/json"
	"fmt"

	"github.com/edulane/insights-api/internal/models"
)

// DefaultPromptVersion identifies the prompt template used when the policy
// does not pin one.
const DefaultPromptVersion = "v1"

const systemPromptV1 = `You are an educational behavior analyst. You receive an aggregated,
anonymized summary of one student's learning activity and write a short,
supportive narrative about their engagement patterns.

Rules:
- Base every statement only on the provided summary. Do not invent data.
- Never assign a score, grade, percentage, ranking, or any numeric rating
  to the student.
- Respond with a single JSON object, no surrounding text, matching exactly:
  {"headline": string, "observations": [string], "suggestions": [string]}
- headline: one sentence describing the overall pattern.
- observations: 2-4 factual statements about activity in the period.
- suggestions: 1-3 gentle, actionable suggestions.`

var systemPrompts = map[string]string{
	"v1": systemPromptV1,
}

// BuildPrompt renders the system and user messages for a snapshot. The user
// message carries only the serialized summary; raw events never reach the
// model.
func BuildPrompt(promptVersion string, snapshot *models.BehaviorSummarySnapshot) (system, user string, err error) {
	if promptVersion == "" {
		promptVersion = DefaultPromptVersion
	}
	system, ok := systemPrompts[promptVersion]
	if !ok {
		return "", "", fmt.Errorf("unknown prompt version %q", promptVersion)
	}

	evidence := struct {
		RangeKey        string                `json:"rangeKey"`
		PeriodFrom      string                `json:"periodFrom"`
		PeriodTo        string                `json:"periodTo"`
		InputEventCount int                   `json:"inputEventCount"`
		Summary         models.SummaryMetrics `json:"summary"`
	}{
		RangeKey:        snapshot.RangeKey,
		PeriodFrom:      snapshot.PeriodFrom.UTC().Format("2006-01-02T15:04:05Z07:00"),
		PeriodTo:        snapshot.PeriodTo.UTC().Format("2006-01-02T15:04:05Z07:00"),
		InputEventCount: snapshot.InputEventCount,
		Summary:         snapshot.Summary,
	}

	evidenceJSON, err := json.Marshal(evidence)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal evidence: %w", err)
	}

	user = fmt.Sprintf("Activity summary for the %s window:\n%s", snapshot.RangeKey, string(evidenceJSON))
	return system, user, nil
}

package insight

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/edulane/insights-api/internal/models"
)

// ErrInvalidNarrative wraps all narrative validation failures.
var ErrInvalidNarrative = errors.New("invalid narrative")

// forbiddenKeyFragments are field-name fragments that suggest the model
// tried to score or grade the student. Any numeric value under such a key,
// at any depth, fails validation.
var forbiddenKeyFragments = []string{
	"score", "grade", "percent", "rating", "rank", "points", "gpa",
}

// ParseNarrative parses a raw model response into a narrative, enforcing the
// strict schema and the no-scoring rule. The schema intentionally contains
// only string fields; unknown fields are rejected outright, so a numeric
// score can never slip through as part of a valid payload.
func ParseNarrative(raw string) (*models.InsightNarrative, error) {
	payload := extractJSONObject(raw)
	if payload == "" {
		return nil, fmt.Errorf("%w: response contains no JSON object", ErrInvalidNarrative)
	}

	// Scan the untyped form first so a scoring field is reported as such
	// rather than as a generic unknown-field error.
	var generic map[string]any
	if err := json.Unmarshal([]byte(payload), &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNarrative, err)
	}
	if err := rejectScoringFields("", generic); err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(payload)))
	decoder.DisallowUnknownFields()

	narrative := &models.InsightNarrative{}
	if err := decoder.Decode(narrative); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNarrative, err)
	}

	if strings.TrimSpace(narrative.Headline) == "" {
		return nil, fmt.Errorf("%w: headline is empty", ErrInvalidNarrative)
	}
	if len(narrative.Observations) == 0 {
		return nil, fmt.Errorf("%w: observations are empty", ErrInvalidNarrative)
	}
	for i, obs := range narrative.Observations {
		if strings.TrimSpace(obs) == "" {
			return nil, fmt.Errorf("%w: observation %d is empty", ErrInvalidNarrative, i)
		}
	}
	for i, sug := range narrative.Suggestions {
		if strings.TrimSpace(sug) == "" {
			return nil, fmt.Errorf("%w: suggestion %d is empty", ErrInvalidNarrative, i)
		}
	}

	return narrative, nil
}

// rejectScoringFields walks an untyped JSON value and fails on any numeric
// value stored under a key that resembles a score, grade, or percentage.
func rejectScoringFields(key string, value any) error {
	switch v := value.(type) {
	case map[string]any:
		for childKey, childValue := range v {
			if err := rejectScoringFields(childKey, childValue); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range v {
			if err := rejectScoringFields(key, item); err != nil {
				return err
			}
		}
	case float64:
		lower := strings.ToLower(key)
		for _, fragment := range forbiddenKeyFragments {
			if strings.Contains(lower, fragment) {
				return fmt.Errorf("%w: numeric field %q resembles a score", ErrInvalidNarrative, key)
			}
		}
	}
	return nil
}

// extractJSONObject returns the substring from the first '{' to the last
// '}', tolerating models that wrap JSON in prose or code fences.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return raw[start : end+1]
}

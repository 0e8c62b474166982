package config

import (
	"fmt"
	"os"
	"time"

	"github.com/edulane/insights-api/internal/models"
	"github.com/edulane/insights-api/internal/services/insight"
	"gopkg.in/yaml.v3"
)

// PolicyFile is the YAML shape of the generation policy. All fields are
// optional; omitted ones keep the production defaults.
type PolicyFile struct {
	Cooldown       string            `yaml:"cooldown"`
	QuotaLimit     *int64            `yaml:"quota_limit"`
	QuotaWindow    string            `yaml:"quota_window"`
	AITimeout      string            `yaml:"ai_timeout"`
	LockTTL        string            `yaml:"lock_ttl"`
	PromptVersion  string            `yaml:"prompt_version"`
	DefaultModel   string            `yaml:"default_model"`
	EventLoadLimit *int              `yaml:"event_load_limit"`
	Ranges         map[string]string `yaml:"ranges"`
}

// PolicySet is the resolved runtime policy: insight limits, the canonical
// range table, and the aggregation event load cap.
type PolicySet struct {
	Insight        insight.Policy
	Ranges         models.RangeTable
	EventLoadLimit int
}

// DefaultPolicySet returns production defaults without reading any file.
func DefaultPolicySet() PolicySet {
	return PolicySet{
		Insight:        insight.DefaultPolicy(),
		Ranges:         models.DefaultRangeTable(),
		EventLoadLimit: 0, // aggregator applies its own default
	}
}

// LoadPolicy reads a policy YAML file and overlays it on the defaults. An
// empty path returns the defaults unchanged.
func LoadPolicy(path string) (PolicySet, error) {
	set := DefaultPolicySet()
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return set, fmt.Errorf("failed to read policy file: %w", err)
	}

	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return set, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if err := overlayDuration(&set.Insight.Cooldown, file.Cooldown, "cooldown"); err != nil {
		return set, err
	}
	if err := overlayDuration(&set.Insight.QuotaWindow, file.QuotaWindow, "quota_window"); err != nil {
		return set, err
	}
	if err := overlayDuration(&set.Insight.AITimeout, file.AITimeout, "ai_timeout"); err != nil {
		return set, err
	}
	if err := overlayDuration(&set.Insight.LockTTL, file.LockTTL, "lock_ttl"); err != nil {
		return set, err
	}
	if file.QuotaLimit != nil {
		if *file.QuotaLimit <= 0 {
			return set, fmt.Errorf("quota_limit must be positive")
		}
		set.Insight.QuotaLimit = *file.QuotaLimit
	}
	if file.PromptVersion != "" {
		set.Insight.PromptVersion = file.PromptVersion
	}
	if file.DefaultModel != "" {
		set.Insight.DefaultModel = file.DefaultModel
	}
	if file.EventLoadLimit != nil {
		if *file.EventLoadLimit <= 0 {
			return set, fmt.Errorf("event_load_limit must be positive")
		}
		set.EventLoadLimit = *file.EventLoadLimit
	}

	if len(file.Ranges) > 0 {
		ranges := make(models.RangeTable, len(file.Ranges))
		for key, raw := range file.Ranges {
			duration, err := time.ParseDuration(raw)
			if err != nil {
				return set, fmt.Errorf("invalid range duration for %q: %w", key, err)
			}
			if duration <= 0 {
				return set, fmt.Errorf("range duration for %q must be positive", key)
			}
			ranges[key] = duration
		}
		set.Ranges = ranges
	}

	return set, nil
}

func overlayDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if duration <= 0 {
		return fmt.Errorf("%s must be positive", field)
	}
	*dst = duration
	return nil
}

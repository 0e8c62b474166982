package models

import (
	"fmt"
	"sort"
	"time"
)

// RangeTable maps canonical range keys (e.g. "7d") to window lengths. The
// table is closed: unknown keys are rejected, never silently defaulted.
type RangeTable map[string]time.Duration

// DefaultRangeTable returns the built-in range table. Deployments may extend
// it via the policy file, but "7d" is always present.
func DefaultRangeTable() RangeTable {
	return RangeTable{
		"7d":  7 * 24 * time.Hour,
		"30d": 30 * 24 * time.Hour,
	}
}

// Resolve returns the window length for a range key, or an error wrapping
// ErrUnknownRangeKey for keys outside the table.
func (t RangeTable) Resolve(key string) (time.Duration, error) {
	d, ok := t[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRangeKey, key)
	}
	return d, nil
}

// Keys returns the known range keys in sorted order.
func (t RangeTable) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

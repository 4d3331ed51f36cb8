package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// patternsKey is the preference-store key the pattern record map lives under.
const patternsKey = "sessionkit.error_patterns"

// PreferenceStore is a generic string key/value persistence surface. Get on
// a missing key returns ("", nil).
type PreferenceStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// ErrorPattern is aggregated telemetry about one [ErrorKind]. Patterns are
// created on the first observed error of a kind and never deleted except by
// [PatternTracker.Clear].
type ErrorPattern struct {
	Kind                string    `json:"kind"`
	Frequency           uint64    `json:"frequency"`
	LastOccurrence      time.Time `json:"last_occurrence"`
	RecoverySuccessRate float64   `json:"recovery_success_rate"`
	PreferredStrategy   string    `json:"preferred_strategy"`
}

// patternRecord is the explicit serialized shape: a flat object keyed by
// the kind's string form.
type patternRecord map[string]ErrorPattern

// PatternTracker maintains the per-kind [ErrorPattern] map in memory and
// mirrors every update into the preference store as JSON. Safe for
// concurrent use.
type PatternTracker struct {
	prefs PreferenceStore

	mu       sync.Mutex
	patterns patternRecord
	loaded   bool
	now      func() time.Time
}

// NewPatternTracker describes the newpatterntracker operation and its observable behavior.
func NewPatternTracker(prefs PreferenceStore) *PatternTracker {
	return &PatternTracker{
		prefs:    prefs,
		patterns: make(patternRecord),
		now:      time.Now,
	}
}

// loadLocked hydrates the in-memory map on first use. A corrupt or missing
// record starts empty rather than failing the caller.
func (t *PatternTracker) loadLocked(ctx context.Context) {
	if t.loaded {
		return
	}
	t.loaded = true
	if t.prefs == nil {
		return
	}
	raw, err := t.prefs.Get(ctx, patternsKey)
	if err != nil || raw == "" {
		return
	}
	var rec patternRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return
	}
	t.patterns = rec
}

func (t *PatternTracker) persistLocked(ctx context.Context) error {
	if t.prefs == nil {
		return nil
	}
	raw, err := json.Marshal(t.patterns)
	if err != nil {
		return fmt.Errorf("encode error patterns: %w", err)
	}
	return t.prefs.Set(ctx, patternsKey, string(raw))
}

// Record notes one observed failure of kind: frequency is incremented and
// the occurrence timestamp refreshed, then the map is persisted.
func (t *PatternTracker) Record(ctx context.Context, kind ErrorKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadLocked(ctx)

	key := kind.String()
	p := t.patterns[key]
	p.Kind = key
	p.Frequency++
	p.LastOccurrence = t.now().UTC()
	t.patterns[key] = p
	_ = t.persistLocked(ctx)
}

// Outcome folds one recovery outcome into the kind's running success rate
// and, on success, marks the strategy as preferred.
func (t *PatternTracker) Outcome(ctx context.Context, kind ErrorKind, success bool, strategy Strategy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadLocked(ctx)

	key := kind.String()
	p, ok := t.patterns[key]
	if !ok || p.Frequency == 0 {
		return
	}
	outcome := 0.0
	if success {
		outcome = 1.0
		p.PreferredStrategy = strategy.String()
	}
	n := float64(p.Frequency)
	p.RecoverySuccessRate = (p.RecoverySuccessRate*(n-1) + outcome) / n
	t.patterns[key] = p
	_ = t.persistLocked(ctx)
}

// Snapshot returns a copy of the current pattern map.
func (t *PatternTracker) Snapshot(ctx context.Context) map[string]ErrorPattern {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadLocked(ctx)

	out := make(map[string]ErrorPattern, len(t.patterns))
	for k, v := range t.patterns {
		out[k] = v
	}
	return out
}

// Clear wipes all recorded patterns, in memory and persisted. Test and
// debug utility.
func (t *PatternTracker) Clear(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loaded = true
	t.patterns = make(patternRecord)
	return t.persistLocked(ctx)
}

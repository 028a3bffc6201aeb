package breath

import (
	"time"
)

// PhaseKind labels one segment of the breath cycle.
type PhaseKind string

const (
	PhaseInhale     PhaseKind = "inhale"
	PhaseExhale     PhaseKind = "exhale"
	PhaseHold       PhaseKind = "hold"
	PhaseTransition PhaseKind = "transition"
)

// Phase is a committed breathing phase. Duration keeps running while the
// phase is current and is frozen once the next phase commits.
type Phase struct {
	Kind       PhaseKind     `json:"kind"`
	Confidence float64       `json:"confidence"`
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Rhythm classifies the overall breathing character.
type Rhythm string

const (
	RhythmRegular   Rhythm = "regular"
	RhythmIrregular Rhythm = "irregular"
	RhythmDeep      Rhythm = "deep"
	RhythmShallow   Rhythm = "shallow"
)

// Trend says whether breathing steadiness is changing over the window.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Pattern is the full breathing read for one tick. Rate is breaths per
// minute, clamped to [5,30] once at least one cycle has completed; 0 means
// not enough data yet. Quality is 0-100.
type Pattern struct {
	Phase        Phase    `json:"phase"`
	Rate         float64  `json:"rate"`
	Rhythm       Rhythm   `json:"rhythm"`
	RecentPhases []Phase  `json:"recentPhases,omitempty"`
	Quality      float64  `json:"quality"`
	Trend        Trend    `json:"trend"`
	Guidance     []string `json:"guidance,omitempty"`
}

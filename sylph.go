// Package sylph turns per-frame face and pose landmarks into live
// biometric readings: breathing rate and phase, posture quality,
// restlessness and focus. Landmarks come from an external inference
// runtime; this package only consumes their normalized coordinates.
//
// The engine runs one of two ways. Push mode hands frames in explicitly:
//
//	e := sylph.New(sylph.DefaultOptions(), sylph.Deps{})
//	e.StartPush(ctx)
//	snap, err := e.Ingest(ctx, frame)
//
// Pull mode drives itself from a FrameSource at the target frame rate:
//
//	e.Start(ctx, source)
//	unsub := e.Subscribe(func(snap *sylph.Snapshot) { ... })
//
// Capability tiers gate which analyses run. When the tier's models are
// missing or a frame carries no face, the engine degrades the snapshot
// instead of failing the tick.
package sylph

import (
	"io"

	"sylph/internal/guidance"
	"sylph/internal/landmark"
	"sylph/internal/provider"
	"sylph/internal/restless"
	"sylph/internal/vision"
)

// Core types are re-exported from the internal packages so embedding
// callers never import them directly.
type (
	Engine      = vision.Engine
	Deps        = vision.Deps
	Options     = vision.Options
	Overrides   = vision.Overrides
	Snapshot    = vision.Snapshot
	Metrics     = vision.Metrics
	Health      = vision.Health
	FrameSource = vision.FrameSource
	Tier        = vision.Tier

	Frame = landmark.Frame
	Point = landmark.Point

	Calibration = restless.Calibration
	Coach       = guidance.Coach
)

// Capability tiers, cheapest first.
const (
	TierLoading  = vision.TierLoading
	TierBasic    = vision.TierBasic
	TierStandard = vision.TierStandard
	TierPremium  = vision.TierPremium
)

// Feature names accepted in Options.EnabledFeatures.
const (
	FeatureBreathing    = vision.FeatureBreathing
	FeaturePosture      = vision.FeaturePosture
	FeatureRestlessness = vision.FeatureRestlessness
)

var (
	ErrNotRunning     = vision.ErrNotRunning
	ErrAlreadyRunning = vision.ErrAlreadyRunning
	ErrBusy           = vision.ErrBusy
	ErrThrottled      = vision.ErrThrottled
	ErrFrameInvalid   = vision.ErrFrameInvalid
	ErrNilSource      = vision.ErrNilSource
	ErrExhausted      = provider.ErrExhausted
)

// New builds an engine with the given options. Zero-value deps work:
// the engine then owns its worker pool and model loading.
func New(opts Options, deps Deps) *Engine {
	return vision.New(opts, deps)
}

// DefaultOptions is the standard-tier configuration with every analysis
// enabled.
func DefaultOptions() Options {
	return vision.DefaultOptions()
}

// DefaultCalibration is the neutral-reference set used when no per-person
// calibration exists.
func DefaultCalibration() Calibration {
	return restless.DefaultCalibration()
}

// NewCoach loads the guidance catalogs for the given languages, most
// preferred first. Unknown languages fall back to English.
func NewCoach(langs ...string) (*Coach, error) {
	return guidance.NewCoach(langs...)
}

// NewScript wraps recorded frames as a frame source that replays them in
// order. With loop set the sequence wraps around.
func NewScript(frames []*Frame, loop bool) FrameSource {
	return provider.NewScript(frames, loop)
}

// ReadScript decodes newline-delimited JSON, one landmark frame per line.
func ReadScript(r io.Reader) ([]*Frame, error) {
	return provider.ReadScript(r)
}

// NewSynthetic generates an idle breathing face at the given rate, for
// demos and smoke runs without an inference runtime.
func NewSynthetic(width, height int, breathsPerMinute float64, seed int64) FrameSource {
	return provider.NewSynthetic(width, height, breathsPerMinute, seed)
}

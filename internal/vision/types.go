package vision

import (
	"time"

	"sylph/internal/breath"
	"sylph/internal/offload"
	"sylph/internal/perf"
	"sylph/internal/posture"
	"sylph/internal/restless"
	"sylph/internal/tier"
)

// Tier re-exports the model tier so engine callers configure everything
// through one package.
type Tier = tier.Tier

const (
	TierLoading  = tier.Loading
	TierBasic    = tier.Basic
	TierStandard = tier.Standard
	TierPremium  = tier.Premium
)

// Feature names for EnableFeature/DisableFeature and the snapshot plugin map.
const (
	FeatureBreathing    = "breathing"
	FeaturePosture      = "posture"
	FeatureRestlessness = "restlessness"
)

// Options is the engine configuration. It is plain data so presets can be
// stored as JSON.
type Options struct {
	Tier             Tier     `json:"tier"`
	EnabledFeatures  []string `json:"enabledFeatures"`
	TargetFPS        float64  `json:"targetFps"`
	AdaptiveQuality  bool     `json:"adaptiveQuality"`
	MobileOptimized  bool     `json:"mobileOptimized"`
	UseWorkerOffload bool     `json:"useWorkerOffload"`
	GPUAcceleration  bool     `json:"gpuAcceleration"`
}

// DefaultOptions are the settings a desktop caller gets without any tuning.
func DefaultOptions() Options {
	return Options{
		Tier:             TierStandard,
		EnabledFeatures:  []string{FeatureBreathing, FeaturePosture, FeatureRestlessness},
		TargetFPS:        10,
		AdaptiveQuality:  true,
		UseWorkerOffload: true,
		GPUAcceleration:  true,
	}
}

// mobileMaxFPS caps the tick rate on mobile devices.
const mobileMaxFPS = 15

// normalized fills zero values from defaults and applies the mobile caps:
// FPS limited and worker offload forced off.
func (o Options) normalized() Options {
	def := DefaultOptions()
	if !o.Tier.Valid() {
		o.Tier = def.Tier
	}
	if o.EnabledFeatures == nil {
		o.EnabledFeatures = def.EnabledFeatures
	}
	if o.TargetFPS <= 0 {
		o.TargetFPS = def.TargetFPS
	}
	if o.MobileOptimized {
		if o.TargetFPS > mobileMaxFPS {
			o.TargetFPS = mobileMaxFPS
		}
		o.UseWorkerOffload = false
	}
	return o
}

// Overrides are optional per-session deviations from a base Options.
// Nil fields mean "inherit".
type Overrides struct {
	Tier             *Tier    `json:"tier,omitempty"`
	EnabledFeatures  []string `json:"enabledFeatures,omitempty"`
	TargetFPS        *float64 `json:"targetFps,omitempty"`
	AdaptiveQuality  *bool    `json:"adaptiveQuality,omitempty"`
	MobileOptimized  *bool    `json:"mobileOptimized,omitempty"`
	UseWorkerOffload *bool    `json:"useWorkerOffload,omitempty"`
	GPUAcceleration  *bool    `json:"gpuAcceleration,omitempty"`
}

// Apply merges the overrides over base and returns the effective options.
func (ov *Overrides) Apply(base Options) Options {
	out := base
	if ov == nil {
		return out.normalized()
	}
	if ov.Tier != nil {
		out.Tier = *ov.Tier
	}
	if len(ov.EnabledFeatures) > 0 {
		out.EnabledFeatures = ov.EnabledFeatures
	}
	if ov.TargetFPS != nil {
		out.TargetFPS = *ov.TargetFPS
	}
	if ov.AdaptiveQuality != nil {
		out.AdaptiveQuality = *ov.AdaptiveQuality
	}
	if ov.MobileOptimized != nil {
		out.MobileOptimized = *ov.MobileOptimized
	}
	if ov.UseWorkerOffload != nil {
		out.UseWorkerOffload = *ov.UseWorkerOffload
	}
	if ov.GPUAcceleration != nil {
		out.GPUAcceleration = *ov.GPUAcceleration
	}
	return out.normalized()
}

// Metrics is the per-tick biometric read. Which fields are populated depends
// on the active tier; an absent field stays zero and downstream treats zero
// as unknown.
type Metrics struct {
	Timestamp     time.Time `json:"timestamp"`
	FaceDetected  bool      `json:"faceDetected"`
	Confidence    float64   `json:"confidence"`
	MovementLevel float64   `json:"movementLevel"`

	// Standard tier and up.
	PostureQuality    float64 `json:"postureQuality,omitempty"`
	RestlessnessScore float64 `json:"restlessnessScore,omitempty"`
	FocusLevel        float64 `json:"focusLevel,omitempty"`

	// Premium only.
	Detail *DetailMetrics `json:"detail,omitempty"`
}

// DetailMetrics are the premium sub-scores behind the composite fields.
type DetailMetrics struct {
	BreathingRate         float64 `json:"breathingRate"`
	BreathingQuality      float64 `json:"breathingQuality"`
	SpineAlignment        float64 `json:"spineAlignment"`
	HeadScore             float64 `json:"headScore"`
	ShoulderLevel         float64 `json:"shoulderLevel"`
	EyeMovement           float64 `json:"eyeMovement"`
	PostureShifts         float64 `json:"postureShifts"`
	BreathingIrregularity float64 `json:"breathingIrregularity"`
	MicroExpressions      float64 `json:"microExpressions"`
}

// PluginResult carries one plugin's output for a tick. Exactly one field is
// set; consumers switch on the populated field instead of type-asserting an
// opaque value.
type PluginResult struct {
	Breath   *breath.Pattern    `json:"breath,omitempty"`
	Posture  *posture.Metrics   `json:"posture,omitempty"`
	Restless *restless.Analysis `json:"restless,omitempty"`
}

// Snapshot is one published tick. Plugins is keyed by feature name; a
// disabled feature's key is absent from the very next snapshot after
// disabling.
type Snapshot struct {
	Seq         uint64                  `json:"seq"`
	Metrics     Metrics                 `json:"metrics"`
	Plugins     map[string]PluginResult `json:"plugins,omitempty"`
	Performance perf.Metrics            `json:"performance"`
}

// Health is the engine's liveness report.
type Health struct {
	Running          bool            `json:"running"`
	Tier             Tier            `json:"tier"`
	Bundle           string          `json:"bundle"`
	Capabilities     tier.Capability `json:"capabilities"`
	BreakerOpen      bool            `json:"breakerOpen"`
	ConsecutiveFails int             `json:"consecutiveFails"`
	Drops            uint64          `json:"drops"`
	Subscribers      int             `json:"subscribers"`
	Offload          offload.Stats   `json:"offload"`
}

package restless

// Components are the weighted inputs to the overall restlessness score,
// each in [0,1].
type Components struct {
	FaceMovement          float64 `json:"faceMovement"`
	EyeMovement           float64 `json:"eyeMovement"`
	PostureShifts         float64 `json:"postureShifts"`
	BreathingIrregularity float64 `json:"breathingIrregularity"`
	MicroExpressions      float64 `json:"microExpressions"`
}

// Trend says how restlessness is moving; falling scores read as improving.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Analysis is one composite restlessness read. Overall is in [0,1].
// When no usable face is in view the analyzer returns the fixed fallback
// {Overall: 0.5, Trend: stable, Confidence: 0}.
type Analysis struct {
	Overall         float64    `json:"overall"`
	Components      Components `json:"components"`
	Trend           Trend      `json:"trend"`
	Confidence      float64    `json:"confidence"`
	Recommendations []string   `json:"recommendations,omitempty"`
}

// Calibration holds the neutral facial references micro-expression deltas
// are measured against.
type Calibration struct {
	NeutralEAR        float64
	NeutralMouthWidth float64
	NeutralBrowHeight float64
}

// DefaultCalibration matches an average relaxed face at typical camera
// distance, in normalized units.
func DefaultCalibration() Calibration {
	return Calibration{
		NeutralEAR:        0.30,
		NeutralMouthWidth: 0.08,
		NeutralBrowHeight: 0.025,
	}
}

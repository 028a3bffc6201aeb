package posture

// Classification buckets the overall posture score.
type Classification string

const (
	ClassExcellent Classification = "excellent"
	ClassGood      Classification = "good"
	ClassFair      Classification = "fair"
	ClassPoor      Classification = "poor"
)

// Trend says how posture has moved across the recent window.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// HeadPose is the estimated head orientation in degrees.
type HeadPose struct {
	TiltDeg      float64 `json:"tiltDeg"`
	RotationDeg  float64 `json:"rotationDeg"`
	ElevationDeg float64 `json:"elevationDeg"`
}

// Metrics is one posture read. Sub-scores and Overall are in [0,1];
// Overall blends spine 40%, head 35%, shoulders 25%.
type Metrics struct {
	SpineAlignment  float64        `json:"spineAlignment"`
	Head            HeadPose       `json:"head"`
	HeadScore       float64        `json:"headScore"`
	ShoulderLevel   float64        `json:"shoulderLevel"`
	Overall         float64        `json:"overall"`
	Classification  Classification `json:"classification"`
	Trend           Trend          `json:"trend"`
	Consistency     float64        `json:"consistency"`
	Confidence      float64        `json:"confidence"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

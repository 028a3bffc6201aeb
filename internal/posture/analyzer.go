package posture

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"sylph/internal/guidance"
	"sylph/internal/landmark"
	"sylph/internal/ring"
)

const (
	spineWeight    = 0.40
	headWeight     = 0.35
	shoulderWeight = 0.25

	// Head orientation tolerances in degrees; penalties ramp past them.
	headTiltTolerance     = 8.0
	headRotationTolerance = 15.0
	tiltPenaltySlope      = 25.0
	rotationPenaltySlope  = 40.0

	// Shoulder line angle at which the level score bottoms out.
	shoulderMaxAngle = 15.0

	cutExcellent = 0.85
	cutGood      = 0.70
	cutFair      = 0.50

	// Shoulder estimation from face bounds when no pose points are present.
	estShoulderSpread = 0.8
	estShoulderDrop   = 0.35
	estConfidence     = 0.5
	poseConfidence    = 0.9

	historyCap      = 30
	trendHalf       = 5
	trendBand       = 0.05
	maxIssuesListed = 3
)

// Features are the pure geometric scores lifted from one frame. Extraction
// is side-effect free so it may run on a worker; Advance folds features
// into analyzer state on the owning goroutine.
type Features struct {
	SpineAlignment float64
	Head           HeadPose
	HeadScore      float64
	ShoulderLevel  float64
	Confidence     float64
}

// Analyzer scores upper-body posture from face geometry, using real shoulder
// points when the pose skeleton is present and estimating them from face
// bounds otherwise. Advance and Reset are not safe for concurrent use;
// Extract is pure.
type Analyzer struct {
	coach   *guidance.Coach
	history *ring.Buffer[float64]
}

// NewAnalyzer builds an analyzer; the coach may be nil to disable
// recommendations.
func NewAnalyzer(coach *guidance.Coach) *Analyzer {
	return &Analyzer{
		coach:   coach,
		history: ring.New[float64](historyCap),
	}
}

// Process scores one frame. Returns nil when the mesh is too sparse for the
// coarse anchors.
func (a *Analyzer) Process(frame *landmark.Frame) *Metrics {
	f, ok := a.Extract(frame)
	if !ok {
		return nil
	}
	return a.Advance(f)
}

// Extract computes the per-frame posture geometry without touching analyzer
// state. Returns false when the mesh is too sparse.
func (a *Analyzer) Extract(frame *landmark.Frame) (*Features, bool) {
	if frame == nil || len(frame.Face) < landmark.MinFaceCoarse {
		return nil, false
	}

	left, right, shoulderConf := shoulders(frame)
	head := headPose(frame.Face)
	return &Features{
		SpineAlignment: spineAlignment(frame.Face, left, right),
		Head:           head,
		HeadScore:      headScore(head),
		ShoulderLevel:  shoulderLevel(left, right),
		Confidence:     math.Min(frame.Confidence, shoulderConf),
	}, true
}

// Advance folds one frame's features into the history and returns the full
// metrics.
func (a *Analyzer) Advance(f *Features) *Metrics {
	m := &Metrics{
		SpineAlignment: f.SpineAlignment,
		Head:           f.Head,
		HeadScore:      f.HeadScore,
		ShoulderLevel:  f.ShoulderLevel,
		Confidence:     f.Confidence,
	}
	m.Overall = spineWeight*m.SpineAlignment + headWeight*m.HeadScore + shoulderWeight*m.ShoulderLevel
	m.Classification = classify(m.Overall)

	a.history.Push(m.Overall)
	m.Trend, m.Consistency = a.trend()
	m.Recommendations = a.recommend(m)
	return m
}

// Reset drops score history. The next Process behaves as on a fresh analyzer.
func (a *Analyzer) Reset() {
	a.history.Reset()
}

// shoulders returns the left and right shoulder points. Pose points win;
// otherwise both are projected below the face bounds at a fixed spread.
func shoulders(frame *landmark.Frame) (left, right landmark.Point, conf float64) {
	if frame.HasPose() && len(frame.Pose) > landmark.PoseRightShoulder {
		return frame.Pose[landmark.PoseLeftShoulder], frame.Pose[landmark.PoseRightShoulder], poseConfidence
	}

	min, max, _ := landmark.Bounds(frame.Face)
	width := max.X - min.X
	height := max.Y - min.Y
	centerX := (min.X + max.X) / 2
	y := max.Y + estShoulderDrop*height

	left = landmark.Point{X: centerX + estShoulderSpread*width/2, Y: y}
	right = landmark.Point{X: centerX - estShoulderSpread*width/2, Y: y}
	return left, right, estConfidence
}

// spineAlignment measures how far the head center drifts sideways off the
// shoulder center, relative to shoulder width.
func spineAlignment(face []landmark.Point, left, right landmark.Point) float64 {
	headCenter := landmark.Midpoint(face[landmark.RightFaceSide], face[landmark.LeftFaceSide])
	shoulderCenter := landmark.Midpoint(left, right)
	width := math.Abs(left.X - right.X)
	if width == 0 {
		return 0
	}
	drift := math.Abs(headCenter.X-shoulderCenter.X) / width
	return 1 - landmark.Clamp01(drift*2)
}

func headPose(face []landmark.Point) HeadPose {
	leftSide := face[landmark.LeftFaceSide]
	rightSide := face[landmark.RightFaceSide]
	nose := face[landmark.NoseTip]
	leftEye := face[landmark.LeftEyeOuter]
	rightEye := face[landmark.RightEyeOuter]

	tilt := landmark.SegmentAngleDeg(rightSide, leftSide)

	eyeMid := landmark.Midpoint(rightEye, leftEye)
	eyeSpan := landmark.Dist(rightEye, leftEye)
	var rotation float64
	if eyeSpan > 0 {
		rotation = landmark.Clamp((nose.X-eyeMid.X)/(eyeSpan/2), -1, 1) * 90
	}

	sideMid := landmark.Midpoint(rightSide, leftSide)
	faceSpan := landmark.Dist(rightSide, leftSide)
	var elevation float64
	if faceSpan > 0 {
		elevation = landmark.Clamp((sideMid.Y-eyeMid.Y)/faceSpan, -1, 1) * 90
	}

	return HeadPose{TiltDeg: tilt, RotationDeg: rotation, ElevationDeg: elevation}
}

// headScore applies linear penalties once tilt and rotation leave their
// tolerance bands.
func headScore(h HeadPose) float64 {
	score := 1.0
	if over := math.Abs(h.TiltDeg) - headTiltTolerance; over > 0 {
		score -= over / tiltPenaltySlope
	}
	if over := math.Abs(h.RotationDeg) - headRotationTolerance; over > 0 {
		score -= over / rotationPenaltySlope
	}
	return landmark.Clamp01(score)
}

func shoulderLevel(left, right landmark.Point) float64 {
	angle := math.Abs(landmark.SegmentAngleDeg(right, left))
	if angle > 90 {
		angle = 180 - angle
	}
	return 1 - landmark.Clamp01(angle/shoulderMaxAngle)
}

func classify(overall float64) Classification {
	switch {
	case overall >= cutExcellent:
		return ClassExcellent
	case overall >= cutGood:
		return ClassGood
	case overall >= cutFair:
		return ClassFair
	default:
		return ClassPoor
	}
}

// trend compares the mean of the last trendHalf scores against the
// trendHalf before them. Consistency shrinks with score spread.
func (a *Analyzer) trend() (Trend, float64) {
	if a.history.Len() < trendHalf*2 {
		return TrendStable, 1
	}
	t := a.history.Tail(trendHalf * 2)
	prior := stat.Mean(t[:trendHalf], nil)
	recent := stat.Mean(t[trendHalf:], nil)
	consistency := 1 - landmark.Clamp01(stat.StdDev(a.history.Values(), nil)*4)

	switch {
	case recent-prior > trendBand:
		return TrendImproving, consistency
	case prior-recent > trendBand:
		return TrendDeclining, consistency
	default:
		return TrendStable, consistency
	}
}

func (a *Analyzer) recommend(m *Metrics) []string {
	if a.coach == nil {
		return nil
	}
	var issues []string
	if m.SpineAlignment < cutGood {
		issues = append(issues, a.coach.Text(guidance.MsgPostureSpine))
	}
	if math.Abs(m.Head.TiltDeg) > headTiltTolerance {
		issues = append(issues, a.coach.Text(guidance.MsgPostureHeadTilt))
	}
	if math.Abs(m.Head.RotationDeg) > headRotationTolerance {
		issues = append(issues, a.coach.Text(guidance.MsgPostureHeadTurn))
	}
	if m.ShoulderLevel < cutGood {
		issues = append(issues, a.coach.Text(guidance.MsgPostureShoulders))
	}

	if len(issues) == 0 {
		if m.Overall >= cutExcellent {
			return []string{a.coach.Text(guidance.MsgPostureExcellent)}
		}
		return nil
	}
	if len(issues) > 2 {
		issues = append([]string{a.coach.Text(guidance.MsgPostureIntro)}, issues...)
	}
	if len(issues) > maxIssuesListed {
		issues = issues[:maxIssuesListed]
	}
	return issues
}

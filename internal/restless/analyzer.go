package restless

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"sylph/internal/guidance"
	"sylph/internal/landmark"
	"sylph/internal/ring"
)

const (
	weightFace      = 0.30
	weightEye       = 0.25
	weightPosture   = 0.20
	weightBreathing = 0.15
	weightMicro     = 0.10

	faceMovementGain = 40.0
	microGain        = 2.0
	breathVarGain    = 5e7
	shoulderMaxDeg   = 20.0

	nostrilWindow = 30
	overallWindow = 60
	trendHalf     = 10
	trendBand     = 0.08

	adviseThreshold = 0.6
)

// fallbackOverall is the fixed score reported while no usable face is in
// view.
const fallbackOverall = 0.5

// Features are the pure per-frame measurements feeding the analyzer.
// FaceUsable is false when the mesh is too sparse to score; Advance then
// reports the fixed fallback.
type Features struct {
	FaceUsable bool
	MeshCount  int

	Anchors   [3]landmark.Point
	AnchorsOK bool

	EyeMovement      float64
	PostureShifts    float64
	NostrilArea      float64
	MicroExpressions float64
}

// Analyzer fuses five movement channels into a composite restlessness
// score. Extract is pure; Advance and Reset are not safe for concurrent
// use.
type Analyzer struct {
	coach *guidance.Coach
	calib Calibration

	nostril *ring.Buffer[float64]
	overall *ring.Buffer[float64]

	prevAnchors [3]landmark.Point
	havePrev    bool
}

// NewAnalyzer builds an analyzer. A zero calibration falls back to
// DefaultCalibration; the coach may be nil.
func NewAnalyzer(coach *guidance.Coach, calib Calibration) *Analyzer {
	if calib == (Calibration{}) {
		calib = DefaultCalibration()
	}
	return &Analyzer{
		coach:   coach,
		calib:   calib,
		nostril: ring.New[float64](nostrilWindow),
		overall: ring.New[float64](overallWindow),
	}
}

// Process scores one frame. Frames without a usable face return the fixed
// fallback and leave history untouched.
func (a *Analyzer) Process(frame *landmark.Frame) *Analysis {
	return a.Advance(a.Extract(frame))
}

// Extract computes the per-frame measurements without touching analyzer
// state. It never returns nil.
func (a *Analyzer) Extract(frame *landmark.Frame) *Features {
	f := &Features{}
	if frame == nil || len(frame.Face) < landmark.MinFaceCoarse {
		return f
	}
	face := frame.Face
	f.FaceUsable = true
	f.MeshCount = len(face)

	f.AnchorsOK = true
	for i, idx := range landmark.MovementAnchors {
		if idx >= len(face) {
			f.AnchorsOK = false
			break
		}
		f.Anchors[i] = face[idx]
	}

	f.EyeMovement = a.eyeMovement(face)
	f.PostureShifts = postureShifts(frame)
	f.NostrilArea = landmark.PolygonArea(face, landmark.NostrilOutline[:])
	f.MicroExpressions = a.microExpressions(face)
	return f
}

// Advance folds one frame's features into the history and returns the
// composite analysis.
func (a *Analyzer) Advance(f *Features) *Analysis {
	if !f.FaceUsable {
		a.havePrev = false
		out := &Analysis{Overall: fallbackOverall, Trend: TrendStable, Confidence: 0}
		if a.coach != nil {
			out.Recommendations = []string{a.coach.Text(guidance.MsgRestlessNoFace)}
		}
		return out
	}

	c := Components{
		FaceMovement:          a.faceMovement(f),
		EyeMovement:           f.EyeMovement,
		PostureShifts:         f.PostureShifts,
		BreathingIrregularity: a.breathingIrregularity(f.NostrilArea),
		MicroExpressions:      f.MicroExpressions,
	}

	out := &Analysis{
		Components: c,
		Overall: landmark.Clamp01(weightFace*c.FaceMovement +
			weightEye*c.EyeMovement +
			weightPosture*c.PostureShifts +
			weightBreathing*c.BreathingIrregularity +
			weightMicro*c.MicroExpressions),
		Confidence: landmark.Clamp01(float64(f.MeshCount) / landmark.FaceMeshPoints),
	}

	a.overall.Push(out.Overall)
	out.Trend = a.trend()
	out.Recommendations = a.recommend(out)
	return out
}

// Reset drops all history. The next Process behaves as on a fresh analyzer.
func (a *Analyzer) Reset() {
	a.nostril.Reset()
	a.overall.Reset()
	a.havePrev = false
	a.prevAnchors = [3]landmark.Point{}
}

// faceMovement is the mean frame-to-frame displacement of the stable facial
// anchors. The first frame after (re)acquiring the face scores zero.
func (a *Analyzer) faceMovement(f *Features) float64 {
	if !f.AnchorsOK {
		a.havePrev = false
		return 0
	}

	var score float64
	if a.havePrev {
		var total float64
		for i := range f.Anchors {
			total += landmark.Dist(f.Anchors[i], a.prevAnchors[i])
		}
		score = landmark.Clamp01(total / 3 * faceMovementGain)
	}
	a.prevAnchors = f.Anchors
	a.havePrev = true
	return score
}

// eyeMovement measures lid openness deviation from the calibrated neutral
// eye aspect ratio.
func (a *Analyzer) eyeMovement(face []landmark.Point) float64 {
	right := landmark.EyeAspect(face, landmark.RightEyeRing)
	left := landmark.EyeAspect(face, landmark.LeftEyeRing)
	if right == 0 && left == 0 {
		return 0
	}
	ear := (right + left) / 2
	if right == 0 || left == 0 {
		ear = right + left
	}
	return landmark.Clamp01(math.Abs(ear-a.calib.NeutralEAR) / a.calib.NeutralEAR)
}

// postureShifts reads the shoulder line when pose points are present and
// falls back to the head tilt line otherwise.
func postureShifts(frame *landmark.Frame) float64 {
	var angle float64
	if frame.HasPose() && len(frame.Pose) > landmark.PoseRightShoulder {
		angle = landmark.SegmentAngleDeg(frame.Pose[landmark.PoseRightShoulder], frame.Pose[landmark.PoseLeftShoulder])
	} else if len(frame.Face) > landmark.LeftFaceSide {
		angle = landmark.SegmentAngleDeg(frame.Face[landmark.RightFaceSide], frame.Face[landmark.LeftFaceSide])
	}
	angle = math.Abs(angle)
	if angle > 90 {
		angle = 180 - angle
	}
	return landmark.Clamp01(angle / shoulderMaxDeg)
}

// breathingIrregularity tracks the variance of the nostril polygon area over
// a rolling window; erratic breathing flutters the nostril rim.
func (a *Analyzer) breathingIrregularity(area float64) float64 {
	if area == 0 {
		return 0
	}
	a.nostril.Push(area)
	if a.nostril.Len() < 10 {
		return 0
	}
	return landmark.Clamp01(stat.Variance(a.nostril.Values(), nil) * breathVarGain)
}

// microExpressions measures mouth width and brow height deviation from the
// calibrated neutral face.
func (a *Analyzer) microExpressions(face []landmark.Point) float64 {
	if len(face) <= landmark.LeftBrow {
		return 0
	}
	mouth := landmark.Dist(face[landmark.MouthRight], face[landmark.MouthLeft])
	brow := (landmark.Dist(face[landmark.RightBrow], face[landmark.RightEyeTop]) +
		landmark.Dist(face[landmark.LeftBrow], face[landmark.LeftEyeTop])) / 2

	var dev float64
	if a.calib.NeutralMouthWidth > 0 {
		dev += math.Abs(mouth-a.calib.NeutralMouthWidth) / a.calib.NeutralMouthWidth
	}
	if a.calib.NeutralBrowHeight > 0 {
		dev += math.Abs(brow-a.calib.NeutralBrowHeight) / a.calib.NeutralBrowHeight
	}
	return landmark.Clamp01(dev / 2 * microGain)
}

// trend compares the mean of the newest trendHalf scores against the
// trendHalf before them; a drop in restlessness is an improvement.
func (a *Analyzer) trend() Trend {
	if a.overall.Len() < trendHalf*2 {
		return TrendStable
	}
	t := a.overall.Tail(trendHalf * 2)
	prior := stat.Mean(t[:trendHalf], nil)
	recent := stat.Mean(t[trendHalf:], nil)

	switch {
	case prior-recent > trendBand:
		return TrendImproving
	case recent-prior > trendBand:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func (a *Analyzer) recommend(out *Analysis) []string {
	if a.coach == nil {
		return nil
	}
	var msgs []string
	if out.Overall > adviseThreshold {
		msgs = append(msgs, a.coach.Text(guidance.MsgRestlessSettle))
	}
	if out.Components.EyeMovement > adviseThreshold {
		msgs = append(msgs, a.coach.Text(guidance.MsgRestlessEyes))
	}
	if out.Components.BreathingIrregularity > adviseThreshold {
		msgs = append(msgs, a.coach.Text(guidance.MsgRestlessBreathing))
	}
	if len(msgs) > 3 {
		msgs = msgs[:3]
	}
	return msgs
}

package restless

import (
	"testing"
	"time"

	"sylph/internal/guidance"
	"sylph/internal/landmark"
)

// calmFace builds a neutral mesh matching DefaultCalibration: relaxed eyes,
// level head, resting mouth and brows.
func calmFace() []landmark.Point {
	face := make([]landmark.Point, landmark.FaceMeshPoints)
	for i := range face {
		face[i] = landmark.Point{X: 0.5, Y: 0.5}
	}
	set := func(idx int, x, y float64) { face[idx] = landmark.Point{X: x, Y: y} }

	set(landmark.NoseTip, 0.5, 0.45)
	set(landmark.Forehead, 0.5, 0.30)
	set(landmark.LowerLip, 0.5, 0.58)
	set(landmark.RightFaceSide, 0.38, 0.42)
	set(landmark.LeftFaceSide, 0.62, 0.42)

	// Right eye ring at EAR 0.30.
	set(33, 0.44, 0.40)
	set(133, 0.50, 0.40)
	set(160, 0.46, 0.391)
	set(144, 0.46, 0.409)
	set(158, 0.48, 0.391)
	set(153, 0.48, 0.409)
	// Left eye ring at EAR 0.30.
	set(362, 0.55, 0.40)
	set(263, 0.61, 0.40)
	set(385, 0.57, 0.391)
	set(380, 0.57, 0.409)
	set(387, 0.59, 0.391)
	set(373, 0.59, 0.409)

	set(landmark.MouthRight, 0.46, 0.55)
	set(landmark.MouthLeft, 0.54, 0.55)
	set(landmark.RightEyeTop, 0.47, 0.392)
	set(landmark.RightBrow, 0.47, 0.367)
	set(landmark.LeftEyeTop, 0.57, 0.392)
	set(landmark.LeftBrow, 0.57, 0.367)

	set(landmark.RightNostril, 0.485, 0.465)
	set(landmark.Subnasale, 0.5, 0.472)
	set(landmark.LeftNostril, 0.515, 0.465)
	return face
}

func calmFrame(seq uint64) *landmark.Frame {
	return &landmark.Frame{
		Face:       calmFace(),
		Width:      640,
		Height:     480,
		Seq:        seq,
		Confidence: 0.9,
		Timestamp:  time.Unix(1700000000, 0).Add(time.Duration(seq) * 100 * time.Millisecond),
	}
}

// jumpyFrame shifts the movement anchors by an alternating offset so every
// frame-to-frame displacement is large.
func jumpyFrame(seq uint64) *landmark.Frame {
	f := calmFrame(seq)
	off := 0.04
	if seq%2 == 0 {
		off = -0.04
	}
	for _, idx := range landmark.MovementAnchors {
		p := f.Face[idx]
		f.Face[idx] = landmark.Point{X: p.X + off, Y: p.Y}
	}
	return f
}

func checkBounds(t *testing.T, a *Analysis) {
	t.Helper()
	vals := []float64{
		a.Overall,
		a.Components.FaceMovement,
		a.Components.EyeMovement,
		a.Components.PostureShifts,
		a.Components.BreathingIrregularity,
		a.Components.MicroExpressions,
		a.Confidence,
	}
	for i, v := range vals {
		if v < 0 || v > 1 {
			t.Errorf("value %d = %v out of [0,1]", i, v)
		}
	}
}

func TestNoFaceFallback(t *testing.T) {
	a := NewAnalyzer(nil, Calibration{})
	got := a.Process(&landmark.Frame{Width: 640, Height: 480, Timestamp: time.Now()})

	if got.Overall != fallbackOverall {
		t.Errorf("overall = %v, want %v", got.Overall, fallbackOverall)
	}
	if got.Trend != TrendStable {
		t.Errorf("trend = %q, want stable", got.Trend)
	}
	if got.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", got.Confidence)
	}

	coach, err := guidance.NewCoach()
	if err != nil {
		t.Fatalf("NewCoach: %v", err)
	}
	withCoach := NewAnalyzer(coach, Calibration{})
	got = withCoach.Process(nil)
	if len(got.Recommendations) != 1 {
		t.Fatalf("expected one visibility hint, got %v", got.Recommendations)
	}
}

func TestCalmIdenticalFramesScoreLow(t *testing.T) {
	a := NewAnalyzer(nil, Calibration{})
	var last *Analysis
	for i := 0; i < 15; i++ {
		last = a.Process(calmFrame(uint64(i)))
		checkBounds(t, last)
	}

	if last.Components.FaceMovement != 0 {
		t.Errorf("faceMovement = %v on identical frames, want 0", last.Components.FaceMovement)
	}
	if last.Overall > 0.1 {
		t.Errorf("overall = %v for a calm still face, want near 0", last.Overall)
	}
}

func TestJumpyFramesScoreHigh(t *testing.T) {
	a := NewAnalyzer(nil, Calibration{})
	var last *Analysis
	for i := 0; i < 10; i++ {
		last = a.Process(jumpyFrame(uint64(i)))
		checkBounds(t, last)
	}

	if last.Components.FaceMovement != 1 {
		t.Errorf("faceMovement = %v for large jumps, want saturated at 1", last.Components.FaceMovement)
	}
	if last.Overall < 0.25 {
		t.Errorf("overall = %v for constant jumping, want well above calm", last.Overall)
	}
}

func TestTrendDeclinesWhenMovementRises(t *testing.T) {
	a := NewAnalyzer(nil, Calibration{})
	for i := 0; i < trendHalf; i++ {
		a.Process(calmFrame(uint64(i)))
	}
	var last *Analysis
	for i := trendHalf; i < trendHalf*2; i++ {
		last = a.Process(jumpyFrame(uint64(i)))
	}

	if last.Trend != TrendDeclining {
		t.Errorf("trend = %q after movement rose, want declining", last.Trend)
	}
}

func TestConfidenceTracksMeshCoverage(t *testing.T) {
	a := NewAnalyzer(nil, Calibration{})
	frame := calmFrame(0)
	frame.Face = frame.Face[:300]

	got := a.Process(frame)
	want := 300.0 / landmark.FaceMeshPoints
	if diff := got.Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %v, want %v", got.Confidence, want)
	}
	checkBounds(t, got)
}

func TestResetMatchesFreshAnalyzer(t *testing.T) {
	used := NewAnalyzer(nil, Calibration{})
	for i := 0; i < 25; i++ {
		used.Process(jumpyFrame(uint64(i)))
	}
	used.Reset()

	fresh := NewAnalyzer(nil, Calibration{})
	var gotUsed, gotFresh *Analysis
	for i := 0; i < 12; i++ {
		gotUsed = used.Process(calmFrame(uint64(i)))
		gotFresh = fresh.Process(calmFrame(uint64(i)))
	}

	if gotUsed.Overall != gotFresh.Overall {
		t.Errorf("overall after reset = %v, fresh = %v", gotUsed.Overall, gotFresh.Overall)
	}
	if gotUsed.Trend != gotFresh.Trend {
		t.Errorf("trend after reset = %q, fresh = %q", gotUsed.Trend, gotFresh.Trend)
	}
}

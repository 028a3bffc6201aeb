package posture

import (
	"math"
	"strings"
	"testing"
	"time"

	"sylph/internal/guidance"
	"sylph/internal/landmark"
)

// neutralFace builds a centered, level face mesh.
func neutralFace() []landmark.Point {
	face := make([]landmark.Point, landmark.FaceMeshPoints)
	for i := range face {
		face[i] = landmark.Point{X: 0.5, Y: 0.5}
	}
	face[landmark.RightFaceSide] = landmark.Point{X: 0.38, Y: 0.42}
	face[landmark.LeftFaceSide] = landmark.Point{X: 0.62, Y: 0.42}
	face[landmark.NoseTip] = landmark.Point{X: 0.5, Y: 0.45}
	face[landmark.RightEyeOuter] = landmark.Point{X: 0.44, Y: 0.40}
	face[landmark.LeftEyeOuter] = landmark.Point{X: 0.56, Y: 0.40}
	face[landmark.Forehead] = landmark.Point{X: 0.5, Y: 0.30}
	face[landmark.Chin] = landmark.Point{X: 0.5, Y: 0.62}
	return face
}

func frameWithShoulderAngle(deg float64) *landmark.Frame {
	dy := math.Tan(deg*math.Pi/180) * 0.15
	pose := make([]landmark.Point, 33)
	pose[landmark.PoseLeftShoulder] = landmark.Point{X: 0.65, Y: 0.62 + dy, Visibility: 1}
	pose[landmark.PoseRightShoulder] = landmark.Point{X: 0.35, Y: 0.62 - dy, Visibility: 1}

	return &landmark.Frame{
		Face:       neutralFace(),
		Pose:       pose,
		Width:      640,
		Height:     480,
		Confidence: 0.9,
		Timestamp:  time.Unix(1700000000, 0),
	}
}

func TestSparseMeshReturnsNil(t *testing.T) {
	a := NewAnalyzer(nil)
	frame := frameWithShoulderAngle(0)
	frame.Face = frame.Face[:30]

	if got := a.Process(frame); got != nil {
		t.Fatalf("expected nil metrics for sparse mesh, got %+v", got)
	}
}

func TestNeutralFrameScoresExcellent(t *testing.T) {
	a := NewAnalyzer(nil)
	m := a.Process(frameWithShoulderAngle(0))
	if m == nil {
		t.Fatal("no metrics")
	}
	if m.Overall < cutExcellent {
		t.Errorf("overall = %.2f, want >= %.2f", m.Overall, cutExcellent)
	}
	if m.Classification != ClassExcellent {
		t.Errorf("classification = %q, want excellent", m.Classification)
	}
	if m.Confidence != 0.9 {
		t.Errorf("confidence = %.2f, want 0.9 with pose shoulders", m.Confidence)
	}
}

func TestOverallMonotoneInShoulderDeviation(t *testing.T) {
	a := NewAnalyzer(nil)
	prev := math.Inf(1)
	for _, deg := range []float64{0, 4, 8, 12, 16} {
		m := a.Process(frameWithShoulderAngle(deg))
		if m == nil {
			t.Fatalf("no metrics at %v deg", deg)
		}
		if m.Overall > prev {
			t.Errorf("overall rose from %.3f to %.3f as shoulder angle grew to %v deg",
				prev, m.Overall, deg)
		}
		prev = m.Overall
	}
}

func TestEstimatedShouldersLowerConfidence(t *testing.T) {
	a := NewAnalyzer(nil)
	frame := frameWithShoulderAngle(0)
	frame.Pose = nil

	m := a.Process(frame)
	if m == nil {
		t.Fatal("no metrics")
	}
	if m.Confidence != estConfidence {
		t.Errorf("confidence = %.2f, want %.2f without pose points", m.Confidence, estConfidence)
	}
	if m.ShoulderLevel != 1 {
		t.Errorf("estimated shoulders should be level, got %.2f", m.ShoulderLevel)
	}
}

func TestTrendImprovesAfterCorrection(t *testing.T) {
	a := NewAnalyzer(nil)
	var last *Metrics
	for i := 0; i < trendHalf; i++ {
		last = a.Process(frameWithShoulderAngle(14))
	}
	for i := 0; i < trendHalf; i++ {
		last = a.Process(frameWithShoulderAngle(0))
	}
	if last == nil {
		t.Fatal("no metrics")
	}
	if last.Trend != TrendImproving {
		t.Errorf("trend = %q, want improving after correction", last.Trend)
	}
}

func TestRecommendationsNameTheIssue(t *testing.T) {
	coachless := NewAnalyzer(nil)
	if m := coachless.Process(frameWithShoulderAngle(14)); m == nil || m.Recommendations != nil {
		t.Fatalf("coachless analyzer should produce no recommendations, got %+v", m)
	}

	coach, err := guidance.NewCoach()
	if err != nil {
		t.Fatalf("NewCoach: %v", err)
	}
	a := NewAnalyzer(coach)
	m := a.Process(frameWithShoulderAngle(14))
	if m == nil {
		t.Fatal("no metrics")
	}
	found := false
	for _, r := range m.Recommendations {
		if strings.Contains(r, "shoulders") {
			found = true
		}
	}
	if !found {
		t.Errorf("recommendations %v do not mention shoulders", m.Recommendations)
	}
}

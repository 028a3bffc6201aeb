package provider

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"sylph/internal/landmark"
)

// Synthetic generates an idle breathing face, for demos and smoke runs
// without a camera or inference service. The breath cycle is a sine at the
// configured rate; a seeded noise source adds sub-pixel jitter so movement
// channels read realistically low instead of exactly zero.
type Synthetic struct {
	width  int
	height int
	rate   float64 // breaths per minute

	mu    sync.Mutex
	rng   *rand.Rand
	seq   uint64
	start time.Time
}

func NewSynthetic(width, height int, breathsPerMinute float64, seed int64) *Synthetic {
	if breathsPerMinute <= 0 {
		breathsPerMinute = 14
	}
	return &Synthetic{
		width:  width,
		height: height,
		rate:   breathsPerMinute,
		rng:    rand.New(rand.NewSource(seed)),
		start:  time.Now(),
	}
}

func (s *Synthetic) Ready() bool            { return true }
func (s *Synthetic) Dimensions() (int, int) { return s.width, s.height }

func (s *Synthetic) Acquire(ctx context.Context) (*landmark.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	now := time.Now()
	t := now.Sub(s.start).Seconds()
	phase := math.Sin(2 * math.Pi * s.rate / 60 * t)

	face := neutralFace()

	// Inhale: the jaw drops a touch and the nostrils flare. These drive the
	// vertical-extent breath signal and the nostril-area channel.
	face[landmark.Chin].Y += 0.004 * phase
	face[landmark.LowerLip].Y += 0.002 * phase
	face[landmark.RightNostril].X -= 0.0015 * phase
	face[landmark.LeftNostril].X += 0.0015 * phase

	// Slow head drift plus sensor-grade jitter on the movement anchors.
	drift := 0.0008 * math.Sin(2*math.Pi*t/7)
	for _, idx := range landmark.MovementAnchors {
		face[idx].X += drift + s.noise()
		face[idx].Y += s.noise()
	}

	return &landmark.Frame{
		Face:       face,
		Width:      s.width,
		Height:     s.height,
		Seq:        s.seq,
		Confidence: 0.9 + 0.05*s.rng.Float64(),
		Timestamp:  now,
	}, nil
}

func (s *Synthetic) noise() float64 {
	return (s.rng.Float64() - 0.5) * 0.0004
}

// neutralFace is a relaxed front-facing mesh: level head, open eyes,
// resting mouth. Points the extractors never read sit at center.
func neutralFace() []landmark.Point {
	face := make([]landmark.Point, landmark.FaceMeshPoints)
	for i := range face {
		face[i] = landmark.Point{X: 0.5, Y: 0.5}
	}
	set := func(idx int, x, y float64) { face[idx] = landmark.Point{X: x, Y: y} }

	set(landmark.NoseTip, 0.5, 0.45)
	set(landmark.Forehead, 0.5, 0.30)
	set(landmark.LowerLip, 0.5, 0.58)
	set(landmark.Chin, 0.5, 0.65)
	set(landmark.RightFaceSide, 0.38, 0.42)
	set(landmark.LeftFaceSide, 0.62, 0.42)

	set(landmark.RightEyeRing[0], 0.44, 0.40)
	set(landmark.RightEyeRing[1], 0.46, 0.391)
	set(landmark.RightEyeRing[2], 0.48, 0.391)
	set(landmark.RightEyeRing[3], 0.50, 0.40)
	set(landmark.RightEyeRing[4], 0.48, 0.409)
	set(landmark.RightEyeRing[5], 0.46, 0.409)
	set(landmark.LeftEyeRing[0], 0.55, 0.40)
	set(landmark.LeftEyeRing[1], 0.57, 0.391)
	set(landmark.LeftEyeRing[2], 0.59, 0.391)
	set(landmark.LeftEyeRing[3], 0.61, 0.40)
	set(landmark.LeftEyeRing[4], 0.59, 0.409)
	set(landmark.LeftEyeRing[5], 0.57, 0.409)

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

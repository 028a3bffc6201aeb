package session

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"sylph/internal/landmark"
	"sylph/internal/ring"
	"sylph/internal/vision"
)

const (
	// History windows for the rolling aggregates. Breathing keeps a longer
	// window because consistency needs several full breath cycles.
	breathWindow = 100
	metricWindow = 50

	// stillnessThreshold splits movement samples into still and moving for
	// the stillness percentage.
	stillnessThreshold = 0.2

	// summaryCacheTTL bounds how often a busy poller recomputes the
	// aggregate.
	summaryCacheTTL = 60 * time.Second

	// consistencyMinSamples gates the consistency score; below this the
	// variance is meaningless and the score reports zero.
	consistencyMinSamples = 5
)

// Summary is the aggregate read of a session, computed over the rolling
// metric windows.
type Summary struct {
	SessionID        string    `json:"sessionId"`
	StartedAt        time.Time `json:"startedAt"`
	Duration         float64   `json:"durationSeconds"`
	TotalFrames      uint64    `json:"totalFrames"`
	AvgConfidence    float64   `json:"avgConfidence"`
	AvgPosture       float64   `json:"avgPosture"`
	AvgMovement      float64   `json:"avgMovement"`
	AvgBreathingRate float64   `json:"avgBreathingRate"`
	StillnessPct     float64   `json:"stillnessPct"`
	ConsistencyScore float64   `json:"consistencyScore"`
}

// Info is the listing view of a live session.
type Info struct {
	ID           string      `json:"id"`
	CreatedAt    time.Time   `json:"createdAt"`
	LastActivity time.Time   `json:"lastActivity"`
	Frames       uint64      `json:"frames"`
	Tier         vision.Tier `json:"tier"`
	Running      bool        `json:"running"`
}

// Session owns one engine and folds its snapshots into rolling aggregates.
// The observe callback runs on the engine's processing goroutine, so
// aggregation stays cheap and lock-scoped.
type Session struct {
	id      string
	created time.Time
	engine  *vision.Engine
	unsub   func()

	mu         sync.Mutex
	lastActive time.Time
	frames     uint64
	confidence *ring.Buffer[float64]
	posture    *ring.Buffer[float64]
	movement   *ring.Buffer[float64]
	breathing  *ring.Buffer[float64]

	cached   *Summary
	cachedAt time.Time
}

func newSession(id string, e *vision.Engine) *Session {
	now := time.Now()
	s := &Session{
		id:         id,
		created:    now,
		engine:     e,
		lastActive: now,
		confidence: ring.New[float64](metricWindow),
		posture:    ring.New[float64](metricWindow),
		movement:   ring.New[float64](metricWindow),
		breathing:  ring.New[float64](breathWindow),
	}
	s.unsub = e.Subscribe(s.observe)
	return s
}

func (s *Session) ID() string             { return s.id }
func (s *Session) CreatedAt() time.Time   { return s.created }
func (s *Session) Engine() *vision.Engine { return s.engine }

// Ingest pushes one frame through the session's engine and refreshes the
// activity clock.
func (s *Session) Ingest(ctx context.Context, frame *landmark.Frame) (*vision.Snapshot, error) {
	s.Touch()
	return s.engine.Ingest(ctx, frame)
}

// Touch marks the session active, deferring idle expiry.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Info reports the listing view.
func (s *Session) Info() Info {
	opts := s.engine.Options()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:           s.id,
		CreatedAt:    s.created,
		LastActivity: s.lastActive,
		Frames:       s.frames,
		Tier:         opts.Tier,
		Running:      s.engine.Running(),
	}
}

// observe folds one snapshot into the aggregates. Confidence and movement
// track every tick; posture and breathing only when their tier produces
// them, so a basic-tier session never averages fabricated zeros.
func (s *Session) observe(snap *vision.Snapshot) {
	m := snap.Metrics

	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames++
	s.confidence.Push(m.Confidence)
	s.movement.Push(m.MovementLevel)
	if m.PostureQuality > 0 {
		s.posture.Push(m.PostureQuality)
	}
	if r, ok := snap.Plugins[vision.FeatureBreathing]; ok && r.Breath != nil && r.Breath.Rate > 0 {
		s.breathing.Push(r.Breath.Rate)
	}
}

// Summary returns the aggregate, recomputing at most once per cache period.
func (s *Session) Summary() *Summary {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && now.Sub(s.cachedAt) < summaryCacheTTL {
		return s.cached
	}
	s.cached = s.summarizeLocked(now)
	s.cachedAt = now
	return s.cached
}

// finalSummary recomputes unconditionally, for the terminal report.
func (s *Session) finalSummary() *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summarizeLocked(time.Now())
}

func (s *Session) summarizeLocked(now time.Time) *Summary {
	sum := &Summary{
		SessionID:   s.id,
		StartedAt:   s.created,
		Duration:    now.Sub(s.created).Seconds(),
		TotalFrames: s.frames,
	}

	if s.confidence.Len() > 0 {
		sum.AvgConfidence = stat.Mean(s.confidence.Values(), nil)
	}
	if s.posture.Len() > 0 {
		sum.AvgPosture = stat.Mean(s.posture.Values(), nil)
	}
	if s.movement.Len() > 0 {
		moves := s.movement.Values()
		sum.AvgMovement = stat.Mean(moves, nil)
		still := 0
		for _, m := range moves {
			if m < stillnessThreshold {
				still++
			}
		}
		sum.StillnessPct = float64(still) / float64(len(moves)) * 100
	}
	if s.breathing.Len() > 0 {
		sum.AvgBreathingRate = stat.Mean(s.breathing.Values(), nil)
	}
	sum.ConsistencyScore = s.consistencyLocked()
	return sum
}

// consistencyLocked scores breathing steadiness 0..100: low rate variance
// over the breathing window reads as high consistency.
func (s *Session) consistencyLocked() float64 {
	if s.breathing.Len() < consistencyMinSamples {
		return 0
	}
	variance := stat.PopVariance(s.breathing.Values(), nil)
	score := 100 - variance*10
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func (s *Session) expired(now time.Time, limits Limits) bool {
	s.mu.Lock()
	idle := now.Sub(s.lastActive)
	s.mu.Unlock()
	return idle > limits.IdleTimeout || now.Sub(s.created) > limits.MaxAge
}

package session

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sylph/internal/vision"
)

var (
	// ErrLimitReached - the registry is at its concurrent-session cap.
	ErrLimitReached = errors.New("maximum concurrent sessions reached")
	// ErrNotFound - no live session under that id.
	ErrNotFound = errors.New("session not found")
)

// Limits bound the registry. Zero values take the defaults.
type Limits struct {
	MaxConcurrent int
	IdleTimeout   time.Duration
	MaxAge        time.Duration
	SweepEvery    time.Duration
}

func (l Limits) normalized() Limits {
	if l.MaxConcurrent <= 0 {
		l.MaxConcurrent = 10
	}
	if l.IdleTimeout <= 0 {
		l.IdleTimeout = 5 * time.Minute
	}
	if l.MaxAge <= 0 {
		l.MaxAge = time.Hour
	}
	if l.SweepEvery <= 0 {
		l.SweepEvery = time.Minute
	}
	return l
}

// Registry manages live sessions: uuid allocation, the concurrency cap and
// the idle/age sweep. Each session runs its own push-mode engine built from
// the registry's base options.
type Registry struct {
	logger *log.Logger
	limits Limits
	base   vision.Options
	deps   vision.Deps

	mu         sync.Mutex
	sessions   map[string]*Session
	onShutdown func(id string, sum *Summary)

	done     chan struct{}
	stopOnce sync.Once
}

// NewRegistry builds a registry and starts its sweeper. deps are shared by
// every session's engine; leave deps.Tiers nil so each session owns its
// tier state, and share deps.Dispatcher so all sessions draw from one
// worker pool.
func NewRegistry(base vision.Options, deps vision.Deps, limits Limits, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	r := &Registry{
		logger:   logger,
		limits:   limits.normalized(),
		base:     base,
		deps:     deps,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	go r.sweeper()
	return r
}

// Start allocates a session, applies the overrides over the registry's base
// options and starts its engine in push mode.
func (r *Registry) Start(ctx context.Context, ov *vision.Overrides) (*Session, error) {
	r.mu.Lock()
	if len(r.sessions) >= r.limits.MaxConcurrent {
		r.mu.Unlock()
		return nil, ErrLimitReached
	}
	// Reserve the slot under the lock; engine startup happens outside it.
	id := uuid.NewString()
	r.sessions[id] = nil
	r.mu.Unlock()

	engine := vision.New(ov.Apply(r.base), r.deps)
	s := newSession(id, engine)
	if err := engine.StartPush(ctx); err != nil {
		s.unsub()
		engine.Close()
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
		return nil, err
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Printf("[Sessions] started %s (tier %s)", id, engine.Options().Tier)
	return s, nil
}

// OnShutdown registers a hook invoked with the final summary after a
// session ends, whether stopped explicitly or evicted by the sweeper.
func (r *Registry) OnShutdown(fn func(id string, sum *Summary)) {
	r.mu.Lock()
	r.onShutdown = fn
	r.mu.Unlock()
}

// Get returns the live session under id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[id]
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// List reports every live session, oldest first.
func (r *Registry) List() []Info {
	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s != nil {
			live = append(live, s)
		}
	}
	r.mu.Unlock()

	out := make([]Info, 0, len(live))
	for _, s := range live {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Count is the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stop ends a session and returns its final summary.
func (r *Registry) Stop(id string) (*Summary, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok || s == nil {
		return nil, ErrNotFound
	}
	return r.shutdown(s, "stopped"), nil
}

// Close stops the sweeper and every live session.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		if s != nil {
			live = append(live, s)
		}
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range live {
		r.shutdown(s, "shut down")
	}
}

func (r *Registry) shutdown(s *Session, reason string) *Summary {
	s.unsub()
	sum := s.finalSummary()
	s.engine.Close()
	r.logger.Printf("[Sessions] %s %s after %.0fs (%d frames)", s.id, reason, sum.Duration, sum.TotalFrames)

	r.mu.Lock()
	hook := r.onShutdown
	r.mu.Unlock()
	if hook != nil {
		hook(s.id, sum)
	}
	return sum
}

func (r *Registry) sweeper() {
	ticker := time.NewTicker(r.limits.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

// sweep evicts idle and over-age sessions.
func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s != nil && s.expired(now, r.limits) {
			delete(r.sessions, id)
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		r.shutdown(s, "expired")
	}
}

package vision

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"sylph/internal/landmark"
	"sylph/internal/offload"
	"sylph/internal/perf"
)

// breakerThreshold is the consecutive-failure count that opens the circuit
// breaker. One fully successful tick resets the count; an open breaker
// stays open until an explicit reinitialize.
const breakerThreshold = 5

// loop runs one tick of the processing pipeline at a time. Guards apply in
// order: throttle, single-flight, frame validity, circuit breaker. All
// extractor state is touched only inside the single-flight section.
type loop struct {
	logger    *log.Logger
	opts      Options
	offload   *offload.Dispatcher
	offloadOK bool
	perf      *perf.Monitor
	bus       *bus

	// throttleGap is slightly under minGap so the pull ticker, which fires
	// at exactly minGap, is not rejected on scheduler jitter.
	minGap      time.Duration
	throttleGap time.Duration
	lastNano    atomic.Int64
	inFlight    atomic.Bool
	seq         atomic.Uint64

	breakerOpen atomic.Bool

	mu       sync.Mutex
	plugins  []Plugin
	movement movementTracker
	failures int
}

func newLoop(opts Options, plugins []Plugin, dispatcher *offload.Dispatcher, monitor *perf.Monitor, b *bus, logger *log.Logger) *loop {
	minGap := time.Duration(float64(time.Second) / opts.TargetFPS)
	return &loop{
		logger:      logger,
		opts:        opts,
		offload:     dispatcher,
		offloadOK:   opts.UseWorkerOffload && dispatcher.Available(),
		perf:        monitor,
		bus:         b,
		minGap:      minGap,
		throttleGap: minGap * 9 / 10,
		plugins:     plugins,
	}
}

// setTier changes the gating tier for subsequent ticks.
func (l *loop) setTier(t Tier) {
	l.mu.Lock()
	l.opts.Tier = t
	l.mu.Unlock()
}

// setPlugins swaps the enabled plugin set. Takes effect on the very next
// tick.
func (l *loop) setPlugins(plugins []Plugin) {
	l.mu.Lock()
	l.plugins = plugins
	l.mu.Unlock()
}

// reinit closes a tripped breaker and restores the given plugins and the
// movement tracker to first-construction state.
func (l *loop) reinit(plugins []Plugin) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures = 0
	l.breakerOpen.Store(false)
	l.movement.reset()
	for _, p := range plugins {
		p.Reset()
	}
}

// shutdownPlugins runs Cleanup inside the loop's state lock so an
// in-flight merge finishes first.
func (l *loop) shutdownPlugins(plugins []Plugin) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range plugins {
		if err := p.Cleanup(); err != nil {
			l.logger.Printf("[Loop] plugin %s cleanup: %v", p.Name(), err)
		}
	}
}

// breakerTripped reports whether the circuit breaker is open.
func (l *loop) breakerTripped() bool {
	return l.breakerOpen.Load()
}

func (l *loop) consecutiveFailures() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}

// process runs one tick for the frame and publishes the snapshot. A nil or
// invalid frame produces a degraded snapshot without touching the
// extractors. Skipped ticks return ErrThrottled or ErrBusy without
// publishing; a busy skip counts as a frame drop.
func (l *loop) process(ctx context.Context, frame *landmark.Frame) (*Snapshot, error) {
	now := time.Now()

	if gap := now.UnixNano() - l.lastNano.Load(); gap < int64(l.throttleGap) {
		return nil, ErrThrottled
	}
	if !l.inFlight.CompareAndSwap(false, true) {
		l.perf.Drop()
		return nil, ErrBusy
	}
	defer l.inFlight.Store(false)
	l.lastNano.Store(now.UnixNano())

	snap := &Snapshot{Seq: l.seq.Add(1)}

	l.mu.Lock()
	switch {
	case frame == nil || !frame.Valid():
		l.movement.reset()
		snap.Metrics = Metrics{Timestamp: now}

	case l.breakerOpen.Load():
		snap.Metrics = Metrics{Timestamp: now}

	default:
		m, results, err := l.extract(ctx, snap.Seq, frame)
		if err != nil {
			if ctx.Err() != nil {
				l.mu.Unlock()
				return nil, ctx.Err()
			}
			l.failures++
			l.logger.Printf("[Loop] tick %d failed (%d consecutive): %v", snap.Seq, l.failures, err)
			if l.failures >= breakerThreshold && !l.breakerOpen.Load() {
				l.breakerOpen.Store(true)
				l.logger.Printf("[Loop] circuit breaker open after %d consecutive failures, reinitialize required", l.failures)
			}
			snap.Metrics = Metrics{Timestamp: now}
		} else {
			l.failures = 0
			snap.Metrics = m
			snap.Plugins = results
		}
	}
	l.mu.Unlock()

	l.perf.ObserveTick(now, time.Since(now))
	snap.Performance = l.perf.Snapshot()

	// Publishing before the in-flight flag clears keeps snapshots in strict
	// tick order.
	l.bus.publish(snap)
	return snap, nil
}

// extract computes the tick's metrics. Caller holds l.mu.
func (l *loop) extract(ctx context.Context, seq uint64, frame *landmark.Frame) (Metrics, map[string]PluginResult, error) {
	m := Metrics{Timestamp: frame.Timestamp}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	if !l.opts.Tier.AtLeast(TierBasic) {
		return m, nil, nil
	}

	m.FaceDetected = frame.HasFace()
	if m.FaceDetected {
		m.Confidence = frame.Confidence
	}
	m.MovementLevel = l.movement.observe(frame)

	if !l.opts.Tier.AtLeast(TierStandard) || len(l.plugins) == 0 {
		return m, nil, nil
	}

	results := make(map[string]PluginResult, len(l.plugins))
	for _, p := range l.plugins {
		features, ok, err := l.extractOne(ctx, seq, p, frame)
		if err != nil {
			return Metrics{}, nil, fmt.Errorf("%s: %w", p.Name(), err)
		}
		if !ok {
			continue
		}
		res, err := mergeOne(p, features)
		if err != nil {
			return Metrics{}, nil, fmt.Errorf("%s: %w", p.Name(), err)
		}
		if res == nil {
			continue
		}
		results[p.Name()] = *res
	}

	l.gate(&m, results)
	return m, results, nil
}

// extracted wraps a plugin Extract return so it can travel through the
// dispatcher as one value.
type extracted struct {
	features interface{}
	ok       bool
}

func (l *loop) extractOne(ctx context.Context, seq uint64, p Plugin, frame *landmark.Frame) (interface{}, bool, error) {
	if l.offloadOK {
		if o, ok := p.(Offloadable); ok && o.CanOffload() {
			v, err := l.offload.Do(ctx, seq, func() interface{} {
				features, ok := p.Extract(frame)
				return extracted{features: features, ok: ok}
			})
			if err != nil {
				return nil, false, err
			}
			e := v.(extracted)
			return e.features, e.ok, nil
		}
	}
	return safeExtract(p, frame)
}

// safeExtract runs Extract inline, converting a panic into an error so one
// bad frame feeds the breaker instead of killing the loop.
func safeExtract(p Plugin, frame *landmark.Frame) (features interface{}, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract panic: %v", r)
		}
	}()
	features, ok = p.Extract(frame)
	return
}

func mergeOne(p Plugin, features interface{}) (res *PluginResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("merge panic: %v", r)
		}
	}()
	return p.Merge(features), nil
}

// gate fills the tier-dependent metric fields from plugin results. Fields
// above the active tier stay zero.
func (l *loop) gate(m *Metrics, results map[string]PluginResult) {
	if !l.opts.Tier.AtLeast(TierStandard) {
		return
	}

	if r, ok := results[FeaturePosture]; ok && r.Posture != nil {
		m.PostureQuality = r.Posture.Overall
	}
	if r, ok := results[FeatureRestlessness]; ok && r.Restless != nil {
		m.RestlessnessScore = r.Restless.Overall
		if m.FaceDetected {
			c := r.Restless.Components
			m.FocusLevel = landmark.Clamp01(1 - (0.6*c.EyeMovement + 0.4*c.FaceMovement))
		}
	}

	if l.opts.Tier.AtLeast(TierPremium) {
		m.Detail = detail(results)
	}
}

func detail(results map[string]PluginResult) *DetailMetrics {
	d := &DetailMetrics{}
	if r, ok := results[FeatureBreathing]; ok && r.Breath != nil {
		d.BreathingRate = r.Breath.Rate
		d.BreathingQuality = r.Breath.Quality
	}
	if r, ok := results[FeaturePosture]; ok && r.Posture != nil {
		d.SpineAlignment = r.Posture.SpineAlignment
		d.HeadScore = r.Posture.HeadScore
		d.ShoulderLevel = r.Posture.ShoulderLevel
	}
	if r, ok := results[FeatureRestlessness]; ok && r.Restless != nil {
		c := r.Restless.Components
		d.EyeMovement = c.EyeMovement
		d.PostureShifts = c.PostureShifts
		d.BreathingIrregularity = c.BreathingIrregularity
		d.MicroExpressions = c.MicroExpressions
	}
	return d
}

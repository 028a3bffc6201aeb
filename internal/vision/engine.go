package vision

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"sylph/internal/guidance"
	"sylph/internal/landmark"
	"sylph/internal/offload"
	"sylph/internal/perf"
	"sylph/internal/restless"
	"sylph/internal/tier"
)

var (
	// ErrNotRunning - the engine has not been started.
	ErrNotRunning = errors.New("engine not running")
	// ErrAlreadyRunning - Start or Configure on a running engine.
	ErrAlreadyRunning = errors.New("engine already running")
	// ErrBusy - a tick was skipped because the previous one is still in
	// flight. Counted as a frame drop.
	ErrBusy = errors.New("tick already in flight")
	// ErrThrottled - a tick arrived before the minimum inter-tick gap.
	ErrThrottled = errors.New("tick throttled")
	// ErrFrameInvalid - an ingested frame is nil or has no dimensions.
	ErrFrameInvalid = errors.New("invalid frame")
	// ErrNilSource - Start was given no frame source.
	ErrNilSource = errors.New("nil frame source")
	// ErrUnknownFeature - feature name outside the registered plugin set.
	ErrUnknownFeature = errors.New("unknown feature")
)

// Deps are the engine's injected collaborators. Zero values get working
// defaults: a tier manager over a static loader, an owned dispatcher sized
// from the options, no coach. PoseAvailable is the process-wide capability
// probe result and only matters when Tiers is nil.
type Deps struct {
	Tiers         *tier.Manager
	Dispatcher    *offload.Dispatcher
	Coach         *guidance.Coach
	Baseline      *guidance.Baseline
	Calibration   restless.Calibration
	PoseAvailable bool
	Logger        *log.Logger
}

// Engine orchestrates the processing loop: it owns the tier manager, the
// plugin set, the perf monitor and the snapshot bus. Safe for concurrent
// use.
type Engine struct {
	logger *log.Logger

	mu      sync.Mutex
	opts    Options
	plugins map[string]Plugin
	order   []string // registration order; fixes processing order per tick
	enabled map[string]bool

	tiers         *tier.Manager
	dispatcher    *offload.Dispatcher
	ownDispatcher bool
	monitor       *perf.Monitor
	bus           *bus

	loop    *loop
	source  FrameSource
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New builds an engine with the three built-in feature plugins registered.
func New(opts Options, deps Deps) *Engine {
	opts = opts.normalized()

	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	tiers := deps.Tiers
	if tiers == nil {
		variant := tier.VariantDesktop
		if opts.MobileOptimized {
			variant = tier.VariantMobile
		}
		tiers = tier.NewManager(tier.StaticLoader{}, variant, deps.PoseAvailable, logger)
	}

	dispatcher := deps.Dispatcher
	own := false
	if dispatcher == nil {
		workers := 0
		if opts.UseWorkerOffload {
			workers = offloadWorkers()
		}
		dispatcher = offload.NewDispatcher(workers, offload.DefaultTimeout, logger)
		own = true
	}

	e := &Engine{
		logger:        logger,
		opts:          opts,
		plugins:       make(map[string]Plugin),
		enabled:       make(map[string]bool),
		tiers:         tiers,
		dispatcher:    dispatcher,
		ownDispatcher: own,
		monitor:       perf.NewMonitor(),
		bus:           newBus(),
	}

	e.addPluginLocked(NewBreathPlugin(deps.Coach, deps.Baseline))
	e.addPluginLocked(NewPosturePlugin(deps.Coach))
	e.addPluginLocked(NewRestlessPlugin(deps.Coach, deps.Calibration))
	for _, name := range opts.EnabledFeatures {
		if _, ok := e.plugins[name]; ok {
			e.enabled[name] = true
		}
	}
	return e
}

func (e *Engine) addPluginLocked(p Plugin) {
	e.plugins[p.Name()] = p
	e.order = append(e.order, p.Name())
}

// RegisterPlugin adds a custom feature plugin under its name. Registration
// is only allowed while stopped; the name must be unused.
func (e *Engine) RegisterPlugin(p Plugin, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrAlreadyRunning
	}
	name := p.Name()
	if name == "" {
		return errors.New("plugin name empty")
	}
	if _, dup := e.plugins[name]; dup {
		return fmt.Errorf("plugin %s already registered", name)
	}
	e.addPluginLocked(p)
	if enabled {
		e.enabled[name] = true
	}
	return nil
}

func offloadWorkers() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	if n > 4 {
		n = 4
	}
	return n
}

// DefaultOffloadWorkers is the pool size used when offload is enabled
// without an explicit worker count. Exposed for callers that share one
// dispatcher across engines.
func DefaultOffloadWorkers() int {
	return offloadWorkers()
}

// Configure merges overrides into the options. Only allowed while stopped;
// a running engine changes tier and features through UpdateTier and
// EnableFeature/DisableFeature instead.
func (e *Engine) Configure(ov *Overrides) (Options, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return Options{}, ErrAlreadyRunning
	}
	e.opts = ov.Apply(e.opts)
	e.enabled = make(map[string]bool)
	for _, name := range e.opts.EnabledFeatures {
		if _, ok := e.plugins[name]; ok {
			e.enabled[name] = true
		}
	}
	return e.opts, nil
}

// Start validates the source, loads the active tier's models, initializes
// the enabled plugins and launches the pull loop. A failed start gets one
// reduced-capability retry (basic tier, offload and GPU off) before the
// original error returns.
func (e *Engine) Start(ctx context.Context, source FrameSource) error {
	if source == nil {
		return ErrNilSource
	}
	return e.start(ctx, source, true)
}

// StartPush initializes the engine for Ingest-driven ticks without a pull
// goroutine.
func (e *Engine) StartPush(ctx context.Context) error {
	return e.start(ctx, nil, false)
}

func (e *Engine) start(ctx context.Context, source FrameSource, pull bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrAlreadyRunning
	}

	err := e.startLocked(ctx, source, e.opts, pull)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	reduced := e.opts
	reduced.Tier = TierBasic
	reduced.UseWorkerOffload = false
	reduced.GPUAcceleration = false
	e.logger.Printf("[Engine] start failed (%v), retrying with reduced capability", err)
	if retryErr := e.startLocked(ctx, source, reduced, pull); retryErr != nil {
		return fmt.Errorf("engine start: %w", err)
	}
	e.opts = reduced
	return nil
}

func (e *Engine) startLocked(ctx context.Context, source FrameSource, opts Options, pull bool) error {
	if err := e.tiers.Initialize(ctx, opts.Tier); err != nil {
		return fmt.Errorf("tier init: %w", err)
	}

	enabled := e.enabledPluginsLocked()
	for _, p := range enabled {
		if err := p.Initialize(ctx); err != nil {
			return fmt.Errorf("plugin %s init: %w", p.Name(), err)
		}
	}

	e.loop = newLoop(opts, enabled, e.dispatcher, e.monitor, e.bus, e.logger)
	e.source = source
	e.running = true

	if pull {
		loopCtx, cancel := context.WithCancel(context.Background())
		e.cancel = cancel
		e.done = make(chan struct{})
		go e.run(loopCtx, source)
	}

	e.logger.Printf("[Engine] started (tier %s, features %d, offload %v)",
		opts.Tier, len(enabled), opts.UseWorkerOffload && e.dispatcher.Available())
	return nil
}

// run is the pull loop: it paces ticks at the target FPS and feeds frames
// from the source through the guarded processing path.
func (e *Engine) run(ctx context.Context, source FrameSource) {
	defer close(e.done)

	ticker := time.NewTicker(e.loop.minGap)
	defer ticker.Stop()

	e.logger.Printf("[Engine] processing loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pullTick(ctx, source)
		}
	}
}

func (e *Engine) pullTick(ctx context.Context, source FrameSource) {
	var frame *landmark.Frame
	if source.Ready() {
		if w, h := source.Dimensions(); w > 0 && h > 0 {
			acquireCtx, cancel := context.WithTimeout(ctx, e.loop.minGap)
			f, err := source.Acquire(acquireCtx)
			cancel()
			if err == nil {
				frame = f
			}
		}
	}
	if ctx.Err() != nil {
		return
	}

	if _, err := e.loop.process(ctx, frame); err != nil {
		if errors.Is(err, ErrThrottled) || errors.Is(err, ErrBusy) || ctx.Err() != nil {
			return
		}
		e.logger.Printf("[Engine] tick error: %v", err)
	}
}

// Ingest drives one tick with a caller-supplied frame, for push-style
// sources. The returned snapshot is the one published for this tick;
// ErrThrottled and ErrBusy report a skipped tick.
func (e *Engine) Ingest(ctx context.Context, frame *landmark.Frame) (*Snapshot, error) {
	e.mu.Lock()
	l := e.loop
	running := e.running
	e.mu.Unlock()

	if !running || l == nil {
		return nil, ErrNotRunning
	}
	if frame == nil || !frame.Valid() {
		return nil, ErrFrameInvalid
	}
	return l.process(ctx, frame)
}

// Stop halts the loop and cleans the plugins up. Offloaded work still in
// flight is abandoned. Safe to call more than once.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.done = nil
	e.source = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	e.mu.Lock()
	l := e.loop
	plugins := e.enabledPluginsLocked()
	e.mu.Unlock()

	if l != nil {
		l.shutdownPlugins(plugins)
	}

	e.tiers.Dispose()
	e.logger.Printf("[Engine] stopped")
	return nil
}

// Close stops the engine and releases the owned dispatcher and all
// subscribers. The engine cannot be restarted afterwards.
func (e *Engine) Close() error {
	e.Stop()
	if e.ownDispatcher {
		e.dispatcher.Close()
	}
	e.bus.close()
	return nil
}

// EnableFeature turns a feature on at runtime; it shows up in the next
// snapshot.
func (e *Engine) EnableFeature(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.plugins[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFeature, name)
	}
	if e.enabled[name] {
		return nil
	}
	if e.running {
		if err := p.Initialize(ctx); err != nil {
			return fmt.Errorf("plugin %s init: %w", name, err)
		}
	}
	e.enabled[name] = true
	e.syncLoopLocked()
	return nil
}

// DisableFeature turns a feature off at runtime. Its key is absent from
// the very next snapshot.
func (e *Engine) DisableFeature(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.plugins[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFeature, name)
	}
	if !e.enabled[name] {
		return nil
	}
	delete(e.enabled, name)
	e.syncLoopLocked()
	return nil
}

// UpdateTier switches the active tier at runtime. Field gating changes on
// the next tick; model bundles are swapped through the tier manager's
// fallback chain.
func (e *Engine) UpdateTier(ctx context.Context, t Tier) error {
	if !t.Valid() {
		return fmt.Errorf("unknown tier %q", t)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.tiers.UpdateTier(ctx, t); err != nil {
		return err
	}
	e.opts.Tier = t
	if e.loop != nil && e.running {
		e.loop.setTier(t)
	}
	return nil
}

// Reinitialize closes a tripped breaker, resets all extractor state and
// re-runs tier initialization. The engine keeps running.
func (e *Engine) Reinitialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || e.loop == nil {
		return ErrNotRunning
	}

	all := make([]Plugin, 0, len(e.plugins))
	for _, name := range e.order {
		all = append(all, e.plugins[name])
	}
	e.loop.reinit(all)
	e.monitor.Reset()
	if err := e.tiers.Initialize(ctx, e.opts.Tier); err != nil {
		return err
	}
	e.logger.Printf("[Engine] reinitialized")
	return nil
}

// Subscribe registers fn for every published snapshot and returns an
// unsubscribe function. fn runs on the processing goroutine in tick order;
// it must be fast and must not call Stop.
func (e *Engine) Subscribe(fn func(*Snapshot)) func() {
	return e.bus.subscribe(fn)
}

// SubscribeChannel returns a buffered snapshot channel and an unsubscribe
// function. Snapshots to a full channel are dropped for that subscriber.
func (e *Engine) SubscribeChannel(bufferSize int) (<-chan *Snapshot, func()) {
	return e.bus.subscribeChannel(bufferSize)
}

// PerformanceReport returns the current loop performance numbers.
func (e *Engine) PerformanceReport() perf.Metrics {
	return e.monitor.Snapshot()
}

// Health reports engine liveness, breaker state and counters.
func (e *Engine) Health() Health {
	e.mu.Lock()
	running := e.running
	l := e.loop
	t := e.opts.Tier
	e.mu.Unlock()

	h := Health{
		Running:      running,
		Tier:         t,
		Bundle:       e.tiers.ActiveBundle(),
		Capabilities: e.tiers.Capabilities(),
		Drops:        e.monitor.Drops(),
		Subscribers:  e.bus.count(),
		Offload:      e.dispatcher.Snapshot(),
	}
	if l != nil {
		h.BreakerOpen = l.breakerTripped()
		h.ConsecutiveFails = l.consecutiveFailures()
	}
	return h
}

// Options returns a copy of the effective options.
func (e *Engine) Options() Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts
}

// Running reports whether the engine has been started and not stopped.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) enabledPluginsLocked() []Plugin {
	out := make([]Plugin, 0, len(e.enabled))
	for _, name := range e.order {
		if e.enabled[name] {
			out = append(out, e.plugins[name])
		}
	}
	return out
}

// syncLoopLocked pushes the enabled set into the running loop and keeps
// opts.EnabledFeatures consistent for Health and presets.
func (e *Engine) syncLoopLocked() {
	if e.loop != nil && e.running {
		e.loop.setPlugins(e.enabledPluginsLocked())
	}
	feats := make([]string, 0, len(e.enabled))
	for _, name := range e.order {
		if e.enabled[name] {
			feats = append(feats, name)
		}
	}
	e.opts.EnabledFeatures = feats
}

package vision

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"sylph/internal/landmark"
	"sylph/internal/offload"
	"sylph/internal/perf"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fastOpts keeps the throttle gap tiny so tests can tick every couple of
// milliseconds.
func fastOpts(t Tier) Options {
	return Options{
		Tier:            t,
		EnabledFeatures: []string{},
		TargetFPS:       1000,
	}.normalized()
}

func newTestLoop(opts Options, plugins []Plugin) (*loop, *perf.Monitor) {
	monitor := perf.NewMonitor()
	d := offload.NewDispatcher(0, 0, quietLogger())
	return newLoop(opts, plugins, d, monitor, newBus(), quietLogger()), monitor
}

// nextTick spaces process calls past the throttle gap.
func nextTick() {
	time.Sleep(2 * time.Millisecond)
}

// fakePlugin drives the loop guards from tests. Behavior is controlled per
// test through the extract function.
type fakePlugin struct {
	name     string
	extract  func(*landmark.Frame) (interface{}, bool)
	extracts int
	merges   int
}

func (p *fakePlugin) Name() string                     { return p.name }
func (p *fakePlugin) Initialize(context.Context) error { return nil }

func (p *fakePlugin) Extract(frame *landmark.Frame) (interface{}, bool) {
	p.extracts++
	if p.extract == nil {
		return nil, false
	}
	return p.extract(frame)
}

func (p *fakePlugin) Merge(features interface{}) *PluginResult {
	p.merges++
	r, _ := features.(*PluginResult)
	return r
}

func (p *fakePlugin) Reset()         {}
func (p *fakePlugin) Cleanup() error { return nil }

func TestInvalidFrameYieldsDegradedSnapshot(t *testing.T) {
	l, _ := newTestLoop(fastOpts(TierStandard), nil)

	snap, err := l.process(context.Background(), nil)
	if err != nil {
		t.Fatalf("process(nil): %v", err)
	}
	if snap.Metrics.FaceDetected || snap.Metrics.Confidence != 0 {
		t.Errorf("degraded snapshot carries detection data: %+v", snap.Metrics)
	}
	if len(snap.Plugins) != 0 {
		t.Errorf("degraded snapshot has plugin results: %v", snap.Plugins)
	}

	nextTick()
	snap, err = l.process(context.Background(), &landmark.Frame{Width: 640, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("process(no height): %v", err)
	}
	if snap.Metrics.Confidence != 0 {
		t.Errorf("zero-dimension frame produced confidence %v", snap.Metrics.Confidence)
	}
}

func TestThrottleRejectsBackToBackTicks(t *testing.T) {
	l, _ := newTestLoop(Options{Tier: TierBasic, EnabledFeatures: []string{}, TargetFPS: 10}.normalized(), nil)

	if _, err := l.process(context.Background(), calmFrame(0)); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if _, err := l.process(context.Background(), calmFrame(1)); !errors.Is(err, ErrThrottled) {
		t.Fatalf("second immediate tick err = %v, want ErrThrottled", err)
	}
}

func TestInFlightTickDropsConcurrentOne(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	blocking := &fakePlugin{
		name: "blocking",
		extract: func(*landmark.Frame) (interface{}, bool) {
			once.Do(func() { close(entered) })
			<-release
			return nil, false
		},
	}

	l, monitor := newTestLoop(fastOpts(TierStandard), []Plugin{blocking})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := l.process(context.Background(), calmFrame(0)); err != nil {
			t.Errorf("blocked tick: %v", err)
		}
	}()

	<-entered
	nextTick() // past the throttle gap so the busy guard is what rejects
	if _, err := l.process(context.Background(), calmFrame(1)); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent tick err = %v, want ErrBusy", err)
	}
	close(release)
	wg.Wait()

	if drops := monitor.Drops(); drops != 1 {
		t.Errorf("drops = %d, want 1", drops)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	bad := &fakePlugin{
		name: "bad",
		extract: func(*landmark.Frame) (interface{}, bool) {
			panic("synthetic extractor failure")
		},
	}
	l, _ := newTestLoop(fastOpts(TierStandard), []Plugin{bad})

	for i := 0; i < breakerThreshold; i++ {
		if l.breakerTripped() {
			t.Fatalf("breaker open after %d failures, want %d", i, breakerThreshold)
		}
		snap, err := l.process(context.Background(), calmFrame(uint64(i)))
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if snap.Metrics.Confidence != 0 {
			t.Errorf("failed tick %d still produced metrics: %+v", i, snap.Metrics)
		}
		nextTick()
	}

	if !l.breakerTripped() {
		t.Fatal("breaker still closed after threshold failures")
	}

	// Extractors must not run again until reinitialized.
	before := bad.extracts
	if _, err := l.process(context.Background(), calmFrame(99)); err != nil {
		t.Fatalf("tick with open breaker: %v", err)
	}
	if bad.extracts != before {
		t.Errorf("extractor invoked %d times with open breaker", bad.extracts-before)
	}

	l.reinit([]Plugin{bad})
	if l.breakerTripped() {
		t.Error("breaker still open after reinit")
	}
	nextTick()
	if _, err := l.process(context.Background(), calmFrame(100)); err != nil {
		t.Fatalf("tick after reinit: %v", err)
	}
	if bad.extracts != before+1 {
		t.Errorf("extractor not invoked after reinit")
	}
}

func TestOneSuccessResetsFailureCount(t *testing.T) {
	fail := true
	flaky := &fakePlugin{
		name: "flaky",
		extract: func(*landmark.Frame) (interface{}, bool) {
			if fail {
				panic("synthetic extractor failure")
			}
			return nil, false
		},
	}
	l, _ := newTestLoop(fastOpts(TierStandard), []Plugin{flaky})

	seq := uint64(0)
	tick := func() {
		t.Helper()
		if _, err := l.process(context.Background(), calmFrame(seq)); err != nil {
			t.Fatalf("tick %d: %v", seq, err)
		}
		seq++
		nextTick()
	}

	for i := 0; i < breakerThreshold-1; i++ {
		tick()
	}
	if got := l.consecutiveFailures(); got != breakerThreshold-1 {
		t.Fatalf("failures = %d, want %d", got, breakerThreshold-1)
	}

	fail = false
	tick()
	if got := l.consecutiveFailures(); got != 0 {
		t.Errorf("failures = %d after success, want 0", got)
	}

	fail = true
	for i := 0; i < breakerThreshold-1; i++ {
		tick()
	}
	if l.breakerTripped() {
		t.Error("breaker opened even though the streak was broken")
	}
	tick()
	if !l.breakerTripped() {
		t.Error("breaker closed after a fresh full streak")
	}
}

func TestMovementLevelZeroOnIdenticalFrames(t *testing.T) {
	l, _ := newTestLoop(fastOpts(TierBasic), nil)

	var last *Snapshot
	for i := 0; i < 4; i++ {
		var err error
		last, err = l.process(context.Background(), calmFrame(uint64(i)))
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		nextTick()
	}
	if last.Metrics.MovementLevel != 0 {
		t.Errorf("movement = %v on identical frames, want 0", last.Metrics.MovementLevel)
	}
	if !last.Metrics.FaceDetected {
		t.Error("face not detected on full mesh")
	}

	// A shifted frame must register movement.
	moved := calmFrame(5)
	for _, idx := range landmark.MovementAnchors {
		p := moved.Face[idx]
		moved.Face[idx] = landmark.Point{X: p.X + 0.02, Y: p.Y}
	}
	snap, err := l.process(context.Background(), moved)
	if err != nil {
		t.Fatalf("moved tick: %v", err)
	}
	if snap.Metrics.MovementLevel <= 0 {
		t.Errorf("movement = %v after anchor shift, want > 0", snap.Metrics.MovementLevel)
	}
}

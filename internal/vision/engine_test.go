package vision

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"sylph/internal/landmark"
	"sylph/internal/offload"
)

// calmFace builds a neutral dense mesh: relaxed eyes, level head, resting
// mouth and brows.
func calmFace() []landmark.Point {
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

	// Eye rings at a neutral aspect ratio.
	set(33, 0.44, 0.40)
	set(133, 0.50, 0.40)
	set(160, 0.46, 0.391)
	set(144, 0.46, 0.409)
	set(158, 0.48, 0.391)
	set(153, 0.48, 0.409)
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

// fidgetFrame shifts the movement anchors by an alternating offset so the
// movement channels light up.
func fidgetFrame(seq uint64) *landmark.Frame {
	f := calmFrame(seq)
	off := 0.02
	if seq%2 == 0 {
		off = -0.02
	}
	for _, idx := range landmark.MovementAnchors {
		p := f.Face[idx]
		f.Face[idx] = landmark.Point{X: p.X + off, Y: p.Y}
	}
	return f
}

func newTestEngine(t *testing.T, opts Options, deps Deps) *Engine {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = quietLogger()
	}
	e := New(opts, deps)
	t.Cleanup(func() { e.Close() })
	return e
}

func startPush(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.StartPush(context.Background()); err != nil {
		t.Fatalf("StartPush: %v", err)
	}
}

// ingestN pushes count frames through the engine, spaced past the throttle
// gap, and returns the last snapshot.
func ingestN(t *testing.T, e *Engine, count int, frame func(uint64) *landmark.Frame) *Snapshot {
	t.Helper()
	var last *Snapshot
	for i := 0; i < count; i++ {
		snap, err := e.Ingest(context.Background(), frame(uint64(i)))
		if err != nil {
			t.Fatalf("Ingest %d: %v", i, err)
		}
		last = snap
		nextTick()
	}
	return last
}

func TestTierGatesMetricFields(t *testing.T) {
	cases := []struct {
		tier        Tier
		wantPlugins bool
		wantDetail  bool
	}{
		{TierBasic, false, false},
		{TierStandard, true, false},
		{TierPremium, true, true},
	}

	for _, tc := range cases {
		t.Run(string(tc.tier), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Tier = tc.tier
			opts.TargetFPS = 1000
			e := newTestEngine(t, opts, Deps{})
			startPush(t, e)

			snap := ingestN(t, e, 6, fidgetFrame)
			m := snap.Metrics

			if !m.FaceDetected || m.Confidence == 0 {
				t.Fatalf("face not scored: %+v", m)
			}
			if m.MovementLevel <= 0 {
				t.Errorf("movement = %v on fidgeting frames, want > 0", m.MovementLevel)
			}

			if tc.wantPlugins {
				if len(snap.Plugins) != 3 {
					t.Errorf("plugins = %d, want 3", len(snap.Plugins))
				}
				if m.PostureQuality <= 0 {
					t.Errorf("postureQuality = %v, want > 0", m.PostureQuality)
				}
				if m.RestlessnessScore <= 0 {
					t.Errorf("restlessnessScore = %v, want > 0", m.RestlessnessScore)
				}
			} else {
				if len(snap.Plugins) != 0 {
					t.Errorf("plugins present at %s tier: %v", tc.tier, snap.Plugins)
				}
				if m.PostureQuality != 0 || m.RestlessnessScore != 0 || m.FocusLevel != 0 {
					t.Errorf("gated fields populated at %s tier: %+v", tc.tier, m)
				}
			}

			if tc.wantDetail != (m.Detail != nil) {
				t.Errorf("detail present = %v at %s tier, want %v", m.Detail != nil, tc.tier, tc.wantDetail)
			}
		})
	}
}

func TestDisabledFeatureKeyAbsentImmediately(t *testing.T) {
	opts := DefaultOptions()
	opts.TargetFPS = 1000
	e := newTestEngine(t, opts, Deps{})
	startPush(t, e)

	snap := ingestN(t, e, 2, calmFrame)
	if _, ok := snap.Plugins[FeaturePosture]; !ok {
		t.Fatalf("posture missing before disable: %v", snap.Plugins)
	}

	if err := e.DisableFeature(FeaturePosture); err != nil {
		t.Fatalf("DisableFeature: %v", err)
	}
	nextTick()
	snap, err := e.Ingest(context.Background(), calmFrame(10))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, ok := snap.Plugins[FeaturePosture]; ok {
		t.Error("posture key still present on the first snapshot after disable")
	}
	if snap.Metrics.PostureQuality != 0 {
		t.Errorf("postureQuality = %v with posture disabled, want 0", snap.Metrics.PostureQuality)
	}
	if _, ok := snap.Plugins[FeatureRestlessness]; !ok {
		t.Error("other features disappeared with the disabled one")
	}

	if err := e.EnableFeature(context.Background(), FeaturePosture); err != nil {
		t.Fatalf("EnableFeature: %v", err)
	}
	nextTick()
	snap, err = e.Ingest(context.Background(), calmFrame(11))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, ok := snap.Plugins[FeaturePosture]; !ok {
		t.Error("posture key absent after re-enable")
	}
}

func TestUnknownFeatureRejected(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), Deps{})
	if err := e.EnableFeature(context.Background(), "astrology"); !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("EnableFeature err = %v, want ErrUnknownFeature", err)
	}
	if err := e.DisableFeature("astrology"); !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("DisableFeature err = %v, want ErrUnknownFeature", err)
	}
}

func TestSnapshotsArriveInTickOrder(t *testing.T) {
	opts := DefaultOptions()
	opts.TargetFPS = 1000
	e := newTestEngine(t, opts, Deps{})

	ch, unsub := e.SubscribeChannel(64)
	defer unsub()

	startPush(t, e)
	const n = 10
	ingestN(t, e, n, calmFrame)

	var last uint64
	for i := 0; i < n; i++ {
		select {
		case snap := <-ch:
			if snap.Seq <= last {
				t.Fatalf("snapshot %d out of order: seq %d after %d", i, snap.Seq, last)
			}
			last = snap.Seq
		case <-time.After(time.Second):
			t.Fatalf("snapshot %d never arrived", i)
		}
	}
}

func TestOffloadMatchesInline(t *testing.T) {
	pool := offload.NewDispatcher(2, time.Second, quietLogger())
	t.Cleanup(pool.Close)

	build := func(d *offload.Dispatcher) *Engine {
		opts := DefaultOptions()
		opts.Tier = TierPremium
		opts.TargetFPS = 1000
		opts.UseWorkerOffload = d != nil
		return newTestEngine(t, opts, Deps{Dispatcher: d})
	}

	inline := build(nil)
	offloaded := build(pool)
	startPush(t, inline)
	startPush(t, offloaded)

	const n = 20
	var wantSnap, gotSnap *Snapshot
	for i := 0; i < n; i++ {
		var err error
		wantSnap, err = inline.Ingest(context.Background(), fidgetFrame(uint64(i)))
		if err != nil {
			t.Fatalf("inline ingest %d: %v", i, err)
		}
		gotSnap, err = offloaded.Ingest(context.Background(), fidgetFrame(uint64(i)))
		if err != nil {
			t.Fatalf("offloaded ingest %d: %v", i, err)
		}
		nextTick()
	}

	want, got := wantSnap.Metrics, gotSnap.Metrics
	if got.MovementLevel != want.MovementLevel ||
		got.PostureQuality != want.PostureQuality ||
		got.RestlessnessScore != want.RestlessnessScore ||
		got.FocusLevel != want.FocusLevel {
		t.Errorf("offloaded metrics diverge from inline:\n got %+v\nwant %+v", got, want)
	}
	if got.Detail == nil || want.Detail == nil {
		t.Fatal("premium detail missing")
	}
	if *got.Detail != *want.Detail {
		t.Errorf("offloaded detail diverges:\n got %+v\nwant %+v", *got.Detail, *want.Detail)
	}
}

// flakyInitPlugin fails its first Initialize and succeeds afterwards.
type flakyInitPlugin struct {
	fakePlugin
	calls int
}

func (p *flakyInitPlugin) Initialize(context.Context) error {
	p.calls++
	if p.calls == 1 {
		return errors.New("model warmup failed")
	}
	return nil
}

func TestStartRetriesWithReducedCapability(t *testing.T) {
	opts := DefaultOptions()
	opts.Tier = TierPremium
	opts.UseWorkerOffload = true
	e := newTestEngine(t, opts, Deps{})

	flaky := &flakyInitPlugin{fakePlugin: fakePlugin{name: "flaky"}}
	if err := e.RegisterPlugin(flaky, true); err != nil {
		t.Fatalf("RegisterPlugin: %v", err)
	}

	if err := e.StartPush(context.Background()); err != nil {
		t.Fatalf("StartPush did not recover: %v", err)
	}

	got := e.Options()
	if got.Tier != TierBasic {
		t.Errorf("tier after reduced retry = %s, want basic", got.Tier)
	}
	if got.UseWorkerOffload || got.GPUAcceleration {
		t.Errorf("offload/GPU still on after reduced retry: %+v", got)
	}
	if !e.Running() {
		t.Error("engine not running after recovery")
	}
}

func TestIngestValidatesStateAndFrames(t *testing.T) {
	opts := DefaultOptions()
	opts.TargetFPS = 1000
	e := newTestEngine(t, opts, Deps{})

	if _, err := e.Ingest(context.Background(), calmFrame(0)); !errors.Is(err, ErrNotRunning) {
		t.Errorf("ingest before start err = %v, want ErrNotRunning", err)
	}

	startPush(t, e)
	if _, err := e.Ingest(context.Background(), nil); !errors.Is(err, ErrFrameInvalid) {
		t.Errorf("ingest(nil) err = %v, want ErrFrameInvalid", err)
	}
	if _, err := e.Ingest(context.Background(), &landmark.Frame{Width: 640, Height: 480}); !errors.Is(err, ErrFrameInvalid) {
		t.Errorf("ingest without timestamp err = %v, want ErrFrameInvalid", err)
	}
}

func TestBreakerRecoveryThroughReinitialize(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	bad := &fakePlugin{
		name: "unstable",
		extract: func(*landmark.Frame) (interface{}, bool) {
			if failing.Load() {
				panic("synthetic extractor failure")
			}
			return nil, false
		},
	}

	opts := DefaultOptions()
	opts.Tier = TierStandard
	opts.TargetFPS = 1000
	opts.EnabledFeatures = []string{}
	e := newTestEngine(t, opts, Deps{})
	if err := e.RegisterPlugin(bad, true); err != nil {
		t.Fatalf("RegisterPlugin: %v", err)
	}
	startPush(t, e)

	ingestN(t, e, breakerThreshold, calmFrame)
	h := e.Health()
	if !h.BreakerOpen {
		t.Fatalf("breaker closed after %d failures: %+v", breakerThreshold, h)
	}

	snap, err := e.Ingest(context.Background(), calmFrame(50))
	if err != nil {
		t.Fatalf("Ingest with open breaker: %v", err)
	}
	if snap.Metrics.Confidence != 0 {
		t.Errorf("open breaker still produced metrics: %+v", snap.Metrics)
	}

	failing.Store(false)
	if err := e.Reinitialize(context.Background()); err != nil {
		t.Fatalf("Reinitialize: %v", err)
	}
	h = e.Health()
	if h.BreakerOpen || h.ConsecutiveFails != 0 {
		t.Fatalf("breaker not reset: %+v", h)
	}

	nextTick()
	snap, err = e.Ingest(context.Background(), calmFrame(51))
	if err != nil {
		t.Fatalf("Ingest after reinit: %v", err)
	}
	if !snap.Metrics.FaceDetected {
		t.Error("processing did not resume after reinitialize")
	}
}

func TestCapabilityFallbackWithoutPoseRuntime(t *testing.T) {
	opts := DefaultOptions()
	opts.Tier = TierPremium
	opts.TargetFPS = 1000
	e := newTestEngine(t, opts, Deps{})
	startPush(t, e)

	h := e.Health()
	if h.Bundle != "face-full" {
		t.Errorf("bundle = %q without pose runtime, want face-full", h.Bundle)
	}
	if !h.Capabilities.FaceMesh || h.Capabilities.Pose {
		t.Errorf("capabilities = %+v, want face mesh without pose", h.Capabilities)
	}
	if !h.Capabilities.Refined {
		t.Errorf("premium face bundle should keep iris refinement: %+v", h.Capabilities)
	}
}

func TestStopIsIdempotentAndRestartable(t *testing.T) {
	opts := DefaultOptions()
	opts.TargetFPS = 1000
	e := newTestEngine(t, opts, Deps{})

	startPush(t, e)
	ingestN(t, e, 2, calmFrame)

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if _, err := e.Ingest(context.Background(), calmFrame(9)); !errors.Is(err, ErrNotRunning) {
		t.Errorf("ingest after stop err = %v, want ErrNotRunning", err)
	}

	startPush(t, e)
	if snap := ingestN(t, e, 1, calmFrame); !snap.Metrics.FaceDetected {
		t.Error("restarted engine does not process frames")
	}
}

// loopSource replays calm frames forever with fresh timestamps.
type loopSource struct{}

func (loopSource) Ready() bool            { return true }
func (loopSource) Dimensions() (int, int) { return 640, 480 }

func (loopSource) Acquire(context.Context) (*landmark.Frame, error) {
	f := calmFrame(0)
	f.Timestamp = time.Now()
	return f, nil
}

func TestPullLoopPublishesSnapshots(t *testing.T) {
	opts := DefaultOptions()
	opts.TargetFPS = 50
	e := newTestEngine(t, opts, Deps{})

	ch, unsub := e.SubscribeChannel(16)
	defer unsub()

	if err := e.Start(context.Background(), loopSource{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var last uint64
	for i := 0; i < 3; i++ {
		select {
		case snap := <-ch:
			if snap.Seq <= last {
				t.Fatalf("pull snapshots out of order: %d after %d", snap.Seq, last)
			}
			last = snap.Seq
			if !snap.Metrics.FaceDetected {
				t.Errorf("pull snapshot %d missing face", snap.Seq)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("pull snapshot %d never arrived", i)
		}
	}

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestConfigureRejectedWhileRunning(t *testing.T) {
	e := newTestEngine(t, DefaultOptions(), Deps{})
	startPush(t, e)

	tier := TierBasic
	if _, err := e.Configure(&Overrides{Tier: &tier}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Configure while running err = %v, want ErrAlreadyRunning", err)
	}
}

func TestMobileOptionsCapFPSAndOffload(t *testing.T) {
	opts := Options{
		Tier:             TierStandard,
		TargetFPS:        30,
		MobileOptimized:  true,
		UseWorkerOffload: true,
	}
	got := opts.normalized()
	if got.TargetFPS != mobileMaxFPS {
		t.Errorf("mobile fps = %v, want %v", got.TargetFPS, mobileMaxFPS)
	}
	if got.UseWorkerOffload {
		t.Error("mobile options left worker offload on")
	}
}

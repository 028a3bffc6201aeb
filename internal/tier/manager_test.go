package tier

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
)

// fakeLoader fails specific asset names and counts loads per asset.
type fakeLoader struct {
	mu      sync.Mutex
	failing map[string]bool
	loads   map[string]int
	closed  []string
}

func newFakeLoader(failing ...string) *fakeLoader {
	f := &fakeLoader{failing: map[string]bool{}, loads: map[string]int{}}
	for _, name := range failing {
		f.failing[name] = true
	}
	return f
}

func (f *fakeLoader) Load(_ context.Context, asset Asset) (Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads[asset.Name]++
	if f.failing[asset.Name] {
		return nil, io.ErrUnexpectedEOF
	}
	return &fakeModel{name: asset.Name, loader: f}, nil
}

func (f *fakeLoader) loadCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[name]
}

type fakeModel struct {
	name   string
	loader *fakeLoader
}

func (m *fakeModel) Name() string { return m.name }
func (m *fakeModel) Close() error {
	m.loader.mu.Lock()
	defer m.loader.mu.Unlock()
	m.loader.closed = append(m.loader.closed, m.name)
	return nil
}

func discard() *log.Logger { return log.New(io.Discard, "", 0) }

func TestPremiumLoadsFullBundleWhenPoseAvailable(t *testing.T) {
	loader := newFakeLoader()
	m := NewManager(loader, VariantDesktop, true, discard())

	if err := m.Initialize(context.Background(), Premium); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	caps := m.Capabilities()
	if !caps.FaceMesh || !caps.Pose || !caps.Refined {
		t.Errorf("capabilities = %+v, want full premium set", caps)
	}
	if m.ActiveBundle() != "face-full+pose" {
		t.Errorf("bundle = %q, want face-full+pose", m.ActiveBundle())
	}
}

func TestPremiumSkipsPoseWhenProbeFailed(t *testing.T) {
	loader := newFakeLoader()
	m := NewManager(loader, VariantDesktop, false, discard())

	if err := m.Initialize(context.Background(), Premium); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	caps := m.Capabilities()
	if caps.Pose {
		t.Error("pose capability granted without a pose runtime")
	}
	if !caps.FaceMesh {
		t.Error("face mesh should still load")
	}
	if n := loader.loadCount("pose_estimation"); n != 0 {
		t.Errorf("pose asset loaded %d times despite unavailable runtime", n)
	}
}

func TestFallbackChainDegrades(t *testing.T) {
	loader := newFakeLoader("pose_estimation")
	m := NewManager(loader, VariantDesktop, true, discard())

	if err := m.Initialize(context.Background(), Premium); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if m.ActiveBundle() != "face-full" {
		t.Errorf("bundle = %q, want face-full after pose load failure", m.ActiveBundle())
	}

	loader2 := newFakeLoader("pose_estimation", "face_landmarks")
	m2 := NewManager(loader2, VariantDesktop, true, discard())
	if err := m2.Initialize(context.Background(), Premium); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if m2.ActiveBundle() != "face-lite" {
		t.Errorf("bundle = %q, want face-lite after mesh load failure", m2.ActiveBundle())
	}
}

func TestExhaustedChainDisablesCapabilitiesWithoutError(t *testing.T) {
	loader := newFakeLoader("face_detection", "face_landmarks", "pose_estimation")
	m := NewManager(loader, VariantDesktop, true, discard())

	if err := m.Initialize(context.Background(), Standard); err != nil {
		t.Fatalf("Initialize returned %v, degraded init must not error", err)
	}
	if m.Capabilities().Any() {
		t.Errorf("capabilities = %+v, want none after exhausted chain", m.Capabilities())
	}
	if m.ActiveTier() != Standard {
		t.Errorf("tier = %q, want standard even when degraded", m.ActiveTier())
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	loader := newFakeLoader()
	m := NewManager(loader, VariantDesktop, false, discard())

	ctx := context.Background()
	if err := m.Initialize(ctx, Standard); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	first := loader.loadCount("face_landmarks")
	if err := m.Initialize(ctx, Standard); err != nil {
		t.Fatalf("re-Initialize: %v", err)
	}
	if got := loader.loadCount("face_landmarks"); got != first {
		t.Errorf("re-initializing the same tier reloaded models: %d -> %d", first, got)
	}
}

func TestUpdateTierDisposesOldModels(t *testing.T) {
	loader := newFakeLoader()
	m := NewManager(loader, VariantDesktop, false, discard())

	ctx := context.Background()
	if err := m.Initialize(ctx, Standard); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.UpdateTier(ctx, Basic); err != nil {
		t.Fatalf("UpdateTier: %v", err)
	}

	loader.mu.Lock()
	closed := len(loader.closed)
	loader.mu.Unlock()
	if closed == 0 {
		t.Error("old models were not closed on tier switch")
	}
	if m.ActiveBundle() != "face-lite" {
		t.Errorf("bundle = %q, want face-lite", m.ActiveBundle())
	}

	if err := m.UpdateTier(ctx, Basic); err != nil {
		t.Fatalf("UpdateTier same tier: %v", err)
	}
	if got := loader.loadCount("face_detection"); got != 2 {
		t.Errorf("face_detection loaded %d times, unchanged tier must not reload", got)
	}
}

func TestMobileVariantPrefersLitePose(t *testing.T) {
	b := fullPoseBundle(VariantMobile, true)
	found := false
	for _, a := range b.Assets {
		if a.Name == "pose_estimation" {
			found = true
			if want := "pose_landmarker_lite"; !strings.Contains(a.URL, want) {
				t.Errorf("mobile pose URL = %q, want it to reference %s", a.URL, want)
			}
		}
	}
	if !found {
		t.Fatal("bundle has no pose asset")
	}
}

func TestParseTier(t *testing.T) {
	for _, ok := range []string{"loading", "basic", "standard", "premium"} {
		if _, err := Parse(ok); err != nil {
			t.Errorf("Parse(%q) = %v", ok, err)
		}
	}
	if _, err := Parse("ultra"); err == nil {
		t.Error("Parse accepted an unknown tier")
	}
}

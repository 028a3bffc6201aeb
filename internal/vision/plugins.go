package vision

import (
	"context"

	"sylph/internal/breath"
	"sylph/internal/guidance"
	"sylph/internal/landmark"
	"sylph/internal/posture"
	"sylph/internal/restless"
)

// breathPlugin adapts the breath detector to the plugin contract.
type breathPlugin struct {
	det *breath.Detector
}

// NewBreathPlugin builds the breathing feature plugin. The coach and
// baseline may be nil.
func NewBreathPlugin(coach *guidance.Coach, baseline *guidance.Baseline) Plugin {
	return &breathPlugin{det: breath.NewDetector(coach, baseline)}
}

func (p *breathPlugin) Name() string { return FeatureBreathing }

func (p *breathPlugin) Initialize(ctx context.Context) error { return nil }

func (p *breathPlugin) Extract(frame *landmark.Frame) (interface{}, bool) {
	s, ok := p.det.Extract(frame)
	if !ok {
		return nil, false
	}
	return s, true
}

func (p *breathPlugin) Merge(features interface{}) *PluginResult {
	s, ok := features.(breath.Sample)
	if !ok {
		return nil
	}
	pat := p.det.Advance(s)
	if pat == nil {
		return nil
	}
	return &PluginResult{Breath: pat}
}

func (p *breathPlugin) Reset() { p.det.Reset() }

func (p *breathPlugin) Cleanup() error {
	p.det.Reset()
	return nil
}

func (p *breathPlugin) CanOffload() bool { return true }

// posturePlugin adapts the posture analyzer to the plugin contract.
type posturePlugin struct {
	an *posture.Analyzer
}

// NewPosturePlugin builds the posture feature plugin.
func NewPosturePlugin(coach *guidance.Coach) Plugin {
	return &posturePlugin{an: posture.NewAnalyzer(coach)}
}

func (p *posturePlugin) Name() string { return FeaturePosture }

func (p *posturePlugin) Initialize(ctx context.Context) error { return nil }

func (p *posturePlugin) Extract(frame *landmark.Frame) (interface{}, bool) {
	f, ok := p.an.Extract(frame)
	if !ok {
		return nil, false
	}
	return f, true
}

func (p *posturePlugin) Merge(features interface{}) *PluginResult {
	f, ok := features.(*posture.Features)
	if !ok {
		return nil
	}
	m := p.an.Advance(f)
	if m == nil {
		return nil
	}
	return &PluginResult{Posture: m}
}

func (p *posturePlugin) Reset() { p.an.Reset() }

func (p *posturePlugin) Cleanup() error {
	p.an.Reset()
	return nil
}

func (p *posturePlugin) CanOffload() bool { return true }

// restlessPlugin adapts the restlessness analyzer to the plugin contract.
// Extract always yields features: frames without a usable face still
// produce the analyzer's fixed fallback on Merge.
type restlessPlugin struct {
	an *restless.Analyzer
}

// NewRestlessPlugin builds the restlessness feature plugin.
func NewRestlessPlugin(coach *guidance.Coach, calib restless.Calibration) Plugin {
	return &restlessPlugin{an: restless.NewAnalyzer(coach, calib)}
}

func (p *restlessPlugin) Name() string { return FeatureRestlessness }

func (p *restlessPlugin) Initialize(ctx context.Context) error { return nil }

func (p *restlessPlugin) Extract(frame *landmark.Frame) (interface{}, bool) {
	return p.an.Extract(frame), true
}

func (p *restlessPlugin) Merge(features interface{}) *PluginResult {
	f, ok := features.(*restless.Features)
	if !ok {
		return nil
	}
	a := p.an.Advance(f)
	if a == nil {
		return nil
	}
	return &PluginResult{Restless: a}
}

func (p *restlessPlugin) Reset() { p.an.Reset() }

func (p *restlessPlugin) Cleanup() error {
	p.an.Reset()
	return nil
}

func (p *restlessPlugin) CanOffload() bool { return true }

var (
	_ Offloadable = (*breathPlugin)(nil)
	_ Offloadable = (*posturePlugin)(nil)
	_ Offloadable = (*restlessPlugin)(nil)
)

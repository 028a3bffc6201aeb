package perf

import (
	"testing"
	"time"
)

func TestSteadyTicksReportRate(t *testing.T) {
	m := NewMonitor()
	base := time.Unix(1700000000, 0)
	for i := 0; i < 50; i++ {
		m.ObserveTick(base.Add(time.Duration(i)*100*time.Millisecond), 10*time.Millisecond)
	}

	got := m.Snapshot()
	if got.FrameRate < 9.5 || got.FrameRate > 10.5 {
		t.Errorf("frame rate = %.2f, want ~10", got.FrameRate)
	}
	if got.FrameRateJitter > 0.01 {
		t.Errorf("jitter = %.4f for perfectly even ticks, want ~0", got.FrameRateJitter)
	}
	// 10ms work per 100ms tick: 10% duty.
	if got.CPUUsage < 5 || got.CPUUsage > 15 {
		t.Errorf("cpu usage = %.1f%%, want ~10%%", got.CPUUsage)
	}
	if got.ThermalState != ThermalNominal {
		t.Errorf("thermal = %q, want nominal at low duty", got.ThermalState)
	}
}

func TestHeavyDutyRaisesThermalState(t *testing.T) {
	m := NewMonitor()
	base := time.Unix(1700000000, 0)
	for i := 0; i < 30; i++ {
		m.ObserveTick(base.Add(time.Duration(i)*100*time.Millisecond), 95*time.Millisecond)
	}

	got := m.Snapshot()
	if got.ThermalState != ThermalCritical {
		t.Errorf("thermal = %q at ~95%% duty, want critical", got.ThermalState)
	}
}

func TestDropsAccumulateAcrossReset(t *testing.T) {
	m := NewMonitor()
	m.Drop()
	m.Drop()
	m.Reset()
	m.Drop()

	if got := m.Drops(); got != 3 {
		t.Errorf("drops = %d, want 3", got)
	}
	if got := m.Snapshot(); got.FrameRate != 0 {
		t.Errorf("frame rate after reset = %v, want 0", got.FrameRate)
	}
}

func TestThermalBands(t *testing.T) {
	tests := []struct {
		duty float64
		want ThermalState
	}{
		{0.2, ThermalNominal},
		{0.5, ThermalFair},
		{0.75, ThermalSerious},
		{0.95, ThermalCritical},
	}
	for _, tt := range tests {
		if got := thermal(tt.duty); got != tt.want {
			t.Errorf("thermal(%.2f) = %q, want %q", tt.duty, got, tt.want)
		}
	}
}

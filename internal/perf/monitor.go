package perf

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"sylph/internal/ring"
)

// ThermalState is a coarse load proxy in the absence of platform sensors,
// derived from the sustained processing duty cycle.
type ThermalState string

const (
	ThermalNominal  ThermalState = "nominal"
	ThermalFair     ThermalState = "fair"
	ThermalSerious  ThermalState = "serious"
	ThermalCritical ThermalState = "critical"
)

// Metrics is one performance snapshot.
type Metrics struct {
	FrameRate       float64      `json:"frameRate"`
	FrameRateJitter float64      `json:"frameRateJitter"`
	CPUUsage        float64      `json:"cpuUsage"` // duty cycle percent, 0-100
	MemoryMB        float64      `json:"memoryMb"`
	FrameDrops      uint64       `json:"frameDrops"`
	ThermalState    ThermalState `json:"thermalState"`
}

const (
	tickWindow   = 120
	ewmaAlpha    = 0.2
	memRefresh   = time.Second
	dutyFair     = 0.50
	dutySerious  = 0.75
	dutyCritical = 0.90
)

type tick struct {
	at   time.Time
	work time.Duration
}

// Monitor aggregates loop timing into frame rate, duty cycle and thermal
// proxies. Ticks come from the loop goroutine; Snapshot may be called from
// anywhere.
type Monitor struct {
	mu       sync.Mutex
	ticks    *ring.Buffer[tick]
	ewmaRate float64

	drops atomic.Uint64

	lastMemAt time.Time
	lastMemMB float64
}

// NewMonitor builds an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{ticks: ring.New[tick](tickWindow)}
}

// ObserveTick records one completed processing pass and the time spent
// working in it.
func (m *Monitor) ObserveTick(at time.Time, work time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.ticks.Last(); ok {
		if dt := at.Sub(last.at).Seconds(); dt > 0 {
			inst := 1 / dt
			if m.ewmaRate == 0 {
				m.ewmaRate = inst
			} else {
				m.ewmaRate = ewmaAlpha*inst + (1-ewmaAlpha)*m.ewmaRate
			}
		}
	}
	m.ticks.Push(tick{at: at, work: work})
}

// Drop counts a skipped frame: throttled, superseded or invalid.
func (m *Monitor) Drop() {
	m.drops.Add(1)
}

// Drops is the cumulative dropped frame count.
func (m *Monitor) Drops() uint64 {
	return m.drops.Load()
}

// Reset clears timing history; the drop counter survives.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks.Reset()
	m.ewmaRate = 0
}

// Snapshot computes current metrics. Memory is sampled at most once per
// second.
func (m *Monitor) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Metrics{
		FrameDrops:   m.drops.Load(),
		ThermalState: ThermalNominal,
	}

	ticks := m.ticks.Values()
	if len(ticks) >= 2 {
		span := ticks[len(ticks)-1].at.Sub(ticks[0].at).Seconds()
		if span > 0 {
			out.FrameRate = float64(len(ticks)-1) / span

			inst := make([]float64, 0, len(ticks)-1)
			var busy time.Duration
			for i := 1; i < len(ticks); i++ {
				if dt := ticks[i].at.Sub(ticks[i-1].at).Seconds(); dt > 0 {
					inst = append(inst, 1/dt)
				}
				busy += ticks[i].work
			}
			if len(inst) >= 2 {
				out.FrameRateJitter = stat.StdDev(inst, nil)
			}

			duty := busy.Seconds() / span
			if duty > 1 {
				duty = 1
			}
			out.CPUUsage = duty * 100
			out.ThermalState = thermal(duty)
		}
	}

	now := time.Now()
	if now.Sub(m.lastMemAt) >= memRefresh {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		m.lastMemMB = float64(ms.HeapAlloc) / (1024 * 1024)
		m.lastMemAt = now
	}
	out.MemoryMB = m.lastMemMB
	return out
}

func thermal(duty float64) ThermalState {
	switch {
	case duty >= dutyCritical:
		return ThermalCritical
	case duty >= dutySerious:
		return ThermalSerious
	case duty >= dutyFair:
		return ThermalFair
	default:
		return ThermalNominal
	}
}

package breath

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"sylph/internal/guidance"
	"sylph/internal/landmark"
	"sylph/internal/ring"
)

// Signal extraction and classification thresholds. The signal is a weighted
// blend of the nose-chin distance and the head tilt angle, in normalized
// image units, so breathing modulation lands in the 1e-3 range.
const (
	distanceWeight = 0.7
	tiltWeight     = 0.3
	tiltScale      = 0.1

	smoothWindow = 5

	// Phase classification over the last three smoothed samples.
	stabilityEps = 0.0002
	trendEps     = 0.0008

	// A phase change must persist this long before it commits.
	dwellTime = 500 * time.Millisecond

	// Rhythm classification.
	irregularCV  = 0.6
	deepRange    = 0.012
	shallowRange = 0.004

	// Rate bounds in breaths per minute.
	RateMin = 5.0
	RateMax = 30.0

	comfortRateLow  = 8.0
	comfortRateHigh = 18.0

	// The signal window targets this much wall clock; capacity adapts to the
	// observed sample rate within [minWindowCap, maxWindowCap].
	windowSeconds = 30
	minWindowCap  = 64
	maxWindowCap  = 1024
	initialCap    = 300
)

// Sample is one pure signal reading lifted from a frame. Extraction is
// side-effect free so it may run on a worker; Advance folds samples into
// detector state on the owning goroutine.
type Sample struct {
	Value float64
	Conf  float64
	At    time.Time
}

// Detector turns per-frame face meshes into breathing phases and patterns.
// Advance and Reset are not safe for concurrent use; the processing loop
// owns them. Extract is pure.
type Detector struct {
	coach    *guidance.Coach
	baseline *guidance.Baseline

	signal   *ring.Buffer[Sample]
	smoothed *ring.Buffer[float64]
	phases   *ring.Buffer[Phase]
	overall  *ring.Buffer[float64] // smoothed copies for trend splits

	current        Phase
	candidate      PhaseKind
	candidateSince time.Time
}

// NewDetector builds a detector. The coach may be nil to disable guidance
// text; baseline may be nil when the user has no session history.
func NewDetector(coach *guidance.Coach, baseline *guidance.Baseline) *Detector {
	return &Detector{
		coach:    coach,
		baseline: baseline,
		signal:   ring.New[Sample](initialCap),
		smoothed: ring.New[float64](initialCap),
		phases:   ring.New[Phase](32),
		overall:  ring.New[float64](initialCap),
	}
}

// Process ingests one frame and returns the current pattern. Frames without
// a dense face mesh return nil: partial detections produce no reading rather
// than a fabricated one.
func (d *Detector) Process(frame *landmark.Frame) *Pattern {
	s, ok := d.Extract(frame)
	if !ok {
		return nil
	}
	return d.Advance(s)
}

// Extract lifts the breathing signal from a frame without touching detector
// state. Returns false when the mesh is too sparse.
func (d *Detector) Extract(frame *landmark.Frame) (Sample, bool) {
	if frame == nil || len(frame.Face) < landmark.MinFaceMesh {
		return Sample{}, false
	}
	return Sample{
		Value: d.extractSignal(frame),
		Conf:  frame.Confidence,
		At:    frame.Timestamp,
	}, true
}

// Advance folds one sample into the detector and returns the current
// pattern.
func (d *Detector) Advance(s Sample) *Pattern {
	d.signal.Push(s)
	d.adaptCapacity()

	sm := d.smooth()
	d.smoothed.Push(sm)
	d.overall.Push(sm)

	kind := d.classify()
	d.commit(kind, s.Conf, s.At)

	p := &Pattern{
		Phase:        d.runningPhase(s.At),
		Rate:         d.rate(),
		RecentPhases: d.phases.Tail(8),
		Trend:        d.trend(),
	}
	p.Rhythm = d.rhythm()
	p.Quality = d.quality(p.Rate, p.Rhythm)
	p.Guidance = d.advise(p)
	return p
}

// Reset drops all history. The next Process behaves as on a fresh detector.
func (d *Detector) Reset() {
	d.signal.Reset()
	d.smoothed.Reset()
	d.phases.Reset()
	d.overall.Reset()
	d.current = Phase{}
	d.candidate = ""
	d.candidateSince = time.Time{}
}

// extractSignal blends the vertical face extent with head tilt. Chest rise
// shows up as a small periodic change in both.
func (d *Detector) extractSignal(frame *landmark.Frame) float64 {
	nose := frame.Face[landmark.NoseTip]
	chin := frame.Face[landmark.Chin]
	forehead := frame.Face[landmark.Forehead]

	dist := landmark.Dist(nose, chin)
	tilt := landmark.TiltFromVerticalRad(forehead, nose) * tiltScale
	return distanceWeight*dist + tiltWeight*tilt
}

// adaptCapacity resizes the windows once the observed sample rate is known,
// so the buffers keep about windowSeconds of signal at any frame rate.
func (d *Detector) adaptCapacity() {
	if !d.signal.Full() {
		return
	}
	vals := d.signal.Values()
	span := vals[len(vals)-1].At.Sub(vals[0].At).Seconds()
	if span <= 0 {
		return
	}
	perSec := float64(len(vals)-1) / span
	want := int(perSec * windowSeconds)
	if want < minWindowCap {
		want = minWindowCap
	}
	if want > maxWindowCap {
		want = maxWindowCap
	}
	if diff := want - d.signal.Cap(); diff > d.signal.Cap()/4 || -diff > d.signal.Cap()/4 {
		d.signal.Resize(want)
		d.smoothed.Resize(want)
		d.overall.Resize(want)
	}
}

func (d *Detector) smooth() float64 {
	tail := d.signal.Tail(smoothWindow)
	var sum float64
	for _, s := range tail {
		sum += s.Value
	}
	return sum / float64(len(tail))
}

// classify reads the last three smoothed samples. A near-flat signal is a
// hold; a clear slope is an inhale or exhale; anything else is transition.
func (d *Detector) classify() PhaseKind {
	if d.smoothed.Len() < 3 {
		return PhaseTransition
	}
	t := d.smoothed.Tail(3)
	stability := t[2] - t[1]
	if stability < 0 {
		stability = -stability
	}
	slope := t[2] - t[0]

	switch {
	case stability < stabilityEps:
		return PhaseHold
	case slope > trendEps:
		return PhaseInhale
	case slope < -trendEps:
		return PhaseExhale
	default:
		return PhaseTransition
	}
}

// commit applies the dwell rule: a new phase kind must hold for dwellTime
// before it replaces the current phase. The first observation commits
// immediately.
func (d *Detector) commit(kind PhaseKind, conf float64, now time.Time) {
	if d.current.Kind == "" {
		d.current = Phase{Kind: kind, Confidence: conf, Timestamp: now}
		d.candidate = kind
		return
	}
	if kind == d.current.Kind {
		d.candidate = kind
		return
	}
	if kind != d.candidate {
		d.candidate = kind
		d.candidateSince = now
		return
	}
	if now.Sub(d.candidateSince) < dwellTime {
		return
	}

	done := d.current
	done.Duration = now.Sub(done.Timestamp)
	d.phases.Push(done)
	d.current = Phase{Kind: kind, Confidence: conf, Timestamp: now}
}

func (d *Detector) runningPhase(now time.Time) Phase {
	p := d.current
	p.Duration = now.Sub(p.Timestamp)
	return p
}

// rate counts completed inhale-to-exhale cycles over the committed phase
// window and normalizes to breaths per minute. Zero until the first cycle
// completes.
func (d *Detector) rate() float64 {
	ph := d.phases.Values()
	if len(ph) < 2 {
		return 0
	}
	cycles := 0
	sawInhale := false
	for _, p := range ph {
		switch p.Kind {
		case PhaseInhale:
			sawInhale = true
		case PhaseExhale:
			if sawInhale {
				cycles++
				sawInhale = false
			}
		}
	}
	if cycles == 0 {
		return 0
	}
	last := ph[len(ph)-1]
	span := last.Timestamp.Add(last.Duration).Sub(ph[0].Timestamp).Minutes()
	if span <= 0 {
		return 0
	}
	return landmark.Clamp(float64(cycles)/span, RateMin, RateMax)
}

// rhythm flags irregular timing first, then classifies depth from the
// smoothed signal amplitude.
func (d *Detector) rhythm() Rhythm {
	ph := d.phases.Values()
	if len(ph) >= 4 {
		durs := make([]float64, len(ph))
		for i, p := range ph {
			durs[i] = p.Duration.Seconds()
		}
		mean, std := stat.MeanStdDev(durs, nil)
		if mean > 0 && std/mean > irregularCV {
			return RhythmIrregular
		}
	}
	if d.smoothed.Len() >= smoothWindow*2 {
		vals := d.smoothed.Values()
		amplitude := floats.Max(vals) - floats.Min(vals)
		if amplitude >= deepRange {
			return RhythmDeep
		}
		if amplitude <= shallowRange {
			return RhythmShallow
		}
	}
	return RhythmRegular
}

// quality starts from 100 and subtracts fixed penalties, then scales by the
// mean confidence of recent phases.
func (d *Detector) quality(rate float64, rhythm Rhythm) float64 {
	q := 100.0
	if rhythm == RhythmIrregular {
		q -= 25
	}
	if rhythm == RhythmShallow {
		q -= 15
	}
	if rate > 0 && (rate < comfortRateLow || rate > comfortRateHigh) {
		q -= 10
	}

	ph := d.phases.Tail(8)
	if len(ph) > 0 {
		confs := make([]float64, len(ph))
		for i, p := range ph {
			confs[i] = p.Confidence
		}
		q *= landmark.Clamp01(stat.Mean(confs, nil))
	}
	if q < 0 {
		q = 0
	}
	return q
}

// trend compares signal variability across two adjacent windows: less
// variability lately means steadier breathing.
func (d *Detector) trend() Trend {
	const half = 10
	if d.overall.Len() < half*2 {
		return TrendStable
	}
	t := d.overall.Tail(half * 2)
	prior := stat.StdDev(t[:half], nil)
	recent := stat.StdDev(t[half:], nil)
	if prior == 0 {
		return TrendStable
	}
	switch ratio := recent / prior; {
	case ratio < 0.8:
		return TrendImproving
	case ratio > 1.25:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func (d *Detector) advise(p *Pattern) []string {
	if d.coach == nil {
		return nil
	}
	var out []string
	switch {
	case p.Rate > comfortRateHigh:
		out = append(out, d.coach.Text(guidance.MsgBreathRateHigh))
	case p.Rate > 0 && p.Rate < comfortRateLow:
		out = append(out, d.coach.Text(guidance.MsgBreathRateLow))
	}
	switch p.Rhythm {
	case RhythmIrregular:
		out = append(out, d.coach.Text(guidance.MsgBreathIrregular))
	case RhythmShallow:
		out = append(out, d.coach.Text(guidance.MsgBreathShallow))
	}
	if p.Rate > 0 {
		if msg := d.coach.RateAdvice(p.Rate, d.baseline); msg != "" {
			out = append(out, msg)
		}
	}
	if len(out) == 0 && p.Quality >= 70 {
		out = append(out, d.coach.Text(guidance.MsgBreathSteady))
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

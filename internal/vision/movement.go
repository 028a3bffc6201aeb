package vision

import (
	"sylph/internal/landmark"
)

// movementGain converts mean anchor displacement in normalized units into
// the [0,1] movement level.
const movementGain = 100.0

// movementTracker scores gross head movement between consecutive frames.
// It runs on every tick regardless of tier, so the basic tier needs no
// plugin machinery. Not safe for concurrent use.
type movementTracker struct {
	prev     [3]landmark.Point
	havePrev bool
}

// observe returns the movement level for this frame. Frames without the
// anchor points, and the first frame after (re)acquiring them, score zero.
func (t *movementTracker) observe(frame *landmark.Frame) float64 {
	if frame == nil {
		t.havePrev = false
		return 0
	}

	var anchors [3]landmark.Point
	for i, idx := range landmark.MovementAnchors {
		if idx >= len(frame.Face) {
			t.havePrev = false
			return 0
		}
		anchors[i] = frame.Face[idx]
	}

	var level float64
	if t.havePrev {
		var total float64
		for i := range anchors {
			total += landmark.Dist(anchors[i], t.prev[i])
		}
		level = landmark.Clamp01(total / 3 * movementGain)
	}
	t.prev = anchors
	t.havePrev = true
	return level
}

func (t *movementTracker) reset() {
	t.havePrev = false
	t.prev = [3]landmark.Point{}
}

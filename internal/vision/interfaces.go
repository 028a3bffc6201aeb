package vision

import (
	"context"

	"sylph/internal/landmark"
)

// FrameSource delivers landmark frames to the engine's pull loop.
// Implementations wrap an inference provider or a replay file.
type FrameSource interface {
	// Ready reports whether the source can currently produce frames.
	// The loop emits degraded snapshots while a source is not ready.
	Ready() bool

	// Dimensions returns the source frame size. Zero dimensions mark the
	// source invalid for this tick.
	Dimensions() (width, height int)

	// Acquire blocks for the next frame or until ctx is done.
	Acquire(ctx context.Context) (*landmark.Frame, error)
}

// Plugin is one metric extractor managed by the engine. Extract must not
// touch plugin state so it can run on a worker; Merge folds the extracted
// features into state and is only ever called from the processing
// goroutine.
type Plugin interface {
	// Name returns the feature identifier (e.g. "breathing").
	Name() string

	// Initialize prepares the plugin before the first frame.
	Initialize(ctx context.Context) error

	// Extract computes per-frame features from the frame alone. A false
	// return means the frame holds nothing for this plugin this tick.
	Extract(frame *landmark.Frame) (interface{}, bool)

	// Merge consumes features from Extract and returns the tick result,
	// or nil when there is nothing to report.
	Merge(features interface{}) *PluginResult

	// Reset restores first-construction behavior.
	Reset()

	// Cleanup releases plugin resources on engine stop.
	Cleanup() error
}

// Offloadable marks plugins whose Extract may run on a worker pool.
type Offloadable interface {
	Plugin

	// CanOffload reports whether Extract is safe to run off the
	// processing goroutine.
	CanOffload() bool
}

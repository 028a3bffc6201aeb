package landmark

import (
	"time"
)

// Point is a single detected landmark in normalized image coordinates.
// X and Y are in [0,1] relative to frame width/height, Z is relative depth.
// Visibility is only populated for pose points; face mesh points leave it 0.
type Point struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility,omitempty"`
}

// Frame is one landmark detection result for a single video frame.
// Face holds the dense face mesh (478 points when iris refinement is on,
// 468 otherwise), Pose the body skeleton (33 points) when available.
// Consumers must treat a Frame as read-only.
type Frame struct {
	Face       []Point   `json:"face,omitempty"`
	Pose       []Point   `json:"pose,omitempty"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Seq        uint64    `json:"seq"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// HasFace reports whether the frame carries a usable face mesh.
func (f *Frame) HasFace() bool {
	return f != nil && len(f.Face) > 0
}

// HasPose reports whether the frame carries body pose points.
func (f *Frame) HasPose() bool {
	return f != nil && len(f.Pose) > 0
}

// Valid reports whether the frame has sane dimensions and a timestamp.
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && !f.Timestamp.IsZero()
}

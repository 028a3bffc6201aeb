package tier

import (
	"fmt"
)

// Tier selects the analysis quality level. It gates which model bundles are
// loaded and which metric fields downstream fills in.
type Tier string

const (
	// Loading - models not ready yet, metrics report zero values
	Loading Tier = "loading"
	// Basic - face detection only: confidence and movement level
	Basic Tier = "basic"
	// Standard - dense face mesh: posture, restlessness, focus
	Standard Tier = "standard"
	// Premium - mesh with iris refinement plus body pose: detailed sub-scores
	Premium Tier = "premium"
)

// Parse validates a tier string from config or an API request.
func Parse(s string) (Tier, error) {
	switch t := Tier(s); t {
	case Loading, Basic, Standard, Premium:
		return t, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, err := Parse(string(t))
	return err == nil
}

// AtLeast reports whether t grants everything other does. Loading grants
// nothing.
func (t Tier) AtLeast(other Tier) bool {
	return t.rank() >= other.rank()
}

func (t Tier) rank() int {
	switch t {
	case Basic:
		return 1
	case Standard:
		return 2
	case Premium:
		return 3
	default:
		return 0
	}
}

// Variant adjusts model selection for the device class.
type Variant string

const (
	VariantDesktop Variant = "desktop"
	VariantMobile  Variant = "mobile"
)

// Capability reports what the loaded models can deliver.
type Capability struct {
	FaceDetect bool `json:"faceDetect"`
	FaceMesh   bool `json:"faceMesh"`
	Pose       bool `json:"pose"`
	Refined    bool `json:"refined"`
}

// Any reports whether at least one capability is live.
func (c Capability) Any() bool {
	return c.FaceDetect || c.FaceMesh || c.Pose
}

package landmark

// MediaPipe face mesh topology indices for the points the extractors read.
// The mesh has 468 base points plus 10 iris points when refinement is enabled.
const (
	NoseTip      = 1
	Subnasale    = 2 // below the nose tip, between the nostrils
	Forehead     = 10
	LowerLip     = 18
	Chin         = 152
	RightNostril = 98
	LeftNostril  = 327

	RightEyeOuter = 33
	RightEyeInner = 133
	LeftEyeOuter  = 263
	LeftEyeInner  = 362

	RightBrow = 105
	LeftBrow  = 334

	RightEyeTop = 159
	LeftEyeTop  = 386

	MouthRight = 61
	MouthLeft  = 291

	RightFaceSide = 234 // face oval point nearest the right ear
	LeftFaceSide  = 454 // face oval point nearest the left ear
)

// MediaPipe pose topology indices (33-point BlazePose).
const (
	PoseNose          = 0
	PoseLeftShoulder  = 11
	PoseRightShoulder = 12
)

const (
	// FaceMeshPoints is the refined mesh size; used to scale confidence by
	// observed landmark coverage.
	FaceMeshPoints = 478

	// MinFaceMesh is the smallest mesh the signal extractors accept. Partial
	// detections below this produce no result rather than a noisy one.
	MinFaceMesh = 200

	// MinFaceCoarse is enough for the coarse estimators (posture fallback,
	// movement anchors) that only read low-index points.
	MinFaceCoarse = 60
)

// MovementAnchors are the stable facial points tracked frame to frame for
// gross head movement.
var MovementAnchors = [3]int{NoseTip, Forehead, LowerLip}

// Six-point eye rings for the eye aspect ratio, ordered corner, top pair,
// corner, bottom pair.
var (
	RightEyeRing = [6]int{33, 160, 158, 133, 153, 144}
	LeftEyeRing  = [6]int{362, 385, 387, 263, 373, 380}
)

// NostrilOutline is a closed polygon around the nostril region, wound
// clockwise for the shoelace area.
var NostrilOutline = [4]int{NoseTip, RightNostril, Subnasale, LeftNostril}

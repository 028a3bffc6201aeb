package tier

// Asset is one downloadable model file.
type Asset struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Bundle is a named set of assets that together grant a capability level.
type Bundle struct {
	Name   string
	Assets []Asset
	Grants Capability
}

// MediaPipe model registry paths. The lite pose model swaps in on mobile.
var (
	assetFaceDetect = Asset{
		Name: "face_detection",
		URL:  "https://storage.googleapis.com/mediapipe-models/face_detector/blaze_face_short_range/float16/1/blaze_face_short_range.tflite",
	}
	assetFaceMesh = Asset{
		Name: "face_landmarks",
		URL:  "https://storage.googleapis.com/mediapipe-models/face_landmarker/face_landmarker/float16/1/face_landmarker.task",
	}
	assetPoseHeavy = Asset{
		Name: "pose_estimation",
		URL:  "https://storage.googleapis.com/mediapipe-models/pose_landmarker/pose_landmarker_heavy/float16/1/pose_landmarker_heavy.task",
	}
	assetPoseLite = Asset{
		Name: "pose_estimation",
		URL:  "https://storage.googleapis.com/mediapipe-models/pose_landmarker/pose_landmarker_lite/float16/1/pose_landmarker_lite.task",
	}
)

func faceLiteBundle() Bundle {
	return Bundle{
		Name:   "face-lite",
		Assets: []Asset{assetFaceDetect},
		Grants: Capability{FaceDetect: true},
	}
}

func faceFullBundle(refined bool) Bundle {
	return Bundle{
		Name:   "face-full",
		Assets: []Asset{assetFaceDetect, assetFaceMesh},
		Grants: Capability{FaceDetect: true, FaceMesh: true, Refined: refined},
	}
}

func fullPoseBundle(variant Variant, refined bool) Bundle {
	pose := assetPoseHeavy
	if variant == VariantMobile {
		pose = assetPoseLite
	}
	return Bundle{
		Name:   "face-full+pose",
		Assets: []Asset{assetFaceDetect, assetFaceMesh, pose},
		Grants: Capability{FaceDetect: true, FaceMesh: true, Pose: true, Refined: refined},
	}
}

// chain returns the ordered fallback bundles for a tier. Pose bundles are
// skipped entirely when the pose runtime is unavailable.
func chain(t Tier, variant Variant, poseAvailable bool) []Bundle {
	switch t {
	case Premium:
		out := make([]Bundle, 0, 3)
		if poseAvailable {
			out = append(out, fullPoseBundle(variant, true))
		}
		return append(out, faceFullBundle(true), faceLiteBundle())
	case Standard:
		return []Bundle{faceFullBundle(false), faceLiteBundle()}
	case Basic:
		return []Bundle{faceLiteBundle()}
	default:
		return nil
	}
}

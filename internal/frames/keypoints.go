package frames

// Keypoint names. The first 17 follow the COCO order produced by the pose
// model; heels and toes extend it to the full body set.
const (
	Nose          = "nose"
	LeftEye       = "left_eye"
	RightEye      = "right_eye"
	LeftEar       = "left_ear"
	RightEar      = "right_ear"
	LeftShoulder  = "left_shoulder"
	RightShoulder = "right_shoulder"
	LeftElbow     = "left_elbow"
	RightElbow    = "right_elbow"
	LeftWrist     = "left_wrist"
	RightWrist    = "right_wrist"
	LeftHip       = "left_hip"
	RightHip      = "right_hip"
	LeftKnee      = "left_knee"
	RightKnee     = "right_knee"
	LeftAnkle     = "left_ankle"
	RightAnkle    = "right_ankle"
	LeftHeel      = "left_heel"
	RightHeel     = "right_heel"
	LeftToe       = "left_toe"
	RightToe      = "right_toe"
)

// KeypointNames lists every keypoint in canonical order.
var KeypointNames = []string{
	Nose, LeftEye, RightEye, LeftEar, RightEar,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow, LeftWrist, RightWrist,
	LeftHip, RightHip, LeftKnee, RightKnee, LeftAnkle, RightAnkle,
	LeftHeel, RightHeel, LeftToe, RightToe,
}

// COCOKeypointCount is the number of keypoints emitted by the pose model.
const COCOKeypointCount = 17

// IsKeypoint reports whether name is a known keypoint.
func IsKeypoint(name string) bool {
	for _, k := range KeypointNames {
		if k == name {
			return true
		}
	}
	return false
}

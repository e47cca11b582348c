package imu

// SensorSample is one 9-axis reading from the wrist unit. Units are
// converted at the transport boundary: accelerometer in g, gyroscope in
// deg/s (or rad/s when the pipeline is configured for it), magnetometer
// in µT. Samples are immutable once produced.
type SensorSample struct {
	Accel     Vec3  `json:"accel"`
	Gyro      Vec3  `json:"gyro"`
	Mag       Vec3  `json:"mag"`
	UnixNanos int64 `json:"unix_nanos"`
}

// Stage tags how far through the pipeline a processed sample has
// travelled. Each stage implies the fields of all earlier stages are
// populated; later-stage fields are zero and must not be read.
type Stage string

const (
	StageRaw        Stage = "raw"        // straight off the transport
	StageCalibrated Stage = "calibrated" // iron/Earth-field corrected residual available
	StageFused      Stage = "fused"      // orientation available
	StageTracked    Stage = "tracked"    // finger pose available
)

// Processed is a sample annotated with pipeline outputs. The Stage field
// says which of the derived fields are valid; BestEffort marks residuals
// computed without a full calibration (iron-only fallback).
type Processed struct {
	Stage  Stage        `json:"stage"`
	Sample SensorSample `json:"sample"`

	// Valid at StageFused and later.
	Orientation Quaternion  `json:"orientation,omitempty"`
	Euler       EulerAngles `json:"euler,omitempty"`

	// Valid at StageCalibrated and later.
	Residual   Vec3 `json:"residual,omitempty"`
	BestEffort bool `json:"best_effort,omitempty"`

	// Valid at StageTracked only.
	Pose       HandPose `json:"pose,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
}

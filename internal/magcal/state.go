// Package magcal models the magnetic environment of the sensor: hard
// iron bias, soft iron (ellipsoid) distortion and the ambient Earth
// field. Once calibrated it separates each raw magnetometer reading
// into an iron-corrected field and a residual attributed to local
// sources such as fingertip magnets.
package magcal

import (
	"encoding/json"
	"fmt"

	"github.com/handwave-io/fieldtrack/internal/imu"
)

// State is the persistable calibration snapshot. It serializes to the
// exact JSON shape consumed by the companion apps and must round-trip
// losslessly.
type State struct {
	HardIronOffset imu.Vec3   `json:"hardIronOffset"`
	SoftIronMatrix [9]float64 `json:"softIronMatrix"` // row-major 3x3
	EarthField     imu.Vec3   `json:"earthField"`     // world frame, µT
	EarthFieldMag  float64    `json:"earthFieldMagnitude"`

	HardIronCalibrated   bool `json:"hardIronCalibrated"`
	SoftIronCalibrated   bool `json:"softIronCalibrated"`
	EarthFieldCalibrated bool `json:"earthFieldCalibrated"`
}

// identityMatrix is the no-op soft iron correction.
var identityMatrix = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

// NewState returns a state with an identity soft iron matrix and no
// completed stages.
func NewState() State {
	return State{SoftIronMatrix: identityMatrix}
}

// applyIron runs the iron stages that have completed: hard iron offset
// subtraction, then the soft iron matrix.
func (s *State) applyIron(raw imu.Vec3) imu.Vec3 {
	v := raw
	if s.HardIronCalibrated {
		v = v.Sub(s.HardIronOffset)
	}
	if s.SoftIronCalibrated {
		m := &s.SoftIronMatrix
		v = imu.Vec3{
			X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
			Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
			Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
		}
	}
	return v
}

// Marshal encodes the state as JSON.
func (s State) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState decodes a previously persisted snapshot. A state with
// a zero soft iron matrix (never calibrated, serialized before any
// stage ran) is normalised back to identity.
func UnmarshalState(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("decode calibration state: %w", err)
	}
	if !s.SoftIronCalibrated && s.SoftIronMatrix == ([9]float64{}) {
		s.SoftIronMatrix = identityMatrix
	}
	return s, nil
}

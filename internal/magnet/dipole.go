// Package magnet estimates fingertip magnet positions from the
// residual magnetic field using a point-dipole forward model inside a
// particle filter.
package magnet

import "github.com/handwave-io/fieldtrack/internal/imu"

// minDipoleRange is the closest approach (meters) the forward model
// evaluates a dipole at. Inside it the 1/r³ term blows up, so that
// finger's contribution is skipped instead.
const minDipoleRange = 0.001

// dipoleK scales the dipole field. It is 1.0, not the physical μ₀/4π:
// the real constant, the magnet strength and the sensor gain are all
// absorbed into the per-finger moment magnitudes established during
// calibration. Whether that folding is exactly right for every magnet
// set is an open calibration question, so keep it visible here.
const dipoleK = 1.0

// Moments holds the magnetic moment vector configured for each finger.
// A zero moment means the finger carries no magnet and contributes no
// field.
type Moments [imu.NumFingers]imu.Vec3

// UniformMoments returns moments of magnitude m pointing along +Z for
// every finger, the usual single-magnet-type setup.
func UniformMoments(m float64) Moments {
	var out Moments
	for i := range out {
		out[i] = imu.Vec3{Z: m}
	}
	return out
}

// FieldAt predicts the combined field (sensor frame) that magnets at
// the given positions produce at the sensor location. Each dipole
// contributes k·(3(m·r̂)r̂ − m)/r³.
func FieldAt(pose imu.HandPose, moments Moments, sensor imu.Vec3) imu.Vec3 {
	var b imu.Vec3
	for f := 0; f < imu.NumFingers; f++ {
		m := moments[f]
		if m.X == 0 && m.Y == 0 && m.Z == 0 {
			continue
		}
		r := sensor.Sub(pose[f])
		dist := r.Norm()
		if dist < minDipoleRange {
			continue
		}
		rHat := r.Scale(1 / dist)
		mDotR := m.Dot(rHat)
		contrib := rHat.Scale(3 * mDotR).Sub(m).Scale(dipoleK / (dist * dist * dist))
		b = b.Add(contrib)
	}
	return b
}

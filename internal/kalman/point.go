// Package kalman provides a linear constant-velocity Kalman filter for
// smoothing 3D position signals. One instance per tracked quantity;
// instances share no state.
package kalman

import (
	"math"

	"github.com/handwave-io/fieldtrack/internal/imu"
)

// minDeterminant guards the innovation covariance inversion. Below it
// the filter substitutes the identity for S⁻¹ and keeps running rather
// than propagating NaN into the state.
const minDeterminant = 1e-10

// Config holds filter noise parameters.
type Config struct {
	ProcessNoise      float64 // Q, added to every diagonal of P at predict
	MeasurementNoise  float64 // R, added to the diagonal of S at update
	InitialCovariance float64 // P diagonal after first-measurement init
}

// DefaultConfig returns noise defaults suitable for µT-scale residual
// field smoothing.
func DefaultConfig() Config {
	return Config{
		ProcessNoise:      0.01,
		MeasurementNoise:  0.1,
		InitialCovariance: 1.0,
	}
}

// PointFilter is a 6-state ([x y z vx vy vz]) / 3-measurement constant
// velocity filter.
type PointFilter struct {
	cfg Config

	initialized bool
	x           [6]float64
	p           [36]float64 // row-major 6x6
}

// New returns an uninitialised filter; the first Update seeds the state
// directly from the measurement.
func New(cfg Config) *PointFilter {
	return &PointFilter{cfg: cfg}
}

// Initialized reports whether the filter has received a measurement.
func (f *PointFilter) Initialized() bool { return f.initialized }

// Position returns the filtered position estimate.
func (f *PointFilter) Position() imu.Vec3 {
	return imu.Vec3{X: f.x[0], Y: f.x[1], Z: f.x[2]}
}

// Velocity returns the filtered velocity estimate.
func (f *PointFilter) Velocity() imu.Vec3 {
	return imu.Vec3{X: f.x[3], Y: f.x[4], Z: f.x[5]}
}

// Reset returns the filter to the uninitialised state.
func (f *PointFilter) Reset() {
	f.initialized = false
	f.x = [6]float64{}
	f.p = [36]float64{}
}

// Predict advances the state by dt seconds under the constant-velocity
// model. No-op before the first measurement.
func (f *PointFilter) Predict(dt float64) {
	if !f.initialized || dt <= 0 {
		return
	}

	// State transition for constant velocity:
	// F = [I  dt·I]
	//     [0    I ]
	f.x[0] += f.x[3] * dt
	f.x[1] += f.x[4] * dt
	f.x[2] += f.x[5] * dt

	// P' = F·P·Fᵗ + Q·I, computed in place.
	// F·P: position rows pick up dt × the matching velocity row.
	var fp [36]float64
	for j := 0; j < 6; j++ {
		fp[0*6+j] = f.p[0*6+j] + dt*f.p[3*6+j]
		fp[1*6+j] = f.p[1*6+j] + dt*f.p[4*6+j]
		fp[2*6+j] = f.p[2*6+j] + dt*f.p[5*6+j]
		fp[3*6+j] = f.p[3*6+j]
		fp[4*6+j] = f.p[4*6+j]
		fp[5*6+j] = f.p[5*6+j]
	}
	// (F·P)·Fᵗ: position columns pick up dt × the matching velocity column.
	for i := 0; i < 6; i++ {
		f.p[i*6+0] = fp[i*6+0] + dt*fp[i*6+3]
		f.p[i*6+1] = fp[i*6+1] + dt*fp[i*6+4]
		f.p[i*6+2] = fp[i*6+2] + dt*fp[i*6+5]
		f.p[i*6+3] = fp[i*6+3]
		f.p[i*6+4] = fp[i*6+4]
		f.p[i*6+5] = fp[i*6+5]
	}
	for i := 0; i < 6; i++ {
		f.p[i*6+i] += f.cfg.ProcessNoise
	}
}

// Update corrects the state with a position measurement. The first call
// initialises position directly from the measurement with zero velocity
// instead of running the correction equations.
func (f *PointFilter) Update(z imu.Vec3) {
	if !f.initialized {
		f.x = [6]float64{z.X, z.Y, z.Z, 0, 0, 0}
		f.p = [36]float64{}
		for i := 0; i < 6; i++ {
			f.p[i*6+i] = f.cfg.InitialCovariance
		}
		f.initialized = true
		return
	}

	// Innovation y = z − H·x with H = [I₃ 0].
	y0 := z.X - f.x[0]
	y1 := z.Y - f.x[1]
	y2 := z.Z - f.x[2]

	// Innovation covariance S = H·P·Hᵗ + R·I = P[0:3,0:3] + R·I.
	r := f.cfg.MeasurementNoise
	s := [9]float64{
		f.p[0*6+0] + r, f.p[0*6+1], f.p[0*6+2],
		f.p[1*6+0], f.p[1*6+1] + r, f.p[1*6+2],
		f.p[2*6+0], f.p[2*6+1], f.p[2*6+2] + r,
	}

	si := invert3x3(s)

	// Gain K = P·Hᵗ·S⁻¹; P·Hᵗ is the first three columns of P.
	var k [18]float64 // 6x3 row-major
	for i := 0; i < 6; i++ {
		p0, p1, p2 := f.p[i*6+0], f.p[i*6+1], f.p[i*6+2]
		k[i*3+0] = p0*si[0] + p1*si[3] + p2*si[6]
		k[i*3+1] = p0*si[1] + p1*si[4] + p2*si[7]
		k[i*3+2] = p0*si[2] + p1*si[5] + p2*si[8]
	}

	// State update x += K·y.
	for i := 0; i < 6; i++ {
		f.x[i] += k[i*3+0]*y0 + k[i*3+1]*y1 + k[i*3+2]*y2
	}

	// Covariance update P = (I − K·H)·P. K·H has K as its first three
	// columns and zeros elsewhere, so (K·H·P)[i][j] = Σ K[i][m]·P[m][j]
	// over the three measurement rows.
	var kp [36]float64
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			kp[i*6+j] = k[i*3+0]*f.p[0*6+j] + k[i*3+1]*f.p[1*6+j] + k[i*3+2]*f.p[2*6+j]
		}
	}
	for i := 0; i < 36; i++ {
		f.p[i] -= kp[i]
	}
}

// invert3x3 inverts a row-major 3x3 matrix via adjugate/determinant.
// Near-singular input returns the identity, deliberately trading
// numerical correctness for continued operation.
func invert3x3(m [9]float64) [9]float64 {
	c00 := m[4]*m[8] - m[5]*m[7]
	c01 := m[5]*m[6] - m[3]*m[8]
	c02 := m[3]*m[7] - m[4]*m[6]

	det := m[0]*c00 + m[1]*c01 + m[2]*c02
	if math.Abs(det) < minDeterminant {
		return [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	}

	inv := 1 / det
	return [9]float64{
		c00 * inv, (m[2]*m[7] - m[1]*m[8]) * inv, (m[1]*m[5] - m[2]*m[4]) * inv,
		c01 * inv, (m[0]*m[8] - m[2]*m[6]) * inv, (m[2]*m[3] - m[0]*m[5]) * inv,
		c02 * inv, (m[1]*m[6] - m[0]*m[7]) * inv, (m[0]*m[4] - m[1]*m[3]) * inv,
	}
}

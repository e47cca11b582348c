// Package ahrs fuses accelerometer, gyroscope and (optionally)
// magnetometer readings into a device orientation quaternion using
// Madgwick's gradient-descent filter.
package ahrs

import (
	"math"

	"github.com/handwave-io/fieldtrack/internal/imu"
)

// accelNoiseFloor is the minimum accelerometer magnitude (in g) below
// which the gravity-reference correction is skipped: near free fall the
// accelerometer carries no usable attitude information.
const accelNoiseFloor = 0.01

// minMagTrust is the trust level below which the magnetic correction
// term is disabled entirely and the 6-DOF path is used.
const minMagTrust = 0.01

// gyroBiasAlpha is the EMA rate for gyro bias learning while the motion
// detector reports the device stationary.
const gyroBiasAlpha = 0.02

// Config holds fusion parameters.
type Config struct {
	SampleFreq float64 // nominal sample rate, Hz; used when dt <= 0
	Beta       float64 // Madgwick gradient gain
	MagTrust   float64 // default magnetic correction trust [0,1]
}

// DefaultConfig returns fusion defaults tuned for a 26-50 Hz wrist unit.
func DefaultConfig() Config {
	return Config{
		SampleFreq: 50.0,
		Beta:       0.1,
		MagTrust:   1.0,
	}
}

// Estimator tracks device orientation from streaming inertial samples.
// It is not safe for concurrent use; the pipeline driver is the only
// writer.
type Estimator struct {
	cfg Config

	q           imu.Quaternion
	initialized bool

	gyroBias imu.Vec3
	motion   *MotionDetector

	// Geomagnetic reference: horizontal and vertical flux components in
	// the world frame. Required for the 9-DOF update path.
	magRefH   float64
	magRefV   float64
	hasMagRef bool
}

// New returns an estimator at the identity orientation. The first
// Update seeds attitude from the accelerometer.
func New(cfg Config) *Estimator {
	return &Estimator{
		cfg:    cfg,
		q:      imu.IdentityQuaternion(),
		motion: NewMotionDetector(DefaultMotionConfig()),
	}
}

// SetMagneticReference configures the world-frame geomagnetic flux used
// by UpdateWithMag, as horizontal and vertical components (µT). Until
// this is called the 9-DOF path derives a reference from each reading,
// which stabilises yaw against gyro drift without an absolute flux
// estimate.
func (e *Estimator) SetMagneticReference(horizontal, vertical float64) {
	e.magRefH = horizontal
	e.magRefV = vertical
	e.hasMagRef = horizontal != 0 || vertical != 0
}

// Quaternion returns the current orientation estimate.
func (e *Estimator) Quaternion() imu.Quaternion { return e.q }

// EulerAngles returns the current orientation as roll/pitch/yaw degrees.
func (e *Estimator) EulerAngles() imu.EulerAngles { return e.q.Euler() }

// GyroBias returns the learned gyroscope bias (same units as the gyro
// inputs passed to Update).
func (e *Estimator) GyroBias() imu.Vec3 { return e.gyroBias }

// Stationary reports whether the motion detector currently classifies
// the device as at rest.
func (e *Estimator) Stationary() bool { return e.motion.Stationary() }

// Reset discards all fusion state so a later stream starts clean.
func (e *Estimator) Reset() {
	e.q = imu.IdentityQuaternion()
	e.initialized = false
	e.gyroBias = imu.Vec3{}
	e.motion.Reset()
}

// Update runs one 6-DOF fusion step. accel is in g, gyro in deg/s when
// gyroDegrees is set (rad/s otherwise), dt in seconds. The returned
// quaternion is always unit length.
func (e *Estimator) Update(accel, gyro imu.Vec3, dt float64, gyroDegrees bool) imu.Quaternion {
	gx, gy, gz := e.prepare(accel, gyro, &dt, gyroDegrees)

	q0, q1, q2, q3 := e.q.W, e.q.X, e.q.Y, e.q.Z

	// Quaternion rate from gyroscope.
	qDot0 := 0.5 * (-q1*gx - q2*gy - q3*gz)
	qDot1 := 0.5 * (q0*gx + q2*gz - q3*gy)
	qDot2 := 0.5 * (q0*gy - q1*gz + q3*gx)
	qDot3 := 0.5 * (q0*gz + q1*gy - q2*gx)

	// Gravity-reference correction, skipped when the accelerometer is
	// degenerate (free fall, high dynamic load).
	if n := accel.Norm(); n > accelNoiseFloor {
		ax, ay, az := accel.X/n, accel.Y/n, accel.Z/n

		// Gradient of the objective aligning the rotated gravity
		// reference with the measured acceleration.
		s0 := -2*q2*(2*(q1*q3-q0*q2)-ax) + 2*q1*(2*(q0*q1+q2*q3)-ay)
		s1 := 2*q3*(2*(q1*q3-q0*q2)-ax) + 2*q0*(2*(q0*q1+q2*q3)-ay) - 4*q1*(1-2*(q1*q1+q2*q2)-az)
		s2 := -2*q0*(2*(q1*q3-q0*q2)-ax) + 2*q3*(2*(q0*q1+q2*q3)-ay) - 4*q2*(1-2*(q1*q1+q2*q2)-az)
		s3 := 2*q1*(2*(q1*q3-q0*q2)-ax) + 2*q2*(2*(q0*q1+q2*q3)-ay)

		if sn := math.Sqrt(s0*s0 + s1*s1 + s2*s2 + s3*s3); sn > 1e-12 {
			qDot0 -= e.cfg.Beta * s0 / sn
			qDot1 -= e.cfg.Beta * s1 / sn
			qDot2 -= e.cfg.Beta * s2 / sn
			qDot3 -= e.cfg.Beta * s3 / sn
		}
	}

	e.q = imu.Quaternion{
		W: q0 + qDot0*dt,
		X: q1 + qDot1*dt,
		Y: q2 + qDot2*dt,
		Z: q3 + qDot3*dt,
	}.Normalized()
	return e.q
}

// UpdateWithMag runs one 9-DOF fusion step adding a magnetic yaw
// correction scaled by magTrust in [0,1]. It falls back to 6-DOF fusion
// when the magnetometer reading is degenerate or magTrust is
// negligible. Lowering magTrust as finger magnets come into range keeps
// local sources from corrupting heading.
func (e *Estimator) UpdateWithMag(accel, gyro, mag imu.Vec3, dt float64, magTrust float64) imu.Quaternion {
	if magTrust < 0 {
		magTrust = e.cfg.MagTrust
	}
	mn := mag.Norm()
	if mn < 1e-9 || magTrust < minMagTrust {
		return e.Update(accel, gyro, dt, false)
	}
	an := accel.Norm()
	if an <= accelNoiseFloor {
		return e.Update(accel, gyro, dt, false)
	}

	gx, gy, gz := e.prepare(accel, gyro, &dt, false)

	q0, q1, q2, q3 := e.q.W, e.q.X, e.q.Y, e.q.Z

	qDot0 := 0.5 * (-q1*gx - q2*gy - q3*gz)
	qDot1 := 0.5 * (q0*gx + q2*gz - q3*gy)
	qDot2 := 0.5 * (q0*gy - q1*gz + q3*gx)
	qDot3 := 0.5 * (q0*gz + q1*gy - q2*gx)

	ax, ay, az := accel.X/an, accel.Y/an, accel.Z/an
	mx, my, mz := mag.X/mn, mag.Y/mn, mag.Z/mn

	// Normalised reference flux: horizontal along world X, vertical
	// along world Z. Without a configured reference the flux direction
	// is recovered from the reading itself rotated into the world frame,
	// Madgwick's original formulation. That keeps yaw locked to magnetic
	// north even before the Earth-field stage has produced an absolute
	// estimate.
	var bx, bz float64
	if e.hasMagRef {
		bRef := math.Sqrt(e.magRefH*e.magRefH + e.magRefV*e.magRefV)
		bx = e.magRefH / bRef
		bz = e.magRefV / bRef
	} else {
		h := e.q.Rotate(imu.Vec3{X: mx, Y: my, Z: mz})
		bx = math.Sqrt(h.X*h.X + h.Y*h.Y)
		bz = h.Z
	}

	q0q1, q0q2, q0q3 := q0*q1, q0*q2, q0*q3
	q1q1, q1q2, q1q3 := q1*q1, q1*q2, q1*q3
	q2q2, q2q3 := q2*q2, q2*q3
	q3q3 := q3 * q3

	// Gravity objective terms.
	f1 := 2*(q1q3-q0q2) - ax
	f2 := 2*(q0q1+q2q3) - ay
	f3 := 1 - 2*(q1q1+q2q2) - az

	sa0 := -2*q2*f1 + 2*q1*f2
	sa1 := 2*q3*f1 + 2*q0*f2 - 4*q1*f3
	sa2 := -2*q0*f1 + 2*q3*f2 - 4*q2*f3
	sa3 := 2*q1*f1 + 2*q2*f2

	// Flux objective terms, per Madgwick's full AHRS gradient.
	f4 := 2*bx*(0.5-q2q2-q3q3) + 2*bz*(q1q3-q0q2) - mx
	f5 := 2*bx*(q1q2-q0q3) + 2*bz*(q0q1+q2q3) - my
	f6 := 2*bx*(q0q2+q1q3) + 2*bz*(0.5-q1q1-q2q2) - mz

	sm0 := -2*bz*q2*f4 + (-2*bx*q3+2*bz*q1)*f5 + 2*bx*q2*f6
	sm1 := 2*bz*q3*f4 + (2*bx*q2+2*bz*q0)*f5 + (2*bx*q3-4*bz*q1)*f6
	sm2 := (-4*bx*q2-2*bz*q0)*f4 + (2*bx*q1+2*bz*q3)*f5 + (2*bx*q0-4*bz*q2)*f6
	sm3 := (-4*bx*q3+2*bz*q1)*f4 + (-2*bx*q0+2*bz*q2)*f5 + 2*bx*q1*f6

	// The magnetic term is attenuated by magTrust before the combined
	// gradient is normalised, so low trust degrades smoothly toward the
	// 6-DOF correction.
	s0 := sa0 + magTrust*sm0
	s1 := sa1 + magTrust*sm1
	s2 := sa2 + magTrust*sm2
	s3 := sa3 + magTrust*sm3

	if sn := math.Sqrt(s0*s0 + s1*s1 + s2*s2 + s3*s3); sn > 1e-12 {
		qDot0 -= e.cfg.Beta * s0 / sn
		qDot1 -= e.cfg.Beta * s1 / sn
		qDot2 -= e.cfg.Beta * s2 / sn
		qDot3 -= e.cfg.Beta * s3 / sn
	}

	e.q = imu.Quaternion{
		W: q0 + qDot0*dt,
		X: q1 + qDot1*dt,
		Y: q2 + qDot2*dt,
		Z: q3 + qDot3*dt,
	}.Normalized()
	return e.q
}

// prepare seeds the initial attitude, feeds the motion detector, learns
// gyro bias while stationary, and returns the bias-corrected gyro rates
// in rad/s.
func (e *Estimator) prepare(accel, gyro imu.Vec3, dt *float64, gyroDegrees bool) (gx, gy, gz float64) {
	if *dt <= 0 {
		if e.cfg.SampleFreq > 0 {
			*dt = 1 / e.cfg.SampleFreq
		} else {
			*dt = 1.0 / 50
		}
	}

	if !e.initialized {
		if accel.Norm() > accelNoiseFloor {
			e.q = imu.QuaternionFromAccel(accel)
		}
		e.initialized = true
	}

	e.motion.Observe(accel, gyro)
	if e.motion.Stationary() {
		e.gyroBias = imu.Vec3{
			X: (1-gyroBiasAlpha)*e.gyroBias.X + gyroBiasAlpha*gyro.X,
			Y: (1-gyroBiasAlpha)*e.gyroBias.Y + gyroBiasAlpha*gyro.Y,
			Z: (1-gyroBiasAlpha)*e.gyroBias.Z + gyroBiasAlpha*gyro.Z,
		}
	}

	g := gyro.Sub(e.gyroBias)
	if gyroDegrees {
		const rad = math.Pi / 180
		return g.X * rad, g.Y * rad, g.Z * rad
	}
	return g.X, g.Y, g.Z
}

package imu

import "math"

// Quaternion is a rotation expressed as a unit quaternion. The identity
// rotation is {1, 0, 0, 0}. Convention: the quaternion rotates vectors
// from the sensor frame into the world frame.
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// EulerAngles holds a roll/pitch/yaw decomposition in degrees.
type EulerAngles struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// IdentityQuaternion returns the identity rotation.
func IdentityQuaternion() Quaternion {
	return Quaternion{W: 1}
}

// Normalized returns q scaled to unit norm. A degenerate (near-zero)
// quaternion resets to identity instead of dividing by zero.
func (q Quaternion) Normalized() Quaternion {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n < 1e-12 {
		return IdentityQuaternion()
	}
	return Quaternion{q.W / n, q.X / n, q.Y / n, q.Z / n}
}

// Norm returns the quaternion magnitude.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// Conjugate returns the inverse rotation (for unit quaternions).
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{q.W, -q.X, -q.Y, -q.Z}
}

// Mul returns the Hamilton product q ⊗ r.
func (q Quaternion) Mul(r Quaternion) Quaternion {
	return Quaternion{
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
	}
}

// Rotate rotates v from the sensor frame into the world frame.
func (q Quaternion) Rotate(v Vec3) Vec3 {
	// v' = q ⊗ (0,v) ⊗ q*  expanded to avoid building intermediates.
	w, x, y, z := q.W, q.X, q.Y, q.Z
	return Vec3{
		X: (1-2*(y*y+z*z))*v.X + 2*(x*y-w*z)*v.Y + 2*(x*z+w*y)*v.Z,
		Y: 2*(x*y+w*z)*v.X + (1-2*(x*x+z*z))*v.Y + 2*(y*z-w*x)*v.Z,
		Z: 2*(x*z-w*y)*v.X + 2*(y*z+w*x)*v.Y + (1-2*(x*x+y*y))*v.Z,
	}
}

// RotateInverse rotates v from the world frame into the sensor frame.
func (q Quaternion) RotateInverse(v Vec3) Vec3 {
	return q.Conjugate().Rotate(v)
}

// RotationMatrix returns the 3x3 rotation matrix for q, row-major.
func (q Quaternion) RotationMatrix() [9]float64 {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	return [9]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}

// Euler converts q to roll/pitch/yaw in degrees. The pitch asin argument
// is clamped to ±1 so gimbal-lock attitudes return ±90° instead of NaN.
func (q Quaternion) Euler() EulerAngles {
	w, x, y, z := q.W, q.X, q.Y, q.Z

	sinp := 2 * (w*y - z*x)
	var pitch float64
	if sinp >= 1 {
		pitch = math.Pi / 2
	} else if sinp <= -1 {
		pitch = -math.Pi / 2
	} else {
		pitch = math.Asin(sinp)
	}

	roll := math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))
	yaw := math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))

	const deg = 180 / math.Pi
	return EulerAngles{Roll: roll * deg, Pitch: pitch * deg, Yaw: yaw * deg}
}

// QuaternionFromAccel builds an initial tilt-only orientation from a
// gravity measurement. Yaw is unobservable from gravity and left at zero.
func QuaternionFromAccel(accel Vec3) Quaternion {
	a := accel.Normalized()
	if a.Norm() < 1e-9 {
		return IdentityQuaternion()
	}
	roll := math.Atan2(a.Y, a.Z)
	pitch := math.Atan2(-a.X, math.Sqrt(a.Y*a.Y+a.Z*a.Z))

	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	return Quaternion{
		W: cr * cp,
		X: sr * cp,
		Y: cr * sp,
		Z: -sr * sp,
	}.Normalized()
}

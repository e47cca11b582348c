package ahrs

import (
	"math"
	"math/rand"
	"testing"

	"github.com/handwave-io/fieldtrack/internal/imu"
)

func TestUpdateUnitNorm(t *testing.T) {
	est := New(DefaultConfig())
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		accel := imu.Vec3{
			X: rng.NormFloat64() * 0.3,
			Y: rng.NormFloat64() * 0.3,
			Z: 1 + rng.NormFloat64()*0.3,
		}
		gyro := imu.Vec3{
			X: rng.NormFloat64() * 50,
			Y: rng.NormFloat64() * 50,
			Z: rng.NormFloat64() * 50,
		}
		q := est.Update(accel, gyro, 0.02, true)
		if math.Abs(q.Norm()-1) > 1e-9 {
			t.Fatalf("step %d: quaternion norm %v drifted from 1", i, q.Norm())
		}
	}
}

func TestUpdateZeroAccelGyroOnly(t *testing.T) {
	est := New(DefaultConfig())
	rng := rand.New(rand.NewSource(3))

	// Seed a level attitude first.
	est.Update(imu.Vec3{Z: 1}, imu.Vec3{}, 0.02, true)

	// Free-fall samples must not corrupt the quaternion. The gyro jitter
	// keeps the motion detector from classifying the spin as rest.
	for i := 0; i < 100; i++ {
		gyro := imu.Vec3{X: 10 + rng.NormFloat64()*2}
		q := est.Update(imu.Vec3{}, gyro, 0.02, true)
		if math.IsNaN(q.W) || math.IsNaN(q.X) || math.IsNaN(q.Y) || math.IsNaN(q.Z) {
			t.Fatal("degenerate accel produced NaN quaternion")
		}
		if math.Abs(q.Norm()-1) > 1e-9 {
			t.Fatalf("norm drifted to %v under gyro-only integration", q.Norm())
		}
	}

	// Gyro-only integration of 10 deg/s for 2 s rolls ~20°.
	roll := est.EulerAngles().Roll
	if math.Abs(roll-20) > 3 {
		t.Errorf("expected ~20° roll from gyro integration, got %v", roll)
	}
}

func TestUpdateConvergesToTilt(t *testing.T) {
	est := New(DefaultConfig())

	want := 25.0
	rad := want * math.Pi / 180
	accel := imu.Vec3{Y: math.Sin(rad), Z: math.Cos(rad)}

	for i := 0; i < 500; i++ {
		est.Update(accel, imu.Vec3{}, 0.02, true)
	}
	got := est.EulerAngles().Roll
	if math.Abs(got-want) > 1 {
		t.Errorf("expected roll to converge near %v, got %v", want, got)
	}
}

func TestUpdateRecoversFromAttitudeError(t *testing.T) {
	est := New(DefaultConfig())

	// Seed a 20° roll, then feed a level accelerometer with zero gyro.
	// The gravity correction must pull the attitude back toward level,
	// never away from it.
	rad := 20 * math.Pi / 180
	est.Update(imu.Vec3{Y: math.Sin(rad), Z: math.Cos(rad)}, imu.Vec3{}, 0.02, true)
	if r := est.EulerAngles().Roll; math.Abs(r-20) > 1 {
		t.Fatalf("test setup: expected ~20° seeded roll, got %v", r)
	}

	prev := est.EulerAngles().Roll
	for i := 0; i < 500; i++ {
		est.Update(imu.Vec3{Z: 1}, imu.Vec3{}, 0.02, true)
		if i%50 == 49 {
			roll := est.EulerAngles().Roll
			if roll > prev+0.1 {
				t.Fatalf("step %d: roll grew from %v to %v under a level reference", i, prev, roll)
			}
			prev = roll
		}
	}
	if got := est.EulerAngles().Roll; math.Abs(got) > 2 {
		t.Errorf("roll did not settle back to level: %v", got)
	}
}

func TestUpdateWithMagDerivesReferenceFromReading(t *testing.T) {
	est := New(DefaultConfig())

	// No reference configured: the flux direction comes from the reading
	// itself, so a consistent field still corrects yaw error.
	accel := imu.Vec3{Z: 1}
	mag := imu.Vec3{X: 20, Y: 0, Z: 45}

	for i := 0; i < 25; i++ {
		est.Update(accel, imu.Vec3{Z: 20 * math.Pi / 180}, 0.02, false)
	}
	disturbed := math.Abs(est.EulerAngles().Yaw)
	if disturbed < 5 {
		t.Fatalf("test setup: expected a yaw disturbance, got %v", disturbed)
	}

	for i := 0; i < 4000; i++ {
		est.UpdateWithMag(accel, imu.Vec3{}, mag, 0.02, 1.0)
	}
	recovered := math.Abs(est.EulerAngles().Yaw)
	if recovered > disturbed/2 {
		t.Errorf("derived reference did not pull yaw back: %v -> %v", disturbed, recovered)
	}
}

func TestUpdateWithMagStabilisesYaw(t *testing.T) {
	est := New(DefaultConfig())
	est.SetMagneticReference(20, 45)

	accel := imu.Vec3{Z: 1}
	// Level device, true yaw 0: sensor-frame field equals the reference.
	mag := imu.Vec3{X: 20, Y: 0, Z: 45}

	// Inject a yaw disturbance through gyro-only steps.
	for i := 0; i < 25; i++ {
		est.Update(accel, imu.Vec3{Z: 20 * math.Pi / 180}, 0.02, false)
	}
	disturbed := math.Abs(est.EulerAngles().Yaw)
	if disturbed < 5 {
		t.Fatalf("test setup: expected a yaw disturbance, got %v", disturbed)
	}

	for i := 0; i < 4000; i++ {
		est.UpdateWithMag(accel, imu.Vec3{}, mag, 0.02, 1.0)
	}
	recovered := math.Abs(est.EulerAngles().Yaw)
	if recovered > disturbed/2 {
		t.Errorf("magnetic correction did not pull yaw back: %v -> %v", disturbed, recovered)
	}
}

func TestGyroBiasLearnedWhileStationary(t *testing.T) {
	est := New(DefaultConfig())

	bias := imu.Vec3{X: 0.8, Y: -0.5, Z: 0.3} // deg/s
	for i := 0; i < 400; i++ {
		est.Update(imu.Vec3{Z: 1}, bias, 0.02, true)
	}
	got := est.GyroBias()
	if math.Abs(got.X-bias.X) > 0.1 || math.Abs(got.Y-bias.Y) > 0.1 || math.Abs(got.Z-bias.Z) > 0.1 {
		t.Errorf("bias not learned: got %+v want %+v", got, bias)
	}

	// With the bias subtracted, attitude should hold nearly level.
	e := est.EulerAngles()
	if math.Abs(e.Roll) > 3 || math.Abs(e.Pitch) > 3 {
		t.Errorf("attitude drifted despite bias learning: %+v", e)
	}
}

func TestResetClearsState(t *testing.T) {
	est := New(DefaultConfig())
	for i := 0; i < 100; i++ {
		est.Update(imu.Vec3{Z: 1}, imu.Vec3{X: 1}, 0.02, true)
	}
	est.Reset()
	if est.Quaternion() != imu.IdentityQuaternion() {
		t.Error("reset did not restore identity orientation")
	}
	if est.GyroBias() != (imu.Vec3{}) {
		t.Error("reset did not clear gyro bias")
	}
	if est.Stationary() {
		t.Error("reset detector should report moving until window refills")
	}
}

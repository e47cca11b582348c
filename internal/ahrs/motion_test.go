package ahrs

import (
	"math/rand"
	"testing"

	"github.com/handwave-io/fieldtrack/internal/imu"
)

func TestMotionDetectorUnfilledWindowReportsMoving(t *testing.T) {
	d := NewMotionDetector(DefaultMotionConfig())
	for i := 0; i < DefaultMotionConfig().WindowSize-1; i++ {
		d.Observe(imu.Vec3{Z: 1}, imu.Vec3{})
		if d.Stationary() {
			t.Fatalf("stationary after only %d samples", i+1)
		}
	}
	d.Observe(imu.Vec3{Z: 1}, imu.Vec3{})
	if !d.Stationary() {
		t.Error("full window of identical samples should report stationary")
	}
}

func TestMotionDetectorClassifiesMotion(t *testing.T) {
	cfg := DefaultMotionConfig()
	rng := rand.New(rand.NewSource(11))

	rest := NewMotionDetector(cfg)
	moving := NewMotionDetector(cfg)
	for i := 0; i < cfg.WindowSize*2; i++ {
		rest.Observe(imu.Vec3{
			X: rng.NormFloat64() * 0.005,
			Y: rng.NormFloat64() * 0.005,
			Z: 1 + rng.NormFloat64()*0.005,
		}, imu.Vec3{
			X: rng.NormFloat64() * 0.1,
			Y: rng.NormFloat64() * 0.1,
			Z: rng.NormFloat64() * 0.1,
		})
		moving.Observe(imu.Vec3{
			X: rng.NormFloat64() * 0.3,
			Z: 1 + rng.NormFloat64()*0.3,
		}, imu.Vec3{
			X: 20 + rng.NormFloat64()*30,
			Y: rng.NormFloat64() * 30,
		})
	}
	if !rest.Stationary() {
		t.Error("low-variance window should report stationary")
	}
	if moving.Stationary() {
		t.Error("shaking device should report moving")
	}
}

func TestMotionDetectorReset(t *testing.T) {
	d := NewMotionDetector(DefaultMotionConfig())
	for i := 0; i < DefaultMotionConfig().WindowSize; i++ {
		d.Observe(imu.Vec3{Z: 1}, imu.Vec3{})
	}
	if !d.Stationary() {
		t.Fatal("window should be stationary before reset")
	}
	d.Reset()
	if d.Stationary() {
		t.Error("reset detector should report moving until window refills")
	}
}

package ahrs

import "github.com/handwave-io/fieldtrack/internal/imu"

// MotionConfig holds stationarity-detection parameters.
type MotionConfig struct {
	WindowSize    int     // samples in the sliding window
	AccelVarLimit float64 // max accel-magnitude variance (g²) while at rest
	GyroVarLimit  float64 // max gyro-magnitude variance while at rest
}

// DefaultMotionConfig returns detection defaults: a half-second window
// at 50 Hz with thresholds loose enough to tolerate sensor noise.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		WindowSize:    25,
		AccelVarLimit: 0.001,
		GyroVarLimit:  0.5,
	}
}

// MotionDetector classifies the device as stationary or moving from the
// variance of recent accelerometer and gyroscope magnitudes. Gyro bias
// learning is gated on its verdict: adapting bias while the wrist is in
// motion would absorb real rotation into the bias estimate.
type MotionDetector struct {
	cfg MotionConfig

	accelMag []float64
	gyroMag  []float64
	head     int
	filled   int
}

// NewMotionDetector returns a detector with an empty window. Until the
// window fills, the device is reported as moving.
func NewMotionDetector(cfg MotionConfig) *MotionDetector {
	if cfg.WindowSize < 2 {
		cfg.WindowSize = 2
	}
	return &MotionDetector{
		cfg:      cfg,
		accelMag: make([]float64, cfg.WindowSize),
		gyroMag:  make([]float64, cfg.WindowSize),
	}
}

// Observe records one sample into the sliding window.
func (d *MotionDetector) Observe(accel, gyro imu.Vec3) {
	d.accelMag[d.head] = accel.Norm()
	d.gyroMag[d.head] = gyro.Norm()
	d.head = (d.head + 1) % d.cfg.WindowSize
	if d.filled < d.cfg.WindowSize {
		d.filled++
	}
}

// Stationary reports whether both magnitude variances are under their
// rest thresholds. An unfilled window always reports moving.
func (d *MotionDetector) Stationary() bool {
	if d.filled < d.cfg.WindowSize {
		return false
	}
	return variance(d.accelMag) < d.cfg.AccelVarLimit &&
		variance(d.gyroMag) < d.cfg.GyroVarLimit
}

// Reset empties the window.
func (d *MotionDetector) Reset() {
	d.head = 0
	d.filled = 0
}

func variance(xs []float64) float64 {
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	v := 0.0
	for _, x := range xs {
		dx := x - mean
		v += dx * dx
	}
	return v / float64(len(xs))
}

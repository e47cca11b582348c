// Package synth generates synthetic 9-axis sample streams with known
// ground truth: a tumbling orientation path, configurable hard/soft
// iron distortion, an ambient Earth field and optional simulated
// fingertip magnets. Used by the end-to-end tests and the gen-stream
// tool.
package synth

import (
	"math"
	"math/rand"
	"time"

	"github.com/handwave-io/fieldtrack/internal/imu"
	"github.com/handwave-io/fieldtrack/internal/magnet"
)

// Config describes the simulated device and environment.
type Config struct {
	SampleFreq float64  // Hz
	EarthField imu.Vec3 // world frame, µT

	HardIron      imu.Vec3 // constant sensor-frame bias, µT
	SoftIronScale imu.Vec3 // per-axis ellipsoid distortion; (1,1,1) = none

	MagNoise   float64 // σ per mag axis, µT
	AccelNoise float64 // σ per accel axis, g
	GyroNoise  float64 // σ per gyro axis, deg/s

	TumbleRate float64 // orientation sweep rate, deg/s

	// Optional simulated magnets: a fixed hand pose whose dipole field
	// is injected into the magnetometer before iron distortion.
	MagnetPose *imu.HandPose
	Moments    magnet.Moments

	Seed int64
}

// DefaultConfig returns a mid-latitude environment with a realistic
// iron distortion and a tumble fast enough to cover all orientation
// octants inside a thousand samples.
func DefaultConfig() Config {
	return Config{
		SampleFreq:    50,
		EarthField:    imu.Vec3{X: 20, Y: 0, Z: 45},
		HardIron:      imu.Vec3{X: 5, Y: -3, Z: 10},
		SoftIronScale: imu.Vec3{X: 1.2, Y: 0.9, Z: 1.0},
		MagNoise:      0.2,
		AccelNoise:    0.005,
		GyroNoise:     0.1,
		TumbleRate:    120,
	}
}

// Generator produces one deterministic sample stream.
type Generator struct {
	cfg Config

	q     imu.Quaternion
	t     float64
	n     int64
	base  int64
	rng   *rand.Rand
	gravW imu.Vec3
}

// New returns a generator at the identity orientation.
func New(cfg Config) *Generator {
	if cfg.SampleFreq <= 0 {
		cfg.SampleFreq = 50
	}
	if cfg.SoftIronScale == (imu.Vec3{}) {
		cfg.SoftIronScale = imu.Vec3{X: 1, Y: 1, Z: 1}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		cfg:   cfg,
		q:     imu.IdentityQuaternion(),
		base:  time.Now().UnixNano(),
		rng:   rand.New(rand.NewSource(seed)),
		gravW: imu.Vec3{Z: 1},
	}
}

// Orientation returns the ground-truth attitude of the last sample.
func (g *Generator) Orientation() imu.Quaternion { return g.q }

// Next advances the simulation one step and returns the sample.
func (g *Generator) Next() imu.SensorSample {
	dt := 1 / g.cfg.SampleFreq

	// Tumbling angular velocity: axis precesses on incommensurate
	// frequencies so the attitude path fills out SO(3) instead of
	// circling one great circle.
	const rad = math.Pi / 180
	rate := g.cfg.TumbleRate * rad
	w := imu.Vec3{
		X: math.Sin(0.31 * g.t),
		Y: math.Sin(0.43*g.t + 1.0),
		Z: math.Cos(0.23*g.t + 2.0),
	}.Normalized().Scale(rate)

	// Integrate attitude with the sensor-frame rotation increment.
	angle := rate * dt
	if angle > 1e-12 {
		axis := w.Scale(1 / rate)
		half := angle / 2
		dq := imu.Quaternion{
			W: math.Cos(half),
			X: axis.X * math.Sin(half),
			Y: axis.Y * math.Sin(half),
			Z: axis.Z * math.Sin(half),
		}
		g.q = g.q.Mul(dq).Normalized()
	}

	accel := g.q.RotateInverse(g.gravW)
	gyroDeg := w.Scale(1 / rad)

	field := g.q.RotateInverse(g.cfg.EarthField)
	if g.cfg.MagnetPose != nil {
		field = field.Add(magnet.FieldAt(*g.cfg.MagnetPose, g.cfg.Moments, imu.Vec3{}))
	}
	raw := imu.Vec3{
		X: field.X*g.cfg.SoftIronScale.X + g.cfg.HardIron.X,
		Y: field.Y*g.cfg.SoftIronScale.Y + g.cfg.HardIron.Y,
		Z: field.Z*g.cfg.SoftIronScale.Z + g.cfg.HardIron.Z,
	}

	s := imu.SensorSample{
		Accel: imu.Vec3{
			X: accel.X + g.rng.NormFloat64()*g.cfg.AccelNoise,
			Y: accel.Y + g.rng.NormFloat64()*g.cfg.AccelNoise,
			Z: accel.Z + g.rng.NormFloat64()*g.cfg.AccelNoise,
		},
		Gyro: imu.Vec3{
			X: gyroDeg.X + g.rng.NormFloat64()*g.cfg.GyroNoise,
			Y: gyroDeg.Y + g.rng.NormFloat64()*g.cfg.GyroNoise,
			Z: gyroDeg.Z + g.rng.NormFloat64()*g.cfg.GyroNoise,
		},
		Mag: imu.Vec3{
			X: raw.X + g.rng.NormFloat64()*g.cfg.MagNoise,
			Y: raw.Y + g.rng.NormFloat64()*g.cfg.MagNoise,
			Z: raw.Z + g.rng.NormFloat64()*g.cfg.MagNoise,
		},
		UnixNanos: g.base + int64(float64(g.n)*dt*1e9),
	}

	g.t += dt
	g.n++
	return s
}

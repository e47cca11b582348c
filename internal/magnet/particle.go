package magnet

import (
	"math"
	"math/rand"
	"time"

	"github.com/handwave-io/fieldtrack/internal/imu"
	"github.com/handwave-io/fieldtrack/internal/monitoring"
)

// TrackState represents the lifecycle state of the particle filter.
type TrackState string

const (
	TrackDisabled     TrackState = "disabled"     // no particles allocated
	TrackInitializing TrackState = "initializing" // scattered, no update yet
	TrackTracking     TrackState = "tracking"     // predict/update loop running
)

// Config holds particle filter parameters.
type Config struct {
	NumParticles      int
	PositionNoise     float64 // per-step position jitter σ, meters
	VelocityNoise     float64 // per-second velocity jitter σ, m/s
	ResampleThreshold float64 // resample when ESS < N·threshold
	Seed              int64   // rng seed; 0 seeds from the clock
}

// DefaultConfig returns filter defaults for fingertip-scale motion.
func DefaultConfig() Config {
	return Config{
		NumParticles:      500,
		PositionNoise:     0.002,
		VelocityNoise:     0.02,
		ResampleThreshold: 0.5,
	}
}

// FingerState is one finger's hypothesised kinematic state.
type FingerState struct {
	Position imu.Vec3
	Velocity imu.Vec3
}

// Particle is one 5-finger pose hypothesis with an importance weight.
type Particle struct {
	Fingers [imu.NumFingers]FingerState
	Weight  float64
}

// LikelihoodFunc scores a hypothesis against a field measurement,
// returning a non-negative weight factor.
type LikelihoodFunc func(p *Particle, measured imu.Vec3) float64

// Filter is a systematic-resampling particle filter over 5-finger
// poses. Not safe for concurrent use.
type Filter struct {
	cfg     Config
	moments Moments

	state     TrackState
	particles []Particle
	rng       *rand.Rand
}

// New returns a disabled filter; Initialize allocates the population.
func New(cfg Config, moments Moments) *Filter {
	if cfg.NumParticles < 1 {
		cfg.NumParticles = DefaultConfig().NumParticles
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Filter{
		cfg:     cfg,
		moments: moments,
		state:   TrackDisabled,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// State returns the lifecycle state.
func (f *Filter) State() TrackState { return f.state }

// Particles exposes the current population for diagnostics.
func (f *Filter) Particles() []Particle { return f.particles }

// Initialize scatters the population around a reference pose with
// Gaussian perturbation: position noise is widened 5x for initial
// spread, velocities get independent noise, weights start uniform.
func (f *Filter) Initialize(ref imu.HandPose) {
	n := f.cfg.NumParticles
	f.particles = make([]Particle, n)
	w := 1 / float64(n)
	for i := range f.particles {
		p := &f.particles[i]
		p.Weight = w
		for fg := 0; fg < imu.NumFingers; fg++ {
			p.Fingers[fg].Position = imu.Vec3{
				X: ref[fg].X + f.rng.NormFloat64()*f.cfg.PositionNoise*5,
				Y: ref[fg].Y + f.rng.NormFloat64()*f.cfg.PositionNoise*5,
				Z: ref[fg].Z + f.rng.NormFloat64()*f.cfg.PositionNoise*5,
			}
			p.Fingers[fg].Velocity = imu.Vec3{
				X: f.rng.NormFloat64() * f.cfg.VelocityNoise,
				Y: f.rng.NormFloat64() * f.cfg.VelocityNoise,
				Z: f.rng.NormFloat64() * f.cfg.VelocityNoise,
			}
		}
	}
	f.state = TrackInitializing
	monitoring.Logf("magnet: particle filter initialized, %d particles", n)
}

// Reset discards all particles and returns to disabled. A later
// Initialize starts clean.
func (f *Filter) Reset() {
	f.particles = nil
	f.state = TrackDisabled
	monitoring.Logf("magnet: particle filter reset")
}

// Predict advances every hypothesis by dt under a random-walk motion
// model: constant-velocity drift plus Gaussian jitter on both position
// and velocity. No dynamics beyond that.
func (f *Filter) Predict(dt float64) {
	if f.state == TrackDisabled {
		return
	}
	f.state = TrackTracking
	for i := range f.particles {
		p := &f.particles[i]
		for fg := 0; fg < imu.NumFingers; fg++ {
			s := &p.Fingers[fg]
			s.Position.X += s.Velocity.X*dt + f.rng.NormFloat64()*f.cfg.PositionNoise
			s.Position.Y += s.Velocity.Y*dt + f.rng.NormFloat64()*f.cfg.PositionNoise
			s.Position.Z += s.Velocity.Z*dt + f.rng.NormFloat64()*f.cfg.PositionNoise
			s.Velocity.X += f.rng.NormFloat64() * f.cfg.VelocityNoise * dt
			s.Velocity.Y += f.rng.NormFloat64() * f.cfg.VelocityNoise * dt
			s.Velocity.Z += f.rng.NormFloat64() * f.cfg.VelocityNoise * dt
		}
	}
}

// FieldLikelihood returns the standard Gaussian-kernel likelihood on
// the residual between the measured field and the dipole forward model,
// with kernel width sigma (µT).
func (f *Filter) FieldLikelihood(sigma float64) LikelihoodFunc {
	inv2s2 := 1 / (2 * sigma * sigma)
	moments := f.moments
	return func(p *Particle, measured imu.Vec3) float64 {
		var pose imu.HandPose
		for fg := 0; fg < imu.NumFingers; fg++ {
			pose[fg] = p.Fingers[fg].Position
		}
		predicted := FieldAt(pose, moments, imu.Vec3{})
		r := measured.Sub(predicted).Norm()
		return math.Exp(-r * r * inv2s2)
	}
}

// Update reweights the population against a measurement and
// renormalises. An all-zero (or non-finite) weight sum means every
// hypothesis was implausible; the filter recovers by resetting to
// uniform weights rather than treating it as fatal. Resampling runs
// when the effective sample size degenerates.
func (f *Filter) Update(measured imu.Vec3, likelihood LikelihoodFunc) {
	if f.state == TrackDisabled {
		return
	}
	f.state = TrackTracking

	total := 0.0
	for i := range f.particles {
		p := &f.particles[i]
		p.Weight *= likelihood(p, measured)
		total += p.Weight
	}

	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		w := 1 / float64(len(f.particles))
		for i := range f.particles {
			f.particles[i].Weight = w
		}
		monitoring.Logf("magnet: all hypotheses implausible, weights reset to uniform")
		return
	}

	for i := range f.particles {
		f.particles[i].Weight /= total
	}

	if f.EffectiveSampleSize() < float64(len(f.particles))*f.cfg.ResampleThreshold {
		f.resample()
	}
}

// EffectiveSampleSize returns 1/Σw², the usual degeneracy measure.
func (f *Filter) EffectiveSampleSize() float64 {
	sum := 0.0
	for i := range f.particles {
		w := f.particles[i].Weight
		sum += w * w
	}
	if sum <= 0 {
		return 0
	}
	return 1 / sum
}

// resample performs systematic (low variance) resampling: one random
// offset, then N deterministic strides over the cumulative weight
// distribution. Weights reset to uniform afterwards.
func (f *Filter) resample() {
	n := len(f.particles)
	next := make([]Particle, n)

	step := 1 / float64(n)
	u := f.rng.Float64() * step
	cum := f.particles[0].Weight
	j := 0
	for i := 0; i < n; i++ {
		for u > cum && j < n-1 {
			j++
			cum += f.particles[j].Weight
		}
		next[i] = f.particles[j]
		next[i].Weight = step
		u += step
	}
	f.particles = next
}

// Estimate returns the weighted mean position per finger.
func (f *Filter) Estimate() imu.HandPose {
	var pose imu.HandPose
	if len(f.particles) == 0 {
		return pose
	}
	for i := range f.particles {
		p := &f.particles[i]
		for fg := 0; fg < imu.NumFingers; fg++ {
			pose[fg] = pose[fg].Add(p.Fingers[fg].Position.Scale(p.Weight))
		}
	}
	return pose
}

// Diversity returns the mean weighted position variance across all
// fingers and axes. Wide spread means the population disagrees, i.e.
// low confidence in the estimate.
func (f *Filter) Diversity() float64 {
	if len(f.particles) == 0 {
		return 0
	}
	mean := f.Estimate()
	total := 0.0
	for i := range f.particles {
		p := &f.particles[i]
		for fg := 0; fg < imu.NumFingers; fg++ {
			d := p.Fingers[fg].Position.Sub(mean[fg])
			total += p.Weight * (d.X*d.X + d.Y*d.Y + d.Z*d.Z)
		}
	}
	return total / float64(imu.NumFingers*3)
}

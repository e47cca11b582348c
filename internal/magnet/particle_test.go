package magnet

import (
	"math"
	"testing"

	"github.com/handwave-io/fieldtrack/internal/imu"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Seed = 99
	return cfg
}

func restPose() imu.HandPose {
	return imu.HandPose{
		imu.Thumb:  {X: 0.03, Y: 0.05, Z: -0.02},
		imu.Index:  {X: 0.01, Y: 0.08, Z: -0.02},
		imu.Middle: {X: 0.00, Y: 0.085, Z: -0.02},
		imu.Ring:   {X: -0.01, Y: 0.08, Z: -0.02},
		imu.Pinky:  {X: -0.02, Y: 0.07, Z: -0.02},
	}
}

func TestLifecycleStates(t *testing.T) {
	f := New(testConfig(), UniformMoments(1))
	if f.State() != TrackDisabled {
		t.Fatalf("new filter state = %v, want disabled", f.State())
	}

	// Disabled filter ignores predict/update.
	f.Predict(0.02)
	f.Update(imu.Vec3{}, f.FieldLikelihood(5))
	if f.State() != TrackDisabled || f.Particles() != nil {
		t.Fatal("disabled filter must ignore predict/update")
	}

	f.Initialize(restPose())
	if f.State() != TrackInitializing {
		t.Errorf("state after Initialize = %v, want initializing", f.State())
	}
	if len(f.Particles()) != testConfig().NumParticles {
		t.Errorf("population = %d, want %d", len(f.Particles()), testConfig().NumParticles)
	}

	f.Predict(0.02)
	if f.State() != TrackTracking {
		t.Errorf("state after Predict = %v, want tracking", f.State())
	}

	f.Reset()
	if f.State() != TrackDisabled || f.Particles() != nil {
		t.Error("Reset must drop particles and return to disabled")
	}
}

func TestInitializeUniformWeights(t *testing.T) {
	f := New(testConfig(), UniformMoments(1))
	f.Initialize(restPose())

	want := 1 / float64(testConfig().NumParticles)
	for i, p := range f.Particles() {
		if math.Abs(p.Weight-want) > 1e-12 {
			t.Fatalf("particle %d weight = %v, want %v", i, p.Weight, want)
		}
	}
	if ess := f.EffectiveSampleSize(); math.Abs(ess-float64(testConfig().NumParticles)) > 1e-6 {
		t.Errorf("uniform-weight ESS = %v, want N", ess)
	}
}

func TestInitializeSpread(t *testing.T) {
	f := New(testConfig(), UniformMoments(1))
	ref := restPose()
	f.Initialize(ref)

	// Population variance per axis should sit near (5·PositionNoise)².
	sigma := 5 * testConfig().PositionNoise
	if d := f.Diversity(); d < sigma*sigma/2 || d > sigma*sigma*2 {
		t.Errorf("initial diversity = %v, want near %v", d, sigma*sigma)
	}
	if est := f.Estimate(); poseDistance(est, ref) > sigma {
		t.Errorf("initial estimate %v off the reference pose", poseDistance(est, ref))
	}
}

// With an uninformative likelihood the estimate must stay put: the
// random walk is zero mean and the weights stay uniform.
func TestUniformLikelihoodKeepsEstimate(t *testing.T) {
	f := New(testConfig(), UniformMoments(1))
	ref := restPose()
	f.Initialize(ref)

	uniform := func(*Particle, imu.Vec3) float64 { return 1 }
	for i := 0; i < 50; i++ {
		f.Predict(0.02)
		f.Update(imu.Vec3{}, uniform)
	}

	if d := poseDistance(f.Estimate(), ref); d > 0.01 {
		t.Errorf("estimate drifted %v m under uniform likelihood", d)
	}
	want := 1 / float64(testConfig().NumParticles)
	for _, p := range f.Particles() {
		if math.Abs(p.Weight-want) > 1e-9 {
			t.Fatalf("weights diverged from uniform: %v", p.Weight)
		}
	}
}

// When every hypothesis scores zero the filter must recover with a
// uniform reset rather than emit NaN weights.
func TestZeroLikelihoodResetsToUniform(t *testing.T) {
	f := New(testConfig(), UniformMoments(1))
	f.Initialize(restPose())

	zero := func(*Particle, imu.Vec3) float64 { return 0 }
	f.Update(imu.Vec3{}, zero)

	want := 1 / float64(testConfig().NumParticles)
	for _, p := range f.Particles() {
		if math.IsNaN(p.Weight) {
			t.Fatal("NaN weight after zero-likelihood update")
		}
		if math.Abs(p.Weight-want) > 1e-12 {
			t.Fatalf("weight = %v, want uniform %v", p.Weight, want)
		}
	}

	est := f.Estimate()
	for fg := 0; fg < imu.NumFingers; fg++ {
		v := est[fg]
		if math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsNaN(v.Z) {
			t.Fatal("NaN estimate after zero-likelihood update")
		}
	}
}

func TestDegenerateWeightsTriggerResample(t *testing.T) {
	f := New(testConfig(), UniformMoments(1))
	ref := restPose()
	f.Initialize(ref)

	// Sharply favor hypotheses whose thumb sits above the reference X.
	// Most particles collapse to negligible weight, ESS degenerates, and
	// systematic resampling must restore a uniform population drawn from
	// the survivors.
	sharp := func(p *Particle, _ imu.Vec3) float64 {
		d := p.Fingers[imu.Thumb].Position.X - (ref[imu.Thumb].X + 0.015)
		return math.Exp(-d * d / (2 * 0.001 * 0.001))
	}
	f.Update(imu.Vec3{}, sharp)

	want := 1 / float64(testConfig().NumParticles)
	for _, p := range f.Particles() {
		if math.Abs(p.Weight-want) > 1e-12 {
			t.Fatalf("weight %v after resample, want uniform", p.Weight)
		}
	}
	if ess := f.EffectiveSampleSize(); math.Abs(ess-float64(testConfig().NumParticles)) > 1e-6 {
		t.Errorf("post-resample ESS = %v, want N", ess)
	}

	// Survivors cluster near the favored region.
	mean := f.Estimate()[imu.Thumb].X
	if mean < ref[imu.Thumb].X+0.005 {
		t.Errorf("resampled population did not shift toward the likely region: %v", mean)
	}
}

func TestFieldLikelihoodPrefersTruePose(t *testing.T) {
	f := New(testConfig(), UniformMoments(0.5))
	truth := restPose()

	var exact Particle
	for fg := 0; fg < imu.NumFingers; fg++ {
		exact.Fingers[fg].Position = truth[fg]
	}
	var off Particle
	for fg := 0; fg < imu.NumFingers; fg++ {
		off.Fingers[fg].Position = truth[fg].Add(imu.Vec3{X: 0.03})
	}

	measured := FieldAt(truth, UniformMoments(0.5), imu.Vec3{})
	like := f.FieldLikelihood(5)

	le := like(&exact, measured)
	lo := like(&off, measured)
	if math.Abs(le-1) > 1e-9 {
		t.Errorf("exact hypothesis likelihood = %v, want 1", le)
	}
	if lo >= le {
		t.Errorf("offset hypothesis scored %v, exact scored %v", lo, le)
	}
}

func TestSeededFiltersAreDeterministic(t *testing.T) {
	a := New(testConfig(), UniformMoments(1))
	b := New(testConfig(), UniformMoments(1))
	a.Initialize(restPose())
	b.Initialize(restPose())
	for i := 0; i < 10; i++ {
		a.Predict(0.02)
		b.Predict(0.02)
	}
	if poseDistance(a.Estimate(), b.Estimate()) > 0 {
		t.Error("same seed produced different trajectories")
	}
}

func poseDistance(a, b imu.HandPose) float64 {
	max := 0.0
	for fg := 0; fg < imu.NumFingers; fg++ {
		if d := a[fg].Sub(b[fg]).Norm(); d > max {
			max = d
		}
	}
	return max
}

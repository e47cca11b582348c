package magcal

import (
	"math"

	"github.com/handwave-io/fieldtrack/internal/imu"
	"github.com/handwave-io/fieldtrack/internal/monitoring"
)

// Config holds calibration sample requirements and quality thresholds.
type Config struct {
	HardIronMinSamples   int // varied-orientation samples before hard iron solve
	SoftIronMinSamples   int
	EarthFieldMinSamples int

	EarthFieldWindow int // sliding window for incremental re-estimation
	Incremental      bool

	QualityExcellent float64 // sphericity for a "good" rating
	QualityGood      float64 // sphericity for an "acceptable" rating

	MaxBufferedSamples int // cap on the raw sample buffer
}

// DefaultConfig returns the stock calibration thresholds.
func DefaultConfig() Config {
	return Config{
		HardIronMinSamples:   100,
		SoftIronMinSamples:   200,
		EarthFieldMinSamples: 50,
		EarthFieldWindow:     200,
		Incremental:          true,
		QualityExcellent:     0.9,
		QualityGood:          0.7,
		MaxBufferedSamples:   2000,
	}
}

// residualWindow is how many recent residual magnitudes feed the
// confidence estimate.
const residualWindow = 100

// confidenceFloorUT maps mean residual (µT) onto confidence: 0 µT is
// full confidence, confidenceFloorUT or more is zero.
const confidenceFloorUT = 10.0

// Correction is the output of one pass through the correction pipeline.
type Correction struct {
	// Residual is the fully corrected field with the Earth component
	// removed, i.e. what local sources (finger magnets) contribute.
	Residual imu.Vec3
	// Iron is the reading after iron correction only.
	Iron imu.Vec3
	// BestEffort is set when Earth-field removal could not run (stage
	// incomplete or no orientation); Residual then still contains the
	// Earth component and downstream consumers must treat it as
	// low-confidence.
	BestEffort bool
}

// Calibrator owns the three calibration stages and the per-sample
// correction pipeline. It is session scoped: one instance per stream,
// mutated only by the pipeline driver.
type Calibrator struct {
	cfg   Config
	state State

	raw []imu.Vec3 // buffered raw samples for the iron stages

	// Sliding window of world-frame iron-corrected samples for the
	// Earth-field stage and its incremental refinement.
	world     []imu.Vec3
	worldHead int
	worldLen  int

	// Recent residual magnitudes, ring buffer, for confidence.
	residuals    []float64
	residualHead int
	residualLen  int
}

// New returns a calibrator with no completed stages. Degenerate buffer
// sizes fall back to the defaults so a zero Config cannot panic the
// per-sample path.
func New(cfg Config) *Calibrator {
	if cfg.EarthFieldWindow < 1 {
		cfg.EarthFieldWindow = DefaultConfig().EarthFieldWindow
	}
	if cfg.MaxBufferedSamples < 1 {
		cfg.MaxBufferedSamples = DefaultConfig().MaxBufferedSamples
	}
	return &Calibrator{
		cfg:       cfg,
		state:     NewState(),
		world:     make([]imu.Vec3, cfg.EarthFieldWindow),
		residuals: make([]float64, residualWindow),
	}
}

// NewFromState returns a calibrator seeded with a persisted snapshot.
func NewFromState(cfg Config, state State) *Calibrator {
	c := New(cfg)
	c.state = state
	return c
}

// State returns the current calibration snapshot.
func (c *Calibrator) State() State { return c.state }

// SetState replaces the calibration snapshot (e.g. loaded from disk).
func (c *Calibrator) SetState(s State) { c.state = s }

// SampleCount returns how many raw samples are buffered for the iron
// stages.
func (c *Calibrator) SampleCount() int { return len(c.raw) }

// Reset discards all buffered samples, metrics and calibration state.
func (c *Calibrator) Reset() {
	c.state = NewState()
	c.raw = c.raw[:0]
	c.worldHead, c.worldLen = 0, 0
	c.residualHead, c.residualLen = 0, 0
}

// AddSample buffers one raw magnetometer reading for the iron stages.
// The buffer is bounded; once full, new samples replace the oldest so a
// long collection run keeps the freshest coverage.
func (c *Calibrator) AddSample(raw imu.Vec3) {
	if len(c.raw) < c.cfg.MaxBufferedSamples {
		c.raw = append(c.raw, raw)
		return
	}
	copy(c.raw, c.raw[1:])
	c.raw[len(c.raw)-1] = raw
}

// Iron applies the completed iron stages to one raw reading. Stages
// that have not run yet pass the reading through unchanged.
func (c *Calibrator) Iron(raw imu.Vec3) imu.Vec3 { return c.state.applyIron(raw) }

// Correct runs the correction pipeline on one reading: hard iron →
// soft iron → Earth-field removal in the sensor frame. hasOrientation
// reports whether q is a valid attitude for this sample; without it (or
// before the Earth stage completes) the result falls back to iron-only
// correction and is tagged BestEffort.
func (c *Calibrator) Correct(raw imu.Vec3, q imu.Quaternion, hasOrientation bool) Correction {
	iron := c.state.applyIron(raw)

	ironDone := c.state.HardIronCalibrated && c.state.SoftIronCalibrated
	if hasOrientation && ironDone && c.windowCandidate(iron) {
		c.pushWorld(q.Rotate(iron))
		if c.cfg.Incremental && c.state.EarthFieldCalibrated {
			c.refreshEarthField()
		}
	}

	if !c.state.EarthFieldCalibrated || !hasOrientation {
		return Correction{Residual: iron, Iron: iron, BestEffort: true}
	}

	expected := q.RotateInverse(c.state.EarthField)
	residual := iron.Sub(expected)
	c.pushResidual(residual.Norm())
	return Correction{Residual: residual, Iron: iron}
}

// Confidence reports calibration quality in [0,1] from the mean recent
// residual magnitude: a clean environment with an accurate Earth-field
// estimate leaves near-zero residual when no magnet is present.
func (c *Calibrator) Confidence() float64 {
	if !c.state.EarthFieldCalibrated || c.residualLen == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < c.residualLen; i++ {
		sum += c.residuals[i]
	}
	mean := sum / float64(c.residualLen)
	conf := 1 - mean/confidenceFloorUT
	return math.Max(0, math.Min(1, conf))
}

// windowCandidate reports whether an iron-corrected reading may enter
// the Earth-field window. Once the field magnitude is known, samples
// whose magnitude deviates strongly are carrying a local source (a
// finger magnet in range) and would drag the estimate off the ambient
// field, so they are skipped. Magnitude is orientation independent,
// which keeps the gate immune to attitude error.
func (c *Calibrator) windowCandidate(iron imu.Vec3) bool {
	if !c.state.EarthFieldCalibrated {
		return true
	}
	return math.Abs(iron.Norm()-c.state.EarthFieldMag) < confidenceFloorUT/2
}

func (c *Calibrator) pushWorld(v imu.Vec3) {
	c.world[c.worldHead] = v
	c.worldHead = (c.worldHead + 1) % len(c.world)
	if c.worldLen < len(c.world) {
		c.worldLen++
	}
}

func (c *Calibrator) pushResidual(mag float64) {
	c.residuals[c.residualHead] = mag
	c.residualHead = (c.residualHead + 1) % len(c.residuals)
	if c.residualLen < len(c.residuals) {
		c.residualLen++
	}
}

// refreshEarthField re-averages the world-frame window. Called per
// sample in incremental mode so slow environmental drift is absorbed.
func (c *Calibrator) refreshEarthField() {
	if c.worldLen < c.cfg.EarthFieldMinSamples {
		return
	}
	var sum imu.Vec3
	for i := 0; i < c.worldLen; i++ {
		sum = sum.Add(c.world[i])
	}
	avg := sum.Scale(1 / float64(c.worldLen))
	c.state.EarthField = avg
	c.state.EarthFieldMag = avg.Norm()
}

func logStage(stage string, detail string, args ...interface{}) {
	monitoring.Logf("magcal: "+stage+" "+detail, args...)
}

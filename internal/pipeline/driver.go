// Package pipeline wires the per-sample estimation chain: orientation
// fusion, magnetic correction, residual smoothing and finger tracking.
// Processing is single threaded and synchronous; every sample makes
// exactly one pass in arrival order, because gyro bias learning and
// particle consistency both depend on unbroken continuity.
package pipeline

import (
	"math"
	"sync"

	"github.com/handwave-io/fieldtrack/internal/ahrs"
	"github.com/handwave-io/fieldtrack/internal/imu"
	"github.com/handwave-io/fieldtrack/internal/kalman"
	"github.com/handwave-io/fieldtrack/internal/magcal"
	"github.com/handwave-io/fieldtrack/internal/magnet"
	"github.com/handwave-io/fieldtrack/internal/monitoring"
)

// dt clamps: out-of-range timestamps (replay seams, transport hiccups)
// are bounded rather than trusted.
const (
	minDt = 1.0 / 200
	maxDt = 0.1
)

// magTrustFloorUT is the deviation of the iron-corrected field
// magnitude from the Earth field (µT) at which magnetic heading
// correction is fully distrusted, finger magnets being in range.
const magTrustFloorUT = 10.0

// Config gathers the tunables of every stage.
type Config struct {
	AHRS        ahrs.Config
	Calibration magcal.Config
	Kalman      kalman.Config
	Particle    magnet.Config

	// Moments configures which fingers carry magnets and how strong.
	Moments magnet.Moments

	// GyroDegrees marks gyro samples as deg/s (converted internally).
	GyroDegrees bool
	// SmoothResidual routes the residual field through a point Kalman
	// filter before it reaches the particle filter.
	SmoothResidual bool
	// LikelihoodSigma is the Gaussian kernel width (µT) scoring
	// particles against the residual field.
	LikelihoodSigma float64
}

// DefaultConfig returns the stock pipeline tuning.
func DefaultConfig() Config {
	return Config{
		AHRS:            ahrs.DefaultConfig(),
		Calibration:     magcal.DefaultConfig(),
		Kalman:          kalman.DefaultConfig(),
		Particle:        magnet.DefaultConfig(),
		Moments:         magnet.UniformMoments(1.0),
		GyroDegrees:     true,
		SmoothResidual:  true,
		LikelihoodSigma: 5.0,
	}
}

// Snapshot is the consumer-facing view of the pipeline. It may be read
// concurrently with processing; only the driver mutates the source
// state.
type Snapshot struct {
	Stage       imu.Stage         `json:"stage"`
	Samples     int64             `json:"samples"`
	Orientation imu.Quaternion    `json:"orientation"`
	Euler       imu.EulerAngles   `json:"euler"`
	Residual    imu.Vec3          `json:"residual"`
	BestEffort  bool              `json:"best_effort"`
	Pose        imu.HandPose      `json:"pose"`
	Confidence  float64           `json:"confidence"`
	TrackState  magnet.TrackState `json:"track_state"`
	Calibration magcal.State      `json:"calibration"`
}

// Driver owns one session's estimator instances and runs the per-sample
// pass. All mutation happens on the caller's goroutine; Snapshot is the
// only concurrent-read surface.
type Driver struct {
	mu  sync.RWMutex
	cfg Config

	est        *ahrs.Estimator
	cal        *magcal.Calibrator
	smooth     *kalman.PointFilter
	filter     *magnet.Filter
	likelihood magnet.LikelihoodFunc

	lastNanos int64
	samples   int64
	snap      Snapshot
}

// New constructs a driver with fresh estimator instances. Nothing is
// shared between drivers.
func New(cfg Config) *Driver {
	if cfg.LikelihoodSigma <= 0 {
		cfg.LikelihoodSigma = DefaultConfig().LikelihoodSigma
	}
	f := magnet.New(cfg.Particle, cfg.Moments)
	cal := magcal.New(cfg.Calibration)
	return &Driver{
		cfg:        cfg,
		est:        ahrs.New(cfg.AHRS),
		cal:        cal,
		smooth:     kalman.New(cfg.Kalman),
		filter:     f,
		likelihood: f.FieldLikelihood(cfg.LikelihoodSigma),
		snap: Snapshot{
			Stage:       imu.StageRaw,
			Orientation: imu.IdentityQuaternion(),
			TrackState:  f.State(),
			Calibration: cal.State(),
		},
	}
}

// Process runs one sample through the full chain and returns the
// annotated result.
func (d *Driver) Process(s imu.SensorSample) imu.Processed {
	d.mu.Lock()
	defer d.mu.Unlock()

	dt := d.stepDt(s.UnixNanos)

	gyro := s.Gyro
	if d.cfg.GyroDegrees {
		const rad = math.Pi / 180
		gyro = gyro.Scale(rad)
	}

	// Attenuate magnetic heading trust by how far the iron-corrected
	// magnitude sits from the known Earth field: a strong deviation
	// means the magnetometer is measuring finger magnets, not north.
	// Magnitude is orientation independent, so attitude error alone
	// never disables the correction that would fix it.
	iron := d.cal.Iron(s.Mag)
	trust := d.cfg.AHRS.MagTrust
	if cs := d.cal.State(); cs.EarthFieldCalibrated {
		att := 1 - math.Abs(iron.Norm()-cs.EarthFieldMag)/magTrustFloorUT
		if att < 0 {
			att = 0
		}
		trust *= att
	}
	q := d.est.UpdateWithMag(s.Accel, gyro, iron, dt, trust)

	d.cal.AddSample(s.Mag)
	corr := d.cal.Correct(s.Mag, q, true)

	residual := corr.Residual
	if d.cfg.SmoothResidual && !corr.BestEffort {
		d.smooth.Predict(dt)
		d.smooth.Update(residual)
		residual = d.smooth.Position()
	}

	out := imu.Processed{
		Stage:       imu.StageFused,
		Sample:      s,
		Orientation: q,
		Euler:       q.Euler(),
		Residual:    residual,
		BestEffort:  corr.BestEffort,
	}

	if d.filter.State() != magnet.TrackDisabled && !corr.BestEffort {
		d.filter.Predict(dt)
		d.filter.Update(residual, d.likelihood)
		out.Stage = imu.StageTracked
		out.Pose = d.filter.Estimate()
		out.Confidence = d.confidence()
	}

	d.samples++
	d.snap = Snapshot{
		Stage:       out.Stage,
		Samples:     d.samples,
		Orientation: out.Orientation,
		Euler:       out.Euler,
		Residual:    out.Residual,
		BestEffort:  out.BestEffort,
		Pose:        out.Pose,
		Confidence:  out.Confidence,
		TrackState:  d.filter.State(),
		Calibration: d.cal.State(),
	}
	return out
}

// confidence combines the calibration residual confidence with the
// particle population spread. Spread is mapped through exp(-var/var₀)
// with var₀ the initial scatter variance, so a freshly converged
// population scores near 1.
func (d *Driver) confidence() float64 {
	calConf := d.cal.Confidence()
	scatter := d.cfg.Particle.PositionNoise * 5
	v0 := scatter * scatter
	if v0 <= 0 {
		return calConf
	}
	return calConf * math.Exp(-d.filter.Diversity()/v0)
}

func (d *Driver) stepDt(nanos int64) float64 {
	var dt float64
	if d.lastNanos > 0 && nanos > d.lastNanos {
		dt = float64(nanos-d.lastNanos) / 1e9
	} else if d.cfg.AHRS.SampleFreq > 0 {
		dt = 1 / d.cfg.AHRS.SampleFreq
	} else {
		dt = 1.0 / 50
	}
	d.lastNanos = nanos
	if dt < minDt {
		dt = minDt
	}
	if dt > maxDt {
		dt = maxDt
	}
	return dt
}

// Snapshot returns a copy of the latest consumer-facing state. Safe to
// call from any goroutine.
func (d *Driver) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snap
}

// EnableTracking scatters the particle population around a reference
// pose and starts the predict/update loop on subsequent samples.
func (d *Driver) EnableTracking(ref imu.HandPose) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter.Initialize(ref)
	d.smooth.Reset()
}

// DisableTracking discards all particles and smoothing state so a later
// re-enable starts clean.
func (d *Driver) DisableTracking() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter.Reset()
	d.smooth.Reset()
}

// TrackState reports the particle filter lifecycle state.
func (d *Driver) TrackState() magnet.TrackState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter.State()
}

// CalibrateHardIron runs the hard iron stage over the buffered samples.
func (d *Driver) CalibrateHardIron() (magcal.HardIronReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cal.CalibrateHardIron()
}

// CalibrateSoftIron runs the soft iron stage over the buffered samples.
func (d *Driver) CalibrateSoftIron() (magcal.SoftIronReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cal.CalibrateSoftIron()
}

// CalibrateEarthField runs the Earth-field stage and, on success, feeds
// the resulting flux reference back into the orientation estimator so
// the 9-DOF path can engage.
func (d *Driver) CalibrateEarthField() (magcal.EarthFieldReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rep, err := d.cal.CalibrateEarthField()
	if err != nil {
		return rep, err
	}
	d.setMagReferenceLocked(rep.Field)
	return rep, nil
}

// CalibrationState returns the persistable calibration snapshot.
func (d *Driver) CalibrationState() magcal.State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cal.State()
}

// SetCalibrationState installs a previously persisted snapshot, wiring
// the Earth-field reference into the orientation estimator when the
// stage is marked complete.
func (d *Driver) SetCalibrationState(s magcal.State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cal.SetState(s)
	if s.EarthFieldCalibrated {
		d.setMagReferenceLocked(s.EarthField)
	}
	monitoring.Logf("pipeline: calibration state loaded (hard=%t soft=%t earth=%t)",
		s.HardIronCalibrated, s.SoftIronCalibrated, s.EarthFieldCalibrated)
}

// ResetCalibration clears all calibration stages and buffers.
func (d *Driver) ResetCalibration() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cal.Reset()
	d.est.SetMagneticReference(0, 0)
}

// CalibrationSampleCount reports buffered iron-stage samples.
func (d *Driver) CalibrationSampleCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cal.SampleCount()
}

func (d *Driver) setMagReferenceLocked(field imu.Vec3) {
	horizontal := math.Sqrt(field.X*field.X + field.Y*field.Y)
	d.est.SetMagneticReference(horizontal, field.Z)
}

package magcal

import "github.com/handwave-io/fieldtrack/internal/imu"

// EarthFieldReport summarises an Earth-field solve.
type EarthFieldReport struct {
	Field     imu.Vec3 `json:"field"` // world frame, µT
	Magnitude float64  `json:"magnitude"`
	Samples   int      `json:"samples"`
}

// ObserveOriented feeds one iron-corrected, world-frame rotated sample
// into the Earth-field window without running the full correction
// pipeline. Used while collecting for the initial Earth-field solve.
func (c *Calibrator) ObserveOriented(raw imu.Vec3, q imu.Quaternion) {
	c.pushWorld(q.Rotate(c.state.applyIron(raw)))
}

// CalibrateEarthField averages the windowed world-frame samples into
// the ambient field reference. Requires both iron stages plus the
// configured minimum of oriented samples. Once this stage completes,
// incremental mode keeps re-estimating the field from the same sliding
// window on every corrected sample.
func (c *Calibrator) CalibrateEarthField() (EarthFieldReport, error) {
	if c.worldLen < c.cfg.EarthFieldMinSamples {
		return EarthFieldReport{}, &InsufficientSamplesError{
			Stage:    "earth field",
			Actual:   c.worldLen,
			Required: c.cfg.EarthFieldMinSamples,
		}
	}

	var sum imu.Vec3
	for i := 0; i < c.worldLen; i++ {
		sum = sum.Add(c.world[i])
	}
	avg := sum.Scale(1 / float64(c.worldLen))

	c.state.EarthField = avg
	c.state.EarthFieldMag = avg.Norm()
	c.state.EarthFieldCalibrated = true
	logStage("earth field", "B=(%.2f,%.2f,%.2f) |B|=%.2fµT from %d samples",
		avg.X, avg.Y, avg.Z, c.state.EarthFieldMag, c.worldLen)

	return EarthFieldReport{Field: avg, Magnitude: c.state.EarthFieldMag, Samples: c.worldLen}, nil
}

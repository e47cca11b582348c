package magcal

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// SoftIronReport summarises a soft iron solve.
type SoftIronReport struct {
	// Scale is the estimated per-axis ellipsoid scale (√ diagonal
	// variance) before correction.
	Scale [3]float64 `json:"scale"`
	// Matrix is the resulting row-major correction matrix.
	Matrix [9]float64 `json:"matrix"`
}

// CalibrateSoftIron approximates the ellipsoid distortion from the
// buffered samples (hard-iron corrected first, if that stage has run).
// The per-axis scale is taken from the diagonal of the sample
// covariance matrix only; off-diagonal terms are ignored, so a tilted
// (non-axis-aligned) ellipsoid is normalised in axis lengths but keeps
// its tilt. This matches the deployed sensor firmware and is an
// intentional approximation, not a full eigendecomposition.
func (c *Calibrator) CalibrateSoftIron() (SoftIronReport, error) {
	if len(c.raw) < c.cfg.SoftIronMinSamples {
		return SoftIronReport{}, &InsufficientSamplesError{
			Stage:    "soft iron",
			Actual:   len(c.raw),
			Required: c.cfg.SoftIronMinSamples,
		}
	}

	data := mat.NewDense(len(c.raw), 3, nil)
	for i, v := range c.raw {
		w := v
		if c.state.HardIronCalibrated {
			w = v.Sub(c.state.HardIronOffset)
		}
		data.Set(i, 0, w.X)
		data.Set(i, 1, w.Y)
		data.Set(i, 2, w.Z)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	var rep SoftIronReport
	avg := 0.0
	for i := 0; i < 3; i++ {
		rep.Scale[i] = math.Sqrt(cov.At(i, i))
		avg += rep.Scale[i]
	}
	avg /= 3

	m := identityMatrix
	for i := 0; i < 3; i++ {
		if rep.Scale[i] > 1e-12 {
			m[i*4] = avg / rep.Scale[i] // diagonal entries at 0, 4, 8
		}
	}
	rep.Matrix = m

	c.state.SoftIronMatrix = m
	c.state.SoftIronCalibrated = true
	logStage("soft iron", "scale=(%.3f,%.3f,%.3f) gain=(%.3f,%.3f,%.3f)",
		rep.Scale[0], rep.Scale[1], rep.Scale[2], m[0], m[4], m[8])
	return rep, nil
}

package magcal

import (
	"math"

	"github.com/handwave-io/fieldtrack/internal/imu"
)

// HardIronReport summarises a hard iron solve.
type HardIronReport struct {
	Offset imu.Vec3 `json:"offset"`
	// Sphericity is min(range)/max(range) across axes: 1.0 means the
	// collected samples describe a perfect sphere.
	Sphericity float64 `json:"sphericity"`
	// Coverage is the fraction of the 8 octants around the estimated
	// offset that contain at least one sample.
	Coverage float64 `json:"coverage"`
	Quality  string  `json:"quality"` // "good", "acceptable" or "poor"
}

// CalibrateHardIron estimates the constant magnetic bias as the
// ellipsoid centre approximation (max+min)/2 per axis. Requires the
// configured minimum of buffered samples spanning varied orientations.
func (c *Calibrator) CalibrateHardIron() (HardIronReport, error) {
	if len(c.raw) < c.cfg.HardIronMinSamples {
		return HardIronReport{}, &InsufficientSamplesError{
			Stage:    "hard iron",
			Actual:   len(c.raw),
			Required: c.cfg.HardIronMinSamples,
		}
	}

	min := c.raw[0]
	max := c.raw[0]
	for _, v := range c.raw[1:] {
		min.X = math.Min(min.X, v.X)
		min.Y = math.Min(min.Y, v.Y)
		min.Z = math.Min(min.Z, v.Z)
		max.X = math.Max(max.X, v.X)
		max.Y = math.Max(max.Y, v.Y)
		max.Z = math.Max(max.Z, v.Z)
	}

	offset := imu.Vec3{
		X: (max.X + min.X) / 2,
		Y: (max.Y + min.Y) / 2,
		Z: (max.Z + min.Z) / 2,
	}

	rep := HardIronReport{
		Offset:     offset,
		Sphericity: sphericity(min, max),
		Coverage:   octantCoverage(c.raw, offset),
	}
	rep.Quality = c.qualityLabel(rep.Sphericity, rep.Coverage)

	c.state.HardIronOffset = offset
	c.state.HardIronCalibrated = true
	logStage("hard iron", "offset=(%.2f,%.2f,%.2f) sphericity=%.3f coverage=%.2f quality=%s",
		offset.X, offset.Y, offset.Z, rep.Sphericity, rep.Coverage, rep.Quality)
	return rep, nil
}

func (c *Calibrator) qualityLabel(sphericity, coverage float64) string {
	switch {
	case sphericity > c.cfg.QualityExcellent && coverage > c.cfg.QualityGood:
		return "good"
	case sphericity > c.cfg.QualityGood && coverage > 0.5:
		return "acceptable"
	default:
		return "poor"
	}
}

func sphericity(min, max imu.Vec3) float64 {
	rx := max.X - min.X
	ry := max.Y - min.Y
	rz := max.Z - min.Z
	lo := math.Min(rx, math.Min(ry, rz))
	hi := math.Max(rx, math.Max(ry, rz))
	if hi <= 0 {
		return 0
	}
	return lo / hi
}

// octantCoverage partitions samples by the sign of each axis relative
// to the estimated offset and counts occupied octants.
func octantCoverage(samples []imu.Vec3, offset imu.Vec3) float64 {
	var seen [8]bool
	for _, v := range samples {
		idx := 0
		if v.X-offset.X > 0 {
			idx |= 1
		}
		if v.Y-offset.Y > 0 {
			idx |= 2
		}
		if v.Z-offset.Z > 0 {
			idx |= 4
		}
		seen[idx] = true
	}
	n := 0
	for _, s := range seen {
		if s {
			n++
		}
	}
	return float64(n) / 8
}

// Package config loads runtime tuning overrides. Values are optional
// pointers so a partial JSON file overrides only what it names; every
// omitted field keeps its compiled-in default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/handwave-io/fieldtrack/internal/pipeline"
)

// TuningConfig is the root JSON tuning document. The schema matches the
// /api/params endpoint so the same file works for startup configuration
// and runtime updates.
type TuningConfig struct {
	// Orientation fusion
	SampleFreq *float64 `json:"sample_freq,omitempty"`
	Beta       *float64 `json:"beta,omitempty"`
	MagTrust   *float64 `json:"mag_trust,omitempty"`

	// Residual smoothing
	ProcessNoise      *float64 `json:"process_noise,omitempty"`
	MeasurementNoise  *float64 `json:"measurement_noise,omitempty"`
	InitialCovariance *float64 `json:"initial_covariance,omitempty"`

	// Particle filter
	NumParticles      *int     `json:"num_particles,omitempty"`
	PositionNoise     *float64 `json:"position_noise,omitempty"`
	VelocityNoise     *float64 `json:"velocity_noise,omitempty"`
	ResampleThreshold *float64 `json:"resample_threshold,omitempty"`
	LikelihoodSigma   *float64 `json:"likelihood_sigma,omitempty"`
	MagnetMoment      *float64 `json:"magnet_moment,omitempty"`

	// Calibration stage requirements and thresholds
	HardIronMinSamples   *int     `json:"hard_iron_min_samples,omitempty"`
	SoftIronMinSamples   *int     `json:"soft_iron_min_samples,omitempty"`
	EarthFieldMinSamples *int     `json:"earth_field_min_samples,omitempty"`
	EarthFieldWindow     *int     `json:"earth_field_window,omitempty"`
	QualityExcellent     *float64 `json:"quality_excellent,omitempty"`
	QualityGood          *float64 `json:"quality_good,omitempty"`

	// Pipeline switches
	GyroDegrees    *bool `json:"gyro_degrees,omitempty"`
	SmoothResidual *bool `json:"smooth_residual,omitempty"`
}

// Load reads and validates a tuning file. Fields omitted from the JSON
// stay nil, so partial configs are safe.
func Load(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read tuning file: %w", err)
	}

	var cfg TuningConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse tuning JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	return &cfg, nil
}

// Validate checks that any set fields are within operating ranges.
func (c *TuningConfig) Validate() error {
	if c.MagTrust != nil && (*c.MagTrust < 0 || *c.MagTrust > 1) {
		return fmt.Errorf("mag_trust must be in [0,1], got %f", *c.MagTrust)
	}
	if c.Beta != nil && *c.Beta <= 0 {
		return fmt.Errorf("beta must be positive, got %f", *c.Beta)
	}
	if c.SampleFreq != nil && *c.SampleFreq <= 0 {
		return fmt.Errorf("sample_freq must be positive, got %f", *c.SampleFreq)
	}
	if c.NumParticles != nil && *c.NumParticles < 1 {
		return fmt.Errorf("num_particles must be >= 1, got %d", *c.NumParticles)
	}
	if c.ResampleThreshold != nil && (*c.ResampleThreshold <= 0 || *c.ResampleThreshold > 1) {
		return fmt.Errorf("resample_threshold must be in (0,1], got %f", *c.ResampleThreshold)
	}
	if c.LikelihoodSigma != nil && *c.LikelihoodSigma <= 0 {
		return fmt.Errorf("likelihood_sigma must be positive, got %f", *c.LikelihoodSigma)
	}
	for name, v := range map[string]*int{
		"hard_iron_min_samples":   c.HardIronMinSamples,
		"soft_iron_min_samples":   c.SoftIronMinSamples,
		"earth_field_min_samples": c.EarthFieldMinSamples,
		"earth_field_window":      c.EarthFieldWindow,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be >= 1, got %d", name, *v)
		}
	}
	return nil
}

// Apply overlays the set fields onto a pipeline config and returns the
// result.
func (c *TuningConfig) Apply(base pipeline.Config) pipeline.Config {
	out := base

	if c.SampleFreq != nil {
		out.AHRS.SampleFreq = *c.SampleFreq
	}
	if c.Beta != nil {
		out.AHRS.Beta = *c.Beta
	}
	if c.MagTrust != nil {
		out.AHRS.MagTrust = *c.MagTrust
	}

	if c.ProcessNoise != nil {
		out.Kalman.ProcessNoise = *c.ProcessNoise
	}
	if c.MeasurementNoise != nil {
		out.Kalman.MeasurementNoise = *c.MeasurementNoise
	}
	if c.InitialCovariance != nil {
		out.Kalman.InitialCovariance = *c.InitialCovariance
	}

	if c.NumParticles != nil {
		out.Particle.NumParticles = *c.NumParticles
	}
	if c.PositionNoise != nil {
		out.Particle.PositionNoise = *c.PositionNoise
	}
	if c.VelocityNoise != nil {
		out.Particle.VelocityNoise = *c.VelocityNoise
	}
	if c.ResampleThreshold != nil {
		out.Particle.ResampleThreshold = *c.ResampleThreshold
	}
	if c.LikelihoodSigma != nil {
		out.LikelihoodSigma = *c.LikelihoodSigma
	}
	if c.MagnetMoment != nil {
		for i := range out.Moments {
			if out.Moments[i].X != 0 || out.Moments[i].Y != 0 || out.Moments[i].Z != 0 {
				out.Moments[i] = out.Moments[i].Normalized().Scale(*c.MagnetMoment)
			}
		}
	}

	if c.HardIronMinSamples != nil {
		out.Calibration.HardIronMinSamples = *c.HardIronMinSamples
	}
	if c.SoftIronMinSamples != nil {
		out.Calibration.SoftIronMinSamples = *c.SoftIronMinSamples
	}
	if c.EarthFieldMinSamples != nil {
		out.Calibration.EarthFieldMinSamples = *c.EarthFieldMinSamples
	}
	if c.EarthFieldWindow != nil {
		out.Calibration.EarthFieldWindow = *c.EarthFieldWindow
	}
	if c.QualityExcellent != nil {
		out.Calibration.QualityExcellent = *c.QualityExcellent
	}
	if c.QualityGood != nil {
		out.Calibration.QualityGood = *c.QualityGood
	}

	if c.GyroDegrees != nil {
		out.GyroDegrees = *c.GyroDegrees
	}
	if c.SmoothResidual != nil {
		out.SmoothResidual = *c.SmoothResidual
	}

	return out
}

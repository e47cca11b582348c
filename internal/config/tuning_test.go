package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/handwave-io/fieldtrack/internal/pipeline"
)

func writeTuning(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPartialOverlay(t *testing.T) {
	path := writeTuning(t, `{"beta": 0.05, "num_particles": 1000, "smooth_residual": false}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	base := pipeline.DefaultConfig()
	got := cfg.Apply(base)

	if got.AHRS.Beta != 0.05 {
		t.Errorf("beta = %v, want 0.05", got.AHRS.Beta)
	}
	if got.Particle.NumParticles != 1000 {
		t.Errorf("num_particles = %v, want 1000", got.Particle.NumParticles)
	}
	if got.SmoothResidual {
		t.Error("smooth_residual override not applied")
	}

	// Everything the file does not name keeps its default.
	if got.AHRS.SampleFreq != base.AHRS.SampleFreq {
		t.Errorf("sample_freq changed to %v without an override", got.AHRS.SampleFreq)
	}
	if got.Kalman != base.Kalman {
		t.Errorf("kalman config changed without an override: %+v", got.Kalman)
	}
	if got.Calibration != base.Calibration {
		t.Errorf("calibration config changed without an override: %+v", got.Calibration)
	}
}

func TestLoadEmptyIsNoOp(t *testing.T) {
	cfg, err := Load(writeTuning(t, `{}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	base := pipeline.DefaultConfig()
	got := cfg.Apply(base)
	if got.AHRS != base.AHRS || got.Kalman != base.Kalman || got.Particle != base.Particle {
		t.Error("empty tuning file changed the config")
	}
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), ".json") {
		t.Errorf("want extension error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("want read error for missing file")
	}
}

func TestValidateRanges(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"mag_trust above 1", `{"mag_trust": 1.5}`},
		{"negative beta", `{"beta": -0.1}`},
		{"zero sample_freq", `{"sample_freq": 0}`},
		{"zero particles", `{"num_particles": 0}`},
		{"resample threshold above 1", `{"resample_threshold": 1.2}`},
		{"zero likelihood sigma", `{"likelihood_sigma": 0}`},
		{"zero window", `{"earth_field_window": 0}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeTuning(t, tc.json)); err == nil {
				t.Errorf("Load accepted %s", tc.json)
			}
		})
	}
}

func TestApplyMagnetMomentRescales(t *testing.T) {
	m := 0.004
	cfg := &TuningConfig{MagnetMoment: &m}
	base := pipeline.DefaultConfig()
	got := cfg.Apply(base)
	for i, v := range got.Moments {
		if v.Norm() == 0 {
			continue
		}
		if diff := v.Norm() - m; diff > 1e-12 || diff < -1e-12 {
			t.Errorf("finger %d moment magnitude = %v, want %v", i, v.Norm(), m)
		}
	}
}

package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/handwave-io/fieldtrack/internal/imu"
	"github.com/handwave-io/fieldtrack/internal/magcal"
	"github.com/handwave-io/fieldtrack/internal/pipeline"
)

// serveStatus exposes the pipeline snapshot and calibration controls.
// Reads are safe while the stream goroutine processes samples; only the
// driver mutates state internally.
func serveStatus(addr string, driver *pipeline.Driver) {
	log.Printf("status endpoint on %s", addr)
	if err := http.ListenAndServe(addr, newStatusMux(driver)); err != nil {
		log.Printf("status server: %v", err)
	}
}

func newStatusMux(driver *pipeline.Driver) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, driver.Snapshot())
	})

	mux.HandleFunc("GET /api/calibration", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, driver.CalibrationState())
	})

	mux.HandleFunc("POST /api/calibration/hard-iron", func(w http.ResponseWriter, r *http.Request) {
		rep, err := driver.CalibrateHardIron()
		if err != nil {
			writeCalibrationError(w, err)
			return
		}
		writeJSON(w, rep)
	})

	mux.HandleFunc("POST /api/calibration/soft-iron", func(w http.ResponseWriter, r *http.Request) {
		rep, err := driver.CalibrateSoftIron()
		if err != nil {
			writeCalibrationError(w, err)
			return
		}
		writeJSON(w, rep)
	})

	mux.HandleFunc("POST /api/calibration/earth-field", func(w http.ResponseWriter, r *http.Request) {
		rep, err := driver.CalibrateEarthField()
		if err != nil {
			writeCalibrationError(w, err)
			return
		}
		writeJSON(w, rep)
	})

	mux.HandleFunc("POST /api/calibration/reset", func(w http.ResponseWriter, r *http.Request) {
		driver.ResetCalibration()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/tracking/enable", func(w http.ResponseWriter, r *http.Request) {
		var ref imu.HandPose
		if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		driver.EnableTracking(ref)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/tracking/disable", func(w http.ResponseWriter, r *http.Request) {
		driver.DisableTracking()
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// writeCalibrationError maps the insufficient-samples condition to 409
// with a structured body so clients can show collection progress.
func writeCalibrationError(w http.ResponseWriter, err error) {
	var insufficient *magcal.InsufficientSamplesError
	if errors.As(err, &insufficient) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":    "insufficient_samples",
			"stage":    insufficient.Stage,
			"actual":   insufficient.Actual,
			"required": insufficient.Required,
		})
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func decodeCalibration(data []byte) (magcal.State, error) {
	return magcal.UnmarshalState(data)
}

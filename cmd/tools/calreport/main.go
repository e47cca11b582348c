// Command calreport replays a recorded session (CSV file or session
// database), runs the full calibration sequence and writes the
// calibration-quality report files.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/handwave-io/fieldtrack/internal/ahrs"
	"github.com/handwave-io/fieldtrack/internal/imu"
	"github.com/handwave-io/fieldtrack/internal/ingest"
	"github.com/handwave-io/fieldtrack/internal/magcal"
	"github.com/handwave-io/fieldtrack/internal/report"
	"github.com/handwave-io/fieldtrack/internal/sessiondb"
)

func main() {
	input := flag.String("i", "", "recorded CSV stream")
	dbPath := flag.String("db", "", "session database (alternative to -i)")
	sessionID := flag.String("session", "", "session id inside -db")
	outDir := flag.String("out", ".", "output directory for report files")
	flag.Parse()

	samples, err := loadSamples(*input, *dbPath, *sessionID)
	if err != nil {
		log.Fatalf("load samples: %v", err)
	}
	if len(samples) == 0 {
		log.Fatal("no samples to analyse")
	}
	log.Printf("analysing %d samples", len(samples))

	data, state := analyse(samples)

	htmlPath := filepath.Join(*outDir, "calibration-report.html")
	if err := report.WriteHTML(htmlPath, data); err != nil {
		log.Fatalf("write html report: %v", err)
	}
	pngPath := filepath.Join(*outDir, "field-scatter.png")
	if err := report.WriteScatterPNG(pngPath, data.Raw, data.Corrected); err != nil {
		log.Fatalf("write scatter: %v", err)
	}

	stateJSON, err := state.Marshal()
	if err != nil {
		log.Fatalf("encode calibration state: %v", err)
	}
	statePath := filepath.Join(*outDir, "calibration.json")
	if err := os.WriteFile(statePath, stateJSON, 0o644); err != nil {
		log.Fatalf("write calibration state: %v", err)
	}

	log.Printf("wrote %s, %s, %s", htmlPath, pngPath, statePath)
}

func loadSamples(input, dbPath, sessionID string) ([]imu.SensorSample, error) {
	if input != "" {
		f, err := os.Open(input)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ingest.ReadAll(f)
	}
	if dbPath == "" || sessionID == "" {
		log.Fatal("either -i or both -db and -session are required")
	}
	db, err := sessiondb.NewDB(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.Samples(sessionID)
}

// analyse runs orientation fusion and the three calibration stages over
// the recording, then replays it once more through the corrected
// pipeline to collect the report series.
func analyse(samples []imu.SensorSample) (report.Data, magcal.State) {
	est := ahrs.New(ahrs.DefaultConfig())
	cal := magcal.New(magcal.DefaultConfig())

	var data report.Data

	// Pass 1: collect raw samples and orientations, solve the stages
	// as soon as each has enough data.
	orientations := make([]imu.Quaternion, len(samples))
	var lastNanos int64
	for i, s := range samples {
		dt := 1.0 / 50
		if lastNanos > 0 && s.UnixNanos > lastNanos {
			dt = float64(s.UnixNanos-lastNanos) / 1e9
		}
		lastNanos = s.UnixNanos
		orientations[i] = est.Update(s.Accel, s.Gyro, dt, true)
		cal.AddSample(s.Mag)
		data.Raw = append(data.Raw, s.Mag)
	}

	hard, err := cal.CalibrateHardIron()
	if err != nil {
		log.Fatalf("hard iron: %v", err)
	}
	data.HardIron = hard

	if _, err := cal.CalibrateSoftIron(); err != nil {
		log.Fatalf("soft iron: %v", err)
	}

	for i, s := range samples {
		cal.ObserveOriented(s.Mag, orientations[i])
	}
	earth, err := cal.CalibrateEarthField()
	if err != nil {
		log.Fatalf("earth field: %v", err)
	}
	data.EarthField = earth

	// Pass 2: corrected series.
	for i, s := range samples {
		corr := cal.Correct(s.Mag, orientations[i], true)
		data.Corrected = append(data.Corrected, corr.Iron)
		data.ResidualMag = append(data.ResidualMag, corr.Residual.Norm())
		data.Confidence = append(data.Confidence, cal.Confidence())
	}

	return data, cal.State()
}

// Command fieldtrack runs the tracking pipeline against a live serial
// device or a recorded stream, exposes a JSON status endpoint and
// optionally records the stream to a session database.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/handwave-io/fieldtrack/internal/config"
	"github.com/handwave-io/fieldtrack/internal/imu"
	"github.com/handwave-io/fieldtrack/internal/ingest"
	"github.com/handwave-io/fieldtrack/internal/pipeline"
	"github.com/handwave-io/fieldtrack/internal/sessiondb"
)

var (
	portName   = flag.String("port", "", "serial port to read samples from (e.g. /dev/ttyUSB0)")
	baudRate   = flag.Int("baud", 115200, "serial baud rate")
	replayPath = flag.String("replay", "", "replay a recorded CSV stream instead of a serial port")
	listen     = flag.String("listen", ":8080", "status HTTP listen address")
	dbPath     = flag.String("db", "", "record the stream to this session database")
	device     = flag.String("device", "wrist-unit", "device label for the recorded session")
	tuningPath = flag.String("config", "", "optional tuning overrides (JSON)")
	calPath    = flag.String("calibration", "", "load a persisted calibration snapshot (JSON)")
)

// recordBatchSize samples are buffered before each database write so
// recording never blocks the per-sample path.
const recordBatchSize = 128

func main() {
	flag.Parse()

	if *portName == "" && *replayPath == "" {
		log.Fatal("one of -port or -replay is required")
	}

	cfg := pipeline.DefaultConfig()
	if *tuningPath != "" {
		tuning, err := config.Load(*tuningPath)
		if err != nil {
			log.Fatalf("load tuning: %v", err)
		}
		cfg = tuning.Apply(cfg)
	}

	driver := pipeline.New(cfg)
	if *calPath != "" {
		if err := loadCalibration(driver, *calPath); err != nil {
			log.Fatalf("load calibration: %v", err)
		}
	}

	var rec *recorder
	if *dbPath != "" {
		db, err := sessiondb.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("open session db: %v", err)
		}
		defer db.Close()
		sessionID, err := db.CreateSession(*device, cfg.AHRS.SampleFreq)
		if err != nil {
			log.Fatalf("create session: %v", err)
		}
		log.Printf("recording session %s", sessionID)
		rec = &recorder{db: db, sessionID: sessionID}
		defer rec.flush()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go serveStatus(*listen, driver)

	var err error
	if *replayPath != "" {
		err = runReplay(ctx, driver, rec, *replayPath)
	} else {
		err = runSerial(ctx, driver, rec, *portName, *baudRate)
	}
	if err != nil && ctx.Err() == nil {
		log.Fatalf("stream ended: %v", err)
	}
	log.Printf("shutting down")
}

func loadCalibration(driver *pipeline.Driver, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	st, err := decodeCalibration(data)
	if err != nil {
		return err
	}
	driver.SetCalibrationState(st)
	return nil
}

func runSerial(ctx context.Context, driver *pipeline.Driver, rec *recorder, portName string, baud int) error {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return fmt.Errorf("open %s: %w", portName, err)
	}
	defer port.Close()
	log.Printf("reading samples from %s @ %d baud", portName, baud)

	scan := bufio.NewScanner(port)
	for scan.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s, err := ingest.ParseSampleLine(scan.Text())
		if err == ingest.ErrSkip {
			continue
		}
		if err != nil {
			log.Printf("bad sample line: %v", err)
			continue
		}
		driver.Process(s)
		rec.record(s)
	}
	return scan.Err()
}

func runReplay(ctx context.Context, driver *pipeline.Driver, rec *recorder, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	samples, err := ingest.ReadAll(f)
	if err != nil {
		return err
	}
	log.Printf("replaying %d samples from %s", len(samples), path)

	for i, s := range samples {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		driver.Process(s)
		rec.record(s)
		// Pace replay at the recorded rate.
		if i+1 < len(samples) {
			gap := time.Duration(samples[i+1].UnixNanos - s.UnixNanos)
			if gap > 0 && gap < time.Second {
				time.Sleep(gap)
			}
		}
	}
	return nil
}

// recorder batches samples into the session database off the hot path.
type recorder struct {
	db        *sessiondb.DB
	sessionID string
	pending   []imu.SensorSample
}

func (r *recorder) record(s imu.SensorSample) {
	if r == nil {
		return
	}
	r.pending = append(r.pending, s)
	if len(r.pending) >= recordBatchSize {
		r.flush()
	}
}

func (r *recorder) flush() {
	if r == nil || len(r.pending) == 0 {
		return
	}
	if err := r.db.RecordSamples(r.sessionID, r.pending); err != nil {
		log.Printf("record batch: %v", err)
	}
	r.pending = r.pending[:0]
}

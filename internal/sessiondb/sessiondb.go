// Package sessiondb persists recorded sample streams and calibration
// snapshots in sqlite. It is a collaborator of the tracking core, not
// part of it: the pipeline never imports this package.
package sessiondb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/handwave-io/fieldtrack/internal/imu"
	"github.com/handwave-io/fieldtrack/internal/magcal"
)

// DB wraps the sqlite handle.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) a session database at path. The
// baseline schema is applied inline; later schema changes ship as
// migrations (see migrate.go).
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			device            TEXT,
			started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			sample_rate_hz    DOUBLE
		);
		CREATE TABLE IF NOT EXISTS samples (
			session_id        TEXT,
			unix_nanos        BIGINT,
			ax DOUBLE, ay DOUBLE, az DOUBLE,
			gx DOUBLE, gy DOUBLE, gz DOUBLE,
			mx DOUBLE, my DOUBLE, mz DOUBLE,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS idx_samples_session
			ON samples(session_id, unix_nanos);
		CREATE TABLE IF NOT EXISTS calibrations (
			session_id        TEXT,
			state_json        TEXT,
			saved_at          TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("apply session schema: %w", err)
	}

	return &DB{db}, nil
}

// Session identifies one recorded stream.
type Session struct {
	ID           string
	Device       string
	StartedAt    time.Time
	SampleRateHz float64
}

// CreateSession registers a new recording and returns its id.
func (db *DB) CreateSession(device string, sampleRateHz float64) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, device, sample_rate_hz) VALUES (?, ?, ?)`,
		id, device, sampleRateHz,
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// Sessions lists recorded sessions, newest first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(
		`SELECT session_id, device, started_at, sample_rate_hz
		 FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Device, &s.StartedAt, &s.SampleRateHz); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordSamples appends a batch of samples to a session in one
// transaction. Batching keeps the per-sample write cost off the
// processing path.
func (db *DB) RecordSamples(sessionID string, samples []imu.SensorSample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin sample batch: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO samples (session_id, unix_nanos, ax, ay, az, gx, gy, gz, mx, my, mz)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.Exec(sessionID, s.UnixNanos,
			s.Accel.X, s.Accel.Y, s.Accel.Z,
			s.Gyro.X, s.Gyro.Y, s.Gyro.Z,
			s.Mag.X, s.Mag.Y, s.Mag.Z); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	return tx.Commit()
}

// Samples loads a session's samples in timestamp order.
func (db *DB) Samples(sessionID string) ([]imu.SensorSample, error) {
	rows, err := db.Query(
		`SELECT unix_nanos, ax, ay, az, gx, gy, gz, mx, my, mz
		 FROM samples WHERE session_id = ? ORDER BY unix_nanos`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}
	defer rows.Close()

	var out []imu.SensorSample
	for rows.Next() {
		var s imu.SensorSample
		if err := rows.Scan(&s.UnixNanos,
			&s.Accel.X, &s.Accel.Y, &s.Accel.Z,
			&s.Gyro.X, &s.Gyro.Y, &s.Gyro.Z,
			&s.Mag.X, &s.Mag.Y, &s.Mag.Z); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveCalibration stores a calibration snapshot for a session. The
// JSON round-trips bit-exact through magcal.State.
func (db *DB) SaveCalibration(sessionID string, state magcal.State) error {
	data, err := state.Marshal()
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO calibrations (session_id, state_json) VALUES (?, ?)`,
		sessionID, string(data))
	if err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	return nil
}

// LatestCalibration returns the most recent snapshot for a session, or
// sql.ErrNoRows when none was saved.
func (db *DB) LatestCalibration(sessionID string) (magcal.State, error) {
	var raw string
	err := db.QueryRow(
		`SELECT state_json FROM calibrations
		 WHERE session_id = ? ORDER BY saved_at DESC, rowid DESC LIMIT 1`, sessionID).Scan(&raw)
	if err != nil {
		return magcal.State{}, err
	}
	return magcal.UnmarshalState([]byte(raw))
}

package sessiondb

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/handwave-io/fieldtrack/internal/imu"
	"github.com/handwave-io/fieldtrack/internal/magcal"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSessionRoundTrip(t *testing.T) {
	db := testDB(t)

	id, err := db.CreateSession("wrist-a3", 50)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id == "" {
		t.Fatal("empty session id")
	}

	sessions, err := db.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if sessions[0].ID != id || sessions[0].Device != "wrist-a3" || sessions[0].SampleRateHz != 50 {
		t.Errorf("session = %+v", sessions[0])
	}
}

func TestRecordAndLoadSamples(t *testing.T) {
	db := testDB(t)
	id, err := db.CreateSession("wrist-a3", 50)
	if err != nil {
		t.Fatal(err)
	}

	want := []imu.SensorSample{
		{
			Accel:     imu.Vec3{X: 0.01, Y: -0.02, Z: 0.99},
			Gyro:      imu.Vec3{X: 1.5, Y: -2.5, Z: 0.1},
			Mag:       imu.Vec3{X: 22.3, Y: -4.1, Z: 41.8},
			UnixNanos: 100,
		},
		{
			Accel:     imu.Vec3{Z: 1},
			Gyro:      imu.Vec3{},
			Mag:       imu.Vec3{X: 20, Z: 45},
			UnixNanos: 120,
		},
	}
	if err := db.RecordSamples(id, want); err != nil {
		t.Fatalf("RecordSamples: %v", err)
	}

	got, err := db.Samples(id)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sample round trip mismatch:\n%s", diff)
	}
}

func TestSamplesOrderedByTimestamp(t *testing.T) {
	db := testDB(t)
	id, err := db.CreateSession("wrist-a3", 50)
	if err != nil {
		t.Fatal(err)
	}

	// Insert out of order; reads come back sorted.
	batch := []imu.SensorSample{
		{UnixNanos: 300}, {UnixNanos: 100}, {UnixNanos: 200},
	}
	if err := db.RecordSamples(id, batch); err != nil {
		t.Fatal(err)
	}
	got, err := db.Samples(id)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(got); i++ {
		if got[i].UnixNanos < got[i-1].UnixNanos {
			t.Fatalf("samples out of order: %d before %d", got[i-1].UnixNanos, got[i].UnixNanos)
		}
	}
}

func TestRecordSamplesEmptyBatch(t *testing.T) {
	db := testDB(t)
	if err := db.RecordSamples("no-such-session", nil); err != nil {
		t.Errorf("empty batch should be a no-op, got %v", err)
	}
}

func TestSamplesIsolatedPerSession(t *testing.T) {
	db := testDB(t)
	a, _ := db.CreateSession("wrist-a3", 50)
	b, _ := db.CreateSession("wrist-b1", 26)
	if err := db.RecordSamples(a, []imu.SensorSample{{UnixNanos: 1}}); err != nil {
		t.Fatal(err)
	}

	got, err := db.Samples(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("session b sees %d samples from session a", len(got))
	}
}

func TestCalibrationRoundTrip(t *testing.T) {
	db := testDB(t)
	id, err := db.CreateSession("wrist-a3", 50)
	if err != nil {
		t.Fatal(err)
	}

	first := magcal.NewState()
	first.HardIronOffset = imu.Vec3{X: 5, Y: -3, Z: 10}
	first.HardIronCalibrated = true
	if err := db.SaveCalibration(id, first); err != nil {
		t.Fatalf("SaveCalibration: %v", err)
	}

	second := first
	second.EarthField = imu.Vec3{X: 20, Z: 45}
	second.EarthFieldMag = 49.24
	second.EarthFieldCalibrated = true
	if err := db.SaveCalibration(id, second); err != nil {
		t.Fatalf("SaveCalibration: %v", err)
	}

	got, err := db.LatestCalibration(id)
	if err != nil {
		t.Fatalf("LatestCalibration: %v", err)
	}
	if diff := cmp.Diff(second, got); diff != "" {
		t.Errorf("latest calibration mismatch:\n%s", diff)
	}
}

func TestLatestCalibrationNoRows(t *testing.T) {
	db := testDB(t)
	id, err := db.CreateSession("wrist-a3", 50)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.LatestCalibration(id); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("want sql.ErrNoRows, got %v", err)
	}
}

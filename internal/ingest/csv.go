// Package ingest parses and formats the CSV sample framing used by the
// serial transport and recording files: ten comma-separated fields,
// ax,ay,az,gx,gy,gz,mx,my,mz,unix_nanos.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/handwave-io/fieldtrack/internal/imu"
)

// ParseSampleLine decodes one CSV-framed sample. Blank lines and lines
// starting with '#' are reported as ErrSkip so stream readers can pass
// over headers and comments.
func ParseSampleLine(line string) (imu.SensorSample, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return imu.SensorSample{}, ErrSkip
	}

	parts := strings.Split(line, ",")
	if len(parts) != 10 {
		return imu.SensorSample{}, fmt.Errorf("expected 10 fields, got %d", len(parts))
	}

	var vals [9]float64
	for i := 0; i < 9; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return imu.SensorSample{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	nanos, err := strconv.ParseInt(strings.TrimSpace(parts[9]), 10, 64)
	if err != nil {
		return imu.SensorSample{}, fmt.Errorf("timestamp: %w", err)
	}

	return imu.SensorSample{
		Accel:     imu.Vec3{X: vals[0], Y: vals[1], Z: vals[2]},
		Gyro:      imu.Vec3{X: vals[3], Y: vals[4], Z: vals[5]},
		Mag:       imu.Vec3{X: vals[6], Y: vals[7], Z: vals[8]},
		UnixNanos: nanos,
	}, nil
}

// ErrSkip marks a line that carries no sample (blank or comment).
var ErrSkip = fmt.Errorf("no sample on line")

// FormatSampleLine encodes a sample in the wire framing.
func FormatSampleLine(s imu.SensorSample) string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.4f,%.4f,%.4f,%d",
		s.Accel.X, s.Accel.Y, s.Accel.Z,
		s.Gyro.X, s.Gyro.Y, s.Gyro.Z,
		s.Mag.X, s.Mag.Y, s.Mag.Z,
		s.UnixNanos)
}

// ReadAll decodes every sample from r, skipping blank and comment
// lines. A malformed line aborts with its line number.
func ReadAll(r io.Reader) ([]imu.SensorSample, error) {
	var out []imu.SensorSample
	scan := bufio.NewScanner(r)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		s, err := ParseSampleLine(scan.Text())
		if err == ErrSkip {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, s)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	return out, nil
}

// Package report renders offline calibration-quality reports from a
// processed sample stream: an HTML page of time-series charts and a PNG
// scatter comparing raw and corrected field readings.
package report

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/handwave-io/fieldtrack/internal/imu"
	"github.com/handwave-io/fieldtrack/internal/magcal"
)

// Data is the material collected for one report run.
type Data struct {
	// Per-sample series, aligned.
	ResidualMag []float64 // |residual| µT
	Confidence  []float64 // calibration confidence [0,1]

	Raw       []imu.Vec3 // raw magnetometer readings
	Corrected []imu.Vec3 // iron-corrected readings

	HardIron   magcal.HardIronReport
	EarthField magcal.EarthFieldReport
}

// WriteHTML renders the time-series report page.
func WriteHTML(path string, d Data) error {
	page := components.NewPage()
	page.PageTitle = "calibration report"

	residual := charts.NewLine()
	residual.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Residual field magnitude",
			Subtitle: fmt.Sprintf("earth |B|=%.1fµT  hard-iron quality=%s", d.EarthField.Magnitude, d.HardIron.Quality),
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "µT"}),
	)
	residual.SetXAxis(sampleAxis(len(d.ResidualMag))).
		AddSeries("|residual|", lineData(d.ResidualMag))

	confidence := charts.NewLine()
	confidence.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Calibration confidence"}),
		charts.WithYAxisOpts(opts.YAxis{Max: 1}),
	)
	confidence.SetXAxis(sampleAxis(len(d.Confidence))).
		AddSeries("confidence", lineData(d.Confidence))

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Field readings, X/Y projection",
			Subtitle: fmt.Sprintf("sphericity=%.3f coverage=%.2f", d.HardIron.Sphericity, d.HardIron.Coverage),
		}),
	)
	scatter.AddSeries("raw", scatterData(d.Raw)).
		AddSeries("corrected", scatterData(d.Corrected))

	page.AddCharts(residual, confidence, scatter)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func sampleAxis(n int) []int {
	xs := make([]int, n)
	for i := range xs {
		xs[i] = i
	}
	return xs
}

func lineData(xs []float64) []opts.LineData {
	out := make([]opts.LineData, len(xs))
	for i, x := range xs {
		out[i] = opts.LineData{Value: x}
	}
	return out
}

func scatterData(vs []imu.Vec3) []opts.ScatterData {
	out := make([]opts.ScatterData, len(vs))
	for i, v := range vs {
		out[i] = opts.ScatterData{Value: []float64{v.X, v.Y}}
	}
	return out
}

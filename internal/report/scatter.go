package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/handwave-io/fieldtrack/internal/imu"
)

// WriteScatterPNG renders the raw vs corrected field scatter (X/Y
// projection) as a standalone PNG, for environments where the HTML
// report is inconvenient.
func WriteScatterPNG(path string, raw, corrected []imu.Vec3) error {
	p := plot.New()
	p.Title.Text = "Magnetometer readings: raw vs corrected"
	p.X.Label.Text = "X (µT)"
	p.Y.Label.Text = "Y (µT)"

	rawScatter, err := plotter.NewScatter(xyPoints(raw))
	if err != nil {
		return fmt.Errorf("build raw scatter: %w", err)
	}
	rawScatter.GlyphStyle.Color = color.RGBA{R: 196, A: 255}
	rawScatter.GlyphStyle.Radius = vg.Points(1.5)

	corrScatter, err := plotter.NewScatter(xyPoints(corrected))
	if err != nil {
		return fmt.Errorf("build corrected scatter: %w", err)
	}
	corrScatter.GlyphStyle.Color = color.RGBA{B: 196, A: 255}
	corrScatter.GlyphStyle.Radius = vg.Points(1.5)

	p.Add(rawScatter, corrScatter)
	p.Legend.Add("raw", rawScatter)
	p.Legend.Add("corrected", corrScatter)

	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save scatter png: %w", err)
	}
	return nil
}

func xyPoints(vs []imu.Vec3) plotter.XYs {
	pts := make(plotter.XYs, len(vs))
	for i, v := range vs {
		pts[i].X = v.X
		pts[i].Y = v.Y
	}
	return pts
}

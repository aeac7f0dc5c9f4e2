package report

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/jump.report/internal/jump/result"
)

var palette = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
	{R: 0x8c, G: 0x56, B: 0x4b, A: 0xff},
}

// Plot builds a line plot of counted jump heights, one line per sub-test.
// Excluded jumps leave a gap in the jump numbering.
func Plot(r *result.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title(r)
	p.X.Label.Text = "Jump"
	p.Y.Label.Text = "Height (cm)"
	p.Y.Min = 0

	for i, s := range SeriesOf(r) {
		pts := make(plotter.XYs, 0, s.Counted)
		for k, h := range s.HeightsCM {
			if math.IsNaN(h) {
				continue
			}
			pts = append(pts, plotter.XY{X: float64(k + 1), Y: h})
		}
		if len(pts) == 0 {
			continue
		}

		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, fmt.Errorf("plot %s: %w", s.Name, err)
		}
		c := palette[i%len(palette)]
		line.Color = c
		line.Width = vg.Points(1.5)
		points.Color = c
		points.Shape = draw.CircleGlyph{}
		p.Add(line, points)
		p.Legend.Add(s.Name, line, points)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// WritePNG streams the plot of r as a PNG image.
func WritePNG(w io.Writer, r *result.Result) error {
	p, err := Plot(r)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return fmt.Errorf("encode plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write plot: %w", err)
	}
	return nil
}

// SavePNG writes the plot of r to path. The image format follows the file
// extension, so .svg and .pdf work as well.
func SavePNG(path string, r *result.Result) error {
	p, err := Plot(r)
	if err != nil {
		return err
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}

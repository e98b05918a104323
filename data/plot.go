package data

import (
	"fmt"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	// Image formats for WriterTo.
	_ "gonum.org/v1/plot/vg/vgimg"
	_ "gonum.org/v1/plot/vg/vgsvg"
)

// NewPlot charts the pan angle, the angle error and the target direction of rec against time.
func NewPlot(rec *Record, freq float64) (*plot.Plot, error) {
	times, errs, angles := rec.Columns()
	if len(times) == 0 {
		return nil, errors.New("nothing to plot in an empty record")
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Pan tracking at %gHz", freq)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Angle (deg)"

	panPts := make(plotter.XYs, len(times))
	errPts := make(plotter.XYs, len(times))
	targetPts := make(plotter.XYs, len(times))
	for i, t := range times {
		panPts[i] = plotter.XY{X: t, Y: angles[i]}
		errPts[i] = plotter.XY{X: t, Y: errs[i]}
		targetPts[i] = plotter.XY{X: t, Y: angles[i] + errs[i]}
	}

	for _, series := range []struct {
		name string
		pts  plotter.XYs
		c    color.Color
	}{
		{"target", targetPts, color.RGBA{R: 200, A: 255}},
		{"pan", panPts, color.RGBA{B: 200, A: 255}},
		{"error", errPts, color.RGBA{G: 150, A: 255}},
	} {
		line, err := plotter.NewLine(series.pts)
		if err != nil {
			return nil, err
		}
		line.Color = series.c
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(series.name, line)
	}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p, nil
}

// WritePlot renders the chart of rec in the format named by the extension of path (png, svg,
// pdf...) and stores it on fs.
func WritePlot(fs afero.Fs, path string, rec *Record, freq float64) error {
	p, err := NewPlot(rec, freq)
	if err != nil {
		return err
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "" {
		format = "png"
	}
	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, format)
	if err != nil {
		return errors.Wrapf(err, "couldn't render %q", path)
	}
	f, err := fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "couldn't create %q", path)
	}
	_, err = wt.WriteTo(f)
	return multierr.Combine(err, f.Close())
}

// Package report renders bar charts of the label distribution and of the
// class weight table.
package report

import (
	"image/color"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/medimg/classweight"
	"github.com/YuminosukeSato/medimg/pkg/errors"
)

// Default chart size.
const (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 5 * vg.Inch
)

var (
	positiveColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	negativeColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
)

// ClassCountChart plots the number of positive samples per class. total is
// shown in the title.
func ClassCountChart(counts []classweight.ClassCount, total int) (*plot.Plot, error) {
	if len(counts) == 0 {
		return nil, errors.NewValidationError("counts", "at least one class is required", counts)
	}
	values := make(plotter.Values, len(counts))
	names := make([]string, len(counts))
	for i, c := range counts {
		values[i] = float64(c.Positive)
		names[i] = c.Name
	}

	p := plot.New()
	p.Title.Text = "Positive samples per class (total " + humanize.Comma(int64(total)) + ")"
	p.Y.Label.Text = "positives"

	bars, err := plotter.NewBarChart(values, vg.Points(16))
	if err != nil {
		return nil, errors.Wrap(err, "building bar chart")
	}
	bars.Color = positiveColor
	bars.LineStyle.Width = 0
	p.Add(bars, plotter.NewGrid())
	p.NominalX(names...)
	return p, nil
}

// ClassWeightChart plots the label 0 and label 1 weights of every class side
// by side.
func ClassWeightChart(table *classweight.Table) (*plot.Plot, error) {
	names := table.Names()
	if len(names) == 0 {
		return nil, errors.NewValidationError("table", "at least one class is required", 0)
	}
	neg := make(plotter.Values, len(names))
	pos := make(plotter.Values, len(names))
	for i, name := range names {
		w, _ := table.Get(name)
		neg[i], pos[i] = w.Negative, w.Positive
	}

	p := plot.New()
	p.Title.Text = "Class weights"
	p.Y.Label.Text = "weight"

	width := vg.Points(12)
	negBars, err := plotter.NewBarChart(neg, width)
	if err != nil {
		return nil, errors.Wrap(err, "building bar chart")
	}
	negBars.Color = negativeColor
	negBars.LineStyle.Width = 0
	negBars.Offset = -width / 2

	posBars, err := plotter.NewBarChart(pos, width)
	if err != nil {
		return nil, errors.Wrap(err, "building bar chart")
	}
	posBars.Color = positiveColor
	posBars.LineStyle.Width = 0
	posBars.Offset = width / 2

	p.Add(negBars, posBars, plotter.NewGrid())
	p.Legend.Add("0", negBars)
	p.Legend.Add("1", posBars)
	p.Legend.Top = true
	p.NominalX(names...)
	return p, nil
}

// Save renders p into path on fs. The image format follows the file extension
// (png, svg, pdf, ...).
func Save(fs afero.Fs, path string, p *plot.Plot, width, height vg.Length) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "" {
		return errors.NewValidationError("path", "missing file extension", path)
	}
	wt, err := p.WriterTo(width, height, format)
	if err != nil {
		return errors.Wrapf(err, "rendering %s", path)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "creating %s", dir)
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.WithStack(f.Close())
}

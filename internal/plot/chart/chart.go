// Package chart renders vector charts of sweep results with gonum/plot.
// The output format follows the file extension (pdf, svg, eps, png).
package chart

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"ioam-bench/internal/matrix"
	"ioam-bench/internal/stats"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var (
	DefaultWidth  = 6 * vg.Inch
	DefaultHeight = 3 * vg.Inch

	baselineColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Options control the comparison chart.
type Options struct {
	Title  string
	XLabel string
	YLabel string
	// YMin and YMax fix the y range when YMax > YMin.
	YMin float64
	YMax float64
	// Baseline draws a horizontal reference line when non-zero.
	Baseline float64
	// Labels maps a variant to its legend entry.
	Labels map[string]string
	Width  vg.Length
	Height vg.Length
}

// Label returns the legend entry of a variant: the configured label, or the
// variant with underscores turned into spaces and words title-cased.
func (o Options) Label(variant string) string {
	if l, ok := o.Labels[variant]; ok {
		return l
	}
	words := strings.Split(variant, "_")
	for i, w := range words {
		lower := strings.ToLower(w)
		if w == "" || strings.HasPrefix(lower, "0x") {
			continue
		}
		words[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(words, " ")
}

func (o Options) size() (vg.Length, vg.Length) {
	w, h := o.Width, o.Height
	if w == 0 {
		w = DefaultWidth
	}
	if h == 0 {
		h = DefaultHeight
	}
	return w, h
}

// errorPoints pairs coordinates with symmetric y errors.
type errorPoints struct {
	plotter.XYs
	plotter.YErrors
}

// Series is one line of a chart.
type Series struct {
	Label  string
	Points plotter.XYs
	Errors plotter.YErrors
}

// ComparisonSeries extracts one series per matrix column. The x value of a
// point is its row index so frequencies sit on a nominal axis. Absent cells
// are left out.
func ComparisonSeries(m *matrix.ResultMatrix, opts Options) []Series {
	series := make([]Series, 0, len(m.Columns))
	for j, variant := range m.Columns {
		s := Series{Label: opts.Label(variant)}
		for i := range m.Rows {
			if !m.Present[i][j] {
				continue
			}
			s.Points = append(s.Points, plotter.XY{X: float64(i), Y: m.Values[i][j]})
			w := m.Widths[i][j]
			s.Errors = append(s.Errors, struct{ Low, High float64 }{w, w})
		}
		if len(s.Points) > 0 {
			series = append(series, s)
		}
	}
	return series
}

// Comparison builds the frequency x variant chart.
func Comparison(m *matrix.ResultMatrix, opts Options) (*plot.Plot, error) {
	series := ComparisonSeries(m, opts)
	if len(series) == 0 {
		return nil, fmt.Errorf("matrix has no values to plot")
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = opts.XLabel
	p.Y.Label.Text = opts.YLabel
	p.NominalX(m.Rows...)
	p.Add(plotter.NewGrid())
	p.Legend.Top = false
	p.Legend.Left = false

	for i, s := range series {
		if err := addSeries(p, i, s); err != nil {
			return nil, fmt.Errorf("series %s: %w", s.Label, err)
		}
	}

	if opts.Baseline != 0 {
		base := opts.Baseline
		line, err := plotter.NewLine(plotter.XYs{{X: 0, Y: base}, {X: float64(len(m.Rows) - 1), Y: base}})
		if err != nil {
			return nil, err
		}
		line.Color = baselineColor
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("Baseline", line)
	}

	if opts.YMax > opts.YMin {
		p.Y.Min = opts.YMin
		p.Y.Max = opts.YMax
	}
	return p, nil
}

func addSeries(p *plot.Plot, i int, s Series) error {
	line, points, err := plotter.NewLinePoints(s.Points)
	if err != nil {
		return err
	}
	line.Color = plotutil.Color(i)
	line.Dashes = plotutil.Dashes(i + 1)
	line.Width = vg.Points(1)
	points.Color = plotutil.Color(i)
	points.Shape = plotutil.Shape(i)
	points.Radius = vg.Points(2)
	p.Add(line, points)

	if len(s.Errors) == len(s.Points) {
		bars, err := plotter.NewYErrorBars(errorPoints{XYs: s.Points, YErrors: s.Errors})
		if err != nil {
			return err
		}
		bars.Color = plotutil.Color(i)
		p.Add(bars)
	}

	p.Legend.Add(s.Label, line, points)
	return nil
}

// SaveComparison renders the comparison chart to path.
func SaveComparison(m *matrix.ResultMatrix, opts Options, path string) error {
	p, err := Comparison(m, opts)
	if err != nil {
		return err
	}
	w, h := opts.size()
	return p.Save(w, h, path)
}

// Drop builds the drop rate chart: x is the offered load in Mpps, y the
// mean drop rate, error bars the sample standard deviation.
func Drop(points []stats.DropPoint, opts Options) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("no drop points to plot")
	}

	s := Series{Label: "Drop Rate"}
	for _, dp := range points {
		s.Points = append(s.Points, plotter.XY{X: dp.MPPS, Y: dp.DropRate})
		sd := dp.StdDev
		if math.IsNaN(sd) {
			sd = 0
		}
		s.Errors = append(s.Errors, struct{ Low, High float64 }{sd, sd})
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = opts.XLabel
	p.Y.Label.Text = opts.YLabel
	if p.X.Label.Text == "" {
		p.X.Label.Text = "Mpps"
	}
	if p.Y.Label.Text == "" {
		p.Y.Label.Text = "Drop Rate"
	}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.TextStyle.Font.Size = vg.Points(9)

	if err := addSeries(p, 0, s); err != nil {
		return nil, err
	}
	if opts.YMax > opts.YMin {
		p.Y.Min = opts.YMin
		p.Y.Max = opts.YMax
	}
	return p, nil
}

func SaveDrop(points []stats.DropPoint, opts Options, path string) error {
	p, err := Drop(points, opts)
	if err != nil {
		return err
	}
	w, h := opts.size()
	return p.Save(w, h, path)
}

package stats

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const DefaultConfidence = 0.95

type Interval struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

func (i Interval) Width() float64 {
	return i.High - i.Low
}

// Summary is the point estimate and spread of the primary column of one
// trial file. Variance and StdDev are population figures; the interval is a
// two-sided Student-t interval on the mean with N-1 degrees of freedom.
//
// A single sample has no degrees of freedom: Degenerate is set and the
// interval bounds (and StdErr) are NaN.
type Summary struct {
	N          int      `json:"n"`
	Mean       float64  `json:"mean"`
	Variance   float64  `json:"variance"`
	StdDev     float64  `json:"stddev"`
	StdErr     float64  `json:"stderr"`
	Confidence float64  `json:"confidence"`
	Interval   Interval `json:"interval"`
	Degenerate bool     `json:"degenerate"`
}

// Describe summarizes samples at the given confidence level.
func Describe(samples []float64, confidence float64) (*Summary, error) {
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	if confidence <= 0 || confidence >= 1 {
		return nil, fmt.Errorf("confidence %v outside (0, 1)", confidence)
	}

	n := len(samples)
	mean, variance := stat.PopMeanVariance(samples, nil)
	s := &Summary{
		N:          n,
		Mean:       mean,
		Variance:   variance,
		StdDev:     math.Sqrt(variance),
		Confidence: confidence,
	}

	if n < 2 {
		s.Degenerate = true
		s.StdErr = math.NaN()
		s.Interval = Interval{Low: math.NaN(), High: math.NaN()}
		return s, nil
	}

	s.StdErr = stat.StdErr(stat.StdDev(samples, nil), float64(n))
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	half := t.Quantile(0.5+confidence/2) * s.StdErr
	s.Interval = Interval{Low: mean - half, High: mean + half}
	return s, nil
}

// Summarize parses one trial file and summarizes its primary column.
func Summarize(path string, layout Layout, confidence float64) (*Summary, error) {
	table, err := ReadTableFile(path, layout)
	if err != nil {
		return nil, err
	}
	return summarizeTable(table, layout, confidence, path)
}

func SummarizeReader(r io.Reader, layout Layout, confidence float64) (*Summary, error) {
	table, err := ReadTable(r, layout)
	if err != nil {
		return nil, err
	}
	return summarizeTable(table, layout, confidence, "")
}

func summarizeTable(table *Table, layout Layout, confidence float64, path string) (*Summary, error) {
	s, err := Describe(table.Column(layout.Primary), confidence)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return s, nil
}

// DropPoint is the drop rate observed at one offered load.
type DropPoint struct {
	MPPS     float64 `json:"mpps"`
	N        int     `json:"n"`
	DropRate float64 `json:"drop_rate"`
	// StdDev is the sample standard deviation, NaN for a single run.
	StdDev float64 `json:"stddev"`
}

// SummarizeDrop groups a drop-test file by offered pps and returns the mean
// and sample standard deviation of the drop rate at each load, ordered by
// load and expressed in Mpps.
func SummarizeDrop(r io.Reader, layout Layout) ([]DropPoint, error) {
	table, err := ReadTable(r, layout)
	if err != nil {
		return nil, err
	}

	pps := table.Column("pps")
	drops := table.Column(layout.Primary)
	if pps == nil || drops == nil {
		return nil, &ParseError{Err: fmt.Errorf("layout needs pps and %s columns", layout.Primary)}
	}

	groups := make(map[float64][]float64)
	for i := range pps {
		groups[pps[i]] = append(groups[pps[i]], drops[i])
	}

	loads := make([]float64, 0, len(groups))
	for load := range groups {
		loads = append(loads, load)
	}
	sort.Float64s(loads)

	points := make([]DropPoint, 0, len(loads))
	for _, load := range loads {
		values := groups[load]
		p := DropPoint{
			MPPS:     load / 1e6,
			N:        len(values),
			DropRate: stat.Mean(values, nil),
			StdDev:   math.NaN(),
		}
		if len(values) > 1 {
			p.StdDev = stat.StdDev(values, nil)
		}
		points = append(points, p)
	}
	return points, nil
}

func SummarizeDropFile(path string, layout Layout) ([]DropPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	points, err := SummarizeDrop(f, layout)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return points, nil
}

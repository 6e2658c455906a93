package chart

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"ioam-bench/internal/matrix"
	"ioam-bench/internal/stats"

	"github.com/google/go-cmp/cmp"
)

func testMatrix() *matrix.ResultMatrix {
	return &matrix.ResultMatrix{
		Rows:    []string{"1", "10", "100"},
		Columns: []string{"NO_EXT", "0x80"},
		Values:  [][]float64{{10, 9}, {9.5, 8}, {9, 0}},
		Widths:  [][]float64{{0.1, 0.2}, {0.1, 0.2}, {0.3, 0}},
		Present: [][]bool{{true, true}, {true, true}, {true, false}},
		Sources: [][]string{{"", ""}, {"", ""}, {"", ""}},
	}
}

func TestLabel(t *testing.T) {
	opts := Options{Labels: map[string]string{"FLOW": "Flow monitoring"}}
	tests := map[string]string{
		"FLOW":         "Flow monitoring",
		"NO_EXT":       "No Ext",
		"ENCAP_TUNSRC": "Encap Tunsrc",
		"0x80":         "0x80",
		"inline":       "Inline",
	}
	for in, want := range tests {
		if got := opts.Label(in); got != want {
			t.Errorf("Label(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestComparisonSeriesSkipsAbsentCells(t *testing.T) {
	series := ComparisonSeries(testMatrix(), Options{})
	if len(series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(series))
	}
	if len(series[1].Points) != 2 {
		t.Fatalf("absent cell must be skipped, got %d points", len(series[1].Points))
	}
	var xs []float64
	for _, p := range series[0].Points {
		xs = append(xs, p.X)
	}
	if diff := cmp.Diff([]float64{0, 1, 2}, xs); diff != "" {
		t.Fatalf("nominal x positions mismatch (-want +got):\n%s", diff)
	}
	if series[0].Errors[2].High != 0.3 {
		t.Fatalf("expected width 0.3 as error, got %v", series[0].Errors[2])
	}
}

func TestSaveComparison(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmp.svg")
	opts := Options{Title: "Decap", YLabel: "pps", YMin: 0, YMax: 12, Baseline: 10.7}
	if err := SaveComparison(testMatrix(), opts, path); err != nil {
		t.Fatalf("SaveComparison: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected a non-empty chart file, err=%v", err)
	}
}

func TestComparisonEmptyMatrix(t *testing.T) {
	m := testMatrix()
	m.Present = [][]bool{{false, false}, {false, false}, {false, false}}
	if _, err := Comparison(m, Options{}); err == nil {
		t.Fatalf("expected error for a matrix without values")
	}
}

func TestSaveDrop(t *testing.T) {
	points := []stats.DropPoint{
		{MPPS: 1, N: 3, DropRate: 0.001, StdDev: 0.0005},
		{MPPS: 2, N: 1, DropRate: 0.01, StdDev: math.NaN()},
	}
	path := filepath.Join(t.TempDir(), "drop.png")
	if err := SaveDrop(points, Options{YMin: -0.001, YMax: 0.05}, path); err != nil {
		t.Fatalf("SaveDrop: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("chart not written: %v", err)
	}
	if _, err := Drop(nil, Options{}); err == nil {
		t.Fatalf("expected error without points")
	}
}

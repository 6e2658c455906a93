package comparison

import (
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"ioam-bench/internal/matrix"
	"ioam-bench/internal/plot/database"

	"github.com/sirupsen/logrus"
)

func testMatrix() *matrix.ResultMatrix {
	return &matrix.ResultMatrix{
		Rows:    []string{"10", "100"},
		Columns: []string{"NO_EXT", "FLOW"},
		Values:  [][]float64{{10.5, 9.25}, {10.1, 0}},
		Widths:  [][]float64{{0.2, math.NaN()}, {0.1, 0}},
		Present: [][]bool{{true, true}, {true, false}},
		Sources: [][]string{{"a", "b"}, {"c", ""}},
	}
}

func testGenerator() *ComparisonPlotGenerator {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	g := NewComparisonPlotGenerator(logger)
	g.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return g
}

func TestGenerate_SeriesAndErrorBars(t *testing.T) {
	g := testGenerator()
	plot, wrapper, err := g.Generate(testMatrix(), nil, PlotOptions{
		Name:   "decap",
		XLabel: "IOAM packets (%)",
		YLabel: "pps received ($10^5$)",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, want := range []string{
		"(0,10.500000) +- (0,0.200000)",
		"(1,10.100000) +- (0,0.100000)",
		"(0,9.250000) +- (0,0.000000)",
		`\addlegendentry{ NO\_EXT }`,
		"xticklabels={ 10,100 }",
		"error bars/.cd,y dir=both,y explicit",
		`xlabel={ IOAM packets (\%) }`,
		"% Missing cells: 1",
	} {
		if !strings.Contains(plot, want) {
			t.Errorf("plot lacks %q", want)
		}
	}
	if strings.Contains(plot, "(1,0.000000)") {
		t.Errorf("absent cell was plotted")
	}
	if strings.Contains(plot, "Baseline") {
		t.Errorf("baseline drawn without being configured")
	}
	if !strings.Contains(wrapper, `\input{./sweep-decap.tikz }`) {
		t.Errorf("wrapper does not include the picture:\n%s", wrapper)
	}
}

func TestGenerate_BaselineRangeAndMetadata(t *testing.T) {
	g := testGenerator()
	meta := &database.MetaData{SweepID: "abc", SweepName: "encap_mode", Kind: "mode", Hostname: "dut1", Iterations: 10}
	plot, _, err := g.Generate(testMatrix(), meta, PlotOptions{
		Name:     "encap",
		YMin:     0,
		YMax:     12,
		Baseline: 10.7,
		Label:    func(v string) string { return strings.ToLower(v) },
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, want := range []string{
		"ymin=0.00, ymax=12.00",
		"{ 10.7 }",
		`\addlegendentry{ Baseline }`,
		`\addlegendentry{ no\_ext }`,
		"% Sweep ID: abc",
		"% Sweep: encap_mode",
		"% Hostname: dut1",
		"% Iterations: 10 per point",
	} {
		if !strings.Contains(plot, want) {
			t.Errorf("plot lacks %q", want)
		}
	}
}

func TestGenerate_EmptyMatrix(t *testing.T) {
	g := testGenerator()
	m := testMatrix()
	m.Present = [][]bool{{false, false}, {false, false}}
	if _, _, err := g.Generate(m, nil, PlotOptions{Name: "x"}); err == nil {
		t.Fatalf("expected error for a matrix without values")
	}
}

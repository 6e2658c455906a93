package comparison

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"
	"time"

	"ioam-bench/internal/matrix"
	"ioam-bench/internal/plot/comparison/mappings"
	plotTemplate "ioam-bench/internal/plot/comparison/templates/plot"
	wrapperTemplate "ioam-bench/internal/plot/comparison/templates/wrapper"
	"ioam-bench/internal/plot/database"

	"github.com/sirupsen/logrus"
)

type ComparisonPlotGenerator struct {
	logger *logrus.Logger
	now    func() time.Time
}

func NewComparisonPlotGenerator(logger *logrus.Logger) *ComparisonPlotGenerator {
	return &ComparisonPlotGenerator{
		logger: logger,
		now:    time.Now,
	}
}

type PlotOptions struct {
	// Name identifies the figure in file names and labels.
	Name   string
	Title  string
	XLabel string
	YLabel string
	// YMin and YMax fix the y range when YMax > YMin.
	YMin     float64
	YMax     float64
	Baseline float64
	// Label maps a variant to its legend entry.
	Label func(variant string) string
}

// Generate renders the matrix as a pgfplots figure with one series per
// variant and returns the picture and its figure wrapper. meta is optional.
func (g *ComparisonPlotGenerator) Generate(m *matrix.ResultMatrix, meta *database.MetaData, opts PlotOptions) (string, string, error) {
	g.logger.WithFields(logrus.Fields{
		"name":     opts.Name,
		"rows":     len(m.Rows),
		"variants": len(m.Columns),
	}).Info("Generating comparison plot")

	plotData, err := g.preparePlotData(m, meta, opts)
	if err != nil {
		return "", "", fmt.Errorf("failed to prepare plot data: %w", err)
	}

	plotOutput, err := g.renderPlot(plotData)
	if err != nil {
		return "", "", fmt.Errorf("failed to render plot: %w", err)
	}

	wrapperOutput, err := g.renderWrapper(g.prepareWrapperData(opts))
	if err != nil {
		return "", "", fmt.Errorf("failed to render wrapper: %w", err)
	}

	g.logger.Info("Comparison plot generated successfully")
	return plotOutput, wrapperOutput, nil
}

func (g *ComparisonPlotGenerator) preparePlotData(
	m *matrix.ResultMatrix,
	meta *database.MetaData,
	opts PlotOptions,
) (*plotTemplate.PlotData, error) {
	if len(m.Rows) == 0 || len(m.Columns) == 0 {
		return nil, fmt.Errorf("matrix is empty")
	}

	label := opts.Label
	if label == nil {
		label = func(v string) string { return v }
	}

	var plotSeries []plotTemplate.PlotSeries
	for j, variant := range m.Columns {
		series := plotTemplate.PlotSeries{
			Column:      j,
			Variant:     variant,
			Style:       mappings.GetVariantStyle(j).WithErrorBars(),
			LegendEntry: texEscape(label(variant)),
			Coordinates: []string{},
		}
		for i := range m.Rows {
			if !m.Present[i][j] {
				continue
			}
			width := m.Widths[i][j]
			if math.IsNaN(width) {
				width = 0
			}
			series.Coordinates = append(series.Coordinates,
				fmt.Sprintf("(%d,%.6f) +- (0,%.6f)", i, m.Values[i][j], width))
		}
		if len(series.Coordinates) > 0 {
			plotSeries = append(plotSeries, series)
		}
	}
	if len(plotSeries) == 0 {
		return nil, fmt.Errorf("matrix has no values to plot")
	}

	ticks := make([]string, len(m.Rows))
	tickLabels := make([]string, len(m.Rows))
	for i, row := range m.Rows {
		ticks[i] = strconv.Itoa(i)
		tickLabels[i] = texEscape(row)
	}

	data := &plotTemplate.PlotData{
		GeneratedDate: g.now().Format("2006-01-02 15:04:05"),
		SweepName:     opts.Name,
		Missing:       len(m.Missing()),
		Title:         texEscape(opts.Title),
		XLabel:        texEscape(opts.XLabel),
		YLabel:        opts.YLabel,
		XTicks:        strings.Join(ticks, ","),
		XTickLabels:   strings.Join(tickLabels, ","),
		XMin:          "-0.25",
		XMax:          fmt.Sprintf("%.2f", float64(len(m.Rows)-1)+0.25),
		BaselineStyle: mappings.BaselineStyle.ToTikzOptions(),
		Plots:         plotSeries,
	}
	if opts.YMax > opts.YMin {
		data.YMin = fmt.Sprintf("%.2f", opts.YMin)
		data.YMax = fmt.Sprintf("%.2f", opts.YMax)
	}
	if opts.Baseline != 0 {
		data.Baseline = strconv.FormatFloat(opts.Baseline, 'f', -1, 64)
	}
	if meta != nil {
		data.SweepID = meta.SweepID
		if meta.SweepName != "" {
			data.SweepName = meta.SweepName
		}
		data.Kind = meta.Kind
		data.Iterations = int(meta.Iterations)
		data.SweepStarted = meta.SweepStarted
		data.SweepFinished = meta.SweepFinished
		data.Hostname = meta.Hostname
		data.CPUVendor = meta.CPUVendor
		data.CPUModel = meta.CPUModel
		data.KernelVersion = meta.KernelVersion
		data.OSInfo = meta.OSInfo
		data.IOAMNodeID = meta.IOAMNodeID
	}
	return data, nil
}

// texEscape quotes the characters that commonly appear in variant names
// and labels and are special to TeX.
func texEscape(s string) string {
	r := strings.NewReplacer(`_`, `\_`, `%`, `\%`, `&`, `\&`, `#`, `\#`)
	return r.Replace(s)
}

func (g *ComparisonPlotGenerator) prepareWrapperData(opts PlotOptions) *wrapperTemplate.WrapperData {
	caption := opts.Title
	if caption == "" {
		caption = fmt.Sprintf("%s per injection frequency", opts.YLabel)
	}
	return &wrapperTemplate.WrapperData{
		GeneratedDate: g.now().Format("2006-01-02 15:04:05"),
		SweepName:     opts.Name,
		PlotFileName:  PlotFileName(opts.Name),
		ShortCaption:  texEscape(opts.Name),
		Caption:       texEscape(caption),
		Label:         opts.Name,
	}
}

// PlotFileName is the name the picture is saved under so the wrapper can
// \input it.
func PlotFileName(name string) string {
	return fmt.Sprintf("sweep-%s.tikz", name)
}

func (g *ComparisonPlotGenerator) renderPlot(data *plotTemplate.PlotData) (string, error) {
	tmpl, err := template.New("plot").Parse(plotTemplate.PlotTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse plot template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute plot template: %w", err)
	}

	return buf.String(), nil
}

func (g *ComparisonPlotGenerator) renderWrapper(data *wrapperTemplate.WrapperData) (string, error) {
	tmpl, err := template.New("wrapper").Parse(wrapperTemplate.WrapperTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse wrapper template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute wrapper template: %w", err)
	}

	return buf.String(), nil
}

package plot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ioam-bench/internal/config"
	"ioam-bench/internal/extract"
	"ioam-bench/internal/logging"
	"ioam-bench/internal/matrix"
	"ioam-bench/internal/plot/chart"
	"ioam-bench/internal/plot/comparison"
	"ioam-bench/internal/plot/database"
	"ioam-bench/internal/stats"

	"github.com/sirupsen/logrus"
)

type PlotManager struct {
	report              config.ReportConfig
	name                string
	dbClient            *database.PlotDBClient
	comparisonGenerator *comparison.ComparisonPlotGenerator
	logger              *logrus.Logger
}

func NewPlotManager(name string, report config.ReportConfig) *PlotManager {
	logger := logging.GetLogger()
	return &PlotManager{
		report:              report,
		name:                name,
		comparisonGenerator: comparison.NewComparisonPlotGenerator(logger),
		logger:              logger,
	}
}

// ConnectDatabase enables loading sweeps from InfluxDB. Connection
// settings come from the INFLUXDB_* environment.
func (pm *PlotManager) ConnectDatabase() error {
	dbClient, err := database.NewPlotDBClient(pm.logger)
	if err != nil {
		return fmt.Errorf("failed to create database client: %w", err)
	}
	pm.dbClient = dbClient
	return nil
}

func (pm *PlotManager) Close() {
	if pm.dbClient != nil {
		pm.dbClient.Close()
	}
}

func (pm *PlotManager) chartOptions() chart.Options {
	return chart.Options{
		Title:    pm.report.Title,
		XLabel:   pm.report.XLabel,
		YLabel:   pm.report.YLabel,
		YMin:     pm.report.YMin,
		YMax:     pm.report.YMax,
		Baseline: pm.report.Baseline,
		Labels:   pm.report.Labels,
	}
}

// LoadSweep reads the summaries and metadata of a stored sweep. Missing
// metadata is not an error.
func (pm *PlotManager) LoadSweep(ctx context.Context, sweepID string) (extract.Result, *database.MetaData, error) {
	if pm.dbClient == nil {
		return nil, nil, fmt.Errorf("no database connection")
	}
	result, err := pm.dbClient.QuerySummaries(ctx, sweepID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	meta, err := pm.dbClient.QueryMetaData(ctx, sweepID)
	if err != nil {
		pm.logger.WithError(err).Warn("Failed to query metadata, continuing without it")
		meta = nil
	}
	return result, meta, nil
}

func (pm *PlotManager) GenerateComparisonPlot(m *matrix.ResultMatrix, meta *database.MetaData) (plotTikz, wrapperTex string, err error) {
	opts := pm.chartOptions()
	return pm.comparisonGenerator.Generate(m, meta, comparison.PlotOptions{
		Name:     pm.name,
		Title:    opts.Title,
		XLabel:   opts.XLabel,
		YLabel:   opts.YLabel,
		YMin:     opts.YMin,
		YMax:     opts.YMax,
		Baseline: opts.Baseline,
		Label:    opts.Label,
	})
}

// Render writes every figure the report configuration asks for and returns
// the paths written. The TikZ wrapper is placed next to the picture.
func (pm *PlotManager) Render(m *matrix.ResultMatrix, meta *database.MetaData) ([]string, error) {
	var written []string

	if pm.report.TikZ != "" {
		plotTikz, wrapperTex, err := pm.GenerateComparisonPlot(m, meta)
		if err != nil {
			return written, err
		}
		if err := os.MkdirAll(pm.report.TikZ, 0o755); err != nil {
			return written, fmt.Errorf("failed to create tikz directory: %w", err)
		}
		plotPath := filepath.Join(pm.report.TikZ, comparison.PlotFileName(pm.name))
		wrapperPath := filepath.Join(pm.report.TikZ, fmt.Sprintf("sweep-%s.tex", pm.name))
		if err := os.WriteFile(plotPath, []byte(plotTikz), 0o644); err != nil {
			return written, fmt.Errorf("failed to write plot: %w", err)
		}
		if err := os.WriteFile(wrapperPath, []byte(wrapperTex), 0o644); err != nil {
			return written, fmt.Errorf("failed to write wrapper: %w", err)
		}
		written = append(written, plotPath, wrapperPath)
	}

	if pm.report.Plot != "" {
		if err := ensureDir(pm.report.Plot); err != nil {
			return written, err
		}
		if err := chart.SaveComparison(m, pm.chartOptions(), pm.report.Plot); err != nil {
			return written, fmt.Errorf("failed to save chart: %w", err)
		}
		written = append(written, pm.report.Plot)
	}

	pm.logger.WithFields(logrus.Fields{
		"name":  pm.name,
		"files": len(written),
	}).Info("Report figures written")
	return written, nil
}

// RenderDrop saves the drop rate chart to path.
func (pm *PlotManager) RenderDrop(points []stats.DropPoint, path string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	opts := pm.chartOptions()
	if pm.report.YMax <= pm.report.YMin {
		opts.YMin, opts.YMax = -0.001, 0.05
	}
	if err := chart.SaveDrop(points, opts, path); err != nil {
		return fmt.Errorf("failed to save drop chart: %w", err)
	}
	pm.logger.WithField("path", path).Info("Drop chart written")
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

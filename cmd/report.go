package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"ioam-bench/internal/config"
	"ioam-bench/internal/database"
	"ioam-bench/internal/extract"
	"ioam-bench/internal/logging"
	"ioam-bench/internal/matrix"
	"ioam-bench/internal/plot"
	plotdb "ioam-bench/internal/plot/database"
	"ioam-bench/internal/stats"
	"ioam-bench/internal/sweep"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type reportOptions struct {
	configFile string
	dir        string
	fromSweep  string
	export     bool
	exportID   string
	quiet      bool
}

func newReportCmd() *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build the result matrix, checkpoints and plots of a sweep",
		Long:  "Extract every trial file of a sweep directory (or load a stored sweep from InfluxDB), arrange the means by frequency and variant and write the configured CSV checkpoints and figures",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts.configFile)
			if err != nil {
				return err
			}
			applyLogLevel(cmd, cfg)
			ctx, cancel := signalContext()
			defer cancel()
			return runReport(ctx, cfg, opts, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "Path to sweep configuration file")
	cmd.Flags().StringVarP(&opts.dir, "dir", "d", "", "Trial file directory (overrides extract.dir)")
	cmd.Flags().StringVar(&opts.fromSweep, "from-db", "", "Load the summaries of this sweep ID from InfluxDB instead of extracting files")
	cmd.Flags().BoolVar(&opts.export, "export", false, "Write the extracted summaries to InfluxDB")
	cmd.Flags().StringVar(&opts.exportID, "export-id", "", "Sweep ID to tag exported summaries with (default: new UUID)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print the matrix")
	cmd.MarkFlagRequired("config")
	return cmd
}

func runReport(ctx context.Context, cfg *config.SweepConfig, opts reportOptions, out io.Writer) error {
	logger := logging.GetLogger()

	pm := plot.NewPlotManager(cfg.Sweep.Name, cfg.Report)
	defer pm.Close()

	var (
		result extract.Result
		meta   *plotdb.MetaData
		err    error
	)
	if opts.fromSweep != "" {
		if err := pm.ConnectDatabase(); err != nil {
			return &sweep.PreconditionError{Reason: "connect to InfluxDB", Err: err}
		}
		result, meta, err = pm.LoadSweep(ctx, opts.fromSweep)
		if err != nil {
			return err
		}
	} else {
		extractor, err := extract.NewFromConfig(cfg)
		if err != nil {
			return &sweep.PreconditionError{Reason: "build extractor", Err: err}
		}
		dir := opts.dir
		if dir == "" {
			dir = cfg.Extract.Dir
		}
		result, err = extractor.Extract(ctx, dir)
		if err != nil {
			return err
		}
	}

	m, err := buildMatrix(cfg, result)
	if err != nil {
		return err
	}
	if missing := m.Missing(); len(missing) > 0 {
		logger.WithField("cells", len(missing)).Warn("Result matrix is incomplete")
	}

	if err := m.Save(cfg.Report.CSV, cfg.Report.WidthsCSV); err != nil {
		return &sweep.PersistenceError{File: cfg.Report.CSV, Err: err}
	}

	written, err := pm.Render(m, meta)
	if err != nil {
		return &sweep.PersistenceError{File: "figures", Err: err}
	}

	if opts.export && opts.fromSweep == "" {
		if err := exportSummaries(ctx, cfg, opts.exportID, result); err != nil {
			return err
		}
	}

	if !opts.quiet {
		renderMatrix(out, m)
	}
	logger.WithFields(logrus.Fields{
		"sweep":   cfg.Sweep.Name,
		"entries": len(result),
		"figures": len(written),
	}).Info("Report completed")
	return nil
}

func buildMatrix(cfg *config.SweepConfig, result extract.Result) (*matrix.ResultMatrix, error) {
	frequencies, err := cfg.FrequencyAxis()
	if err != nil {
		return nil, &sweep.PreconditionError{Reason: "frequency axis", Err: err}
	}
	variants, err := cfg.VariantAxis()
	if err != nil {
		return nil, &sweep.PreconditionError{Reason: "variant axis", Err: err}
	}
	return matrix.Build(result, frequencies, variants)
}

func exportSummaries(ctx context.Context, cfg *config.SweepConfig, sweepID string, result extract.Result) error {
	if !cfg.Data.DB.Enabled() {
		return &sweep.PreconditionError{Reason: "export requested but data.db.host is not set"}
	}
	if sweepID == "" {
		sweepID = uuid.NewString()
	}
	dbClient, err := database.NewInfluxDBClient(cfg.Data.DB)
	if err != nil {
		return &sweep.PreconditionError{Reason: "connect to InfluxDB", Err: err}
	}
	defer dbClient.Close()

	if err := dbClient.WriteSummaries(ctx, sweepID, cfg.Sweep.Name, result); err != nil {
		return &sweep.PersistenceError{File: "influxdb", Err: err}
	}
	return nil
}

func formatFloat(v float64, prec int) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// renderMatrix prints the means with their spread, one row per frequency.
func renderMatrix(out io.Writer, m *matrix.ResultMatrix) {
	table := tablewriter.NewWriter(out)
	table.SetHeader(append([]string{"Frequency (%)"}, m.Columns...))
	table.SetAutoFormatHeaders(false)

	for i, row := range m.Rows {
		line := []string{row}
		for j := range m.Columns {
			if !m.Present[i][j] {
				line = append(line, "")
				continue
			}
			line = append(line, fmt.Sprintf("%s ± %s", formatFloat(m.Values[i][j], 3), formatFloat(m.Widths[i][j], 3)))
		}
		table.Append(line)
	}
	table.Render()
}

func newSummarizeCmd() *cobra.Command {
	var confidence, divisor float64

	cmd := &cobra.Command{
		Use:   "summarize FILE...",
		Short: "Summarize trial files",
		Long:  "Print the mean, spread and confidence interval of the pps column of each trial file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := stats.DefaultLayout()
			layout.Divisor = divisor
			return summarizeFiles(os.Stdout, args, layout, confidence)
		},
	}

	cmd.Flags().Float64Var(&confidence, "confidence", stats.DefaultConfidence, "Confidence level of the interval")
	cmd.Flags().Float64Var(&divisor, "divisor", 1e5, "Divisor applied to the pps column")
	return cmd
}

func summarizeFiles(out io.Writer, files []string, layout stats.Layout, confidence float64) error {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"File", "N", "Mean", "StdDev", "CI low", "CI high"})
	table.SetAutoFormatHeaders(false)

	for _, file := range files {
		s, err := stats.Summarize(file, layout, confidence)
		if err != nil {
			return err
		}
		table.Append([]string{
			filepath.Base(file),
			strconv.Itoa(s.N),
			formatFloat(s.Mean, 4),
			formatFloat(s.StdDev, 4),
			formatFloat(s.Interval.Low, 4),
			formatFloat(s.Interval.High, 4),
		})
	}
	table.Render()
	return nil
}

func newDropCmd() *cobra.Command {
	var chartPath, title string

	cmd := &cobra.Command{
		Use:   "drop FILE",
		Short: "Summarize a drop rate test",
		Long:  "Group a drop test file by offered load and print (and optionally plot) the mean drop rate per load",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrop(os.Stdout, args[0], chartPath, title)
		},
	}

	cmd.Flags().StringVarP(&chartPath, "output", "o", "", "Write the drop chart to this file (pdf, svg, png)")
	cmd.Flags().StringVar(&title, "title", "", "Chart title")
	return cmd
}

func runDrop(out io.Writer, file, chartPath, title string) error {
	points, err := stats.SummarizeDropFile(file, stats.DropLayout())
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Mpps", "Runs", "Drop rate", "StdDev"})
	table.SetAutoFormatHeaders(false)
	for _, p := range points {
		table.Append([]string{
			formatFloat(p.MPPS, 3),
			strconv.Itoa(p.N),
			formatFloat(p.DropRate, 5),
			formatFloat(p.StdDev, 5),
		})
	}
	table.Render()

	if chartPath == "" {
		return nil
	}
	pm := plot.NewPlotManager("drop", config.ReportConfig{Title: title})
	if err := pm.RenderDrop(points, chartPath); err != nil {
		return &sweep.PersistenceError{File: chartPath, Err: err}
	}
	return nil
}

package database

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"

	"ioam-bench/internal/axis"
	"ioam-bench/internal/extract"
	"ioam-bench/internal/stats"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"
)

type PlotDBClient struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	bucket   string
	org      string
	logger   *logrus.Logger
}

type MetaData struct {
	SweepID         string
	SweepName       string
	Description     string
	Kind            string
	PlanChecksum    string
	SweepStarted    string
	SweepFinished   string
	DurationSeconds int64
	TotalPoints     int64
	Iterations      int64
	DriverVersion   string
	Hostname        string
	OSInfo          string
	KernelVersion   string
	CPUVendor       string
	CPUModel        string
	IOAMNodeID      string
	ConfigFile      string
}

func NewPlotDBClient(logger *logrus.Logger) (*PlotDBClient, error) {
	host := os.Getenv("INFLUXDB_HOST")
	token := os.Getenv("INFLUXDB_TOKEN")
	org := os.Getenv("INFLUXDB_ORG")
	bucket := os.Getenv("INFLUXDB_BUCKET")

	if host == "" || token == "" || org == "" || bucket == "" {
		return nil, fmt.Errorf("missing required environment variables for InfluxDB connection")
	}

	client := influxdb2.NewClient(host, token)
	queryAPI := client.QueryAPI(org)

	return &PlotDBClient{
		client:   client,
		queryAPI: queryAPI,
		bucket:   bucket,
		org:      org,
		logger:   logger,
	}, nil
}

func (c *PlotDBClient) Close() {
	c.client.Close()
}

// QuerySummaries reads back the per-trial-file summaries of one sweep.
func (c *PlotDBClient) QuerySummaries(ctx context.Context, sweepID string) (extract.Result, error) {
	c.logger.WithField("sweep_id", sweepID).Debug("Querying sweep summaries")

	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: 0)
		|> filter(fn: (r) => r["_measurement"] == "ioam_summary")
		|> filter(fn: (r) => r["sweep_id"] == "%s")
		|> pivot(rowKey:["_time", "trial_file"], columnKey: ["_field"], valueColumn: "_value")
	`, c.bucket, sweepID)

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	entries := extract.Result{}
	for result.Next() {
		entry, err := EntryFromValues(result.Record().Values())
		if err != nil {
			return nil, err
		}
		// Later writes of the same file win.
		entries[entry.File] = entry
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("query parsing failed: %w", result.Err())
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no summaries found for sweep_id %s", sweepID)
	}

	c.logger.WithField("entries", len(entries)).Debug("Summary query completed")
	return entries, nil
}

// EntryFromValues rebuilds an extracted entry from one pivoted summary row.
// Statistics the writer left out because they were undefined come back as
// NaN.
func EntryFromValues(values map[string]interface{}) (extract.Entry, error) {
	entry := extract.Entry{}

	file, _ := values["trial_file"].(string)
	if file == "" {
		return entry, fmt.Errorf("summary row without trial_file tag")
	}
	entry.File = file
	entry.Variant, _ = values["variant"].(string)
	entry.Source, _ = values["source"].(string)

	baseline, err := intTag(values, "baseline")
	if err != nil {
		return entry, fmt.Errorf("%s: %w", file, err)
	}
	instrumented, err := intTag(values, "instrumented")
	if err != nil {
		return entry, fmt.Errorf("%s: %w", file, err)
	}
	entry.Pair = axis.Pair{Baseline: baseline, Instrumented: instrumented}
	entry.Frequency = entry.Pair.Fraction()

	mean, ok := values["mean"].(float64)
	if !ok {
		return entry, fmt.Errorf("%s: summary row without mean", file)
	}

	s := &stats.Summary{
		Mean:       mean,
		Variance:   floatField(values, "variance"),
		StdDev:     floatField(values, "stddev"),
		StdErr:     floatField(values, "stderr"),
		Confidence: floatField(values, "confidence"),
		Interval: stats.Interval{
			Low:  floatField(values, "ci_low"),
			High: floatField(values, "ci_high"),
		},
	}
	if v, ok := values["n"].(int64); ok {
		s.N = int(v)
	}
	s.Degenerate = s.N < 2
	entry.Summary = s
	return entry, nil
}

func intTag(values map[string]interface{}, key string) (int, error) {
	v, ok := values[key].(string)
	if !ok {
		return 0, fmt.Errorf("missing %s tag", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("bad %s tag %q", key, v)
	}
	return n, nil
}

func floatField(values map[string]interface{}, key string) float64 {
	switch v := values[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return math.NaN()
	}
}

func (c *PlotDBClient) QueryMetaData(ctx context.Context, sweepID string) (*MetaData, error) {
	c.logger.WithField("sweep_id", sweepID).Debug("Querying sweep metadata")

	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: 0)
		|> filter(fn: (r) => r["_measurement"] == "ioam_sweep_meta")
		|> filter(fn: (r) => r["sweep_id"] == "%s")
		|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
	`, c.bucket, sweepID)

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	var meta *MetaData
	if result.Next() {
		meta = MetaDataFromValues(sweepID, result.Record().Values())
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("query parsing failed: %w", result.Err())
	}

	if meta == nil {
		return nil, fmt.Errorf("no metadata found for sweep_id %s", sweepID)
	}

	c.logger.Debug("Metadata query completed")
	return meta, nil
}

func MetaDataFromValues(sweepID string, values map[string]interface{}) *MetaData {
	meta := &MetaData{SweepID: sweepID}

	if v, ok := values["sweep_name"].(string); ok {
		meta.SweepName = v
	}
	if v, ok := values["description"].(string); ok {
		meta.Description = v
	}
	if v, ok := values["kind"].(string); ok {
		meta.Kind = v
	}
	if v, ok := values["plan_checksum"].(string); ok {
		meta.PlanChecksum = v
	}
	if v, ok := values["sweep_started"].(string); ok {
		meta.SweepStarted = v
	}
	if v, ok := values["sweep_finished"].(string); ok {
		meta.SweepFinished = v
	}
	if v, ok := values["duration_seconds"].(int64); ok {
		meta.DurationSeconds = v
	}
	if v, ok := values["total_points"].(int64); ok {
		meta.TotalPoints = v
	}
	if v, ok := values["iterations"].(int64); ok {
		meta.Iterations = v
	}
	if v, ok := values["driver_version"].(string); ok {
		meta.DriverVersion = v
	}
	if v, ok := values["hostname"].(string); ok {
		meta.Hostname = v
	}
	if v, ok := values["os_info"].(string); ok {
		meta.OSInfo = v
	}
	if v, ok := values["kernel_version"].(string); ok {
		meta.KernelVersion = v
	}
	if v, ok := values["cpu_vendor"].(string); ok {
		meta.CPUVendor = v
	}
	if v, ok := values["cpu_model"].(string); ok {
		meta.CPUModel = v
	}
	if v, ok := values["ioam_node_id"].(string); ok {
		meta.IOAMNodeID = v
	}
	if v, ok := values["config_file"].(string); ok {
		meta.ConfigFile = v
	}
	return meta
}

package database

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"ioam-bench/internal/config"
	"ioam-bench/internal/extract"
	"ioam-bench/internal/host"
	"ioam-bench/internal/logging"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
)

const (
	summaryMeasurement  = "ioam_summary"
	metadataMeasurement = "ioam_sweep_meta"
)

// SweepMetadata contains all metadata about a sweep or report run
type SweepMetadata struct {
	SweepID         string `json:"sweep_id"`
	SweepName       string `json:"sweep_name"`
	Description     string `json:"description"`
	Kind            string `json:"kind"`
	PlanChecksum    string `json:"plan_checksum"`
	DurationSeconds int64  `json:"duration_seconds"`
	SweepStarted    string `json:"sweep_started"`  // RFC3339 timestamp
	SweepFinished   string `json:"sweep_finished"` // RFC3339 timestamp
	TotalPoints     int    `json:"total_points"`
	Iterations      int    `json:"iterations"`
	DriverVersion   string `json:"driver_version"`
	Hostname        string `json:"hostname"`
	OSInfo          string `json:"os_info"`
	KernelVersion   string `json:"kernel_version"`
	CPUVendor       string `json:"cpu_vendor"`
	CPUModel        string `json:"cpu_model"`
	IOAMNodeID      string `json:"ioam_node_id"`
	ConfigFile      string `json:"config_file"`
}

// CollectSweepMetadata assembles the metadata record for one sweep.
func CollectSweepMetadata(sweepID string, cfg *config.SweepConfig, configContent string, hc *host.HostConfig, points int, startTime, endTime time.Time, driverVersion string) *SweepMetadata {
	checksum, _ := config.PlanChecksum(cfg)
	md := &SweepMetadata{
		SweepID:         sweepID,
		SweepName:       cfg.Sweep.Name,
		Description:     cfg.Sweep.Description,
		Kind:            cfg.Sweep.Kind,
		PlanChecksum:    checksum,
		DurationSeconds: int64(endTime.Sub(startTime).Seconds()),
		SweepStarted:    startTime.Format(time.RFC3339),
		SweepFinished:   endTime.Format(time.RFC3339),
		TotalPoints:     points,
		Iterations:      cfg.Sweep.Iterations,
		DriverVersion:   driverVersion,
		ConfigFile:      configContent,
	}
	if hc != nil {
		md.Hostname = hc.Hostname
		md.OSInfo = hc.OSInfo
		md.KernelVersion = hc.KernelVersion
		md.CPUVendor = hc.CPUVendor
		md.CPUModel = hc.CPUModel
		md.IOAMNodeID = hc.IOAM.NodeID
	}
	return md
}

// pointWriter is the subset of api.WriteAPIBlocking the client needs.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type InfluxDBClient struct {
	client   influxdb2.Client
	writeAPI pointWriter
	bucket   string
	org      string
}

func NewInfluxDBClient(config config.DatabaseConfig) (*InfluxDBClient, error) {
	logger := logging.GetLogger()

	client := influxdb2.NewClient(config.Host, config.Password)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		logger.WithField("host", config.Host).WithError(err).Error("Failed to connect to InfluxDB")
		client.Close()
		return nil, err
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		logger.WithFields(logrus.Fields{
			"host":    config.Host,
			"status":  health.Status,
			"message": msg,
		}).Error("InfluxDB health check failed")
		client.Close()
		return nil, fmt.Errorf("influxdb at %s is %s: %s", config.Host, health.Status, msg)
	}

	logger.WithFields(logrus.Fields{
		"host":   config.Host,
		"bucket": config.Name,
		"org":    config.Org,
	}).Info("Connected to InfluxDB")

	return &InfluxDBClient{
		client:   client,
		writeAPI: client.WriteAPIBlocking(config.Org, config.Name),
		bucket:   config.Name,
		org:      config.Org,
	}, nil
}

// BuildSummaryPoints turns every extracted entry into one ioam_summary
// point. Undefined statistics (NaN bounds of a single-row file) are left
// out of the field set.
func BuildSummaryPoints(sweepID, sweepName string, result extract.Result, ts time.Time) []*write.Point {
	points := make([]*write.Point, 0, len(result))
	for _, file := range result.Files() {
		entry := result[file]
		if entry.Summary == nil {
			continue
		}
		s := entry.Summary

		fields := map[string]interface{}{
			"n":    s.N,
			"mean": s.Mean,
		}
		addFinite(fields, "variance", s.Variance)
		addFinite(fields, "stddev", s.StdDev)
		addFinite(fields, "stderr", s.StdErr)
		addFinite(fields, "ci_low", s.Interval.Low)
		addFinite(fields, "ci_high", s.Interval.High)
		fields["confidence"] = s.Confidence

		points = append(points, influxdb2.NewPoint(summaryMeasurement,
			map[string]string{
				"sweep_id":     sweepID,
				"sweep":        sweepName,
				"variant":      entry.Variant,
				"frequency":    entry.Pair.Label(),
				"baseline":     strconv.Itoa(entry.Pair.Baseline),
				"instrumented": strconv.Itoa(entry.Pair.Instrumented),
				"source":       entry.Source,
				"trial_file":   entry.File,
			},
			fields,
			ts))
	}
	return points
}

func addFinite(fields map[string]interface{}, key string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	fields[key] = v
}

func (idb *InfluxDBClient) WriteSummaries(ctx context.Context, sweepID, sweepName string, result extract.Result) error {
	points := BuildSummaryPoints(sweepID, sweepName, result, time.Now())
	if len(points) == 0 {
		return nil
	}
	if err := idb.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write summary points: %w", err)
	}
	logging.GetLogger().WithFields(logrus.Fields{
		"sweep_id": sweepID,
		"points":   len(points),
		"bucket":   idb.bucket,
	}).Info("Summaries written to InfluxDB")
	return nil
}

func metadataPoint(metadata *SweepMetadata, ts time.Time) *write.Point {
	return influxdb2.NewPoint(metadataMeasurement,
		map[string]string{
			"sweep_id": metadata.SweepID,
		},
		map[string]interface{}{
			"sweep_name":       metadata.SweepName,
			"description":      metadata.Description,
			"kind":             metadata.Kind,
			"plan_checksum":    metadata.PlanChecksum,
			"duration_seconds": metadata.DurationSeconds,
			"sweep_started":    metadata.SweepStarted,
			"sweep_finished":   metadata.SweepFinished,
			"total_points":     metadata.TotalPoints,
			"iterations":       metadata.Iterations,
			"driver_version":   metadata.DriverVersion,
			"hostname":         metadata.Hostname,
			"os_info":          metadata.OSInfo,
			"kernel_version":   metadata.KernelVersion,
			"cpu_vendor":       metadata.CPUVendor,
			"cpu_model":        metadata.CPUModel,
			"ioam_node_id":     metadata.IOAMNodeID,
			"config_file":      metadata.ConfigFile,
		},
		ts)
}

func (idb *InfluxDBClient) WriteMetadata(ctx context.Context, metadata *SweepMetadata) error {
	if err := idb.writeAPI.WritePoint(ctx, metadataPoint(metadata, time.Now())); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (idb *InfluxDBClient) Close() {
	if idb.client != nil {
		idb.client.Close()
	}
}

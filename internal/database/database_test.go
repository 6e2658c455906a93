package database

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ioam-bench/internal/axis"
	"ioam-bench/internal/config"
	"ioam-bench/internal/extract"
	"ioam-bench/internal/host"
	"ioam-bench/internal/stats"

	"github.com/google/go-cmp/cmp"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

type recordingWriter struct {
	points []*write.Point
	err    error
}

func (w *recordingWriter) WritePoint(_ context.Context, point ...*write.Point) error {
	if w.err != nil {
		return w.err
	}
	w.points = append(w.points, point...)
	return nil
}

func testResult() extract.Result {
	return extract.Result{
		"decap_FLOW_9_1_stats.txt": {
			File:    "decap_FLOW_9_1_stats.txt",
			Variant: "FLOW",
			Pair:    axis.Pair{Baseline: 9, Instrumented: 1},
			Summary: &stats.Summary{N: 3, Mean: 12.5, Variance: 0.25, StdDev: 0.5, StdErr: 0.29,
				Confidence: 0.95, Interval: stats.Interval{Low: 11.3, High: 13.7}},
			Source: extract.SourceFilename,
		},
		"decap_NO_EXT_0_1_stats.txt": {
			File:    "decap_NO_EXT_0_1_stats.txt",
			Variant: "NO_EXT",
			Pair:    axis.Pair{Baseline: 0, Instrumented: 1},
			Summary: &stats.Summary{N: 1, Mean: 10.7, StdErr: math.NaN(), Confidence: 0.95,
				Interval: stats.Interval{Low: math.NaN(), High: math.NaN()}, Degenerate: true},
			Source: extract.SourceSidecar,
		},
	}
}

func TestBuildSummaryPoints(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	points := BuildSummaryPoints("abc", "decap", testResult(), ts)
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}

	flow := write.PointToLineProtocol(points[0], time.Second)
	for _, want := range []string{"ioam_summary,", "variant=FLOW", "frequency=10", "sweep_id=abc", "mean=12.5", "ci_high=13.7"} {
		if !strings.Contains(flow, want) {
			t.Fatalf("expected %q in %s", want, flow)
		}
	}

	single := write.PointToLineProtocol(points[1], time.Second)
	if strings.Contains(single, "ci_low") || strings.Contains(single, "stderr") {
		t.Fatalf("undefined bounds must be omitted: %s", single)
	}
	if !strings.Contains(single, "mean=10.7") || !strings.Contains(single, "frequency=100") {
		t.Fatalf("unexpected single-row point %s", single)
	}
}

func TestWriteSummaries(t *testing.T) {
	w := &recordingWriter{}
	idb := &InfluxDBClient{writeAPI: w, bucket: "ioam"}
	if err := idb.WriteSummaries(context.Background(), "abc", "decap", testResult()); err != nil {
		t.Fatalf("WriteSummaries: %v", err)
	}
	if len(w.points) != 2 {
		t.Fatalf("expected 2 points written, got %d", len(w.points))
	}

	w.err = errors.New("unavailable")
	if err := idb.WriteSummaries(context.Background(), "abc", "decap", testResult()); err == nil {
		t.Fatalf("expected write error")
	}
}

func TestWriteMetadata(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sweep.Name = "decap"
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	md := CollectSweepMetadata("abc", &cfg, "sweep: {}", &host.HostConfig{Hostname: "dut"}, 18, start, start.Add(90*time.Second), "dev")
	if md.DurationSeconds != 90 || md.Hostname != "dut" || md.PlanChecksum == "" {
		t.Fatalf("unexpected metadata %+v", md)
	}

	w := &recordingWriter{}
	idb := &InfluxDBClient{writeAPI: w}
	if err := idb.WriteMetadata(context.Background(), md); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	line := write.PointToLineProtocol(w.points[0], time.Second)
	if !strings.HasPrefix(line, "ioam_sweep_meta,sweep_id=abc ") || !strings.Contains(line, "total_points=18i") {
		t.Fatalf("unexpected metadata point %s", line)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sweep.Name = "decap"
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	m := BuildManifest("abc", &cfg, "sweep: {}", &host.HostConfig{Hostname: "dut"}, start)
	m.Points = []*PointRecord{
		{Index: 0, Variant: "FLOW", Pair: axis.Pair{Baseline: 9, Instrumented: 1}, TrialFile: "decap_FLOW_9_1_stats.txt", Status: PointDone},
		{Index: 1, Variant: "FLOW", Pair: axis.Pair{Baseline: 1, Instrumented: 1}, TrialFile: "decap_FLOW_1_1_stats.txt", Status: PointFailed, Error: "exit 1"},
	}
	m.EndTime = start.Add(time.Minute)

	dir := t.TempDir()
	path, err := WriteManifest(dir, m)
	if err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	if filepath.Dir(path) != dir || !strings.HasPrefix(filepath.Base(path), "sweep_decap_") || !strings.HasSuffix(path, "_"+m.PlanChecksum+".json.gz") {
		t.Fatalf("unexpected manifest path %s", path)
	}

	back, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if diff := cmp.Diff(m.Points, back.Points); diff != "" {
		t.Fatalf("points mismatch (-want +got):\n%s", diff)
	}
	if got := back.Counts(); got[PointDone] != 1 || got[PointFailed] != 1 {
		t.Fatalf("unexpected counts %v", got)
	}
	if back.Host == nil || back.Host.Hostname != "dut" {
		t.Fatalf("host info lost: %+v", back.Host)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp.*"))
	if len(matches) != 0 {
		t.Fatalf("temporary files left behind: %v", matches)
	}
}

func TestWriteManifestNil(t *testing.T) {
	if _, err := WriteManifest(t.TempDir(), nil); err == nil {
		t.Fatalf("expected error for nil manifest")
	}
}

func TestDefaultSpoolDir(t *testing.T) {
	t.Setenv("IOAM_BENCH_SPOOL_DIR", " /var/spool/ioam ")
	if got := DefaultSpoolDir(); got != "/var/spool/ioam" {
		t.Fatalf("unexpected spool dir %q", got)
	}
}

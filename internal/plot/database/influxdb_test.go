package database

import (
	"math"
	"testing"

	"ioam-bench/internal/axis"
)

func TestEntryFromValues(t *testing.T) {
	entry, err := EntryFromValues(map[string]interface{}{
		"trial_file":   "decap_FLOW_9_1_stats.txt",
		"variant":      "FLOW",
		"source":       "sidecar",
		"baseline":     "9",
		"instrumented": "1",
		"n":            int64(10),
		"mean":         10.5,
		"stddev":       0.25,
		"variance":     0.0625,
		"stderr":       0.08,
		"ci_low":       10.3,
		"ci_high":      10.7,
		"confidence":   0.95,
	})
	if err != nil {
		t.Fatalf("EntryFromValues: %v", err)
	}
	if entry.Pair != (axis.Pair{Baseline: 9, Instrumented: 1}) {
		t.Fatalf("unexpected pair %+v", entry.Pair)
	}
	if math.Abs(entry.Frequency-0.1) > 1e-12 {
		t.Fatalf("expected frequency 0.1, got %v", entry.Frequency)
	}
	s := entry.Summary
	if s.N != 10 || s.Mean != 10.5 || s.Interval.High != 10.7 || s.Degenerate {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestEntryFromValues_UndefinedStatistics(t *testing.T) {
	entry, err := EntryFromValues(map[string]interface{}{
		"trial_file":   "decap_FLOW_0_1_stats.txt",
		"variant":      "FLOW",
		"baseline":     "0",
		"instrumented": "1",
		"n":            int64(1),
		"mean":         3.0,
		"stddev":       0.0,
		"confidence":   0.95,
	})
	if err != nil {
		t.Fatalf("EntryFromValues: %v", err)
	}
	s := entry.Summary
	if !s.Degenerate || !math.IsNaN(s.Interval.Low) || !math.IsNaN(s.StdErr) {
		t.Fatalf("expected NaN interval for a single row, got %+v", s)
	}
}

func TestEntryFromValues_Rejects(t *testing.T) {
	tests := map[string]map[string]interface{}{
		"no file":      {"mean": 1.0, "baseline": "1", "instrumented": "1"},
		"no mean":      {"trial_file": "f", "baseline": "1", "instrumented": "1"},
		"bad baseline": {"trial_file": "f", "mean": 1.0, "baseline": "x", "instrumented": "1"},
		"no pair":      {"trial_file": "f", "mean": 1.0},
	}
	for name, values := range tests {
		if _, err := EntryFromValues(values); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestMetaDataFromValues(t *testing.T) {
	meta := MetaDataFromValues("abc", map[string]interface{}{
		"sweep_name":     "decap",
		"kind":           "packet",
		"iterations":     int64(10),
		"total_points":   int64(18),
		"hostname":       "dut1",
		"ioam_node_id":   "1",
		"unknown_column": true,
	})
	if meta.SweepID != "abc" || meta.SweepName != "decap" || meta.Iterations != 10 || meta.TotalPoints != 18 || meta.Hostname != "dut1" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}

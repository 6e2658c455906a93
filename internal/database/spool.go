package database

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ioam-bench/internal/axis"
	"ioam-bench/internal/config"
	"ioam-bench/internal/host"

	"github.com/goccy/go-json"
)

const ManifestVersion = 1

// Point statuses recorded in a manifest.
const (
	PointDone    = "done"
	PointSkipped = "skipped"
	PointFailed  = "failed"
)

// PointRecord is the outcome of one sweep point.
type PointRecord struct {
	Index     int       `json:"index"`
	Variant   string    `json:"variant"`
	Pair      axis.Pair `json:"pair"`
	TrialFile string    `json:"trial_file"`
	Params    string    `json:"params"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
}

// Manifest is the local record of a sweep run, written whether or not the
// sweep completed.
type Manifest struct {
	Version int `json:"version"`

	CreatedAt time.Time `json:"created_at"`

	SweepID      string `json:"sweep_id"`
	SweepName    string `json:"sweep_name"`
	PlanChecksum string `json:"plan_checksum"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	ConfigContent string `json:"config_content"`

	Host   *host.HostConfig `json:"host,omitempty"`
	Points []*PointRecord   `json:"points"`
	Error  string           `json:"error,omitempty"`
}

// Counts returns how many points ended in each status.
func (m *Manifest) Counts() map[string]int {
	counts := make(map[string]int, 3)
	for _, p := range m.Points {
		counts[p.Status]++
	}
	return counts
}

func DefaultSpoolDir() string {
	if v := strings.TrimSpace(os.Getenv("IOAM_BENCH_SPOOL_DIR")); v != "" {
		return v
	}
	return "spool"
}

// BuildManifest starts the manifest for a sweep about to run.
func BuildManifest(sweepID string, cfg *config.SweepConfig, configContent string, hc *host.HostConfig, startTime time.Time) *Manifest {
	m := &Manifest{
		Version:       ManifestVersion,
		CreatedAt:     time.Now(),
		SweepID:       sweepID,
		StartTime:     startTime,
		ConfigContent: configContent,
		Host:          hc,
	}
	if cfg != nil {
		m.SweepName = cfg.Sweep.Name
		if cs, err := config.PlanChecksum(cfg); err == nil {
			m.PlanChecksum = cs
		}
	}
	return m
}

// WriteManifest writes a gzip-compressed JSON manifest to disk atomically.
// It returns the final file path.
func WriteManifest(dir string, m *Manifest) (string, error) {
	if m == nil {
		return "", fmt.Errorf("manifest is nil")
	}
	if dir == "" {
		dir = DefaultSpoolDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	checksum := m.PlanChecksum
	if checksum == "" {
		checksum = "nocsum"
	}
	name := fmt.Sprintf(
		"sweep_%s_%s_%s.json.gz",
		m.SweepName,
		m.CreatedAt.UTC().Format("20060102T150405Z"),
		checksum,
	)
	finalPath := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".tmp.*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()

	gz := gzip.NewWriter(tmp)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		_ = gz.Close()
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", err
	}
	ok = true
	return finalPath, nil
}

func ReadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	defer gz.Close()

	var m Manifest
	if err := json.NewDecoder(gz).Decode(&m); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("manifest %s: unsupported version %d", path, m.Version)
	}
	return &m, nil
}

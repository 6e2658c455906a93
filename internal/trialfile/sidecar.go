package trialfile

import (
	"fmt"
	"os"
	"time"

	"ioam-bench/internal/axis"

	"github.com/goccy/go-json"
)

const (
	SidecarSuffix  = ".meta.json"
	SidecarVersion = 1
)

// Sidecar is the structured record written next to every TrialFile. When
// present it takes precedence over the metadata encoded in the filename.
type Sidecar struct {
	Version        int       `json:"version"`
	SweepID        string    `json:"sweep_id"`
	SweepName      string    `json:"sweep_name"`
	Kind           string    `json:"kind"`
	Variant        string    `json:"variant"`
	Pair           axis.Pair `json:"pair"`
	Frequency      float64   `json:"frequency"`
	FrequencyLabel string    `json:"frequency_label"`
	Iterations     int       `json:"iterations"`
	Params         string    `json:"params"`
	TrialFile      string    `json:"trial_file"`
	CreatedAt      time.Time `json:"created_at"`
}

func SidecarName(trialFile string) string {
	return trialFile + SidecarSuffix
}

func (s *Sidecar) Validate() error {
	if s.Version != SidecarVersion {
		return fmt.Errorf("unsupported sidecar version %d", s.Version)
	}
	if s.Variant == "" {
		return fmt.Errorf("sidecar has no variant")
	}
	return s.Pair.Validate()
}

func (s *Sidecar) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func UnmarshalSidecar(data []byte) (*Sidecar, error) {
	var s Sidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSidecar reads path; a missing file surfaces as fs.ErrNotExist.
func LoadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := UnmarshalSidecar(data)
	if err != nil {
		return nil, fmt.Errorf("sidecar %s: %w", path, err)
	}
	return s, nil
}

package config

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/goccy/go-json"
)

type planChecksumPayload struct {
	Kind         string   `json:"kind"`
	Prefix       string   `json:"prefix"`
	Order        string   `json:"order"`
	Iterations   int      `json:"iterations"`
	Variants     []string `json:"variants"`
	Frequencies  []string `json:"frequencies"`
	InsertionDEX bool     `json:"insertion_dex"`
	EncapMode    bool     `json:"encap_mode"`
	Route        string   `json:"route"`
}

// PlanChecksum returns a short, stable checksum that identifies the
// planned sweep (which points run and how the device is configured for
// them), independent of dry-run, resume and report settings.
//
// It computes MD5 over a canonical JSON representation and returns the
// first 6 hex characters.
func PlanChecksum(cfg *SweepConfig) (string, error) {
	if cfg == nil {
		return "", nil
	}

	pairs := cfg.FrequencyPairs()
	freqs := make([]string, len(pairs))
	for i, p := range pairs {
		freqs[i] = p.String()
	}

	d := cfg.Device
	payload := planChecksumPayload{
		Kind:         cfg.Sweep.Kind,
		Prefix:       cfg.Sweep.Prefix,
		Order:        cfg.Sweep.Order,
		Iterations:   cfg.Sweep.Iterations,
		Variants:     cfg.Sweep.Variants,
		Frequencies:  freqs,
		InsertionDEX: cfg.Sweep.InsertionDEX,
		EncapMode:    cfg.Sweep.EncapMode,
		Route:        d.Prefix + " " + d.Via + " " + d.Dev + " " + d.TraceType + " " + d.ExtFlags,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	sum := md5.Sum(b)
	hexStr := hex.EncodeToString(sum[:])
	if len(hexStr) > 6 {
		hexStr = hexStr[:6]
	}
	return hexStr, nil
}

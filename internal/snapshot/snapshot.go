// SPDX-License-Identifier: MIT
//
// Package snapshot writes the final run summary to the CLI's positional
// output_snapshot_path on shutdown (C11). It is deliberately a thin,
// interface-only boundary: the DSP core never depends on this package, only
// the CLI glue that assembles a Snapshot after the pipeline stops.
package snapshot

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// InstrumentSummary is one channel's final tempo/confidence state.
type InstrumentSummary struct {
	Instrument       string  `yaml:"instrument"`
	TempoBpm         float64 `yaml:"tempo_bpm"`
	PeriodSec        float64 `yaml:"period_sec"`
	ConfidenceGlobal float64 `yaml:"confidence_global"`
	WarmupComplete   bool    `yaml:"warmup_complete"`
	HitsSeen         int     `yaml:"hits_seen"`
}

// Snapshot is the full run summary written at shutdown.
type Snapshot struct {
	FramesProcessed int                 `yaml:"frames_processed"`
	DurationSec     float64             `yaml:"duration_sec"`
	RingOverruns    uint64              `yaml:"ring_overruns"`
	Instruments     []InstrumentSummary `yaml:"instruments"`
}

// Write marshals snap as YAML to path, overwriting any existing file.
func Write(path string, snap Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: failed to marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("snapshot: failed to write %q: %w", path, err)
	}
	return nil
}

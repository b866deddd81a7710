// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Audio.SampleRate != DefaultSampleRate {
		t.Errorf("SampleRate = %v, want %v", cfg.Audio.SampleRate, DefaultSampleRate)
	}
	if cfg.Audio.HopSize >= cfg.Audio.FrameSize {
		t.Errorf("HopSize (%d) must be < FrameSize (%d)", cfg.Audio.HopSize, cfg.Audio.FrameSize)
	}
	if len(cfg.Gate.Channels) != 5 {
		t.Fatalf("expected 5 gate channel configs, got %d", len(cfg.Gate.Channels))
	}
}

func TestValidateClampsOutOfRange(t *testing.T) {
	cfg := NewConfig()
	cfg.Audio.SampleRate = -1
	cfg.Audio.HopSize = 99999 // > FrameSize
	cfg.Predictor.MinBpm = 300
	cfg.Predictor.MaxBpm = 10 // invalid: max < min
	cfg.Lighting.DuplicateWindowSec = -5
	cfg.TimeoutSeconds = 0

	cfg.Validate()

	if cfg.Audio.SampleRate <= 0 {
		t.Error("SampleRate should be clamped to a positive default")
	}
	if cfg.Audio.HopSize > cfg.Audio.FrameSize {
		t.Error("HopSize should be clamped to <= FrameSize")
	}
	if cfg.Predictor.MaxBpm <= cfg.Predictor.MinBpm {
		t.Error("MaxBpm should be clamped above MinBpm")
	}
	if cfg.Lighting.DuplicateWindowSec <= 0 {
		t.Error("DuplicateWindowSec should be clamped positive")
	}
	if cfg.TimeoutSeconds <= 0 {
		t.Error("TimeoutSeconds should be clamped positive")
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
audio:
  device_substring: "TestDevice"
  sample_rate: 48000
predictor:
  min_bpm: 70
  max_bpm: 180
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Audio.DeviceSubstring != "TestDevice" {
		t.Errorf("DeviceSubstring = %q, want %q", cfg.Audio.DeviceSubstring, "TestDevice")
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("SampleRate = %v, want 48000", cfg.Audio.SampleRate)
	}
	if cfg.Predictor.MinBpm != 70 || cfg.Predictor.MaxBpm != 180 {
		t.Errorf("Predictor bpm bounds = [%v,%v], want [70,180]", cfg.Predictor.MinBpm, cfg.Predictor.MaxBpm)
	}
	// Fields absent from YAML retain their defaults.
	if cfg.DSP.MelBands != DefaultMelBands {
		t.Errorf("MelBands = %d, want default %d", cfg.DSP.MelBands, DefaultMelBands)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestParseInstrumentIndex(t *testing.T) {
	for i, name := range InstrumentNames {
		idx, ok := ParseInstrumentIndex(name)
		if !ok || idx != i {
			t.Errorf("ParseInstrumentIndex(%q) = (%d,%v), want (%d,true)", name, idx, ok, i)
		}
	}
	if idx, ok := ParseInstrumentIndex("bogus"); ok || idx != 0 {
		t.Errorf("ParseInstrumentIndex(bogus) = (%d,%v), want (0,false)", idx, ok)
	}
}

// SPDX-License-Identifier: MIT
//
// Package config loads and validates runtime configuration for the
// percussive detection and lighting-prediction pipeline. Layering order is
// built-in defaults, then an optional YAML file, then environment variable
// overrides — matching the teacher's config layering.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"beatlight/internal/dsp"
)

// InstrumentNames is the canonical, ordered list of the five percussion
// channels, re-exported from internal/dsp so config callers (CLI, logger)
// don't need a second import for the same table.
var InstrumentNames = dsp.InstrumentNames

const (
	DefaultSampleRate      = 44100.0
	DefaultFrameSize       = 1024 // F: FFT/window size
	DefaultHopSize         = 256  // H: samples advanced per frame
	DefaultMelBands        = 64   // B
	DefaultDeviceSubstring = "BlackHole"
	DefaultRingSeconds     = 5 // ring capacity in seconds of audio, per §9 guidance
	// DefaultRMSGate mirrors the teacher's internal/audio/gate.go default of
	// ~0.1% of full scale, expressed directly as an RMS amplitude threshold.
	DefaultRMSGate = 0.001
)

// AudioConfig configures the capture device and frame geometry.
type AudioConfig struct {
	DeviceSubstring string  `yaml:"device_substring"` // substring match against device name, §6
	SampleRate      float64 `yaml:"sample_rate"`
	FrameSize       int     `yaml:"frame_size"` // F
	HopSize         int     `yaml:"hop_size"`   // H
	RingSeconds     int     `yaml:"ring_seconds"`
	RMSGate         float64 `yaml:"rms_gate"` // feeder silence threshold, §5
}

// DSPConfig configures the spectrum and mel filterbank stages (C2/C3).
type DSPConfig struct {
	Window   string `yaml:"window"` // gonum window function name
	MelBands int    `yaml:"mel_bands"`
}

// GateParams holds the per-channel adaptive onset gate parameters (C5).
type GateParams struct {
	Method         string  `yaml:"method"` // hfc | flux | rms | default | quantile
	K              float64 `yaml:"k"`      // threshold multiplier
	Refractory     int     `yaml:"refractory"`
	Warmup         int     `yaml:"warmup"`
	SmoothWindow   int     `yaml:"smooth_window"`
	ODFWindow      int     `yaml:"odf_window"`
	Sensitivity    float64 `yaml:"sensitivity"` // reserved, §9 — accepted, not consumed
	FallbackThresh float64 `yaml:"fallback_threshold"`
	QuantileHi     float64 `yaml:"quantile_hi"` // used only when Method == "quantile"
	QuantileLo     float64 `yaml:"quantile_lo"`
}

// GateConfig holds one GateParams per instrument channel, indexed the same
// way as InstrumentNames.
type GateConfig struct {
	Channels [5]GateParams `yaml:"channels"`
}

// PredictorConfig configures the per-channel Kalman/PLL tempo+phase tracker (C6).
type PredictorConfig struct {
	MinBpm                     float64 `yaml:"min_bpm"`
	MaxBpm                     float64 `yaml:"max_bpm"`
	MinHitsForSeed             int     `yaml:"min_hits_for_seed"`
	HorizonSeconds             float64 `yaml:"horizon_seconds"`
	MaxPredictionsPerInstrument int    `yaml:"max_predictions_per_instrument"`
	ConfidenceThresholdMin     float64 `yaml:"confidence_threshold_min"`
	PeriodicIntervalSec        float64 `yaml:"periodic_interval_sec"`
	QPeriod                    float64 `yaml:"q_period"`
	QPhase                     float64 `yaml:"q_phase"`
	RBase                      float64 `yaml:"r_base"`
	ConfidenceDecayRate        float64 `yaml:"confidence_decay_rate"`
}

// LightingConfig configures the prediction-to-lighting-command filter (C7).
type LightingConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	MinLatencySec       float64 `yaml:"min_latency_sec"`
	MaxLatencySec       float64 `yaml:"max_latency_sec"`
	DuplicateWindowSec  float64 `yaml:"duplicate_window_sec"`
	CleanupInterval     int     `yaml:"cleanup_interval"` // frames between dedup-table sweeps
	EmitNonKick         bool    `yaml:"emit_non_kick"`    // see DESIGN.md open question
}

// TransportEndpoint names a transport strategy and its address.
type TransportEndpoint struct {
	Kind string `yaml:"kind"` // udp | websocket | logging
	Addr string `yaml:"addr"`
}

// TransportConfig configures the outbound event publisher (C8) and the
// optional telemetry broadcaster.
type TransportConfig struct {
	Event     TransportEndpoint `yaml:"event"`
	Telemetry TransportEndpoint `yaml:"telemetry"`
}

// LoggingConfig configures the structured hit/prediction logger (C10) and
// the ambient leveled logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Config is the root configuration object for the pipeline.
type Config struct {
	Audio     AudioConfig     `yaml:"audio"`
	DSP       DSPConfig       `yaml:"dsp"`
	Gate      GateConfig      `yaml:"gate"`
	Predictor PredictorConfig `yaml:"predictor"`
	Lighting  LightingConfig  `yaml:"lighting"`
	Transport TransportConfig `yaml:"transport"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Command, when non-empty, runs a one-off action (e.g. "list") instead
	// of starting the pipeline.
	Command string `yaml:"-"`
	// OutputSnapshotPath is the positional CLI argument for the YAML
	// snapshot written at shutdown (C11, interface only).
	OutputSnapshotPath string `yaml:"-"`
	// TimeoutSeconds bounds how long the pipeline runs before a clean stop.
	TimeoutSeconds int `yaml:"-"`
}

// defaultGateParams returns the per-channel defaults. Thresholds climb from
// kick to open-hat because higher-frequency channels carry broader-band,
// noisier novelty signals and need a larger multiplier to avoid chattering.
func defaultGateParams() [5]GateParams {
	mk := func(k float64) GateParams {
		return GateParams{
			Method:         "default",
			K:              k,
			Refractory:     8,
			Warmup:         40,
			SmoothWindow:   4,
			ODFWindow:      43, // ~0.25s at hop=256/44100
			Sensitivity:    1.0,
			FallbackThresh: 0.05,
			QuantileHi:     0.98,
			QuantileLo:     0.80,
		}
	}
	return [5]GateParams{
		mk(0.3), // kick
		mk(0.6), // snare
		mk(0.9), // clap
		mk(1.2), // chat
		mk(1.6), // ohc
	}
}

// NewConfig returns a Config populated entirely from built-in defaults.
func NewConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			DeviceSubstring: DefaultDeviceSubstring,
			SampleRate:      DefaultSampleRate,
			FrameSize:       DefaultFrameSize,
			HopSize:         DefaultHopSize,
			RingSeconds:     DefaultRingSeconds,
			RMSGate:         DefaultRMSGate,
		},
		DSP: DSPConfig{
			Window:   "hann",
			MelBands: DefaultMelBands,
		},
		Gate: GateConfig{Channels: defaultGateParams()},
		Predictor: PredictorConfig{
			MinBpm:                      60,
			MaxBpm:                      200,
			MinHitsForSeed:              8,
			HorizonSeconds:              2.0,
			MaxPredictionsPerInstrument: 2,
			ConfidenceThresholdMin:      0.3,
			PeriodicIntervalSec:         0.15,
			QPeriod:                     1e-5,
			QPhase:                      1e-4,
			RBase:                       1e-3,
			ConfidenceDecayRate:         2.0,
		},
		Lighting: LightingConfig{
			ConfidenceThreshold: 0.5,
			MinLatencySec:       0.02,
			MaxLatencySec:       2.0,
			DuplicateWindowSec:  0.1,
			CleanupInterval:     50,
			EmitNonKick:         false,
		},
		Transport: TransportConfig{
			Event:     TransportEndpoint{Kind: "udp", Addr: "127.0.0.1:9090"},
			Telemetry: TransportEndpoint{Kind: "websocket", Addr: ":8080"},
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "./logs",
		},
		TimeoutSeconds: 20,
	}
}

// Load builds a Config from defaults, optionally overlaid by the YAML file
// at path (if path is non-empty), then environment overrides, then
// validates (clamping) the result.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %q: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.Validate()

	return cfg, nil
}

// Validate clamps out-of-range fields to safe defaults per §7 ("Configuration
// out of range ... clamped or reset to default; never fatal"). It does not
// return an error for numeric ranges; transport address syntax is the one
// startup-time configuration error, surfaced by the transport constructor
// itself rather than here.
func (c *Config) Validate() {
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = DefaultSampleRate
	}
	if c.Audio.FrameSize <= 0 {
		c.Audio.FrameSize = DefaultFrameSize
	}
	if c.Audio.HopSize <= 0 || c.Audio.HopSize > c.Audio.FrameSize {
		c.Audio.HopSize = DefaultHopSize
	}
	if c.Audio.RingSeconds <= 0 {
		c.Audio.RingSeconds = DefaultRingSeconds
	}
	if c.Audio.RMSGate < 0 {
		c.Audio.RMSGate = DefaultRMSGate
	}
	if c.DSP.MelBands <= 0 {
		c.DSP.MelBands = DefaultMelBands
	}
	if c.Predictor.MinBpm <= 0 || c.Predictor.MaxBpm <= c.Predictor.MinBpm {
		c.Predictor.MinBpm, c.Predictor.MaxBpm = 60, 200
	}
	if c.Predictor.MaxPredictionsPerInstrument <= 0 {
		c.Predictor.MaxPredictionsPerInstrument = 2
	}
	if c.Predictor.PeriodicIntervalSec <= 0 {
		c.Predictor.PeriodicIntervalSec = 0.15
	}
	if c.Lighting.DuplicateWindowSec <= 0 {
		c.Lighting.DuplicateWindowSec = 0.1
	}
	if c.Lighting.CleanupInterval <= 0 {
		c.Lighting.CleanupInterval = 50
	}
	// The run timeout must be positive; zero or negative resets to 20s.
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 20
	}
}

// ParseInstrumentIndex maps an instrument name to its channel index.
// An unrecognized name is clamped to kick (index 0) per §7.
func ParseInstrumentIndex(name string) (int, bool) {
	return dsp.ParseInstrumentIndex(name)
}

func (c *Config) applyEnvOverrides() {
	if v, ok := os.LookupEnv("BEATLIGHT_LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := os.LookupEnv("BEATLIGHT_DEVICE"); ok {
		c.Audio.DeviceSubstring = v
	}
	if v, ok := os.LookupEnv("BEATLIGHT_SAMPLE_RATE"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Audio.SampleRate = f
		}
	}
	if v, ok := os.LookupEnv("BEATLIGHT_EVENT_TRANSPORT"); ok {
		parts := strings.SplitN(v, "=", 2)
		c.Transport.Event.Kind = parts[0]
		if len(parts) == 2 {
			c.Transport.Event.Addr = parts[1]
		}
	}
}

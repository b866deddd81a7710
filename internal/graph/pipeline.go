// SPDX-License-Identifier: MIT
package graph

import (
	"fmt"
	"time"

	"beatlight/internal/config"
	"beatlight/internal/dsp"
	"beatlight/internal/lighting"
	"beatlight/internal/publish"
	"beatlight/internal/ring"
	"beatlight/internal/telemetry"
	"beatlight/internal/transport"
)

// Pipeline owns every stage of the streaming scheduler plus the feeder that
// bridges the audio ring into it. Build assembles one from a Config; Run
// drives it until its stop channel is closed.
type Pipeline struct {
	Ring   *ring.Buffer
	Feeder *Feeder
	Graph  *Graph
	Logger *telemetry.Logger
}

// Build wires the whole C1 -> ... -> C8 chain (with the C10 tee off C5/C6)
// from cfg, returning a Pipeline ready to Run. The caller owns starting the
// capture stream that pushes into Pipeline.Ring.
func Build(cfg *config.Config) (*Pipeline, error) {
	win, _ := dsp.ParseWindowFunc(cfg.DSP.Window)

	spectrum, err := dsp.NewSpectrumProcessor(cfg.Audio.FrameSize, cfg.Audio.SampleRate, win)
	if err != nil {
		return nil, fmt.Errorf("graph: spectrum processor: %w", err)
	}

	mel, err := dsp.NewMelFilterbank(spectrum.NumBins(), cfg.DSP.MelBands, cfg.Audio.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("graph: mel filterbank: %w", err)
	}

	aggregator := dsp.NewInstrumentAggregator(cfg.DSP.MelBands, cfg.Audio.SampleRate/2.0)

	var gates [5]gate
	for i := 0; i < 5; i++ {
		gp := cfg.Gate.Channels[i]
		if gp.Method == "quantile" {
			gates[i] = dsp.NewQuantileGate(dsp.QuantileGateParams{
				QHi:        gp.QuantileHi,
				QLo:        gp.QuantileLo,
				Refractory: gp.Refractory,
				Warmup:     gp.Warmup,
			})
		} else {
			gates[i] = dsp.NewOnsetGate(dsp.GateParams{
				Method:         dsp.ParseNoveltyMethod(gp.Method),
				K:              gp.K,
				Refractory:     gp.Refractory,
				Warmup:         gp.Warmup,
				SmoothWindow:   gp.SmoothWindow,
				ODFWindow:      gp.ODFWindow,
				FallbackThresh: gp.FallbackThresh,
			})
		}
	}

	predictor := dsp.NewPredictor(dsp.PredictorParams{
		MinBpm:                      cfg.Predictor.MinBpm,
		MaxBpm:                      cfg.Predictor.MaxBpm,
		MinHitsForSeed:              cfg.Predictor.MinHitsForSeed,
		HorizonSeconds:              cfg.Predictor.HorizonSeconds,
		MaxPredictionsPerInstrument: cfg.Predictor.MaxPredictionsPerInstrument,
		ConfidenceThresholdMin:      cfg.Predictor.ConfidenceThresholdMin,
		QPeriod:                     cfg.Predictor.QPeriod,
		QPhase:                      cfg.Predictor.QPhase,
		RBase:                       cfg.Predictor.RBase,
		ConfidenceDecayRate:         cfg.Predictor.ConfidenceDecayRate,
	})

	lightingEngine := lighting.NewEngine(lighting.Params{
		ConfidenceThreshold: cfg.Lighting.ConfidenceThreshold,
		MinLatencySec:       cfg.Lighting.MinLatencySec,
		MaxLatencySec:       cfg.Lighting.MaxLatencySec,
		DuplicateWindowSec:  cfg.Lighting.DuplicateWindowSec,
		CleanupInterval:     cfg.Lighting.CleanupInterval,
		EmitNonKick:         cfg.Lighting.EmitNonKick,
	})

	eventTransport, err := transport.New(transport.Endpoint{
		Kind: cfg.Transport.Event.Kind,
		Addr: cfg.Transport.Event.Addr,
	})
	if err != nil {
		return nil, fmt.Errorf("graph: event transport: %w", err)
	}

	var telemetryTransport transport.Transport
	if cfg.Transport.Telemetry.Kind != "" {
		telemetryTransport, err = transport.New(transport.Endpoint{
			Kind: cfg.Transport.Telemetry.Kind,
			Addr: cfg.Transport.Telemetry.Addr,
		})
		if err != nil {
			return nil, fmt.Errorf("graph: telemetry transport: %w", err)
		}
	}

	startTime := time.Now()
	publisher := publish.NewPublisher(startTime.Unix(), int64(startTime.Nanosecond()/1000),
		transport.NewMultiTransport(eventTransport, telemetryTransport))

	logger := telemetry.New(cfg.Logging.Dir)

	names := config.InstrumentNames

	ringBuf := ring.New(int(cfg.Audio.SampleRate) * cfg.Audio.RingSeconds)
	source := NewFrameSourceNode(cfg.Audio.FrameSize, cfg.Audio.HopSize)
	feeder := NewFeeder(ringBuf, source, cfg.Audio.HopSize, cfg.Audio.RMSGate)

	spectrumNode := NewSpectrumNode(&source.Out, spectrum)
	melNode := NewMelNode(&spectrumNode.Out, mel)
	aggNode := NewAggregatorNode(&melNode.Out, aggregator, cfg.Audio.SampleRate, cfg.Audio.HopSize)
	gateBank := NewGateBankNode(&aggNode.Out, gates, logger, names)
	predictorNode := NewPredictorNode(&gateBank.Out, predictor, float64(cfg.Audio.HopSize)/cfg.Audio.SampleRate,
		cfg.Predictor.PeriodicIntervalSec, logger, names)
	lightingNode := NewLightingNode(&predictorNode.Out, lightingEngine, names)
	publisherNode := NewPublisherNode(&lightingNode.Out, publisher)

	g := New(source, spectrumNode, melNode, aggNode, gateBank, predictorNode, lightingNode, publisherNode)

	return &Pipeline{
		Ring:   ringBuf,
		Feeder: feeder,
		Graph:  g,
		Logger: logger,
	}, nil
}

// Run ticks the graph continuously until stop is closed. This is the DSP
// thread (§5 #3); the feeder (#2) must be started separately, typically in
// its own goroutine via Feeder.Run.
func (pl *Pipeline) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
			pl.Graph.Tick()
		}
	}
}

// Close releases the pipeline's sink resources.
func (pl *Pipeline) Close() error {
	return pl.Logger.Close()
}

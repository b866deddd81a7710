// SPDX-License-Identifier: MIT
package graph

import (
	"sync"
	"testing"
	"time"

	"beatlight/internal/config"
	"beatlight/internal/dsp"
	"beatlight/internal/lighting"
	"beatlight/internal/publish"
	"beatlight/internal/ring"
	"beatlight/pkg/synth"
)

// captureTransport records every SentEvent handed to it instead of sending
// it anywhere, so tests can assert on what the publisher stage emitted.
type captureTransport struct {
	mu     sync.Mutex
	events []publish.SentEvent
}

func (c *captureTransport) Send(data any) error {
	ev, ok := data.(publish.SentEvent)
	if !ok {
		return nil
	}
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func (c *captureTransport) Close() error { return nil }

func (c *captureTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// buildTestChain wires the full C2..C8 node chain by hand (bypassing
// Build's transport/device setup) around a capturing transport, so tests
// can drive it frame by frame.
func buildTestChain(t *testing.T, ct *captureTransport) (*FrameSourceNode, *Graph) {
	t.Helper()

	const (
		frameSize  = 1024
		hopSize    = 256
		sampleRate = 44100.0
		melBands   = 32
	)

	spectrum, err := dsp.NewSpectrumProcessor(frameSize, sampleRate, dsp.Hann)
	if err != nil {
		t.Fatalf("NewSpectrumProcessor: %v", err)
	}
	mel, err := dsp.NewMelFilterbank(spectrum.NumBins(), melBands, sampleRate)
	if err != nil {
		t.Fatalf("NewMelFilterbank: %v", err)
	}
	agg := dsp.NewInstrumentAggregator(melBands, sampleRate/2.0)

	gp := config.NewConfig().Gate.Channels
	var gates [5]gate
	for i := 0; i < 5; i++ {
		gates[i] = dsp.NewOnsetGate(dsp.GateParams{
			Method:         dsp.ParseNoveltyMethod(gp[i].Method),
			K:              gp[i].K,
			Refractory:     gp[i].Refractory,
			Warmup:         gp[i].Warmup,
			SmoothWindow:   gp[i].SmoothWindow,
			ODFWindow:      gp[i].ODFWindow,
			FallbackThresh: gp[i].FallbackThresh,
		})
	}

	predictor := dsp.NewPredictor(dsp.PredictorParams{
		MinBpm: 60, MaxBpm: 200, MinHitsForSeed: 4, HorizonSeconds: 2.0,
		MaxPredictionsPerInstrument: 2, ConfidenceThresholdMin: 0.0,
		QPeriod: 1e-5, QPhase: 1e-4, RBase: 1e-3, ConfidenceDecayRate: 2.0,
	})

	lightingEngine := lighting.NewEngine(lighting.Params{
		ConfidenceThreshold: 0.0,
		MinLatencySec:       -1.0,
		MaxLatencySec:       10.0,
		DuplicateWindowSec:  0.05,
		CleanupInterval:     50,
		EmitNonKick:         true,
	})

	publisher := publish.NewPublisher(0, 0, ct)

	names := dsp.InstrumentNames
	source := NewFrameSourceNode(frameSize, hopSize)
	spectrumNode := NewSpectrumNode(&source.Out, spectrum)
	melNode := NewMelNode(&spectrumNode.Out, mel)
	aggNode := NewAggregatorNode(&melNode.Out, agg, sampleRate, hopSize)
	gateBank := NewGateBankNode(&aggNode.Out, gates, nil, names)
	predictorNode := NewPredictorNode(&gateBank.Out, predictor, hopSize/sampleRate, 0.15, nil, names)
	lightingNode := NewLightingNode(&predictorNode.Out, lightingEngine, names)
	publisherNode := NewPublisherNode(&lightingNode.Out, publisher)

	g := New(source, spectrumNode, melNode, aggNode, gateBank, predictorNode, lightingNode, publisherNode)
	return source, g
}

// TestFrameSourceNodeAccumulatesHopsIntoFrames checks that a frame is only
// emitted once enough hops have accumulated to fill the rolling window, and
// that the scheduler doesn't stall waiting on a half-filled buffer.
func TestFrameSourceNodeAccumulatesHopsIntoFrames(t *testing.T) {
	source := NewFrameSourceNode(8, 4)
	g := New(source)

	hop := []float32{1, 2, 3, 4}
	source.Push(hop)
	g.Tick()
	if source.Out.Ready() {
		t.Fatal("frame emitted before the window filled")
	}

	source.Push(hop)
	g.Tick()
	f, ok := source.Out.Recv()
	if !ok {
		t.Fatal("no frame emitted once window filled")
	}
	if len(f.samples) != 8 || f.index != 1 {
		t.Errorf("got frame %+v, want length 8 index 1", f)
	}
}

// TestGraphTickRipplesOneFrameEndToEnd drives a full spectrum/mel/aggregator
// chain with an impulse-train kick signal and asserts that a gate-bank hit
// eventually reaches the publisher as a SentEvent, all within the ticks
// triggered by feeding the graph hop by hop (no separate goroutines needed
// since each Port is single-slot and drained the same tick it's filled).
func TestGraphTickRipplesOneFrameEndToEnd(t *testing.T) {
	const (
		sampleRate = 44100.0
		hopSize    = 256
	)
	ct := &captureTransport{}
	source, g := buildTestChain(t, ct)

	signal := synth.ImpulseTrain(4.0, sampleRate, 0.5, 0.5, 60.0)

	for off := 0; off+hopSize <= len(signal); off += hopSize {
		source.Push(signal[off : off+hopSize])
		for i := 0; i < 10; i++ {
			g.Tick()
		}
	}

	if ct.count() == 0 {
		t.Fatal("no lighting events published for a steady kick train")
	}
}

// TestFeederDropsSilentHops confirms the RMS gate suppresses quiet hops
// before they ever reach the source node.
func TestFeederDropsSilentHops(t *testing.T) {
	r := ring.New(2048)
	source := NewFrameSourceNode(1024, 256)
	f := NewFeeder(r, source, 256, 0.1)

	silence := make([]float32, 256)
	r.Push(silence)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		f.Run(stop)
		close(done)
	}()

	// Give the feeder a moment to drain the ring, then stop it.
	deadline := time.Now().Add(time.Second)
	for r.Available() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(stop)
	<-done

	if len(source.pending) != 0 {
		t.Errorf("silent hop was forwarded to the source node: %d pending", len(source.pending))
	}
}

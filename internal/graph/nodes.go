// SPDX-License-Identifier: MIT
package graph

import (
	applog "beatlight/internal/log"

	"beatlight/internal/dsp"
	"beatlight/internal/lighting"
	"beatlight/internal/publish"
	"beatlight/internal/telemetry"
)

// frame is one frame of F raw samples assembled by FrameSourceNode; the
// window is applied later, in SpectrumNode.
type frame struct {
	samples []float32
	index   int
}

// FrameSourceNode assembles overlapping frames of size F from hop-sized
// pushes, advancing by H (hop size) each time a hop arrives. It is the
// graph's one source node; the feeder thread calls Push, not Tick's normal
// acquire path, since nothing upstream of it is itself a Node (§5: capture
// is a separate producer, not part of the cooperative scheduler).
type FrameSourceNode struct {
	frameSize int
	hopSize   int
	buf       []float32 // rolling window, length frameSize
	filled    int        // samples written so far, saturates at frameSize
	pending   [][]float32
	frameIdx  int

	Out Port[frame]
}

// NewFrameSourceNode constructs a source producing frameSize-sample frames
// advanced by hopSize samples per push.
func NewFrameSourceNode(frameSize, hopSize int) *FrameSourceNode {
	return &FrameSourceNode{
		frameSize: frameSize,
		hopSize:   hopSize,
		buf:       make([]float32, frameSize),
	}
}

// Push hands one hop-sized slice of samples to the source. Called by the
// feeder thread, not the scheduler.
func (n *FrameSourceNode) Push(hop []float32) {
	cp := append([]float32(nil), hop...)
	n.pending = append(n.pending, cp)
}

func (n *FrameSourceNode) Name() string { return "source" }

// Tick consumes one pending hop (if any), shifts the rolling frame buffer,
// and sends a complete frame once enough hops have accumulated to fill it.
func (n *FrameSourceNode) Tick() bool {
	if len(n.pending) == 0 {
		return false
	}
	if n.Out.Ready() {
		return false
	}

	hop := n.pending[0]
	n.pending = n.pending[1:]

	shift := len(hop)
	if shift >= len(n.buf) {
		copy(n.buf, hop[len(hop)-len(n.buf):])
		n.filled = len(n.buf)
	} else {
		copy(n.buf, n.buf[shift:])
		copy(n.buf[len(n.buf)-shift:], hop)
		if n.filled < len(n.buf) {
			n.filled += shift
		}
	}

	if n.filled < len(n.buf) {
		return false
	}

	n.frameIdx++
	out := append([]float32(nil), n.buf...)
	return n.Out.Send(frame{samples: out, index: n.frameIdx})
}

// SpectrumNode runs the windowed FFT magnitude spectrum (C2).
type SpectrumNode struct {
	in  *Port[frame]
	sp  *dsp.SpectrumProcessor
	Out Port[frame2]
}

type frame2 struct {
	magnitudes []float64
	index      int
}

// NewSpectrumNode wraps sp, reading frames from in.
func NewSpectrumNode(in *Port[frame], sp *dsp.SpectrumProcessor) *SpectrumNode {
	return &SpectrumNode{in: in, sp: sp}
}

func (n *SpectrumNode) Name() string { return "spectrum" }

func (n *SpectrumNode) Tick() bool {
	if n.Out.Ready() {
		return false
	}
	f, ok := n.in.Recv()
	if !ok {
		return false
	}
	n.sp.Process(f.samples)
	mags := n.sp.GetMagnitudes()
	return n.Out.Send(frame2{magnitudes: mags, index: f.index})
}

// MelNode runs the mel filterbank (C3).
type MelNode struct {
	in  *Port[frame2]
	mel *dsp.MelFilterbank
	Out Port[frame2]
}

// NewMelNode wraps mel, reading spectra from in.
func NewMelNode(in *Port[frame2], mel *dsp.MelFilterbank) *MelNode {
	return &MelNode{in: in, mel: mel}
}

func (n *MelNode) Name() string { return "mel" }

func (n *MelNode) Tick() bool {
	if n.Out.Ready() {
		return false
	}
	f, ok := n.in.Recv()
	if !ok {
		return false
	}
	bands, err := n.mel.Apply(f.magnitudes)
	if err != nil {
		return false
	}
	return n.Out.Send(frame2{magnitudes: bands, index: f.index})
}

// instrumentFrame carries the 5-channel instrument vector and the frame
// index/audio-time it was computed for.
type instrumentFrame struct {
	energies  [5]float64
	index     int
	audioTime float64
}

// AggregatorNode projects mel bands onto the five instrument channels (C4).
type AggregatorNode struct {
	in         *Port[frame2]
	agg        *dsp.InstrumentAggregator
	sampleRate float64
	hopSize    int
	Out        Port[instrumentFrame]
}

// NewAggregatorNode wraps agg, reading band vectors from in. audioTime for
// frame n is n*hopSize/sampleRate.
func NewAggregatorNode(in *Port[frame2], agg *dsp.InstrumentAggregator, sampleRate float64, hopSize int) *AggregatorNode {
	return &AggregatorNode{in: in, agg: agg, sampleRate: sampleRate, hopSize: hopSize}
}

func (n *AggregatorNode) Name() string { return "aggregator" }

func (n *AggregatorNode) Tick() bool {
	if n.Out.Ready() {
		return false
	}
	f, ok := n.in.Recv()
	if !ok {
		return false
	}
	energies := n.agg.Aggregate(f.magnitudes)
	audioTime := float64(f.index*n.hopSize) / n.sampleRate
	return n.Out.Send(instrumentFrame{energies: energies, index: f.index, audioTime: audioTime})
}

// gate is the minimal interface both dsp.OnsetGate and dsp.QuantileGate
// satisfy, letting GateBankNode mix gate strategies per channel.
type gate interface {
	Process(x float64) int
}

// gateFrame carries the 5-channel gate vector forward, plus the audio time
// and raw energies the logger tee needs.
type gateFrame struct {
	gates     [5]int
	energies  [5]float64
	index     int
	audioTime float64
}

// GateBankNode runs the five per-channel onset gates (C5) and tees the
// result toward the hit logger.
type GateBankNode struct {
	in     *Port[instrumentFrame]
	gates  [5]gate
	logger *telemetry.Logger
	names  [5]string
	Out    Port[gateFrame]
}

// NewGateBankNode wraps one gate per channel.
func NewGateBankNode(in *Port[instrumentFrame], gates [5]gate, logger *telemetry.Logger, names [5]string) *GateBankNode {
	return &GateBankNode{in: in, gates: gates, logger: logger, names: names}
}

func (n *GateBankNode) Name() string { return "gate-bank" }

func (n *GateBankNode) Tick() bool {
	if n.Out.Ready() {
		return false
	}
	f, ok := n.in.Recv()
	if !ok {
		return false
	}

	var gates [5]int
	for i := 0; i < 5; i++ {
		gates[i] = n.gates[i].Process(f.energies[i])
		if n.logger != nil {
			n.logger.LogHit(f.index, f.audioTime, n.names[i], float64(gates[i]))
		}
	}

	return n.Out.Send(gateFrame{gates: gates, energies: f.energies, index: f.index, audioTime: f.audioTime})
}

// predictionFrame carries one tick's predictions forward, or is empty when
// the predictor decided not to emit this frame.
type predictionFrame struct {
	predictions []dsp.InstrumentPrediction
	index       int
	audioTime   float64
}

// PredictorNode runs the Kalman/PLL tempo tracker (C6) and tees emitted
// predictions toward the hit logger.
type PredictorNode struct {
	in                  *Port[gateFrame]
	predictor           *dsp.Predictor
	dt                  float64
	periodicIntervalSec float64
	logger              *telemetry.Logger
	names               [5]string
	Out                 Port[predictionFrame]
}

// NewPredictorNode wraps predictor, consuming gate vectors from in.
func NewPredictorNode(in *Port[gateFrame], predictor *dsp.Predictor, dt, periodicIntervalSec float64, logger *telemetry.Logger, names [5]string) *PredictorNode {
	return &PredictorNode{in: in, predictor: predictor, dt: dt, periodicIntervalSec: periodicIntervalSec, logger: logger, names: names}
}

func (n *PredictorNode) Name() string { return "predictor" }

func (n *PredictorNode) Tick() bool {
	if n.Out.Ready() {
		return false
	}
	f, ok := n.in.Recv()
	if !ok {
		return false
	}

	preds := n.predictor.Step(f.gates, n.dt, n.periodicIntervalSec)
	if preds == nil {
		// No emission this frame is not a stall: the node did consume its
		// input, it simply has nothing to hand downstream.
		return true
	}

	for i := range preds {
		preds[i].Instrument = n.names[i]
		if n.logger != nil {
			for _, hit := range preds[i].Hits {
				n.logger.LogPrediction(f.index, f.audioTime, preds[i].Instrument,
					hit.TPredSec, hit.Confidence, hit.CILowSec, hit.CIHighSec, hit.HitIndex)
			}
		}
	}

	return n.Out.Send(predictionFrame{predictions: preds, index: f.index, audioTime: f.audioTime})
}

// LightingNode filters predictions into lighting commands (C7).
type LightingNode struct {
	in     *Port[predictionFrame]
	engine *lighting.Engine
	names  [5]string
	Out    Port[[]lighting.Command]
}

// NewLightingNode wraps engine, consuming predictions from in.
func NewLightingNode(in *Port[predictionFrame], engine *lighting.Engine, names [5]string) *LightingNode {
	return &LightingNode{in: in, engine: engine, names: names}
}

func (n *LightingNode) Name() string { return "lighting" }

func (n *LightingNode) Tick() bool {
	if n.Out.Ready() {
		return false
	}
	f, ok := n.in.Recv()
	if !ok {
		return false
	}
	cmds := n.engine.Process(f.audioTime, f.predictions, n.names[:])
	return n.Out.Send(cmds)
}

// PublisherNode is the sink: it forwards lighting commands to a publisher.
// Per §5, the publisher's send is non-blocking and errors are swallowed
// (logged), never propagated to the scheduler.
type PublisherNode struct {
	in  *Port[[]lighting.Command]
	pub *publish.Publisher
}

// NewPublisherNode wraps pub, consuming command batches from in.
func NewPublisherNode(in *Port[[]lighting.Command], pub *publish.Publisher) *PublisherNode {
	return &PublisherNode{in: in, pub: pub}
}

func (n *PublisherNode) Name() string { return "publisher" }

func (n *PublisherNode) Tick() bool {
	cmds, ok := n.in.Recv()
	if !ok {
		return false
	}
	for _, cmd := range cmds {
		if err := n.pub.Publish(cmd); err != nil {
			applog.Errorf("graph: publish failed: %v", err)
		}
	}
	return true
}

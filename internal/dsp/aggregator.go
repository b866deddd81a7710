// SPDX-License-Identifier: MIT
package dsp

import "math"

// instrumentLobe is one frequency-band contribution to an instrument's mask,
// with a flat Hann-tapered core between f1 and f2 weighted by w.
type instrumentLobe struct {
	f1, f2, w float64
}

// defaultInstrumentLobes mirrors the original implementation's hand-tuned
// kick/snare/clap/closed-hat/open-hat masks (instrument_sum.cpp), kept
// verbatim so the five-channel energy vectors reproduce it exactly.
var defaultInstrumentLobes = [5][]instrumentLobe{
	{{40, 75, 0.75}}, // kick: sub-bass fundamental only
	{ // snare
		{180, 280, 0.35},
		{350, 600, 0.10},
		{2000, 5000, 0.35},
		{6000, 10000, 0.20},
	},
	{ // clap
		{800, 1600, 0.30},
		{2000, 6000, 0.50},
		{6000, 10000, 0.20},
	},
	{ // closed hat
		{3000, 6000, 0.25},
		{7000, 12000, 0.55},
		{12000, 16000, 0.20},
	},
	{ // open hat / crash
		{3000, 6000, 0.25},
		{6000, 12000, 0.50},
		{12000, 16000, 0.25},
	},
}

const lobeRolloffFrac = 0.15

// InstrumentAggregator collapses a mel band energy vector into the five
// fixed instrument-energy channels (C4), via a weight matrix built once from
// the mel band centers and the lobe table above.
type InstrumentAggregator struct {
	weights [5][]float64 // weights[k][band]
	out     [5]float64
}

// NewInstrumentAggregator builds the aggregator's weight matrix for
// melBands filters spanning 0..nyquist Hz.
func NewInstrumentAggregator(melBands int, nyquist float64) *InstrumentAggregator {
	centers := melBandCentersHz(melBands, nyquist)

	a := &InstrumentAggregator{}
	for k := 0; k < 5; k++ {
		dest := make([]float64, melBands)
		for _, lobe := range defaultInstrumentLobes[k] {
			addHannLobe(dest, centers, lobe.f1, lobe.f2, lobe.w, lobeRolloffFrac)
		}
		normalizeWeights(dest)
		a.weights[k] = dest
	}
	return a
}

// melBandCentersHz returns the Hz center of each of numBands mel filters
// evenly spaced on the mel scale from 0 to nyquist, at
// mel0 + (i+0.5)/numBands * (melN-mel0). These are not the triangle peaks of
// MelFilterbank, which sit at (i+1)/(numBands+1) of the same mel range.
func melBandCentersHz(numBands int, nyquist float64) []float64 {
	centers := make([]float64, numBands)
	mel0 := hzToMel(0)
	melN := hzToMel(nyquist)
	for i := 0; i < numBands; i++ {
		m := mel0 + (melN-mel0)*(float64(i)+0.5)/float64(numBands)
		centers[i] = melToHz(m)
	}
	return centers
}

// addHannLobe adds a Hann-tapered lobe of height weight over [f1,f2] to
// dest, indexed by the band centers in centersHz. The lobe is flat in its
// core and raised-cosine tapered within rolloffFrac of each edge.
func addHannLobe(dest, centersHz []float64, f1, f2, weight, rolloffFrac float64) {
	if f2 <= f1 {
		return
	}
	span := f2 - f1
	edge := math.Min(span*rolloffFrac, span*0.49)
	if edge < 0 {
		edge = 0
	}
	core1 := f1 + edge
	core2 := f2 - edge

	for i, f := range centersHz {
		var w float64
		switch {
		case f >= core1 && f <= core2:
			w = 1.0
		case f >= f1 && f < core1:
			x := (f - f1) / math.Max(1e-9, edge)
			w = 0.5 * (1 - math.Cos(math.Pi*x))
		case f > core2 && f <= f2:
			x := (f2 - f) / math.Max(1e-9, edge)
			w = 0.5 * (1 - math.Cos(math.Pi*x))
		}
		dest[i] += weight * w
	}
}

func normalizeWeights(v []float64) {
	var s float64
	for _, x := range v {
		s += x
	}
	if s <= 0 {
		return
	}
	inv := 1.0 / s
	for i := range v {
		v[i] *= inv
	}
}

// Aggregate projects a mel band energy vector onto the five instrument
// channels and returns them as an array value ([kick, snare, clap, chat,
// ohc]); the caller receives its own copy.
func (a *InstrumentAggregator) Aggregate(bands []float64) [5]float64 {
	for k := 0; k < 5; k++ {
		w := a.weights[k]
		var s float64
		n := len(bands)
		if len(w) < n {
			n = len(w)
		}
		for b := 0; b < n; b++ {
			s += w[b] * bands[b]
		}
		a.out[k] = s
	}
	return a.out
}

// SPDX-License-Identifier: MIT
package dsp

import (
	"math"
	"testing"
)

func testPredictorParams() PredictorParams {
	return PredictorParams{
		MinBpm:                      60,
		MaxBpm:                      200,
		MinHitsForSeed:              8,
		HorizonSeconds:              2.0,
		MaxPredictionsPerInstrument: 2,
		ConfidenceThresholdMin:      0.0, // disabled for these tests; confidence is asserted directly
		QPeriod:                     1e-5,
		QPhase:                      1e-4,
		RBase:                       1e-3,
		ConfidenceDecayRate:         2.0,
	}
}

// TestPredictorSteady120BPM reproduces S1: a steady 120 BPM (IOI=0.5s) train
// of kick hits. After warmup, periodMedian must land in [0.495, 0.505] and
// the next projected hit must be within 5ms of the true next impulse.
func TestPredictorSteady120BPM(t *testing.T) {
	const sampleRate = 44100.0
	const hop = 256
	dt := hop / sampleRate
	ioi := 0.5

	p := NewPredictor(testPredictorParams())
	framesPerHit := int(ioi / dt)

	var lastEmit []InstrumentPrediction
	for hitN := 0; hitN < 20; hitN++ {
		for f := 0; f < framesPerHit; f++ {
			gates := [5]int{}
			if f == 0 {
				gates[0] = 1
			}
			if preds := p.Step(gates, dt, 0.15); preds != nil {
				lastEmit = preds
			}
		}
	}

	s := p.State(0)
	if !s.warmupComplete {
		t.Fatal("warmup never completed after 20 steady hits")
	}
	if s.periodMedian < 0.495 || s.periodMedian > 0.505 {
		t.Errorf("periodMedian = %v, want in [0.495, 0.505]", s.periodMedian)
	}

	if lastEmit == nil {
		t.Fatal("no prediction emitted")
	}
	kick := lastEmit[0]
	if len(kick.Hits) == 0 {
		t.Fatal("no hits projected for kick channel")
	}
	next := kick.Hits[0].TPredSec
	// The next true impulse is one IOI after the last hit time.
	wantNext := s.lastHitTime + ioi
	if diff := next - wantNext; diff > 0.005 || diff < -0.005 {
		t.Errorf("projected next hit = %v, want within 5ms of %v", next, wantNext)
	}
}

// TestPredictorSilentStreamStaysCold reproduces S4 for the predictor: with
// no hits ever observed, warmup never completes and no hits are projected.
func TestPredictorSilentStreamStaysCold(t *testing.T) {
	p := NewPredictor(testPredictorParams())
	dt := 256.0 / 44100.0
	for i := 0; i < int(2.0/dt); i++ {
		p.Step([5]int{}, dt, 0.15)
	}
	for ch := 0; ch < 5; ch++ {
		if p.State(ch).warmupComplete {
			t.Errorf("channel %d: warmup completed on a silent stream", ch)
		}
	}
}

// TestPredictorTempoDrift reproduces S2: a steady 120 BPM kick train for ten
// hits, then a ramp to 140 BPM over ten more hits. The tracked period must
// settle within 2% of the new 140 BPM period (IOI≈0.4286s) by the third hit
// into the steady new regime, and confidence must dip during the ramp before
// recovering past 0.5 once the tempo has settled.
func TestPredictorTempoDrift(t *testing.T) {
	const sampleRate = 44100.0
	const hop = 256
	dt := hop / sampleRate
	const ioiOld = 0.5         // 120 BPM
	const ioiNew = 60.0 / 140.0 // 140 BPM

	p := NewPredictor(testPredictorParams())

	// ten hits at the steady old tempo to warm up the tracker.
	for hitN := 0; hitN < 10; hitN++ {
		stepIOI(p, dt, ioiOld, 0.15)
	}

	s := p.State(0)
	if !s.warmupComplete {
		t.Fatal("warmup never completed after 10 steady hits")
	}

	minConfidenceDuringRamp := s.confidenceGlobal

	// ramp linearly from ioiOld to ioiNew over ten hits.
	for hitN := 0; hitN < 10; hitN++ {
		frac := float64(hitN+1) / 10.0
		ioi := ioiOld + (ioiNew-ioiOld)*frac
		stepIOI(p, dt, ioi, 0.15)
		if s.confidenceGlobal < minConfidenceDuringRamp {
			minConfidenceDuringRamp = s.confidenceGlobal
		}
	}

	// three more hits at the new steady tempo: period should track within 2%.
	var lastErrPct float64
	for hitN := 0; hitN < 3; hitN++ {
		stepIOI(p, dt, ioiNew, 0.15)
		lastErrPct = math.Abs(s.period-ioiNew) / ioiNew * 100.0
	}
	if lastErrPct > 2.0 {
		t.Errorf("period = %v after 3 hits in the new regime, want within 2%% of %v (err %.2f%%)",
			s.period, ioiNew, lastErrPct)
	}

	// a few more steady hits should let confidence recover past 0.5.
	for hitN := 0; hitN < 5; hitN++ {
		stepIOI(p, dt, ioiNew, 0.15)
	}
	if s.confidenceGlobal <= 0.5 {
		t.Errorf("confidenceGlobal = %v after the tempo settled, want > 0.5", s.confidenceGlobal)
	}
	if minConfidenceDuringRamp >= s.confidenceGlobal {
		t.Errorf("confidence never dipped during the tempo ramp (min %v, settled %v)",
			minConfidenceDuringRamp, s.confidenceGlobal)
	}
}

// stepIOI advances the predictor's channel-0 kick by exactly one hit spaced
// ioi seconds after the previous one, stepping silent frames in between.
func stepIOI(p *Predictor, dt, ioi, periodicIntervalSec float64) {
	framesPerHit := int(ioi / dt)
	for f := 0; f < framesPerHit; f++ {
		gates := [5]int{}
		if f == 0 {
			gates[0] = 1
		}
		p.Step(gates, dt, periodicIntervalSec)
	}
}

func TestWrapPhaseAndResidual(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{1.2, 0.2},
		{-0.3, 0.7},
		{0.5, 0.5},
	}
	for _, c := range cases {
		if got := wrapPhase(c.in); got < c.want-1e-9 || got > c.want+1e-9 {
			t.Errorf("wrapPhase(%v) = %v, want %v", c.in, got, c.want)
		}
	}

	if got := wrapPhaseResidual(0.6); got != -0.4 {
		t.Errorf("wrapPhaseResidual(0.6) = %v, want -0.4", got)
	}
}

func BenchmarkPredictorStep(b *testing.B) {
	p := NewPredictor(testPredictorParams())
	dt := 256.0 / 44100.0
	gates := [5]int{1, 0, 0, 0, 0}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		p.Step(gates, dt, 0.15)
	}
}

// SPDX-License-Identifier: MIT
package dsp

import "testing"

func testGateParams() GateParams {
	return GateParams{
		Method:         NoveltyDefault,
		K:              0.5,
		Refractory:     8,
		Warmup:         8,
		SmoothWindow:   4,
		ODFWindow:      16,
		FallbackThresh: 0.05,
	}
}

// TestOnsetGateRefractoryHolds reproduces S3: two impulses one frame apart
// with refractory=8 produce exactly one hit, then silence for 7 frames.
func TestOnsetGateRefractoryHolds(t *testing.T) {
	g := NewOnsetGate(testGateParams())

	// Warm up on zeros.
	for i := 0; i < 8; i++ {
		g.Process(0)
	}

	hits := 0
	results := make([]int, 0, 10)
	for i := 0; i < 2; i++ {
		h := g.Process(1.0)
		results = append(results, h)
		hits += h
	}
	for i := 0; i < 7; i++ {
		h := g.Process(1.0)
		results = append(results, h)
		hits += h
	}

	if hits != 1 {
		t.Errorf("total hits = %d, want exactly 1 (refractory should suppress the rest), got sequence %v", hits, results)
	}
}

// TestOnsetGateSilentStreamNeverFires reproduces S4 for a single channel:
// an all-zero input stream never fires and never panics.
func TestOnsetGateSilentStreamNeverFires(t *testing.T) {
	g := NewOnsetGate(testGateParams())
	for i := 0; i < 44100*2/256; i++ {
		if h := g.Process(0); h != 0 {
			t.Fatalf("frame %d: silent stream fired a hit", i)
		}
	}
}

func TestOnsetGateDisabledBeforeWarmup(t *testing.T) {
	p := testGateParams()
	p.Warmup = 100
	g := NewOnsetGate(p)
	for i := 0; i < 50; i++ {
		if h := g.Process(10.0); h != 0 {
			t.Fatalf("frame %d: gate fired before warmup completed", i)
		}
	}
}

func TestMedianMADKnownValues(t *testing.T) {
	g := NewOnsetGate(testGateParams())
	g.odfThreshHistory = []float64{1, 2, 3, 4, 5, 6, 7, 8}
	m, mad := g.medianMAD()
	if m != 4.5 {
		t.Errorf("median = %v, want 4.5", m)
	}
	if mad <= 0 {
		t.Errorf("mad = %v, want > 0", mad)
	}
}

func TestQuantileGateArmsAndFires(t *testing.T) {
	g := NewQuantileGate(QuantileGateParams{QHi: 0.98, QLo: 0.80, Refractory: 4, Warmup: 10})

	// Feed a baseline of small values to build the quantile estimators, then
	// one large spike followed by a drop back to baseline.
	hits := 0
	for i := 0; i < 30; i++ {
		hits += g.Process(0.1)
	}
	hits += g.Process(10.0) // spike arms
	hits += g.Process(0.1)  // drop fires

	if hits == 0 {
		t.Error("expected the quantile gate to fire at least once after an arm/drop sequence")
	}
}

func BenchmarkOnsetGateProcess(b *testing.B) {
	g := NewOnsetGate(testGateParams())
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		g.Process(1.0)
	}
}

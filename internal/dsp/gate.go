// SPDX-License-Identifier: MIT
package dsp

import (
	"math"
	"sort"
)

// madScale is the constant that turns a median absolute deviation into a
// consistent estimator of standard deviation under a Gaussian assumption.
const madScale = 1.4826

// NoveltyMethod selects how the onset gate's novelty function is derived
// from the raw channel energy.
type NoveltyMethod int

const (
	NoveltyDefault NoveltyMethod = iota
	NoveltyHFC                   // alias for flux in this single-scalar formulation
	NoveltyFlux
	NoveltyRMS
)

// ParseNoveltyMethod maps a config string to a NoveltyMethod, clamping
// unknown names to NoveltyDefault per §7.
func ParseNoveltyMethod(s string) NoveltyMethod {
	switch s {
	case "hfc":
		return NoveltyHFC
	case "flux":
		return NoveltyFlux
	case "rms":
		return NoveltyRMS
	default:
		return NoveltyDefault
	}
}

// GateParams configures one channel's OnsetGate.
type GateParams struct {
	Method         NoveltyMethod
	K              float64 // threshold multiplier
	Refractory     int     // frames
	Warmup         int     // frames
	SmoothWindow   int
	ODFWindow      int
	FallbackThresh float64
}

// OnsetGate implements the causal, rising-edge, MAD-adaptive percussive
// onset detector for one instrument channel (C5), following §4.3 exactly.
type OnsetGate struct {
	p GateParams

	odfHistory      []float64 // capacity SmoothWindow, oldest first
	odfThreshHistory []float64 // capacity ODFWindow, oldest first
	lastRaw         float64
	haveLastRaw     bool

	refCount         int
	framesSeen       int
	prevSmoothed     float64
	wasAbove         bool
	detectionEnabled bool

	sortScratch []float64 // reused by medianMAD to avoid per-frame allocation
}

// NewOnsetGate constructs a gate with the given parameters.
func NewOnsetGate(p GateParams) *OnsetGate {
	if p.SmoothWindow <= 0 {
		p.SmoothWindow = 1
	}
	if p.ODFWindow <= 0 {
		p.ODFWindow = 8
	}
	return &OnsetGate{
		p:                p,
		odfHistory:       make([]float64, 0, p.SmoothWindow),
		odfThreshHistory: make([]float64, 0, p.ODFWindow),
		sortScratch:      make([]float64, 0, p.ODFWindow),
	}
}

// Process consumes one frame's channel energy x and returns hit ∈ {0,1}.
func (g *OnsetGate) Process(x float64) int {
	g.framesSeen++

	if g.refCount > 0 {
		g.refCount--
	}

	// Step 1: novelty.
	var v float64
	switch g.p.Method {
	case NoveltyRMS:
		v = x
	default: // hfc, flux, default all reduce to the same rectified difference here
		if g.haveLastRaw {
			v = math.Max(0, x-g.lastRaw)
		}
	}
	g.lastRaw = x
	g.haveLastRaw = true

	// Step 2: smooth.
	g.odfHistory = appendCapped(g.odfHistory, v, g.p.SmoothWindow)
	s := mean(g.odfHistory)

	// Step 3: threshold history.
	g.odfThreshHistory = appendCapped(g.odfThreshHistory, s, g.p.ODFWindow)

	// Step 4: warmup.
	if g.framesSeen >= g.p.Warmup {
		g.detectionEnabled = true
	}

	hit := 0
	if g.detectionEnabled {
		var T float64
		if len(g.odfThreshHistory) >= 8 {
			m, mad := g.medianMAD()
			T = m + g.p.K*mad
		} else {
			T = g.p.FallbackThresh
		}

		above := s > T
		rising := s >= g.prevSmoothed
		if g.refCount == 0 && above && !g.wasAbove && rising {
			hit = 1
			g.refCount = g.p.Refractory
		}
		g.wasAbove = above
		g.prevSmoothed = s
	}

	return hit
}

// medianMAD computes the median and the 1.4826-scaled median absolute
// deviation of odfThreshHistory, floored at 1e-6 to avoid a degenerate
// zero-width threshold band.
func (g *OnsetGate) medianMAD() (median, mad float64) {
	n := len(g.odfThreshHistory)
	g.sortScratch = g.sortScratch[:0]
	g.sortScratch = append(g.sortScratch, g.odfThreshHistory...)
	sort.Float64s(g.sortScratch)
	median = percentileSorted(g.sortScratch)

	devs := make([]float64, n)
	for i, v := range g.odfThreshHistory {
		devs[i] = math.Abs(v - median)
	}
	sort.Float64s(devs)
	mad = madScale * percentileSorted(devs)
	if mad < 1e-6 {
		mad = 1e-6
	}
	return median, mad
}

func percentileSorted(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func appendCapped(buf []float64, v float64, cap int) []float64 {
	buf = append(buf, v)
	if len(buf) > cap {
		buf = buf[len(buf)-cap:]
	}
	return buf
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

// p2Marker is one quantile estimator state in the P² (5-marker) online
// algorithm: a running approximation of a single quantile without storing
// the full sample history.
type p2Marker struct {
	q          float64
	initilized bool
	m, n, np, dn [5]float64
	seed       []float64
}

func newP2Marker(q float64) *p2Marker {
	return &p2Marker{q: q}
}

func (p *p2Marker) update(x float64) {
	if !p.initilized {
		p.seed = append(p.seed, x)
		if len(p.seed) == 5 {
			p.initFromFive()
			p.seed = nil
		}
		return
	}
	var k int
	switch {
	case x < p.m[0]:
		p.m[0] = x
		k = 0
	case x >= p.m[4]:
		p.m[4] = x
		k = 3
	default:
		for k = 0; k < 4; k++ {
			if x < p.m[k+1] {
				break
			}
		}
	}
	for i := 0; i < 5; i++ {
		if i > k {
			p.n[i]++
		}
	}
	for i := 0; i < 5; i++ {
		p.np[i] += p.dn[i]
	}
	for i := 1; i <= 3; i++ {
		d := p.np[i] - p.n[i]
		if (d >= 1 && p.n[i+1]-p.n[i] > 1) || (d <= -1 && p.n[i]-p.n[i-1] > 1) {
			di := 1.0
			if d < 0 {
				di = -1.0
			}
			mPar := p.parabolic(i)
			var bounded float64
			if mPar > p.m[i-1] && mPar < p.m[i+1] {
				bounded = mPar
			} else {
				bounded = p.linear(i, int(di))
			}
			p.m[i] = bounded
			p.n[i] += di
		}
	}
}

func (p *p2Marker) initFromFive() {
	sorted := append([]float64(nil), p.seed...)
	sort.Float64s(sorted)
	for i := 0; i < 5; i++ {
		p.m[i] = sorted[i]
		p.n[i] = float64(i + 1)
	}
	p.np[0], p.np[1], p.np[2], p.np[3], p.np[4] = 1, 1+2*p.q, 1+4*p.q, 3+2*p.q, 5
	p.dn[0], p.dn[1], p.dn[2], p.dn[3], p.dn[4] = 0, p.q/2, p.q, (1+p.q)/2, 1
	p.initilized = true
}

func (p *p2Marker) parabolic(i int) float64 {
	a := (p.n[i] - p.n[i-1] + (p.n[i+1] - p.n[i])) *
		((p.m[i+1]-p.m[i])/(p.n[i+1]-p.n[i]) -
			(p.m[i]-p.m[i-1])/(p.n[i]-p.n[i-1]))
	return p.m[i] + a/(p.n[i+1]-p.n[i-1])
}

func (p *p2Marker) linear(i, di int) float64 {
	return p.m[i] + float64(di)*(p.m[i+di]-p.m[i])/(p.n[i+di]-p.n[i])
}

func (p *p2Marker) value() float64 {
	return p.m[2]
}

// QuantileGateParams configures a QuantileGate.
type QuantileGateParams struct {
	QHi, QLo   float64
	Refractory int
	Warmup     int
}

// QuantileGate is the P²-quantile arm/fire onset detector (a supplement to
// the median/MAD gate): it arms once the novelty exceeds the tracked QHi
// quantile, then fires when it subsequently drops below QLo.
type QuantileGate struct {
	p        QuantileGateParams
	hi, lo   *p2Marker
	armed    bool
	refCount int
	seen     int
}

// NewQuantileGate constructs a P²-quantile onset gate.
func NewQuantileGate(p QuantileGateParams) *QuantileGate {
	return &QuantileGate{
		p:  p,
		hi: newP2Marker(p.QHi),
		lo: newP2Marker(p.QLo),
	}
}

// Process consumes one frame's novelty value and returns hit ∈ {0,1}.
func (g *QuantileGate) Process(x float64) int {
	g.seen++
	g.hi.update(x)
	g.lo.update(x)

	if g.refCount > 0 {
		g.refCount--
	}

	hit := 0
	if g.seen > g.p.Warmup && g.hi.initilized && g.lo.initilized {
		thi, tlo := g.hi.value(), g.lo.value()
		if !g.armed && g.refCount == 0 && x > thi {
			g.armed = true
		}
		if g.armed && x < tlo {
			hit = 1
			g.armed = false
			g.refCount = g.p.Refractory
		}
	}
	return hit
}

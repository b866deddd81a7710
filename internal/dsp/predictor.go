// SPDX-License-Identifier: MIT
package dsp

import (
	"math"
	"sort"
)

const maxHitHistory = 20

// PredictorParams configures one channel's Kalman/PLL tempo+phase tracker.
type PredictorParams struct {
	MinBpm                      float64
	MaxBpm                      float64
	MinHitsForSeed              int
	HorizonSeconds              float64
	MaxPredictionsPerInstrument int
	ConfidenceThresholdMin      float64
	QPeriod                     float64
	QPhase                      float64
	RBase                       float64
	ConfidenceDecayRate         float64
}

// InstrumentState is one channel's running tempo/phase estimate (C6). Period
// and phase are float64, as are all fields of the prediction output types
// below.
type InstrumentState struct {
	hitTimes       []float64 // sliding window, oldest first, capacity maxHitHistory
	ioiBuffer      []float64
	hitsSeen       int
	lastHitTime    float64
	warmupComplete bool

	period, phase       float64
	p00, p01, p11       float64 // 2x2 covariance [[p00,p01],[p01,p11]]
	periodMedian, periodMAD float64
	confidenceGlobal     float64
}

// PredictionHit is one projected future onset for an instrument channel.
type PredictionHit struct {
	TPredSec             float64
	CILowSec, CIHighSec  float64
	Confidence           float64
	HitIndex             int
}

// InstrumentPrediction bundles a channel's current tempo estimate with its
// projected hits, mirroring the Prediction Output data model (§3).
type InstrumentPrediction struct {
	Instrument       string
	TempoBpm         float64
	PeriodSec        float64
	Phase            float64
	ConfidenceGlobal float64
	WarmupComplete   bool
	Hits             []PredictionHit
}

// Predictor tracks tempo and phase independently for all five channels and
// projects upcoming hits over a short horizon (C6).
type Predictor struct {
	params PredictorParams
	states [5]*InstrumentState

	frameCount      int
	frameTimeSec    float64
	lastEmissionSec float64
}

// NewPredictor constructs a predictor with empty per-channel state.
func NewPredictor(p PredictorParams) *Predictor {
	pr := &Predictor{params: p}
	for i := range pr.states {
		pr.states[i] = &InstrumentState{}
	}
	return pr
}

// minMaxPeriod returns the period bounds (seconds) implied by the BPM range.
func (p *Predictor) minMaxPeriod() (minPeriod, maxPeriod float64) {
	return 60.0 / p.params.MaxBpm, 60.0 / p.params.MinBpm
}

// Step advances the predictor by one frame (dt = hopSize/sampleRate),
// consuming the 5-element gate vector and returning the emitted predictions
// (nil if no emission was due this frame — emission happens on any hit, or
// after periodicIntervalSec of silence, matching the original cadence).
func (p *Predictor) Step(gates [5]int, dt float64, periodicIntervalSec float64) []InstrumentPrediction {
	p.frameTimeSec = float64(p.frameCount) * dt

	anyHit := false
	for i := 0; i < 5; i++ {
		hit := gates[i] != 0
		if hit {
			anyHit = true
		}
		p.kalmanPredict(i, dt)
		if hit {
			p.updateInstrumentState(i, p.frameTimeSec)
		}
	}

	elapsed := p.frameTimeSec - p.lastEmissionSec
	shouldEmit := anyHit || elapsed >= periodicIntervalSec

	p.frameCount++

	if !shouldEmit {
		return nil
	}
	p.lastEmissionSec = p.frameTimeSec

	out := make([]InstrumentPrediction, 5)
	for i := 0; i < 5; i++ {
		out[i] = p.predictionFor(i)
	}
	return out
}

func (p *Predictor) predictionFor(idx int) InstrumentPrediction {
	s := p.states[idx]
	pred := InstrumentPrediction{
		PeriodSec:        s.period,
		Phase:            s.phase,
		ConfidenceGlobal: s.confidenceGlobal,
		WarmupComplete:   s.warmupComplete,
	}
	if s.period > 1e-6 {
		pred.TempoBpm = 60.0 / s.period
	}
	pred.Hits = p.predictHits(idx)
	return pred
}

func (p *Predictor) kalmanPredict(idx int, dt float64) {
	s := p.states[idx]
	if !s.warmupComplete {
		return
	}

	s.p00 += p.params.QPeriod * dt

	if s.period > 1e-6 {
		s.phase = wrapPhase(s.phase + dt/s.period)
	}

	dPhaseDPeriod := -dt / (s.period * s.period)
	s.p11 += p.params.QPhase*dt + dPhaseDPeriod*dPhaseDPeriod*s.p00
	s.p01 += dPhaseDPeriod * s.p00
}

func (p *Predictor) updateInstrumentState(idx int, currentTime float64) {
	s := p.states[idx]

	s.hitTimes = append(s.hitTimes, currentTime)
	s.lastHitTime = currentTime
	s.hitsSeen++
	if len(s.hitTimes) > maxHitHistory {
		s.hitTimes = s.hitTimes[1:]
	}

	if len(s.hitTimes) >= 2 {
		p.updateIOIStatistics(idx)

		if !s.warmupComplete && s.hitsSeen >= p.params.MinHitsForSeed &&
			len(s.ioiBuffer) >= p.params.MinHitsForSeed-1 {
			s.warmupComplete = true
			s.period = s.periodMedian
			s.phase = 0
			s.p00 = s.periodMAD * s.periodMAD
			s.p11 = 0.01
			s.p01 = 0
		}
	}

	if s.warmupComplete {
		phaseResidual := wrapPhaseResidual(s.phase - 0.0)
		p.kalmanUpdate(idx, phaseResidual)

		minPeriod, maxPeriod := p.minMaxPeriod()
		s.period = math.Max(minPeriod, math.Min(maxPeriod, s.period))
	}
}

func (p *Predictor) kalmanUpdate(idx int, phaseResidual float64) {
	s := p.states[idx]

	const h0, h1 = 0.0, 1.0
	r := p.params.RBase * (1.0 + s.periodMAD/s.period)

	sInnov := h0*h0*s.p00 + 2*h0*h1*s.p01 + h1*h1*s.p11 + r
	if sInnov < 1e-9 {
		return
	}

	k0 := (h0*s.p00 + h1*s.p01) / sInnov
	k1 := (h0*s.p01 + h1*s.p11) / sInnov

	s.period -= k0 * phaseResidual
	s.phase -= k1 * phaseResidual
	s.phase = wrapPhase(s.phase)

	p00New := s.p00 - k0*sInnov*k0
	p01New := s.p01 - k0*sInnov*k1
	p11New := s.p11 - k1*sInnov*k1

	s.p00 = math.Max(1e-6, p00New)
	s.p01 = p01New
	s.p11 = math.Max(1e-6, p11New)

	// Damped period correction when phase is consistently off, §4.4.
	if math.Abs(phaseResidual) > 0.1 {
		periodCorrection := -phaseResidual * s.period * 0.1
		s.period += periodCorrection
	}
}

func (p *Predictor) updateIOIStatistics(idx int) {
	s := p.states[idx]
	if len(s.hitTimes) < 2 {
		return
	}

	minPeriod, maxPeriod := p.minMaxPeriod()
	s.ioiBuffer = s.ioiBuffer[:0]
	for i := 1; i < len(s.hitTimes); i++ {
		ioi := s.hitTimes[i] - s.hitTimes[i-1]
		if ioi >= minPeriod && ioi <= maxPeriod*4 {
			s.ioiBuffer = append(s.ioiBuffer, ioi)
		}
	}

	if len(s.ioiBuffer) >= 2 {
		s.periodMedian = median(s.ioiBuffer)
		s.periodMAD = madOf(s.ioiBuffer, s.periodMedian)
	}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) * 0.5
	}
	return sorted[mid]
}

func madOf(values []float64, med float64) float64 {
	if len(values) == 0 {
		return 0
	}
	devs := make([]float64, len(values))
	for i, v := range values {
		devs[i] = math.Abs(v - med)
	}
	return madScale * median(devs)
}

func wrapPhase(phase float64) float64 {
	for phase >= 1.0 {
		phase -= 1.0
	}
	for phase < 0.0 {
		phase += 1.0
	}
	return phase
}

func wrapPhaseResidual(residual float64) float64 {
	for residual >= 0.5 {
		residual -= 1.0
	}
	for residual < -0.5 {
		residual += 1.0
	}
	return residual
}

func (p *Predictor) predictHits(idx int) []PredictionHit {
	s := p.states[idx]
	if !s.warmupComplete || s.period < 1e-6 {
		return nil
	}

	var hits []PredictionHit
	phaseRemaining := 1.0 - s.phase
	tNext := p.frameTimeSec + phaseRemaining*s.period

	for hitIndex := 1; hitIndex <= p.params.MaxPredictionsPerInstrument &&
		tNext <= p.frameTimeSec+p.params.HorizonSeconds; hitIndex++ {

		confidence := p.computeConfidence(idx)
		uncertainty := p.computeTimeUncertainty(idx)

		if confidence >= p.params.ConfidenceThresholdMin {
			hits = append(hits, PredictionHit{
				TPredSec:   tNext,
				CILowSec:   tNext - 1.96*uncertainty,
				CIHighSec:  tNext + 1.96*uncertainty,
				Confidence: confidence,
				HitIndex:   hitIndex,
			})
		}

		tNext += s.period
	}
	return hits
}

func (p *Predictor) computeConfidence(idx int) float64 {
	s := p.states[idx]

	cIOI := 0.0
	if s.period > 1e-6 && s.periodMAD > 0 {
		cIOI = math.Max(0, math.Min(1, 1.0-s.periodMAD/s.period))
	}

	cPhase := 0.0
	if s.p11 > 0 {
		phaseStd := math.Sqrt(s.p11)
		cPhase = math.Max(0, math.Min(1, 1.0-phaseStd*10.0))
	}

	cRecency := 1.0
	if s.lastHitTime > 0 && s.period > 1e-6 {
		dt := p.frameTimeSec - s.lastHitTime
		cRecency = math.Exp(-dt / (p.params.ConfidenceDecayRate * s.period))
	}

	confidence := 0.4*cPhase + 0.3*cIOI + 0.3*cRecency
	s.confidenceGlobal = confidence
	return confidence
}

func (p *Predictor) computeTimeUncertainty(idx int) float64 {
	s := p.states[idx]

	phaseStd := math.Sqrt(s.p11)
	periodStd := math.Sqrt(s.p00)

	a := s.phase * periodStd
	b := s.period * phaseStd
	timeUncertainty := math.Sqrt(a*a + b*b)

	if s.periodMAD > 0 {
		timeUncertainty = math.Sqrt(timeUncertainty*timeUncertainty + 0.25*s.periodMAD*s.periodMAD)
	}

	return math.Max(0.001, timeUncertainty)
}

// State exposes the internal state of channel idx for diagnostics and tests.
func (p *Predictor) State(idx int) *InstrumentState {
	return p.states[idx]
}

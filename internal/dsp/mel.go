// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// hzToMel and melToHz use the same HTK-style formula as the original
// instrument_sum.cpp, so band centers line up with the aggregator lobes.
func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// MelFilterbank projects a linear magnitude spectrum onto melBands
// triangular filters spanning 0..nyquist (C3).
type MelFilterbank struct {
	weights *mat.Dense // melBands x numFFTBins
	melBands int
	fftBins  int
	out      []float64
}

// NewMelFilterbank builds a triangular mel filterbank for a spectrum of
// fftBins bins (frameSize/2+1) sampled at sampleRate, with melBands filters
// spanning 0 Hz to the Nyquist frequency.
func NewMelFilterbank(fftBins, melBands int, sampleRate float64) (*MelFilterbank, error) {
	if fftBins <= 1 || melBands <= 0 {
		return nil, fmt.Errorf("dsp: invalid filterbank dimensions (fftBins=%d, melBands=%d)", fftBins, melBands)
	}
	nyquist := sampleRate / 2.0
	frameSize := (fftBins - 1) * 2

	binHz := func(i int) float64 { return float64(i) * sampleRate / float64(frameSize) }

	melMin := hzToMel(0)
	melMax := hzToMel(nyquist)
	// melBands+2 edge points give melBands overlapping triangles.
	edgesHz := make([]float64, melBands+2)
	for i := range edgesHz {
		m := melMin + (melMax-melMin)*float64(i)/float64(melBands+1)
		edgesHz[i] = melToHz(m)
	}

	w := mat.NewDense(melBands, fftBins, nil)
	for band := 0; band < melBands; band++ {
		lo, center, hi := edgesHz[band], edgesHz[band+1], edgesHz[band+2]
		for bin := 0; bin < fftBins; bin++ {
			f := binHz(bin)
			var v float64
			switch {
			case f >= lo && f <= center && center > lo:
				v = (f - lo) / (center - lo)
			case f > center && f <= hi && hi > center:
				v = (hi - f) / (hi - center)
			}
			if v > 0 {
				w.Set(band, bin, v)
			}
		}
	}

	return &MelFilterbank{
		weights:  w,
		melBands: melBands,
		fftBins:  fftBins,
		out:      make([]float64, melBands),
	}, nil
}

// Apply projects magnitudes (length fftBins) onto the filterbank, returning
// a reused internal buffer of length melBands. Callers that need to retain
// the result across calls must copy it.
func (m *MelFilterbank) Apply(magnitudes []float64) ([]float64, error) {
	if len(magnitudes) != m.fftBins {
		return nil, fmt.Errorf("dsp: expected %d magnitude bins, got %d", m.fftBins, len(magnitudes))
	}
	in := mat.NewVecDense(m.fftBins, magnitudes)
	outVec := mat.NewVecDense(m.melBands, m.out)
	outVec.MulVec(m.weights, in)
	return m.out, nil
}

// NumBands returns the number of mel filters.
func (m *MelFilterbank) NumBands() int {
	return m.melBands
}

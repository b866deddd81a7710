// SPDX-License-Identifier: MIT
//
// Package dsp implements the causal streaming signal chain: windowed FFT
// magnitude spectrum (C2), mel filterbank (C3), instrument aggregation (C4),
// adaptive onset gate (C5), and the Kalman/PLL predictor (C6). It is
// adapted from the teacher's internal/analysis/fft.go, with the window
// enum and FFT workspace kept but the rest of the chain built fresh.
package dsp

import (
	"fmt"
	"math/cmplx"
	"strings"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"beatlight/pkg/bitint"
)

// WindowFunc selects the FFT window applied before each transform.
type WindowFunc int

const (
	Hann WindowFunc = iota
	Hamming
	Blackman
	BlackmanNuttall
	BartlettHann
	Lanczos
	Nuttall
)

// ParseWindowFunc converts a case-insensitive name to a WindowFunc, falling
// back to Hann (and reporting the error) on an unknown name — configuration
// out of range is clamped, never fatal (§7).
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "hann", "hanning", "":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "bartletthann":
		return BartlettHann, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("dsp: unknown window function %q, defaulting to hann", name)
	}
}

func applyWindow(coeffs []float64, w WindowFunc) {
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch w {
	case Hamming:
		window.Hamming(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		window.Hann(coeffs)
	}
}

// spectrumWorkspace holds pre-allocated buffers so SpectrumProcessor.Process
// performs no per-frame allocations in the hot path.
type spectrumWorkspace struct {
	input     []float64
	fftOutput []complex128
	magnitude []float64
	window    []float64
}

// SpectrumProcessor turns one windowed frame of samples into a magnitude
// spectrum (C2). It is the streaming graph's frame-cutter/windowing/FFT
// stage, built on gonum's real FFT.
type SpectrumProcessor struct {
	fft        *fourier.FFT
	frameSize  int
	sampleRate float64
	mu         sync.RWMutex
	ws         spectrumWorkspace
}

// NewSpectrumProcessor creates a processor for frameSize-sample frames
// (must be a power of two, as required by gonum's FFT) at sampleRate Hz,
// windowed with w.
func NewSpectrumProcessor(frameSize int, sampleRate float64, w WindowFunc) (*SpectrumProcessor, error) {
	if !bitint.IsPowerOfTwo(frameSize) {
		return nil, fmt.Errorf("dsp: frame size must be a power of 2, got %d", frameSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("dsp: sample rate must be positive, got %f", sampleRate)
	}

	coeffs := make([]float64, frameSize)
	applyWindow(coeffs, w)

	outLen := frameSize/2 + 1
	return &SpectrumProcessor{
		fft:        fourier.NewFFT(frameSize),
		frameSize:  frameSize,
		sampleRate: sampleRate,
		ws: spectrumWorkspace{
			input:     make([]float64, frameSize),
			fftOutput: make([]complex128, outLen),
			magnitude: make([]float64, outLen),
			window:    coeffs,
		},
	}, nil
}

// Process windows frame (which must have length frameSize) and computes its
// magnitude spectrum. Safe to call once per hop from the DSP thread only;
// GetMagnitudes/GetMagnitudesInto may be called concurrently by readers.
func (p *SpectrumProcessor) Process(frame []float32) {
	p.mu.Lock()
	n := len(frame)
	for i := 0; i < p.frameSize; i++ {
		if i < n {
			p.ws.input[i] = float64(frame[i]) * p.ws.window[i]
		} else {
			p.ws.input[i] = 0
		}
	}
	p.fft.Coefficients(p.ws.fftOutput, p.ws.input)
	for i, c := range p.ws.fftOutput {
		p.ws.magnitude[i] = cmplx.Abs(c)
	}
	p.mu.Unlock()
}

// GetMagnitudesInto copies the latest magnitudes into dest, which must have
// length frameSize/2+1. Avoids allocation for hot-path readers.
func (p *SpectrumProcessor) GetMagnitudesInto(dest []float64) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(dest) != len(p.ws.magnitude) {
		return fmt.Errorf("dsp: destination length %d != %d", len(dest), len(p.ws.magnitude))
	}
	copy(dest, p.ws.magnitude)
	return nil
}

// GetMagnitudes returns a copy of the latest magnitude spectrum.
func (p *SpectrumProcessor) GetMagnitudes() []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]float64, len(p.ws.magnitude))
	copy(out, p.ws.magnitude)
	return out
}

// FrequencyForBin returns the center frequency in Hz of bin i.
func (p *SpectrumProcessor) FrequencyForBin(i int) float64 {
	if i < 0 || i >= len(p.ws.magnitude) {
		return 0
	}
	return float64(i) * (p.sampleRate / float64(p.frameSize))
}

// NumBins returns the number of magnitude bins (frameSize/2 + 1).
func (p *SpectrumProcessor) NumBins() int {
	return len(p.ws.magnitude)
}

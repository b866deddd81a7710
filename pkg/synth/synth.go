// SPDX-License-Identifier: MIT
//
// Package synth generates synthetic test signals: tone/impulse-train
// waveforms for unit tests and benchmarks, and WAV fixture files for
// integration tests. It is adapted from the teacher's pkg/utils test
// helpers, generalized from fixed 440Hz tone generation to parametrized
// tones and percussive impulse trains, and extended with a WAV writer
// since live recording is out of scope but fixture generation is not.
package synth

import (
	"io"
	"math"
	"math/rand"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SineWave returns size samples of a pure tone at frequency Hz, sampled at
// sampleRate, scaled to amplitude (0..1].
func SineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buf := make([]float32, size)
	for i := range buf {
		t := float64(i) / sampleRate
		buf[i] = float32(math.Sin(2*math.Pi*frequency*t) * amplitude)
	}
	return buf
}

// ImpulseTrain synthesizes durationSec seconds of audio at sampleRate
// containing percussive impulses (short exponentially-decaying bursts
// centered at decayHz, to land in a specific instrument's passband) spaced
// ioiSec apart, optionally drifting linearly to finalIOISec by the end of
// the signal. This is the S1/S2 fixture generator: a steady or
// tempo-ramping train of synthetic "kick" hits.
func ImpulseTrain(durationSec, sampleRate, ioiSec, finalIOISec, decayHz float64) []float32 {
	n := int(durationSec * sampleRate)
	buf := make([]float32, n)

	const burstSamples = 512 // ~11.6ms at 44100Hz, long enough to register across a 1024-sample frame
	t := 0.0
	for t < durationSec {
		start := int(t * sampleRate)
		for i := 0; i < burstSamples && start+i < n; i++ {
			tt := float64(i) / sampleRate
			envelope := math.Exp(-tt * 80)
			buf[start+i] += float32(math.Sin(2*math.Pi*decayHz*tt) * envelope)
		}

		frac := t / durationSec
		ioi := ioiSec + (finalIOISec-ioiSec)*frac
		t += ioi
	}
	return buf
}

// WhiteNoise returns size samples of uniform white noise in [-amplitude, amplitude],
// seeded deterministically so tests are reproducible.
func WhiteNoise(size int, amplitude float64, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	buf := make([]float32, size)
	for i := range buf {
		buf[i] = float32((rng.Float64()*2 - 1) * amplitude)
	}
	return buf
}

// WriteWAV encodes samples as a mono 16-bit PCM WAV fixture to w. This is a
// read-only test-fixture generator: the pipeline never records live audio
// (an explicit non-goal). The capture path reads only from PortAudio and
// does not consume WAV files.
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)

	ints := make([]int, len(samples))
	for i, s := range samples {
		v := int(s * math.MaxInt16)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		}
		if v < -math.MaxInt16-1 {
			v = -math.MaxInt16 - 1
		}
		ints[i] = v
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

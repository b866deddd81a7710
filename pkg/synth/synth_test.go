// SPDX-License-Identifier: MIT
package synth

import (
	"os"
	"testing"
)

func TestImpulseTrainProducesPeriodicEnergy(t *testing.T) {
	buf := ImpulseTrain(2.0, 44100, 0.5, 0.5, 60)
	if len(buf) != int(2.0*44100) {
		t.Fatalf("len = %d, want %d", len(buf), int(2.0*44100))
	}

	nonZero := 0
	for _, v := range buf {
		if v != 0 {
			nonZero++
		}
	}
	if nonZero == 0 {
		t.Error("impulse train is entirely silent")
	}
}

func TestSineWaveAmplitudeBounded(t *testing.T) {
	buf := SineWave(1000, 44100, 440, 0.5)
	for i, v := range buf {
		if v > 0.51 || v < -0.51 {
			t.Fatalf("sample %d = %v, exceeds amplitude bound", i, v)
		}
	}
}

func TestWriteWAVProducesValidHeader(t *testing.T) {
	samples := SineWave(4410, 44100, 440, 0.5)

	f, err := os.CreateTemp(t.TempDir(), "fixture-*.wav")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	if err := WriteWAV(f, samples, 44100); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() < 44 {
		t.Errorf("written WAV too small to contain a header: %d bytes", info.Size())
	}

	header := make([]byte, 4)
	if _, err := f.ReadAt(header, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(header) != "RIFF" {
		t.Errorf("missing RIFF chunk id, got %q", header)
	}
}

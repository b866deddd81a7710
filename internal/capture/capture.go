// SPDX-License-Identifier: MIT
//
// Package capture owns the audio input device (C1's producer side),
// grounded on the teacher's internal/audio device enumeration and stream
// engine, pushing captured samples into a ring.Buffer instead of running
// its own FFT/gate/recording pipeline inline.
package capture

import (
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"

	applog "beatlight/internal/log"
	"beatlight/internal/ring"
)

// Device describes one available audio input device.
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// Initialize starts the PortAudio subsystem. Must be paired with Terminate.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("capture: failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate shuts down the PortAudio subsystem.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("capture: failed to terminate PortAudio: %w", err)
	}
	return nil
}

// ListDevices returns every input-capable device PortAudio reports.
func ListDevices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("capture: failed to enumerate devices: %w", err)
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		}
	}
	return devices, nil
}

// FindDeviceBySubstring returns the index of the first input-capable device
// whose name contains substr (case-insensitive). An empty substr matches
// the system default input device. Returns an error (never fatal here; main
// turns it into exit code 2 per §7) when no match exists.
func FindDeviceBySubstring(devices []Device, substr string) (int, error) {
	if substr == "" {
		def, err := portaudio.DefaultInputDevice()
		if err != nil {
			return 0, fmt.Errorf("capture: no default input device: %w", err)
		}
		for i, d := range devices {
			if d.Name == def.Name {
				return i, nil
			}
		}
		return 0, fmt.Errorf("capture: default input device %q not found in device list", def.Name)
	}

	lower := strings.ToLower(substr)
	for i, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		if strings.Contains(strings.ToLower(d.Name), lower) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("capture: no input device matching %q", substr)
}

// Stream owns one open PortAudio input stream and pushes captured mono
// samples into a ring.Buffer. The capture callback never blocks and never
// allocates, per §5's thread model.
type Stream struct {
	stream      *portaudio.Stream
	ring        *ring.Buffer
	channels    int
	inputBuffer []float32
	monoBuffer  []float32
}

// Params configures a capture Stream.
type Params struct {
	DeviceIndex     int
	Channels        int
	SampleRate      float64
	FramesPerBuffer int
	Ring            *ring.Buffer
}

// Open opens (but does not start) an input stream on the device at
// p.DeviceIndex, pushing frames into p.Ring as they arrive.
func Open(p Params) (*Stream, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("capture: failed to enumerate devices: %w", err)
	}
	if p.DeviceIndex < 0 || p.DeviceIndex >= len(infos) {
		return nil, fmt.Errorf("capture: invalid device index %d", p.DeviceIndex)
	}
	device := infos[p.DeviceIndex]

	channels := p.Channels
	if channels <= 0 {
		channels = 1
	}

	s := &Stream{
		ring:        p.Ring,
		channels:    channels,
		inputBuffer: make([]float32, p.FramesPerBuffer*channels),
		monoBuffer:  make([]float32, p.FramesPerBuffer),
	}

	streamParams := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: channels,
			Device:   device,
			Latency:  device.DefaultLowInputLatency,
		},
		Output:          portaudio.StreamDeviceParameters{Channels: 0, Device: nil},
		FramesPerBuffer: p.FramesPerBuffer,
		SampleRate:      p.SampleRate,
	}

	stream, err := portaudio.OpenStream(streamParams, s.onInput)
	if err != nil {
		return nil, fmt.Errorf("capture: failed to open stream on %q: %w", device.Name, err)
	}
	s.stream = stream

	applog.Infof("capture: opened %q (%.0f Hz, %d ch, %d frames/buffer)",
		device.Name, p.SampleRate, channels, p.FramesPerBuffer)
	return s, nil
}

// Start begins the capture stream.
func (s *Stream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("capture: failed to start stream: %w", err)
	}
	return nil
}

// Stop stops and closes the capture stream.
func (s *Stream) Stop() error {
	if s.stream == nil {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("capture: failed to stop stream: %w", err)
	}
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("capture: failed to close stream: %w", err)
	}
	s.stream = nil
	return nil
}

// onInput is the capture callback: copy-down to mono (if needed) then a
// single ring push. No allocation, no locking beyond the ring's own
// lock-free head/tail.
func (s *Stream) onInput(in []float32) {
	copy(s.inputBuffer, in)

	var mono []float32
	if s.channels == 1 {
		mono = s.inputBuffer
	} else {
		for i := range s.monoBuffer {
			if i*s.channels < len(s.inputBuffer) {
				s.monoBuffer[i] = s.inputBuffer[i*s.channels]
			} else {
				s.monoBuffer[i] = 0
			}
		}
		mono = s.monoBuffer
	}

	if s.ring.Push(mono) < len(mono) {
		applog.Debugf("capture: ring overrun, %d samples dropped cumulative", s.ring.Overruns())
	}
}

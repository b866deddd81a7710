// SPDX-License-Identifier: MIT
package graph

import (
	"math"
	"time"

	"beatlight/internal/ring"
)

// Feeder is thread #2 of §5's concurrency model: it pops exact-size hops
// from the audio ring, computes a cheap RMS threshold to skip silence
// (mirroring the teacher's branchless amplitude gate in internal/audio/gate.go,
// which exists for the same reason — don't spend cycles transforming
// silence), and hands surviving hops to the graph's source node.
type Feeder struct {
	ring    *ring.Buffer
	source  *FrameSourceNode
	hopBuf  []float32
	rmsGate float64 // RMS threshold below which a hop is dropped as silence
}

// NewFeeder constructs a feeder popping hopSize-sample hops from r and
// handing survivors to source.
func NewFeeder(r *ring.Buffer, source *FrameSourceNode, hopSize int, rmsGate float64) *Feeder {
	return &Feeder{
		ring:    r,
		source:  source,
		hopBuf:  make([]float32, hopSize),
		rmsGate: rmsGate,
	}
}

// Run pops and forwards hops until stop is closed. Call it from its own
// goroutine; it blocks (sleeping briefly on underrun) until told to stop.
func (f *Feeder) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		if !f.ring.Pop(f.hopBuf) {
			time.Sleep(time.Millisecond)
			continue
		}

		if rms(f.hopBuf) < f.rmsGate {
			continue
		}
		f.source.Push(f.hopBuf)
	}
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

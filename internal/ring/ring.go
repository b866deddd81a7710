// SPDX-License-Identifier: MIT
//
// Package ring implements the lock-free single-producer/single-consumer
// sample buffer between the audio capture callback and the DSP feeder
// (§4.1, §5). It is adapted from the original implementation's
// atomic head/tail ring (original_source/cpp/.../streaming_pipe.cpp).
package ring

import "sync/atomic"

// Buffer is a single-producer single-consumer circular buffer of float32
// audio samples. One slot is permanently reserved so full and empty states
// can be told apart without a separate counter.
//
// Push is called from the capture callback; Pop is called from the feeder
// goroutine. No other synchronization is required between them.
type Buffer struct {
	buf  []float32
	cap  uint64
	head atomic.Uint64 // next write index, producer-owned
	tail atomic.Uint64 // next read index, consumer-owned

	overruns atomic.Uint64 // samples dropped on a full ring, counted only (§7)
}

// New allocates a ring with room for capacity samples (one slot of which is
// reserved). capacity must be > 1.
func New(capacity int) *Buffer {
	if capacity < 2 {
		capacity = 2
	}
	return &Buffer{
		buf: make([]float32, capacity),
		cap: uint64(capacity),
	}
}

// Push writes up to len(samples) values into the ring, returning the number
// actually written. It never blocks: once the ring is full, the remainder is
// dropped and counted as an overrun.
func (b *Buffer) Push(samples []float32) int {
	written := 0
	n := len(samples)
	for written < n {
		head := b.head.Load()
		tail := b.tail.Load()
		free := (tail + b.cap - head - 1) % b.cap
		if free == 0 {
			break
		}
		toWrite := n - written
		if uint64(toWrite) > free {
			toWrite = int(free)
		}
		idx := head % b.cap
		chunk := toWrite
		if uint64(chunk) > b.cap-idx {
			chunk = int(b.cap - idx)
		}
		copy(b.buf[idx:idx+uint64(chunk)], samples[written:written+chunk])
		if chunk < toWrite {
			rest := toWrite - chunk
			copy(b.buf[0:rest], samples[written+chunk:written+chunk+rest])
		}
		b.head.Store((head + uint64(toWrite)) % b.cap)
		written += toWrite
	}
	if written < n {
		b.overruns.Add(uint64(n - written))
	}
	return written
}

// Pop fills out with exactly len(out) samples and returns true, or returns
// false without touching out if fewer than len(out) samples are available.
func (b *Buffer) Pop(out []float32) bool {
	n := uint64(len(out))
	tail := b.tail.Load()
	head := b.head.Load()
	available := (head + b.cap - tail) % b.cap
	if available < n {
		return false
	}
	idx := tail % b.cap
	chunk := n
	if chunk > b.cap-idx {
		chunk = b.cap - idx
	}
	copy(out[:chunk], b.buf[idx:idx+chunk])
	if chunk < n {
		copy(out[chunk:], b.buf[0:n-chunk])
	}
	b.tail.Store((tail + n) % b.cap)
	return true
}

// Overruns returns the cumulative count of samples dropped due to a full
// ring. Exposed for diagnostics only; never fatal (§7).
func (b *Buffer) Overruns() uint64 {
	return b.overruns.Load()
}

// Available returns the number of samples currently queued for Pop.
func (b *Buffer) Available() int {
	tail := b.tail.Load()
	head := b.head.Load()
	return int((head + b.cap - tail) % b.cap)
}

// Capacity returns the usable capacity (one less than the allocated buffer,
// since one slot is reserved).
func (b *Buffer) Capacity() int {
	return int(b.cap - 1)
}

// SPDX-License-Identifier: MIT
//
// Package publish converts lighting commands into absolute wall-clock
// trigger times and hands them to a transport (C8), grounded on the
// original implementation's MQTTPublisher wall-clock conversion.
package publish

import (
	"fmt"

	"beatlight/internal/lighting"
	"beatlight/internal/transport"
)

// SentEvent is the wire record for one dispatched lighting command: the
// predictor's relative tPredSec resolved to an absolute Unix time plus a
// microsecond remainder, carry/borrow-normalized.
type SentEvent struct {
	UnixTime     int64  `json:"unix_time"`
	Microseconds int64  `json:"microseconds"`
	Confidence   float64 `json:"confidence"`
	R            int     `json:"r"`
	G            int     `json:"g"`
	B            int     `json:"b"`
	EventID      string  `json:"event_id"`
}

// Publisher converts lighting commands to SentEvents against a fixed start
// time and forwards them to a transport.
type Publisher struct {
	startUnixTime     int64
	startMicroseconds int64
	transport         transport.Transport
}

// NewPublisher captures a start wall-clock time (seconds, microseconds)
// against which all future command.TPredSec values are resolved, and the
// transport events are forwarded to.
func NewPublisher(startUnixTime, startMicroseconds int64, t transport.Transport) *Publisher {
	return &Publisher{
		startUnixTime:     startUnixTime,
		startMicroseconds: startMicroseconds,
		transport:         t,
	}
}

// Publish converts cmd to a SentEvent and sends it. Errors from the
// transport are returned for the caller to log; they are never fatal to
// the pipeline (§7).
func (p *Publisher) Publish(cmd lighting.Command) error {
	ev := p.ToSentEvent(cmd)
	if err := p.transport.Send(ev); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// ToSentEvent performs the carry-correct wall-clock conversion described in
// §5: cmd.TPredSec is split into integer seconds and a microsecond
// remainder, each added to the captured start time separately (to avoid
// float64 precision loss for large Unix timestamps), then normalized so
// 0 <= microseconds < 1_000_000.
func (p *Publisher) ToSentEvent(cmd lighting.Command) SentEvent {
	predSeconds, predMicroseconds := splitSeconds(cmd.TPredSec)

	unixTime := p.startUnixTime + predSeconds
	microseconds := p.startMicroseconds + predMicroseconds

	unixTime, microseconds = normalizeMicroseconds(unixTime, microseconds)

	return SentEvent{
		UnixTime:     unixTime,
		Microseconds: microseconds,
		Confidence:   cmd.Confidence,
		R:            cmd.R,
		G:            cmd.G,
		B:            cmd.B,
		EventID:      cmd.EventID,
	}
}

// splitSeconds decomposes a relative duration in seconds into an integer
// second count (floor) and a rounded microsecond remainder in [0, 1e6];
// rounding can yield exactly 1e6, which normalizeMicroseconds carries.
func splitSeconds(sec float64) (seconds, microseconds int64) {
	whole := int64(sec)
	if sec < 0 && float64(whole) != sec {
		whole-- // floor, not truncation, for negative durations
	}
	frac := sec - float64(whole)
	micros := int64(frac*1000000.0 + 0.5) // round to nearest
	return whole, micros
}

// normalizeMicroseconds carries overflow (>= 1e6) or borrows underflow (< 0)
// microseconds into the second count so the result always satisfies
// 0 <= microseconds < 1_000_000.
func normalizeMicroseconds(seconds, microseconds int64) (int64, int64) {
	if microseconds >= 1000000 {
		carry := microseconds / 1000000
		seconds += carry
		microseconds -= carry * 1000000
	}
	if microseconds < 0 {
		borrow := (microseconds - 999999) / 1000000
		seconds += borrow
		microseconds -= borrow * 1000000
	}
	return seconds, microseconds
}

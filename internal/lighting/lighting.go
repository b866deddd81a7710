// SPDX-License-Identifier: MIT
//
// Package lighting implements the confidence/latency/dedup filter that
// turns predictor output into timed lighting commands (C7), grounded on
// the original implementation's LightingEngine.
package lighting

import (
	"fmt"
	"math"

	"beatlight/internal/dsp"
)

// Command is one instruction to fire an LED of color (R,G,B) at audio time
// TPredSec (seconds since the stream started), with full double precision
// preserved for the publisher's carry-correct wall-clock conversion (C8).
type Command struct {
	Instrument string
	TPredSec   float64
	Confidence float64
	R, G, B    int
	EventID    string
}

// Params configures the lighting filter (C7).
type Params struct {
	ConfidenceThreshold float64
	MinLatencySec       float64
	MaxLatencySec       float64
	DuplicateWindowSec  float64
	CleanupInterval     int // frames between dedup-table sweeps
	EmitNonKick         bool
}

type sentEvent struct {
	tPredSec float64
}

// Engine filters a stream of per-frame instrument predictions into lighting
// commands, deduplicating by event ID and sweeping its dedup table
// periodically rather than on every frame.
type Engine struct {
	p Params

	currentTimeSec float64
	frameCount     int
	cleanupCounter int
	sentEvents     map[string]sentEvent
}

// NewEngine constructs a lighting engine with an empty dedup table.
func NewEngine(p Params) *Engine {
	return &Engine{
		p:          p,
		sentEvents: make(map[string]sentEvent),
	}
}

// Process consumes one frame's predictions (indexed like dsp.InstrumentNames)
// at currentTimeSec and returns the lighting commands to send this frame.
func (e *Engine) Process(currentTimeSec float64, predictions []dsp.InstrumentPrediction, instrumentNames []string) []Command {
	e.currentTimeSec = currentTimeSec
	e.frameCount++

	e.cleanupCounter++
	if e.cleanupCounter >= e.p.CleanupInterval {
		e.cleanupOldEvents()
		e.cleanupCounter = 0
	}

	var commands []Command
	for idx, pred := range predictions {
		name := ""
		if idx < len(instrumentNames) {
			name = instrumentNames[idx]
		}
		for _, hit := range pred.Hits {
			cmd := Command{
				Instrument: name,
				TPredSec:   hit.TPredSec,
				Confidence: hit.Confidence,
			}
			cmd.R, cmd.G, cmd.B = mapInstrumentToColor(name)
			cmd.EventID = generateEventID(cmd)

			if !e.shouldSendCommand(cmd) {
				continue
			}

			if name == "kick" || e.p.EmitNonKick {
				commands = append(commands, cmd)
			}

			// Track every instrument's event, even ones not emitted, so the
			// dedup window still suppresses re-predictions of the same hit.
			e.sentEvents[cmd.EventID] = sentEvent{tPredSec: cmd.TPredSec}
		}
	}
	return commands
}

func (e *Engine) shouldSendCommand(cmd Command) bool {
	if cmd.Confidence < e.p.ConfidenceThreshold {
		return false
	}

	latency := cmd.TPredSec - e.currentTimeSec
	if latency < e.p.MinLatencySec || latency > e.p.MaxLatencySec {
		return false
	}

	if prior, ok := e.sentEvents[cmd.EventID]; ok {
		if cmd.TPredSec-prior.tPredSec < e.p.DuplicateWindowSec {
			return false
		}
	}

	return true
}

// generateEventID rounds the predicted time to 10ms precision so that
// near-duplicate predictions (successive ticks projecting the same
// underlying hit with tiny jitter) collapse onto the same dedup key. Only
// predictions that round to the same 10ms value share a key.
func generateEventID(cmd Command) string {
	rounded := math.Round(cmd.TPredSec*100.0) / 100.0
	return fmt.Sprintf("%s_%.2f", cmd.Instrument, rounded)
}

// cleanupOldEvents evicts dedup entries whose prediction time has passed by
// more than the duplicate window, so the table doesn't grow unbounded.
func (e *Engine) cleanupOldEvents() {
	for id, ev := range e.sentEvents {
		if e.currentTimeSec-ev.tPredSec > e.p.DuplicateWindowSec {
			delete(e.sentEvents, id)
		}
	}
}

// mapInstrumentToColor is the fixed instrument→color mapping: kick is red,
// snare is green, everything else (clap, closed hat, open hat/crash) is blue.
func mapInstrumentToColor(instrument string) (r, g, b int) {
	switch instrument {
	case "kick":
		return 1, 0, 0
	case "snare":
		return 0, 1, 0
	default:
		return 0, 0, 1
	}
}

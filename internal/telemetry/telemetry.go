// SPDX-License-Identifier: MIT
//
// Package telemetry implements the hit/prediction JSON-lines sink (C10),
// grounded on the original implementation's HitPredictionLogger: a
// mutex-guarded append-only file, one JSON object per line, flushed per
// record so a crash loses at most the in-flight write.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	applog "beatlight/internal/log"
)

// Record is one JSON-lines entry. Hit and prediction records share a
// structure; fields that don't apply to a given Type are omitted.
type Record struct {
	Frame        int     `json:"frame"`
	AudioTime    float64 `json:"audio_time"`
	WallTimeMs   int64   `json:"wall_time_ms"`
	WallTimeRel  float64 `json:"wall_time_rel"`
	Type         string  `json:"type"` // "hit" | "prediction"
	Instrument   string  `json:"instrument"`
	Value        float64 `json:"value,omitempty"`         // hit records only
	PredictedTime float64 `json:"predicted_time,omitempty"` // prediction records only
	Confidence   float64 `json:"confidence,omitempty"`
	CILow        float64 `json:"ci_low,omitempty"`
	CIHigh       float64 `json:"ci_high,omitempty"`
	HitIndex     int     `json:"hit_index,omitempty"`
}

// Logger appends Records to a timestamped log file. Safe for concurrent use;
// per §5, all writers (the five gate channels and the predictor) share one
// internal mutex.
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	startTime time.Time
	enabled   bool
}

// New opens (creating if needed) a timestamped log file under dir, named
// hits_predictions_<YYYYMMDD>_<HHMMSS>.log. A failure to open disables the
// sink rather than aborting the pipeline (§7: "Log open failure — disable
// logging sink; pipeline continues").
func New(dir string) *Logger {
	l := &Logger{startTime: time.Now()}

	if err := os.MkdirAll(dir, 0755); err != nil {
		applog.Warnf("telemetry: could not create log directory %q: %v", dir, err)
		return l
	}

	path := filepath.Join(dir, timestampedFilename(l.startTime))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		applog.Warnf("telemetry: could not open log file %q: %v", path, err)
		return l
	}

	l.file = f
	l.enabled = true
	applog.Infof("telemetry: writing to %s", path)
	return l
}

func timestampedFilename(t time.Time) string {
	return fmt.Sprintf("hits_predictions_%s.log", t.Format("20060102_150405"))
}

// LogHit appends a hit record for instrument at frame, but only when value
// is >= 0.5 (the original's gate-fired threshold) — a gate value below that
// is not a hit and generates no record.
func (l *Logger) LogHit(frame int, audioTime float64, instrument string, value float64) {
	if value < 0.5 {
		return
	}
	l.write(Record{
		Frame:      frame,
		AudioTime:  audioTime,
		WallTimeMs: time.Now().UnixMilli(),
		WallTimeRel: time.Since(l.startTime).Seconds(),
		Type:       "hit",
		Instrument: instrument,
		Value:      value,
	})
}

// LogPrediction appends one record per projected hit for instrument.
func (l *Logger) LogPrediction(frame int, currentTime float64, instrument string, tPredSec, confidence, ciLow, ciHigh float64, hitIndex int) {
	l.write(Record{
		Frame:         frame,
		AudioTime:     currentTime,
		WallTimeMs:    time.Now().UnixMilli(),
		WallTimeRel:   time.Since(l.startTime).Seconds(),
		Type:          "prediction",
		Instrument:    instrument,
		PredictedTime: tPredSec,
		Confidence:    confidence,
		CILow:         ciLow,
		CIHigh:        ciHigh,
		HitIndex:      hitIndex,
	})
}

func (l *Logger) write(rec Record) {
	if !l.enabled {
		return
	}

	data, err := json.Marshal(rec)
	if err != nil {
		applog.Errorf("telemetry: failed to encode record: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		applog.Errorf("telemetry: failed to write record: %v", err)
		return
	}
	l.file.Sync()
}

// Close flushes and closes the log file, if open.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.enabled = false
	return err
}

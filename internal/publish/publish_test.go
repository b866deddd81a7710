// SPDX-License-Identifier: MIT
package publish

import (
	"testing"

	"beatlight/internal/lighting"
)

// fakeTransport records the last sent payload without transmitting it.
type fakeTransport struct {
	last any
}

func (f *fakeTransport) Send(data any) error { f.last = data; return nil }
func (f *fakeTransport) Close() error        { return nil }

// TestWallClockConversionCarriesSecond reproduces S6 exactly: start =
// {1_700_000_000 sec, 123_456 us}, tPredSec = 0.876544 carries into
// unix_time = 1_700_000_001, microseconds = 0.
func TestWallClockConversionCarriesSecond(t *testing.T) {
	p := NewPublisher(1_700_000_000, 123_456, &fakeTransport{})

	ev := p.ToSentEvent(lighting.Command{TPredSec: 0.876544})

	if ev.UnixTime != 1_700_000_001 {
		t.Errorf("UnixTime = %d, want 1700000001", ev.UnixTime)
	}
	if ev.Microseconds != 0 {
		t.Errorf("Microseconds = %d, want 0", ev.Microseconds)
	}
}

func TestWallClockConversionNoCarry(t *testing.T) {
	p := NewPublisher(1_700_000_000, 0, &fakeTransport{})
	ev := p.ToSentEvent(lighting.Command{TPredSec: 1.5})
	if ev.UnixTime != 1_700_000_001 || ev.Microseconds != 500000 {
		t.Errorf("got (%d, %d), want (1700000001, 500000)", ev.UnixTime, ev.Microseconds)
	}
}

func TestPublishForwardsToTransport(t *testing.T) {
	ft := &fakeTransport{}
	p := NewPublisher(1_700_000_000, 0, ft)

	cmd := lighting.Command{TPredSec: 1.0, Confidence: 0.8, R: 1, EventID: "kick_1.00"}
	if err := p.Publish(cmd); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ev, ok := ft.last.(SentEvent)
	if !ok {
		t.Fatalf("transport received %T, want SentEvent", ft.last)
	}
	if ev.EventID != "kick_1.00" {
		t.Errorf("EventID = %q, want %q", ev.EventID, "kick_1.00")
	}
}

func TestNormalizeMicrosecondsUnderflow(t *testing.T) {
	seconds, micros := normalizeMicroseconds(10, -1500000)
	if seconds != 8 || micros != 500000 {
		t.Errorf("got (%d, %d), want (8, 500000)", seconds, micros)
	}
}

// SPDX-License-Identifier: MIT
package publish

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	applog "beatlight/internal/log"
	"beatlight/internal/transport/udp"
)

/*
BinaryUDPTransport packet layout (BigEndian):

+-----------------------------------------------------------------------------+
| Field          | Data Type | Size (Bytes) | Description                    |
|----------------|-----------|--------------|--------------------------------|
| Sequence       | uint32    | 4            | Monotonically increasing       |
| UnixTime       | int64     | 8            | Seconds since epoch            |
| Microseconds   | int64     | 8            | Sub-second remainder            |
| Confidence     | float32   | 4            | Prediction confidence           |
| R, G, B        | uint8 x3  | 3            | Lighting color                  |
| EventID length | uint16    | 2            | Length of the following string  |
| EventID        | []byte    | N            | Dedup identifier                |
+-----------------------------------------------------------------------------+
*/

// BinaryUDPTransport sends each SentEvent as one fixed-width binary UDP
// packet instead of JSON, for deployments where datagram size matters. It
// is triggered per-event rather than on a ticker, unlike the original
// implementation's periodic FFT-frame publisher.
type BinaryUDPTransport struct {
	sender      *udp.Sender
	mu          sync.Mutex // guards sequenceNum and buf
	sequenceNum uint32
	buf         bytes.Buffer
}

// NewBinaryUDPTransport wraps sender in a Transport that only accepts
// SentEvent payloads.
func NewBinaryUDPTransport(sender *udp.Sender) *BinaryUDPTransport {
	return &BinaryUDPTransport{sender: sender}
}

// Send packs data into the binary packet format and transmits it. data must
// be a SentEvent; anything else is rejected rather than silently dropped,
// since a malformed payload here indicates a wiring bug upstream.
func (t *BinaryUDPTransport) Send(data any) error {
	ev, ok := data.(SentEvent)
	if !ok {
		return fmt.Errorf("publish: binary udp: expected SentEvent, got %T", data)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sequenceNum++
	t.buf.Reset()

	eventID := []byte(ev.EventID)
	fields := []any{
		t.sequenceNum,
		ev.UnixTime,
		ev.Microseconds,
		float32(ev.Confidence),
		uint8(ev.R), uint8(ev.G), uint8(ev.B),
		uint16(len(eventID)),
	}
	for _, f := range fields {
		if err := binary.Write(&t.buf, binary.BigEndian, f); err != nil {
			return fmt.Errorf("publish: binary udp: pack header: %w", err)
		}
	}
	if _, err := t.buf.Write(eventID); err != nil {
		return fmt.Errorf("publish: binary udp: pack event id: %w", err)
	}

	if err := t.sender.Send(t.buf.Bytes()); err != nil {
		return err
	}
	applog.Debugf("publish: binary udp: sent packet %d (%d bytes)", t.sequenceNum, t.buf.Len())
	return nil
}

// Close closes the underlying UDP connection.
func (t *BinaryUDPTransport) Close() error {
	return t.sender.Close()
}

var _ interface {
	Send(data any) error
	Close() error
} = (*BinaryUDPTransport)(nil)

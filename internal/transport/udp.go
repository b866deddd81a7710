// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"fmt"

	applog "beatlight/internal/log"
	"beatlight/internal/transport/udp"
)

// UDPTransport sends each payload as one JSON-encoded UDP datagram. It is
// the generic transport.New("udp", ...) default; callers that need the
// compact fixed-width wire format for SentEvent records construct
// publish.NewBinaryUDPTransport directly instead.
type UDPTransport struct {
	sender *udp.Sender
}

// NewUDPTransport wraps sender in a Transport. sender must not be nil.
func NewUDPTransport(sender *udp.Sender) *UDPTransport {
	return &UDPTransport{sender: sender}
}

// Send JSON-encodes data and transmits it as one UDP packet.
func (t *UDPTransport) Send(data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("transport: udp: encode payload: %w", err)
	}
	if err := t.sender.Send(payload); err != nil {
		return err
	}
	applog.Debugf("transport: udp: sent packet (%d bytes)", len(payload))
	return nil
}

// Close closes the underlying UDP connection.
func (t *UDPTransport) Close() error {
	return t.sender.Close()
}

var _ Transport = (*UDPTransport)(nil)

// SPDX-License-Identifier: MIT
//
// Package transport provides the pluggable Transport interface used by the
// event publisher (C8) and the optional telemetry broadcaster, plus the
// udp, websocket, and logging implementations. Which concrete
// implementation a pipeline run uses is a config.TransportEndpoint, not a
// compile-time choice.
package transport

import (
	"fmt"

	"beatlight/internal/transport/udp"
)

// Transport defines a generic interface for sending processed data or
// events. Implementations must be safe for concurrent use.
type Transport interface {
	Send(data any) error
	Close() error
}

// Endpoint names a transport strategy and its address, mirroring
// config.TransportEndpoint without importing the config package (transport
// is lower-level and config-agnostic).
type Endpoint struct {
	Kind string // udp | websocket | logging
	Addr string
}

// New constructs the Transport named by ep.Kind. An unresolvable udp address
// is the one startup-time configuration error returned here rather than
// clamped (§7); the websocket transport starts listening in the background
// and only logs a listen failure. An unrecognized Kind falls back to logging.
func New(ep Endpoint) (Transport, error) {
	switch ep.Kind {
	case "udp":
		sender, err := udp.NewSender(ep.Addr)
		if err != nil {
			return nil, fmt.Errorf("transport: udp endpoint %q: %w", ep.Addr, err)
		}
		return NewUDPTransport(sender), nil
	case "websocket":
		return NewWebSocketTransport(ep.Addr), nil
	case "logging", "":
		return NewLoggingTransport(), nil
	default:
		return NewLoggingTransport(), nil
	}
}

// MultiTransport fans one Send out to several transports, e.g. the primary
// event endpoint plus a telemetry websocket watched by a dashboard. Send
// attempts every constituent and returns the first error encountered; Close
// closes every constituent and likewise returns the first error.
type MultiTransport struct {
	targets []Transport
}

// NewMultiTransport wraps targets for fan-out. A nil target is skipped,
// letting callers pass an optional secondary transport unconditionally.
func NewMultiTransport(targets ...Transport) *MultiTransport {
	mt := &MultiTransport{}
	for _, t := range targets {
		if t != nil {
			mt.targets = append(mt.targets, t)
		}
	}
	return mt
}

func (mt *MultiTransport) Send(data any) error {
	var firstErr error
	for _, t := range mt.targets {
		if err := t.Send(data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (mt *MultiTransport) Close() error {
	var firstErr error
	for _, t := range mt.targets {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Transport = (*MultiTransport)(nil)

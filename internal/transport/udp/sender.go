// SPDX-License-Identifier: MIT
//
// Package udp provides a UDP connection wrapper (Sender) used to publish
// sent-event records (C8); the binary packet format is built in package
// publish.
package udp

import (
	"fmt"
	"net"
	"sync"

	applog "beatlight/internal/log"
)

// Sender handles sending byte packets over a UDP connection.
type Sender struct {
	conn       *net.UDPConn
	targetAddr *net.UDPAddr
	mu         sync.Mutex
	closed     bool
}

// NewSender creates a Sender targeting address (host:port).
func NewSender(address string) (*Sender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("udp: failed to resolve target address %q: %w", address, err)
	}

	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("udp: failed to dial target %q: %w", address, err)
	}

	applog.Infof("udp: connection established to %s", conn.RemoteAddr())

	return &Sender{conn: conn, targetAddr: udpAddr}, nil
}

// Send transmits data as one UDP packet. Safe for concurrent use.
func (s *Sender) Send(data []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("udp: sender is closed")
	}
	_, err := s.conn.Write(data)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("udp: failed to send packet: %w", err)
	}
	return nil
}

// Close closes the underlying UDP connection. Safe to call more than once.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("udp: failed to close connection: %w", err)
	}
	return nil
}

var _ interface{ Close() error } = (*Sender)(nil)

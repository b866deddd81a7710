// SPDX-License-Identifier: MIT
package udp

import (
	"net"
	"testing"
)

func TestSenderRoundTrip(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer conn.Close()

	sender, err := NewSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer sender.Close()

	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := sender.Send(want); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := make([]byte, 16)
	n, _, err := conn.ReadFromUDP(got)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	if string(got[:n]) != string(want) {
		t.Errorf("received %v, want %v", got[:n], want)
	}
}

func TestSenderRejectsSendAfterClose(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer conn.Close()

	sender, err := NewSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sender.Send([]byte("x")); err == nil {
		t.Error("Send after Close: want error, got nil")
	}
	if err := sender.Close(); err != nil {
		t.Errorf("second Close: want nil, got %v", err)
	}
}

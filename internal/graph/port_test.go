// SPDX-License-Identifier: MIT
package graph

import "testing"

func TestPortSendRecv(t *testing.T) {
	var p Port[int]

	if p.Ready() {
		t.Fatal("empty port reports Ready")
	}
	if _, ok := p.Recv(); ok {
		t.Fatal("Recv on empty port returned ok")
	}

	if !p.Send(7) {
		t.Fatal("Send on empty port failed")
	}
	if !p.Ready() {
		t.Fatal("port not Ready after Send")
	}
	if p.Send(8) {
		t.Fatal("Send on full port succeeded")
	}

	v, ok := p.Recv()
	if !ok || v != 7 {
		t.Fatalf("Recv = (%v, %v), want (7, true)", v, ok)
	}
	if p.Ready() {
		t.Fatal("port still Ready after Recv")
	}
}

// SPDX-License-Identifier: MIT
package transport

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	applog "beatlight/internal/log"
)

// telemetryFrame wraps a sent payload (normally a publish.SentEvent) with a
// monotonic sequence number and a server-side send timestamp, independent of
// the payload's own predicted/wall-clock fields, so a dashboard client can
// notice a gap (broadcast channel full, connection hiccup) without having to
// reason about the domain clock carried inside Payload.
type telemetryFrame struct {
	Seq       uint64 `json:"seq"`
	SentAtSec int64  `json:"sent_at_sec"`
	Payload   any    `json:"payload"`
}

// WebSocketTransport broadcasts sent lighting events to every connected
// dashboard client as a framed JSON message (§6, telemetry endpoint).
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan telemetryFrame
	server    *http.Server
	seq       uint64
}

// NewWebSocketTransport starts a WebSocket server on addr and returns a
// transport that broadcasts to every client connected at /ws.
func NewWebSocketTransport(addr string) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan telemetryFrame, 256),
	}
	wst.start()
	return wst
}

func (wst *WebSocketTransport) start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)

	wst.server = &http.Server{Addr: wst.addr, Handler: mux}

	go func() {
		applog.Infof("transport: telemetry websocket listening on %s", wst.addr)
		if err := wst.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.Errorf("transport: telemetry websocket server error: %v", err)
		}
	}()

	go wst.handleBroadcasts()
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Errorf("transport: telemetry websocket upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	n := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("transport: telemetry client connected, %d watching", n)

	go func() {
		_, _, err := conn.ReadMessage()
		if err != nil {
			wst.clientsMu.Lock()
			delete(wst.clients, conn)
			n := len(wst.clients)
			wst.clientsMu.Unlock()
			conn.Close()
			applog.Infof("transport: telemetry client disconnected, %d watching", n)
		}
	}()
}

func (wst *WebSocketTransport) handleBroadcasts() {
	for frame := range wst.broadcast {
		wst.clientsMu.Lock()
		for client := range wst.clients {
			if err := client.WriteJSON(frame); err != nil {
				client.Close()
				delete(wst.clients, client)
			}
		}
		wst.clientsMu.Unlock()
	}
}

// Send frames data (typically a publish.SentEvent) with a sequence number
// and queues it for broadcast. If the broadcast channel is full, the frame
// is dropped rather than blocking the DSP/publisher call path — a dashboard
// client can tell from the Seq gap that frames were lost.
func (wst *WebSocketTransport) Send(data any) error {
	seq := atomic.AddUint64(&wst.seq, 1)
	frame := telemetryFrame{
		Seq:       seq,
		SentAtSec: time.Now().Unix(),
		Payload:   data,
	}
	select {
	case wst.broadcast <- frame:
	default:
	}
	return nil
}

// Close shuts down the WebSocket server and disconnects all clients.
func (wst *WebSocketTransport) Close() error {
	wst.clientsMu.Lock()
	for client := range wst.clients {
		client.Close()
	}
	wst.clients = make(map[*websocket.Conn]bool)
	wst.clientsMu.Unlock()

	if wst.server != nil {
		return wst.server.Close()
	}
	return nil
}

var _ Transport = (*WebSocketTransport)(nil)

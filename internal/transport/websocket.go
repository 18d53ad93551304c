// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	applog "spectra/internal/log"
)

// WebSocket broadcasts JSON-encoded payloads to every connected client
// on /ws. When a metrics handler is supplied it is served from the same
// listener on /metrics, so one port carries both the stream and the
// scrape endpoint.
type WebSocket struct {
	upgrader websocket.Upgrader
	listener net.Listener
	server   *http.Server

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool

	broadcast chan any
	dropped   atomic.Uint64
	closed    atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWebSocket binds addr and starts serving immediately. Use an
// address with port 0 to let the OS pick one; Addr reports the bound
// address either way.
func NewWebSocket(addr string, metrics http.Handler) (*WebSocket, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind websocket listener on %s: %w", addr, err)
	}

	t := &WebSocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The stream is consumed by local tooling and visualizers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		listener:  listener,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, 256),
		done:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", t.handleUpgrade)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	t.server = &http.Server{Handler: mux}

	go func() {
		if err := t.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("websocket server failed: %v", err)
		}
	}()

	t.wg.Add(1)
	go t.broadcaster()

	applog.Infof("websocket transport listening on %s", listener.Addr())
	return t, nil
}

// Addr returns the bound listen address.
func (t *WebSocket) Addr() string {
	return t.listener.Addr().String()
}

// Clients returns the number of connected clients.
func (t *WebSocket) Clients() int {
	t.clientsMu.Lock()
	defer t.clientsMu.Unlock()
	return len(t.clients)
}

// Dropped returns how many payloads were discarded because the
// broadcast queue was full.
func (t *WebSocket) Dropped() uint64 {
	return t.dropped.Load()
}

func (t *WebSocket) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("websocket upgrade failed: %v", err)
		return
	}

	t.clientsMu.Lock()
	t.clients[conn] = true
	total := len(t.clients)
	t.clientsMu.Unlock()
	applog.Debugf("websocket client connected (%d total)", total)

	// Clients never send payloads; the read loop only notices
	// disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		t.clientsMu.Lock()
		delete(t.clients, conn)
		total := len(t.clients)
		t.clientsMu.Unlock()
		conn.Close()
		applog.Debugf("websocket client disconnected (%d total)", total)
	}()
}

func (t *WebSocket) broadcaster() {
	defer t.wg.Done()
	for {
		select {
		case v := <-t.broadcast:
			t.writeAll(v)
		case <-t.done:
			return
		}
	}
}

func (t *WebSocket) writeAll(v any) {
	t.clientsMu.Lock()
	defer t.clientsMu.Unlock()
	for conn := range t.clients {
		if err := conn.WriteJSON(v); err != nil {
			applog.Debugf("websocket write failed, dropping client: %v", err)
			conn.Close()
			delete(t.clients, conn)
		}
	}
}

// Send queues v for broadcast without blocking. When the queue is full
// the payload is dropped and counted; results are perishable.
func (t *WebSocket) Send(v any) error {
	if t.closed.Load() {
		return errors.New("websocket transport is closed")
	}
	select {
	case t.broadcast <- v:
	default:
		t.dropped.Add(1)
	}
	return nil
}

// Close disconnects all clients and shuts the server down. Safe to call
// more than once.
func (t *WebSocket) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.done)
		t.wg.Wait()

		t.clientsMu.Lock()
		for conn := range t.clients {
			conn.Close()
		}
		t.clients = make(map[*websocket.Conn]bool)
		t.clientsMu.Unlock()

		err = t.server.Close()
	})
	return err
}

var _ Transport = (*WebSocket)(nil)

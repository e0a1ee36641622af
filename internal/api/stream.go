package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
)

// RunStreamHandler handles GET /v1/runs/stream. Each stored run arrives as a
// JSON Event; ?operation= narrows the stream to one operation.
func (s *Server) RunStreamHandler(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("operation")
	// subscribed before the handshake completes so no run is missed
	ch := s.Broker.Subscribe(TopicRuns)
	defer s.Broker.Unsubscribe(TopicRuns, ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var mu sync.Mutex
	write := func(fn func() error) error {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return fn()
	}

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })

	// the client sends nothing; reading only surfaces close frames and pongs
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := write(func() error { return conn.WriteMessage(websocket.PingMessage, nil) }); err != nil {
				return
			}
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if filter != "" && evt.Data["operation"] != filter {
				continue
			}
			if err := write(func() error { return conn.WriteJSON(evt) }); err != nil {
				return
			}
		}
	}
}

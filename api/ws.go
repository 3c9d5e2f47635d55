package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lpc864-ual/dlt-prototype/core"
)

const (
	feedBuffer   = 16
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local front end
	},
}

// handleWebSocket streams every block appended after the connection opens.
// Slow readers miss blocks rather than stalling the miner.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	blocks := make(chan core.Block, feedBuffer)
	unsubscribe := s.chain.Subscribe(func(b core.Block) {
		select {
		case blocks <- b:
		default:
			s.logger.Warn("Dropping block for slow WebSocket client", "index", b.Index())
		}
	})
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade to WebSocket", "error", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case b := <-blocks:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(b); err != nil {
				s.logger.Error("Failed to send block", "index", b.Index(), "error", err)
				return
			}
		}
	}
}

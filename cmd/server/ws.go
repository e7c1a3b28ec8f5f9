package main

import (
	"net/http"

	"github.com/mkarlsen/sitealarm/broadcast"
	"github.com/mkarlsen/sitealarm/internal/logger"
)

// handleSubscribe upgrades the request to a WebSocket and registers it
// with the broadcast hub. An optional ?sow=<id> query scopes the
// subscription to one statement of work; without it the connection
// receives every alarm.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("sow")

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := broadcast.NewWSConn(wsConn, s.wsTimeout)
	s.hub.Connect(conn, scope)

	// Subscribers only receive; the read loop exists to process control
	// frames and to notice when the peer goes away.
	go func() {
		defer func() {
			s.hub.Disconnect(conn)
			conn.Close()
		}()
		for {
			if _, _, err := wsConn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

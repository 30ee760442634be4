package server

import (
	"time"

	"github.com/gorilla/websocket"
)

// StartHeartbeat pings every connection each HeartbeatInterval. A
// connection that has not answered since the previous round is closed.
func (s *Server) StartHeartbeat() {
	if s.cfg.HeartbeatInterval <= 0 {
		return
	}
	s.Every(s.cfg.HeartbeatInterval, func(time.Time) { s.heartbeat() })
}

func (s *Server) heartbeat() {
	for _, c := range s.snapshot() {
		if !c.alive.Swap(false) {
			c.log.Infof("Heartbeat timeout, closing")
			c.close(websocket.CloseGoingAway, "Heartbeat timeout")
			continue
		}
		if err := c.ping(); err != nil {
			c.log.Debugf("Ping failed: %v", err)
			c.close(websocket.CloseGoingAway, "Ping failed")
		}
	}
}

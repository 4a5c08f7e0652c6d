package router

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds how long a single write may block on a slow peer.
const writeWait = 10 * time.Second

// wsSink delivers frames to one WebSocket connection. The mutex serializes
// all writes, including keepalive pings.
type wsSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSink) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *wsSink) Close() error {
	return s.conn.Close()
}

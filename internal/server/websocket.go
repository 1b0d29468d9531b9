package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// safeConn serializes writes to a websocket connection. gorilla allows one
// concurrent writer; the event loop and the ping ticker share the connection.
type safeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newSafeConn(conn *websocket.Conn) *safeConn {
	return &safeConn{conn: conn}
}

func (sc *safeConn) WriteJSON(v interface{}) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	_ = sc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return sc.conn.WriteJSON(v)
}

func (sc *safeConn) WriteControl(messageType int, data []byte) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.conn.WriteControl(messageType, data, time.Now().Add(writeWait))
}

func (sc *safeConn) Close() error {
	return sc.conn.Close()
}

// handleEvents streams state events of one session until the client leaves,
// the session closes, or the server stops.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	sc := newSafeConn(conn)
	defer sc.Close()

	subID, events := c.Subscribe()
	defer c.Unsubscribe(subID)
	s.logger.Debug("event stream opened", zap.String("session_id", c.ID()), zap.Uint64("subscription", subID))

	// Client messages are not part of the protocol; reading drives pong and close handling.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("event stream read error", zap.String("session_id", c.ID()), zap.Error(err))
				}
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev, open := <-events:
			if !open {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
				_ = sc.WriteControl(websocket.CloseMessage, msg)
				return
			}
			if err := sc.WriteJSON(ev); err != nil {
				s.logger.Debug("event stream write error", zap.String("session_id", c.ID()), zap.Error(err))
				return
			}
		case <-ping.C:
			if err := sc.WriteControl(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			return
		case <-s.ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = sc.WriteControl(websocket.CloseMessage, msg)
			return
		}
	}
}

package realtime

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
)

// Session pairs one websocket connection with one bus subscriber. The
// gateway that owns it supplies the groups to watch and a handler for
// inbound frames.
type Session struct {
	conn   *websocket.Conn
	bus    Bus
	sub    *Subscriber
	groups []string
}

// NewSession subscribes to the given groups and returns a session ready to
// pump. Close tears the subscriptions down.
func NewSession(conn *websocket.Conn, bus Bus, groups ...string) *Session {
	sub := NewSubscriber(64)
	for _, g := range groups {
		bus.Subscribe(g, sub)
	}
	return &Session{conn: conn, bus: bus, sub: sub, groups: groups}
}

// Send queues a frame directly to this connection, bypassing the bus. Used
// for connection-scoped payloads such as history on attach.
func (s *Session) Send(payload []byte) {
	s.sub.push(payload)
}

func (s *Session) Close() {
	for _, g := range s.groups {
		s.bus.Unsubscribe(g, s.sub)
	}
	s.sub.Close()
	s.conn.Close()
}

// WritePump drains the subscriber channel onto the connection and keeps the
// peer alive with pings. Runs until the subscriber closes or a write fails.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.sub.C():
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

// ReadPump consumes inbound frames, decoding each as an Event envelope and
// handing it to handle. A nil handle makes the connection receive-only while
// still servicing pongs and close frames. Blocks until the peer goes away.
func (s *Session) ReadPump(handle func(eventType string, raw json.RawMessage)) {
	defer s.conn.Close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read: %v", err)
			}
			return
		}
		if handle == nil {
			continue
		}
		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &envelope); err != nil {
			log.Printf("websocket frame decode: %v", err)
			continue
		}
		handle(envelope.Type, message)
	}
}

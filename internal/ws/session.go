package ws

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nebula-chat/internal/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer.
	maxMessageSize = 4096

	// Outbound buffer per session. Slow readers get frames dropped.
	sendBuffer = 64
)

// Session is one authenticated websocket connection.
type Session struct {
	ConnID      string
	UserID      int
	Username    string
	Avatar      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time

	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
	done   chan struct{}
	logger *zap.Logger
}

// NewSession wraps an upgraded connection. conn may be nil in tests, in
// which case frames accumulate in the send buffer.
func NewSession(conn *websocket.Conn, userID int, username, avatar string, logger *zap.Logger) *Session {
	return &Session{
		ConnID:      newConnID(),
		UserID:      userID,
		Username:    username,
		Avatar:      avatar,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

func encodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.Event{Event: event, Data: data})
}

// Send enqueues an event frame for delivery. Frames to a full buffer are
// dropped; fan-out is best effort.
func (s *Session) Send(event string, payload any) {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		s.logger.Error("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}
	s.enqueue(frame)
}

func (s *Session) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		s.logger.Warn("session send buffer full, dropping frame",
			zap.Int("user_id", s.UserID),
			zap.String("conn_id", s.ConnID),
		)
		return false
	}
}

// Close shuts the session down. Safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// writePump drains the send buffer to the connection and keeps it alive
// with periodic pings. Runs in its own goroutine per session.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Debug("websocket write failed",
					zap.Int("user_id", s.UserID),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"nebula-chat/internal/auth"
	"nebula-chat/internal/models"
	"nebula-chat/internal/observability"
	"nebula-chat/internal/rabbitmq"
	"nebula-chat/internal/ratelimit"
	"nebula-chat/internal/repositories"
	"nebula-chat/internal/telemetry"
)

const wsRoutingKey = "ws_events.rooms"

// Handler owns the websocket endpoint and the realtime event loop.
type Handler struct {
	hub              *Hub
	presence         *Presence
	limiter          *ratelimit.Limiter
	verifier         *auth.Verifier
	users            repositories.UserRepository
	rooms            repositories.RoomRepository
	messages         repositories.MessageRepository
	publisher        rabbitmq.Publisher
	maxMessageLength int
	logger           *zap.Logger
}

// NewHandler constructs the websocket handler.
func NewHandler(
	hub *Hub,
	presence *Presence,
	limiter *ratelimit.Limiter,
	verifier *auth.Verifier,
	users repositories.UserRepository,
	rooms repositories.RoomRepository,
	messages repositories.MessageRepository,
	publisher rabbitmq.Publisher,
	maxMessageLength int,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		hub:              hub,
		presence:         presence,
		limiter:          limiter,
		verifier:         verifier,
		users:            users,
		rooms:            rooms,
		messages:         messages,
		publisher:        publisher,
		maxMessageLength: maxMessageLength,
		logger:           logger,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades the connection and runs the read loop.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("nebula-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	identity, err := h.verifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	user, err := h.users.GetUser(ctx, identity.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	session := NewSession(conn, user.ID, user.Username, user.Avatar, h.logger)
	session.DeviceID = observability.DeviceIDFromRequest(c.Request)
	session.IP = observability.IPFromRequest(c.Request)
	session.RequestID = observability.RequestIDFromRequest(c.Request)
	session.TraceID = span.SpanContext().TraceID().String()

	h.hub.Register(session)
	h.presence.Connect(ctx, session.UserID, session.Username)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishWSEvent(ctx, session, "ws_connect", "")

	go session.writePump()

	session.Send(models.EventConnectionStatus, models.ConnectionStatusPayload{
		Status: "connected",
		User:   session.Username,
	})
	h.logger.Info("websocket connected",
		zap.Int("user_id", session.UserID),
		zap.String("username", session.Username),
		zap.String("conn_id", session.ConnID),
	)

	h.readLoop(session)
}

func (h *Handler) verifyToken(header string) (auth.Identity, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return h.verifier.Verify(parts[1])
}

func (h *Handler) readLoop(s *Session) {
	var closeReason string
	defer func() {
		h.hub.Unregister(s)
		h.presence.Disconnect(context.Background(), s.UserID, s.Username)
		s.Close()

		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishWSEvent(context.Background(), s, "ws_disconnect", closeReason)
		h.logger.Info("websocket disconnected",
			zap.Int("user_id", s.UserID),
			zap.String("conn_id", s.ConnID),
			zap.String("reason", closeReason),
		)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishWSEvent(context.Background(), s, "ws_error", closeReason)
			}
			return
		}
		h.dispatchEvent(context.Background(), s, raw)
	}
}

func (h *Handler) publishWSEvent(ctx context.Context, s *Session, name, reason string) {
	if h.publisher == nil {
		return
	}
	payload := map[string]any{
		"ws": map[string]any{
			"event":       name,
			"conn_id":     s.ConnID,
			"duration_ms": time.Since(s.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]any{
			"user_id":   s.UserID,
			"username":  s.Username,
			"device_id": s.DeviceID,
			"ip":        s.IP,
		},
	}
	_ = h.publisher.Publish(ctx, wsRoutingKey, telemetry.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload:   payload,
	}, telemetry.BuildHeaders(s.RequestID, s.TraceID))
}

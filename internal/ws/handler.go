package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-relay/internal/auth"
	"chat-relay/internal/observability"
)

// Handler owns the websocket endpoint: handshake, upgrade, read loop.
type Handler struct {
	registry    *Registry
	broadcaster *Broadcaster
	protocol    *Protocol
	verifier    *auth.Verifier
}

// NewHandler constructs a Handler.
func NewHandler(registry *Registry, broadcaster *Broadcaster, protocol *Protocol, verifier *auth.Verifier) *Handler {
	return &Handler{
		registry:    registry,
		broadcaster: broadcaster,
		protocol:    protocol,
		verifier:    verifier,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers the client. Connections
// without a verifiable user identity are not established.
func (h *Handler) Handle(c *gin.Context) {
	if session := c.Query("session"); session != "chat" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown session type"})
		return
	}

	ctx, span := otel.Tracer("chat-relay/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	userID, err := h.verifier.VerifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	handle := h.registry.Register(conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishLifecycle(ctx, info, "ws_connect", 0, "")

	go h.readLoop(ctx, handle, conn, info)
}

// readLoop pumps inbound frames into the protocol handler until the
// connection dies, then cleans up.
func (h *Handler) readLoop(ctx context.Context, handle Handle, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.registry.Unregister(handle)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.publishLifecycle(ctx, info, "ws_disconnect", time.Since(info.ConnectedAt).Milliseconds(), closeReason)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishLifecycle(ctx, info, "ws_error", time.Since(info.ConnectedAt).Milliseconds(), closeReason)
			}
			return
		}
		h.protocol.HandleFrame(ctx, conn, info, data)
	}
}

func (h *Handler) publishLifecycle(ctx context.Context, info ConnInfo, name string, durationMS int64, reason string) {
	_ = observability.PublishEvent(ctx, "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload:   wsEventPayload(info, name, durationMS, reason),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func wsEventPayload(info ConnInfo, name string, durationMS int64, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       name,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		const prefix = "Bearer "
		if len(header) > len(prefix) && header[:len(prefix)] == prefix {
			return header[len(prefix):]
		}
		return ""
	}
	return c.Query("token")
}

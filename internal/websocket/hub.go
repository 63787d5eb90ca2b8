package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mindsync-backend/internal/handlers"
	"mindsync-backend/internal/middleware"
	"mindsync-backend/internal/models"
	"mindsync-backend/internal/services"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type chatRelay interface {
	Relay(ctx context.Context, req models.ChatRequest) (services.Result, error)
}

// Hub serves the chat contract over websockets: one reply frame per request frame.
type Hub struct {
	mu              sync.Mutex
	connections     map[uuid.UUID]*websocket.Conn
	relay           chatRelay
	jwtAuth         *middleware.JWTAuth
	limiter         middleware.Limiter
	maxMessageBytes int64
	logger          *zap.Logger
}

// NewHub builds a hub. jwtAuth may be nil, in which case connections are not
// authenticated. limiter may be nil; otherwise every request frame counts against it.
func NewHub(relay chatRelay, jwtAuth *middleware.JWTAuth, limiter middleware.Limiter, maxMessageBytes int64, logger *zap.Logger) *Hub {
	return &Hub{
		connections:     make(map[uuid.UUID]*websocket.Conn),
		relay:           relay,
		jwtAuth:         jwtAuth,
		limiter:         limiter,
		maxMessageBytes: maxMessageBytes,
		logger:          logger,
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	key := middleware.ClientKey(r)

	// Browsers cannot set headers on websocket upgrades, so the token rides in the query.
	if h.jwtAuth != nil {
		sub, err := h.jwtAuth.ParseToken(r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if sub != "" {
			key = sub
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.New()
	h.registerConnection(id, conn)
	defer h.unregisterConnection(id, conn)

	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", zap.Stringer("conn_id", id), zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		reply := h.handleFrame(r.Context(), key, data)

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(reply); err != nil {
			h.logger.Warn("websocket write failed", zap.Stringer("conn_id", id), zap.Error(err))
			return
		}
	}
}

func (h *Hub) handleFrame(ctx context.Context, key string, data []byte) models.WSChatResponse {
	var req models.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return models.WSChatResponse{
			Status: http.StatusInternalServerError,
			Error:  fmt.Sprintf("invalid request body: %v", err),
		}
	}

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(ctx, key)
		if err != nil {
			h.logger.Warn("rate limiter unavailable", zap.Error(err))
		}
		if !allowed {
			return models.WSChatResponse{
				Status: http.StatusTooManyRequests,
				Error:  middleware.RateLimitMessage,
			}
		}
	}

	outcome := handlers.NewOutcome(h.relay.Relay(ctx, req))
	return models.WSChatResponse{
		Status:   outcome.Status,
		Response: outcome.Response,
		Degraded: outcome.Degraded,
		Error:    outcome.Error,
	}
}

func (h *Hub) registerConnection(id uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[id] = conn
	h.logger.Info("websocket connected", zap.Stringer("conn_id", id), zap.Int("total", len(h.connections)))
}

func (h *Hub) unregisterConnection(id uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()
	delete(h.connections, id)
	h.logger.Info("websocket disconnected", zap.Stringer("conn_id", id), zap.Int("total", len(h.connections)))
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// CloseAll sends a going-away close frame to every connection. http.Server.Shutdown
// does not track hijacked connections, so the server calls this on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for id, conn := range h.connections {
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		delete(h.connections, id)
	}
}

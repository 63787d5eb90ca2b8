package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"mindsync-backend/internal/handlers"
	"mindsync-backend/internal/middleware"
	"mindsync-backend/internal/websocket"
)

// New builds the HTTP router. jwtAuth and limiter are optional. trustProxy
// makes the client address come from X-Forwarded-For / X-Real-IP.
func New(
	chatHandler *handlers.ChatHandler,
	wsHub *websocket.Hub,
	jwtAuth *middleware.JWTAuth,
	limiter middleware.Limiter,
	allowedOrigin string,
	trustProxy bool,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// CORS goes first so every response, including errors and preflights, carries the headers.
	r.Use(middleware.CORS(allowedOrigin))
	if trustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Get("/health", handlers.Health)

	chatRoutes := func(r chi.Router) {
		if jwtAuth != nil {
			r.Use(jwtAuth.Middleware)
		}
		if limiter != nil {
			r.Use(middleware.RateLimit(limiter, logger))
		}
		r.Post("/", chatHandler.Chat)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/chat", chatRoutes)

		// ──── WebSocket ────
		// The hub authenticates and rate limits per frame.
		r.Get("/ws/chat", wsHub.HandleWebSocket)
	})

	// Path used by the web client's function invoke.
	r.Route("/functions/v1/gemini-chat", chatRoutes)

	return r
}

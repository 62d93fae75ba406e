/*
Package handler provides the HTTP handlers and routing setup for the MentorLink server.

This file defines the main Router, applying necessary middleware like logging, tracing, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"mentorlink/internal/app/identity"
	"mentorlink/internal/pkg/limiter"
	"mentorlink/internal/pkg/logx"
	"mentorlink/internal/pkg/resp"
	"mentorlink/internal/pkg/telemetry"
)

const (
	ConnectRate  = 0.5
	ConnectBurst = 10
	SendRate     = 2
	SendBurst    = 20
	CallRate     = 0.2
	CallBurst    = 5
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// The rate limiters' sweepers stop when ctx is cancelled.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	connectLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(ConnectRate), ConnectBurst)
	sendLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(SendRate), SendBurst)
	callLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(CallRate), CallBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)
	r.Use(telemetry.Middleware(logx.ServiceName))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":      "ok",
			"service":     "MentorLink Server",
			"connections": deps.Hub.ConnectionCount(),
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(identity.RequireIdentity(deps.Verifier))

		api.Route("/messages", func(messages chi.Router) {
			messages.Get("/chat-mentors", HandleListPartners(deps))
			messages.With(sendLimiter.Middleware).Post("/", HandleSendMessage(deps))
			messages.Get("/{recipientId}", HandleGetConversation(deps))
			messages.Put("/{senderId}/read", HandleMarkRead(deps))
		})

		api.Get("/users/me", HandleGetMe(deps))

		api.With(callLimiter.Middleware).Post("/calls", HandleCreateCall(deps))
	})

	r.Get("/ws", HandleWebSocket(deps, wsUpgrader, connectLimiter))

	return r
}

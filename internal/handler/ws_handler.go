/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting, upgrading
the HTTP connection to WebSocket and handing it to the hub, which authenticates the credential and
runs the connection's lifecycle.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"mentorlink/internal/app/identity"
	"mentorlink/internal/pkg/errs"
	"mentorlink/internal/pkg/limiter"
	"mentorlink/internal/pkg/logx"
	"mentorlink/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// The credential is read from the "token" query parameter, falling back to an
// Authorization bearer header. Authentication happens after the upgrade so that a
// rejection can be reported with a WebSocket close code.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.Allow(ip) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		credential := r.URL.Query().Get("token")
		if credential == "" {
			credential = identity.BearerToken(r.Header.Get("Authorization"))
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		deps.Hub.Serve(conn, credential)
	}
}

/*
Package handler provides the WebSocket upgrade handler for the real-time
channel.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"parley/internal/app/chat"
	"parley/internal/app/model"
	"parley/internal/pkg/auth/jwt"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/limiter"
	"parley/internal/pkg/logx"
	"parley/internal/pkg/resp"
)

// sessionIdentity resolves the connecting client's identity. Browsers
// cannot set headers on WebSocket upgrades, so a token query parameter is
// accepted alongside the Authorization header. An unresolvable identity
// yields an anonymous session, not an error.
func sessionIdentity(r *http.Request, deps *AppDeps) *model.User {
	payload := jwt.GetPayloadFromContext(r)

	if payload == nil {
		tokenString := r.URL.Query().Get("token")
		if tokenString == "" {
			return nil
		}

		parsed, err := jwt.ParseToken(tokenString, deps.Config.JWTSecret)
		if err != nil {
			logx.Warn("invalid token on WebSocket upgrade, continuing as anonymous", "error", err)
			return nil
		}
		payload = parsed
	}

	user, err := deps.Store.GetUserByID(r.Context(), payload.ID)
	if err != nil {
		logx.Warn("token references unknown user, continuing as anonymous", "user_id", payload.ID)
		return nil
	}

	return &user
}

// HandleWebSocket upgrades the connection and runs the session's read and
// write loops until the client disconnects.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: rate limit exceeded", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		user := sessionIdentity(r, deps)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "failed to upgrade connection to WebSocket")
			return
		}

		session := chat.NewSession(deps.Hub, conn, deps.Chat, user)

		deps.Hub.Attach(session)

		go session.WritePump()

		session.ReadPump()
	}
}

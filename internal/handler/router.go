/*
Package handler provides the HTTP handlers and routing for the chat server.

This file wires the chi router: CORS, request logging, identity extraction,
per-IP rate limits on the abuse-prone routes, and the REST + WebSocket
surface.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"parley/internal/pkg/auth/jwt"
	"parley/internal/pkg/limiter"
	"parley/internal/pkg/logx"
	"parley/internal/pkg/resp"
)

const (
	// RegisterRate limits account creation per IP.
	RegisterRate  = 0.1
	RegisterBurst = 3

	// CreateRoomRate limits room creation per IP.
	CreateRoomRate  = 0.05
	CreateRoomBurst = 2

	// ConnectRate limits WebSocket upgrades per IP.
	ConnectRate  = 0.2
	ConnectBurst = 5
)

// Router builds the application's HTTP routing table.
func Router(deps *AppDeps) http.Handler {
	registerLimiter := limiter.NewIPRateLimiter(rate.Limit(RegisterRate), RegisterBurst)
	createLimiter := limiter.NewIPRateLimiter(rate.Limit(CreateRoomRate), CreateRoomBurst)
	connectLimiter := limiter.NewIPRateLimiter(rate.Limit(ConnectRate), ConnectBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.Environment == "development" {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: origin not allowed", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)
	r.Use(jwt.IdentityExtractor(deps.Config.JWTSecret))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]string{
			"status":  "ok",
			"service": "parley",
		})
	})

	r.Route("/auth", func(auth chi.Router) {
		auth.With(registerLimiter.Middleware).Post("/register", HandleRegister(deps))
		auth.Post("/login", HandleLogin(deps))
	})

	r.Route("/rooms", func(rooms chi.Router) {
		rooms.With(createLimiter.Middleware).Post("/", HandleCreateRoom(deps))
		rooms.Get("/", HandleListRooms(deps))

		rooms.Route("/{roomID}", func(room chi.Router) {
			room.Get("/", HandleGetRoom(deps))
			room.Post("/join", HandleJoinRoom(deps))
			room.Get("/messages", HandleListMessages(deps))
			room.Post("/messages", HandlePostMessage(deps))
		})
	})

	r.Get("/ws", HandleWebSocket(wsUpgrader, connectLimiter, deps))

	return r
}

// Package httpapi wires the HTTP boundary surface: health checks, the
// auth callback/me endpoints, room CRUD, and the Prometheus scrape
// endpoint. The wire protocol's real-time surface lives in wsconn; this
// package only covers the endpoints spec'd as "out of core, for boundary
// completeness".
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nntndfrk/alias-game/internal/apierr"
	"github.com/nntndfrk/alias-game/internal/auth"
	"github.com/nntndfrk/alias-game/internal/cache"
	"github.com/nntndfrk/alias-game/internal/corpus"
	"github.com/nntndfrk/alias-game/internal/logging"
	"github.com/nntndfrk/alias-game/internal/middleware"
	"github.com/nntndfrk/alias-game/internal/ratelimit"
	"github.com/nntndfrk/alias-game/internal/room"
	"github.com/nntndfrk/alias-game/internal/wsconn"
)

// Server bundles the dependencies the HTTP router needs.
type Server struct {
	Validator      auth.TokenValidator
	Users          *corpus.UserStore
	Registry       *room.Registry
	Hub            *wsconn.Hub
	Limiter        *ratelimit.Limiter
	Redis          *cache.Client
	AllowedOrigins []string
}

// Router builds the gin engine: middleware, then every route group.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CorrelationID())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = s.AllowedOrigins
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", middleware.HeaderXCorrelationID)
	r.Use(cors.New(corsCfg))

	r.GET("/health/live", s.liveness)
	r.GET("/health/ready", s.readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(s.Limiter.Global())

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/callback", s.authCallback)
		authGroup.GET("/me", auth.RequireAuth(s.Validator), s.authMe)
	}

	rooms := r.Group("/rooms", auth.RequireAuth(s.Validator))
	{
		rooms.GET("", s.listRooms)
		rooms.GET("/:code", s.getRoom)
		rooms.POST("", s.Limiter.Rooms(), s.createRoom)
		rooms.POST("/:code/join", s.Limiter.Rooms(), s.joinRoom)
		rooms.POST("/:code/leave", s.Limiter.Rooms(), s.leaveRoom)
		rooms.POST("/:code/kick/:player_id", s.Limiter.Rooms(), s.kickPlayer)
	}

	r.GET("/ws", s.Hub.ServeWs)

	return r
}

// liveness reports only that the process is up, with no dependency checks.
func (s *Server) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

// readiness reports whether every critical dependency (the redis-backed rate
// limiter store, when enabled) is reachable, so an orchestrator can hold
// traffic back from a process that is up but not yet able to serve it.
func (s *Server) readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"redis": "healthy"}
	ready := true
	if err := s.Redis.Ping(ctx); err != nil {
		checks["redis"] = "unhealthy"
		ready = false
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "unavailable"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// authCallback upserts the local user record for the authenticated
// principal. The identity provider has already done the real
// authentication; this endpoint just mirrors the principal into our own
// users table on first sight.
func (s *Server) authCallback(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		writeAPIErr(c, apierr.NewUnauthenticated("missing bearer token"))
		return
	}

	principal, err := s.Validator.Validate(c.Request.Context(), token)
	if err != nil {
		writeAPIErr(c, err)
		return
	}

	if s.Users == nil {
		c.JSON(http.StatusOK, gin.H{
			"user_id": principal.Subject,
			"name":    principal.Name,
			"email":   logging.RedactEmail(principal.Email),
		})
		return
	}

	record, err := s.Users.Upsert(c.Request.Context(), principal.Subject, principal.Name, principal.Email)
	if err != nil {
		writeAPIErr(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": record.ExternalID,
		"name":    record.Name,
		"email":   logging.RedactEmail(record.Email),
	})
}

func (s *Server) authMe(c *gin.Context) {
	principal, ok := auth.FromGinContext(c)
	if !ok {
		writeAPIErr(c, apierr.NewUnauthenticated("no authenticated principal"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id": principal.Subject,
		"name":    principal.Name,
		"email":   logging.RedactEmail(principal.Email),
	})
}

func (s *Server) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": s.Registry.SnapshotAll()})
}

func (s *Server) getRoom(c *gin.Context) {
	r, ok := s.Registry.Lookup(c.Param("code"))
	if !ok {
		writeAPIErr(c, apierr.NewNotFound("room not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": r.Info()})
}

type createRoomRequest struct {
	Name       string `json:"name" binding:"required"`
	MaxPlayers int    `json:"max_players" binding:"required"`
}

func (s *Server) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIErr(c, apierr.NewBadRequest("invalid request body"))
		return
	}
	principal, _ := auth.FromGinContext(c)

	r, err := s.Registry.Create(req.Name, req.MaxPlayers, principal.Subject, principal.Name, principal.Name)
	if err != nil {
		writeAPIErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_code": r.RoomCode})
}

func (s *Server) joinRoom(c *gin.Context) {
	principal, _ := auth.FromGinContext(c)
	r, err := s.Registry.Join(c.Request.Context(), c.Param("code"), principal)
	if err != nil {
		writeAPIErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": r.Info()})
}

func (s *Server) leaveRoom(c *gin.Context) {
	principal, _ := auth.FromGinContext(c)
	if err := s.Registry.Leave(c.Request.Context(), c.Param("code"), principal.Subject); err != nil {
		writeAPIErr(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) kickPlayer(c *gin.Context) {
	principal, _ := auth.FromGinContext(c)
	if err := s.Registry.Kick(c.Request.Context(), c.Param("code"), principal.Subject, c.Param("player_id")); err != nil {
		writeAPIErr(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

func writeAPIErr(c *gin.Context, err error) {
	ae := apierr.Of(err)
	c.JSON(ae.HTTPStatus(), gin.H{"error": ae.Message})
}

// Package ratelimit enforces per-IP and per-user request limits over HTTP
// and WebSocket connection attempts, backed by Redis when available and by
// an in-memory store otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/nntndfrk/alias-game/internal/auth"
	"github.com/nntndfrk/alias-game/internal/cache"
	"github.com/nntndfrk/alias-game/internal/config"
	"github.com/nntndfrk/alias-game/internal/logging"
	"github.com/nntndfrk/alias-game/internal/metrics"
)

// Limiter holds the configured rate limiters for every protected surface.
type Limiter struct {
	apiGlobal *limiter.Limiter
	apiRooms  *limiter.Limiter
	wsIP      *limiter.Limiter
	wsUser    *limiter.Limiter
}

// New builds a Limiter. When redisClient is non-nil its connection backs a
// shared Redis store; otherwise limits are tracked in local memory only,
// which is sufficient for a single-process deployment.
func New(cfg *config.Config, redisClient *cache.Client) (*Limiter, error) {
	rates := map[string]string{
		"api_global": cfg.RateLimitAPIGlobal,
		"api_rooms":  cfg.RateLimitAPIRooms,
		"ws_ip":      cfg.RateLimitWsIP,
		"ws_user":    cfg.RateLimitWsUser,
	}
	parsed := make(map[string]limiter.Rate, len(rates))
	for name, formatted := range rates {
		r, err := limiter.NewRateFromFormatted(formatted)
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s (%q): %w", name, formatted, err)
		}
		parsed[name] = r
	}

	var store limiter.Store
	if rdb := redisClient.Raw(); rdb != nil {
		s, err := sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "alias:limiter:"})
		if err != nil {
			return nil, fmt.Errorf("create redis rate limit store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using in-memory store")
	}

	return &Limiter{
		apiGlobal: limiter.New(store, parsed["api_global"]),
		apiRooms:  limiter.New(store, parsed["api_rooms"]),
		wsIP:      limiter.New(store, parsed["ws_ip"]),
		wsUser:    limiter.New(store, parsed["ws_user"]),
	}, nil
}

func keyFor(c *gin.Context) (key, kind string) {
	if p, ok := auth.FromGinContext(c); ok {
		return p.Subject, "user"
	}
	return c.ClientIP(), "ip"
}

// Global returns middleware enforcing the API-wide limit, keyed by user id
// when authenticated and by source IP otherwise.
func (l *Limiter) Global() gin.HandlerFunc {
	return l.middleware(l.apiGlobal, "global")
}

// Rooms returns middleware enforcing the tighter limit on room mutation
// endpoints (create/join/leave/kick).
func (l *Limiter) Rooms() gin.HandlerFunc {
	return l.middleware(l.apiRooms, "rooms")
}

func (l *Limiter) middleware(lim *limiter.Limiter, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, kind := keyFor(c)
		ctx := c.Request.Context()

		result, err := lim.Get(ctx, key)
		if err != nil {
			logging.Error(ctx, "rate limiter store unavailable, failing open")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset, 10))

		metrics.RateLimitRequests.WithLabelValues(endpoint).Inc()
		if result.Reached {
			metrics.RateLimitExceeded.WithLabelValues(endpoint, kind).Inc()
			c.Header("Retry-After", strconv.FormatInt(result.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": result.Reset,
			})
			return
		}

		c.Next()
	}
}

// AllowWebSocketIP checks the per-IP connection-attempt limit before the
// upgrade handshake runs. Returns false (and has already written a response)
// when the limit is exceeded.
func (l *Limiter) AllowWebSocketIP(c *gin.Context) bool {
	ctx := c.Request.Context()
	result, err := l.wsIP.Get(ctx, c.ClientIP())
	if err != nil {
		logging.Error(ctx, "ws rate limiter store unavailable, failing open")
		return true
	}
	if result.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
		return false
	}
	return true
}

// AllowWebSocketUser checks the per-user connection limit after the caller
// has authenticated the connecting principal.
func (l *Limiter) AllowWebSocketUser(ctx context.Context, userID string) error {
	result, err := l.wsUser.Get(ctx, userID)
	if err != nil {
		logging.Error(ctx, "ws rate limiter store unavailable, failing open")
		return nil
	}
	if result.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "user").Inc()
		return fmt.Errorf("rate limit exceeded for user %s", userID)
	}
	return nil
}

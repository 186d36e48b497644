package wsconn

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nntndfrk/alias-game/internal/auth"
	"github.com/nntndfrk/alias-game/internal/broadcast"
	"github.com/nntndfrk/alias-game/internal/corpus"
	"github.com/nntndfrk/alias-game/internal/game"
	"github.com/nntndfrk/alias-game/internal/logging"
	"github.com/nntndfrk/alias-game/internal/metrics"
	"github.com/nntndfrk/alias-game/internal/protocol"
	"github.com/nntndfrk/alias-game/internal/ratelimit"
	"github.com/nntndfrk/alias-game/internal/room"
)

// roundTickInterval is how often an active round's clock is decremented by
// one second, same cadence the ticker advertises in time_remaining.
const roundTickInterval = time.Second

// Hub upgrades incoming HTTP requests to WebSocket connections and wires
// each resulting Client to the shared registry, game engine, and broadcast
// fabric.
type Hub struct {
	validator      auth.TokenValidator
	registry       *room.Registry
	engine         *game.Engine
	fabric         *broadcast.Fabric
	limiter        *ratelimit.Limiter
	archiver       *corpus.GameArchiver
	allowedOrigins []string

	// directory maps roomCode -> userID -> Client, so the engine can
	// unicast word_received to the round's explainer without any
	// connection writing to another connection's socket directly.
	directoryMu sync.Mutex
	directory   map[string]map[string]*Client

	// tickers holds the cancel func of the running round-clock goroutine
	// for each room with an active, unpaused round. start_round installs
	// one, pause_game/round-end cancel it, resume_game installs a fresh
	// one against the round's remaining time.
	tickersMu sync.Mutex
	tickers   map[string]context.CancelFunc
}

// NewHub builds a Hub with its dependencies. archiver may be nil (e.g. the
// in-memory dev corpus has no backing database to archive into).
func NewHub(validator auth.TokenValidator, registry *room.Registry, engine *game.Engine, fabric *broadcast.Fabric, limiter *ratelimit.Limiter, archiver *corpus.GameArchiver, allowedOrigins []string) *Hub {
	return &Hub{
		validator:      validator,
		registry:       registry,
		engine:         engine,
		fabric:         fabric,
		limiter:        limiter,
		archiver:       archiver,
		allowedOrigins: allowedOrigins,
		directory:      make(map[string]map[string]*Client),
		tickers:        make(map[string]context.CancelFunc),
	}
}

// bindDirectory registers client as reachable for direct unicast within
// roomCode/userID, replacing any previous registration for that pair.
func (h *Hub) bindDirectory(roomCode, userID string, client *Client) {
	h.directoryMu.Lock()
	defer h.directoryMu.Unlock()
	users, ok := h.directory[roomCode]
	if !ok {
		users = make(map[string]*Client)
		h.directory[roomCode] = users
	}
	users[userID] = client
}

// unbindDirectory removes client's registration, but only if it is still
// the one registered (a reconnect may have already replaced it).
func (h *Hub) unbindDirectory(roomCode, userID string, client *Client) {
	h.directoryMu.Lock()
	defer h.directoryMu.Unlock()
	if users, ok := h.directory[roomCode]; ok {
		if users[userID] == client {
			delete(users, userID)
		}
		if len(users) == 0 {
			delete(h.directory, roomCode)
		}
	}
}

// unicast delivers frame directly to userID's connection in roomCode, if
// currently connected. A miss is not an error: the explainer may have
// disconnected between drawing the round and this delivery.
func (h *Hub) unicast(roomCode, userID string, frame protocol.Envelope) {
	h.directoryMu.Lock()
	client, ok := h.directory[roomCode][userID]
	h.directoryMu.Unlock()
	if ok {
		client.deliverDirect(frame)
	}
}

// startRoundTicker (re-)arms the per-second clock for roomCode's active
// round, replacing any ticker already running for it. Called after
// start_round and after resume_game.
func (h *Hub) startRoundTicker(roomCode string) {
	h.stopRoundTicker(roomCode)

	ctx, cancel := context.WithCancel(context.Background())
	h.tickersMu.Lock()
	h.tickers[roomCode] = cancel
	h.tickersMu.Unlock()

	go h.runRoundTicker(ctx, roomCode)
}

// stopRoundTicker cancels roomCode's running clock goroutine, if any.
// Called on pause_game and whenever a round ends, so a finished or paused
// round never keeps ticking in the background.
func (h *Hub) stopRoundTicker(roomCode string) {
	h.tickersMu.Lock()
	cancel, ok := h.tickers[roomCode]
	if ok {
		delete(h.tickers, roomCode)
	}
	h.tickersMu.Unlock()
	if ok {
		cancel()
	}
}

func (h *Hub) runRoundTicker(ctx context.Context, roomCode string) {
	ticker := time.NewTicker(roundTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.tickRoundOnce(ctx, roomCode) {
				return
			}
		}
	}
}

// tickRoundOnce decrements roomCode's active round by one second under the
// room's exclusive section and ends the round if time just ran out. It
// reports whether the caller's ticker goroutine should stop.
func (h *Hub) tickRoundOnce(ctx context.Context, roomCode string) bool {
	stop := false
	err := h.registry.Mutate(roomCode, func(r *room.Room) error {
		if r.Game == nil || r.Game.CurrentRound == nil || r.Game.Paused {
			stop = true
			return nil
		}
		remaining := r.Game.CurrentRound.TimeRemaining - 1
		if !h.engine.Tick(r.Game, remaining) {
			return nil
		}
		stop = true
		return h.endRoundLocked(ctx, roomCode, r, h.engine)
	})
	if err != nil {
		logging.Error(ctx, "round ticker could not end round")
		stop = true
	}
	if stop {
		h.stopRoundTicker(roomCode)
	}
	return stop
}

// endRoundLocked finishes the active round and broadcasts round_ended, and
// game_ended if the win condition was reached. Caller must already hold
// the room's exclusive section. Always stops roomCode's round ticker,
// whether the round ended by timeout, word exhaustion, or an explicit
// end_round frame.
func (h *Hub) endRoundLocked(ctx context.Context, roomCode string, r *room.Room, eng *game.Engine) error {
	h.stopRoundTicker(roomCode)

	round := *r.Game.CurrentRound
	nextTeam, err := eng.EndRound(r.Game, nowUTC())
	if err != nil {
		return err
	}
	h.fabric.Publish(ctx, roomCode, protocol.TagRoundEnded, map[string]any{
		"round": round, "next_team_id": nextTeam,
	})

	if r.Game.WinnerTeamID != nil {
		stats := eng.Statistics(r.Game)
		h.fabric.Publish(ctx, roomCode, protocol.TagGameEnded, map[string]any{
			"winner_team": *r.Game.WinnerTeamID, "final_scores": stats.TeamScores,
		})

		finalScores := make(map[string]int, len(stats.TeamScores))
		for id, score := range stats.TeamScores {
			finalScores[string(id)] = score
		}
		startedAt := nowUTC()
		if r.Game.StartedAt != nil {
			startedAt = *r.Game.StartedAt
		}
		endedAt := nowUTC()
		if r.Game.EndedAt != nil {
			endedAt = *r.Game.EndedAt
		}
		h.archiver.Archive(roomCode, string(*r.Game.WinnerTeamID), finalScores, startedAt, endedAt)
	}
	return nil
}

var upgraderWriteBufferPool = &sync.Pool{
	New: func() any { return make([]byte, 4096) },
}

func (h *Hub) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		WriteBufferPool: upgraderWriteBufferPool,
		CheckOrigin:     h.checkOrigin,
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.allowedOrigins {
		allowedURL, err := url.Parse(strings.TrimSpace(allowed))
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}
	return false
}

// ServeWs handles the HTTP -> WebSocket upgrade. Authentication happens
// in-band over the socket via the authenticate frame, not at the HTTP
// layer, since the spec's pre-auth state only permits authenticate/ping.
func (h *Hub) ServeWs(c *gin.Context) {
	if !h.limiter.AllowWebSocketIP(c) {
		return
	}

	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "websocket upgrade failed")
		return
	}

	client := newClient(conn, h)
	metrics.ActiveWebSocketConnections.Inc()

	go client.readLoop()
	client.run()
}

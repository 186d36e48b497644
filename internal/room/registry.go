package room

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/nntndfrk/alias-game/internal/apierr"
	"github.com/nntndfrk/alias-game/internal/broadcast"
	"github.com/nntndfrk/alias-game/internal/logging"
	"github.com/nntndfrk/alias-game/internal/metrics"
	"github.com/nntndfrk/alias-game/internal/protocol"
)

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
const codeLength = 6
const maxCodeCollisionRetries = 10

// reapInterval is how often the abandonment reaper scans for dead rooms.
const reapInterval = time.Minute

// Registry holds every live room, keyed by room code, and provides the
// exclusive-section mutation primitive every room operation goes through.
type Registry struct {
	mu            sync.RWMutex
	rooms         map[string]*Room
	fabric        *broadcast.Fabric
	reapThreshold time.Duration
}

// NewRegistry builds an empty Registry. reapThreshold is how long a room may
// sit with every participant disconnected before the reaper removes it.
func NewRegistry(fabric *broadcast.Fabric, reapThreshold time.Duration) *Registry {
	return &Registry{
		rooms:         make(map[string]*Room),
		fabric:        fabric,
		reapThreshold: reapThreshold,
	}
}

func generateCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// Create allocates a new room with a unique code, admitting creatorID as its
// admin, and emits room_created to the lobby.
func (reg *Registry) Create(name string, maxPlayers int, creatorID, creatorUsername, creatorDisplayName string) (*Room, error) {
	if maxPlayers < MinPlayers || maxPlayers > MaxPlayers {
		return nil, apierr.NewBadRequest(fmt.Sprintf("max_players must be between %d and %d", MinPlayers, MaxPlayers))
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	var code string
	for attempt := 0; ; attempt++ {
		candidate := generateCode()
		if _, exists := reg.rooms[candidate]; !exists {
			code = candidate
			break
		}
		if attempt >= maxCodeCollisionRetries {
			return nil, apierr.NewBadRequest("could not allocate a unique room code")
		}
	}

	now := time.Now()
	r := &Room{
		RoomCode:     code,
		Name:         name,
		AdminID:      creatorID,
		State:        StateWaiting,
		MaxPlayers:   maxPlayers,
		CreatedAt:    now,
		UpdatedAt:    now,
		Participants: make(map[string]*Participant),
	}
	r.addParticipant(&Participant{
		UserID:      creatorID,
		Username:    creatorUsername,
		DisplayName: creatorDisplayName,
		Role:        RoleAdmin,
		IsConnected: true,
		JoinedAt:    now,
	})

	reg.rooms[code] = r
	metrics.ActiveRooms.Inc()
	metrics.RoomParticipants.WithLabelValues(code).Set(1)

	reg.fabric.PublishLobby(context.Background(), protocol.TagRoomCreated, map[string]any{"room_info": r.Info()})
	return r, nil
}

// Lookup returns the room for code without taking its exclusive section;
// callers must not mutate the returned Room outside Mutate.
func (reg *Registry) Lookup(code string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[code]
	return r, ok
}

// Mutate runs fn against the room for code under that room's exclusive
// section, the serialization point every join/leave/kick/game operation
// goes through.
func (reg *Registry) Mutate(code string, fn func(*Room) error) error {
	reg.mu.RLock()
	r, ok := reg.rooms[code]
	reg.mu.RUnlock()
	if !ok {
		return apierr.NewNotFound("room not found")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r)
}

// SnapshotAll returns the Info for every live room. A reader-preferring read
// lock is sufficient here since callers only read denormalized summaries.
func (reg *Registry) SnapshotAll() []Info {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	infos := make([]Info, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		r.mu.Lock()
		infos = append(infos, r.Info())
		r.mu.Unlock()
	}
	return infos
}

// remove deletes a room from the registry and releases its broadcast
// channel. Must be called with reg.mu held for writing.
func (reg *Registry) remove(code string) {
	delete(reg.rooms, code)
	metrics.ActiveRooms.Dec()
	metrics.RoomParticipants.DeleteLabelValues(code)
	reg.fabric.RemoveRoom(code)
}

// deleteIfEmpty removes the room if it has no participants left, publishing
// room_deleted to the lobby. Callers must already hold the room's lock.
func (reg *Registry) deleteIfEmpty(r *Room) {
	if len(r.Participants) > 0 {
		return
	}
	reg.mu.Lock()
	reg.remove(r.RoomCode)
	reg.mu.Unlock()
	reg.fabric.PublishLobby(context.Background(), protocol.TagRoomDeleted, map[string]string{"room_code": r.RoomCode})
}

// RunReaper blocks scanning for abandoned rooms every reapInterval until ctx
// is cancelled. Call it in its own goroutine from process bootstrap.
func (reg *Registry) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.reapOnce()
		}
	}
}

func (reg *Registry) reapOnce() {
	reg.mu.RLock()
	candidates := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		candidates = append(candidates, r)
	}
	reg.mu.RUnlock()

	cutoff := time.Now().Add(-reg.reapThreshold)
	for _, r := range candidates {
		r.mu.Lock()
		shouldReap := r.UpdatedAt.Before(cutoff) && r.allDisconnected()
		code := r.RoomCode
		r.mu.Unlock()

		if !shouldReap {
			continue
		}

		reg.mu.Lock()
		// Re-check under the registry lock in case the room was already
		// removed (e.g. its last participant left) between scan and here.
		_, ok := reg.rooms[code]
		if ok {
			reg.remove(code)
		}
		reg.mu.Unlock()
		if !ok {
			continue
		}

		metrics.RoomsReaped.Inc()
		logging.Info(context.Background(), "reaped abandoned room")
		reg.fabric.PublishLobby(context.Background(), protocol.TagRoomDeleted, map[string]string{"room_code": code})
	}
}

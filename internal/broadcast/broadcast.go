// Package broadcast is the in-process pub/sub fabric connecting the game
// engine and room state machine to every connected client. Each room gets
// its own bounded, lossy channel; one additional channel carries the global
// lobby feed (room_created/room_deleted/room_list updates). There is no
// cross-process fan-out: horizontal scale-out is explicitly out of scope.
package broadcast

import (
	"context"
	"sync"

	"github.com/nntndfrk/alias-game/internal/logging"
	"github.com/nntndfrk/alias-game/internal/metrics"
	"github.com/nntndfrk/alias-game/internal/protocol"
)

// roomChannelBuffer bounds how many envelopes a room's channel can hold;
// once it is full, each newly published envelope is dropped. 100 is generous
// for a handful of players exchanging turn-based game events.
const roomChannelBuffer = 100

// lobbyChannelBuffer bounds the shared lobby channel every connection
// subscribes to once authenticated.
const lobbyChannelBuffer = 256

// Envelope pairs a protocol frame with the room it was published to, so a
// subscriber fanning out to many rooms can tell them apart.
type Envelope struct {
	RoomCode string
	Frame    protocol.Envelope
}

// Fabric is the registry of per-room and lobby broadcast channels. The zero
// value is not usable; construct with New.
type Fabric struct {
	mu    sync.Mutex
	rooms map[string]chan Envelope
	lobby chan Envelope
}

// New constructs an empty Fabric with its lobby channel ready to use.
func New() *Fabric {
	return &Fabric{
		rooms: make(map[string]chan Envelope),
		lobby: make(chan Envelope, lobbyChannelBuffer),
	}
}

// Subscribe returns the channel for roomCode, creating it if this is the
// first subscriber. Channels are never closed by Publish; callers stop
// reading when their connection ends.
func (f *Fabric) Subscribe(roomCode string) <-chan Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.rooms[roomCode]
	if !ok {
		ch = make(chan Envelope, roomChannelBuffer)
		f.rooms[roomCode] = ch
	}
	return ch
}

// SubscribeLobby returns the shared lobby channel.
func (f *Fabric) SubscribeLobby() <-chan Envelope {
	return f.lobby
}

// Publish sends tag/payload to every subscriber of roomCode. The send is
// non-blocking: if the room's channel is full, the envelope is dropped and
// counted in metrics rather than stalling the publisher (the game engine or
// room state machine, which must never block on a slow reader).
func (f *Fabric) Publish(ctx context.Context, roomCode, tag string, payload any) {
	f.mu.Lock()
	ch, ok := f.rooms[roomCode]
	if !ok {
		ch = make(chan Envelope, roomChannelBuffer)
		f.rooms[roomCode] = ch
	}
	f.mu.Unlock()

	env := Envelope{RoomCode: roomCode, Frame: protocol.New(tag, payload)}
	select {
	case ch <- env:
	default:
		metrics.BroadcastDropped.WithLabelValues("room").Inc()
		logging.Warn(ctx, "room broadcast channel full, dropping envelope")
	}
}

// PublishLobby sends tag/payload to every lobby subscriber, dropping on
// overflow exactly like Publish.
func (f *Fabric) PublishLobby(ctx context.Context, tag string, payload any) {
	env := Envelope{Frame: protocol.New(tag, payload)}
	select {
	case f.lobby <- env:
	default:
		metrics.BroadcastDropped.WithLabelValues("lobby").Inc()
		logging.Warn(ctx, "lobby broadcast channel full, dropping envelope")
	}
}

// RemoveRoom discards a room's channel once the room is gone. Any goroutine
// still reading from the old channel (obtained via Subscribe before this
// call) keeps its reference and drains naturally; this only stops new
// publishes from recreating the channel under the same code.
func (f *Fabric) RemoveRoom(roomCode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, roomCode)
}

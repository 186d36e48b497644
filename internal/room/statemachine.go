package room

import (
	"context"
	"time"

	"github.com/nntndfrk/alias-game/internal/apierr"
	"github.com/nntndfrk/alias-game/internal/auth"
	"github.com/nntndfrk/alias-game/internal/metrics"
	"github.com/nntndfrk/alias-game/internal/protocol"
)

// Join admits principal into the room for code. Idempotent for an
// already-present participant: it flips is_connected back on and bumps
// updated_at rather than erroring.
func (reg *Registry) Join(ctx context.Context, code string, principal *auth.Principal) (*Room, error) {
	var room *Room
	err := reg.Mutate(code, func(r *Room) error {
		now := time.Now()
		if existing, ok := r.Participants[principal.Subject]; ok {
			existing.IsConnected = true
			r.touch(now)
			room = r
			return nil
		}

		if len(r.Participants) >= r.MaxPlayers {
			return apierr.NewBadRequest("room is full")
		}

		p := &Participant{
			UserID:      principal.Subject,
			Username:    principal.Name,
			DisplayName: principal.Name,
			Role:        RolePlayer,
			IsConnected: true,
			JoinedAt:    now,
		}
		r.addParticipant(p)
		r.touch(now)
		metrics.RoomParticipants.WithLabelValues(code).Set(float64(len(r.Participants)))

		reg.fabric.Publish(ctx, code, protocol.TagUserJoined, p)
		reg.fabric.Publish(ctx, code, protocol.TagRoomUpdated, r)
		reg.fabric.PublishLobby(ctx, protocol.TagRoomInfoUpdated, map[string]any{"room_info": r.Info()})

		room = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// Leave removes userID from the room. If the room becomes empty it is
// deleted; otherwise, if the leaver was admin, succession picks the first
// remaining participant in join order.
func (reg *Registry) Leave(ctx context.Context, code, userID string) error {
	return reg.Mutate(code, func(r *Room) error {
		if _, ok := r.Participants[userID]; !ok {
			return apierr.NewNotFound("participant not found")
		}

		r.removeParticipant(userID)
		now := time.Now()
		r.touch(now)

		reg.fabric.Publish(ctx, code, protocol.TagUserLeft, map[string]string{"user_id": userID})

		if len(r.Participants) == 0 {
			reg.deleteIfEmpty(r)
			return nil
		}

		if r.AdminID == userID {
			successorID := r.firstRemaining()
			r.AdminID = successorID
			r.Participants[successorID].Role = RoleAdmin
			reg.fabric.Publish(ctx, code, protocol.TagRoleUpdated, map[string]string{
				"user_id": successorID, "role": string(RoleAdmin),
			})
		}

		metrics.RoomParticipants.WithLabelValues(code).Set(float64(len(r.Participants)))
		reg.fabric.Publish(ctx, code, protocol.TagRoomUpdated, r)
		reg.fabric.PublishLobby(ctx, protocol.TagRoomInfoUpdated, map[string]any{"room_info": r.Info()})
		return nil
	})
}

// Kick removes targetID from the room at adminID's request. adminID must be
// the room's current admin and may not target themself.
func (reg *Registry) Kick(ctx context.Context, code, adminID, targetID string) error {
	return reg.Mutate(code, func(r *Room) error {
		if r.AdminID != adminID {
			return apierr.NewForbidden("only the room admin may kick players")
		}
		if targetID == adminID {
			return apierr.NewBadRequest("admin cannot kick themself")
		}
		if _, ok := r.Participants[targetID]; !ok {
			return apierr.NewNotFound("participant not found")
		}

		r.removeParticipant(targetID)
		r.touch(time.Now())
		metrics.RoomParticipants.WithLabelValues(code).Set(float64(len(r.Participants)))

		reg.fabric.Publish(ctx, code, protocol.TagUserKicked, map[string]string{
			"user_id": targetID, "kicked_by": adminID,
		})
		reg.fabric.Publish(ctx, code, protocol.TagRoomUpdated, r)
		reg.fabric.PublishLobby(ctx, protocol.TagRoomInfoUpdated, map[string]any{"room_info": r.Info()})
		return nil
	})
}

// Disconnect soft-disconnects userID: the participant remains in the room
// for reconnection, with is_connected flipped to false.
func (reg *Registry) Disconnect(ctx context.Context, code, userID string) error {
	return reg.Mutate(code, func(r *Room) error {
		p, ok := r.Participants[userID]
		if !ok {
			return apierr.NewNotFound("participant not found")
		}
		p.IsConnected = false
		r.touch(time.Now())
		reg.fabric.Publish(ctx, code, protocol.TagRoomUpdated, r)
		return nil
	})
}

// UpdateRole changes targetID's role. Only the current admin may promote a
// participant; demoting the sole admin is not meaningful and is rejected.
func (reg *Registry) UpdateRole(ctx context.Context, code, callerID, targetID string, role Role) error {
	return reg.Mutate(code, func(r *Room) error {
		if r.AdminID != callerID {
			return apierr.NewForbidden("only the room admin may change roles")
		}
		p, ok := r.Participants[targetID]
		if !ok {
			return apierr.NewNotFound("participant not found")
		}
		if targetID == r.AdminID && role != RoleAdmin {
			return apierr.NewBadRequest("the room admin cannot be demoted")
		}
		p.Role = role
		r.touch(time.Now())
		reg.fabric.Publish(ctx, code, protocol.TagRoleUpdated, map[string]string{
			"user_id": targetID, "role": string(role),
		})
		return nil
	})
}

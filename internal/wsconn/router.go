package wsconn

import (
	"context"
	"time"

	"github.com/nntndfrk/alias-game/internal/apierr"
	"github.com/nntndfrk/alias-game/internal/auth"
	"github.com/nntndfrk/alias-game/internal/game"
	"github.com/nntndfrk/alias-game/internal/protocol"
	"github.com/nntndfrk/alias-game/internal/room"
)

func nowUTC() time.Time { return time.Now().UTC() }

// dispatch routes one inbound frame. Pre-authentication, only authenticate
// and ping are permitted; everything else yields a unicast error.
func (c *Client) dispatch(ctx context.Context, env protocol.Envelope) {
	principal, roomCode := c.state()

	if principal == nil {
		switch env.Type {
		case protocol.TagAuthenticate:
			c.handleAuthenticate(ctx, env)
		case protocol.TagPing:
			c.writeFrame(protocol.New(protocol.TagPong, nil))
		default:
			c.sendError("must authenticate before sending this frame")
		}
		return
	}

	switch env.Type {
	case protocol.TagPing:
		c.writeFrame(protocol.New(protocol.TagPong, nil))
	case protocol.TagRequestRoomList:
		c.writeFrame(protocol.New(protocol.TagRoomList, map[string]any{"rooms": c.hub.registry.SnapshotAll()}))
	case protocol.TagJoinRoom:
		c.handleJoinRoom(ctx, env, principal)
	case protocol.TagLeaveRoom:
		c.handleLeaveRoom(ctx, roomCode, principal)
	case protocol.TagKickPlayer:
		c.handleKickPlayer(ctx, env, roomCode, principal)
	case protocol.TagUpdateRole:
		c.handleUpdateRole(ctx, env, roomCode, principal)
	case protocol.TagJoinTeam:
		c.handleJoinTeam(ctx, env, roomCode, principal)
	case protocol.TagLeaveTeam:
		c.handleLeaveTeam(ctx, roomCode, principal)
	case protocol.TagMarkReady:
		c.handleMarkReady(ctx, roomCode, principal)
	case protocol.TagStartGame:
		c.handleStartGame(ctx, roomCode, principal)
	case protocol.TagStartRound:
		c.handleStartRound(ctx, roomCode, principal)
	case protocol.TagWordAction:
		c.handleWordAction(ctx, env, roomCode, principal)
	case protocol.TagRequestNewWord:
		c.handleWordActionResult(ctx, roomCode, principal, game.ResultSkipped)
	case protocol.TagEndRound:
		c.handleEndRound(ctx, roomCode, principal)
	case protocol.TagPauseGame:
		c.handlePauseResume(ctx, roomCode, principal, true)
	case protocol.TagResumeGame:
		c.handlePauseResume(ctx, roomCode, principal, false)
	default:
		c.sendError("unknown frame type")
	}
}

func (c *Client) state() (*auth.Principal, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.principal, c.roomCode
}

func (c *Client) handleAuthenticate(ctx context.Context, env protocol.Envelope) {
	payload, ok := protocol.Decode[protocol.AuthenticatePayload](env)
	if !ok {
		c.sendError("malformed authenticate payload")
		return
	}

	principal, err := c.hub.validator.Validate(ctx, payload.Token)
	if err != nil {
		c.sendErrorFor(err)
		return
	}

	c.mu.Lock()
	c.principal = principal
	c.lobbySub = c.hub.fabric.SubscribeLobby()
	c.mu.Unlock()

	c.writeFrame(protocol.New(protocol.TagAuthenticated, map[string]string{
		"user_id": principal.Subject,
		"name":    principal.Name,
	}))
}

func (c *Client) handleJoinRoom(ctx context.Context, env protocol.Envelope, principal *auth.Principal) {
	payload, ok := protocol.Decode[protocol.JoinRoomPayload](env)
	if !ok {
		c.sendError("malformed join_room payload")
		return
	}

	if err := c.hub.limiter.AllowWebSocketUser(ctx, principal.Subject); err != nil {
		c.sendErrorFor(err)
		return
	}

	r, err := c.hub.registry.Join(ctx, payload.RoomCode, principal)
	if err != nil {
		c.sendErrorFor(err)
		return
	}

	c.mu.Lock()
	c.roomCode = payload.RoomCode
	c.roomSub = c.hub.fabric.Subscribe(payload.RoomCode)
	c.mu.Unlock()

	c.hub.bindDirectory(payload.RoomCode, principal.Subject, c)
	c.writeFrame(protocol.New(protocol.TagRoomJoined, map[string]any{"room": r}))
}

func (c *Client) handleLeaveRoom(ctx context.Context, roomCode string, principal *auth.Principal) {
	if roomCode == "" {
		c.sendError("not in a room")
		return
	}
	if err := c.hub.registry.Leave(ctx, roomCode, principal.Subject); err != nil {
		c.sendErrorFor(err)
		return
	}
	c.hub.unbindDirectory(roomCode, principal.Subject, c)
	c.mu.Lock()
	c.roomCode = ""
	c.roomSub = nil
	c.mu.Unlock()
}

func (c *Client) handleKickPlayer(ctx context.Context, env protocol.Envelope, roomCode string, principal *auth.Principal) {
	payload, ok := protocol.Decode[protocol.KickPlayerPayload](env)
	if !ok || roomCode == "" {
		c.sendError("malformed kick_player payload")
		return
	}
	if err := c.hub.registry.Kick(ctx, roomCode, principal.Subject, payload.UserID); err != nil {
		c.sendErrorFor(err)
	}
}

func (c *Client) handleUpdateRole(ctx context.Context, env protocol.Envelope, roomCode string, principal *auth.Principal) {
	payload, ok := protocol.Decode[protocol.UpdateRolePayload](env)
	if !ok || roomCode == "" {
		c.sendError("malformed update_role payload")
		return
	}
	if err := c.hub.registry.UpdateRole(ctx, roomCode, principal.Subject, payload.UserID, room.Role(payload.Role)); err != nil {
		c.sendErrorFor(err)
	}
}

// withGame runs fn against the room's lazily-created GameState under the
// room's exclusive section, broadcasting any envelopes fn itself publishes.
func (c *Client) withGame(ctx context.Context, roomCode string, fn func(r *room.Room, g *game.Engine) error) {
	if roomCode == "" {
		c.sendError("not in a room")
		return
	}
	err := c.hub.registry.Mutate(roomCode, func(r *room.Room) error {
		r.EnsureGame()
		return fn(r, c.hub.engine)
	})
	if err != nil {
		c.sendErrorFor(err)
	}
}

func (c *Client) handleJoinTeam(ctx context.Context, env protocol.Envelope, roomCode string, principal *auth.Principal) {
	payload, ok := protocol.Decode[protocol.JoinTeamPayload](env)
	if !ok {
		c.sendError("malformed join_team payload")
		return
	}
	c.withGame(ctx, roomCode, func(r *room.Room, eng *game.Engine) error {
		if err := eng.JoinTeam(r.Game, principal.Subject, game.TeamID(payload.TeamID)); err != nil {
			return err
		}
		c.hub.fabric.Publish(ctx, roomCode, protocol.TagTeamJoined, map[string]any{
			"team": r.Game.TeamForPlayer(principal.Subject), "user_id": principal.Subject,
		})
		c.hub.fabric.Publish(ctx, roomCode, protocol.TagTeamsUpdated, map[string]any{"teams": r.Game.Teams})
		return nil
	})
}

func (c *Client) handleLeaveTeam(ctx context.Context, roomCode string, principal *auth.Principal) {
	c.withGame(ctx, roomCode, func(r *room.Room, eng *game.Engine) error {
		team := r.Game.TeamForPlayer(principal.Subject)
		eng.LeaveTeam(r.Game, principal.Subject)
		if team != nil {
			c.hub.fabric.Publish(ctx, roomCode, protocol.TagTeamLeft, map[string]any{
				"team_id": team.ID, "user_id": principal.Subject,
			})
		}
		c.hub.fabric.Publish(ctx, roomCode, protocol.TagTeamsUpdated, map[string]any{"teams": r.Game.Teams})
		return nil
	})
}

func (c *Client) handleMarkReady(ctx context.Context, roomCode string, principal *auth.Principal) {
	c.withGame(ctx, roomCode, func(r *room.Room, eng *game.Engine) error {
		team := r.Game.TeamForPlayer(principal.Subject)
		if team == nil {
			return apierr.NewBadRequest("not on a team")
		}
		if team.IsReady {
			c.hub.fabric.Publish(ctx, roomCode, protocol.TagTeamReady, map[string]any{"team_id": team.ID})
		}
		return nil
	})
}

func (c *Client) handleStartGame(ctx context.Context, roomCode string, principal *auth.Principal) {
	c.withGame(ctx, roomCode, func(r *room.Room, eng *game.Engine) error {
		if r.AdminID != principal.Subject {
			return apierr.NewForbidden("only the room admin may start the game")
		}
		if err := eng.StartGame(r.Game, nowUTC()); err != nil {
			return err
		}
		c.hub.fabric.Publish(ctx, roomCode, protocol.TagGameStarted, nil)
		return nil
	})
}

func (c *Client) handleStartRound(ctx context.Context, roomCode string, principal *auth.Principal) {
	started := false
	c.withGame(ctx, roomCode, func(r *room.Room, eng *game.Engine) error {
		round, err := eng.StartRound(ctx, r.Game, roomCode, nowUTC())
		if err != nil {
			return err
		}
		started = true
		c.hub.fabric.Publish(ctx, roomCode, protocol.TagRoundStarted, map[string]any{"round": round})
		if len(round.Words) > 0 {
			c.hub.unicast(roomCode, round.ExplainerID, protocol.New(protocol.TagWordReceived, map[string]any{"word": round.Words[0]}))
		}
		return nil
	})
	if started {
		c.hub.startRoundTicker(roomCode)
	}
}

func (c *Client) handleWordAction(ctx context.Context, env protocol.Envelope, roomCode string, principal *auth.Principal) {
	payload, ok := protocol.Decode[protocol.WordActionPayload](env)
	if !ok {
		c.sendError("malformed word_action payload")
		return
	}
	c.handleWordActionResult(ctx, roomCode, principal, game.WordResult(payload.Result))
}

func (c *Client) handleWordActionResult(ctx context.Context, roomCode string, principal *auth.Principal, result game.WordResult) {
	c.withGame(ctx, roomCode, func(r *room.Room, eng *game.Engine) error {
		delta, err := eng.SubmitWordResult(r.Game, principal.Subject, result)
		if err != nil {
			return err
		}
		c.hub.fabric.Publish(ctx, roomCode, protocol.TagWordResultRecorded, map[string]any{
			"result": result, "score_change": delta,
		})

		round := r.Game.CurrentRound
		if round != nil && r.Game.CurrentWordIndex < len(round.Words) {
			next := round.Words[r.Game.CurrentWordIndex]
			c.hub.unicast(roomCode, round.ExplainerID, protocol.New(protocol.TagWordReceived, map[string]any{"word": next}))
			return nil
		}

		return c.hub.endRoundLocked(ctx, roomCode, r, eng)
	})
}

func (c *Client) handleEndRound(ctx context.Context, roomCode string, principal *auth.Principal) {
	c.withGame(ctx, roomCode, func(r *room.Room, eng *game.Engine) error {
		if r.Game.CurrentRound == nil {
			return apierr.NewBadRequest("no active round")
		}
		if r.AdminID != principal.Subject && principal.Subject != r.Game.CurrentRound.ExplainerID {
			return apierr.NewForbidden("only the admin or explainer may end the round")
		}
		return c.hub.endRoundLocked(ctx, roomCode, r, eng)
	})
}

func (c *Client) handlePauseResume(ctx context.Context, roomCode string, principal *auth.Principal, pause bool) {
	succeeded := false
	c.withGame(ctx, roomCode, func(r *room.Room, eng *game.Engine) error {
		if r.AdminID != principal.Subject {
			return apierr.NewForbidden("only the room admin may pause or resume the game")
		}
		var err error
		tag := protocol.TagGameResumed
		if pause {
			err = eng.Pause(r.Game)
			tag = protocol.TagGamePaused
		} else {
			err = eng.Resume(r.Game)
		}
		if err != nil {
			return err
		}
		succeeded = true
		c.hub.fabric.Publish(ctx, roomCode, tag, nil)
		return nil
	})
	if !succeeded {
		return
	}
	if pause {
		c.hub.stopRoundTicker(roomCode)
	} else {
		c.hub.startRoundTicker(roomCode)
	}
}

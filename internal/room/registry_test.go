package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nntndfrk/alias-game/internal/auth"
	"github.com/nntndfrk/alias-game/internal/broadcast"
)

func newTestRegistry() *Registry {
	return NewRegistry(broadcast.New(), time.Minute)
}

func principal(id string) *auth.Principal {
	return &auth.Principal{Subject: id, Name: id, Email: id + "@example.com"}
}

func TestCreateGeneratesValidRoomCode(t *testing.T) {
	reg := newTestRegistry()
	r, err := reg.Create("Test Room", 4, "u1", "U1", "U1")
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9A-Z]{6}$`, r.RoomCode)
	assert.Equal(t, "u1", r.AdminID)
	assert.Equal(t, RoleAdmin, r.Participants["u1"].Role)
}

func TestCreateRejectsOutOfRangeMaxPlayers(t *testing.T) {
	reg := newTestRegistry()
	_, err := reg.Create("Test Room", 1, "u1", "U1", "U1")
	assert.Error(t, err)
}

func TestJoinIsIdempotentForSameParticipant(t *testing.T) {
	reg := newTestRegistry()
	r, err := reg.Create("Room", 4, "u1", "U1", "U1")
	require.NoError(t, err)

	_, err = reg.Join(context.Background(), r.RoomCode, principal("u2"))
	require.NoError(t, err)
	_, err = reg.Join(context.Background(), r.RoomCode, principal("u2"))
	require.NoError(t, err)

	assert.Len(t, r.Participants, 2)
}

func TestJoinRejectsFullRoom(t *testing.T) {
	reg := newTestRegistry()
	r, err := reg.Create("Room", 4, "u1", "U1", "U1")
	require.NoError(t, err)

	for _, id := range []string{"u2", "u3", "u4"} {
		_, err := reg.Join(context.Background(), r.RoomCode, principal(id))
		require.NoError(t, err)
	}

	_, err = reg.Join(context.Background(), r.RoomCode, principal("u5"))
	assert.Error(t, err)
}

func TestLeaveThenJoinRestoresSameParticipantCount(t *testing.T) {
	reg := newTestRegistry()
	r, err := reg.Create("Room", 4, "u1", "U1", "U1")
	require.NoError(t, err)
	_, err = reg.Join(context.Background(), r.RoomCode, principal("u2"))
	require.NoError(t, err)
	before := len(r.Participants)

	require.NoError(t, reg.Leave(context.Background(), r.RoomCode, "u2"))
	_, err = reg.Join(context.Background(), r.RoomCode, principal("u2"))
	require.NoError(t, err)

	assert.Len(t, r.Participants, before)
	assert.True(t, r.Participants["u2"].IsConnected)
}

func TestAdminSuccessionOnLeaveIsDeterministic(t *testing.T) {
	reg := newTestRegistry()
	r, err := reg.Create("Room", 4, "u1", "U1", "U1")
	require.NoError(t, err)
	_, err = reg.Join(context.Background(), r.RoomCode, principal("u2"))
	require.NoError(t, err)

	require.NoError(t, reg.Leave(context.Background(), r.RoomCode, "u1"))

	assert.Len(t, r.Participants, 1)
	assert.Equal(t, "u2", r.AdminID)
	assert.Equal(t, RoleAdmin, r.Participants["u2"].Role)
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	reg := newTestRegistry()
	r, err := reg.Create("Room", 4, "u1", "U1", "U1")
	require.NoError(t, err)

	require.NoError(t, reg.Leave(context.Background(), r.RoomCode, "u1"))

	_, ok := reg.Lookup(r.RoomCode)
	assert.False(t, ok)
}

func TestKickRejectsNonAdmin(t *testing.T) {
	reg := newTestRegistry()
	r, err := reg.Create("Room", 4, "u1", "U1", "U1")
	require.NoError(t, err)
	_, err = reg.Join(context.Background(), r.RoomCode, principal("u2"))
	require.NoError(t, err)

	err = reg.Kick(context.Background(), r.RoomCode, "u2", "u1")
	assert.Error(t, err)
}

func TestKickRemovesTarget(t *testing.T) {
	reg := newTestRegistry()
	r, err := reg.Create("Room", 4, "u1", "U1", "U1")
	require.NoError(t, err)
	_, err = reg.Join(context.Background(), r.RoomCode, principal("u2"))
	require.NoError(t, err)

	require.NoError(t, reg.Kick(context.Background(), r.RoomCode, "u1", "u2"))
	_, ok := r.Participants["u2"]
	assert.False(t, ok)
}

func TestUpdateRoleRequiresAdmin(t *testing.T) {
	reg := newTestRegistry()
	r, err := reg.Create("Room", 4, "u1", "U1", "U1")
	require.NoError(t, err)
	_, err = reg.Join(context.Background(), r.RoomCode, principal("u2"))
	require.NoError(t, err)

	err = reg.UpdateRole(context.Background(), r.RoomCode, "u2", "u1", RolePlayer)
	assert.Error(t, err)
}

func TestMutateReturnsNotFoundForUnknownCode(t *testing.T) {
	reg := newTestRegistry()
	err := reg.Mutate("NOPE01", func(*Room) error { return nil })
	assert.Error(t, err)
}

func TestReapOnceRemovesAbandonedRoom(t *testing.T) {
	reg := NewRegistry(broadcast.New(), 0)
	r, err := reg.Create("Room", 4, "u1", "U1", "U1")
	require.NoError(t, err)
	require.NoError(t, reg.Disconnect(context.Background(), r.RoomCode, "u1"))

	reg.reapOnce()

	_, ok := reg.Lookup(r.RoomCode)
	assert.False(t, ok)
}

func TestSnapshotAllReflectsLiveRooms(t *testing.T) {
	reg := newTestRegistry()
	_, err := reg.Create("Room A", 4, "u1", "U1", "U1")
	require.NoError(t, err)
	_, err = reg.Create("Room B", 4, "u2", "U2", "U2")
	require.NoError(t, err)

	infos := reg.SnapshotAll()
	assert.Len(t, infos, 2)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-arena/internal/domain"
)

func TestMatchmaking_SendRejectsSelfAndBadConfigBeforeWriting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.user(t, "a")

	_, err := f.match.Send(ctx, a, a.UserID, geography(5))
	assert.ErrorIs(t, err, ErrSelfChallenge)
	assert.ErrorIs(t, err, ErrValidation)

	b := f.user(t, "b")
	_, err = f.match.Send(ctx, a, b.UserID, domain.GameConfig{Categories: []string{"Geography"}, RowCount: 11})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.match.Send(ctx, a, b.UserID, domain.GameConfig{Categories: []string{"Science"}, RowCount: 1})
	assert.ErrorIs(t, err, ErrUnknownCategory)

	_, err = f.match.Send(ctx, a, "4b0c5d52-0000-4000-8000-000000000000", geography(5))
	assert.ErrorIs(t, err, ErrUserNotFound)

	out, err := f.match.ListOutgoing(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMatchmaking_OnePendingRequestPerPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")

	_, err := f.match.Send(ctx, a, b.UserID, geography(5))
	require.NoError(t, err)

	_, err = f.match.Send(ctx, a, b.UserID, geography(5))
	assert.ErrorIs(t, err, ErrRequestPending)
	_, err = f.match.Send(ctx, b, a.UserID, geography(5))
	assert.ErrorIs(t, err, ErrRequestPending, "the reverse direction is the same pair")

	f.advance(domain.DefaultMatchRequestTTL + time.Second)
	_, err = f.match.Send(ctx, b, a.UserID, geography(5))
	assert.NoError(t, err, "an expired challenge no longer blocks the pair")
}

func TestMatchmaking_AcceptCreatesStartedRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	req, err := f.match.Send(ctx, a, b.UserID, geography(3))
	require.NoError(t, err)

	incoming, err := f.match.ListIncoming(ctx, b)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, req.ID, incoming[0].ID)

	resolved, err := f.match.Respond(ctx, b, req.ID, true)

	require.NoError(t, err)
	assert.Equal(t, domain.MatchAccepted, resolved.Status)
	require.NotNil(t, resolved.RoomID)

	state, err := f.rooms.Get(ctx, a, *resolved.RoomID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomPlaying, state.Room.Status)
	assert.Equal(t, a.UserID, state.Room.HostUserID)
	assert.Equal(t, a.UserID, *state.Room.CurrentTurnUserID)
	assert.Equal(t, matchRoomPlayers, state.Room.MaxPlayers)
	assert.Equal(t, 2, state.Room.CurrentPlayerCount)
	assert.Equal(t, geography(3), state.Room.GameConfig.Data())

	for _, s := range []*domain.Session{a, b} {
		p, err := f.stores.Presence.FindByUserID(ctx, s.UserID)
		require.NoError(t, err)
		assert.Equal(t, domain.PresenceInGame, p.Status)
	}

	stored, err := f.stores.Requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, *resolved.RoomID, *stored.RoomID)
}

func TestMatchmaking_SecondResponseIsConflictAndCreatesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	req, err := f.match.Send(ctx, a, b.UserID, geography(5))
	require.NoError(t, err)

	_, err = f.match.Respond(ctx, b, req.ID, true)
	require.NoError(t, err)
	_, err = f.match.Respond(ctx, b, req.ID, true)
	assert.ErrorIs(t, err, ErrRequestResolved)
	_, err = f.match.Respond(ctx, b, req.ID, false)
	assert.ErrorIs(t, err, ErrConflict)

	assert.Equal(t, 1, f.store.CountRooms())
	stored, err := f.stores.Requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchAccepted, stored.Status)
}

func TestMatchmaking_OnlyTargetMayRespond(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	req, err := f.match.Send(ctx, a, b.UserID, geography(5))
	require.NoError(t, err)

	_, err = f.match.Respond(ctx, a, req.ID, true)
	assert.ErrorIs(t, err, ErrNotRequestTarget)

	_, err = f.match.Respond(ctx, b, "missing", true)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestMatchmaking_DeclineCreatesNoRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	req, err := f.match.Send(ctx, a, b.UserID, geography(5))
	require.NoError(t, err)

	resolved, err := f.match.Respond(ctx, b, req.ID, false)

	require.NoError(t, err)
	assert.Equal(t, domain.MatchDeclined, resolved.Status)
	assert.Nil(t, resolved.RoomID)
	assert.Zero(t, f.store.CountRooms())
}

func TestMatchmaking_ExpiredRequestIsHiddenAndCannotBeAccepted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	req, err := f.match.Send(ctx, a, b.UserID, geography(5))
	require.NoError(t, err)

	f.advance(domain.DefaultMatchRequestTTL)

	incoming, err := f.match.ListIncoming(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, incoming, "expiry is applied at read time without the sweeper")
	_, err = f.match.Respond(ctx, b, req.ID, true)
	assert.ErrorIs(t, err, ErrRequestResolved)

	n, err := f.match.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	stored, err := f.stores.Requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchExpired, stored.Status)
}

func TestMatchmaking_AcceptRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	req, err := f.match.Send(ctx, a, b.UserID, geography(5))
	require.NoError(t, err)

	f.store.FailNext("presence.Upsert", assert.AnError)
	_, err = f.match.Respond(ctx, b, req.ID, true)

	assert.ErrorIs(t, err, ErrTransient)
	assert.Zero(t, f.store.CountRooms())
	stored, err := f.stores.Requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchPending, stored.Status)
	assert.Nil(t, stored.RoomID)

	resolved, err := f.match.Respond(ctx, b, req.ID, true)
	require.NoError(t, err, "the request can still be accepted after the failure")
	assert.Equal(t, domain.MatchAccepted, resolved.Status)
	assert.Equal(t, 1, f.store.CountRooms())
}

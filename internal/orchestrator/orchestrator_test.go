package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/service"
)

const (
	alice = "u-alice"
	bob   = "u-bob"
	room  = "room-1"
)

// fakeGame keeps one room in memory and applies the same turn rules as the
// game service: an answer consumes the question and passes the turn.
type fakeGame struct {
	mu       sync.Mutex
	rs       domain.RoomState
	timeout  time.Duration
	answers  []domain.Answer
	stateErr error
}

func newFakeGame(status domain.RoomStatus, turn string, timeout time.Duration) *fakeGame {
	t0 := time.Now().Add(-time.Minute)
	g := &fakeGame{timeout: timeout}
	g.rs.Room = domain.GameRoom{ID: room, Status: status, MaxPlayers: 2, CurrentPlayerCount: 2}
	if turn != "" {
		g.rs.Room.CurrentTurnUserID = &turn
	}
	g.rs.Players = []domain.GameRoomPlayer{
		{ID: "p1", RoomID: room, UserID: alice, IsActive: true, IsHost: true, JoinedAt: t0},
		{ID: "p2", RoomID: room, UserID: bob, IsActive: true, JoinedAt: t0.Add(time.Second)},
	}
	return g
}

func (g *fakeGame) State(context.Context, *domain.Session, string) (*domain.RoomState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stateErr != nil {
		return nil, g.stateErr
	}
	rs := g.rs
	rs.Players = append([]domain.GameRoomPlayer(nil), g.rs.Players...)
	rs.Questions = append([]domain.RoomQuestion(nil), g.rs.Questions...)
	return &rs, nil
}

func (g *fakeGame) SelectQuestion(_ context.Context, s *domain.Session, _ string, questionID string) (*domain.BoardCell, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rs.Questions = append(g.rs.Questions, domain.RoomQuestion{
		RoomID: room, QuestionID: questionID, SelectedBy: s.UserID, SelectedAt: time.Now(),
	})
	return &domain.BoardCell{QuestionID: questionID}, nil
}

func (g *fakeGame) SubmitAnswer(_ context.Context, s *domain.Session, _ string, questionID string, a domain.Answer) (*domain.AnswerResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, q := range g.rs.Questions {
		if q.QuestionID != questionID {
			continue
		}
		if q.IsAnswered {
			return nil, service.ErrQuestionAnswered
		}
		g.rs.Questions[i].IsAnswered = true
		g.answers = append(g.answers, a)
		next := alice
		if s.UserID == alice {
			next = bob
		}
		g.rs.Room.CurrentTurnUserID = &next
		return &domain.AnswerResult{QuestionID: questionID, UserID: s.UserID, Answer: a, NextTurn: &next}, nil
	}
	return nil, service.ErrQuestionNotSelected
}

func (g *fakeGame) AnswerTimeout() time.Duration { return g.timeout }

func (g *fakeGame) submitted() []domain.Answer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Answer(nil), g.answers...)
}

func sessionOf(userID string) *domain.Session {
	return &domain.Session{ID: "jti-" + userID, UserID: userID, State: domain.SessionActive, ExpiresAt: time.Now().Add(time.Hour)}
}

func TestDerive(t *testing.T) {
	turn := alice
	base := domain.RoomState{Room: domain.GameRoom{Status: domain.RoomPlaying, CurrentTurnUserID: &turn}}

	tests := []struct {
		name         string
		mutate       func(rs *domain.RoomState)
		userID       string
		wantState    State
		wantQuestion string
	}{
		{"waiting room", func(rs *domain.RoomState) { rs.Room.Status = domain.RoomWaiting }, alice, StateIdle, ""},
		{"finished room", func(rs *domain.RoomState) { rs.Room.Status = domain.RoomFinished }, alice, StateFinished, ""},
		{"someone else's turn", func(rs *domain.RoomState) {}, bob, StateAwaitingTurn, ""},
		{"my turn, nothing selected", func(rs *domain.RoomState) {}, alice, StateSelecting, ""},
		{"my turn, answered question only", func(rs *domain.RoomState) {
			rs.Questions = []domain.RoomQuestion{{QuestionID: "q1", SelectedBy: alice, IsAnswered: true}}
		}, alice, StateSelecting, ""},
		{"my turn, my open question", func(rs *domain.RoomState) {
			rs.Questions = []domain.RoomQuestion{{QuestionID: "q1", SelectedBy: alice}}
		}, alice, StateAnswering, "q1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := base
			tt.mutate(&rs)

			state, question := derive(&rs, tt.userID)

			assert.Equal(t, tt.wantState, state)
			assert.Equal(t, tt.wantQuestion, question)
		})
	}
}

func TestOrchestrator_SelectThenSubmit(t *testing.T) {
	game := newFakeGame(domain.RoomPlaying, alice, time.Minute)
	var mu sync.Mutex
	var seen []State
	o := New(game, sessionOf(alice), room, func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s.State)
		mu.Unlock()
	})
	defer o.Close()
	ctx := context.Background()

	require.NoError(t, o.Sync(ctx))
	assert.Equal(t, StateSelecting, o.State())

	require.NoError(t, o.Select(ctx, "q1"))
	snap := o.Snapshot()
	assert.Equal(t, StateAnswering, snap.State)
	assert.Equal(t, "q1", snap.QuestionID)
	require.NotNil(t, snap.Deadline)

	res, err := o.Submit(ctx, domain.OptionAnswer(1))
	require.NoError(t, err)
	assert.Equal(t, "q1", res.QuestionID)
	assert.Equal(t, StateAwaitingTurn, o.State())
	assert.Nil(t, o.Snapshot().Deadline)

	mu.Lock()
	assert.Equal(t, []State{StateSelecting, StateAnswering, StateAwaitingTurn}, seen)
	mu.Unlock()
}

func TestOrchestrator_CommandsCheckState(t *testing.T) {
	game := newFakeGame(domain.RoomPlaying, alice, time.Minute)
	o := New(game, sessionOf(bob), room, nil)
	defer o.Close()
	ctx := context.Background()
	require.NoError(t, o.Sync(ctx))
	require.Equal(t, StateAwaitingTurn, o.State())

	err := o.Select(ctx, "q1")
	assert.ErrorIs(t, err, ErrWrongState)
	assert.ErrorIs(t, err, service.ErrConflict)

	_, err = o.Submit(ctx, domain.OptionAnswer(0))
	assert.ErrorIs(t, err, ErrWrongState)
	assert.Empty(t, game.submitted())
}

func TestOrchestrator_TimerSubmitsTimeout(t *testing.T) {
	game := newFakeGame(domain.RoomPlaying, alice, 30*time.Millisecond)
	o := New(game, sessionOf(alice), room, nil)
	defer o.Close()
	ctx := context.Background()
	require.NoError(t, o.Sync(ctx))

	require.NoError(t, o.Select(ctx, "q1"))

	assert.Eventually(t, func() bool { return o.State() == StateAwaitingTurn }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []domain.Answer{{Kind: domain.AnswerTimeout}}, game.submitted())
}

func TestOrchestrator_SubmitDisarmsTimer(t *testing.T) {
	game := newFakeGame(domain.RoomPlaying, alice, 40*time.Millisecond)
	o := New(game, sessionOf(alice), room, nil)
	defer o.Close()
	ctx := context.Background()
	require.NoError(t, o.Sync(ctx))
	require.NoError(t, o.Select(ctx, "q1"))

	_, err := o.Submit(ctx, domain.OptionAnswer(2))
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, []domain.Answer{domain.OptionAnswer(2)}, game.submitted())
}

func TestOrchestrator_ReconnectAfterDeadlineTimesOutAtOnce(t *testing.T) {
	game := newFakeGame(domain.RoomPlaying, alice, 50*time.Millisecond)
	game.rs.Questions = []domain.RoomQuestion{{
		RoomID: room, QuestionID: "q7", SelectedBy: alice, SelectedAt: time.Now().Add(-time.Hour),
	}}
	o := New(game, sessionOf(alice), room, nil)
	defer o.Close()

	require.NoError(t, o.Sync(context.Background()))

	assert.Eventually(t, func() bool { return len(game.submitted()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.AnswerTimeout, game.submitted()[0].Kind)
}

func TestOrchestrator_ReconcileFromBroadcast(t *testing.T) {
	game := newFakeGame(domain.RoomPlaying, bob, time.Minute)
	o := New(game, sessionOf(alice), room, nil)
	defer o.Close()

	rs, err := game.State(context.Background(), nil, room)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingTurn, o.Reconcile(rs))

	rs.Room.Status = domain.RoomFinished
	assert.Equal(t, StateFinished, o.Reconcile(rs))
}

func TestOrchestrator_SyncErrorKeepsState(t *testing.T) {
	game := newFakeGame(domain.RoomPlaying, alice, time.Minute)
	o := New(game, sessionOf(alice), room, nil)
	defer o.Close()
	require.NoError(t, o.Sync(context.Background()))
	game.stateErr = service.ErrTransient

	err := o.Sync(context.Background())

	assert.ErrorIs(t, err, service.ErrTransient)
	assert.Equal(t, StateSelecting, o.State())
}

func TestOrchestrator_CloseStopsTimerAndCommands(t *testing.T) {
	game := newFakeGame(domain.RoomPlaying, alice, 30*time.Millisecond)
	o := New(game, sessionOf(alice), room, nil)
	ctx := context.Background()
	require.NoError(t, o.Sync(ctx))
	require.NoError(t, o.Select(ctx, "q1"))

	o.Close()
	time.Sleep(80 * time.Millisecond)

	assert.Empty(t, game.submitted())
	assert.ErrorIs(t, o.Sync(ctx), ErrClosed)
	_, err := o.Submit(ctx, domain.OptionAnswer(0))
	assert.ErrorIs(t, err, ErrClosed)
}

package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/infra/persistence/memory"
	"quiz-arena/internal/realtime"
)

// correctOption is the index seeded as correct for every test question.
const correctOption = 1

type fixture struct {
	store    *memory.Store
	stores   Stores
	bus      *realtime.MemoryBroadcaster
	rooms    *RoomService
	game     *GameService
	match    *MatchmakingService
	presence *PresenceService
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.NewStore()
	f := &fixture{
		store: st,
		stores: Stores{
			Tx:        st,
			Users:     st.Users(),
			Presence:  st.Presence(),
			Requests:  st.MatchRequests(),
			Rooms:     st.Rooms(),
			Players:   st.Players(),
			Ledger:    st.RoomQuestions(),
			Questions: st.Questions(),
		},
		bus:   realtime.NewMemoryBroadcaster(),
		clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	t.Cleanup(f.bus.Close)

	now := func() time.Time { return f.clock }
	f.rooms = NewRoomService(f.stores, f.bus)
	f.rooms.now = now
	f.game = NewGameService(f.stores, f.bus, 0)
	f.game.now = now
	f.match = NewMatchmakingService(f.stores, 0)
	f.match.now = now
	f.presence = NewPresenceService(st.Presence(), 0)
	f.presence.now = now

	seedBoard(st, "Geography", "History")
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

// user registers an account and returns an active session for it.
func (f *fixture) user(t *testing.T, name string) *domain.Session {
	t.Helper()
	u := &domain.User{Username: name, DisplayName: name, Password: "x"}
	require.NoError(t, f.stores.Users.Save(context.Background(), u))
	return &domain.Session{
		ID:          uuid.NewString(),
		UserID:      u.ID,
		DisplayName: name,
		State:       domain.SessionActive,
		IssuedAt:    f.clock,
		ExpiresAt:   f.clock.Add(24 * time.Hour),
	}
}

// seedBoard adds questions worth 100..500 to each category.
func seedBoard(st *memory.Store, categories ...string) {
	for _, cat := range categories {
		for row := 1; row <= 5; row++ {
			st.SeedQuestions(domain.Question{
				ID:       uuid.NewString(),
				Category: cat,
				Prompt:   fmt.Sprintf("%s for %d", cat, row*100),
				Points:   row * 100,
				Options: datatypes.NewJSONType([]domain.QuestionOption{
					{Text: "wrong"}, {Text: "right", Correct: true}, {Text: "also wrong"},
				}),
			})
		}
	}
}

// questionWorth finds the board question of cat worth points.
func (f *fixture) questionWorth(t *testing.T, cat string, points int) string {
	t.Helper()
	board, err := f.stores.Questions.ListBoard(context.Background(), []string{cat}, 5)
	require.NoError(t, err)
	for _, q := range board {
		if q.Points == points {
			return q.ID
		}
	}
	t.Fatalf("no %s question worth %d", cat, points)
	return ""
}

// startedRoom creates a room hosted by the first session, seats the rest and starts it.
func (f *fixture) startedRoom(t *testing.T, cfg domain.GameConfig, players ...*domain.Session) *domain.RoomState {
	t.Helper()
	ctx := context.Background()
	state, err := f.rooms.Create(ctx, players[0], cfg, len(players)+1)
	require.NoError(t, err)
	for _, p := range players[1:] {
		f.advance(time.Second)
		_, err := f.rooms.Join(ctx, p, state.Room.RoomCode)
		require.NoError(t, err)
	}
	state, err = f.rooms.Start(ctx, players[0], state.Room.ID)
	require.NoError(t, err)
	return state
}

// play selects the question and answers it on behalf of session.
func (f *fixture) play(t *testing.T, session *domain.Session, roomID, questionID string, answer domain.Answer) *domain.AnswerResult {
	t.Helper()
	ctx := context.Background()
	_, err := f.game.SelectQuestion(ctx, session, roomID, questionID)
	require.NoError(t, err)
	res, err := f.game.SubmitAnswer(ctx, session, roomID, questionID, answer)
	require.NoError(t, err)
	return res
}

func geography(rows int) domain.GameConfig {
	return domain.GameConfig{Categories: []string{"Geography"}, RowCount: rows}
}

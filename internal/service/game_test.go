package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/realtime"
)

func TestGame_EndToEndScenario(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "alice"), f.user(t, "bob")

	// Act & Assert: create
	state, err := f.rooms.Create(ctx, a, geography(5), 4)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomWaiting, state.Room.Status)
	assert.Len(t, state.Room.RoomCode, roomCodeLength)

	// join
	f.advance(time.Second)
	state, err = f.rooms.Join(ctx, b, state.Room.RoomCode)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Room.CurrentPlayerCount)

	// start
	state, err = f.rooms.Start(ctx, a, state.Room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomPlaying, state.Room.Status)
	require.NotNil(t, state.Room.CurrentTurnUserID)
	assert.Equal(t, a.UserID, *state.Room.CurrentTurnUserID)

	// select the 300 question and answer correctly
	q300 := f.questionWorth(t, "Geography", 300)
	res := f.play(t, a, state.Room.ID, q300, domain.OptionAnswer(correctOption))

	assert.Equal(t, domain.OutcomeCorrect, res.Outcome)
	assert.Equal(t, 300, res.Score)
	require.NotNil(t, res.NextTurn)
	assert.Equal(t, b.UserID, *res.NextTurn)

	state, err = f.rooms.Get(ctx, a, state.Room.ID)
	require.NoError(t, err)
	pa, _ := state.Player(a.UserID)
	assert.Equal(t, 300, pa.Score)
	assert.Equal(t, b.UserID, *state.Room.CurrentTurnUserID)
	rec, err := f.stores.Ledger.Find(ctx, state.Room.ID, q300)
	require.NoError(t, err)
	assert.True(t, rec.IsAnswered)
	require.NotNil(t, rec.AnsweredBy)
	assert.Equal(t, a.UserID, *rec.AnsweredBy)
}

func TestGame_TurnRotatesInJoinOrderWithWraparound(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.user(t, "a"), f.user(t, "b"), f.user(t, "c")
	cfg := domain.GameConfig{Categories: []string{"Geography", "History"}, RowCount: 5}
	state := f.startedRoom(t, cfg, a, b, c)
	roomID := state.Room.ID

	answers := []domain.Answer{
		domain.OptionAnswer(0), {Kind: domain.AnswerSkip}, domain.OptionAnswer(correctOption),
	}
	order := []*domain.Session{a, b, c}
	want := []string{b.UserID, c.UserID, a.UserID}
	questions := []string{
		f.questionWorth(t, "History", 500), f.questionWorth(t, "Geography", 100), f.questionWorth(t, "History", 200),
	}

	for i, s := range order {
		res := f.play(t, s, roomID, questions[i], answers[i])
		require.NotNil(t, res.NextTurn)
		assert.Equal(t, want[i], *res.NextTurn, "after player %d answers", i)
	}
}

func TestGame_ScoreChangesOnlyForCorrectOption(t *testing.T) {
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	state := f.startedRoom(t, geography(5), a, b)
	roomID := state.Room.ID

	cases := []struct {
		player *domain.Session
		points int
		answer domain.Answer
		gain   int
	}{
		{a, 300, domain.OptionAnswer(correctOption), 300},
		{b, 100, domain.Answer{Kind: domain.AnswerTimeout}, 0},
		{a, 200, domain.Answer{Kind: domain.AnswerSkip}, 0},
		{b, 400, domain.OptionAnswer(2), 0},
		{a, 500, domain.Answer{Kind: domain.AnswerPass}, 0},
	}
	totals := map[string]int{}
	for _, tc := range cases {
		before := totals[tc.player.UserID]
		res := f.play(t, tc.player, roomID, f.questionWorth(t, "Geography", tc.points), tc.answer)
		assert.Equal(t, tc.gain, res.PointsAwarded)
		assert.Equal(t, before+tc.gain, res.Score)
		totals[tc.player.UserID] += res.PointsAwarded
	}

	final, err := f.rooms.Get(context.Background(), a, roomID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomFinished, final.Room.Status, "the board is used up")
	for _, p := range final.Players {
		assert.Equal(t, totals[p.UserID], p.Score)
	}
}

func TestGame_SubmitIsAtMostOncePerQuestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	state := f.startedRoom(t, geography(5), a, b)
	q := f.questionWorth(t, "Geography", 300)

	f.play(t, a, state.Room.ID, q, domain.OptionAnswer(correctOption))
	_, err := f.game.SubmitAnswer(ctx, a, state.Room.ID, q, domain.OptionAnswer(correctOption))

	assert.ErrorIs(t, err, ErrQuestionAnswered)
	assert.ErrorIs(t, err, ErrConflict)
	p, err := f.stores.Players.Find(ctx, state.Room.ID, a.UserID)
	require.NoError(t, err)
	assert.Equal(t, 300, p.Score)
}

func TestGame_OutOfRangeOptionIsRejectedWithoutWriting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	state := f.startedRoom(t, geography(5), a, b)
	q := f.questionWorth(t, "Geography", 100)
	_, err := f.game.SelectQuestion(ctx, a, state.Room.ID, q)
	require.NoError(t, err)

	_, err = f.game.SubmitAnswer(ctx, a, state.Room.ID, q, domain.OptionAnswer(7))

	assert.ErrorIs(t, err, ErrValidation)
	rec, err := f.stores.Ledger.Find(ctx, state.Room.ID, q)
	require.NoError(t, err)
	assert.False(t, rec.IsAnswered)
}

func TestGame_SelectRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	state := f.startedRoom(t, geography(2), a, b)
	roomID := state.Room.ID

	_, err := f.game.SelectQuestion(ctx, b, roomID, f.questionWorth(t, "Geography", 100))
	assert.ErrorIs(t, err, ErrNotYourTurn)

	_, err = f.game.SelectQuestion(ctx, a, roomID, f.questionWorth(t, "Geography", 500))
	assert.ErrorIs(t, err, ErrQuestionNotOnBoard, "row_count 2 keeps only 100 and 200")

	_, err = f.game.SelectQuestion(ctx, a, roomID, f.questionWorth(t, "History", 100))
	assert.ErrorIs(t, err, ErrQuestionNotOnBoard)

	cell, err := f.game.SelectQuestion(ctx, a, roomID, f.questionWorth(t, "Geography", 100))
	require.NoError(t, err)
	assert.Equal(t, []string{"wrong", "right", "also wrong"}, cell.Options)

	_, err = f.game.SelectQuestion(ctx, a, roomID, f.questionWorth(t, "Geography", 100))
	assert.NoError(t, err, "re-selecting the open question is idempotent")

	_, err = f.game.SelectQuestion(ctx, a, roomID, f.questionWorth(t, "Geography", 200))
	assert.ErrorIs(t, err, ErrQuestionInProgress)

	_, err = f.game.SubmitAnswer(ctx, a, roomID, f.questionWorth(t, "Geography", 200), domain.OptionAnswer(0))
	assert.ErrorIs(t, err, ErrQuestionNotSelected)
}

func TestGame_ReselectKeepsAnswerDeadline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	state := f.startedRoom(t, geography(2), a, b)
	roomID := state.Room.ID
	q := f.questionWorth(t, "Geography", 100)

	_, err := f.game.SelectQuestion(ctx, a, roomID, q)
	require.NoError(t, err)
	selectedAt := f.clock

	f.advance(29 * time.Second)
	cell, err := f.game.SelectQuestion(ctx, a, roomID, q)
	require.NoError(t, err)
	assert.Equal(t, q, cell.QuestionID)

	rec, err := f.stores.Ledger.Find(ctx, roomID, q)
	require.NoError(t, err)
	assert.True(t, rec.SelectedAt.Equal(selectedAt), "selected_at moved to %s", rec.SelectedAt)
	assert.False(t, rec.IsAnswered)
}

func TestGame_BoardMarksAnsweredCells(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	state := f.startedRoom(t, geography(3), a, b)
	q := f.questionWorth(t, "Geography", 200)
	f.play(t, a, state.Room.ID, q, domain.OptionAnswer(0))

	cells, err := f.game.Board(ctx, b, state.Room.ID)

	require.NoError(t, err)
	require.Len(t, cells, 3)
	for _, c := range cells {
		assert.Empty(t, c.Prompt)
		assert.Equal(t, c.QuestionID == q, c.IsAnswered)
	}

	outsider := f.user(t, "eve")
	_, err = f.game.Board(ctx, outsider, state.Room.ID)
	assert.ErrorIs(t, err, ErrNotInRoom)
}

func TestGame_StorageFailureRollsBackAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	state := f.startedRoom(t, geography(5), a, b)
	q := f.questionWorth(t, "Geography", 300)
	_, err := f.game.SelectQuestion(ctx, a, state.Room.ID, q)
	require.NoError(t, err)

	f.store.FailNext("rooms.AdvanceTurn", assert.AnError)
	_, err = f.game.SubmitAnswer(ctx, a, state.Room.ID, q, domain.OptionAnswer(correctOption))

	assert.ErrorIs(t, err, ErrTransient)
	rec, err := f.stores.Ledger.Find(ctx, state.Room.ID, q)
	require.NoError(t, err)
	assert.False(t, rec.IsAnswered)
	p, err := f.stores.Players.Find(ctx, state.Room.ID, a.UserID)
	require.NoError(t, err)
	assert.Zero(t, p.Score)

	res, err := f.game.SubmitAnswer(ctx, a, state.Room.ID, q, domain.OptionAnswer(correctOption))
	require.NoError(t, err, "a retry succeeds once storage recovers")
	assert.Equal(t, 300, res.Score)
}

func TestGame_PublishesEventsAfterCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	state := f.startedRoom(t, geography(5), a, b)
	sub, err := f.bus.Subscribe(ctx, state.Room.ID)
	require.NoError(t, err)
	defer sub.Close()

	f.play(t, a, state.Room.ID, f.questionWorth(t, "Geography", 100), domain.OptionAnswer(correctOption))

	var types []realtime.EventType
	for i := 0; i < 3; i++ {
		select {
		case ev := <-sub.Events():
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
	assert.Equal(t, []realtime.EventType{realtime.EventQuestionSelected, realtime.EventAnswerSubmitted, realtime.EventGameUpdate}, types)
}

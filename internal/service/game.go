package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/realtime"
	"quiz-arena/internal/repository"
)

// GameService enforces the turn rules: select a board question, answer it, pass the turn.
type GameService struct {
	stores        Stores
	publisher     realtime.Publisher
	answerTimeout time.Duration
	now           func() time.Time
}

func NewGameService(stores Stores, publisher realtime.Publisher, answerTimeout time.Duration) *GameService {
	stores.mustBeComplete("GameService")
	if answerTimeout <= 0 {
		answerTimeout = domain.DefaultAnswerTimeout
	}
	return &GameService{stores: stores, publisher: publisher, answerTimeout: answerTimeout, now: time.Now}
}

// AnswerTimeout is how long a selected question stays open.
func (s *GameService) AnswerTimeout() time.Duration { return s.answerTimeout }

// State returns the authoritative snapshot for a player of the room.
func (s *GameService) State(ctx context.Context, session *domain.Session, roomID string) (*domain.RoomState, error) {
	if err := requireActive(session, s.now()); err != nil {
		return nil, err
	}
	state, err := s.stores.loadState(ctx, roomID)
	if err != nil {
		return nil, classify(err)
	}
	if _, ok := state.Player(session.UserID); !ok {
		return nil, ErrNotInRoom
	}
	return state, nil
}

// Board lists the room's questions in category order without prompts or answers.
func (s *GameService) Board(ctx context.Context, session *domain.Session, roomID string) ([]domain.BoardCell, error) {
	state, err := s.State(ctx, session, roomID)
	if err != nil {
		return nil, err
	}
	cfg := state.Room.GameConfig.Data()
	questions, err := s.stores.Questions.ListBoard(ctx, cfg.Categories, cfg.RowCount)
	if err != nil {
		return nil, classify(err)
	}
	answered := make(map[string]domain.RoomQuestion, len(state.Questions))
	for _, rec := range state.Questions {
		answered[rec.QuestionID] = rec
	}
	cells := make([]domain.BoardCell, 0, len(questions))
	for _, q := range questions {
		cell := domain.BoardCell{QuestionID: q.ID, Category: q.Category, Points: q.Points}
		if rec, ok := answered[q.ID]; ok && rec.IsAnswered {
			cell.IsAnswered = true
			cell.AnsweredBy = rec.AnsweredBy
		}
		cells = append(cells, cell)
	}
	return cells, nil
}

// SelectQuestion opens a board question for the player holding the turn. The turn
// does not move until the answer is submitted.
func (s *GameService) SelectQuestion(ctx context.Context, session *domain.Session, roomID, questionID string) (*domain.BoardCell, error) {
	now := s.now()
	if err := requireActive(session, now); err != nil {
		return nil, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": session.UserID, "room_id": roomID, "question_id": questionID})

	var question *domain.Question
	reselected := false
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		room, err := s.stores.lockRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if _, err := s.stores.activePlayer(ctx, roomID, session.UserID); err != nil {
			return err
		}
		if room.Status != domain.RoomPlaying {
			return ErrRoomNotPlaying
		}
		if !room.IsTurnOf(session.UserID) {
			return ErrNotYourTurn
		}

		question, err = s.boardQuestion(ctx, room, questionID)
		if err != nil {
			return err
		}
		ledger, err := s.stores.Ledger.ListByRoom(ctx, roomID)
		if err != nil {
			return err
		}
		for _, rec := range ledger {
			if rec.QuestionID == questionID && rec.IsAnswered {
				return ErrQuestionAnswered
			}
			if rec.QuestionID != questionID && !rec.IsAnswered {
				return ErrQuestionInProgress
			}
			// Selecting the open question again must not restart its answer clock.
			if rec.QuestionID == questionID && rec.SelectedBy == session.UserID {
				reselected = true
			}
		}
		if reselected {
			return nil
		}

		ok, err := s.stores.Ledger.Select(ctx, &domain.RoomQuestion{
			RoomID:     roomID,
			QuestionID: questionID,
			SelectedBy: session.UserID,
			SelectedAt: now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrQuestionAnswered
		}
		return nil
	})
	if err != nil {
		logCtx.WithError(err).Warn("Select question failed")
		return nil, classify(err)
	}

	cell := questionCell(question)
	if reselected {
		logCtx.Debug("Question already selected by caller")
		return &cell, nil
	}
	publish(ctx, s.publisher, realtime.EventQuestionSelected, roomID, session.UserID, realtime.QuestionSelected{
		QuestionID: questionID,
		SelectedBy: session.UserID,
		Cell:       cell,
		Deadline:   now.Add(s.answerTimeout),
	})
	logCtx.Info("Question selected")
	return &cell, nil
}

// SubmitAnswer records the answer to the in-progress question, credits points for a
// correct option, passes the turn and finishes the room once the board is used up.
// A question is answered at most once; a repeat is ErrQuestionAnswered.
func (s *GameService) SubmitAnswer(ctx context.Context, session *domain.Session, roomID, questionID string, answer domain.Answer) (*domain.AnswerResult, error) {
	now := s.now()
	if err := requireActive(session, now); err != nil {
		return nil, err
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"user_id": session.UserID, "room_id": roomID, "question_id": questionID, "answer": answer.String(),
	})

	result := &domain.AnswerResult{RoomID: roomID, QuestionID: questionID, UserID: session.UserID, Answer: answer}
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		room, err := s.stores.lockRoom(ctx, roomID)
		if err != nil {
			return err
		}
		player, err := s.stores.activePlayer(ctx, roomID, session.UserID)
		if err != nil {
			return err
		}
		if room.Status != domain.RoomPlaying {
			return ErrRoomNotPlaying
		}
		rec, err := s.stores.Ledger.Find(ctx, roomID, questionID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrQuestionNotSelected
		}
		if err != nil {
			return err
		}
		if rec.IsAnswered {
			return ErrQuestionAnswered
		}
		if !room.IsTurnOf(session.UserID) || rec.SelectedBy != session.UserID {
			return ErrNotYourTurn
		}

		question, err := s.stores.Questions.FindByID(ctx, questionID)
		if errors.Is(err, repository.ErrQuestionNotFound) {
			return ErrQuestionNotFound
		}
		if err != nil {
			return err
		}
		outcome, points, err := question.Evaluate(answer)
		if err != nil {
			return validation(err)
		}

		by := session.UserID
		ok, err := s.stores.Ledger.MarkAnswered(ctx, roomID, questionID, &by, outcome, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrQuestionAnswered
		}
		result.Outcome, result.PointsAwarded, result.Score = outcome, points, player.Score
		if points > 0 {
			if result.Score, err = s.stores.Players.AddScore(ctx, roomID, session.UserID, points); err != nil {
				return err
			}
		}

		exhausted, err := s.stores.boardExhausted(ctx, room)
		if err != nil {
			return err
		}
		if exhausted {
			if _, err := s.stores.Rooms.Finish(ctx, roomID, now); err != nil {
				return err
			}
			result.RoomFinished = true
			return nil
		}

		players, err := s.stores.Players.ListByRoom(ctx, roomID)
		if err != nil {
			return err
		}
		next, _ := domain.NextTurn(players, session.UserID)
		ok, err = s.stores.Rooms.AdvanceTurn(ctx, roomID, session.UserID, next)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTurnChanged
		}
		result.NextTurn = &next
		return nil
	})
	if err != nil {
		logCtx.WithError(err).Warn("Submit answer failed")
		return nil, classify(err)
	}

	publish(ctx, s.publisher, realtime.EventAnswerSubmitted, roomID, session.UserID, result)
	if state, err := s.stores.loadState(ctx, roomID); err != nil {
		logCtx.WithError(err).Warn("Failed to load room state after answer")
	} else {
		if result.RoomFinished {
			s.stores.markPlayers(ctx, state.Players, domain.PresenceOnline, now)
		}
		publish(ctx, s.publisher, realtime.EventGameUpdate, roomID, session.UserID, state)
	}
	logCtx.WithFields(logrus.Fields{"outcome": result.Outcome, "points": result.PointsAwarded}).Info("Answer submitted")
	return result, nil
}

// boardQuestion returns questionID if it belongs to the room's board.
func (s *GameService) boardQuestion(ctx context.Context, room *domain.GameRoom, questionID string) (*domain.Question, error) {
	cfg := room.GameConfig.Data()
	board, err := s.stores.Questions.ListBoard(ctx, cfg.Categories, cfg.RowCount)
	if err != nil {
		return nil, err
	}
	for i := range board {
		if board[i].ID == questionID {
			return &board[i], nil
		}
	}
	return nil, ErrQuestionNotOnBoard
}

// boardExhausted reports whether every board question has been answered.
func (s Stores) boardExhausted(ctx context.Context, room *domain.GameRoom) (bool, error) {
	cfg := room.GameConfig.Data()
	board, err := s.Questions.ListBoard(ctx, cfg.Categories, cfg.RowCount)
	if err != nil {
		return false, err
	}
	ledger, err := s.Ledger.ListByRoom(ctx, room.ID)
	if err != nil {
		return false, err
	}
	answered := make(map[string]bool, len(ledger))
	for _, rec := range ledger {
		if rec.IsAnswered {
			answered[rec.QuestionID] = true
		}
	}
	for _, q := range board {
		if !answered[q.ID] {
			return false, nil
		}
	}
	return true, nil
}

// forfeitInProgress closes the question userID opened but never answered, as a pass.
func forfeitInProgress(ctx context.Context, stores Stores, roomID, userID string, now time.Time) error {
	ledger, err := stores.Ledger.ListByRoom(ctx, roomID)
	if err != nil {
		return err
	}
	for _, rec := range ledger {
		if !rec.IsAnswered && rec.SelectedBy == userID {
			by := userID
			if _, err := stores.Ledger.MarkAnswered(ctx, roomID, rec.QuestionID, &by, domain.OutcomePass, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// questionCell is the client view of an opened question.
func questionCell(q *domain.Question) domain.BoardCell {
	opts := q.Options.Data()
	texts := make([]string, len(opts))
	for i, o := range opts {
		texts[i] = o.Text
	}
	return domain.BoardCell{
		QuestionID: q.ID,
		Category:   q.Category,
		Points:     q.Points,
		Prompt:     q.Prompt,
		Options:    texts,
	}
}

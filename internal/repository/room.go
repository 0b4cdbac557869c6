package repository

import (
	"context"
	"time"

	"quiz-arena/internal/domain"
)

// RoomRepository stores game_rooms rows. Status changes are conditional updates that
// report whether the row was in the expected state.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.GameRoom) error

	FindByID(ctx context.Context, id string) (*domain.GameRoom, error)

	// FindByIDForUpdate locks the row for the surrounding transaction.
	FindByIDForUpdate(ctx context.Context, id string) (*domain.GameRoom, error)

	// FindByCodeForUpdate looks a room up by code and locks it.
	FindByCodeForUpdate(ctx context.Context, code string) (*domain.GameRoom, error)

	FindByCode(ctx context.Context, code string) (*domain.GameRoom, error)

	// IsCodeExists checks code uniqueness before insert.
	IsCodeExists(ctx context.Context, code string) (bool, error)

	// ListOpen returns waiting rooms that still have a free seat, newest first.
	ListOpen(ctx context.Context, limit int) ([]domain.GameRoom, error)

	// Start moves waiting -> playing and sets the first turn.
	Start(ctx context.Context, id, firstTurnUserID string, at time.Time) (bool, error)

	// Finish moves a waiting or playing room to finished and clears the turn.
	Finish(ctx context.Context, id string, at time.Time) (bool, error)

	// AdvanceTurn sets current_turn_user_id = next WHERE current_turn_user_id = expected.
	AdvanceTurn(ctx context.Context, id, expected, next string) (bool, error)

	SetHost(ctx context.Context, id, hostUserID string) error

	SetPlayerCount(ctx context.Context, id string, count int) error
}

// PlayerRepository stores game_room_players rows.
type PlayerRepository interface {
	Add(ctx context.Context, p *domain.GameRoomPlayer) error

	Find(ctx context.Context, roomID, userID string) (*domain.GameRoomPlayer, error)

	// ListByRoom returns every row of the room (active or not) in join order.
	ListByRoom(ctx context.Context, roomID string) ([]domain.GameRoomPlayer, error)

	SetActive(ctx context.Context, roomID, userID string, active bool) error

	SetHost(ctx context.Context, roomID, userID string, isHost bool) error

	// AddScore atomically increments the score and returns the new value.
	AddScore(ctx context.Context, roomID, userID string, delta int) (int, error)
}

// RoomQuestionRepository stores the answered-question ledger.
type RoomQuestionRepository interface {
	// Select creates the record or refreshes selected_by/selected_at of an
	// unanswered one. It never touches an answered record and then reports false.
	Select(ctx context.Context, rec *domain.RoomQuestion) (bool, error)

	Find(ctx context.Context, roomID, questionID string) (*domain.RoomQuestion, error)

	ListByRoom(ctx context.Context, roomID string) ([]domain.RoomQuestion, error)

	// MarkAnswered is the one-way is_answered transition, conditional on
	// is_answered = false. It reports false when the record was already answered.
	MarkAnswered(ctx context.Context, roomID, questionID string, answeredBy *string, outcome domain.AnswerOutcome, at time.Time) (bool, error)
}

// QuestionRepository reads the external question bank.
type QuestionRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Question, error)

	// ListBoard returns, per category, the rowCount lowest-point questions,
	// ordered by category position then points.
	ListBoard(ctx context.Context, categories []string, rowCount int) ([]domain.Question, error)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/realtime"
	"quiz-arena/internal/repository"
)

// Stores bundles the repositories the game services share. Tx must span all of them.
type Stores struct {
	Tx        repository.Transactor
	Users     repository.UserRepository
	Presence  repository.PresenceRepository
	Requests  repository.MatchRequestRepository
	Rooms     repository.RoomRepository
	Players   repository.PlayerRepository
	Ledger    repository.RoomQuestionRepository
	Questions repository.QuestionRepository
}

func (s Stores) mustBeComplete(owner string) {
	if s.Tx == nil || s.Users == nil || s.Presence == nil || s.Requests == nil ||
		s.Rooms == nil || s.Players == nil || s.Ledger == nil || s.Questions == nil {
		panic("all repositories are required for " + owner)
	}
}

// loadState reads the authoritative snapshot of a room.
func (s Stores) loadState(ctx context.Context, roomID string) (*domain.RoomState, error) {
	room, err := s.Rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	players, err := s.Players.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.Ledger.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return &domain.RoomState{Room: *room, Players: players, Questions: ledger}, nil
}

// lockRoom loads and locks a room for the surrounding transaction.
func (s Stores) lockRoom(ctx context.Context, roomID string) (*domain.GameRoom, error) {
	room, err := s.Rooms.FindByIDForUpdate(ctx, roomID)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return nil, ErrRoomNotFound
	}
	return room, err
}

// activePlayer returns the caller's row, failing with ErrNotInRoom unless it is active.
func (s Stores) activePlayer(ctx context.Context, roomID, userID string) (*domain.GameRoomPlayer, error) {
	p, err := s.Players.Find(ctx, roomID, userID)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		return nil, ErrNotInRoom
	}
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrNotInRoom
	}
	return p, nil
}

// markPlayers writes status for every active player, best effort.
func (s Stores) markPlayers(ctx context.Context, players []domain.GameRoomPlayer, status domain.PresenceStatus, at time.Time) {
	for _, p := range players {
		if p.IsActive {
			writePresence(ctx, s.Presence, p.UserID, p.PlayerName, status, at)
		}
	}
}

// publish sends a broadcast hint after the rows are committed. Failures are logged
// and never fail the operation.
func publish(ctx context.Context, pub realtime.Publisher, t realtime.EventType, roomID, senderID string, payload any) {
	if pub == nil {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "event": t})
	ev, err := realtime.NewEvent(t, roomID, senderID, payload)
	if err != nil {
		logCtx.WithError(err).Error("Failed to build realtime event")
		return
	}
	if err := pub.Publish(ctx, ev); err != nil {
		logCtx.WithError(err).Warn("Failed to publish realtime event")
	}
}

// checkBoard rejects a config with a category the question bank has nothing for,
// since such a board could never be played to the end.
func (s Stores) checkBoard(ctx context.Context, cfg domain.GameConfig) error {
	board, err := s.Questions.ListBoard(ctx, cfg.Categories, cfg.RowCount)
	if err != nil {
		return err
	}
	perCategory := make(map[string]int, len(cfg.Categories))
	for _, q := range board {
		perCategory[q.Category]++
	}
	for _, cat := range cfg.Categories {
		if perCategory[cat] == 0 {
			return fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
		}
	}
	if len(board) < cfg.BoardSize() {
		logrus.WithFields(logrus.Fields{
			"categories": cfg.Categories, "cells": len(board), "full_size": cfg.BoardSize(),
		}).Debug("Board is shorter than configured")
	}
	return nil
}

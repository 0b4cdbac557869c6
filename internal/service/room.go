package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/realtime"
	"quiz-arena/internal/repository"
)

const (
	roomCodeAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	roomCodeLength      = 4
	roomCodeMaxAttempts = 10
	defaultMaxPlayers   = 4
	openRoomsLimit      = 50
)

// RoomService runs the room lifecycle: create, join, start, leave, finish.
type RoomService struct {
	stores    Stores
	publisher realtime.Publisher
	now       func() time.Time
}

func NewRoomService(stores Stores, publisher realtime.Publisher) *RoomService {
	stores.mustBeComplete("RoomService")
	return &RoomService{stores: stores, publisher: publisher, now: time.Now}
}

// Create opens a waiting room with the caller as host and first player.
// maxPlayers 0 selects the default capacity.
func (s *RoomService) Create(ctx context.Context, session *domain.Session, cfg domain.GameConfig, maxPlayers int) (*domain.RoomState, error) {
	now := s.now()
	if err := requireActive(session, now); err != nil {
		return nil, err
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, validation(err)
	}
	if maxPlayers == 0 {
		maxPlayers = defaultMaxPlayers
	}
	if maxPlayers < domain.MinPlayersToStart || maxPlayers > domain.MaxRoomPlayers {
		return nil, fmt.Errorf("%w: max_players must be between %d and %d", ErrValidation, domain.MinPlayersToStart, domain.MaxRoomPlayers)
	}
	if err := s.stores.checkBoard(ctx, cfg); err != nil {
		return nil, classify(err)
	}
	logCtx := logrus.WithField("host_user_id", session.UserID)

	var roomID string
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		room, err := createRoom(ctx, s.stores, cfg, maxPlayers, now, playerSeed{session.UserID, session.DisplayName})
		if err != nil {
			return err
		}
		roomID = room.ID
		return nil
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to create room")
		return nil, classify(err)
	}

	state, err := s.stores.loadState(ctx, roomID)
	if err != nil {
		return nil, classify(err)
	}
	logCtx.WithFields(logrus.Fields{"room_id": roomID, "room_code": state.Room.RoomCode}).Info("Room created successfully")
	return state, nil
}

// Join seats the caller in the room with that code. A caller who already has a row
// reconnects instead of getting a second seat.
func (s *RoomService) Join(ctx context.Context, session *domain.Session, roomCode string) (*domain.RoomState, error) {
	now := s.now()
	if err := requireActive(session, now); err != nil {
		return nil, err
	}
	roomCode = strings.ToUpper(strings.TrimSpace(roomCode))
	if roomCode == "" {
		return nil, fmt.Errorf("%w: room code is required", ErrValidation)
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": session.UserID, "room_code": roomCode})

	var roomID string
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		room, err := s.stores.Rooms.FindByCodeForUpdate(ctx, roomCode)
		if errors.Is(err, repository.ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		roomID = room.ID

		existing, err := s.stores.Players.Find(ctx, room.ID, session.UserID)
		switch {
		case err == nil:
			return s.reconnect(ctx, room, existing)
		case !errors.Is(err, repository.ErrPlayerNotFound):
			return err
		}

		if room.Status != domain.RoomWaiting {
			return ErrRoomNotFound
		}
		if !room.HasSeat() {
			return ErrRoomFull
		}
		player := &domain.GameRoomPlayer{
			RoomID:     room.ID,
			UserID:     session.UserID,
			PlayerName: session.DisplayName,
			IsActive:   true,
			JoinedAt:   now,
		}
		if err := s.stores.Players.Add(ctx, player); err != nil {
			if errors.Is(err, repository.ErrDuplicateEntry) {
				return fmt.Errorf("%w: already seated in this room", ErrConflict)
			}
			return err
		}
		return s.stores.Rooms.SetPlayerCount(ctx, room.ID, room.CurrentPlayerCount+1)
	})
	if err != nil {
		logCtx.WithError(err).Warn("Join room failed")
		return nil, classify(err)
	}

	state, err := s.stores.loadState(ctx, roomID)
	if err != nil {
		return nil, classify(err)
	}
	publish(ctx, s.publisher, realtime.EventGameUpdate, roomID, session.UserID, state)
	logCtx.WithField("room_id", roomID).Info("User joined room successfully")
	return state, nil
}

// reconnect handles Join for a caller who already has a row in room.
func (s *RoomService) reconnect(ctx context.Context, room *domain.GameRoom, p *domain.GameRoomPlayer) error {
	if room.Status == domain.RoomFinished {
		return ErrRoomNotFound
	}
	if p.IsActive {
		return nil
	}
	if !room.HasSeat() {
		return ErrRoomFull
	}
	if err := s.stores.Players.SetActive(ctx, room.ID, p.UserID, true); err != nil {
		return err
	}
	return s.stores.Rooms.SetPlayerCount(ctx, room.ID, room.CurrentPlayerCount+1)
}

// Start moves a waiting room to playing. The earliest-joined active player goes first.
func (s *RoomService) Start(ctx context.Context, session *domain.Session, roomID string) (*domain.RoomState, error) {
	now := s.now()
	if err := requireActive(session, now); err != nil {
		return nil, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": session.UserID, "room_id": roomID})

	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		room, err := s.stores.lockRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if room.HostUserID != session.UserID {
			return ErrNotHost
		}
		if room.Status != domain.RoomWaiting {
			return ErrRoomNotWaiting
		}
		players, err := s.stores.Players.ListByRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if domain.CountActive(players) < domain.MinPlayersToStart {
			return ErrInsufficientPlayers
		}
		if err := s.stores.checkBoard(ctx, room.GameConfig.Data()); err != nil {
			return err
		}
		first, _ := domain.FirstActive(players)
		ok, err := s.stores.Rooms.Start(ctx, roomID, first.UserID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRoomNotWaiting
		}
		return nil
	})
	if err != nil {
		logCtx.WithError(err).Warn("Start room failed")
		return nil, classify(err)
	}

	state, err := s.stores.loadState(ctx, roomID)
	if err != nil {
		return nil, classify(err)
	}
	s.stores.markPlayers(ctx, state.Players, domain.PresenceInGame, now)
	publish(ctx, s.publisher, realtime.EventGameUpdate, roomID, session.UserID, state)
	logCtx.Info("Room started")
	return state, nil
}

// Leave deactivates the caller's seat. The host role moves to the earliest-joined
// remaining player, a held turn passes on, and a room left without enough players
// finishes.
func (s *RoomService) Leave(ctx context.Context, session *domain.Session, roomID string) (*domain.RoomState, error) {
	now := s.now()
	if err := requireActive(session, now); err != nil {
		return nil, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": session.UserID, "room_id": roomID})

	finished := false
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		room, err := s.stores.lockRoom(ctx, roomID)
		if err != nil {
			return err
		}
		p, err := s.stores.Players.Find(ctx, roomID, session.UserID)
		if errors.Is(err, repository.ErrPlayerNotFound) {
			return ErrNotInRoom
		}
		if err != nil {
			return err
		}
		if !p.IsActive || room.Status == domain.RoomFinished {
			return nil
		}

		if err := s.stores.Players.SetActive(ctx, roomID, session.UserID, false); err != nil {
			return err
		}
		players, err := s.stores.Players.ListByRoom(ctx, roomID)
		if err != nil {
			return err
		}
		active := domain.CountActive(players)
		if err := s.stores.Rooms.SetPlayerCount(ctx, roomID, active); err != nil {
			return err
		}

		if p.IsHost {
			if next, ok := domain.FirstActive(players); ok {
				if err := s.transferHost(ctx, roomID, session.UserID, next.UserID); err != nil {
					return err
				}
			}
		}

		switch {
		case room.Status == domain.RoomWaiting && active == 0,
			room.Status == domain.RoomPlaying && active < domain.MinPlayersToStart:
			if _, err := s.stores.Rooms.Finish(ctx, roomID, now); err != nil {
				return err
			}
			finished = true
		case room.Status == domain.RoomPlaying && room.IsTurnOf(session.UserID):
			if err := forfeitInProgress(ctx, s.stores, roomID, session.UserID, now); err != nil {
				return err
			}
			exhausted, err := s.stores.boardExhausted(ctx, room)
			if err != nil {
				return err
			}
			if exhausted {
				if _, err := s.stores.Rooms.Finish(ctx, roomID, now); err != nil {
					return err
				}
				finished = true
				return nil
			}
			next, _ := domain.NextTurn(players, session.UserID)
			ok, err := s.stores.Rooms.AdvanceTurn(ctx, roomID, session.UserID, next)
			if err != nil {
				return err
			}
			if !ok {
				return ErrTurnChanged
			}
		}
		return nil
	})
	if err != nil {
		logCtx.WithError(err).Warn("Leave room failed")
		return nil, classify(err)
	}

	state, err := s.stores.loadState(ctx, roomID)
	if err != nil {
		return nil, classify(err)
	}
	writePresence(ctx, s.stores.Presence, session.UserID, session.DisplayName, domain.PresenceOnline, now)
	if finished {
		s.stores.markPlayers(ctx, state.Players, domain.PresenceOnline, now)
	}
	publish(ctx, s.publisher, realtime.EventGameUpdate, roomID, session.UserID, state)
	logCtx.WithField("room_finished", finished).Info("User left room")
	return state, nil
}

func (s *RoomService) transferHost(ctx context.Context, roomID, from, to string) error {
	if err := s.stores.Players.SetHost(ctx, roomID, from, false); err != nil {
		return err
	}
	if err := s.stores.Players.SetHost(ctx, roomID, to, true); err != nil {
		return err
	}
	return s.stores.Rooms.SetHost(ctx, roomID, to)
}

// Finish lets the host end the room early.
func (s *RoomService) Finish(ctx context.Context, session *domain.Session, roomID string) (*domain.RoomState, error) {
	now := s.now()
	if err := requireActive(session, now); err != nil {
		return nil, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": session.UserID, "room_id": roomID})

	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		room, err := s.stores.lockRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if room.HostUserID != session.UserID {
			return ErrNotHost
		}
		ok, err := s.stores.Rooms.Finish(ctx, roomID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRoomFinished
		}
		return nil
	})
	if err != nil {
		logCtx.WithError(err).Warn("Finish room failed")
		return nil, classify(err)
	}

	state, err := s.stores.loadState(ctx, roomID)
	if err != nil {
		return nil, classify(err)
	}
	s.stores.markPlayers(ctx, state.Players, domain.PresenceOnline, now)
	publish(ctx, s.publisher, realtime.EventGameUpdate, roomID, session.UserID, state)
	logCtx.Info("Room finished by host")
	return state, nil
}

// Get returns the snapshot of a room the caller has a seat in (active or not).
func (s *RoomService) Get(ctx context.Context, session *domain.Session, roomID string) (*domain.RoomState, error) {
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

// FindByCode resolves a room code without requiring a seat.
func (s *RoomService) FindByCode(ctx context.Context, roomCode string) (*domain.GameRoom, error) {
	room, err := s.stores.Rooms.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(roomCode)))
	if errors.Is(err, repository.ErrRoomNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return room, nil
}

// ListOpen lists waiting rooms that still have a free seat.
func (s *RoomService) ListOpen(ctx context.Context, session *domain.Session) ([]domain.GameRoom, error) {
	if err := requireActive(session, s.now()); err != nil {
		return nil, err
	}
	rooms, err := s.stores.Rooms.ListOpen(ctx, openRoomsLimit)
	if err != nil {
		return nil, classify(err)
	}
	return rooms, nil
}

type playerSeed struct {
	UserID string
	Name   string
}

// createRoom inserts a waiting room with seeds as its players; the first seed hosts.
// It must run inside a transaction.
func createRoom(ctx context.Context, stores Stores, cfg domain.GameConfig, maxPlayers int, now time.Time, seeds ...playerSeed) (*domain.GameRoom, error) {
	code, err := generateUniqueRoomCode(ctx, stores.Rooms)
	if err != nil {
		return nil, err
	}
	room := &domain.GameRoom{
		ID:                 uuid.NewString(),
		RoomCode:           code,
		HostUserID:         seeds[0].UserID,
		Status:             domain.RoomWaiting,
		MaxPlayers:         maxPlayers,
		CurrentPlayerCount: len(seeds),
		GameConfig:         datatypes.NewJSONType(cfg),
		CreatedAt:          now,
	}
	if err := stores.Rooms.Create(ctx, room); err != nil {
		return nil, err
	}
	for i, seed := range seeds {
		player := &domain.GameRoomPlayer{
			RoomID:     room.ID,
			UserID:     seed.UserID,
			PlayerName: seed.Name,
			IsHost:     i == 0,
			IsActive:   true,
			JoinedAt:   now.Add(time.Duration(i) * time.Microsecond),
		}
		if err := stores.Players.Add(ctx, player); err != nil {
			return nil, err
		}
	}
	return room, nil
}

// generateUniqueRoomCode draws codes from crypto/rand until one is unused.
func generateUniqueRoomCode(ctx context.Context, rooms repository.RoomRepository) (string, error) {
	for attempt := 0; attempt < roomCodeMaxAttempts; attempt++ {
		code, err := randomRoomCode(rand.Reader)
		if err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}

		exists, err := rooms.IsCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check room code uniqueness: %w", err)
		}
		if !exists {
			return code, nil
		}
		logrus.WithField("room_code", code).Debugf("Room code taken, retrying (attempt %d)", attempt+1)
	}
	return "", fmt.Errorf("%w: no free room code after %d attempts", ErrTransient, roomCodeMaxAttempts)
}

// randomRoomCode reads bytes from r until it has roomCodeLength characters. Bytes at
// or above the largest multiple of the alphabet size are dropped so every character
// is equally likely.
func randomRoomCode(r io.Reader) (string, error) {
	limit := byte(256 / len(roomCodeAlphabet) * len(roomCodeAlphabet))
	code := make([]byte, 0, roomCodeLength)
	var buf [roomCodeLength]byte
	for len(code) < roomCodeLength {
		n, err := io.ReadFull(r, buf[:roomCodeLength-len(code)])
		for _, b := range buf[:n] {
			if b < limit {
				code = append(code, roomCodeAlphabet[int(b)%len(roomCodeAlphabet)])
			}
		}
		if err != nil {
			if len(code) == roomCodeLength {
				break
			}
			return "", err
		}
	}
	return string(code), nil
}

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
)

type roomRepo struct{ s *Store }

func (r roomRepo) Create(ctx context.Context, room *domain.GameRoom) error {
	release, err := r.s.enter(ctx, "rooms.Create")
	if err != nil {
		return err
	}
	defer release()
	for _, other := range r.s.rooms {
		if other.RoomCode == room.RoomCode {
			return repository.ErrDuplicateEntry
		}
	}
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	room.UpdatedAt = time.Now()
	r.s.rooms[room.ID] = *room
	return nil
}

func (r roomRepo) FindByID(ctx context.Context, id string) (*domain.GameRoom, error) {
	release, err := r.s.enter(ctx, "rooms.FindByID")
	if err != nil {
		return nil, err
	}
	defer release()
	room, ok := r.s.rooms[id]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return ptr(room), nil
}

// FindByIDForUpdate needs no row lock: the store lock already serialises transactions.
func (r roomRepo) FindByIDForUpdate(ctx context.Context, id string) (*domain.GameRoom, error) {
	return r.FindByID(ctx, id)
}

func (r roomRepo) FindByCode(ctx context.Context, code string) (*domain.GameRoom, error) {
	release, err := r.s.enter(ctx, "rooms.FindByCode")
	if err != nil {
		return nil, err
	}
	defer release()
	for _, room := range r.s.rooms {
		if room.RoomCode == code {
			return ptr(room), nil
		}
	}
	return nil, repository.ErrRoomNotFound
}

func (r roomRepo) FindByCodeForUpdate(ctx context.Context, code string) (*domain.GameRoom, error) {
	return r.FindByCode(ctx, code)
}

func (r roomRepo) IsCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := r.FindByCode(ctx, code)
	if err == repository.ErrRoomNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r roomRepo) ListOpen(ctx context.Context, limit int) ([]domain.GameRoom, error) {
	release, err := r.s.enter(ctx, "rooms.ListOpen")
	if err != nil {
		return nil, err
	}
	defer release()
	out := []domain.GameRoom{}
	for _, room := range r.s.rooms {
		if room.Status == domain.RoomWaiting && room.HasSeat() {
			out = append(out, room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mutate applies fn to room id when cond holds and reports whether it did.
func (r roomRepo) mutate(ctx context.Context, op, id string, cond func(domain.GameRoom) bool, fn func(*domain.GameRoom)) (bool, error) {
	release, err := r.s.enter(ctx, op)
	if err != nil {
		return false, err
	}
	defer release()
	room, ok := r.s.rooms[id]
	if !ok || !cond(room) {
		return false, nil
	}
	fn(&room)
	room.UpdatedAt = time.Now()
	r.s.rooms[id] = room
	return true, nil
}

func (r roomRepo) Start(ctx context.Context, id, firstTurnUserID string, at time.Time) (bool, error) {
	return r.mutate(ctx, "rooms.Start", id,
		func(room domain.GameRoom) bool { return room.Status == domain.RoomWaiting },
		func(room *domain.GameRoom) {
			room.Status = domain.RoomPlaying
			room.StartedAt = ptr(at)
			room.CurrentTurnUserID = ptr(firstTurnUserID)
		})
}

func (r roomRepo) Finish(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.mutate(ctx, "rooms.Finish", id,
		func(room domain.GameRoom) bool { return room.Status.CanTransition(domain.RoomFinished) },
		func(room *domain.GameRoom) {
			room.Status = domain.RoomFinished
			room.FinishedAt = ptr(at)
			room.CurrentTurnUserID = nil
		})
}

func (r roomRepo) AdvanceTurn(ctx context.Context, id, expected, next string) (bool, error) {
	return r.mutate(ctx, "rooms.AdvanceTurn", id,
		func(room domain.GameRoom) bool { return room.Status == domain.RoomPlaying && room.IsTurnOf(expected) },
		func(room *domain.GameRoom) { room.CurrentTurnUserID = ptr(next) })
}

func (r roomRepo) SetHost(ctx context.Context, id, hostUserID string) error {
	return r.set(ctx, "rooms.SetHost", id, func(room *domain.GameRoom) { room.HostUserID = hostUserID })
}

func (r roomRepo) SetPlayerCount(ctx context.Context, id string, count int) error {
	return r.set(ctx, "rooms.SetPlayerCount", id, func(room *domain.GameRoom) { room.CurrentPlayerCount = count })
}

func (r roomRepo) set(ctx context.Context, op, id string, fn func(*domain.GameRoom)) error {
	ok, err := r.mutate(ctx, op, id, func(domain.GameRoom) bool { return true }, fn)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrRoomNotFound
	}
	return nil
}

type playerRepo struct{ s *Store }

func playerKey(roomID, userID string) string { return roomID + "/" + userID }

func (r playerRepo) Add(ctx context.Context, p *domain.GameRoomPlayer) error {
	release, err := r.s.enter(ctx, "players.Add")
	if err != nil {
		return err
	}
	defer release()
	key := playerKey(p.RoomID, p.UserID)
	if _, exists := r.s.players[key]; exists {
		return repository.ErrDuplicateEntry
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	r.s.players[key] = *p
	return nil
}

func (r playerRepo) Find(ctx context.Context, roomID, userID string) (*domain.GameRoomPlayer, error) {
	release, err := r.s.enter(ctx, "players.Find")
	if err != nil {
		return nil, err
	}
	defer release()
	p, ok := r.s.players[playerKey(roomID, userID)]
	if !ok {
		return nil, repository.ErrPlayerNotFound
	}
	return ptr(p), nil
}

func (r playerRepo) ListByRoom(ctx context.Context, roomID string) ([]domain.GameRoomPlayer, error) {
	release, err := r.s.enter(ctx, "players.ListByRoom")
	if err != nil {
		return nil, err
	}
	defer release()
	out := []domain.GameRoomPlayer{}
	for _, p := range r.s.players {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	domain.SortByJoinOrder(out)
	return out, nil
}

func (r playerRepo) update(ctx context.Context, op, roomID, userID string, fn func(*domain.GameRoomPlayer)) (domain.GameRoomPlayer, error) {
	release, err := r.s.enter(ctx, op)
	if err != nil {
		return domain.GameRoomPlayer{}, err
	}
	defer release()
	key := playerKey(roomID, userID)
	p, ok := r.s.players[key]
	if !ok {
		return domain.GameRoomPlayer{}, repository.ErrPlayerNotFound
	}
	fn(&p)
	r.s.players[key] = p
	return p, nil
}

func (r playerRepo) SetActive(ctx context.Context, roomID, userID string, active bool) error {
	_, err := r.update(ctx, "players.SetActive", roomID, userID, func(p *domain.GameRoomPlayer) { p.IsActive = active })
	return err
}

func (r playerRepo) SetHost(ctx context.Context, roomID, userID string, isHost bool) error {
	_, err := r.update(ctx, "players.SetHost", roomID, userID, func(p *domain.GameRoomPlayer) { p.IsHost = isHost })
	return err
}

func (r playerRepo) AddScore(ctx context.Context, roomID, userID string, delta int) (int, error) {
	p, err := r.update(ctx, "players.AddScore", roomID, userID, func(p *domain.GameRoomPlayer) { p.Score += delta })
	return p.Score, err
}

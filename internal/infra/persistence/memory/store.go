// Package memory is an in-process implementation of the repository interfaces.
// It keeps the same contracts as the gorm repositories (conditional updates,
// unique constraints, rollback on error) and backs the service tests.
package memory

import (
	"context"
	"sync"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
)

type txKey struct{}

// Store holds every table behind one mutex. A transaction holds the mutex for its
// whole duration and restores a copy of the tables when fn fails.
type Store struct {
	mu sync.Mutex

	users     map[string]domain.User
	presence  map[string]domain.Presence
	requests  map[string]domain.MatchRequest
	rooms     map[string]domain.GameRoom
	players   map[string]domain.GameRoomPlayer // room_id/user_id
	ledger    map[string]domain.RoomQuestion   // room_id/question_id
	questions map[string]domain.Question

	failures map[string]error
}

func NewStore() *Store {
	return &Store{
		users:     map[string]domain.User{},
		presence:  map[string]domain.Presence{},
		requests:  map[string]domain.MatchRequest{},
		rooms:     map[string]domain.GameRoom{},
		players:   map[string]domain.GameRoomPlayer{},
		ledger:    map[string]domain.RoomQuestion{},
		questions: map[string]domain.Question{},
		failures:  map[string]error{},
	}
}

// FailNext makes the next call of op (e.g. "presence.Upsert") return err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// enter takes the lock unless ctx already runs inside this store's transaction.
// The returned func releases it; it must be called with the lock held.
func (s *Store) enter(ctx context.Context, op string) (func(), error) {
	release := func() {}
	if ctx.Value(txKey{}) != s {
		s.mu.Lock()
		release = s.mu.Unlock
	}
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		release()
		return nil, err
	}
	return release, nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := s.copyTables()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(saved)
		return err
	}
	return nil
}

type tables struct {
	users     map[string]domain.User
	presence  map[string]domain.Presence
	requests  map[string]domain.MatchRequest
	rooms     map[string]domain.GameRoom
	players   map[string]domain.GameRoomPlayer
	ledger    map[string]domain.RoomQuestion
	questions map[string]domain.Question
}

func (s *Store) copyTables() tables {
	return tables{
		users:     clone(s.users),
		presence:  clone(s.presence),
		requests:  clone(s.requests),
		rooms:     clone(s.rooms),
		players:   clone(s.players),
		ledger:    clone(s.ledger),
		questions: clone(s.questions),
	}
}

func (s *Store) restore(t tables) {
	s.users, s.presence, s.requests = t.users, t.presence, t.requests
	s.rooms, s.players, s.ledger, s.questions = t.rooms, t.players, t.ledger, t.questions
}

func clone[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SeedQuestions loads question bank rows.
func (s *Store) SeedQuestions(qs ...domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range qs {
		s.questions[q.ID] = q
	}
}

// CountRooms reports how many game_rooms rows exist.
func (s *Store) CountRooms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *Store) Users() repository.UserRepository                 { return userRepo{s} }
func (s *Store) Presence() repository.PresenceRepository          { return presenceRepo{s} }
func (s *Store) MatchRequests() repository.MatchRequestRepository { return requestRepo{s} }
func (s *Store) Rooms() repository.RoomRepository                 { return roomRepo{s} }
func (s *Store) Players() repository.PlayerRepository             { return playerRepo{s} }
func (s *Store) RoomQuestions() repository.RoomQuestionRepository { return ledgerRepo{s} }
func (s *Store) Questions() repository.QuestionRepository         { return questionRepo{s} }

var _ repository.Transactor = (*Store)(nil)

func ptr[T any](v T) *T { return &v }

package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
)

type userRepo struct{ s *Store }

func (r userRepo) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	release, err := r.s.enter(ctx, "users.FindByUsername")
	if err != nil {
		return nil, err
	}
	defer release()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Username, username) {
			return ptr(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r userRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	release, err := r.s.enter(ctx, "users.FindByID")
	if err != nil {
		return nil, err
	}
	defer release()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return ptr(u), nil
}

func (r userRepo) Save(ctx context.Context, user *domain.User) error {
	release, err := r.s.enter(ctx, "users.Save")
	if err != nil {
		return err
	}
	defer release()
	for id, u := range r.s.users {
		if id != user.ID && strings.EqualFold(u.Username, user.Username) {
			return repository.ErrDuplicateEntry
		}
	}
	now := time.Now()
	if user.ID == "" {
		user.ID = uuid.NewString()
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.s.users[user.ID] = *user
	return nil
}

type presenceRepo struct{ s *Store }

func (r presenceRepo) Upsert(ctx context.Context, p *domain.Presence) error {
	release, err := r.s.enter(ctx, "presence.Upsert")
	if err != nil {
		return err
	}
	defer release()
	r.s.presence[p.UserID] = *p
	return nil
}

func (r presenceRepo) Touch(ctx context.Context, userID string, at time.Time) error {
	release, err := r.s.enter(ctx, "presence.Touch")
	if err != nil {
		return err
	}
	defer release()
	p, ok := r.s.presence[userID]
	if !ok {
		return repository.ErrPresenceNotFound
	}
	p.LastSeen = at
	r.s.presence[userID] = p
	return nil
}

func (r presenceRepo) FindByUserID(ctx context.Context, userID string) (*domain.Presence, error) {
	release, err := r.s.enter(ctx, "presence.FindByUserID")
	if err != nil {
		return nil, err
	}
	defer release()
	p, ok := r.s.presence[userID]
	if !ok {
		return nil, repository.ErrPresenceNotFound
	}
	return ptr(p), nil
}

func (r presenceRepo) ListActiveSince(ctx context.Context, since time.Time) ([]domain.Presence, error) {
	release, err := r.s.enter(ctx, "presence.ListActiveSince")
	if err != nil {
		return nil, err
	}
	defer release()
	out := []domain.Presence{}
	for _, p := range r.s.presence {
		if p.Status != domain.PresenceOffline && p.LastSeen.After(since) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out, nil
}

func (r presenceRepo) MarkStaleOffline(ctx context.Context, before time.Time) (int64, error) {
	release, err := r.s.enter(ctx, "presence.MarkStaleOffline")
	if err != nil {
		return 0, err
	}
	defer release()
	var n int64
	for id, p := range r.s.presence {
		if p.Status != domain.PresenceOffline && !p.LastSeen.After(before) {
			p.Status = domain.PresenceOffline
			r.s.presence[id] = p
			n++
		}
	}
	return n, nil
}

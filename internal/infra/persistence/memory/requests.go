package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
)

type requestRepo struct{ s *Store }

func samePair(r domain.MatchRequest, a, b string) bool {
	return (r.RequesterID == a && r.TargetID == b) || (r.RequesterID == b && r.TargetID == a)
}

func (r requestRepo) Create(ctx context.Context, req *domain.MatchRequest) error {
	release, err := r.s.enter(ctx, "requests.Create")
	if err != nil {
		return err
	}
	defer release()
	if req.Status == domain.MatchPending {
		for _, other := range r.s.requests {
			if other.Status == domain.MatchPending && samePair(other, req.RequesterID, req.TargetID) {
				return repository.ErrDuplicateEntry
			}
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	r.s.requests[req.ID] = *req
	return nil
}

func (r requestRepo) FindByID(ctx context.Context, id string) (*domain.MatchRequest, error) {
	release, err := r.s.enter(ctx, "requests.FindByID")
	if err != nil {
		return nil, err
	}
	defer release()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, repository.ErrRequestNotFound
	}
	return ptr(req), nil
}

func (r requestRepo) FindOpenBetween(ctx context.Context, a, b string, now time.Time) (*domain.MatchRequest, error) {
	release, err := r.s.enter(ctx, "requests.FindOpenBetween")
	if err != nil {
		return nil, err
	}
	defer release()
	for _, req := range r.s.requests {
		if req.IsOpen(now) && samePair(req, a, b) {
			return ptr(req), nil
		}
	}
	return nil, repository.ErrRequestNotFound
}

func (r requestRepo) ListOpenByTarget(ctx context.Context, userID string, now time.Time) ([]domain.MatchRequest, error) {
	return r.list(ctx, now, func(req domain.MatchRequest) bool { return req.TargetID == userID })
}

func (r requestRepo) ListOpenByRequester(ctx context.Context, userID string, now time.Time) ([]domain.MatchRequest, error) {
	return r.list(ctx, now, func(req domain.MatchRequest) bool { return req.RequesterID == userID })
}

func (r requestRepo) list(ctx context.Context, now time.Time, match func(domain.MatchRequest) bool) ([]domain.MatchRequest, error) {
	release, err := r.s.enter(ctx, "requests.List")
	if err != nil {
		return nil, err
	}
	defer release()
	out := []domain.MatchRequest{}
	for _, req := range r.s.requests {
		if req.IsOpen(now) && match(req) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r requestRepo) Resolve(ctx context.Context, id, targetID string, status domain.MatchStatus, now time.Time) (bool, error) {
	release, err := r.s.enter(ctx, "requests.Resolve")
	if err != nil {
		return false, err
	}
	defer release()
	req, ok := r.s.requests[id]
	if !ok || req.TargetID != targetID || !req.IsOpen(now) {
		return false, nil
	}
	req.Status = status
	req.RespondedAt = ptr(now)
	r.s.requests[id] = req
	return true, nil
}

func (r requestRepo) AttachRoom(ctx context.Context, id, roomID string) error {
	release, err := r.s.enter(ctx, "requests.AttachRoom")
	if err != nil {
		return err
	}
	defer release()
	req, ok := r.s.requests[id]
	if !ok {
		return repository.ErrRequestNotFound
	}
	req.RoomID = ptr(roomID)
	r.s.requests[id] = req
	return nil
}

func (r requestRepo) ExpireStale(ctx context.Context, now time.Time, pair ...string) (int64, error) {
	release, err := r.s.enter(ctx, "requests.ExpireStale")
	if err != nil {
		return 0, err
	}
	defer release()
	var n int64
	for id, req := range r.s.requests {
		if req.Status != domain.MatchPending || now.Before(req.ExpiresAt) {
			continue
		}
		if len(pair) == 2 && !samePair(req, pair[0], pair[1]) {
			continue
		}
		req.Status = domain.MatchExpired
		r.s.requests[id] = req
		n++
	}
	return n, nil
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
)

// matchRoomPlayers is the capacity of a room created from an accepted challenge.
const matchRoomPlayers = 2

// MatchmakingService runs the 1:1 challenge handshake.
type MatchmakingService struct {
	stores Stores
	ttl    time.Duration
	now    func() time.Time
}

func NewMatchmakingService(stores Stores, ttl time.Duration) *MatchmakingService {
	stores.mustBeComplete("MatchmakingService")
	if ttl <= 0 {
		ttl = domain.DefaultMatchRequestTTL
	}
	return &MatchmakingService{stores: stores, ttl: ttl, now: time.Now}
}

// Send challenges targetID. Self-challenges and bad configs are rejected before
// anything is written; only one pending challenge may exist per pair of players.
func (s *MatchmakingService) Send(ctx context.Context, session *domain.Session, targetID string, cfg domain.GameConfig) (*domain.MatchRequest, error) {
	now := s.now()
	if err := requireActive(session, now); err != nil {
		return nil, err
	}
	if targetID == session.UserID {
		return nil, ErrSelfChallenge
	}
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, validation(err)
	}
	if err := s.stores.checkBoard(ctx, cfg); err != nil {
		return nil, classify(err)
	}
	logCtx := logrus.WithFields(logrus.Fields{"requester_id": session.UserID, "target_id": targetID})

	if _, err := s.stores.Users.FindByID(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, classify(err)
	}

	req := &domain.MatchRequest{
		ID:          uuid.NewString(),
		RequesterID: session.UserID,
		TargetID:    targetID,
		Status:      domain.MatchPending,
		GameConfig:  datatypes.NewJSONType(cfg),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.stores.Requests.ExpireStale(ctx, now, session.UserID, targetID); err != nil {
			return err
		}
		_, err := s.stores.Requests.FindOpenBetween(ctx, session.UserID, targetID, now)
		switch {
		case err == nil:
			return ErrRequestPending
		case !errors.Is(err, repository.ErrRequestNotFound):
			return err
		}
		if err := s.stores.Requests.Create(ctx, req); err != nil {
			if errors.Is(err, repository.ErrDuplicateEntry) {
				return ErrRequestPending
			}
			return err
		}
		return nil
	})
	if err != nil {
		logCtx.WithError(err).Warn("Send match request failed")
		return nil, classify(err)
	}
	logCtx.WithField("request_id", req.ID).Info("Match request sent")
	return req, nil
}

// Respond lets the target accept or decline. Accepting flips the request, creates the
// room with both players already playing, and moves both players in_game, all in one
// transaction. A second response finds the request resolved and changes nothing.
func (s *MatchmakingService) Respond(ctx context.Context, session *domain.Session, requestID string, accept bool) (*domain.MatchRequest, error) {
	now := s.now()
	if err := requireActive(session, now); err != nil {
		return nil, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": session.UserID, "request_id": requestID, "accept": accept})

	var resolved *domain.MatchRequest
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.stores.Requests.FindByID(ctx, requestID)
		if errors.Is(err, repository.ErrRequestNotFound) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		if req.TargetID != session.UserID {
			return ErrNotRequestTarget
		}
		if !req.IsOpen(now) {
			return ErrRequestResolved
		}

		status := domain.MatchDeclined
		if accept {
			status = domain.MatchAccepted
		}
		ok, err := s.stores.Requests.Resolve(ctx, requestID, session.UserID, status, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRequestResolved
		}
		req.Status, req.RespondedAt = status, &now

		if accept {
			roomID, err := s.openMatchRoom(ctx, req, session, now)
			if err != nil {
				return err
			}
			req.RoomID = &roomID
		}
		resolved = req
		return nil
	})
	if err != nil {
		logCtx.WithError(err).Warn("Respond to match request failed")
		return nil, classify(err)
	}
	logCtx.WithField("status", resolved.Status).Info("Match request resolved")
	return resolved, nil
}

// openMatchRoom builds the started room for an accepted request. It runs inside the
// Respond transaction so any failure undoes the acceptance too.
func (s *MatchmakingService) openMatchRoom(ctx context.Context, req *domain.MatchRequest, target *domain.Session, now time.Time) (string, error) {
	requester, err := s.stores.Users.FindByID(ctx, req.RequesterID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", err
	}

	room, err := createRoom(ctx, s.stores, req.GameConfig.Data(), matchRoomPlayers, now,
		playerSeed{requester.ID, requester.DisplayName},
		playerSeed{target.UserID, target.DisplayName},
	)
	if err != nil {
		return "", err
	}
	ok, err := s.stores.Rooms.Start(ctx, room.ID, requester.ID, now)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrRoomNotWaiting
	}

	for _, p := range []domain.Presence{
		{UserID: requester.ID, DisplayName: requester.DisplayName, Status: domain.PresenceInGame, LastSeen: now},
		{UserID: target.UserID, DisplayName: target.DisplayName, Status: domain.PresenceInGame, LastSeen: now},
	} {
		if err := s.stores.Presence.Upsert(ctx, &p); err != nil {
			return "", err
		}
	}
	if err := s.stores.Requests.AttachRoom(ctx, req.ID, room.ID); err != nil {
		return "", err
	}
	return room.ID, nil
}

// ListIncoming returns open challenges addressed to the caller, newest first.
func (s *MatchmakingService) ListIncoming(ctx context.Context, session *domain.Session) ([]domain.MatchRequest, error) {
	now := s.now()
	if err := requireActive(session, now); err != nil {
		return nil, err
	}
	reqs, err := s.stores.Requests.ListOpenByTarget(ctx, session.UserID, now)
	if err != nil {
		return nil, classify(err)
	}
	return openOnly(reqs, now), nil
}

// ListOutgoing returns the caller's own open challenges, newest first.
func (s *MatchmakingService) ListOutgoing(ctx context.Context, session *domain.Session) ([]domain.MatchRequest, error) {
	now := s.now()
	if err := requireActive(session, now); err != nil {
		return nil, err
	}
	reqs, err := s.stores.Requests.ListOpenByRequester(ctx, session.UserID, now)
	if err != nil {
		return nil, classify(err)
	}
	return openOnly(reqs, now), nil
}

// ExpireStale marks every pending request past its deadline as expired.
func (s *MatchmakingService) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.stores.Requests.ExpireStale(ctx, s.now())
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// openOnly re-applies the expiry filter so a stale row is never shown as pending.
func openOnly(reqs []domain.MatchRequest, now time.Time) []domain.MatchRequest {
	out := make([]domain.MatchRequest, 0, len(reqs))
	for _, r := range reqs {
		if r.IsOpen(now) {
			out = append(out, r)
		}
	}
	return out
}

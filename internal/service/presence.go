package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
)

// PresenceService maintains the caller's own presence row and the online lists.
// Writes are fire-and-forget: storage failures are logged and never surfaced.
type PresenceService struct {
	repo   repository.PresenceRepository
	window time.Duration
	now    func() time.Time
}

func NewPresenceService(repo repository.PresenceRepository, window time.Duration) *PresenceService {
	if repo == nil {
		panic("PresenceRepository cannot be nil for PresenceService")
	}
	if window <= 0 {
		window = domain.DefaultPresenceWindow
	}
	return &PresenceService{repo: repo, window: window, now: time.Now}
}

// SetStatus upserts the caller's row with last_seen = now.
func (s *PresenceService) SetStatus(ctx context.Context, session *domain.Session, status domain.PresenceStatus) error {
	if err := requireActive(session, s.now()); err != nil {
		return err
	}
	if !status.Valid() {
		return ErrInvalidPresence
	}
	writePresence(ctx, s.repo, session.UserID, session.DisplayName, status, s.now())
	return nil
}

// Heartbeat refreshes last_seen and keeps the status, creating an online row on the
// first beat.
func (s *PresenceService) Heartbeat(ctx context.Context, session *domain.Session) error {
	now := s.now()
	if err := requireActive(session, now); err != nil {
		return err
	}
	err := s.repo.Touch(ctx, session.UserID, now)
	if errors.Is(err, repository.ErrPresenceNotFound) {
		writePresence(ctx, s.repo, session.UserID, session.DisplayName, domain.PresenceOnline, now)
		return nil
	}
	if err != nil {
		logrus.WithError(err).WithField("user_id", session.UserID).Warn("Presence heartbeat failed")
	}
	return nil
}

// ListOnline returns every record that is online right now, most recent first.
func (s *PresenceService) ListOnline(ctx context.Context) ([]domain.Presence, error) {
	now := s.now()
	rows, err := s.repo.ListActiveSince(ctx, now.Add(-s.window))
	if err != nil {
		logrus.WithError(err).Error("Failed to list online presence")
		return nil, classify(err)
	}
	online := make([]domain.Presence, 0, len(rows))
	for _, p := range rows {
		if p.IsOnline(now, s.window) {
			online = append(online, p)
		}
	}
	return online, nil
}

// ListWaiting is ListOnline narrowed to players looking for a match, without the caller.
func (s *PresenceService) ListWaiting(ctx context.Context, session *domain.Session) ([]domain.Presence, error) {
	if err := requireActive(session, s.now()); err != nil {
		return nil, err
	}
	online, err := s.ListOnline(ctx)
	if err != nil {
		return nil, err
	}
	waiting := make([]domain.Presence, 0, len(online))
	for _, p := range online {
		if p.Status == domain.PresenceWaiting && p.UserID != session.UserID {
			waiting = append(waiting, p)
		}
	}
	return waiting, nil
}

// SweepStale marks rows that stopped heartbeating as offline. Readers never rely on it.
func (s *PresenceService) SweepStale(ctx context.Context) (int64, error) {
	n, err := s.repo.MarkStaleOffline(ctx, s.now().Add(-s.window))
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// writePresence upserts one presence row and only logs a failure.
func writePresence(ctx context.Context, repo repository.PresenceRepository, userID, displayName string, status domain.PresenceStatus, at time.Time) {
	err := repo.Upsert(ctx, &domain.Presence{UserID: userID, DisplayName: displayName, Status: status, LastSeen: at})
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"user_id": userID, "status": status}).Warn("Failed to update presence")
	}
}

// requireActive rejects calls made with a missing, expired or signed-out session.
func requireActive(session *domain.Session, now time.Time) error {
	if session == nil || !session.Active(now) {
		return ErrSessionInactive
	}
	return nil
}

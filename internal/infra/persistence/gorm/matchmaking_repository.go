package gormpersistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
)

type GormMatchRequestRepository struct {
	db *gorm.DB
}

func NewGormMatchRequestRepository(db *gorm.DB) *GormMatchRequestRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMatchRequestRepository")
	}
	return &GormMatchRequestRepository{db: db}
}

// pairClause matches rows between a and b in either direction.
const pairClause = "((requester_id = ? AND target_id = ?) OR (requester_id = ? AND target_id = ?))"

func (r *GormMatchRequestRepository) Create(ctx context.Context, req *domain.MatchRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := conn(ctx, r.db).Create(req).Error; err != nil {
		return wrapWriteErr(err, repository.ErrDuplicateEntry, "create match request %s -> %s", req.RequesterID, req.TargetID)
	}
	return nil
}

func (r *GormMatchRequestRepository) FindByID(ctx context.Context, id string) (*domain.MatchRequest, error) {
	var req domain.MatchRequest
	err := conn(ctx, r.db).Where("id = ?", id).First(&req).Error
	if err != nil {
		if isNotFoundError(err) {
			return nil, repository.ErrRequestNotFound
		}
		return nil, fmt.Errorf("gorm: find match request %s: %w", id, err)
	}
	return &req, nil
}

func (r *GormMatchRequestRepository) FindOpenBetween(ctx context.Context, a, b string, now time.Time) (*domain.MatchRequest, error) {
	var req domain.MatchRequest
	err := conn(ctx, r.db).
		Where("status = ? AND expires_at > ?", domain.MatchPending, now).
		Where(pairClause, a, b, b, a).
		Order("created_at DESC").
		First(&req).Error
	if err != nil {
		if isNotFoundError(err) {
			return nil, repository.ErrRequestNotFound
		}
		return nil, fmt.Errorf("gorm: find open match request between %s and %s: %w", a, b, err)
	}
	return &req, nil
}

func (r *GormMatchRequestRepository) ListOpenByTarget(ctx context.Context, userID string, now time.Time) ([]domain.MatchRequest, error) {
	return r.listOpen(ctx, "target_id", userID, now)
}

func (r *GormMatchRequestRepository) ListOpenByRequester(ctx context.Context, userID string, now time.Time) ([]domain.MatchRequest, error) {
	return r.listOpen(ctx, "requester_id", userID, now)
}

func (r *GormMatchRequestRepository) listOpen(ctx context.Context, column, userID string, now time.Time) ([]domain.MatchRequest, error) {
	var rows []domain.MatchRequest
	err := conn(ctx, r.db).
		Where(column+" = ? AND status = ? AND expires_at > ?", userID, domain.MatchPending, now).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list open match requests by %s %s: %w", column, userID, err)
	}
	return rows, nil
}

func (r *GormMatchRequestRepository) Resolve(ctx context.Context, id, targetID string, status domain.MatchStatus, now time.Time) (bool, error) {
	res := conn(ctx, r.db).Model(&domain.MatchRequest{}).
		Where("id = ? AND target_id = ? AND status = ? AND expires_at > ?", id, targetID, domain.MatchPending, now).
		Updates(map[string]any{"status": status, "responded_at": now})
	if res.Error != nil {
		return false, fmt.Errorf("gorm: resolve match request %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormMatchRequestRepository) AttachRoom(ctx context.Context, id, roomID string) error {
	res := conn(ctx, r.db).Model(&domain.MatchRequest{}).Where("id = ?", id).Update("room_id", roomID)
	if res.Error != nil {
		return fmt.Errorf("gorm: attach room %s to match request %s: %w", roomID, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrRequestNotFound
	}
	return nil
}

func (r *GormMatchRequestRepository) ExpireStale(ctx context.Context, now time.Time, pair ...string) (int64, error) {
	q := conn(ctx, r.db).Model(&domain.MatchRequest{}).
		Where("status = ? AND expires_at <= ?", domain.MatchPending, now)
	if len(pair) == 2 {
		q = q.Where(pairClause, pair[0], pair[1], pair[1], pair[0])
	}
	res := q.Update("status", domain.MatchExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("gorm: expire stale match requests: %w", res.Error)
	}
	return res.RowsAffected, nil
}

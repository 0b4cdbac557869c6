package gormpersistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
)

type GormPresenceRepository struct {
	db *gorm.DB
}

func NewGormPresenceRepository(db *gorm.DB) *GormPresenceRepository {
	if db == nil {
		panic("database connection cannot be nil for GormPresenceRepository")
	}
	return &GormPresenceRepository{db: db}
}

func (r *GormPresenceRepository) Upsert(ctx context.Context, p *domain.Presence) error {
	err := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "status", "last_seen"}),
	}).Create(p).Error
	if err != nil {
		return fmt.Errorf("gorm: upsert presence for user %s: %w", p.UserID, err)
	}
	return nil
}

func (r *GormPresenceRepository) Touch(ctx context.Context, userID string, at time.Time) error {
	res := conn(ctx, r.db).Model(&domain.Presence{}).Where("user_id = ?", userID).Update("last_seen", at)
	if res.Error != nil {
		return fmt.Errorf("gorm: touch presence for user %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrPresenceNotFound
	}
	return nil
}

func (r *GormPresenceRepository) FindByUserID(ctx context.Context, userID string) (*domain.Presence, error) {
	var p domain.Presence
	err := conn(ctx, r.db).Where("user_id = ?", userID).First(&p).Error
	if err != nil {
		if isNotFoundError(err) {
			return nil, repository.ErrPresenceNotFound
		}
		return nil, fmt.Errorf("gorm: find presence for user %s: %w", userID, err)
	}
	return &p, nil
}

func (r *GormPresenceRepository) ListActiveSince(ctx context.Context, since time.Time) ([]domain.Presence, error) {
	var rows []domain.Presence
	err := conn(ctx, r.db).
		Where("status <> ? AND last_seen > ?", domain.PresenceOffline, since).
		Order("last_seen DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list presence since %s: %w", since.Format(time.RFC3339), err)
	}
	return rows, nil
}

func (r *GormPresenceRepository) MarkStaleOffline(ctx context.Context, before time.Time) (int64, error) {
	res := conn(ctx, r.db).Model(&domain.Presence{}).
		Where("status <> ? AND last_seen <= ?", domain.PresenceOffline, before).
		Update("status", domain.PresenceOffline)
	if res.Error != nil {
		return 0, fmt.Errorf("gorm: mark stale presence offline: %w", res.Error)
	}
	return res.RowsAffected, nil
}

package gormpersistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
)

type GormPlayerRepository struct {
	db *gorm.DB
}

func NewGormPlayerRepository(db *gorm.DB) *GormPlayerRepository {
	if db == nil {
		panic("database connection cannot be nil for GormPlayerRepository")
	}
	return &GormPlayerRepository{db: db}
}

func (r *GormPlayerRepository) Add(ctx context.Context, p *domain.GameRoomPlayer) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := conn(ctx, r.db).Create(p).Error; err != nil {
		return wrapWriteErr(err, repository.ErrDuplicateEntry, "add player %s to room %s", p.UserID, p.RoomID)
	}
	return nil
}

func (r *GormPlayerRepository) Find(ctx context.Context, roomID, userID string) (*domain.GameRoomPlayer, error) {
	var p domain.GameRoomPlayer
	err := conn(ctx, r.db).Where("room_id = ? AND user_id = ?", roomID, userID).First(&p).Error
	if err != nil {
		if isNotFoundError(err) {
			return nil, repository.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("gorm: find player %s in room %s: %w", userID, roomID, err)
	}
	return &p, nil
}

func (r *GormPlayerRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.GameRoomPlayer, error) {
	var rows []domain.GameRoomPlayer
	err := conn(ctx, r.db).Where("room_id = ?", roomID).Order("joined_at ASC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list players of room %s: %w", roomID, err)
	}
	return rows, nil
}

func (r *GormPlayerRepository) SetActive(ctx context.Context, roomID, userID string, active bool) error {
	return r.update(ctx, roomID, userID, "is_active", active)
}

func (r *GormPlayerRepository) SetHost(ctx context.Context, roomID, userID string, isHost bool) error {
	return r.update(ctx, roomID, userID, "is_host", isHost)
}

// AddScore increments in SQL so concurrent credits never read-modify-write.
func (r *GormPlayerRepository) AddScore(ctx context.Context, roomID, userID string, delta int) (int, error) {
	db := conn(ctx, r.db)
	res := db.Model(&domain.GameRoomPlayer{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("score", gorm.Expr("score + ?", delta))
	if res.Error != nil {
		return 0, fmt.Errorf("gorm: add %d to score of %s in room %s: %w", delta, userID, roomID, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, repository.ErrPlayerNotFound
	}
	var score int
	err := db.Model(&domain.GameRoomPlayer{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Select("score").Scan(&score).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: read score of %s in room %s: %w", userID, roomID, err)
	}
	return score, nil
}

func (r *GormPlayerRepository) update(ctx context.Context, roomID, userID, column string, value any) error {
	res := conn(ctx, r.db).Model(&domain.GameRoomPlayer{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("gorm: update %s of player %s in room %s: %w", column, userID, roomID, res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrPlayerNotFound
	}
	return nil
}

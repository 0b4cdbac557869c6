package gormpersistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
)

// GormRoomRepository is the gorm implementation of repository.RoomRepository.
type GormRoomRepository struct {
	db *gorm.DB
}

func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

func (r *GormRoomRepository) Create(ctx context.Context, room *domain.GameRoom) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if err := conn(ctx, r.db).Create(room).Error; err != nil {
		return wrapWriteErr(err, repository.ErrDuplicateEntry, "create room (code: %s)", room.RoomCode)
	}
	return nil
}

func (r *GormRoomRepository) FindByID(ctx context.Context, id string) (*domain.GameRoom, error) {
	return r.first(conn(ctx, r.db).Where("id = ?", id), "id "+id)
}

func (r *GormRoomRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.GameRoom, error) {
	db := conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.first(db.Where("id = ?", id), "id "+id)
}

func (r *GormRoomRepository) FindByCode(ctx context.Context, code string) (*domain.GameRoom, error) {
	return r.first(conn(ctx, r.db).Where("room_code = ?", code), "code "+code)
}

func (r *GormRoomRepository) FindByCodeForUpdate(ctx context.Context, code string) (*domain.GameRoom, error) {
	db := conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.first(db.Where("room_code = ?", code), "code "+code)
}

func (r *GormRoomRepository) first(q *gorm.DB, desc string) (*domain.GameRoom, error) {
	var room domain.GameRoom
	if err := q.First(&room).Error; err != nil {
		if isNotFoundError(err) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by %s: %w", desc, err)
	}
	return &room, nil
}

func (r *GormRoomRepository) IsCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&domain.GameRoom{}).Where("room_code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by code '%s': %w", code, err)
	}
	return count > 0, nil
}

func (r *GormRoomRepository) ListOpen(ctx context.Context, limit int) ([]domain.GameRoom, error) {
	var rooms []domain.GameRoom
	err := conn(ctx, r.db).
		Where("status = ? AND current_player_count < max_players", domain.RoomWaiting).
		Order("created_at DESC").
		Limit(limit).
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list open rooms: %w", err)
	}
	return rooms, nil
}

func (r *GormRoomRepository) Start(ctx context.Context, id, firstTurnUserID string, at time.Time) (bool, error) {
	res := conn(ctx, r.db).Model(&domain.GameRoom{}).
		Where("id = ? AND status = ?", id, domain.RoomWaiting).
		Updates(map[string]any{
			"status":               domain.RoomPlaying,
			"started_at":           at,
			"current_turn_user_id": firstTurnUserID,
		})
	if res.Error != nil {
		return false, fmt.Errorf("gorm: start room %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRoomRepository) Finish(ctx context.Context, id string, at time.Time) (bool, error) {
	res := conn(ctx, r.db).Model(&domain.GameRoom{}).
		Where("id = ? AND status IN ?", id, []domain.RoomStatus{domain.RoomWaiting, domain.RoomPlaying}).
		Updates(map[string]any{
			"status":               domain.RoomFinished,
			"finished_at":          at,
			"current_turn_user_id": gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("gorm: finish room %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// AdvanceTurn is the compare-and-set that keeps concurrent submitters from
// overwriting each other's turn change.
func (r *GormRoomRepository) AdvanceTurn(ctx context.Context, id, expected, next string) (bool, error) {
	res := conn(ctx, r.db).Model(&domain.GameRoom{}).
		Where("id = ? AND status = ? AND current_turn_user_id = ?", id, domain.RoomPlaying, expected).
		Update("current_turn_user_id", next)
	if res.Error != nil {
		return false, fmt.Errorf("gorm: advance turn in room %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRoomRepository) SetHost(ctx context.Context, id, hostUserID string) error {
	return r.update(ctx, id, "host_user_id", hostUserID)
}

func (r *GormRoomRepository) SetPlayerCount(ctx context.Context, id string, count int) error {
	return r.update(ctx, id, "current_player_count", count)
}

func (r *GormRoomRepository) update(ctx context.Context, id, column string, value any) error {
	res := conn(ctx, r.db).Model(&domain.GameRoom{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("gorm: update %s of room %s: %w", column, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}

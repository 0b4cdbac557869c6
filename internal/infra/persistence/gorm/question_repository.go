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

// GormRoomQuestionRepository stores the answered-question ledger.
type GormRoomQuestionRepository struct {
	db *gorm.DB
}

func NewGormRoomQuestionRepository(db *gorm.DB) *GormRoomQuestionRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomQuestionRepository")
	}
	return &GormRoomQuestionRepository{db: db}
}

// Select upserts the selection; the conflict update is guarded by is_answered = false
// so an answered record is left untouched.
func (r *GormRoomQuestionRepository) Select(ctx context.Context, rec *domain.RoomQuestion) (bool, error) {
	res := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"selected_by", "selected_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: "game_room_questions", Name: "is_answered"}, Value: false},
		}},
	}).Create(rec)
	if res.Error != nil {
		return false, fmt.Errorf("gorm: select question %s in room %s: %w", rec.QuestionID, rec.RoomID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRoomQuestionRepository) Find(ctx context.Context, roomID, questionID string) (*domain.RoomQuestion, error) {
	var rec domain.RoomQuestion
	err := conn(ctx, r.db).Where("room_id = ? AND question_id = ?", roomID, questionID).First(&rec).Error
	if err != nil {
		if isNotFoundError(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("gorm: find question %s in room %s: %w", questionID, roomID, err)
	}
	return &rec, nil
}

func (r *GormRoomQuestionRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.RoomQuestion, error) {
	var rows []domain.RoomQuestion
	err := conn(ctx, r.db).Where("room_id = ?", roomID).Order("selected_at ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list questions of room %s: %w", roomID, err)
	}
	return rows, nil
}

func (r *GormRoomQuestionRepository) MarkAnswered(ctx context.Context, roomID, questionID string, answeredBy *string, outcome domain.AnswerOutcome, at time.Time) (bool, error) {
	res := conn(ctx, r.db).Model(&domain.RoomQuestion{}).
		Where("room_id = ? AND question_id = ? AND is_answered = ?", roomID, questionID, false).
		Updates(map[string]any{
			"is_answered": true,
			"answered_by": answeredBy,
			"outcome":     outcome,
			"answered_at": at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("gorm: mark question %s answered in room %s: %w", questionID, roomID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// GormQuestionRepository reads the question bank.
type GormQuestionRepository struct {
	db *gorm.DB
}

func NewGormQuestionRepository(db *gorm.DB) *GormQuestionRepository {
	if db == nil {
		panic("database connection cannot be nil for GormQuestionRepository")
	}
	return &GormQuestionRepository{db: db}
}

func (r *GormQuestionRepository) FindByID(ctx context.Context, id string) (*domain.Question, error) {
	var q domain.Question
	err := conn(ctx, r.db).Where("id = ?", id).First(&q).Error
	if err != nil {
		if isNotFoundError(err) {
			return nil, repository.ErrQuestionNotFound
		}
		return nil, fmt.Errorf("gorm: find question %s: %w", id, err)
	}
	return &q, nil
}

func (r *GormQuestionRepository) ListBoard(ctx context.Context, categories []string, rowCount int) ([]domain.Question, error) {
	board := make([]domain.Question, 0, len(categories)*rowCount)
	for _, cat := range categories {
		var rows []domain.Question
		err := conn(ctx, r.db).
			Where("category = ?", cat).
			Order("points ASC, id ASC").
			Limit(rowCount).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("gorm: list board questions for category %q: %w", cat, err)
		}
		board = append(board, rows...)
	}
	return board, nil
}

package gormpersistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
)

// GormUserRepository is the gorm implementation of repository.UserRepository.
type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	if db == nil {
		panic("database connection cannot be nil for GormUserRepository")
	}
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := conn(ctx, r.db).Where("LOWER(username) = LOWER(?)", username).First(&user).Error
	if err != nil {
		if isNotFoundError(err) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: find user by username '%s': %w", username, err)
	}
	return &user, nil
}

func (r *GormUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := conn(ctx, r.db).Where("id = ?", id).First(&user).Error
	if err != nil {
		if isNotFoundError(err) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: find user by id %s: %w", id, err)
	}
	return &user, nil
}

// Save inserts when the user has no id yet, otherwise updates every column.
func (r *GormUserRepository) Save(ctx context.Context, user *domain.User) error {
	db := conn(ctx, r.db)
	var err error
	if user.ID == "" {
		user.ID = uuid.NewString()
		err = db.Create(user).Error
	} else {
		err = db.Save(user).Error
	}
	if err != nil {
		return wrapWriteErr(err, repository.ErrDuplicateEntry, "save user (id: %s, username: %s)", user.ID, user.Username)
	}
	return nil
}

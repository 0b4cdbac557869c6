package repository

import (
	"context"

	"quiz-arena/internal/domain"
)

// UserRepository stores player accounts.
type UserRepository interface {
	// FindByUsername returns ErrUserNotFound when no account matches.
	FindByUsername(ctx context.Context, username string) (*domain.User, error)

	FindByID(ctx context.Context, id string) (*domain.User, error)

	// Save inserts the user (assigning an id when empty) or updates it.
	// A taken username yields ErrDuplicateEntry.
	Save(ctx context.Context, user *domain.User) error
}

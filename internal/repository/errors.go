package repository

import "errors"

// Generic repository errors. Implementations map driver errors onto these.
var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry means a unique constraint rejected the write.
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
)

var (
	ErrUserNotFound     = ErrNotFound
	ErrRoomNotFound     = ErrNotFound
	ErrRequestNotFound  = ErrNotFound
	ErrPlayerNotFound   = ErrNotFound
	ErrQuestionNotFound = ErrNotFound
	ErrPresenceNotFound = ErrNotFound
)

package service

import (
	"errors"
	"fmt"

	"quiz-arena/internal/domain"
)

// Error kinds. Every error a service returns wraps exactly one of these, so the
// transport layer can map it with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("not allowed")
	ErrConflict             = errors.New("conflict")
	ErrTransient            = errors.New("temporarily unavailable, please retry")
	ErrValidation           = errors.New("invalid input")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

var (
	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)
	ErrRoomNotFound     = fmt.Errorf("room %w", ErrNotFound)
	ErrRequestNotFound  = fmt.Errorf("match request %w", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)

	ErrNotInRoom        = fmt.Errorf("%w: you are not a player in this room", ErrUnauthorized)
	ErrNotHost          = fmt.Errorf("%w: only the host can do this", ErrUnauthorized)
	ErrNotRequestTarget = fmt.Errorf("%w: only the challenged player can respond", ErrUnauthorized)

	ErrUsernameTaken       = fmt.Errorf("%w: username already exists", ErrConflict)
	ErrRequestPending      = fmt.Errorf("%w: a challenge between you two is already pending", ErrConflict)
	ErrRequestResolved     = fmt.Errorf("%w: match request is no longer pending", ErrConflict)
	ErrRoomFull            = fmt.Errorf("%w: room is full", ErrConflict)
	ErrRoomNotWaiting      = fmt.Errorf("%w: room has already started", ErrConflict)
	ErrRoomNotPlaying      = fmt.Errorf("%w: room is not playing", ErrConflict)
	ErrRoomFinished        = fmt.Errorf("%w: room is finished", ErrConflict)
	ErrInsufficientPlayers = fmt.Errorf("%w: at least %d active players are needed", ErrConflict, domain.MinPlayersToStart)
	ErrNotYourTurn         = fmt.Errorf("%w: it is not your turn", ErrConflict)
	ErrTurnChanged         = fmt.Errorf("%w: the turn moved on", ErrConflict)
	ErrQuestionAnswered    = fmt.Errorf("%w: question was already answered", ErrConflict)
	ErrQuestionInProgress  = fmt.Errorf("%w: another question is in progress", ErrConflict)
	ErrQuestionNotSelected = fmt.Errorf("%w: question has not been selected", ErrConflict)

	ErrSelfChallenge      = fmt.Errorf("%w: you cannot challenge yourself", ErrValidation)
	ErrInvalidPresence    = fmt.Errorf("%w: unknown presence status", ErrValidation)
	ErrQuestionNotOnBoard = fmt.Errorf("%w: question is not on this board", ErrValidation)
	ErrUnknownCategory    = fmt.Errorf("%w: category has no questions", ErrValidation)

	ErrSessionInactive = fmt.Errorf("%w: session is not active", ErrAuthenticationFailed)
	ErrSessionRevoked  = fmt.Errorf("%w: session was signed out", ErrAuthenticationFailed)
)

var kinds = []error{ErrNotFound, ErrUnauthorized, ErrConflict, ErrTransient, ErrValidation, ErrAuthenticationFailed}

// validation wraps a domain validation failure as ErrValidation.
func validation(err error) error {
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// classify passes service errors through and turns everything else (storage, cache,
// broker failures) into ErrTransient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

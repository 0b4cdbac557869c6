package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.Same(t, ErrRoomFull, classify(ErrRoomFull))

	wrapped := fmt.Errorf("join: %w", ErrNotHost)
	assert.Equal(t, wrapped, classify(wrapped))

	err := classify(errors.New("gorm: connection reset"))
	assert.ErrorIs(t, err, ErrTransient)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSpecificErrorsWrapOneKind(t *testing.T) {
	cases := map[error]error{
		ErrRoomFull:            ErrConflict,
		ErrInsufficientPlayers: ErrConflict,
		ErrRequestResolved:     ErrConflict,
		ErrNotHost:             ErrUnauthorized,
		ErrSelfChallenge:       ErrValidation,
		ErrRoomNotFound:        ErrNotFound,
		ErrSessionRevoked:      ErrAuthenticationFailed,
	}
	for err, kind := range cases {
		matched := 0
		for _, k := range kinds {
			if errors.Is(err, k) {
				matched++
			}
		}
		assert.ErrorIs(t, err, kind)
		assert.Equal(t, 1, matched, err.Error())
	}
}

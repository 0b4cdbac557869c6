package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-arena/internal/tasks"
)

func TestMux_RoutesSweeps(t *testing.T) {
	var expired, swept int
	mux := newMux(Sweeps{
		ExpireMatchRequests: func(context.Context) (int64, error) { expired++; return 3, nil },
		SweepPresence:       func(context.Context) (int64, error) { swept++; return 0, nil },
	})

	require.NoError(t, mux.ProcessTask(context.Background(), tasks.NewMatchmakingExpireTask()))
	require.NoError(t, mux.ProcessTask(context.Background(), tasks.NewPresenceSweepTask()))
	require.NoError(t, mux.ProcessTask(context.Background(), tasks.NewPresenceSweepTask()))

	assert.Equal(t, 1, expired)
	assert.Equal(t, 2, swept)
}

func TestSweepHandler_PropagatesErrorForRetry(t *testing.T) {
	boom := errors.New("db unavailable")
	h := NewSweepHandler("presence_sweep", func(context.Context) (int64, error) { return 0, boom })

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypePresenceSweep, nil))

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "presence_sweep")
}

func TestNewSweepHandler_NilPanics(t *testing.T) {
	assert.Panics(t, func() { NewSweepHandler("x", nil) })
}

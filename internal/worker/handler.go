package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// SweepFunc runs one maintenance sweep and reports how many rows it changed.
type SweepFunc func(ctx context.Context) (int64, error)

// SweepHandler adapts a SweepFunc to an asynq handler.
type SweepHandler struct {
	name  string
	sweep SweepFunc
}

func NewSweepHandler(name string, sweep SweepFunc) *SweepHandler {
	if sweep == nil {
		panic("sweep func cannot be nil for SweepHandler")
	}
	return &SweepHandler{name: name, sweep: sweep}
}

// ProcessTask implements asynq.Handler.
func (h *SweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"sweep":     h.name,
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})

	n, err := h.sweep(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Sweep failed")
		return fmt.Errorf("%s sweep: %w", h.name, err)
	}
	if n > 0 {
		logCtx.WithField("rows", n).Info("Sweep completed")
	} else {
		logCtx.Debug("Sweep completed, nothing to do")
	}
	return nil
}

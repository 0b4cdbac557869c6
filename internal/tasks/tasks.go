package tasks

import "github.com/hibiken/asynq"

// Periodic maintenance task types. Both are idempotent sweeps without payload;
// readers never depend on them having run.
const (
	TypeMatchmakingExpire = "matchmaking:expire"
	TypePresenceSweep     = "presence:sweep"
)

// NewMatchmakingExpireTask marks pending requests past their expiry as expired.
func NewMatchmakingExpireTask() *asynq.Task {
	return asynq.NewTask(TypeMatchmakingExpire, nil)
}

// NewPresenceSweepTask marks presence rows outside the window offline.
func NewPresenceSweepTask() *asynq.Task {
	return asynq.NewTask(TypePresenceSweep, nil)
}

package worker

import (
	"context"
	"errors"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"quiz-arena/internal/tasks"
)

// Sweeps are the maintenance jobs the worker runs.
type Sweeps struct {
	ExpireMatchRequests SweepFunc
	SweepPresence       SweepFunc
}

// WorkerServer runs the asynq server that executes periodic sweeps.
type WorkerServer struct {
	server *asynq.Server
	log    *logrus.Entry
	sweeps Sweeps
}

func NewWorkerServer(redisOpt asynq.RedisClientOpt, sweeps Sweeps, concurrency int, logger *logrus.Logger) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")
	if concurrency <= 0 {
		concurrency = 2
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskID := ""
				if rw := task.ResultWriter(); rw != nil {
					taskID = rw.TaskID()
				}
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_id":   taskID,
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	return &WorkerServer{server: server, log: logEntry, sweeps: sweeps}
}

// Mux routes task types to their handlers.
func (ws *WorkerServer) Mux() *asynq.ServeMux {
	return newMux(ws.sweeps)
}

func newMux(s Sweeps) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeMatchmakingExpire, NewSweepHandler("matchmaking_expire", s.ExpireMatchRequests))
	mux.Handle(tasks.TypePresenceSweep, NewSweepHandler("presence_sweep", s.SweepPresence))
	return mux
}

// Start runs the server; call it in its own goroutine.
func (ws *WorkerServer) Start() {
	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(ws.Mux()); err != nil {
		if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Fatalf("Could not run worker server: %v", err)
		} else {
			ws.log.Info("Worker server stopped.")
		}
	}
}

func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}

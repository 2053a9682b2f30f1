package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/rmontes/backoffice/backend/internal/config"
	"github.com/rmontes/backoffice/backend/pkg/logger"
)

// Worker drains the async code-delivery queue. Only constructed when
// Redis is enabled.
type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	sender  CodeSender
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewWorker(cfg *config.RedisConfig, sender CodeSender) *Worker {
	if !cfg.Enabled {
		return nil
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warnf("[Worker] error processing task %s: %v", task.Type(), err)
			}),
		},
	)

	return &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		sender: sender,
	}
}

// Start begins processing tasks.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeSendCode, w.handleSendCode)

	w.running = true
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		logger.Infof("[Worker] starting async worker...")
		if err := w.server.Run(w.mux); err != nil {
			logger.Errorf("[Worker] server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.server.Shutdown()
	w.running = false
	w.wg.Wait()
	logger.Infof("[Worker] shutdown complete")
}

func (w *Worker) handleSendCode(ctx context.Context, t *asynq.Task) error {
	var task CodeTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		logger.Warnf("[Worker] failed to unmarshal task: %v", err)
		return err
	}
	return w.sender.SendCode(task.To, task.Code, task.Purpose)
}

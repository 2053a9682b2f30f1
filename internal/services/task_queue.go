package services

import (
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/rmontes/backoffice/backend/internal/config"
	"github.com/rmontes/backoffice/backend/pkg/logger"
)

const (
	TaskTypeSendCode = "email:send_code"
)

// CodeTask carries a verification-code delivery job.
type CodeTask struct {
	To      string `json:"to"`
	Code    string `json:"code"`
	Purpose string `json:"purpose"` // register, reset
}

// TaskQueue decouples passcode issuance from email delivery. The async
// implementation needs a running Worker; the sync one delivers inline.
type TaskQueue interface {
	Enqueue(task *CodeTask) error
	IsAsync() bool
	Close() error
}

// NewTaskQueue picks the queue implementation from config: asynq when
// Redis is enabled and reachable, inline delivery otherwise.
func NewTaskQueue(cfg *config.RedisConfig, sender CodeSender) TaskQueue {
	if cfg.Enabled {
		queue, err := NewAsyncQueue(cfg)
		if err == nil {
			logger.Infof("[TaskQueue] async queue initialized with Redis at %s", cfg.Addr)
			return queue
		}
		logger.Warnf("[TaskQueue] Redis unavailable, falling back to sync delivery: %v", err)
	}
	return NewSyncQueue(sender)
}

// AsyncQueue implements TaskQueue on asynq (Redis-backed).
type AsyncQueue struct {
	client *asynq.Client
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	// Verify the connection before committing to async mode.
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(task *CodeTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeSendCode, payload)
	_, err = q.client.Enqueue(t,
		asynq.Queue("default"),
		asynq.MaxRetry(3),
	)
	return err
}

func (q *AsyncQueue) IsAsync() bool { return true }

func (q *AsyncQueue) Close() error { return q.client.Close() }

// SyncQueue delivers codes inline on the request goroutine.
type SyncQueue struct {
	sender CodeSender
}

func NewSyncQueue(sender CodeSender) *SyncQueue {
	return &SyncQueue{sender: sender}
}

func (q *SyncQueue) Enqueue(task *CodeTask) error {
	return q.sender.SendCode(task.To, task.Code, task.Purpose)
}

func (q *SyncQueue) IsAsync() bool { return false }

func (q *SyncQueue) Close() error { return nil }

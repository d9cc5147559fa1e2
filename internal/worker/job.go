package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jindalchat/internal/config"
	"jindalchat/internal/logger"
	"jindalchat/internal/redis"
)

// ErrSchedulerClosed is returned when a job is scheduled after Close.
var ErrSchedulerClosed = errors.New("scheduler closed")

// Job asks for one assistant reply to a stored user message.
type Job struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	UserMessage string    `json:"user_message"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// NewJob stamps a job with a fresh id.
func NewJob(userID int64, userMessage string) Job {
	return Job{
		ID:          uuid.NewString(),
		UserID:      userID,
		UserMessage: userMessage,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// Handler runs one job. A returned error is logged; the job is not retried.
type Handler func(ctx context.Context, job Job) error

// Scheduler queues jobs for asynchronous execution. Schedule returns once the
// job is accepted, without waiting for it to run.
type Scheduler interface {
	Schedule(ctx context.Context, job Job) error
	Start(ctx context.Context, handler Handler) error
	Close() error
	Backend() string
}

// New builds the scheduler selected by cfg.Queue.Backend. rdb is required for
// the redis backend and ignored otherwise.
func New(ctx context.Context, cfg *config.Config, rdb *redis.Client, log *logger.Logger) (Scheduler, error) {
	if log == nil {
		log = logger.Nop()
	}
	q := cfg.Queue
	switch q.Backend {
	case "", "memory":
		return NewDispatcher(DispatcherConfig{
			MinWorkers:  q.MinWorkers,
			MaxWorkers:  q.MaxWorkers,
			QueueSize:   q.QueueSize,
			IdleTimeout: time.Duration(q.WorkerIdleSeconds) * time.Second,
		}, log), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis queue requires a redis client")
		}
		return NewRedisQueue(rdb, q.RedisKey, q.MaxWorkers, log), nil
	case "nats":
		return NewNATSQueue(ctx, cfg.NATS, q.MaxWorkers, log)
	default:
		return nil, fmt.Errorf("unsupported queue backend: %s", q.Backend)
	}
}

// runJob invokes handler and logs the outcome. Panics are contained to the job.
func runJob(ctx context.Context, handler Handler, job Job, log *logger.Logger) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "job_id", job.ID, "user_id", job.UserID, "panic", r)
		}
	}()
	if err := handler(ctx, job); err != nil {
		log.Error("job failed", "job_id", job.ID, "user_id", job.UserID, "error", err)
		return
	}
	log.Debug("job done", "job_id", job.ID, "user_id", job.UserID, "elapsed", time.Since(start))
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"jindalchat/internal/logger"
	"jindalchat/internal/redis"
)

const (
	redisPollTimeout = time.Second
	redisRetryDelay  = 500 * time.Millisecond
)

// RedisQueue is a reliable list queue. Consumers move each job from the
// pending list to a processing list and remove it once the handler returns,
// so jobs left in processing by a crashed process are requeued on Start.
type RedisQueue struct {
	client     *redis.Client
	pending    string
	processing string
	workers    int
	log        *logger.Logger

	started atomic.Bool
	closed  atomic.Bool
	quit    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRedisQueue(client *redis.Client, key string, workers int, log *logger.Logger) *RedisQueue {
	if key == "" {
		key = "jindalchat:jobs"
	}
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisQueue{
		client:     client,
		pending:    key + ":pending",
		processing: key + ":processing",
		workers:    workers,
		log:        log.With("component", "redis_queue"),
		quit:       make(chan struct{}),
	}
}

func (q *RedisQueue) Backend() string { return "redis" }

func (q *RedisQueue) Schedule(ctx context.Context, job Job) error {
	if q.closed.Load() {
		return ErrSchedulerClosed
	}
	raw := q.client.Raw()
	if raw == nil {
		return errors.New("redis client not initialized")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := raw.LPush(ctx, q.pending, payload).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Start(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler required")
	}
	if q.closed.Load() {
		return ErrSchedulerClosed
	}
	if !q.started.CompareAndSwap(false, true) {
		return errors.New("redis queue already started")
	}
	raw := q.client.Raw()
	if raw == nil {
		return errors.New("redis client not initialized")
	}
	recovered, err := q.requeueProcessing(ctx, raw)
	if err != nil {
		return err
	}
	if recovered > 0 {
		q.log.Warn("requeued unfinished jobs", "count", recovered)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.consume(ctx, pollCtx, raw, handler, i+1)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(q.quit)
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
	return nil
}

func (q *RedisQueue) requeueProcessing(ctx context.Context, raw *goredis.Client) (int, error) {
	count := 0
	for {
		err := raw.LMove(ctx, q.processing, q.pending, "RIGHT", "RIGHT").Err()
		if errors.Is(err, goredis.Nil) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("requeue processing jobs: %w", err)
		}
		count++
	}
}

// consume runs handlers with ctx but polls with pollCtx so Close does not
// cancel jobs that are already running.
func (q *RedisQueue) consume(ctx, pollCtx context.Context, raw *goredis.Client, handler Handler, id int) {
	defer q.wg.Done()
	log := q.log.With("worker", id)
	for {
		select {
		case <-q.quit:
			return
		default:
		}
		payload, err := raw.BLMove(pollCtx, q.pending, q.processing, "RIGHT", "LEFT", redisPollTimeout).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if pollCtx.Err() != nil {
				return
			}
			log.Warn("poll failed", "error", err)
			select {
			case <-time.After(redisRetryDelay):
			case <-q.quit:
				return
			}
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			log.Error("discarding undecodable job", "error", err)
		} else {
			runJob(ctx, handler, job, log)
		}
		if err := raw.LRem(context.WithoutCancel(ctx), q.processing, 1, payload).Err(); err != nil {
			log.Error("ack job failed", "job_id", job.ID, "error", err)
		}
	}
}

package worker

import (
	"context"
	"net"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"jindalchat/internal/config"
	"jindalchat/internal/logger"
	"jindalchat/internal/redis"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis queue tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	cfg := config.Defaults()
	cfg.Redis.Host = host
	cfg.Redis.Port = port
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func collectJobs(t *testing.T, s Scheduler, jobs []Job) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	if err := s.Start(context.Background(), func(_ context.Context, job Job) error {
		mu.Lock()
		seen[job.ID] = true
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, job := range jobs {
		if err := s.Schedule(context.Background(), job); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}
	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(jobs)
	})
}

func TestRedisQueueDeliversAndAcks(t *testing.T) {
	client := newTestRedisClient(t)
	key := "jindalchat:test:" + uuid.NewString()
	q := NewRedisQueue(client, key, 2, logger.Nop())
	defer func() {
		_ = q.Close()
		_ = client.Del(context.Background(), q.pending, q.processing)
	}()

	collectJobs(t, q, []Job{NewJob(1, "Hello"), NewJob(2, "Hi")})

	waitFor(t, 2*time.Second, func() bool {
		n, err := client.Raw().LLen(context.Background(), q.processing).Result()
		return err == nil && n == 0
	})
}

func TestRedisQueueRequeuesUnfinishedJobs(t *testing.T) {
	client := newTestRedisClient(t)
	key := "jindalchat:test:" + uuid.NewString()
	q := NewRedisQueue(client, key, 1, logger.Nop())
	defer func() {
		_ = q.Close()
		_ = client.Del(context.Background(), q.pending, q.processing)
	}()

	// simulate a job taken by a process that died mid-flight
	stranded := NewJob(3, "stranded")
	if err := q.Schedule(context.Background(), stranded); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := client.Raw().LMove(context.Background(), q.pending, q.processing, "RIGHT", "LEFT").Err(); err != nil {
		t.Fatalf("LMove: %v", err)
	}

	done := make(chan Job, 1)
	if err := q.Start(context.Background(), func(_ context.Context, job Job) error {
		done <- job
		return nil
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case job := <-done:
		if job.ID != stranded.ID {
			t.Fatalf("unexpected job %+v", job)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("stranded job was not requeued")
	}
}

func TestNATSQueueDelivers(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("set TEST_NATS_URL to run nats queue tests")
	}
	suffix := uuid.NewString()[:8]
	q, err := NewNATSQueue(context.Background(), config.NATSConfig{
		URL:     url,
		Stream:  "JINDALCHAT_TEST_" + suffix,
		Subject: "jindalchat.test." + suffix,
	}, 2, logger.Nop())
	if err != nil {
		t.Fatalf("NewNATSQueue: %v", err)
	}
	defer func() {
		_ = q.js.DeleteStream(context.Background(), q.stream)
		_ = q.Close()
	}()

	collectJobs(t, q, []Job{NewJob(1, "Hello"), NewJob(2, "Hi"), NewJob(1, "Again")})
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"jindalchat/internal/config"
	"jindalchat/internal/logger"
)

const (
	natsDurableName = "jindalchat-responder"
	natsAckWait     = 5 * time.Minute
)

// NATSQueue schedules jobs on a JetStream work-queue stream. Each job is
// acked after its handler returns; unacked jobs are redelivered after
// natsAckWait.
type NATSQueue struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	stream  string
	subject string
	log     *logger.Logger

	sem        chan struct{}
	wg         sync.WaitGroup
	started    atomic.Bool
	closed     atomic.Bool
	mu         sync.Mutex
	consumeCtx jetstream.ConsumeContext
}

// NewNATSQueue connects to NATS and makes sure the work-queue stream exists.
func NewNATSQueue(ctx context.Context, cfg config.NATSConfig, concurrency int, log *logger.Logger) (*NATSQueue, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	stream := cfg.Stream
	if stream == "" {
		stream = "CHAT_RESPONSES"
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "chat.responses"
	}

	nc, err := nats.Connect(cfg.URL, nats.Name("jindalchat"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(setupCtx, jetstream.StreamConfig{
		Name:        stream,
		Description: "Pending assistant replies",
		Subjects:    []string{subject},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream '%s': %w", stream, err)
	}

	return &NATSQueue{
		nc:      nc,
		js:      js,
		stream:  stream,
		subject: subject,
		log:     log.With("component", "nats_queue"),
		sem:     make(chan struct{}, concurrency),
	}, nil
}

func (q *NATSQueue) Backend() string { return "nats" }

func (q *NATSQueue) Schedule(ctx context.Context, job Job) error {
	if q.closed.Load() {
		return ErrSchedulerClosed
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if _, err := q.js.Publish(ctx, q.subject, data, jetstream.WithMsgID(job.ID)); err != nil {
		return fmt.Errorf("failed to publish job to subject '%s': %w", q.subject, err)
	}
	return nil
}

func (q *NATSQueue) Start(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler required")
	}
	if q.closed.Load() {
		return ErrSchedulerClosed
	}
	if !q.started.CompareAndSwap(false, true) {
		return errors.New("nats queue already started")
	}
	cons, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Durable:       natsDurableName,
		FilterSubject: q.subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       natsAckWait,
		MaxAckPending: cap(q.sem) * 2,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer for subject '%s': %w", q.subject, err)
	}

	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		if q.closed.Load() {
			_ = msg.Nak()
			return
		}
		var job Job
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			q.log.Error("discarding undecodable job", "subject", msg.Subject(), "error", err)
			_ = msg.Term()
			return
		}
		q.sem <- struct{}{}
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			defer func() { <-q.sem }()
			runJob(ctx, handler, job, q.log)
			if err := msg.Ack(); err != nil {
				q.log.Error("ack job failed", "job_id", job.ID, "error", err)
			}
		}()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming from subject '%s': %w", q.subject, err)
	}
	q.mu.Lock()
	q.consumeCtx = consumeCtx
	q.mu.Unlock()
	return nil
}

func (q *NATSQueue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	q.mu.Lock()
	if q.consumeCtx != nil {
		q.consumeCtx.Stop()
	}
	q.mu.Unlock()
	q.wg.Wait()
	if q.nc != nil {
		q.nc.Close()
	}
	return nil
}

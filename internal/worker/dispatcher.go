package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"jindalchat/internal/logger"
)

type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher is the in-process scheduler. Jobs are held per user and handed
// out round robin so one busy user cannot starve the others. Pending jobs are
// lost when the process exits.
type Dispatcher struct {
	cfg      DispatcherConfig
	pool     *jobChannelPool
	jobQueue chan Job // interface for outer jobs get in the dispatcher
	log      *logger.Logger

	mu        sync.Mutex
	queues    map[int64]*userQueue // job queue for each user
	ready     *list.List           // LRU queue storing user IDs
	positions map[int64]*list.Element

	ctx      context.Context
	handler  Handler
	inflight sync.WaitGroup
	started  atomic.Bool
	closed   atomic.Bool
	quit     chan struct{}
	done     chan struct{}
}

func NewDispatcher(cfg DispatcherConfig, log *logger.Logger) *Dispatcher {
	if cfg.MinWorkers < 0 {
		cfg.MinWorkers = 0
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		cfg:       cfg,
		jobQueue:  make(chan Job, cfg.QueueSize),
		log:       log.With("component", "dispatcher"),
		queues:    make(map[int64]*userQueue),
		ready:     list.New(),
		positions: make(map[int64]*list.Element),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (d *Dispatcher) Backend() string { return "memory" }

// Schedule buffers the job. It blocks only while the buffer is full.
func (d *Dispatcher) Schedule(ctx context.Context, job Job) error {
	if d.closed.Load() {
		return ErrSchedulerClosed
	}
	select {
	case d.jobQueue <- job:
		return nil
	case <-d.quit:
		return ErrSchedulerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start spawns the warm workers and begins dispatching to handler.
func (d *Dispatcher) Start(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler required")
	}
	if d.closed.Load() {
		return ErrSchedulerClosed
	}
	if !d.started.CompareAndSwap(false, true) {
		return errors.New("dispatcher already started")
	}
	d.ctx = ctx
	d.handler = handler
	d.pool = newJobChannelPool(d.cfg.MinWorkers, d.cfg.MaxWorkers, d.cfg.IdleTimeout, d.exec, d.quit)

	// Warm up workers.
	for i := 0; i < d.cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}
	go d.run()
	return nil
}

// Close stops dispatching and waits for running jobs. Jobs still queued are
// dropped.
func (d *Dispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(d.quit)
	if d.started.Load() {
		d.pool.wake()
		<-d.done
	}
	d.inflight.Wait()
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		// dispatch one job of user in the front of LRU queue
		if !d.dispatchOne() {
			select {
			case job := <-d.jobQueue: // force congestion
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		// if we have a new job, enqueue it and its caller user
		select {
		case job := <-d.jobQueue: // non-congestion
			d.enqueueJob(job)
		case <-d.quit:
			return
		default:
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.UserID]
	if q == nil {
		q = &userQueue{}
		d.queues[job.UserID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		// user already enqueue, skip
		return
	}
	q.enqueued = true
	d.positions[job.UserID] = d.ready.PushBack(job.UserID)
}

// nextJob pops the head job of the first user in LRU order and moves that
// user to the back if it still has work.
func (d *Dispatcher) nextJob() (Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	elem := d.ready.Front()
	if elem == nil {
		return Job{}, false
	}
	userID := elem.Value.(int64)
	q := d.queues[userID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, userID)
		delete(d.queues, userID)
	} else {
		d.ready.MoveToBack(elem)
	}
	return job, true
}

func (d *Dispatcher) dispatchOne() bool {
	job, ok := d.nextJob()
	if !ok {
		return false
	}
	d.inflight.Add(1)
	workerChan := d.pool.acquire()
	if workerChan == nil {
		d.inflight.Done()
		d.log.Warn("dropping job on shutdown", "job_id", job.ID, "user_id", job.UserID)
		return false
	}
	d.log.Debug("assign job", "job_id", job.ID, "user_id", job.UserID, "worker", d.pool.workerID(workerChan))
	select {
	case workerChan <- job:
		return true
	case <-d.quit:
		d.inflight.Done()
		return false
	}
}

func (d *Dispatcher) exec(job Job) {
	defer d.inflight.Done()
	runJob(d.ctx, d.handler, job, d.log)
}

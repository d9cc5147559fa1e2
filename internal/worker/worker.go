package worker

type worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
}

func newWorker(id int, pool *jobChannelPool) *worker {
	return &worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

// start registers the worker as idle, runs whatever it is handed, and exits
// when its channel is closed by the pool or the pool shuts down.
func (w *worker) start() {
	go func() {
		defer w.pool.retire(w.jobChannel)
		for {
			w.pool.Release(w.jobChannel)
			select {
			case job, ok := <-w.jobChannel:
				if !ok {
					return
				}
				w.pool.exec(job)
			case <-w.pool.quit:
				return
			}
		}
	}()
}

package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"go.uber.org/atomic"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Job is a unit of background work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Result is the outcome of a finished job.
type Result struct {
	Job      string
	Err      error
	Duration time.Duration
}

// Stats counts jobs by outcome.
type Stats struct {
	Submitted int64
	Succeeded int64
	Failed    int64
}

// Pool runs submitted jobs on a fixed set of workers. Jobs run in no
// particular order and outlive the context they were submitted with.
type Pool struct {
	jobs   chan Job
	handle func(Result)
	wg     gosync.WaitGroup

	closeMu gosync.RWMutex
	closed  atomic.Bool

	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// NewPool starts workers goroutines reading from a queue of queueSize
// jobs. handle, if non-nil, receives every job's Result from the worker
// that ran it.
func NewPool(workers, queueSize int, handle func(Result)) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool{
		jobs:   make(chan Job, queueSize),
		handle: handle,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit queues job. It blocks only while the queue is full, until ctx is
// done.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job:
		p.submitted.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, lets the queued ones finish and waits for the
// workers to exit.
func (p *Pool) Close() {
	p.closeMu.Lock()
	if p.closed.CompareAndSwap(false, true) {
		close(p.jobs)
	}
	p.closeMu.Unlock()

	p.wg.Wait()
}

// Stats returns the job counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.jobs {
		start := time.Now()
		err := runJob(job)

		if err != nil {
			p.failed.Inc()
		} else {
			p.succeeded.Inc()
		}
		if p.handle != nil {
			p.handle(Result{Job: job.Name, Err: err, Duration: time.Since(start)})
		}
	}
}

// runJob calls job.Run, turning a panic into an error.
func runJob(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.Run(context.Background())
}

package worker

import (
	"context"
	"strconv"
	"sync"

	"github.com/ppiankov/factcheck/internal/metrics"
)

// Job represents a unit of work to be executed. The worker index lets a
// job pick the resources owned by the worker running it.
type Job interface {
	Execute(ctx context.Context, worker int) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool manages a fixed set of workers fed by a bounded job queue
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewPool creates a pool with the given number of workers and queue size.
// A queue size <= 0 defaults to twice the worker count.
func NewPool(workers, queueSize int) *Pool {
	return NewPoolContext(context.Background(), workers, queueSize)
}

// NewPoolContext creates a pool whose jobs are cancelled with ctx
func NewPoolContext(ctx context.Context, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, queueSize),
		results:    make(chan Result, workers),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Workers returns the number of workers
func (p *Pool) Workers() int {
	return p.workers
}

// Start starts the worker goroutines. Results is closed once every worker
// has exited.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// worker is the worker goroutine that processes jobs
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	busy := metrics.WorkersBusy.WithLabelValues(strconv.Itoa(id))

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok || p.ctx.Err() != nil {
				return
			}
			busy.Set(1)
			result := job.Execute(p.ctx, id)
			busy.Set(0)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job, blocking while the queue is full. It returns false
// if the pool was closed or shut down.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || p.ctx.Err() != nil {
		return false
	}

	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- job:
		return true
	}
}

// Results streams job results in completion order
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Close stops accepting jobs; workers exit after draining the queue
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobQueue)
		p.mu.Unlock()
	})
}

// Wait closes the queue and collects every remaining result
func (p *Pool) Wait() []Result {
	p.Close()

	var results []Result
	for result := range p.results {
		results = append(results, result)
	}
	return results
}

// Stop cancels running jobs without waiting for the workers
func (p *Pool) Stop() {
	p.cancelFunc()
}

// Shutdown cancels running jobs and waits for the workers to exit
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
}

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockResult implements Result
type mockResult struct {
	worker int
	err    error
}

func (r *mockResult) GetError() error {
	return r.err
}

// mockJob implements Job
type mockJob struct {
	duration  time.Duration
	shouldErr bool
	executed  *int32 // atomic counter
}

func (j *mockJob) Execute(ctx context.Context, worker int) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &mockResult{worker: worker, err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &mockResult{worker: worker, err: errors.New("job error")}
	}
	return &mockResult{worker: worker}
}

// feed submits jobs from a goroutine and closes the pool afterwards
func feed(p *Pool, jobs ...Job) {
	go func() {
		for _, j := range jobs {
			p.Submit(j)
		}
		p.Close()
	}()
}

func TestNewPool(t *testing.T) {
	p1 := NewPool(5, 0)
	if p1.workers != 5 {
		t.Errorf("expected 5 workers, got %d", p1.workers)
	}
	if cap(p1.jobQueue) != 10 {
		t.Errorf("expected default queue of 10, got %d", cap(p1.jobQueue))
	}

	p2 := NewPool(0, 3)
	if p2.workers != 1 {
		t.Errorf("expected default 1 worker for 0 input, got %d", p2.workers)
	}
	if cap(p2.jobQueue) != 3 {
		t.Errorf("expected queue of 3, got %d", cap(p2.jobQueue))
	}

	p3 := NewPool(-1, 0)
	if p3.Workers() != 1 {
		t.Errorf("expected default 1 worker for negative input, got %d", p3.Workers())
	}
}

func TestPool_Execution(t *testing.T) {
	pool := NewPool(2, 1)
	pool.Start()

	var executed int32
	count := 25

	jobs := make([]Job, count)
	for i := range jobs {
		jobs[i] = &mockJob{executed: &executed}
	}
	feed(pool, jobs...)

	var results []Result
	for r := range pool.Results() {
		results = append(results, r)
	}

	if len(results) != count {
		t.Errorf("expected %d results, got %d", count, len(results))
	}
	if got := atomic.LoadInt32(&executed); got != int32(count) {
		t.Errorf("expected %d executed jobs, got %d", count, got)
	}
	for _, r := range results {
		if w := r.(*mockResult).worker; w < 0 || w > 1 {
			t.Errorf("worker index %d out of range", w)
		}
	}
}

// concurrencyJob tracks max concurrent executions
type concurrencyJob struct {
	start    func()
	end      func()
	duration time.Duration
}

func (j *concurrencyJob) Execute(ctx context.Context, worker int) Result {
	if j.start != nil {
		j.start()
	}
	time.Sleep(j.duration)
	if j.end != nil {
		j.end()
	}
	return &mockResult{worker: worker}
}

func TestPool_Concurrency(t *testing.T) {
	workers := 10
	pool := NewPool(workers, 0)
	pool.Start()

	var current int32
	var maxConcurrent int32
	var completed int32
	var mu sync.Mutex

	totalJobs := 50

	jobs := make([]Job, totalJobs)
	for i := range jobs {
		jobs[i] = &concurrencyJob{
			start: func() {
				curr := atomic.AddInt32(&current, 1)
				mu.Lock()
				if curr > maxConcurrent {
					maxConcurrent = curr
				}
				mu.Unlock()
			},
			end: func() {
				atomic.AddInt32(&current, -1)
				atomic.AddInt32(&completed, 1)
			},
			duration: 10 * time.Millisecond,
		}
	}
	feed(pool, jobs...)

	for range pool.Results() {
	}

	if got := atomic.LoadInt32(&completed); got != int32(totalJobs) {
		t.Errorf("expected %d completed jobs, got %d", totalJobs, got)
	}

	mu.Lock()
	max := maxConcurrent
	mu.Unlock()

	if max > int32(workers) {
		t.Errorf("max concurrency %d exceeded workers %d", max, workers)
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	pool := NewPool(2, 0)
	pool.Start()

	pool.Submit(&mockJob{shouldErr: true})
	pool.Submit(&mockJob{shouldErr: false})

	results := pool.Wait()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	errCount := 0
	for _, res := range results {
		if res.GetError() != nil {
			errCount++
		}
	}

	if errCount != 1 {
		t.Errorf("expected 1 error, got %d", errCount)
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	pool := NewPool(2, 0)
	pool.Start()
	pool.Close()

	if pool.Submit(&mockJob{}) {
		t.Error("Submit after Close accepted a job")
	}
	pool.Shutdown()
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	stops := map[string]func(*Pool){
		"shutdown": (*Pool).Shutdown,
		"stop":     (*Pool).Stop,
	}
	for name, stop := range stops {
		t.Run(name, func(t *testing.T) {
			// The queue has room, so only the cancellation can refuse the job
			for i := 0; i < 200; i++ {
				pool := NewPool(2, 4)
				pool.Start()
				stop(pool)

				if pool.Submit(&mockJob{}) {
					t.Fatalf("run %d: Submit after %s accepted a job", i, name)
				}
				pool.Shutdown()
			}
		})
	}
}

func TestPool_Shutdown(t *testing.T) {
	pool := NewPool(2, 0)
	pool.Start()

	started := make(chan struct{})
	pool.Submit(&concurrencyJob{
		start: func() {
			close(started)
		},
		duration: 200 * time.Millisecond,
	})

	<-started
	pool.Shutdown()

	// Results must close once the workers are gone
	done := make(chan struct{})
	go func() {
		for range pool.Results() {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Shutdown timed out")
	}
}

func TestPool_ParentContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPoolContext(ctx, 1, 0)
	pool.Start()

	pool.Submit(&mockJob{duration: time.Minute})
	cancel()

	results := pool.Wait()
	for _, r := range results {
		if !errors.Is(r.GetError(), context.Canceled) {
			t.Errorf("expected cancellation, got %v", r.GetError())
		}
	}
	pool.Shutdown()
}

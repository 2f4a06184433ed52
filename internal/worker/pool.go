package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed number of workers. Results are collected as they
// complete, so submitting never blocks on unread results.
type Pool struct {
	workers   int
	jobQueue  chan Job
	collector *ResultCollector
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	closeOnce sync.Once
}

// NewPool creates a pool whose workers stop when ctx is cancelled
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:   workers,
		jobQueue:  make(chan Job, workers),
		collector: NewResultCollector(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.collector.Add(job.Execute(p.ctx))
		}
	}
}

// Submit queues a job. It returns the context error when the pool was
// cancelled before the job could be queued.
func (p *Pool) Submit(job Job) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobQueue <- job:
		return nil
	}
}

// Wait closes the queue, waits for in-flight jobs and returns all results in
// completion order
func (p *Pool) Wait() []Result {
	p.closeOnce.Do(func() { close(p.jobQueue) })
	p.wg.Wait()
	p.cancel()
	return p.collector.Results()
}

// Shutdown cancels the pool and waits for workers to exit
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
}

// ResultCollector is a mutex-guarded result list
type ResultCollector struct {
	results []Result
	mu      sync.Mutex
}

// NewResultCollector creates an empty collector
func NewResultCollector() *ResultCollector {
	return &ResultCollector{
		results: make([]Result, 0),
	}
}

// Add appends a result (thread-safe)
func (c *ResultCollector) Add(result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// Results returns a copy of the collected results
func (c *ResultCollector) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}

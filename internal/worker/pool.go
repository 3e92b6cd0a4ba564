package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chat-relay/internal/infrastructure/metrics"
)

const stopGracePeriod = 30 * time.Second

// Task is one unit of detached work.
type Task struct {
	Name string
	Fn   func(ctx context.Context) error
	done chan struct{}
}

// Pool runs detached tasks on a fixed set of workers fed by a bounded queue.
// Tasks outlive the request that submitted them; each one gets its own timeout.
type Pool struct {
	workers     []*Worker
	tasks       chan *Task
	workerCount int
	taskTimeout time.Duration
	log         zerolog.Logger
	wg          sync.WaitGroup
	overflow    sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// Config contains worker pool configuration.
type Config struct {
	WorkerCount int
	QueueSize   int
	TaskTimeout time.Duration
}

// NewPool creates a new worker pool.
func NewPool(cfg Config, log zerolog.Logger) *Pool {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	return &Pool{
		tasks:       make(chan *Task, cfg.QueueSize),
		workerCount: cfg.WorkerCount,
		taskTimeout: cfg.TaskTimeout,
		log:         log.With().Str("component", "worker-pool").Logger(),
	}
}

// Start initializes and starts all workers. Workers drain the queue until Stop.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("worker pool already started")
	}
	p.started = true

	p.log.Info().Int("worker_count", p.workerCount).Int("queue_size", cap(p.tasks)).Msg("starting worker pool")

	// Queued persistence must finish even when the server context is cancelled.
	base := context.WithoutCancel(ctx)
	p.workers = make([]*Worker, p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		worker := NewWorker(i+1, p.tasks, p.execute, p.log)
		p.workers[i] = worker

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Start(base)
		}(worker)
	}
	return nil
}

// Run submits fn and returns a channel closed when it has finished. When the queue is
// full, or the pool is not running, the task runs on its own goroutine so that
// submission never blocks the caller.
func (p *Pool) Run(name string, fn func(ctx context.Context) error) <-chan struct{} {
	task := &Task{Name: name, Fn: fn, done: make(chan struct{})}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.started && !p.stopped {
		select {
		case p.tasks <- task:
			return task.done
		default:
			p.log.Warn().Str("task", name).Msg("worker queue full, running task inline")
		}
	}

	p.overflow.Add(1)
	go func() {
		defer p.overflow.Done()
		p.execute(context.Background(), task)
	}()
	return task.done
}

// Stop closes the queue and waits for queued and running tasks to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	if p.started {
		close(p.tasks)
	}
	p.mu.Unlock()

	p.log.Info().Msg("stopping worker pool")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		p.overflow.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info().Msg("all workers stopped gracefully")
	case <-time.After(stopGracePeriod):
		p.log.Warn().Msg("worker pool shutdown timed out")
	}
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *Pool) QueueDepth() int {
	return len(p.tasks)
}

func (p *Pool) execute(ctx context.Context, task *Task) {
	defer close(task.done)

	if p.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.taskTimeout)
		defer cancel()
	}

	result := "ok"
	defer func() {
		if rec := recover(); rec != nil {
			result = "panic"
			p.log.Error().
				Str("task", task.Name).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("background task panicked")
		}
		metrics.RecordBackgroundTask(task.Name, result)
	}()

	if err := task.Fn(ctx); err != nil {
		result = "error"
		p.log.Debug().Err(err).Str("task", task.Name).Msg("background task failed")
	}
}

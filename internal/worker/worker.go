package worker

import (
	"context"

	"github.com/rs/zerolog"
)

// Worker executes tasks from the pool queue one at a time.
type Worker struct {
	id      int
	tasks   <-chan *Task
	execute func(ctx context.Context, task *Task)
	log     zerolog.Logger
}

// NewWorker creates a new background worker.
func NewWorker(id int, tasks <-chan *Task, execute func(ctx context.Context, task *Task), log zerolog.Logger) *Worker {
	return &Worker{
		id:      id,
		tasks:   tasks,
		execute: execute,
		log:     log.With().Int("worker_id", id).Str("component", "worker").Logger(),
	}
}

// Start processes tasks until the queue is closed and drained.
func (w *Worker) Start(ctx context.Context) {
	w.log.Debug().Msg("worker started")
	for task := range w.tasks {
		w.execute(ctx, task)
	}
	w.log.Debug().Msg("worker stopped")
}

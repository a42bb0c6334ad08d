package pool

import (
	"context"
	"sync"
	"time"

	"OffloadEngine/errs"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Job is what the coordinator hands to a worker.
type Job struct {
	ID      uuid.UUID
	Context context.Context
	Run     func(ctx context.Context, workerID int) (any, error)
}

// Completion reports a finished job back to the coordinator.
// Err is nil or a *errs.TaskError.
type Completion struct {
	WorkerID int
	JobID    uuid.UUID
	Value    any
	Err      error
	Elapsed  time.Duration
}

// WorkerRuntime spawns worker execution contexts.
type WorkerRuntime interface {
	Spawn(workerID int, completions chan<- Completion) (WorkerHandle, error)
}

// WorkerHandle controls one worker. Dispatch is only called while the worker is idle and must
// not block. Terminate stops the worker once its current job, if any, is finished.
type WorkerHandle interface {
	ID() int
	Dispatch(job Job)
	Terminate(ctx context.Context) error
}

type goroutineRuntime struct {
	logger *zap.Logger
}

// NewGoroutineRuntime runs every worker in its own goroutine.
func NewGoroutineRuntime(logger *zap.Logger) WorkerRuntime {
	return &goroutineRuntime{logger: logger}
}

func (r *goroutineRuntime) Spawn(workerID int, completions chan<- Completion) (WorkerHandle, error) {
	w := &goroutineWorker{
		id:          workerID,
		jobs:        make(chan Job, 1),
		exited:      make(chan struct{}),
		completions: completions,
		logger:      r.logger.With(zap.Int("workerID", workerID)),
	}
	go w.run()
	return w, nil
}

type goroutineWorker struct {
	id          int
	jobs        chan Job
	exited      chan struct{}
	closeOnce   sync.Once
	completions chan<- Completion
	logger      *zap.Logger
}

func (w *goroutineWorker) ID() int {
	return w.id
}

func (w *goroutineWorker) Dispatch(job Job) {
	w.jobs <- job
}

func (w *goroutineWorker) Terminate(ctx context.Context) error {
	w.closeOnce.Do(func() {
		close(w.jobs)
	})

	select {
	case <-w.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *goroutineWorker) run() {
	defer close(w.exited)

	w.logger.Debug("Worker started")
	for job := range w.jobs {
		w.completions <- w.execute(job)
	}
	w.logger.Debug("Worker exited")
}

func (w *goroutineWorker) execute(job Job) (completion Completion) {
	start := time.Now()
	completion = Completion{WorkerID: w.id, JobID: job.ID}

	defer func() {
		if recovered := recover(); recovered != nil {
			w.logger.Error("Task panicked", zap.String("taskID", job.ID.String()), zap.Any("panic", recovered))
			completion.Value = nil
			completion.Err = errs.FromPanic(recovered)
		}
		completion.Elapsed = time.Since(start)
	}()

	value, err := job.Run(job.Context, w.id)
	completion.Value = value
	if err != nil {
		completion.Err = errs.Normalize(err)
	}
	return completion
}

package pool

import (
	"context"
	"time"
)

type State uint32

const (
	// StateRunning accepts and dispatches tasks.
	StateRunning State = iota
	// StateEnding rejects submissions; queued and executing tasks still complete.
	StateEnding
	// StateShuttingDown waits for executing tasks and tears the workers down.
	StateShuttingDown
	// StateShutdown is terminal until Restart.
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateEnding:
		return "Ending"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// TaskFunction executes a single input inside a worker goroutine.
type TaskFunction[I any, O any] func(ctx context.Context, workerID int, input I) (O, error)

// Validator is implemented by task inputs that can reject themselves before entering the queue.
type Validator interface {
	Validate() error
}

type Config struct {
	MinWorkers int
	MaxWorkers int
	// IdleTimeout retires workers above MinWorkers that stayed idle this long. Zero keeps them.
	IdleTimeout time.Duration
}

// Stats is a consistent snapshot of the pool, published after every state transition.
type Stats struct {
	State State
	// QueueSize counts tasks queued or executing but not yet completed.
	QueueSize int
	Queued    int
	Busy      int
	Workers   int
	Done      bool
}

func (s Stats) Drained() bool {
	return s.QueueSize == 0 && s.Busy == 0
}

type WorkerPool[I interface{}, O interface{}] interface {
	// Submit queues input and returns a future resolving to the task outcome.
	// Submissions outside StateRunning fail with errs.ErrSubmitAfterEnd, invalid inputs with the
	// validation error. Neither enters the queue.
	Submit(ctx context.Context, input I) (*Future[O], error)
	// End stops accepting submissions without cancelling queued or executing tasks.
	End()
	// Shutdown waits for executing tasks, discards queued ones and terminates all workers.
	// It is idempotent and safe to call concurrently.
	Shutdown(ctx context.Context) error
	// Restart brings an ended or shut down pool back to StateRunning with MinWorkers workers.
	Restart(ctx context.Context) error
	// Drain blocks until no task is queued or executing.
	Drain(ctx context.Context) error
	QueueSize() int
	Drained() bool
	Done() bool
	State() State
	Stats() Stats
}

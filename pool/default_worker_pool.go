package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"OffloadEngine/errs"
	"OffloadEngine/log"
	"OffloadEngine/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// minReapInterval bounds the idle reaper tick for very small idle timeouts.
const minReapInterval = time.Millisecond

type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *metrics.PoolMetrics
	runtime WorkerRuntime
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.PoolMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithRuntime replaces the goroutine based worker runtime.
func WithRuntime(runtime WorkerRuntime) Option {
	return func(o *options) {
		o.runtime = runtime
	}
}

// defaultWorkerPool forwards every call to a coordinator goroutine that owns all mutable pool
// state. Observers read the Stats snapshot the coordinator publishes after each transition.
type defaultWorkerPool[I interface{}, O interface{}] struct {
	config       Config
	taskFunction TaskFunction[I, O]
	runtime      WorkerRuntime
	logger       *zap.Logger
	metrics      *metrics.PoolMetrics

	current       atomic.Pointer[coordinator[I, O]]
	stats         atomic.Pointer[Stats]
	shutdownGroup singleflight.Group
	restartLock   sync.Mutex
}

func NewDefaultWorkerPool[I interface{}, O interface{}](config Config, taskFunction TaskFunction[I, O], opts ...Option) (WorkerPool[I, O], error) {
	if config.MinWorkers < 1 {
		return nil, errs.New(errs.ErrInvalidConfig, fmt.Sprintf("minWorkers must be at least 1, got %d", config.MinWorkers))
	}
	if config.MaxWorkers < config.MinWorkers {
		return nil, errs.New(errs.ErrInvalidConfig, fmt.Sprintf("maxWorkers (%d) must not be lower than minWorkers (%d)", config.MaxWorkers, config.MinWorkers))
	}
	if taskFunction == nil {
		return nil, errs.New(errs.ErrInvalidConfig, "task function is nil")
	}

	o := options{logger: log.L()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runtime == nil {
		o.runtime = NewGoroutineRuntime(o.logger)
	}

	w := &defaultWorkerPool[I, O]{
		config:       config,
		taskFunction: taskFunction,
		runtime:      o.runtime,
		logger:       o.logger,
		metrics:      o.metrics,
	}
	if err := w.start(); err != nil {
		return nil, err
	}

	return w, nil
}

func (w *defaultWorkerPool[I, O]) Submit(ctx context.Context, input I) (*Future[O], error) {
	id := uuid.New()
	t := &task[I, O]{
		id:     id,
		ctx:    context.WithoutCancel(ctx),
		input:  input,
		future: newFuture[O](id),
	}

	reply := make(chan error, 1)
	if err := w.current.Load().send(ctx, submitCommand[I, O]{task: t, reply: reply}); err != nil {
		if errs.IsLifecycle(err) {
			w.metrics.Rejected(metrics.ReasonLifecycle)
		}
		return nil, err
	}
	if err := <-reply; err != nil {
		return nil, err
	}

	return t.future, nil
}

func (w *defaultWorkerPool[I, O]) End() {
	reply := make(chan struct{})
	if err := w.current.Load().send(context.Background(), endCommand{reply: reply}); err != nil {
		return
	}
	<-reply
}

func (w *defaultWorkerPool[I, O]) Shutdown(ctx context.Context) error {
	// Callers share one teardown. It keeps going when a caller stops waiting.
	result := w.shutdownGroup.DoChan("shutdown", func() (interface{}, error) {
		return nil, w.shutdown()
	})

	select {
	case r := <-result:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *defaultWorkerPool[I, O]) shutdown() error {
	c := w.current.Load()
	reply := make(chan struct{})
	if err := c.send(context.Background(), shutdownCommand{reply: reply}); err != nil {
		// The coordinator already exited, so the pool is shut down.
		return nil
	}
	<-reply
	<-c.quit
	return nil
}

func (w *defaultWorkerPool[I, O]) Restart(ctx context.Context) error {
	w.restartLock.Lock()
	defer w.restartLock.Unlock()

	if w.State() == StateRunning {
		return nil
	}
	if err := w.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down pool before restart: %w", err)
	}

	w.logger.Info("Restarting worker pool")
	return w.start()
}

func (w *defaultWorkerPool[I, O]) Drain(ctx context.Context) error {
	reply := make(chan struct{})
	if err := w.current.Load().send(ctx, drainCommand{reply: reply}); err != nil {
		if errs.IsLifecycle(err) {
			return nil
		}
		return err
	}

	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *defaultWorkerPool[I, O]) QueueSize() int {
	return w.stats.Load().QueueSize
}

func (w *defaultWorkerPool[I, O]) Drained() bool {
	return w.stats.Load().Drained()
}

func (w *defaultWorkerPool[I, O]) Done() bool {
	return w.stats.Load().Done
}

func (w *defaultWorkerPool[I, O]) State() State {
	return w.stats.Load().State
}

func (w *defaultWorkerPool[I, O]) Stats() Stats {
	return *w.stats.Load()
}

// start spawns MinWorkers workers and runs a new coordinator in StateRunning.
func (w *defaultWorkerPool[I, O]) start() error {
	c := &coordinator[I, O]{
		pool:        w,
		inbox:       make(chan command),
		completions: make(chan Completion, w.config.MaxWorkers),
		quit:        make(chan struct{}),
		state:       StateRunning,
		workers:     make(map[int]*worker[I, O]),
	}

	for range w.config.MinWorkers {
		if err := c.spawn(); err != nil {
			c.terminateWorkers()
			return fmt.Errorf("failed to spawn worker: %w", err)
		}
	}

	w.current.Store(c)
	c.publish()
	go c.loop()

	w.logger.Info("Worker pool started",
		zap.Int("minWorkers", w.config.MinWorkers),
		zap.Int("maxWorkers", w.config.MaxWorkers))
	return nil
}

type task[I interface{}, O interface{}] struct {
	id     uuid.UUID
	ctx    context.Context
	input  I
	future *Future[O]
}

type worker[I interface{}, O interface{}] struct {
	handle    WorkerHandle
	task      *task[I, O]
	idleSince time.Time
}

type command interface{}

type submitCommand[I interface{}, O interface{}] struct {
	task  *task[I, O]
	reply chan<- error
}

type endCommand struct {
	reply chan<- struct{}
}

type shutdownCommand struct {
	reply chan<- struct{}
}

type drainCommand struct {
	reply chan struct{}
}

// coordinator owns the queue, the workers and the lifecycle state of one pool generation.
// Its fields are only touched by the loop goroutine.
type coordinator[I interface{}, O interface{}] struct {
	pool        *defaultWorkerPool[I, O]
	inbox       chan command
	completions chan Completion
	quit        chan struct{}

	state        State
	workers      map[int]*worker[I, O]
	nextWorkerID int
	queue        []*task[I, O]
	queueSize    int
	busy         int

	shutdownWaiters []chan<- struct{}
	drainWaiters    []chan struct{}
}

// send delivers cmd to the loop. The inbox is unbuffered, so a delivered command is always
// answered. Once the loop has exited the pool is shut down and send fails with a lifecycle error.
func (c *coordinator[I, O]) send(ctx context.Context, cmd command) error {
	select {
	case c.inbox <- cmd:
		return nil
	case <-c.quit:
		return errs.ErrSubmitAfterEnd
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *coordinator[I, O]) loop() {
	defer close(c.quit)

	var reap <-chan time.Time
	if c.pool.config.IdleTimeout > 0 && c.pool.config.MaxWorkers > c.pool.config.MinWorkers {
		ticker := time.NewTicker(max(c.pool.config.IdleTimeout/2, minReapInterval))
		defer ticker.Stop()
		reap = ticker.C
	}

	for c.state != StateShutdown {
		select {
		case cmd := <-c.inbox:
			c.handle(cmd)
		case completion := <-c.completions:
			c.complete(completion)
		case now := <-reap:
			c.reapIdle(now)
		}
	}
}

func (c *coordinator[I, O]) handle(cmd command) {
	switch cmd := cmd.(type) {
	case submitCommand[I, O]:
		cmd.reply <- c.submit(cmd.task)
	case endCommand:
		c.end()
		close(cmd.reply)
	case shutdownCommand:
		c.shutdown(cmd.reply)
	case drainCommand:
		if c.drained() {
			close(cmd.reply)
			return
		}
		c.drainWaiters = append(c.drainWaiters, cmd.reply)
	}
}

func (c *coordinator[I, O]) submit(t *task[I, O]) error {
	if c.state != StateRunning {
		c.pool.metrics.Rejected(metrics.ReasonLifecycle)
		return errs.ErrSubmitAfterEnd
	}
	if err := validate(t.input); err != nil {
		c.pool.metrics.Rejected(metrics.ReasonValidation)
		return err
	}

	c.queue = append(c.queue, t)
	c.queueSize++
	c.pool.metrics.Submitted()
	c.pool.logger.Debug("Task queued", zap.String("taskID", t.id.String()), zap.Int("queueSize", c.queueSize))

	c.dispatch()
	c.publish()
	return nil
}

func validate[I interface{}](input I) error {
	v := any(input)
	if v == nil {
		return errs.New(errs.ErrInvalidDescriptor, "task input is nil")
	}
	if validator, ok := v.(Validator); ok {
		return validator.Validate()
	}
	return nil
}

// dispatch hands queued tasks to idle workers in FIFO order, spawning workers up to MaxWorkers.
func (c *coordinator[I, O]) dispatch() {
	if c.state != StateRunning && c.state != StateEnding {
		return
	}

	for len(c.queue) > 0 {
		wk := c.idleWorker()
		if wk == nil {
			if len(c.workers) >= c.pool.config.MaxWorkers {
				return
			}
			if err := c.spawn(); err != nil {
				c.pool.logger.Error("Cannot spawn worker", zap.Error(err))
				return
			}
			continue
		}

		t := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]

		wk.task = t
		c.busy++
		input := t.input
		wk.handle.Dispatch(Job{
			ID:      t.id,
			Context: t.ctx,
			Run: func(ctx context.Context, workerID int) (any, error) {
				return c.pool.taskFunction(ctx, workerID, input)
			},
		})
		c.pool.logger.Debug("Task dispatched", zap.String("taskID", t.id.String()), zap.Int("workerID", wk.handle.ID()))
	}
}

func (c *coordinator[I, O]) idleWorker() *worker[I, O] {
	var idle *worker[I, O]
	for _, wk := range c.workers {
		if wk.task != nil {
			continue
		}
		if idle == nil || wk.handle.ID() < idle.handle.ID() {
			idle = wk
		}
	}
	return idle
}

func (c *coordinator[I, O]) spawn() error {
	id := c.nextWorkerID
	handle, err := c.pool.runtime.Spawn(id, c.completions)
	if err != nil {
		return err
	}
	c.nextWorkerID++
	c.workers[id] = &worker[I, O]{handle: handle, idleSince: time.Now()}
	return nil
}

func (c *coordinator[I, O]) complete(completion Completion) {
	wk, ok := c.workers[completion.WorkerID]
	if !ok || wk.task == nil || wk.task.id != completion.JobID {
		c.pool.logger.Error("Completion from unknown task",
			zap.Int("workerID", completion.WorkerID),
			zap.String("taskID", completion.JobID.String()))
		return
	}

	t := wk.task
	wk.task = nil
	wk.idleSince = time.Now()
	c.busy--
	c.queueSize--

	outcome := metrics.OutcomeSuccess
	if completion.Err != nil {
		outcome = metrics.OutcomeError
		c.pool.logger.Debug("Task failed", zap.String("taskID", t.id.String()), zap.Error(completion.Err))
	}
	c.pool.metrics.Completed(outcome, completion.Elapsed)

	c.dispatch()
	c.publish()

	value, _ := completion.Value.(O)
	t.future.resolve(value, completion.Err)

	if c.state == StateShuttingDown && c.busy == 0 {
		c.finishShutdown()
	}
}

func (c *coordinator[I, O]) end() {
	if c.state != StateRunning {
		return
	}
	c.state = StateEnding
	c.publish()
	c.pool.logger.Info("Worker pool ended", zap.Int("queueSize", c.queueSize))
}

func (c *coordinator[I, O]) shutdown(reply chan<- struct{}) {
	c.shutdownWaiters = append(c.shutdownWaiters, reply)
	if c.state == StateShuttingDown {
		return
	}

	c.state = StateShuttingDown
	discarded := c.queue
	c.queue = nil
	c.queueSize -= len(discarded)
	for range discarded {
		c.pool.metrics.Completed(metrics.OutcomeDiscarded, 0)
	}
	c.publish()

	c.pool.logger.Info("Shutting down worker pool",
		zap.Int("executing", c.busy),
		zap.Int("discarded", len(discarded)))

	var zero O
	for _, t := range discarded {
		t.future.resolve(zero, errs.ErrShutdown)
	}

	if c.busy == 0 {
		c.finishShutdown()
	}
}

func (c *coordinator[I, O]) finishShutdown() {
	c.terminateWorkers()
	c.state = StateShutdown
	c.publish()

	for _, reply := range c.shutdownWaiters {
		close(reply)
	}
	c.shutdownWaiters = nil
	c.pool.logger.Info("Worker pool shut down")
}

// terminateWorkers stops every worker. It is only called while no worker is busy.
func (c *coordinator[I, O]) terminateWorkers() {
	var group errgroup.Group
	for _, wk := range c.workers {
		handle := wk.handle
		group.Go(func() error {
			return handle.Terminate(context.Background())
		})
	}
	if err := group.Wait(); err != nil {
		c.pool.logger.Error("Cannot terminate worker", zap.Error(err))
	}
	clear(c.workers)
}

// reapIdle retires workers above MinWorkers that have been idle longer than IdleTimeout.
func (c *coordinator[I, O]) reapIdle(now time.Time) {
	for id, wk := range c.workers {
		if len(c.workers) <= c.pool.config.MinWorkers {
			break
		}
		if wk.task != nil || now.Sub(wk.idleSince) < c.pool.config.IdleTimeout {
			continue
		}
		delete(c.workers, id)
		// An idle worker exits as soon as its job channel is closed.
		if err := wk.handle.Terminate(context.Background()); err != nil {
			c.pool.logger.Error("Cannot terminate idle worker", zap.Int("workerID", id), zap.Error(err))
		}
		c.pool.logger.Debug("Retired idle worker", zap.Int("workerID", id))
	}
	c.publish()
}

func (c *coordinator[I, O]) drained() bool {
	return c.queueSize == 0 && c.busy == 0
}

// publish stores a new Stats snapshot and wakes Drain waiters.
func (c *coordinator[I, O]) publish() {
	stats := &Stats{
		State:     c.state,
		QueueSize: c.queueSize,
		Queued:    len(c.queue),
		Busy:      c.busy,
		Workers:   len(c.workers),
		Done:      c.state == StateShutdown,
	}
	c.pool.stats.Store(stats)
	c.pool.metrics.Observe(stats.QueueSize, stats.Busy, stats.Workers)

	if stats.Drained() {
		for _, waiter := range c.drainWaiters {
			close(waiter)
		}
		c.drainWaiters = nil
	}
}

package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"OffloadEngine/errs"
	"OffloadEngine/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testInput struct {
	value int
	gate  chan struct{}
	fail  error
	panic bool
}

func (i *testInput) Validate() error {
	if i == nil {
		return errs.New(errs.ErrInvalidDescriptor, "input is nil")
	}
	return nil
}

func testTask(ctx context.Context, workerID int, input *testInput) (int, error) {
	if input.gate != nil {
		<-input.gate
	}
	if input.panic {
		panic("task exploded")
	}
	if input.fail != nil {
		return 0, input.fail
	}
	return input.value * 2, nil
}

func newTestPool(t *testing.T, config Config, opts ...Option) WorkerPool[*testInput, int] {
	t.Helper()

	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	p, err := NewDefaultWorkerPool[*testInput, int](config, testTask, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, p.Shutdown(ctx))
	})
	return p
}

func await(t *testing.T, f *Future[int]) (int, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Await(ctx)
}

func TestNewDefaultWorkerPool_InvalidConfig(t *testing.T) {
	_, err := NewDefaultWorkerPool[*testInput, int](Config{MinWorkers: 0, MaxWorkers: 1}, testTask)
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = NewDefaultWorkerPool[*testInput, int](Config{MinWorkers: 2, MaxWorkers: 1}, testTask)
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = NewDefaultWorkerPool[*testInput, int](Config{MinWorkers: 1, MaxWorkers: 1}, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestNewDefaultWorkerPool_StartsRunning(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 2, MaxWorkers: 4})

	stats := p.Stats()
	assert.Equal(t, StateRunning, stats.State)
	assert.Equal(t, 2, stats.Workers)
	assert.Equal(t, 0, p.QueueSize())
	assert.True(t, p.Drained())
	assert.False(t, p.Done())
}

func TestSubmit_ResolvesResult(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1})

	future, err := p.Submit(context.Background(), &testInput{value: 21})
	require.NoError(t, err)

	result, err := await(t, future)
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 0, p.QueueSize())
}

func TestSubmit_RejectsAfterEnd(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1})

	_, err := p.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, errs.ErrInvalidDescriptor)
	assert.False(t, errs.IsLifecycle(err))
	assert.Equal(t, 0, p.QueueSize())

	p.End()
	assert.Equal(t, StateEnding, p.State())

	_, err = p.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, errs.ErrSubmitAfterEnd)
	assert.Regexp(t, "not allowed .* after the pool has been flagged as done", err.Error())

	_, err = p.Submit(context.Background(), &testInput{value: 1})
	assert.ErrorIs(t, err, errs.ErrSubmitAfterEnd)
	assert.Equal(t, 0, p.QueueSize())
}

func TestSubmit_ValidationDoesNotChangeState(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1})
	before := p.Stats()

	_, err := p.Submit(context.Background(), nil)
	require.Error(t, err)

	assert.Equal(t, before, p.Stats())
}

func TestSubmit_RejectsAfterShutdown(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1})
	require.NoError(t, p.Shutdown(context.Background()))

	_, err := p.Submit(context.Background(), &testInput{value: 1})
	assert.ErrorIs(t, err, errs.ErrSubmitAfterEnd)
}

func TestSubmit_TaskErrorIsNormalized(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1})

	future, err := p.Submit(context.Background(), &testInput{fail: errs.New(errs.ErrServiceNotFound, "NonExistentService")})
	require.NoError(t, err)

	_, err = await(t, future)
	var taskErr *errs.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, errs.KindServiceNotFound, taskErr.Kind)
	assert.Equal(t, "unable to find service: NonExistentService", taskErr.Message)
	assert.Equal(t, 0, p.QueueSize())
}

func TestSubmit_PanicIsNormalized(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1})

	future, err := p.Submit(context.Background(), &testInput{panic: true})
	require.NoError(t, err)

	_, err = await(t, future)
	var taskErr *errs.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, errs.KindPanic, taskErr.Kind)
	assert.Equal(t, "task exploded", taskErr.Message)

	// The worker survives the panic.
	future, err = p.Submit(context.Background(), &testInput{value: 2})
	require.NoError(t, err)
	result, err := await(t, future)
	require.NoError(t, err)
	assert.Equal(t, 4, result)
}

func TestSubmit_CancelledCallerContextDoesNotCancelTask(t *testing.T) {
	var seen error
	p, err := NewDefaultWorkerPool[int, int](Config{MinWorkers: 1, MaxWorkers: 1},
		func(ctx context.Context, workerID int, input int) (int, error) {
			time.Sleep(20 * time.Millisecond)
			seen = ctx.Err()
			return input, nil
		}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	future, err := p.Submit(ctx, 7)
	require.NoError(t, err)
	cancel()

	result, err := future.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, result)
	assert.NoError(t, seen)
}

func TestQueueAccounting(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 2})

	gate := make(chan struct{})
	const n = 5
	futures := make([]*Future[int], 0, n)
	for i := range n {
		future, err := p.Submit(context.Background(), &testInput{value: i, gate: gate})
		require.NoError(t, err)
		futures = append(futures, future)
		assert.Equal(t, i+1, p.QueueSize())
	}

	stats := p.Stats()
	assert.Equal(t, n, stats.QueueSize)
	assert.Equal(t, 2, stats.Busy)
	assert.Equal(t, n-2, stats.Queued)
	assert.Equal(t, 2, stats.Workers)
	assert.False(t, p.Drained())

	close(gate)
	completed := 0
	for i, future := range futures {
		result, err := await(t, future)
		require.NoError(t, err)
		assert.Equal(t, i*2, result)
		completed++
		assert.LessOrEqual(t, p.QueueSize(), n-completed)
	}

	assert.Equal(t, 0, p.QueueSize())
	assert.True(t, p.Drained())
}

func TestDispatch_FIFOWithSingleWorker(t *testing.T) {
	var mu sync.Mutex
	var order []int
	p, err := NewDefaultWorkerPool[int, int](Config{MinWorkers: 1, MaxWorkers: 1},
		func(ctx context.Context, workerID int, input int) (int, error) {
			mu.Lock()
			order = append(order, input)
			mu.Unlock()
			return input, nil
		}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	futures := make([]*Future[int], 0, 10)
	for i := range 10 {
		future, err := p.Submit(context.Background(), i)
		require.NoError(t, err)
		futures = append(futures, future)
	}
	for _, future := range futures {
		_, err := future.Await(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestDispatch_ElasticWorkers(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 3, IdleTimeout: 20 * time.Millisecond})

	gate := make(chan struct{})
	futures := make([]*Future[int], 0, 4)
	for i := range 4 {
		future, err := p.Submit(context.Background(), &testInput{value: i, gate: gate})
		require.NoError(t, err)
		futures = append(futures, future)
	}

	stats := p.Stats()
	assert.Equal(t, 3, stats.Workers)
	assert.Equal(t, 3, stats.Busy)
	assert.Equal(t, 1, stats.Queued)

	close(gate)
	for _, future := range futures {
		_, err := await(t, future)
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		return p.Stats().Workers == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatch_TinyIdleTimeout(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 2, IdleTimeout: time.Nanosecond})

	gate := make(chan struct{})
	first, err := p.Submit(context.Background(), &testInput{value: 1, gate: gate})
	require.NoError(t, err)
	second, err := p.Submit(context.Background(), &testInput{value: 2, gate: gate})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stats().Workers)

	close(gate)
	for _, future := range []*Future[int]{first, second} {
		_, err := await(t, future)
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		return p.Stats().Workers == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateRunning, p.State())
}

func TestEnd_QueuedTasksStillComplete(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1})

	gate := make(chan struct{})
	first, err := p.Submit(context.Background(), &testInput{value: 1, gate: gate})
	require.NoError(t, err)
	second, err := p.Submit(context.Background(), &testInput{value: 2})
	require.NoError(t, err)

	p.End()
	p.End()
	assert.Equal(t, StateEnding, p.State())
	assert.Equal(t, 2, p.QueueSize())

	close(gate)
	result, err := await(t, first)
	require.NoError(t, err)
	assert.Equal(t, 2, result)
	result, err = await(t, second)
	require.NoError(t, err)
	assert.Equal(t, 4, result)

	require.NoError(t, p.Drain(context.Background()))
	assert.True(t, p.Drained())
	assert.False(t, p.Done())
}

func TestShutdown_Idempotent(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1})

	_, err := p.Submit(context.Background(), nil)
	require.ErrorIs(t, err, errs.ErrInvalidDescriptor)
	p.End()

	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, 0, p.QueueSize())
	assert.True(t, p.Done())
	assert.True(t, p.Drained())
	assert.Equal(t, StateShutdown, p.State())
}

func TestShutdown_ConcurrentCallsAfterSubmit(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1})

	future, err := p.Submit(context.Background(), &testInput{value: 5})
	require.NoError(t, err)

	var wg sync.WaitGroup
	shutdownErrs := make([]error, 2)
	for i := range shutdownErrs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownErrs[i] = p.Shutdown(context.Background())
		}()
	}
	wg.Wait()

	assert.NoError(t, shutdownErrs[0])
	assert.NoError(t, shutdownErrs[1])
	assert.Equal(t, 0, p.QueueSize())
	assert.True(t, p.Done())

	select {
	case <-future.Done():
	default:
		t.Fatal("future not resolved after shutdown")
	}
}

func TestShutdown_WaitsForExecutingAndDiscardsQueued(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1})

	gate := make(chan struct{})
	executing, err := p.Submit(context.Background(), &testInput{value: 1, gate: gate})
	require.NoError(t, err)
	queued, err := p.Submit(context.Background(), &testInput{value: 2})
	require.NoError(t, err)

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownDone <- p.Shutdown(context.Background())
	}()

	assert.Eventually(t, func() bool {
		return p.State() == StateShuttingDown
	}, time.Second, 5*time.Millisecond)

	_, err = await(t, queued)
	assert.ErrorIs(t, err, errs.ErrShutdown)
	assert.Equal(t, 1, p.QueueSize())

	_, err = p.Submit(context.Background(), &testInput{value: 3})
	assert.ErrorIs(t, err, errs.ErrSubmitAfterEnd)

	close(gate)
	result, err := await(t, executing)
	require.NoError(t, err)
	assert.Equal(t, 2, result)

	require.NoError(t, <-shutdownDone)
	assert.True(t, p.Done())
	assert.Equal(t, 0, p.QueueSize())
}

func TestShutdown_CallerContextExpires(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1})

	gate := make(chan struct{})
	_, err := p.Submit(context.Background(), &testInput{gate: gate})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)
	assert.False(t, p.Done())

	close(gate)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, p.Done())
}

func TestRestart_AfterEnd(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1})

	p.End()
	require.NoError(t, p.Restart(context.Background()))
	assert.Equal(t, StateRunning, p.State())
	assert.False(t, p.Done())

	future, err := p.Submit(context.Background(), &testInput{value: 4})
	require.NoError(t, err)
	result, err := await(t, future)
	require.NoError(t, err)
	assert.Equal(t, 8, result)
}

func TestRestart_AfterShutdown(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 2, MaxWorkers: 3})

	p.End()
	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, p.Done())
	assert.True(t, p.Drained())

	require.NoError(t, p.Restart(context.Background()))
	require.NoError(t, p.Restart(context.Background()))

	stats := p.Stats()
	assert.False(t, stats.Done)
	assert.Equal(t, StateRunning, stats.State)
	assert.Equal(t, 2, stats.Workers)
	assert.Equal(t, 0, stats.QueueSize)
}

func TestDrain(t *testing.T) {
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 2})

	gate := make(chan struct{})
	for i := range 3 {
		_, err := p.Submit(context.Background(), &testInput{value: i, gate: gate})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Drain(ctx), context.DeadlineExceeded)

	close(gate)
	require.NoError(t, p.Drain(context.Background()))
	assert.Equal(t, 0, p.QueueSize())

	require.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, p.Drain(context.Background()))
}

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.NewPoolMetrics(registry)
	p := newTestPool(t, Config{MinWorkers: 1, MaxWorkers: 1}, WithMetrics(m))

	future, err := p.Submit(context.Background(), &testInput{value: 1})
	require.NoError(t, err)
	_, err = await(t, future)
	require.NoError(t, err)

	future, err = p.Submit(context.Background(), &testInput{fail: errors.New("boom")})
	require.NoError(t, err)
	_, err = await(t, future)
	require.Error(t, err)

	_, err = p.Submit(context.Background(), nil)
	require.Error(t, err)
	p.End()
	_, err = p.Submit(context.Background(), &testInput{})
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TasksSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksCompleted.WithLabelValues(metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksCompleted.WithLabelValues(metrics.OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksRejected.WithLabelValues(metrics.ReasonValidation)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksRejected.WithLabelValues(metrics.ReasonLifecycle)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.QueueSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveWorkers))
}

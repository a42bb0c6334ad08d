package offload

import (
	"context"

	"OffloadEngine/container"
	"OffloadEngine/database"
	"OffloadEngine/executor"
	"OffloadEngine/log"
	"OffloadEngine/messaging"
	"OffloadEngine/metrics"
	"OffloadEngine/pool"
	"OffloadEngine/webcall"

	"go.uber.org/zap"
)

type Option func(*options)

type options struct {
	logger      *zap.Logger
	metrics     *metrics.PoolMetrics
	development bool
	poolOptions []pool.Option
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

// WithDevelopment enables logging of call inputs.
func WithDevelopment(development bool) Option {
	return func(o *options) {
		o.development = development
	}
}

// WithPoolOptions forwards extra options to the underlying worker pool.
func WithPoolOptions(opts ...pool.Option) Option {
	return func(o *options) {
		o.poolOptions = append(o.poolOptions, opts...)
	}
}

// ServicePool runs remote service calls described by executor.Descriptor on a worker pool.
type ServicePool struct {
	pool     pool.WorkerPool[*executor.Descriptor, any]
	executor *executor.Executor
	logger   *zap.Logger
}

func New(config pool.Config, registry *executor.Registry, opts ...Option) (*ServicePool, error) {
	o := options{logger: log.L()}
	for _, opt := range opts {
		opt(&o)
	}

	sp := &ServicePool{
		executor: executor.New(registry, o.logger, executor.WithDevelopment(o.development)),
		logger:   o.logger,
	}

	poolOptions := append([]pool.Option{
		pool.WithLogger(o.logger),
		pool.WithMetrics(o.metrics),
	}, o.poolOptions...)

	p, err := pool.NewDefaultWorkerPool[*executor.Descriptor, any](config, sp.run, poolOptions...)
	if err != nil {
		return nil, err
	}
	sp.pool = p
	return sp, nil
}

func (sp *ServicePool) run(ctx context.Context, workerID int, descriptor *executor.Descriptor) (any, error) {
	return sp.executor.Execute(ctx, descriptor)
}

// Submit queues descriptor without waiting for the outcome.
func (sp *ServicePool) Submit(ctx context.Context, descriptor *executor.Descriptor) (*pool.Future[any], error) {
	return sp.pool.Submit(ctx, descriptor)
}

// RunTask submits descriptor and waits for its result. A ctx that expires while waiting returns
// ctx.Err() but leaves the call running on its worker.
func (sp *ServicePool) RunTask(ctx context.Context, descriptor *executor.Descriptor) (any, error) {
	future, err := sp.pool.Submit(ctx, descriptor)
	if err != nil {
		return nil, err
	}
	return future.Await(ctx)
}

func (sp *ServicePool) End() {
	sp.pool.End()
}

func (sp *ServicePool) Shutdown(ctx context.Context) error {
	return sp.pool.Shutdown(ctx)
}

func (sp *ServicePool) Restart(ctx context.Context) error {
	return sp.pool.Restart(ctx)
}

func (sp *ServicePool) Drain(ctx context.Context) error {
	return sp.pool.Drain(ctx)
}

func (sp *ServicePool) QueueSize() int {
	return sp.pool.QueueSize()
}

func (sp *ServicePool) Drained() bool {
	return sp.pool.Drained()
}

func (sp *ServicePool) Done() bool {
	return sp.pool.Done()
}

func (sp *ServicePool) Stats() pool.Stats {
	return sp.pool.Stats()
}

// RegisterDefaultServices installs the built-in docker, nats, http and postgres services.
func RegisterDefaultServices(registry *executor.Registry) {
	registry.Register(container.ServiceName, container.NewService, "container")
	registry.Register(messaging.ServiceName, messaging.NewService, "messaging")
	registry.Register(webcall.ServiceName, webcall.NewConstructor(), "webcall")
	registry.Register(database.ServiceName, database.NewService, "pg", "postgresql")
}

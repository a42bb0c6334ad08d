package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"OffloadEngine/errs"
	"OffloadEngine/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "OffloadEngine/executor"

type Executor struct {
	registry    *Registry
	logger      *zap.Logger
	tracer      trace.Tracer
	development bool
}

type Option func(*Executor)

// WithDevelopment logs call inputs, which may carry credentials. Keep it off in production.
func WithDevelopment(development bool) Option {
	return func(e *Executor) {
		e.development = development
	}
}

func New(registry *Registry, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = log.L()
	}
	e := &Executor{
		registry: registry,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute resolves the descriptor's service, invokes the operation and returns a result made of
// plain JSON values. Every failure is returned as a *errs.TaskError.
func (e *Executor) Execute(ctx context.Context, descriptor *Descriptor) (any, error) {
	if err := descriptor.Validate(); err != nil {
		return nil, errs.Normalize(err)
	}

	ctx, span := e.tracer.Start(ctx, descriptor.Service+"."+descriptor.Operation, trace.WithAttributes(
		attribute.String("offload.service", descriptor.Service),
		attribute.String("offload.operation", descriptor.Operation),
	))
	defer span.End()

	fields := []zap.Field{
		zap.String("service", descriptor.Service),
		zap.String("operation", descriptor.Operation),
		zap.Int("headers", len(descriptor.Headers)),
	}
	if e.development {
		fields = append(fields, zap.Any("input", descriptor.Input))
	}
	e.logger.Debug("Executing remote call", fields...)

	result, err := e.execute(ctx, descriptor)
	if err != nil {
		taskErr := errs.Normalize(err)
		span.RecordError(taskErr)
		span.SetStatus(codes.Error, taskErr.Message)
		e.logger.Debug("Remote call failed",
			zap.String("service", descriptor.Service),
			zap.String("operation", descriptor.Operation),
			zap.Error(taskErr))
		return nil, taskErr
	}

	return result, nil
}

func (e *Executor) execute(ctx context.Context, descriptor *Descriptor) (any, error) {
	client, err := e.registry.Resolve(ctx, descriptor.Service, descriptor.Options, descriptor.Headers)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := client.Close(); err != nil {
			e.logger.Warn("Cannot close client", zap.String("service", descriptor.Service), zap.Error(err))
		}
	}()

	result, err := client.Invoke(ctx, descriptor.Operation, descriptor.Input)
	if err != nil {
		return nil, err
	}
	return Plain(result)
}

// Plain converts v into maps, slices, strings, float64s, bools and nils so it carries no live
// references once it leaves the worker.
func Plain(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize result: %w", err)
	}
	var plain any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("failed to deserialize result: %w", err)
	}
	return plain, nil
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"OffloadEngine/errs"
	"OffloadEngine/executor"
	"OffloadEngine/pool"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// descriptorFromStruct reads service, options, operation, input and headers from request.
func descriptorFromStruct(request *structpb.Struct) (*executor.Descriptor, error) {
	data, err := json.Marshal(request.AsMap())
	if err != nil {
		return nil, errs.New(errs.ErrInvalidDescriptor, err.Error())
	}
	var descriptor executor.Descriptor
	if err := json.Unmarshal(data, &descriptor); err != nil {
		return nil, errs.New(errs.ErrInvalidDescriptor, err.Error())
	}
	return &descriptor, nil
}

func resultToStruct(requestID uuid.UUID, result any) (*structpb.Struct, error) {
	response, err := structpb.NewStruct(map[string]any{
		"requestId": requestID.String(),
		"result":    result,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("cannot encode result: %v", err))
	}
	return response, nil
}

func statsToStruct(stats pool.Stats) (*structpb.Struct, error) {
	response, err := structpb.NewStruct(map[string]any{
		"state":     stats.State.String(),
		"queueSize": stats.QueueSize,
		"queued":    stats.Queued,
		"busy":      stats.Busy,
		"workers":   stats.Workers,
		"drained":   stats.Drained(),
		"done":      stats.Done,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return response, nil
}

func statusError(err error) error {
	var taskErr *errs.TaskError
	switch {
	case errors.As(err, &taskErr):
		return status.Error(codes.Unknown, taskErr.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errs.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errs.IsLifecycle(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

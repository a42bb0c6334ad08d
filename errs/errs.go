package errs

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

// Validation errors. They are returned before a task reaches the queue.
var (
	ErrInvalidDescriptor = errors.New("invalid task descriptor")
	ErrInvalidConfig     = errors.New("invalid pool configuration")
)

// Lifecycle errors. Callers can detect an exhausted pool with IsLifecycle.
var (
	ErrSubmitAfterEnd = errors.New("not allowed to submit a task after the pool has been flagged as done")
	ErrShutdown       = errors.New("task discarded by pool shutdown")
)

// Execution errors raised by the task executor.
var (
	ErrServiceNotFound  = errors.New("unable to find service")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidInput     = errors.New("invalid operation input")
	ErrInvalidOptions   = errors.New("invalid connection options")
)

// Stable kinds used by TaskError.
const (
	KindServiceNotFound  = "ServiceNotFound"
	KindUnknownOperation = "UnknownOperation"
	KindInvalidInput     = "InvalidInput"
	KindInvalidOptions   = "InvalidOptions"
	KindPanic            = "Panic"
	KindTimeout          = "Timeout"
	KindCanceled         = "Canceled"
	KindError            = "Error"
)

func New(err error, str string) error {
	return fmt.Errorf("%w: %s", err, str)
}

func IsLifecycle(err error) bool {
	return errors.Is(err, ErrSubmitAfterEnd) || errors.Is(err, ErrShutdown)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidDescriptor)
}

// TaskError is the normalized form of a failure raised while executing a task.
// It holds no references to the original error so it can cross the worker boundary.
type TaskError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e *TaskError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// coder is implemented by remote service errors carrying a service specific code.
type coder interface {
	Code() string
}

var kinds = []struct {
	err  error
	kind string
}{
	{ErrServiceNotFound, KindServiceNotFound},
	{ErrUnknownOperation, KindUnknownOperation},
	{ErrInvalidInput, KindInvalidInput},
	{ErrInvalidOptions, KindInvalidOptions},
	{context.DeadlineExceeded, KindTimeout},
	{context.Canceled, KindCanceled},
}

// Normalize converts err into a *TaskError. A nil error stays nil.
func Normalize(err error) *TaskError {
	if err == nil {
		return nil
	}

	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr
	}

	normalized := &TaskError{Kind: kindOf(err), Message: err.Error()}
	var c coder
	if errors.As(err, &c) {
		normalized.Code = c.Code()
	}
	return normalized
}

// FromPanic normalizes a value recovered from a panicking task.
func FromPanic(recovered any) *TaskError {
	if err, ok := recovered.(error); ok {
		return &TaskError{Kind: KindPanic, Message: err.Error()}
	}
	return &TaskError{Kind: KindPanic, Message: fmt.Sprint(recovered)}
}

func kindOf(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}

	for ; err != nil; err = errors.Unwrap(err) {
		t := reflect.TypeOf(err)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if name := t.Name(); name != "" && !genericTypes[name] {
			return name
		}
	}
	return KindError
}

// genericTypes are error types from the standard library that say nothing about the failure.
var genericTypes = map[string]bool{
	"errorString": true,
	"wrapError":   true,
	"wrapErrors":  true,
	"joinError":   true,
}

package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type remoteError struct {
	code string
}

func (e *remoteError) Error() string { return "remote failure" }
func (e *remoteError) Code() string  { return e.code }

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))

	notFound := Normalize(New(ErrServiceNotFound, "NonExistentService"))
	assert.Equal(t, KindServiceNotFound, notFound.Kind)
	assert.Equal(t, "unable to find service: NonExistentService", notFound.Message)

	timeout := Normalize(fmt.Errorf("calling remote: %w", context.DeadlineExceeded))
	assert.Equal(t, KindTimeout, timeout.Kind)

	plain := Normalize(errors.New("boom"))
	assert.Equal(t, KindError, plain.Kind)
	assert.Equal(t, "boom", plain.Message)

	remote := Normalize(fmt.Errorf("wrapped: %w", &remoteError{code: "AccessDenied"}))
	assert.Equal(t, "remoteError", remote.Kind)
	assert.Equal(t, "AccessDenied", remote.Code)
	assert.Equal(t, "remoteError (AccessDenied): wrapped: remote failure", remote.Error())

	original := &TaskError{Kind: "Custom", Message: "kept"}
	assert.Same(t, original, Normalize(fmt.Errorf("outer: %w", original)))
}

func TestFromPanic(t *testing.T) {
	assert.Equal(t, &TaskError{Kind: KindPanic, Message: "oops"}, FromPanic("oops"))
	assert.Equal(t, &TaskError{Kind: KindPanic, Message: "bad"}, FromPanic(errors.New("bad")))
}

func TestClassification(t *testing.T) {
	assert.True(t, IsLifecycle(ErrSubmitAfterEnd))
	assert.True(t, IsLifecycle(fmt.Errorf("submit: %w", ErrShutdown)))
	assert.False(t, IsLifecycle(ErrInvalidDescriptor))
	assert.True(t, IsValidation(New(ErrInvalidDescriptor, "descriptor is nil")))
	assert.False(t, IsValidation(ErrSubmitAfterEnd))
}

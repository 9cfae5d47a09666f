package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	err := NewError(ErrNotFound, "node 42 not found")
	assert.Equal(t, "[NOT_FOUND] node 42 not found", err.Error())

	cause := errors.New("boom")
	err = NewError(ErrTransport, "submit failed").WithCause(cause)
	assert.Equal(t, "[TRANSPORT] submit failed: boom", err.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrTransport, "dial").WithCause(cause)

	assert.ErrorIs(t, err, cause)
}

func TestError_CodeSurvivesWrapping(t *testing.T) {
	inner := NewError(ErrProvisioning, "no capacity")
	wrapped := fmt.Errorf("acquire worker: %w", inner)

	assert.Equal(t, ErrProvisioning, GetErrorCode(wrapped))
	assert.True(t, IsProvisioning(wrapped))
	assert.False(t, IsTransport(wrapped))
}

func TestErrorf(t *testing.T) {
	err := Errorf(ErrAmbiguous, "name %q matches %d nodes", "KSampler", 2)
	require.NotNil(t, err)
	assert.Equal(t, ErrAmbiguous, err.Code)
	assert.Contains(t, err.Message, `"KSampler"`)
	assert.Contains(t, err.Message, "2 nodes")
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(NewError(ErrTransport, "submit")))
	assert.True(t, IsRetryable(NewError(ErrTransport, "fetch").WithRetryable(true)))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		code ErrorCode
		pred func(error) bool
	}{
		{ErrNotFound, IsNotFound},
		{ErrAmbiguous, IsAmbiguous},
		{ErrInvalidGraph, IsInvalidGraph},
		{ErrTransport, IsTransport},
		{ErrProvisioning, IsProvisioning},
		{ErrTimeout, IsTimeout},
	}

	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.True(t, tc.pred(NewError(tc.code, "x")))
			assert.False(t, tc.pred(errors.New("plain")))
		})
	}
}

func TestGetErrorCode_PlainError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

// Package errors provides examples of structured error handling in shopsync.
package errors_test

import (
	"fmt"
	"io"
	"testing"

	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	err := errors.New(errors.ErrorTypeBulkJobFailed, "bulk operation failed").
		WithDetail("job_id", "gid://shopify/BulkOperation/1").
		WithDetail("error_code", "INTERNAL_SERVER_ERROR")

	fmt.Println(err.Error())

	// Output:
	// bulk_job_failed: bulk operation failed
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeConnection, "failed to read page").
		WithDetail("stream", "orders")

	if errors.IsType(err, errors.ErrorTypeConnection) {
		fmt.Println("This is a connection error")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("Original error was unexpected EOF")
	}

	// Output:
	// This is a connection error
	// Original error was unexpected EOF
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection", errors.New(errors.ErrorTypeConnection, "reset"), true},
		{"rate limit", errors.New(errors.ErrorTypeRateLimit, "429"), true},
		{"bulk timed out", errors.New(errors.ErrorTypeBulkJobTimedOut, "deadline"), true},
		{"bulk failed", errors.New(errors.ErrorTypeBulkJobFailed, "failed"), false},
		{"malformed record", errors.New(errors.ErrorTypeMalformedRecord, "bad"), false},
		{"plain error", io.EOF, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.IsRetryable(tt.err))
		})
	}
}

func TestIsType_WalksCauseChain(t *testing.T) {
	inner := errors.New(errors.ErrorTypeBulkJobTimedOut, "poll deadline exceeded")
	outer := errors.Wrap(inner, errors.ErrorTypeData, "stream inventory_levels failed")

	assert.True(t, errors.IsType(outer, errors.ErrorTypeData))
	assert.True(t, errors.IsType(outer, errors.ErrorTypeBulkJobTimedOut))
	assert.False(t, errors.IsType(outer, errors.ErrorTypeBulkJobFailed))
	assert.Equal(t, errors.ErrorTypeData, errors.TypeOf(outer))
	assert.Equal(t, errors.ErrorTypeInternal, errors.TypeOf(io.EOF))
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.ErrorTypeData, "nothing"))
}

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(TypeNetwork, cause, "fetch failed")

	assert.Contains(t, err.Error(), "fetch failed")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}

func TestTypeOfUnwrapsChains(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(TypeRateLimit, "slow down"))
	assert.Equal(t, TypeRateLimit, TypeOf(err))

	assert.Equal(t, TypeUnknown, TypeOf(stderrors.New("plain")))
	assert.Equal(t, TypeUnknown, TypeOf(nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(TypeAuth, "bad session")))
	assert.True(t, IsFatal(New(TypeConfig, "bad config")))
	assert.False(t, IsFatal(New(TypeNotFound, "gone")))
	assert.False(t, IsFatal(New(TypeNetwork, "flaky")))
	assert.False(t, IsFatal(nil))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(New(TypeNotFound, "gone")))
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", New(TypeNotFound, "gone"))))
	assert.False(t, IsNotFound(New(TypeNetwork, "flaky")))
}

func TestIsRetryable(t *testing.T) {
	retryable := []Type{TypeNetwork, TypeRateLimit, TypeServerError}
	for _, typ := range retryable {
		assert.True(t, IsRetryable(typ), "%s should be retryable", typ)
	}

	terminal := []Type{TypeAuth, TypeConfig, TypeNotFound, TypeStructural, TypePersistence, TypeFilesystem}
	for _, typ := range terminal {
		assert.False(t, IsRetryable(typ), "%s should not be retryable", typ)
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	assert.True(t, IsRetryableStatusCode(429))
	assert.True(t, IsRetryableStatusCode(500))
	assert.True(t, IsRetryableStatusCode(503))
	assert.False(t, IsRetryableStatusCode(200))
	assert.False(t, IsRetryableStatusCode(404))
	assert.False(t, IsRetryableStatusCode(403))
}

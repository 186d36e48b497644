package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutePassesThroughResultOnSuccess(t *testing.T) {
	b := New("test-dep", 1, time.Minute)

	result, err := b.Execute(context.Background(), func() (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestExecuteOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("test-dep", 1, time.Minute)
	failing := errors.New("boom")

	for i := 0; i < 5; i++ {
		_, err := b.Execute(context.Background(), func() (any, error) {
			return nil, failing
		})
		assert.ErrorIs(t, err, failing)
	}

	_, err := b.Execute(context.Background(), func() (any, error) {
		t.Fatal("fn should not run while breaker is open")
		return nil, nil
	})
	require.Error(t, err)
	assert.True(t, IsOpenState(err))
}

func TestIsOpenStateFalseForOtherErrors(t *testing.T) {
	assert.False(t, IsOpenState(errors.New("some other error")))
	assert.False(t, IsOpenState(nil))
}

func TestBreakerHalfOpensAfterTimeout(t *testing.T) {
	b := New("test-dep", 1, 10*time.Millisecond)
	failing := errors.New("boom")

	for i := 0; i < 5; i++ {
		_, _ = b.Execute(context.Background(), func() (any, error) {
			return nil, failing
		})
	}
	_, err := b.Execute(context.Background(), func() (any, error) { return nil, nil })
	require.True(t, IsOpenState(err))

	time.Sleep(20 * time.Millisecond)

	result, err := b.Execute(context.Background(), func() (any, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
}

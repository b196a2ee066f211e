package job

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("connection reset")

	assert.True(t, IsRetryable(Retryable(base)))
	assert.True(t, IsRetryable(fmt.Errorf("fetch channel 7: %w", Retryable(base))))
	assert.False(t, IsRetryable(Fatal(base)))
	assert.False(t, IsRetryable(base))
	assert.False(t, IsRetryable(nil))

	assert.NoError(t, Retryable(nil))
	assert.NoError(t, Fatal(nil))

	assert.ErrorIs(t, Retryable(context.DeadlineExceeded), context.DeadlineExceeded)
	assert.Equal(t, "connection reset", Retryable(base).Error())

	assert.Equal(t, KindRetryable, KindOf(Retryable(base)))
	assert.Equal(t, KindFatal, KindOf(base))
}

func TestFailureTracker(t *testing.T) {
	t.Run("trips on fifth consecutive failure", func(t *testing.T) {
		tr := NewFailureTracker(5)
		for range 4 {
			assert.NoError(t, tr.Failure())
		}
		err := tr.Failure()
		assert.Error(t, err)
		assert.True(t, IsRetryable(err))
		assert.Contains(t, err.Error(), "too many consecutive channel errors (5)")
	})

	t.Run("success resets streak", func(t *testing.T) {
		tr := NewFailureTracker(3)
		assert.NoError(t, tr.Failure())
		assert.NoError(t, tr.Failure())
		tr.Success()
		assert.NoError(t, tr.Failure())
		assert.NoError(t, tr.Failure())
		assert.Equal(t, 4, tr.Total())
	})
}

func TestTruncateMessage(t *testing.T) {
	assert.Equal(t, "short", TruncateMessage("short", 10))
	assert.Equal(t, "abc", TruncateMessage("abcdef", 3))
	assert.Equal(t, "äöü", TruncateMessage("äöüß", 3))
	assert.Len(t, []rune(TruncateMessage(string(make([]byte, 600)), 0)), DefaultErrorMessageMax)
}

package lookup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/placafipe/browser"
	"github.com/use-agent/placafipe/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.Kind
	}{
		{"deadline", context.DeadlineExceeded, models.KindTimeout},
		{"wrapped deadline", errors.Join(errors.New("wait element"), context.DeadlineExceeded), models.KindTimeout},
		{"canceled", context.Canceled, models.KindTimeout},
		{"shutdown", browser.ErrShutdown, models.KindFatal},
		{"no browser", browser.ErrNoBrowser, models.KindFatal},
		{"transport", errors.New("net::ERR_CONNECTION_RESET"), models.KindTransient},
		{"already classified", models.NewLookupError(models.KindNotFound, "gone", nil), models.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.KindOf(Classify(tt.err)))
		})
	}
	assert.NoError(t, Classify(nil))
}

func TestRetryable(t *testing.T) {
	transient := models.NewLookupError(models.KindTransient, "x", nil)
	timeout := models.NewLookupError(models.KindTimeout, "x", nil)
	notFound := models.NewLookupError(models.KindNotFound, "x", nil)
	fatal := models.NewLookupError(models.KindFatal, "x", nil)
	initFail := models.NewLookupError(models.KindResourceInit, "x", nil)

	p := RetryPolicy{}
	assert.True(t, p.Retryable(transient))
	assert.False(t, p.Retryable(timeout))
	assert.False(t, p.Retryable(notFound))
	assert.False(t, p.Retryable(fatal))
	assert.False(t, p.Retryable(initFail))

	p = RetryPolicy{RetryTimeouts: true, RetryNotFound: true}
	assert.True(t, p.Retryable(timeout))
	assert.True(t, p.Retryable(notFound))
	assert.False(t, p.Retryable(fatal))
}

func TestRunStopsAtBound(t *testing.T) {
	for _, bound := range []int{1, 2, 5} {
		calls := 0
		_, attempts, err := Run(context.Background(), RetryPolicy{MaxAttempts: bound, Backoff: time.Millisecond},
			func(context.Context, int) (string, error) {
				calls++
				return "", errors.New("connection reset")
			})
		require.Error(t, err)
		assert.Equal(t, models.KindTransient, models.KindOf(err))
		assert.Equal(t, bound, calls)
		assert.Equal(t, bound, attempts)
	}
}

func TestRunNeverRetriesNotFound(t *testing.T) {
	calls := 0
	_, attempts, err := Run(context.Background(), RetryPolicy{MaxAttempts: 5},
		func(context.Context, int) (int, error) {
			calls++
			return 0, models.NewLookupError(models.KindNotFound, "plate not found", nil)
		})
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestRunRecovers(t *testing.T) {
	var retried []int
	p := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		OnRetry:     func(attempt int, _ error) { retried = append(retried, attempt) },
	}
	out, attempts, err := Run(context.Background(), p, func(_ context.Context, attempt int) (string, error) {
		if attempt < 3 {
			return "", errors.New("target crashed")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{2, 3}, retried)
}

func TestRunSurfacesLastErrorWhenCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{
		MaxAttempts: 3,
		Backoff:     time.Hour,
		OnRetry:     func(int, error) { cancel() },
	}
	_, attempts, err := Run(ctx, p, func(context.Context, int) (int, error) {
		return 0, errors.New("connection refused")
	})
	assert.Equal(t, 1, attempts)
	assert.Equal(t, models.KindTransient, models.KindOf(err))
}

func TestRunZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, attempts, _ := Run(context.Background(), RetryPolicy{}, func(context.Context, int) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

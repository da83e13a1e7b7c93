package agenda

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRetrier returns a retrier that records its waits instead of
// sleeping and adds a fixed jitter fraction.
func recordingRetrier(policy Policy, jitter float64) (*Retrier, *[]time.Duration) {
	r := NewRetrier(policy)
	var waits []time.Duration
	r.jitter = func() float64 { return jitter }
	r.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return r, &waits
}

func TestPolicyDelay(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 60*time.Second, p.Delay(10))
}

func TestRetryFailFailSucceed(t *testing.T) {
	r, waits := recordingRetrier(DefaultPolicy(), 0.5)
	calls := 0

	err := r.Do(context.Background(), "agenda read", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("503 backend error")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	// Base delays 1s and 2s, each stretched by the 0.5 jitter fraction.
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 3 * time.Second}, *waits)
}

func TestRetryJitterWindow(t *testing.T) {
	r := NewRetrier(DefaultPolicy())
	for i := 0; i < 1000; i++ {
		j := r.jitter()
		require.GreaterOrEqual(t, j, 0.1)
		require.Less(t, j, 0.9)
	}
}

func TestRetryExhaustion(t *testing.T) {
	r, waits := recordingRetrier(DefaultPolicy(), 0.1)
	cause := errors.New("connection reset")
	calls := 0

	err := r.Do(context.Background(), "agenda read", func(ctx context.Context) error {
		calls++
		return cause
	})

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 4, terr.Attempts)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 4, calls)
	assert.Len(t, *waits, 3)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	r, waits := recordingRetrier(DefaultPolicy(), 0.1)
	calls := 0

	err := r.Do(context.Background(), "agenda update row 3", func(ctx context.Context) error {
		calls++
		return Permanent(errors.New("403 forbidden"))
	})

	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, *waits)
}

func TestRetryCancelledDuringBackoff(t *testing.T) {
	r, _ := recordingRetrier(DefaultPolicy(), 0.1)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := r.Do(ctx, "agenda read", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	})

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, terr.Attempts)
}

func TestNewRetrierNormalizesPolicy(t *testing.T) {
	r := NewRetrier(Policy{MaxRetries: -1, Factor: 0})
	p := r.Policy()
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, time.Second, p.MaxDelay)
	assert.Equal(t, 2.0, p.Factor)
}

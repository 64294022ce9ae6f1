package httpclient

import (
	"context"
	"errors"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/jobfeed/internal/domain"
)

func TestPolicyNormalize(t *testing.T) {
	t.Parallel()

	p := Policy{}.Normalize()
	assert.Equal(t, defaultMaxAttempts, p.MaxAttempts)
	assert.Equal(t, 1*time.Second, p.InitialInterval)
	assert.Equal(t, 30*time.Second, p.MaxInterval)
	assert.Equal(t, 2.0, p.Multiplier)

	capped := Policy{MaxAttempts: 50}.Normalize()
	assert.Equal(t, maxAttemptsCap, capped.MaxAttempts)
}

type flaggedErr struct{ retry bool }

func (e *flaggedErr) Error() string   { return "flagged" }
func (e *flaggedErr) Retryable() bool { return e.retry }

func TestPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := Policy{}.Normalize()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"status 500", &StatusError{StatusCode: 500}, true},
		{"status 429", &StatusError{StatusCode: 429}, true},
		{"status 404", &StatusError{StatusCode: 404}, false},
		{"retryable flag set", &flaggedErr{retry: true}, true},
		{"retryable flag clear", &flaggedErr{retry: false}, false},
		{"eof", io.EOF, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"conn reset", syscall.ECONNRESET, true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"transient sentinel", domain.ErrTransientNetwork, true},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, p.ShouldRetry(tc.err))
		})
	}
}

func TestPolicyShouldRetry_ExtraStatusCodes(t *testing.T) {
	t.Parallel()

	p := Policy{ExtraStatusCodes: []int{403, 422}}.Normalize()
	assert.True(t, p.ShouldRetry(&StatusError{StatusCode: 403}))
	assert.True(t, p.ShouldRetry(&StatusError{StatusCode: 422}))
	assert.False(t, p.ShouldRetry(&StatusError{StatusCode: 401}))
}

func TestRetry_StopsAtMaxAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(t.Context(), Policy{MaxAttempts: 3, InitialInterval: time.Millisecond}, func() error {
		calls++
		return &StatusError{StatusCode: 500, URL: "https://jobs.example"}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var se *StatusError
	assert.ErrorAs(t, err, &se, "the final attempt's error comes back unchanged")
}

func TestRetry_PermanentErrorReturnsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	wantErr := errors.New("bad request")
	err := Retry(t.Context(), Policy{MaxAttempts: 5, InitialInterval: time.Millisecond}, func() error {
		calls++
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(t.Context(), Policy{MaxAttempts: 5, InitialInterval: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return io.ErrUnexpectedEOF
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancellationWins(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	err := Retry(ctx, Policy{MaxAttempts: 10, InitialInterval: 50 * time.Millisecond}, func() error {
		calls++
		cancel()
		return &StatusError{StatusCode: 500}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "no more attempts after the context is gone")
}

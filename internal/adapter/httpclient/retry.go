package httpclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"slices"
	"syscall"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/jobfeed/internal/domain"
)

// Policy bounds retries for HTTP-producing operations. The zero value is
// usable; Normalize fills defaults and clamps MaxAttempts to the hard cap.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// ExtraStatusCodes are retried in addition to 429 and 5xx. Sources
	// behind aggressive bot protection pass 403/422 here.
	ExtraStatusCodes []int
}

const (
	defaultMaxAttempts = 5
	maxAttemptsCap     = 10
)

// Normalize returns a copy with defaults applied.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.MaxAttempts > maxAttemptsCap {
		p.MaxAttempts = maxAttemptsCap
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 1 * time.Second
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 30 * time.Second
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 2
	}
	return p
}

// RetryableError lets error types carry their own retry decision. The
// scraping gateway envelope implements it with the upstream retryable flag.
type RetryableError interface {
	error
	Retryable() bool
}

// ShouldRetry classifies err under this policy. Cancellation always wins.
func (p Policy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		if slices.Contains(p.ExtraStatusCodes, se.StatusCode) {
			return true
		}
		return se.Retryable()
	}
	var re RetryableError
	if errors.As(err, &re) {
		var hs interface{ HTTPStatus() int }
		if errors.As(err, &hs) && slices.Contains(p.ExtraStatusCodes, hs.HTTPStatus()) {
			return true
		}
		return re.Retryable()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return errors.Is(err, domain.ErrTransientNetwork)
}

// Retry runs op under the policy with exponential backoff and jitter. Every
// sleep is preceded by a warning log carrying the error and attempt counter.
// The final attempt's error is returned unchanged.
func Retry(ctx context.Context, p Policy, op func() error) error {
	p = p.Normalize()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.InitialInterval
	expo.MaxInterval = p.MaxInterval
	expo.Multiplier = p.Multiplier
	expo.MaxElapsedTime = 0 // bounded by attempts, not wall clock

	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !p.ShouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("retrying after error",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.MaxAttempts),
			slog.Duration("wait", wait))
	}
	b := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(p.MaxAttempts-1)), ctx)
	return backoff.RetryNotify(wrapped, b, notify)
}

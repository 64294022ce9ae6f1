package observability

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/fairyhunter13/jobfeed/internal/config"
)

// SetupSentry initializes error reporting. Reporting is disabled in dev and
// when no DSN is configured; in both cases the returned flush func is a no-op.
func SetupSentry(cfg config.Config) (func(), error) {
	if !cfg.SentryEnabled() {
		slog.Info("sentry disabled", slog.String("env", cfg.AppEnv))
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		TracesSampleRate: cfg.SentryTracesSampleRate,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("op=observability.SetupSentry: %w", err)
	}
	slog.Info("sentry configured", slog.Float64("traces_sample_rate", cfg.SentryTracesSampleRate))
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// CaptureError reports err with the given tags. Safe to call when sentry is
// not initialized; the event is silently discarded.
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// CapturePanic reports a recovered panic value with the given tags.
func CapturePanic(rec any, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CurrentHub().Recover(rec)
	})
}

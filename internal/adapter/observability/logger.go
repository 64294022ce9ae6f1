package observability

import (
	"log/slog"
	"os"
	"strings"

	"github.com/fairyhunter13/jobfeed/internal/config"
)

// SetupLogger configures a JSON slog logger with environment fields.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	// Dev always logs debug regardless of LOG_LEVEL.
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

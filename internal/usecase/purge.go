package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/jobfeed/internal/domain"
)

// PurgeService deletes listings older than the retention window, plus raw
// payloads whose listing is gone.
type PurgeService struct {
	Store     domain.ListingStore
	Retention time.Duration
	Now       func() time.Time
}

// NewPurgeService constructs a PurgeService.
func NewPurgeService(store domain.ListingStore, retention time.Duration) PurgeService {
	return PurgeService{
		Store:     store,
		Retention: retention,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run applies the retention cutoff once.
func (s PurgeService) Run(ctx domain.Context) error {
	cutoff := s.Now().Add(-s.Retention)
	jobs, payloads, err := s.Store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("op=purge: %w", err)
	}
	slog.Info("purged old listings",
		slog.Time("cutoff", cutoff),
		slog.Int64("jobs_deleted", jobs),
		slog.Int64("payloads_deleted", payloads))
	return nil
}

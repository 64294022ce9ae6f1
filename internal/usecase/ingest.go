// Package usecase contains the application services that drive the pipeline:
// source ingestion, tag backfill and retention purging.
package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/fairyhunter13/jobfeed/internal/adapter/observability"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

// watermarkBuffer rewinds the incremental cutoff so listings posted while the
// previous run was in flight are re-seen; conflict-do-nothing absorbs the
// overlap.
const watermarkBuffer = 5 * time.Minute

// IngestService runs the fetch-parse-normalize-persist pipeline for a set of
// sources. Sources fail independently; one failing source never blocks
// another.
type IngestService struct {
	Sources    map[string]domain.Source
	Store      domain.ListingStore
	Watermarks domain.WatermarkStore
	// ValidCodes is the location vocabulary; listings carrying codes
	// outside it are dropped before the store.
	ValidCodes map[string]struct{}
	Retention  time.Duration
	Now        func() time.Time
}

// NewIngestService constructs an IngestService with its dependencies.
func NewIngestService(sources map[string]domain.Source, store domain.ListingStore, marks domain.WatermarkStore, validCodes []string, retention time.Duration) IngestService {
	codes := make(map[string]struct{}, len(validCodes))
	for _, c := range validCodes {
		codes[c] = struct{}{}
	}
	return IngestService{
		Sources:    sources,
		Store:      store,
		Watermarks: marks,
		ValidCodes: codes,
		Retention:  retention,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run ingests the named sources in order, or every registered source when
// names is empty. Unknown names fail before any source runs. Each source's
// failure is logged, reported and counted, then the next source proceeds;
// the joined errors come back to the caller.
func (s IngestService) Run(ctx domain.Context, names []string) error {
	targets, err := s.resolve(names)
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.runSource(ctx, s.Sources[name]); err != nil {
			slog.Error("source run failed",
				slog.String("source", name),
				slog.Any("error", err))
			observability.CaptureError(err, map[string]string{"source": name})
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// resolve lowers and validates the requested names against the registry.
func (s IngestService) resolve(names []string) ([]string, error) {
	if len(names) == 0 {
		all := make([]string, 0, len(s.Sources))
		for name := range s.Sources {
			all = append(all, name)
		}
		sort.Strings(all)
		return all, nil
	}
	targets := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if _, ok := s.Sources[name]; !ok {
			return nil, fmt.Errorf("op=ingest.resolve: %w: unknown source %q", domain.ErrConfiguration, raw)
		}
		targets = append(targets, name)
	}
	return targets, nil
}

// runSource executes one full source run: watermark, fetch, validate, store,
// watermark advance. The advance happens only after the upsert commits, so a
// crash in between re-sees the same items and relies on conflict-do-nothing.
func (s IngestService) runSource(ctx domain.Context, src domain.Source) error {
	name := src.Name()
	started := s.Now()

	mark, err := s.Watermarks.GetOrCreate(ctx, name)
	if err != nil {
		observability.ObserveSourceRun(name, s.Now().Sub(started), err)
		return err
	}
	cutoff := s.cutoff(mark)

	slog.Info("fetching jobs",
		slog.String("source", name),
		slog.Time("cutoff", cutoff))

	listings, payloads, err := src.Fetch(ctx, cutoff)
	if err != nil {
		observability.ObserveSourceRun(name, s.Now().Sub(started), err)
		return err
	}
	listings = s.validated(name, listings)

	result, err := s.Store.StoreListings(ctx, listings, payloads)
	if err != nil {
		observability.ObserveSourceRun(name, s.Now().Sub(started), err)
		return err
	}
	observability.ListingsStoredTotal.WithLabelValues(name).Add(float64(result.JobsInserted))

	if err := s.Watermarks.Advance(ctx, name, s.Now()); err != nil {
		observability.ObserveSourceRun(name, s.Now().Sub(started), err)
		return err
	}

	dur := s.Now().Sub(started)
	observability.ObserveSourceRun(name, dur, nil)
	slog.Info("source run complete",
		slog.String("source", name),
		slog.Int("listings", len(listings)),
		slog.Int("jobs_inserted", result.JobsInserted),
		slog.Int("payloads_inserted", result.PayloadsInserted),
		slog.Int("tags_linked", result.TagsLinked),
		slog.Duration("duration", dur))
	return nil
}

// cutoff derives the recency gate: the buffered watermark when the source has
// run before, otherwise the full retention window.
func (s IngestService) cutoff(mark domain.Watermark) time.Time {
	if mark.LastRunAt != nil {
		return mark.LastRunAt.Add(-watermarkBuffer)
	}
	return s.Now().Add(-s.Retention)
}

// validated re-applies the store invariants in the application layer and
// drops offenders instead of failing the batch.
func (s IngestService) validated(source string, listings []domain.Listing) []domain.Listing {
	kept := listings[:0]
	for _, l := range listings {
		if err := l.Validate(); err != nil {
			slog.Warn("dropping invalid listing",
				slog.String("source", source),
				slog.String("link", l.Link),
				slog.Any("error", err))
			observability.ListingsDroppedTotal.WithLabelValues(source, "invalid").Inc()
			continue
		}
		if code, ok := s.unknownCode(l.Locations); !ok {
			slog.Warn("dropping listing with unknown location code",
				slog.String("source", source),
				slog.String("link", l.Link),
				slog.String("code", code))
			observability.ListingsDroppedTotal.WithLabelValues(source, "invalid").Inc()
			continue
		}
		kept = append(kept, l)
	}
	return kept
}

// unknownCode returns the first location code outside the vocabulary.
func (s IngestService) unknownCode(codes []string) (string, bool) {
	if len(s.ValidCodes) == 0 {
		return "", true
	}
	for _, c := range codes {
		if _, ok := s.ValidCodes[c]; !ok {
			return c, false
		}
	}
	return "", true
}

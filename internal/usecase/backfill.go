package usecase

import (
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/jobfeed/internal/domain"
)

// TagBackfillService drains active listings that have no tag links yet
// through the LLM extractor, batch by batch.
type TagBackfillService struct {
	Store     domain.ListingStore
	Extractor domain.TagExtractor
	BatchSize int
}

// NewTagBackfillService constructs a TagBackfillService.
func NewTagBackfillService(store domain.ListingStore, extractor domain.TagExtractor, batchSize int) TagBackfillService {
	return TagBackfillService{Store: store, Extractor: extractor, BatchSize: batchSize}
}

// Run processes tagless listings until none remain. Tagged listings drop out
// of the next selection, so the loop terminates; a batch that attaches
// nothing stops the run early rather than spinning on the same listings.
func (s TagBackfillService) Run(ctx domain.Context) error {
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	totalTagged := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := s.Store.ListingsWithoutTags(ctx, batchSize)
		if err != nil {
			return fmt.Errorf("op=backfill.select: %w", err)
		}
		if len(batch) == 0 {
			if totalTagged == 0 {
				slog.Info("no listings without tags")
			} else {
				slog.Info("tag backfill complete", slog.Int("links_created", totalTagged))
			}
			return nil
		}

		tagsByLink, err := s.Extractor.ExtractTags(ctx, batch)
		if err != nil {
			return fmt.Errorf("op=backfill.extract: %w", err)
		}
		linked, err := s.Store.AttachTags(ctx, tagsByLink)
		if err != nil {
			return fmt.Errorf("op=backfill.attach: %w", err)
		}
		totalTagged += linked

		slog.Info("processed tag batch",
			slog.Int("listings", len(batch)),
			slog.Int("links_created", linked))
		if linked == 0 {
			slog.Warn("tag batch made no progress, stopping",
				slog.Int("listings", len(batch)))
			return nil
		}
	}
}

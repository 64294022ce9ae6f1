package postgres

import (
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/jobfeed/internal/domain"
)

// WatermarkRepo tracks the per-source incremental cursor. Names are
// validated against the registered source set so a typo cannot silently
// create a cursor nothing ever advances.
type WatermarkRepo struct {
	Pool  PgxPool
	names map[string]struct{}
}

// NewWatermarkRepo constructs a WatermarkRepo accepting the given source
// names.
func NewWatermarkRepo(p PgxPool, names []string) *WatermarkRepo {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return &WatermarkRepo{Pool: p, names: set}
}

func (r *WatermarkRepo) registered(name string) bool {
	_, ok := r.names[strings.ToLower(name)]
	return ok
}

// GetOrCreate loads the watermark for a source, creating an empty one on
// first use. LastRunAt is nil until the source completes a successful run.
func (r *WatermarkRepo) GetOrCreate(ctx domain.Context, name string) (domain.Watermark, error) {
	tracer := otel.Tracer("repo.watermarks")
	ctx, span := tracer.Start(ctx, "watermarks.GetOrCreate")
	defer span.End()

	if !r.registered(name) {
		return domain.Watermark{}, fmt.Errorf("op=watermarks.get_or_create name=%s: %w", name, domain.ErrConfiguration)
	}
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO source_watermark (name) VALUES ($1) ON CONFLICT ((lower(name))) DO NOTHING`, name)
	if err != nil {
		return domain.Watermark{}, fmt.Errorf("op=watermarks.get_or_create: %w: %v", domain.ErrDatabase, err)
	}

	var w domain.Watermark
	row := r.Pool.QueryRow(ctx,
		`SELECT id, name, last_run_at FROM source_watermark WHERE lower(name) = lower($1)`, name)
	if err := row.Scan(&w.ID, &w.Name, &w.LastRunAt); err != nil {
		return domain.Watermark{}, fmt.Errorf("op=watermarks.get_or_create: %w: %v", domain.ErrDatabase, err)
	}
	if w.LastRunAt != nil {
		utc := w.LastRunAt.UTC()
		w.LastRunAt = &utc
	}
	return w, nil
}

// Advance moves the cursor to runAt. Callers advance only after a successful
// store, so a failed run is refetched next time.
func (r *WatermarkRepo) Advance(ctx domain.Context, name string, runAt time.Time) error {
	tracer := otel.Tracer("repo.watermarks")
	ctx, span := tracer.Start(ctx, "watermarks.Advance")
	defer span.End()

	if !r.registered(name) {
		return fmt.Errorf("op=watermarks.advance name=%s: %w", name, domain.ErrConfiguration)
	}
	ct, err := r.Pool.Exec(ctx,
		`UPDATE source_watermark SET last_run_at = $2, edited_at = $2 WHERE lower(name) = lower($1)`,
		name, runAt.UTC())
	if err != nil {
		return fmt.Errorf("op=watermarks.advance: %w: %v", domain.ErrDatabase, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("op=watermarks.advance name=%s: %w", name, domain.ErrNotFound)
	}
	return nil
}

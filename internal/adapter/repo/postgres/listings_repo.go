package postgres

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/jobfeed/internal/domain"
)

// Upsert batch sizes, bounded by parameter-count limits rather than memory.
const (
	jobBatchSize     = 500
	payloadBatchSize = 200
)

// ListingRepo persists listings, tags and payloads using a minimal pgx pool.
type ListingRepo struct{ Pool PgxPool }

// NewListingRepo constructs a ListingRepo with the given pool.
func NewListingRepo(p PgxPool) *ListingRepo { return &ListingRepo{Pool: p} }

// StoreListings upserts listings in batches of 500 and payloads in batches
// of 200, each batch in its own transaction. Conflicts on lower(link) are
// skipped, making re-runs idempotent; tags are linked for every listing in
// the batch, including ones whose job row already existed.
func (r *ListingRepo) StoreListings(ctx domain.Context, listings []domain.Listing, payloads []domain.RawPayload) (domain.StoreResult, error) {
	tracer := otel.Tracer("repo.listings")
	ctx, span := tracer.Start(ctx, "listings.StoreListings")
	defer span.End()

	var res domain.StoreResult
	for start := 0; start < len(listings); start += jobBatchSize {
		batch := listings[start:min(start+jobBatchSize, len(listings))]
		jobs, tags, err := r.storeJobBatch(ctx, batch)
		if err != nil {
			return res, err
		}
		res.JobsInserted += jobs
		res.TagsLinked += tags
	}
	for start := 0; start < len(payloads); start += payloadBatchSize {
		batch := payloads[start:min(start+payloadBatchSize, len(payloads))]
		n, err := r.storePayloadBatch(ctx, batch)
		if err != nil {
			return res, err
		}
		res.PayloadsInserted += n
	}
	return res, nil
}

func (r *ListingRepo) storeJobBatch(ctx domain.Context, batch []domain.Listing) (jobs, tags int, err error) {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("op=listings.store: %w: %v", domain.ErrDatabase, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		sb   strings.Builder
		args = make([]any, 0, len(batch)*10)
	)
	sb.WriteString(`INSERT INTO job (title, description, link, min_salary, max_salary, posted_on, is_active, is_remote, locations, company_name) VALUES `)
	for i, l := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(valuesRow(i, 10))
		posted := l.PostedOn
		if posted.IsZero() {
			posted = time.Now().UTC()
		}
		locations := l.Locations
		if locations == nil {
			locations = []string{}
		}
		args = append(args, l.Title, textOrNil(l.Description), l.Link,
			numericOrNil(l.MinSalary), numericOrNil(l.MaxSalary), posted,
			l.IsActive, l.IsRemote, locations, textOrNil(l.CompanyName))
	}
	sb.WriteString(` ON CONFLICT ((lower(link))) DO NOTHING RETURNING id`)

	rows, err := tx.Query(ctx, sb.String(), args...)
	if err != nil {
		return 0, 0, fmt.Errorf("op=listings.store: %w: %v", domain.ErrDatabase, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, 0, fmt.Errorf("op=listings.store: %w: %v", domain.ErrDatabase, err)
	}
	slog.Info("stored new jobs", slog.Int("count", len(ids)))

	pairs := make([]linkTags, 0, len(batch))
	for _, l := range batch {
		pairs = append(pairs, linkTags{link: l.Link, tags: l.Tags})
	}
	tags, err = linkJobTags(ctx, tx, pairs)
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("op=listings.store: %w: %v", domain.ErrDatabase, err)
	}
	return len(ids), tags, nil
}

func (r *ListingRepo) storePayloadBatch(ctx domain.Context, batch []domain.RawPayload) (int, error) {
	var (
		sb   strings.Builder
		args = make([]any, 0, len(batch)*3)
	)
	sb.WriteString(`INSERT INTO payload (link, payload, extra_info) VALUES `)
	for i, p := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(valuesRow(i, 3))
		args = append(args, p.Link, p.Payload, p.ExtraInfo)
	}
	sb.WriteString(` ON CONFLICT ((lower(link))) DO NOTHING RETURNING id`)

	rows, err := r.Pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("op=listings.store_payloads: %w: %v", domain.ErrDatabase, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("op=listings.store_payloads: %w: %v", domain.ErrDatabase, err)
	}
	slog.Info("stored new payloads", slog.Int("count", len(ids)))
	return len(ids), nil
}

type linkTags struct {
	link string
	tags []string
}

// linkJobTags upserts the tag vocabulary and the job_tag relationships for
// the given links inside the caller's transaction. Links without a stored
// job row are skipped.
func linkJobTags(ctx domain.Context, tx pgx.Tx, pairs []linkTags) (int, error) {
	tagSet := make(map[string]struct{})
	links := make([]string, 0, len(pairs))
	for _, p := range pairs {
		links = append(links, strings.ToLower(p.link))
		for _, t := range p.tags {
			tagSet[strings.ToLower(t)] = struct{}{}
		}
	}
	if len(tagSet) == 0 {
		return 0, nil
	}
	names := make([]string, 0, len(tagSet))
	for name := range tagSet {
		names = append(names, name)
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO tag (name) SELECT unnest($1::text[]) ON CONFLICT ((lower(name))) DO NOTHING`, names)
	if err != nil {
		return 0, fmt.Errorf("op=listings.store_tags: %w: %v", domain.ErrDatabase, err)
	}

	tagIDs, err := idsByKey(ctx, tx, `SELECT lower(name), id FROM tag WHERE lower(name) = ANY($1)`, names)
	if err != nil {
		return 0, fmt.Errorf("op=listings.store_tags: %w: %v", domain.ErrDatabase, err)
	}
	jobIDs, err := idsByKey(ctx, tx, `SELECT lower(link), id FROM job WHERE lower(link) = ANY($1)`, links)
	if err != nil {
		return 0, fmt.Errorf("op=listings.store_tags: %w: %v", domain.ErrDatabase, err)
	}

	var jobCol, tagCol []int64
	for _, p := range pairs {
		jobID, ok := jobIDs[strings.ToLower(p.link)]
		if !ok {
			continue
		}
		for _, t := range p.tags {
			if tagID, ok := tagIDs[strings.ToLower(t)]; ok {
				jobCol = append(jobCol, jobID)
				tagCol = append(tagCol, tagID)
			}
		}
	}
	if len(jobCol) == 0 {
		return 0, nil
	}

	ct, err := tx.Exec(ctx,
		`INSERT INTO job_tag (job_id, tag_id) SELECT * FROM unnest($1::bigint[], $2::bigint[]) ON CONFLICT (job_id, tag_id) DO NOTHING`,
		jobCol, tagCol)
	if err != nil {
		return 0, fmt.Errorf("op=listings.store_tags: %w: %v", domain.ErrDatabase, err)
	}
	return int(ct.RowsAffected()), nil
}

func idsByKey(ctx domain.Context, tx pgx.Tx, query string, keys []string) (map[string]int64, error) {
	rows, err := tx.Query(ctx, query, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64, len(keys))
	for rows.Next() {
		var key string
		var id int64
		if err := rows.Scan(&key, &id); err != nil {
			return nil, err
		}
		out[key] = id
	}
	return out, rows.Err()
}

// ExistingLinks reports which of the given links already have a job row,
// keyed by lower-cased link.
func (r *ListingRepo) ExistingLinks(ctx domain.Context, links []string) (map[string]struct{}, error) {
	tracer := otel.Tracer("repo.listings")
	ctx, span := tracer.Start(ctx, "listings.ExistingLinks")
	defer span.End()

	existing := make(map[string]struct{}, len(links))
	if len(links) == 0 {
		return existing, nil
	}
	lowered := make([]string, len(links))
	for i, l := range links {
		lowered[i] = strings.ToLower(l)
	}
	rows, err := r.Pool.Query(ctx, `SELECT lower(link) FROM job WHERE lower(link) = ANY($1)`, lowered)
	if err != nil {
		return nil, fmt.Errorf("op=listings.existing_links: %w: %v", domain.ErrDatabase, err)
	}
	defer rows.Close()
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("op=listings.existing_links: %w: %v", domain.ErrDatabase, err)
		}
		existing[link] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=listings.existing_links: %w: %v", domain.ErrDatabase, err)
	}
	return existing, nil
}

// ListingsWithoutTags returns up to limit active listings that have no tag
// relationships yet, oldest rows first so backfill progresses in insert
// order.
func (r *ListingRepo) ListingsWithoutTags(ctx domain.Context, limit int) ([]domain.TagRequest, error) {
	tracer := otel.Tracer("repo.listings")
	ctx, span := tracer.Start(ctx, "listings.ListingsWithoutTags")
	defer span.End()

	q := `SELECT j.link, j.title, COALESCE(j.description, '')
		FROM job j
		LEFT JOIN job_tag jt ON jt.job_id = j.id
		WHERE j.is_active AND jt.job_id IS NULL
		ORDER BY j.id
		LIMIT $1`
	rows, err := r.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("op=listings.without_tags: %w: %v", domain.ErrDatabase, err)
	}
	defer rows.Close()
	var out []domain.TagRequest
	for rows.Next() {
		var req domain.TagRequest
		if err := rows.Scan(&req.Link, &req.Title, &req.Description); err != nil {
			return nil, fmt.Errorf("op=listings.without_tags: %w: %v", domain.ErrDatabase, err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=listings.without_tags: %w: %v", domain.ErrDatabase, err)
	}
	return out, nil
}

// AttachTags links the given tags to their listings, creating missing tag
// rows. Returns the number of new job_tag relationships.
func (r *ListingRepo) AttachTags(ctx domain.Context, tagsByLink map[string][]string) (int, error) {
	tracer := otel.Tracer("repo.listings")
	ctx, span := tracer.Start(ctx, "listings.AttachTags")
	defer span.End()

	if len(tagsByLink) == 0 {
		return 0, nil
	}
	pairs := make([]linkTags, 0, len(tagsByLink))
	for link, tags := range tagsByLink {
		pairs = append(pairs, linkTags{link: link, tags: tags})
	}

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("op=listings.attach_tags: %w: %v", domain.ErrDatabase, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	linked, err := linkJobTags(ctx, tx, pairs)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("op=listings.attach_tags: %w: %v", domain.ErrDatabase, err)
	}
	return linked, nil
}

// PurgeOlderThan deletes jobs posted before cutoff, then payloads whose link
// no longer has a job row. job_tag rows go with their job via cascade.
func (r *ListingRepo) PurgeOlderThan(ctx domain.Context, cutoff time.Time) (jobs, payloads int64, err error) {
	tracer := otel.Tracer("repo.listings")
	ctx, span := tracer.Start(ctx, "listings.PurgeOlderThan")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("op=listings.purge: %w: %v", domain.ErrDatabase, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobTag, err := tx.Exec(ctx, `DELETE FROM job WHERE posted_on < $1`, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("op=listings.purge: %w: %v", domain.ErrDatabase, err)
	}
	payloadTag, err := tx.Exec(ctx,
		`DELETE FROM payload p WHERE NOT EXISTS (SELECT 1 FROM job j WHERE lower(j.link) = lower(p.link))`)
	if err != nil {
		return 0, 0, fmt.Errorf("op=listings.purge: %w: %v", domain.ErrDatabase, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("op=listings.purge: %w: %v", domain.ErrDatabase, err)
	}
	return jobTag.RowsAffected(), payloadTag.RowsAffected(), nil
}

// valuesRow renders the placeholder tuple for row i of an n-column insert.
func valuesRow(i, n int) string {
	parts := make([]string, n)
	for j := range parts {
		parts[j] = "$" + strconv.Itoa(i*n+j+1)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func textOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// numericOrNil renders a decimal as its text form; pgx encodes strings into
// numeric columns directly.
func numericOrNil(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

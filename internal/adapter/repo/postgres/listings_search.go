package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/jobfeed/internal/domain"
)

// SearchListings returns one page of listings matching the filters, inside a
// read-only transaction. Only tagged listings surface on the query paths;
// the backfill task tags new rows within minutes of ingestion.
func (r *ListingRepo) SearchListings(ctx domain.Context, f domain.SearchFilters) ([]domain.Listing, error) {
	tracer := otel.Tracer("repo.listings")
	ctx, span := tracer.Start(ctx, "listings.Search")
	defer span.End()

	where, args := searchWhere(f)
	args = append(args, f.Limit, f.Offset)
	q := `SELECT j.title, COALESCE(j.description, ''), j.link, j.min_salary::text, j.max_salary::text,
			j.posted_on, j.is_active, j.is_remote, j.locations, COALESCE(j.company_name, ''),
			COALESCE((SELECT array_agg(t.name ORDER BY t.name) FROM job_tag jt JOIN tag t ON t.id = jt.tag_id WHERE jt.job_id = j.id), '{}')
		FROM job j
		WHERE ` + where + `
		ORDER BY ` + orderClause(f.Sort) + `
		LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("op=listings.search: %w: %v", domain.ErrDatabase, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=listings.search: %w: %v", domain.ErrDatabase, err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		var l domain.Listing
		var minText, maxText *string
		if err := rows.Scan(&l.Title, &l.Description, &l.Link, &minText, &maxText,
			&l.PostedOn, &l.IsActive, &l.IsRemote, &l.Locations, &l.CompanyName, &l.Tags); err != nil {
			return nil, fmt.Errorf("op=listings.search: %w: %v", domain.ErrDatabase, err)
		}
		if l.MinSalary, err = scanDecimal(minText); err != nil {
			return nil, fmt.Errorf("op=listings.search: %w", err)
		}
		if l.MaxSalary, err = scanDecimal(maxText); err != nil {
			return nil, fmt.Errorf("op=listings.search: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=listings.search: %w: %v", domain.ErrDatabase, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("op=listings.search: %w: %v", domain.ErrDatabase, err)
	}
	return out, nil
}

// CountListings counts all listings matching the filters, inside a read-only
// transaction.
func (r *ListingRepo) CountListings(ctx domain.Context, f domain.SearchFilters) (int64, error) {
	tracer := otel.Tracer("repo.listings")
	ctx, span := tracer.Start(ctx, "listings.Count")
	defer span.End()

	where, args := searchWhere(f)
	q := `SELECT COUNT(*) FROM job j WHERE ` + where

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return 0, fmt.Errorf("op=listings.count: %w: %v", domain.ErrDatabase, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var count int64
	if err := tx.QueryRow(ctx, q, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("op=listings.count: %w: %v", domain.ErrDatabase, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("op=listings.count: %w: %v", domain.ErrDatabase, err)
	}
	return count, nil
}

// searchWhere renders the filter conditions with numbered placeholders.
// Listings with an empty location set match any location filter; a salary
// range matches when either end clears the minimum.
func searchWhere(f domain.SearchFilters) (string, []any) {
	var args []any
	add := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	conds := []string{"j.is_active", "j.posted_on >= " + add(f.PostedAfter)}

	minSalary := add(f.MinSalary.String())
	salary := "(j.min_salary >= " + minSalary + " OR j.max_salary >= " + minSalary
	if f.IncludeNoSalary {
		salary += " OR (j.min_salary IS NULL AND j.max_salary IS NULL)"
	}
	conds = append(conds, salary+")")

	if f.IsRemote != nil {
		conds = append(conds, "j.is_remote = "+add(*f.IsRemote))
	}

	if len(f.Tags) > 0 {
		lowered := make([]string, len(f.Tags))
		for i, t := range f.Tags {
			lowered[i] = strings.ToLower(t)
		}
		conds = append(conds, "EXISTS (SELECT 1 FROM job_tag jt JOIN tag t ON t.id = jt.tag_id WHERE jt.job_id = j.id AND lower(t.name) = ANY("+add(lowered)+"))")
	} else {
		conds = append(conds, "EXISTS (SELECT 1 FROM job_tag jt WHERE jt.job_id = j.id)")
	}

	if len(f.LocationCodes) > 0 {
		conds = append(conds, "(j.locations = '{}' OR j.locations && "+add(f.LocationCodes)+")")
	}

	return strings.Join(conds, " AND "), args
}

func orderClause(sort domain.SortOrder) string {
	if sort == domain.SortSalaryDesc {
		return "COALESCE(j.max_salary, j.min_salary) DESC NULLS LAST, j.posted_on DESC"
	}
	return "j.posted_on DESC"
}

func scanDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

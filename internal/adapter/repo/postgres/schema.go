package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/jobfeed/internal/domain"
)

// Timestamps are naive UTC throughout; posted_on defaults to ingestion time
// for boards that publish no dates. Link and name uniqueness is enforced
// case-insensitively through lower() indexes, which upserts target.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS job (
		id bigserial PRIMARY KEY,
		title text NOT NULL,
		description text,
		link text NOT NULL,
		min_salary numeric,
		max_salary numeric,
		posted_on timestamp NOT NULL DEFAULT (now() at time zone 'utc'),
		is_active boolean NOT NULL DEFAULT true,
		is_remote boolean NOT NULL DEFAULT false,
		locations text[] NOT NULL DEFAULT '{}',
		company_name text,
		created_at timestamp NOT NULL DEFAULT (now() at time zone 'utc'),
		edited_at timestamp NOT NULL DEFAULT (now() at time zone 'utc'),
		CONSTRAINT check_min_salary_non_negative CHECK (min_salary IS NULL OR min_salary >= 0),
		CONSTRAINT check_max_salary_non_negative CHECK (max_salary IS NULL OR max_salary >= 0),
		CONSTRAINT check_salary_range CHECK (min_salary IS NULL OR max_salary IS NULL OR max_salary >= min_salary)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ix_job_link_lower ON job (lower(link))`,
	`CREATE INDEX IF NOT EXISTS ix_job_title_lower ON job (lower(title))`,
	`CREATE INDEX IF NOT EXISTS ix_job_posted_on ON job (posted_on)`,
	`CREATE INDEX IF NOT EXISTS ix_job_is_active ON job (is_active)`,
	`CREATE INDEX IF NOT EXISTS ix_job_locations ON job USING gin (locations)`,
	`CREATE TABLE IF NOT EXISTS tag (
		id bigserial PRIMARY KEY,
		name text NOT NULL,
		created_at timestamp NOT NULL DEFAULT (now() at time zone 'utc'),
		edited_at timestamp NOT NULL DEFAULT (now() at time zone 'utc')
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ix_tag_name_lower ON tag (lower(name))`,
	`CREATE TABLE IF NOT EXISTS job_tag (
		id bigserial PRIMARY KEY,
		job_id bigint NOT NULL REFERENCES job(id) ON DELETE CASCADE,
		tag_id bigint NOT NULL REFERENCES tag(id) ON DELETE CASCADE,
		created_at timestamp NOT NULL DEFAULT (now() at time zone 'utc'),
		edited_at timestamp NOT NULL DEFAULT (now() at time zone 'utc')
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ix_job_tag_job_id_tag_id ON job_tag (job_id, tag_id)`,
	`CREATE TABLE IF NOT EXISTS payload (
		id bigserial PRIMARY KEY,
		link text NOT NULL,
		payload text NOT NULL,
		extra_info text,
		created_at timestamp NOT NULL DEFAULT (now() at time zone 'utc'),
		edited_at timestamp NOT NULL DEFAULT (now() at time zone 'utc')
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ix_payload_link_lower ON payload (lower(link))`,
	`CREATE TABLE IF NOT EXISTS source_watermark (
		id bigserial PRIMARY KEY,
		name text NOT NULL,
		last_run_at timestamp,
		created_at timestamp NOT NULL DEFAULT (now() at time zone 'utc'),
		edited_at timestamp NOT NULL DEFAULT (now() at time zone 'utc')
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ix_source_watermark_name_lower ON source_watermark (lower(name))`,
	`CREATE TABLE IF NOT EXISTS valid_location_codes (code text PRIMARY KEY)`,
}

// EnsureSchema creates the tables and indexes when missing and refreshes the
// location-code vocabulary from the embedded reference data. Safe to run on
// every process start.
func EnsureSchema(ctx context.Context, pool PgxPool, locationCodes []string) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("op=postgres.ensure_schema: %w: %v", domain.ErrDatabase, err)
		}
	}
	if len(locationCodes) == 0 {
		return nil
	}
	_, err := pool.Exec(ctx,
		`INSERT INTO valid_location_codes (code) SELECT unnest($1::text[]) ON CONFLICT (code) DO NOTHING`,
		locationCodes)
	if err != nil {
		return fmt.Errorf("op=postgres.seed_location_codes: %w: %v", domain.ErrDatabase, err)
	}
	return nil
}

// SetupDatabase bootstraps the role and database for a fresh deployment,
// connecting with administrator credentials. CREATE DATABASE cannot run in a
// transaction, so each statement is executed on its own.
func SetupDatabase(ctx context.Context, adminDSN, dbName, username, password string) error {
	conn, err := pgx.Connect(ctx, adminDSN)
	if err != nil {
		return fmt.Errorf("op=postgres.setup_db: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	stmts := []string{
		fmt.Sprintf(`CREATE ROLE %s WITH LOGIN PASSWORD %s CREATEDB`,
			pgx.Identifier{username}.Sanitize(), quoteLiteral(password)),
		fmt.Sprintf(`CREATE DATABASE %s WITH OWNER %s`,
			pgx.Identifier{dbName}.Sanitize(), pgx.Identifier{username}.Sanitize()),
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("op=postgres.setup_db: %w", err)
		}
	}
	slog.Info("database setup completed", slog.String("database", dbName), slog.String("username", username))
	return nil
}

// quoteLiteral renders a string literal for statements that cannot take bind
// parameters (CREATE ROLE).
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

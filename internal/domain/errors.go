package domain

import "errors"

// Sentinel errors used across adapters and usecases. Wrap with
// fmt.Errorf("op=...: %w", err) and test with errors.Is.
var (
	// ErrInvalidArgument indicates the caller passed a bad input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration indicates a usage error: unknown source name,
	// conflicting CLI flags, missing required credentials.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransientNetwork marks connect/read failures, HTTP 429 and 5xx.
	// Operations wrapped with it are safe to retry.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrUpstreamBlocked marks anti-bot denials (403/422) surfaced through
	// the scraping gateway.
	ErrUpstreamBlocked = errors.New("upstream blocked")
	// ErrListingGone marks a retired listing (HTTP 410). Detail-page
	// fetchers degrade to "no extra info" instead of failing the listing.
	ErrListingGone = errors.New("listing gone")
	// ErrInvalidSalary indicates a compensation string that could not be
	// parsed; the listing is kept with null salary fields.
	ErrInvalidSalary = errors.New("invalid salary")
	// ErrInvalidLocation indicates a location name with no ISO code; the
	// name is dropped from the listing's location set.
	ErrInvalidLocation = errors.New("invalid location")
	// ErrSchemaMismatch indicates an unexpected source document shape; the
	// affected listing is dropped and the error reported.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrDatabase indicates a persistence failure; the source run is
	// treated as failed and its watermark is not advanced.
	ErrDatabase = errors.New("database error")
)

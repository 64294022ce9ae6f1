package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/jobfeed/internal/adapter/ai"
	"github.com/fairyhunter13/jobfeed/internal/adapter/fx"
	httpserver "github.com/fairyhunter13/jobfeed/internal/adapter/httpserver"
	"github.com/fairyhunter13/jobfeed/internal/adapter/observability"
	"github.com/fairyhunter13/jobfeed/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/jobfeed/internal/adapter/source"
	"github.com/fairyhunter13/jobfeed/internal/adapter/source/refdata"
	"github.com/fairyhunter13/jobfeed/internal/config"
	"github.com/fairyhunter13/jobfeed/internal/domain"
	"github.com/fairyhunter13/jobfeed/internal/usecase"
)

// App bundles the wired application: configuration, infrastructure clients,
// repositories and the pipeline services the commands drive.
type App struct {
	Cfg      config.Config
	Pool     *pgxpool.Pool
	Resolver *refdata.Resolver
	Sources  map[string]domain.Source
	Store    *postgres.ListingRepo
	Marks    *postgres.WatermarkRepo
	Ingest   usecase.IngestService
	Backfill usecase.TagBackfillService
	Purge    usecase.PurgeService

	shutdowns []func()
}

// Bootstrap loads configuration, sets up logging, metrics, error reporting
// and tracing, connects the database, ensures the schema and wires the
// pipeline services. Call Close when done.
func Bootstrap(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	a := &App{Cfg: cfg}

	flushSentry, err := observability.SetupSentry(cfg)
	if err != nil {
		return nil, err
	}
	a.shutdowns = append(a.shutdowns, flushSentry)

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	} else if shutdownTracer != nil {
		a.shutdowns = append(a.shutdowns, func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracer(sctx)
		})
	}

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("op=app.Bootstrap: %w", err)
	}
	a.Pool = pool
	a.shutdowns = append(a.shutdowns, pool.Close)

	resolver, err := refdata.Load(cfg.DefaultLocale)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Resolver = resolver

	if err := postgres.EnsureSchema(ctx, pool, resolver.ValidLocationCodes()); err != nil {
		a.Close()
		return nil, err
	}

	a.Store = postgres.NewListingRepo(pool)
	a.Marks = postgres.NewWatermarkRepo(pool, source.Names())
	rates := fx.New(cfg.DefaultCurrency, cfg.DefaultHTTPTimeout)
	a.Sources = source.BuildAll(source.NewDeps(cfg, resolver, rates, a.Store))

	a.Ingest = usecase.NewIngestService(a.Sources, a.Store, a.Marks, resolver.ValidLocationCodes(), cfg.RetentionWindow())
	a.Backfill = usecase.NewTagBackfillService(a.Store, ai.New(cfg), cfg.FillTagsBatchSize)
	a.Purge = usecase.NewPurgeService(a.Store, cfg.RetentionWindow())
	return a, nil
}

// Close releases resources in reverse construction order.
func (a *App) Close() {
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		a.shutdowns[i]()
	}
	a.shutdowns = nil
}

// Server builds the query API server over the wired dependencies.
func (a *App) Server() *httpserver.Server {
	return httpserver.NewServer(
		a.Cfg,
		a.Store,
		a.Resolver,
		source.BaseURLs(a.Sources),
		a.Resolver.SymbolFor(a.Cfg.DefaultCurrency),
		BuildDBCheck(a.Pool),
	)
}

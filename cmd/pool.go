package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/propmap/internal/config"
	"github.com/sells-group/propmap/internal/db"
	"github.com/sells-group/propmap/internal/summary"
)

// openPool connects to store.database_url.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	return db.Connect(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
}

// openSink returns the configured summary store. pool is non-nil only for
// the postgres driver and must be closed by the caller after the sink.
func openSink(ctx context.Context) (summary.Sink, *pgxpool.Pool, error) {
	switch cfg.Store.Driver {
	case config.DriverJSON:
		return summary.NewFileStore(cfg.Store.SummaryPath), nil, nil
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o755); err != nil {
			return nil, nil, eris.Wrap(err, "create sqlite dir")
		}
		s, err := summary.NewSQLite(ctx, cfg.Store.SQLitePath)
		return s, nil, err
	case config.DriverPostgres:
		pool, err := openPool(ctx)
		if err != nil {
			return nil, nil, err
		}
		return summary.NewPostgres(pool), pool, nil
	default:
		return nil, nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/landsift/mindthegap/internal/store"
)

// env bundles the stores a command needs, built from config.
type env struct {
	pool        *pgxpool.Pool
	data        store.DataStore
	checkpoints store.CheckpointStore
}

func (e *env) Close() {
	if e.checkpoints != nil {
		_ = e.checkpoints.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
}

// initEnv connects the configured backend. The postgres driver carries both
// the data store and the checkpoint; anything else gets a SQLite checkpoint
// and no data store.
func initEnv(ctx context.Context) (*env, error) {
	if cfg.Store.Driver != "postgres" {
		cp, err := store.NewSQLiteCheckpoint(cfg.Store.CheckpointPath)
		if err != nil {
			return nil, err
		}
		return &env{checkpoints: cp}, nil
	}

	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("no database_url configured (set store.database_url or MTG_STORE_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping database")
	}

	pg := store.NewPostgresStore(pool, cfg.Store.Dataset, cfg.Store.BoundaryBuffer)
	return &env{pool: pool, data: pg, checkpoints: pg}, nil
}

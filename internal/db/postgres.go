package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// pingTimeout bounds the connectivity check made by Open.
const pingTimeout = 5 * time.Second

// Open opens a connection pool for the target and verifies it with a ping.
// Caller must call Close when done. On ping failure the pool is closed before returning.
func Open(ctx context.Context, target Target) (*sql.DB, error) {
	if target.Driver == "" {
		return nil, ErrMissingTarget
	}
	db, err := sql.Open(target.Driver, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target, err)
	}

	// One leased connection per run; keep a spare for the pool's own bookkeeping.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", target, err)
	}
	return db, nil
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pressly/goose/v3/lock"
)

// unlockTimeout bounds the advisory unlock made during Release, which runs even after the run context is done.
const unlockTimeout = 10 * time.Second

var (
	// ErrLock is wrapped by Acquire when the advisory lock could not be taken.
	ErrLock = errors.New("advisory lock not acquired")
	// ErrReleased is returned by Exec on a handle that has already been released.
	ErrReleased = errors.New("connection handle already released")
)

// Handle is a leased database connection. It is owned by a single caller until Release.
type Handle interface {
	// Exec submits sqlText as one unit. With no arguments the engine splits multi-statement text itself.
	Exec(ctx context.Context, sqlText string) error
	// Release returns the connection and closes the pool behind it. Calls after the first are no-ops returning nil.
	Release() error
}

// Provider leases connection handles for a target.
type Provider interface {
	Acquire(ctx context.Context, target Target) (Handle, error)
}

// Option configures an SQLProvider.
type Option func(*SQLProvider)

// WithAdvisoryLock makes Acquire take a session-level Postgres advisory lock with the given key
// on the leased connection. Non-Postgres targets ignore it.
func WithAdvisoryLock(lockID int64) Option {
	return func(p *SQLProvider) { p.lockID = lockID }
}

// SQLProvider opens a database/sql pool per acquisition and leases one connection from it.
type SQLProvider struct {
	lockID int64
}

// NewProvider returns an SQLProvider configured with opts.
func NewProvider(opts ...Option) *SQLProvider {
	p := &SQLProvider{}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Acquire opens the pool, leases a connection and, when configured, takes the advisory lock.
// Anything opened before a failure is closed before Acquire returns.
func (p *SQLProvider) Acquire(ctx context.Context, target Target) (Handle, error) {
	pool, err := Open(ctx, target)
	if err != nil {
		return nil, err
	}
	conn, err := pool.Conn(ctx)
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("lease connection to %s: %w", target, err)
	}
	h := &sqlHandle{target: target, pool: pool, conn: conn}

	if p.lockID != 0 && target.Engine == EnginePostgres {
		locker, err := lock.NewPostgresSessionLocker(lock.WithLockID(p.lockID))
		if err != nil {
			_ = h.Release()
			return nil, fmt.Errorf("%w: %v", ErrLock, err)
		}
		if err := locker.SessionLock(ctx, conn); err != nil {
			_ = h.Release()
			return nil, fmt.Errorf("%w: key %d on %s: %v", ErrLock, p.lockID, target, err)
		}
		h.locker = locker
	}
	return h, nil
}

type sqlHandle struct {
	target Target
	pool   *sql.DB
	conn   *sql.Conn
	locker lock.SessionLocker

	mu       sync.Mutex
	released bool
}

func (h *sqlHandle) Exec(ctx context.Context, sqlText string) error {
	h.mu.Lock()
	released := h.released
	h.mu.Unlock()
	if released {
		return ErrReleased
	}
	_, err := h.conn.ExecContext(ctx, sqlText)
	return err
}

func (h *sqlHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true

	var errs []error
	if h.locker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		if err := h.locker.SessionUnlock(ctx, h.conn); err != nil {
			// The server drops session locks when the connection closes, so this is not fatal.
			log.Printf("db: advisory unlock on %s: %v", h.target, err)
		}
		cancel()
	}
	if err := h.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}
	if err := h.pool.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pool: %w", err))
	}
	return errors.Join(errs...)
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

type PoolConfig struct {
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetimeS int
	ConnMaxIdleTimeS int
}

func NewPostgresDB(ctx context.Context, databaseURL string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresDB: open: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeS) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(pool.ConnMaxIdleTimeS) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewPostgresDB: ping: %w", err)
	}

	return db, nil
}

// Connect retries NewPostgresDB until the database answers, attempts run out
// or ctx is done. Containers routinely start the API before Postgres accepts
// connections.
func Connect(ctx context.Context, databaseURL string, pool PoolConfig, attempts int, interval time.Duration) (*sql.DB, error) {
	attempts = max(attempts, 1)
	var err error
	for i := range attempts {
		var db *sql.DB
		db, err = NewPostgresDB(ctx, databaseURL, pool)
		if err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1, "error", err)
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("Connect: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, fmt.Errorf("Connect: gave up after %d attempts: %w", attempts, err)
}

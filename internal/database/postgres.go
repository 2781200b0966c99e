package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	newPoolFn  = pgxpool.New
	pingPoolFn = func(ctx context.Context, pool *pgxpool.Pool) error { return pool.Ping(ctx) }
)

// ConnectPostgres opens a pool to the remote primary store and verifies it
func ConnectPostgres(url string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := newPoolFn(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pingPoolFn(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// MigratePostgres applies the embedded postgres schema. The statements are
// idempotent, so it runs on every start.
func MigratePostgres(ctx context.Context, q Querier) error {
	migrations, err := loadMigrations("migrations/postgres")
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if _, err := q.Exec(ctx, migration.SQL); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
		log.Printf("Applied postgres migration %d: %s", migration.Version, migration.Name)
	}
	return nil
}

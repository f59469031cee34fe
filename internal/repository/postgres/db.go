package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andresuchdata/pricing-model/backend-go/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const defaultMaxConcurrentTx = 10

type DB struct {
	*sqlx.DB
	sem *semaphore.Weighted
}

var (
	dbInstance *DB
	once       sync.Once
)

// NewDB opens the shared pool for the configured Postgres database.
func NewDB(cfg *config.DatabaseConfig) (*DB, error) {
	var err error
	once.Do(func() {
		connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

		var db *sqlx.DB
		db, err = sqlx.Connect("postgres", connStr)
		if err != nil {
			return
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		dbInstance = Wrap(db, defaultMaxConcurrentTx)
	})

	return dbInstance, err
}

// Wrap adopts an existing handle, e.g. a pgx pool opened through database/sql
// or an in-memory database in tests.
func Wrap(db *sqlx.DB, maxConcurrentTx int64) *DB {
	if maxConcurrentTx <= 0 {
		maxConcurrentTx = defaultMaxConcurrentTx
	}
	return &DB{DB: db, sem: semaphore.NewWeighted(maxConcurrentTx)}
}

// WithTx runs fn inside a transaction, bounded by the pool's semaphore.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("could not acquire semaphore: %w", err)
	}
	defer db.sem.Release(1)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("could not rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/curtistech/unlock-server/internal/config"
)

// DB is the Postgres handle behind the ledger's postgres backend.
type DB struct {
	*sqlx.DB
}

// Connect opens a pooled connection and verifies it within ctx.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(config.DBMaxOpenConns)
	db.SetMaxIdleConns(config.DBMaxIdleConns)
	db.SetConnMaxLifetime(config.DBConnMaxLifetime)

	log.Debug().
		Int("maxOpen", config.DBMaxOpenConns).
		Int("maxIdle", config.DBMaxIdleConns).
		Msg("postgres pool configured")

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// inTx runs fn in one transaction. Any error or panic rolls it back.
func (db *DB) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

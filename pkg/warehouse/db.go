// Package warehouse loads reconciled record batches into Postgres with
// idempotent replace-on-conflict semantics. It is the only component that
// mutates warehouse tables.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// DB wraps the warehouse connection pool.
type DB struct {
	Conn   *sqlx.DB
	Logger *zap.Logger
}

// New connects to the warehouse and verifies the connection.
func New(ctx context.Context, dsn string, logger *zap.Logger) (*DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect warehouse: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)
	return &DB{Conn: conn, Logger: logger}, nil
}

// Close releases the connection pool.
func (db *DB) Close() error {
	return db.Conn.Close()
}

// EnsureSchema creates the named schema when missing.
func (db *DB) EnsureSchema(ctx context.Context, schema string) error {
	if _, err := db.Conn.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(schema)); err != nil {
		return fmt.Errorf("ensure schema %s: %w", schema, err)
	}
	return nil
}

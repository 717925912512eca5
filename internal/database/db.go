package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

type Config struct {
	// URL takes precedence over the individual connection fields.
	URL         string
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
}

func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

func New(ctx context.Context, cfg Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLife > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLife
	}
	if cfg.MaxConnIdle > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdle
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// Transaction runs fn in a transaction and rolls back when fn fails.
func (db *DB) Transaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("tx rollback failed: %v (original error: %w)", rbErr, err)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (db *DB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return db.pool.Exec(ctx, sql, args...)
}

func (db *DB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

func (db *DB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

// Migrate creates the tables used by the record and outbox repositories.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS price_record (
	id             BIGSERIAL PRIMARY KEY,
	run_id         UUID          NOT NULL,
	source         TEXT          NOT NULL,
	record_key     TEXT          NOT NULL,
	external_id    TEXT,
	name           TEXT          NOT NULL,
	brand          TEXT,
	current_price  NUMERIC(10,2) NOT NULL CHECK (current_price >= 0),
	previous_price NUMERIC(10,2),
	packaging_text TEXT,
	unit_price     NUMERIC(10,2),
	unit_base      TEXT,
	category       TEXT,
	promo_label    TEXT,
	promo_until    TEXT,
	available      BOOLEAN,
	image_ref      TEXT,
	detail_url     TEXT,
	captured_at    TIMESTAMPTZ   NOT NULL,
	UNIQUE (record_key, captured_at)
);

CREATE INDEX IF NOT EXISTS price_record_source_captured_idx ON price_record (source, captured_at DESC);

CREATE TABLE IF NOT EXISTS outbox_event (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT        NOT NULL,
	aggregate_id   TEXT        NOT NULL,
	event_type     TEXT        NOT NULL,
	payload        JSONB       NOT NULL,
	target_stream  TEXT        NOT NULL,
	status         TEXT        NOT NULL,
	retry_count    INT         NOT NULL DEFAULT 0,
	error_message  TEXT,
	created_at     TIMESTAMPTZ NOT NULL,
	processed_at   TIMESTAMPTZ,
	next_retry_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS outbox_event_pending_idx ON outbox_event (status, next_retry_at);
`

// Package database provides PostgreSQL connection management using pgx.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NewPool creates and validates a pgxpool connection pool.
// It retries up to 5 times to accommodate containers starting up.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		logger.Warn("db connect attempt failed, retrying in 2s",
			zap.Int("attempt", attempt), zap.Int("max", 5), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("connect to postgres: %w", err)
}

// schema is idempotent. The CHECK on ticket_tiers backs the no-oversell
// rule in the database itself; the unique index on tickets.code backs code
// uniqueness.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	name        VARCHAR(150) NOT NULL,
	description TEXT NOT NULL,
	venue       VARCHAR(150) NOT NULL,
	starts_at   TIMESTAMPTZ NOT NULL,
	ends_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ticket_tiers (
	id             TEXT PRIMARY KEY,
	event_id       TEXT NOT NULL REFERENCES events(id),
	name           VARCHAR(50) NOT NULL,
	price          BIGINT NOT NULL CHECK (price >= 0),
	total_quantity INTEGER NOT NULL CHECK (total_quantity > 0),
	sold_quantity  INTEGER NOT NULL DEFAULT 0,
	CHECK (sold_quantity >= 0 AND sold_quantity <= total_quantity)
);

CREATE TABLE IF NOT EXISTS orders (
	id             TEXT PRIMARY KEY,
	buyer_name     VARCHAR(100) NOT NULL,
	buyer_email    VARCHAR(120) NOT NULL,
	buyer_phone    VARCHAR(20) NOT NULL,
	tier_id        TEXT NOT NULL REFERENCES ticket_tiers(id),
	quantity       INTEGER NOT NULL CHECK (quantity >= 1),
	amount         BIGINT NOT NULL,
	payment_method VARCHAR(20) NOT NULL,
	payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
	provider_ref   VARCHAR(255) NOT NULL DEFAULT '',
	issued_at      TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS orders_provider_ref_idx ON orders (payment_method, provider_ref);

CREATE TABLE IF NOT EXISTS tickets (
	id         TEXT PRIMARY KEY,
	order_id   TEXT NOT NULL REFERENCES orders(id),
	tier_id    TEXT NOT NULL REFERENCES ticket_tiers(id),
	code       VARCHAR(50) NOT NULL UNIQUE,
	status     VARCHAR(20) NOT NULL DEFAULT 'valid',
	visual_ref VARCHAR(200) NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS tickets_order_id_idx ON tickets (order_id);
`

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosight/gosight/carttracker/internal/config"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS cart_events (
	event_id        UUID PRIMARY KEY,
	event           TEXT NOT NULL,
	timestamp       TIMESTAMPTZ NOT NULL,
	received_at     TIMESTAMPTZ NOT NULL,
	product_id      BIGINT,
	variant_id      BIGINT,
	quantity        BIGINT,
	details         JSONB,
	client_ip       TEXT,
	user_agent      TEXT,
	browser         TEXT,
	browser_version TEXT,
	os              TEXT,
	device_type     TEXT,
	country         TEXT,
	city            TEXT
)`

type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	db, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) Write(ctx context.Context, rec *Record) error {
	var details interface{}
	if len(rec.Details) > 0 {
		details = string(rec.Details)
	}

	_, err := p.db.Exec(ctx, `
		INSERT INTO cart_events (
			event_id, event, timestamp, received_at, product_id, variant_id, quantity,
			details, client_ip, user_agent, browser, browser_version, os, device_type,
			country, city
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (event_id) DO NOTHING
	`,
		rec.EventID, rec.Event, rec.Timestamp, rec.ReceivedAt,
		rec.ProductID, rec.VariantID, rec.Quantity,
		details, rec.ClientIP, rec.UserAgent, rec.Browser, rec.BrowserVersion,
		rec.OS, rec.DeviceType, rec.Country, rec.City,
	)
	if err != nil {
		return fmt.Errorf("insert cart event: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}

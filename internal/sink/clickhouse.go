package sink

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/gosight/gosight/carttracker/internal/config"
)

const clickhouseSchema = `
CREATE TABLE IF NOT EXISTS cart_events (
	event_id        UUID,
	event           LowCardinality(String),
	timestamp       DateTime64(3, 'UTC'),
	received_at     DateTime64(3, 'UTC'),
	product_id      Nullable(Int64),
	variant_id      Nullable(Int64),
	quantity        Nullable(Int64),
	details         String,
	client_ip       String,
	user_agent      String,
	browser         LowCardinality(String),
	browser_version String,
	os              LowCardinality(String),
	device_type     LowCardinality(String),
	country         LowCardinality(String),
	city            String
) ENGINE = MergeTree
ORDER BY (event, timestamp)`

type ClickHouse struct {
	conn driver.Conn
}

func NewClickHouse(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	if err := conn.Exec(ctx, clickhouseSchema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &ClickHouse{conn: conn}, nil
}

func (c *ClickHouse) Write(ctx context.Context, rec *Record) error {
	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO cart_events (
			event_id, event, timestamp, received_at, product_id, variant_id, quantity,
			details, client_ip, user_agent, browser, browser_version, os, device_type,
			country, city
		)
	`)
	if err != nil {
		return err
	}

	err = batch.Append(
		rec.EventID, rec.Event, rec.Timestamp, rec.ReceivedAt,
		rec.ProductID, rec.VariantID, rec.Quantity,
		string(rec.Details), rec.ClientIP, rec.UserAgent, rec.Browser, rec.BrowserVersion,
		rec.OS, rec.DeviceType, rec.Country, rec.City,
	)
	if err != nil {
		return err
	}

	return batch.Send()
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}

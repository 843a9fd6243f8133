package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cart_events (
	event_id        TEXT PRIMARY KEY,
	event           TEXT NOT NULL,
	timestamp       TEXT NOT NULL,
	received_at     TEXT NOT NULL,
	product_id      INTEGER,
	variant_id      INTEGER,
	quantity        INTEGER,
	details         TEXT,
	client_ip       TEXT,
	user_agent      TEXT,
	browser         TEXT,
	browser_version TEXT,
	os              TEXT,
	device_type     TEXT,
	country         TEXT,
	city            TEXT
);
CREATE INDEX IF NOT EXISTS idx_cart_events_event ON cart_events(event, timestamp);
`

// SQLite stores records in a local database file.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Write(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_events (
			event_id, event, timestamp, received_at, product_id, variant_id, quantity,
			details, client_ip, user_agent, browser, browser_version, os, device_type,
			country, city
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.EventID, rec.Event,
		rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.ReceivedAt.UTC().Format(time.RFC3339Nano),
		nullableInt(rec.ProductID), nullableInt(rec.VariantID), nullableInt(rec.Quantity),
		string(rec.Details), rec.ClientIP, rec.UserAgent, rec.Browser, rec.BrowserVersion,
		rec.OS, rec.DeviceType, rec.Country, rec.City,
	)
	if err != nil {
		return fmt.Errorf("insert cart event: %w", err)
	}
	return nil
}

// CountByEvent returns the number of stored records per event kind.
func (s *SQLite) CountByEvent(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event, COUNT(*) FROM cart_events GROUP BY event`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var event string
		var n int
		if err := rows.Scan(&event, &n); err != nil {
			return nil, err
		}
		counts[event] = n
	}
	return counts, rows.Err()
}

// Get loads one record by event id.
func (s *SQLite) Get(ctx context.Context, eventID string) (*Record, error) {
	var rec Record
	var ts, received string
	var productID, variantID, quantity sql.NullInt64
	var details sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT event_id, event, timestamp, received_at, product_id, variant_id, quantity,
			details, client_ip, user_agent, browser, browser_version, os, device_type, country, city
		FROM cart_events WHERE event_id = ?
	`, eventID).Scan(
		&rec.EventID, &rec.Event, &ts, &received, &productID, &variantID, &quantity,
		&details, &rec.ClientIP, &rec.UserAgent, &rec.Browser, &rec.BrowserVersion,
		&rec.OS, &rec.DeviceType, &rec.Country, &rec.City,
	)
	if err != nil {
		return nil, err
	}

	rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	rec.ReceivedAt, _ = time.Parse(time.RFC3339Nano, received)
	rec.ProductID = int64Ptr(productID)
	rec.VariantID = int64Ptr(variantID)
	rec.Quantity = int64Ptr(quantity)
	if details.Valid && details.String != "" {
		rec.Details = []byte(details.String)
	}
	return &rec, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

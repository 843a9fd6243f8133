// Package sink stores cart events received by the collector.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gosight/gosight/carttracker/internal/config"
)

// Record is one received cart event plus what the collector learned about
// the reporting client.
type Record struct {
	EventID        string          `json:"event_id"`
	Event          string          `json:"event"`
	Timestamp      time.Time       `json:"timestamp"`
	ReceivedAt     time.Time       `json:"received_at"`
	ProductID      *int64          `json:"product_id,omitempty"`
	VariantID      *int64          `json:"variant_id,omitempty"`
	Quantity       *int64          `json:"quantity,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
	ClientIP       string          `json:"client_ip,omitempty"`
	UserAgent      string          `json:"user_agent,omitempty"`
	Browser        string          `json:"browser"`
	BrowserVersion string          `json:"browser_version"`
	OS             string          `json:"os"`
	DeviceType     string          `json:"device_type"`
	Country        string          `json:"country"`
	City           string          `json:"city"`
}

// Sink persists or forwards records.
type Sink interface {
	Write(ctx context.Context, rec *Record) error
	Close() error
}

// Open builds the sink selected by cfg.Sink.Driver.
func Open(ctx context.Context, cfg *config.Config) (Sink, error) {
	switch cfg.Sink.Driver {
	case "sqlite":
		return NewSQLite(ctx, cfg.SQLite.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.Postgres)
	case "clickhouse":
		return NewClickHouse(ctx, cfg.ClickHouse)
	case "kafka":
		return NewKafka(cfg.Kafka)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown sink driver %q", cfg.Sink.Driver)
	}
}

// Memory keeps records in process. Useful for tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Write(_ context.Context, rec *Record) error {
	m.mu.Lock()
	m.records = append(m.records, *rec)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

func (m *Memory) Close() error {
	return nil
}

func nullableInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

package sink

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/gosight/gosight/carttracker/internal/config"
)

func setupSQLite(t *testing.T) (*SQLite, func()) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events", "cart.db")
	s, err := NewSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to open sqlite sink: %v", err)
	}

	return s, func() { s.Close() }
}

func int64p(v int64) *int64 { return &v }

func TestSQLiteWriteAndGet(t *testing.T) {
	s, cleanup := setupSQLite(t)
	defer cleanup()
	ctx := context.Background()

	ts := time.Date(2026, 10, 18, 12, 0, 0, 123e6, time.UTC)
	rec := &Record{
		EventID:    "4b8f3c1e-6a2d-4f0e-9c1b-2d3e4f5a6b7c",
		Event:      "add_to_cart_success",
		Timestamp:  ts,
		ReceivedAt: ts.Add(time.Second),
		ProductID:  int64p(42),
		VariantID:  int64p(7),
		Quantity:   int64p(2),
		Details:    json.RawMessage(`{"product_id":42,"variant_id":7,"quantity":2}`),
		ClientIP:   "203.0.113.9",
		DeviceType: "desktop",
	}

	if err := s.Write(ctx, rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := s.Get(ctx, rec.EventID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Event != rec.Event {
		t.Errorf("Expected event %s, got %s", rec.Event, got.Event)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Expected timestamp %v, got %v", ts, got.Timestamp)
	}
	if got.ProductID == nil || *got.ProductID != 42 {
		t.Errorf("Expected product_id 42, got %v", got.ProductID)
	}
	if got.Quantity == nil || *got.Quantity != 2 {
		t.Errorf("Expected quantity 2, got %v", got.Quantity)
	}
	if string(got.Details) != string(rec.Details) {
		t.Errorf("Expected details %s, got %s", rec.Details, got.Details)
	}
	if got.ClientIP != "203.0.113.9" || got.DeviceType != "desktop" {
		t.Errorf("Client info not stored: %+v", got)
	}
}

func TestSQLiteNullDetails(t *testing.T) {
	s, cleanup := setupSQLite(t)
	defer cleanup()
	ctx := context.Background()

	rec := &Record{EventID: "click-1", Event: "add_to_cart_click", Timestamp: time.Now(), ReceivedAt: time.Now()}
	if err := s.Write(ctx, rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := s.Get(ctx, "click-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ProductID != nil || got.VariantID != nil || got.Quantity != nil {
		t.Errorf("Expected nil ids for click event, got %+v", got)
	}
	if got.Details != nil {
		t.Errorf("Expected nil details, got %s", got.Details)
	}
}

func TestSQLiteCountByEvent(t *testing.T) {
	s, cleanup := setupSQLite(t)
	defer cleanup()
	ctx := context.Background()

	events := []struct{ id, kind string }{
		{"a", "add_to_cart_click"},
		{"b", "add_to_cart_click"},
		{"c", "add_to_cart_success"},
	}
	for _, e := range events {
		if err := s.Write(ctx, &Record{EventID: e.id, Event: e.kind, Timestamp: time.Now(), ReceivedAt: time.Now()}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	counts, err := s.CountByEvent(ctx)
	if err != nil {
		t.Fatalf("CountByEvent failed: %v", err)
	}
	if counts["add_to_cart_click"] != 2 || counts["add_to_cart_success"] != 1 {
		t.Errorf("Unexpected counts %v", counts)
	}
}

func TestSQLiteDuplicateEventID(t *testing.T) {
	s, cleanup := setupSQLite(t)
	defer cleanup()
	ctx := context.Background()

	rec := &Record{EventID: "dup", Event: "add_to_cart_click", Timestamp: time.Now(), ReceivedAt: time.Now()}
	if err := s.Write(ctx, rec); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := s.Write(ctx, rec); err == nil {
		t.Error("Expected primary key violation on duplicate event id")
	}
}

func TestMemorySink(t *testing.T) {
	m := NewMemory()
	m.Write(context.Background(), &Record{EventID: "1", Event: "add_to_cart_click"})
	m.Write(context.Background(), &Record{EventID: "2", Event: "add_to_cart_success"})

	recs := m.Records()
	if len(recs) != 2 || recs[1].EventID != "2" {
		t.Errorf("Unexpected records %+v", recs)
	}
}

func TestOpenDrivers(t *testing.T) {
	cfg := config.Default()
	ctx := context.Background()

	cfg.Sink.Driver = "memory"
	s, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open memory failed: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("Expected *Memory, got %T", s)
	}

	cfg.Sink.Driver = "sqlite"
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "cart.db")
	s, err = Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open sqlite failed: %v", err)
	}
	s.Close()

	cfg.Sink.Driver = "kafka"
	cfg.Kafka.Brokers = nil
	if _, err := Open(ctx, cfg); err == nil {
		t.Error("Expected error for kafka without brokers")
	}

	cfg.Sink.Driver = "kafka"
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	s, err = Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open kafka failed: %v", err)
	}
	s.Close()

	cfg.Sink.Driver = "mongo"
	if _, err := Open(ctx, cfg); err == nil {
		t.Error("Expected error for unknown driver")
	}
}

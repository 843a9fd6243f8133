package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/gosight/gosight/carttracker/internal/config"
	"github.com/gosight/gosight/carttracker/internal/tracker"
)

const cartAddJSON = `{"id":42,"variant_id":7,"quantity":2}`

const productHTML = `<html><body><button name="add">Add to cart</button></body></html>`

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("Failed to gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to gzip: %v", err)
	}
	return buf.Bytes()
}

func setupProxy(t *testing.T) (*httptest.Server, func() []map[string]interface{}, *tracker.Tracker) {
	t.Helper()

	var mu sync.Mutex
	var events []map[string]interface{}
	metrics := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e map[string]interface{}
		json.NewDecoder(r.Body).Decode(&e)
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(metrics.Close)

	store := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cart/add.js":
			w.Header().Set("Content-Type", "application/json")
			if r.URL.Query().Get("encoding") == "gzip" {
				w.Header().Set("Content-Encoding", "gzip")
				w.Write(gzipBytes(t, cartAddJSON))
				return
			}
			w.Write([]byte(cartAddJSON))
		case "/products/mug":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(productHTML))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(store.Close)

	tr := tracker.New(metrics.URL+"/api/metrics/cart-events", nil, tracker.WithLogger(zerolog.Nop()))
	p, err := New(store.URL, tr, nil, config.DefaultSelectors)
	if err != nil {
		t.Fatalf("Failed to create proxy: %v", err)
	}

	srv := httptest.NewServer(p.Handler())
	t.Cleanup(srv.Close)

	snapshot := func() []map[string]interface{} {
		mu.Lock()
		defer mu.Unlock()
		return append([]map[string]interface{}(nil), events...)
	}
	return srv, snapshot, tr
}

func TestProxyReportsCartAdd(t *testing.T) {
	srv, events, tr := setupProxy(t)

	resp, err := http.Post(srv.URL+"/cart/add.js", "application/json", strings.NewReader(`{"id":7,"quantity":2}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	tr.Wait()

	if string(body) != cartAddJSON {
		t.Errorf("Shopper received altered body %q", body)
	}

	got := events()
	if len(got) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(got))
	}
	if got[0]["event"] != "add_to_cart_success" || got[0]["product_id"] != float64(42) {
		t.Errorf("Unexpected event %v", got[0])
	}
}

func TestProxyReportsGzippedCartAdd(t *testing.T) {
	srv, events, tr := setupProxy(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/cart/add.js?encoding=gzip", strings.NewReader(`{"id":7,"quantity":2}`))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	tr.Wait()

	if resp.Header.Get("Content-Encoding") != "gzip" {
		t.Errorf("Expected gzip response, got encoding %q", resp.Header.Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Shopper body is not gzip: %v", err)
	}
	plain, _ := io.ReadAll(zr)
	if string(plain) != cartAddJSON {
		t.Errorf("Shopper received altered body %q", plain)
	}

	got := events()
	if len(got) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(got))
	}
	if got[0]["event"] != "add_to_cart_success" || got[0]["product_id"] != float64(42) {
		t.Errorf("Unexpected event %v", got[0])
	}
}

func TestProxyPassesPagesThrough(t *testing.T) {
	srv, events, tr := setupProxy(t)

	resp, err := http.Get(srv.URL + "/products/mug")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	tr.Wait()

	if string(body) != productHTML {
		t.Errorf("Page altered: %q", body)
	}
	if len(events()) != 0 {
		t.Errorf("Expected no events for a page view, got %d", len(events()))
	}

	resp, err = http.Get(srv.URL + "/missing")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected upstream 404, got %d", resp.StatusCode)
	}
}

func TestProxyHealth(t *testing.T) {
	srv, _, _ := setupProxy(t)

	resp, err := http.Get(srv.URL + "/__tracker/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestNewRejectsRelativeUpstream(t *testing.T) {
	tr := tracker.New("http://metrics.test/", nil, tracker.WithLogger(zerolog.Nop()))
	if _, err := New("/shop", tr, nil, nil); err == nil {
		t.Error("Expected error for relative upstream")
	}
}

package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

const testPage = `<html><body>
  <button name="add" id="main-add">Add to cart</button>
  <button class="btn additional-btn">Add bundle</button>
  <button name="share">Share</button>
</body></html>`

func writePage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "product.html")
	if err := os.WriteFile(path, []byte(testPage), 0o644); err != nil {
		t.Fatalf("Failed to write page: %v", err)
	}
	return path
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Reset flag state shared across runs
	configPath, verbose = "", false
	simClicks, simCartURL, simCartBody, simEndpoint, simOrigin = 1, "", `{"quantity":1}`, "", ""
	t.Setenv("CONFIG_PATH", "")

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	if RootCmd.Use != "cartctl" {
		t.Errorf("expected Use to be 'cartctl', got '%s'", RootCmd.Use)
	}
	if RootCmd.Short == "" || RootCmd.Long == "" {
		t.Error("expected descriptions to be set")
	}

	found := map[string]bool{}
	for _, cmd := range RootCmd.Commands() {
		found[cmd.Name()] = true
	}
	for _, name := range []string{"scan", "simulate"} {
		if !found[name] {
			t.Errorf("expected command '%s' to be registered", name)
		}
	}

	if RootCmd.PersistentFlags().Lookup("config") == nil {
		t.Error("expected --config flag to be registered")
	}
}

func TestScan(t *testing.T) {
	out, err := runCmd(t, "scan", writePage(t))
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	if !strings.Contains(out, "Found 2 add to cart buttons") {
		t.Errorf("expected 2 buttons in output, got:\n%s", out)
	}
	if !strings.Contains(out, `id="main-add"`) || !strings.Contains(out, "Add bundle") {
		t.Errorf("expected button details in output, got:\n%s", out)
	}
	if strings.Contains(out, "Share") {
		t.Errorf("untracked button listed:\n%s", out)
	}
}

func TestScanMissingFile(t *testing.T) {
	if _, err := runCmd(t, "scan", filepath.Join(t.TempDir(), "nope.html")); err == nil {
		t.Error("expected error for missing page")
	}
}

func TestExplicitConfigMissing(t *testing.T) {
	_, err := runCmd(t, "scan", "--config", filepath.Join(t.TempDir(), "missing.yaml"), writePage(t))
	if err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestSimulate(t *testing.T) {
	var mu sync.Mutex
	kinds := map[string]int{}
	metrics := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e map[string]interface{}
		json.NewDecoder(r.Body).Decode(&e)
		mu.Lock()
		kinds[e["event"].(string)]++
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer metrics.Close()

	store := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":42,"variant_id":7,"quantity":1}`))
	}))
	defer store.Close()

	out, err := runCmd(t, "simulate", writePage(t),
		"--clicks", "3",
		"--origin", metrics.URL,
		"--cart-url", store.URL+"/cart/add.js",
	)
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	if !strings.Contains(out, "Dispatched 6 clicks") {
		t.Errorf("expected 6 clicks, got:\n%s", out)
	}
	if !strings.Contains(out, "Cart add returned 200") {
		t.Errorf("expected cart add status, got:\n%s", out)
	}

	mu.Lock()
	defer mu.Unlock()
	if kinds["add_to_cart_click"] != 6 {
		t.Errorf("expected 6 click events, got %d", kinds["add_to_cart_click"])
	}
	if kinds["add_to_cart_success"] != 1 {
		t.Errorf("expected 1 success event, got %d", kinds["add_to_cart_success"])
	}
}

func TestSimulateUnreachableEndpoint(t *testing.T) {
	out, err := runCmd(t, "simulate", writePage(t), "--endpoint", "http://127.0.0.1:1/metrics")
	if err != nil {
		t.Fatalf("simulate should not fail on report errors: %v", err)
	}
	if !strings.Contains(out, "Dispatched 2 clicks") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

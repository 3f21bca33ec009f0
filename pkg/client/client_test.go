package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newFakeDaemon(t *testing.T, ensureCode int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/healthz", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		out := []ServiceStatus{
			{Name: "llm-runtime", Port: 11434, State: "running", DetectedBy: "http:/api/tags", CheckedAt: time.Now()},
			{Name: "ocr", Port: 5117, State: "unreachable", CheckedAt: time.Now()},
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/api/ensure", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		sum := EnsureSummary{
			PassID:    "p1",
			StartedAt: time.Now(),
			Results: []EnsureResult{
				{Name: "llm-runtime", Port: 11434, Outcome: "already-running"},
				{Name: "ocr", Port: 5117, Outcome: "start-failed", Error: "exec: not found"},
			},
		}
		w.WriteHeader(ensureCode)
		_ = json.NewEncoder(w).Encode(sum)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestIsReachable(t *testing.T) {
	srv := newFakeDaemon(t, http.StatusOK)
	c := New(Config{BaseURL: srv.URL + "/api"})
	if !c.IsReachable(context.Background()) {
		t.Fatal("expected reachable daemon")
	}

	srv.Close()
	if c.IsReachable(context.Background()) {
		t.Fatal("expected unreachable after close")
	}
}

func TestStatus(t *testing.T) {
	srv := newFakeDaemon(t, http.StatusOK)
	c := New(Config{BaseURL: srv.URL + "/api"})
	statuses, err := c.Status(context.Background(), false)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses", len(statuses))
	}
	if statuses[0].Name != "llm-runtime" || statuses[0].State != "running" {
		t.Fatalf("unexpected first status %+v", statuses[0])
	}
}

// A 207 response still carries a decodable summary.
func TestEnsureAcceptsMultiStatus(t *testing.T) {
	srv := newFakeDaemon(t, http.StatusMultiStatus)
	c := New(Config{BaseURL: srv.URL + "/api"})
	sum, err := c.Ensure(context.Background())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if sum.PassID != "p1" || len(sum.Results) != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if !sum.Failed() {
		t.Fatal("summary with start-failed must report failure")
	}
}

func TestEnsureErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "boom"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.Ensure(context.Background())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected API error, got %v", err)
	}
}

func TestDefaults(t *testing.T) {
	c := New(Config{})
	if c.baseURL != "http://localhost:5119/api" {
		t.Fatalf("base url = %s", c.baseURL)
	}
	if c.client.Timeout != 10*time.Second {
		t.Fatalf("timeout = %v", c.client.Timeout)
	}
}

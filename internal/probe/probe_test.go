package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/loykin/aistack/internal/service"
)

// serverPort extracts the ephemeral port an httptest server bound to.
func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return port
}

// freePort binds and immediately releases an ephemeral port so the test can
// probe a port with no listener.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func TestHTTPProberHealthPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	spec := service.Spec{Name: "stt", Port: serverPort(t, srv), Command: "x", HealthPath: "/health"}
	alive, by, err := New().Probe(context.Background(), spec)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !alive {
		t.Fatal("expected alive via health path")
	}
	if by != "http:/health" {
		t.Fatalf("detected_by = %q", by)
	}
}

func TestHTTPProber5xxIsNotAlive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	spec := service.Spec{Name: "stt", Port: serverPort(t, srv), Command: "x", HealthPath: "/health"}
	p := &HTTPProber{}
	alive, _, err := p.Probe(context.Background(), spec)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if alive {
		t.Fatal("5xx health response must not count as alive")
	}
}

func TestPortProberDetectsListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	spec := service.Spec{Name: "llm", Port: port, Command: "x"}
	alive, by, err := New().Probe(context.Background(), spec)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !alive {
		t.Fatal("expected alive for bound port")
	}
	if by != "port:"+strconv.Itoa(port) {
		t.Fatalf("detected_by = %q", by)
	}
}

func TestPortProberNoListener(t *testing.T) {
	spec := service.Spec{Name: "llm", Port: freePort(t), Command: "x", ProbeTimeout: 500 * time.Millisecond}
	start := time.Now()
	alive, _, err := New().Probe(context.Background(), spec)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if alive {
		t.Fatal("expected not alive for free port")
	}
	// Refused connections resolve quickly; the probe must stay well inside
	// its timeout bound either way.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("probe took %v, expected bounded", elapsed)
	}
}

// A raw TCP listener with a health path configured: the HTTP probe fails to
// get a response, and the port heuristic takes over.
func TestCompositeFallsBackToPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port

	spec := service.Spec{
		Name: "llm", Port: port, Command: "x",
		HealthPath: "/api/tags", ProbeTimeout: 500 * time.Millisecond,
	}
	alive, by, err := New().Probe(context.Background(), spec)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !alive {
		t.Fatal("expected fallback port detection")
	}
	if !strings.HasPrefix(by, "port:") {
		t.Fatalf("detected_by = %q, want port fallback", by)
	}
}

func TestWaitReadyTimesOut(t *testing.T) {
	spec := service.Spec{Name: "llm", Port: freePort(t), Command: "x", ProbeTimeout: 100 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	err := WaitReady(ctx, New(), spec, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "not ready") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitReadySucceeds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	spec := service.Spec{Name: "llm", Port: port, Command: "x"}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := WaitReady(ctx, New(), spec, 50*time.Millisecond); err != nil {
		t.Fatalf("wait ready: %v", err)
	}
}

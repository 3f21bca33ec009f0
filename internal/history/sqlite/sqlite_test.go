package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/aistack/internal/history"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	sink, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func TestSendAndRecent(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	events := []history.Event{
		{PassID: "p1", Service: "llm-runtime", Outcome: "already-running", PID: 100, OccurredAt: base},
		{PassID: "p1", Service: "ocr", Outcome: "started", PID: 101, OccurredAt: base},
		{PassID: "p2", Service: "ocr", Outcome: "start-failed", Error: "exec: not found", OccurredAt: base.Add(time.Minute)},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	got, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events", len(got))
	}
	// Newest first.
	if got[0].PassID != "p2" {
		t.Fatalf("first event pass = %s, want p2", got[0].PassID)
	}
	if got[0].Outcome != "start-failed" || got[0].Error != "exec: not found" {
		t.Fatalf("first event = %+v", got[0])
	}
	// Empty error columns come back as "".
	if got[1].Error != "" {
		t.Fatalf("expected empty error, got %q", got[1].Error)
	}
}

func TestRecentLimit(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := history.Event{PassID: "p", Service: "svc", Outcome: "started", OccurredAt: base.Add(time.Duration(i) * time.Second)}
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	got, err := sink.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
}

func TestRecentEmptyStore(t *testing.T) {
	sink := newTestSink(t)
	got, err := sink.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d events from empty store", len(got))
	}
}

func TestNewRejectsEmptyDSN(t *testing.T) {
	if _, err := New("   "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestNewAcceptsSQLitePrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := New("sqlite://" + path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	_ = sink.Close()
}

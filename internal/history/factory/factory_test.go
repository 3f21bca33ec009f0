package factory

import (
	"path/filepath"
	"testing"

	"github.com/loykin/aistack/internal/history/sqlite"
)

func TestSQLiteDSNVariants(t *testing.T) {
	dir := t.TempDir()
	for _, dsn := range []string{
		"sqlite://" + filepath.Join(dir, "a.db"),
		filepath.Join(dir, "b.db"),
	} {
		sink, err := NewSinkFromDSN(dsn)
		if err != nil {
			t.Fatalf("dsn %q: %v", dsn, err)
		}
		if _, ok := sink.(*sqlite.Sink); !ok {
			t.Fatalf("dsn %q: expected sqlite sink, got %T", dsn, sink)
		}
		_ = sink.(*sqlite.Sink).Close()
	}
}

func TestEmptyDSN(t *testing.T) {
	if _, err := NewSinkFromDSN("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestUnsupportedScheme(t *testing.T) {
	if _, err := NewSinkFromDSN("redis://localhost:6379"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

package logger

import (
	"log/slog"
	"path/filepath"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestConfigEmpty(t *testing.T) {
	if !(Config{}).Empty() {
		t.Fatal("zero config must be empty")
	}
	if (Config{Dir: "/tmp"}).Empty() {
		t.Fatal("config with dir must not be empty")
	}
	if (Config{StderrPath: "/tmp/e.log"}).Empty() {
		t.Fatal("config with stderr path must not be empty")
	}
}

func TestWritersDerivePathsFromDir(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir}
	outW, errW, err := c.Writers("ocr")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	out, ok := outW.(*lj.Logger)
	if !ok {
		t.Fatalf("stdout writer type %T", outW)
	}
	if out.Filename != filepath.Join(dir, "ocr.stdout.log") {
		t.Fatalf("stdout path = %s", out.Filename)
	}
	if out.MaxSize != DefaultMaxSizeMB || out.MaxBackups != DefaultMaxBackups || out.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("rotation defaults not applied: %+v", out)
	}
	errL := errW.(*lj.Logger)
	if errL.Filename != filepath.Join(dir, "ocr.stderr.log") {
		t.Fatalf("stderr path = %s", errL.Filename)
	}
}

func TestWritersExplicitPathsWin(t *testing.T) {
	dir := t.TempDir()
	c := Config{Dir: dir, StdoutPath: filepath.Join(dir, "custom.log"), MaxSizeMB: 5}
	outW, _, err := c.Writers("ocr")
	if err != nil {
		t.Fatalf("writers: %v", err)
	}
	out := outW.(*lj.Logger)
	if out.Filename != filepath.Join(dir, "custom.log") {
		t.Fatalf("stdout path = %s", out.Filename)
	}
	if out.MaxSize != 5 {
		t.Fatalf("max size = %d", out.MaxSize)
	}
}

func TestNewCLI(t *testing.T) {
	l := NewCLI(slog.LevelDebug)
	if l == nil {
		t.Fatal("nil logger")
	}
	l.Debug("debug line", "k", "v")
}

package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/loykin/aistack/internal/service"
)

// Handle records a launched service for optional later inspection.
// The supervisor never joins on the child; it only keeps this handle.
type Handle struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// Table is the explicit registry of launched handles, owned by the
// supervisor instance and passed by reference where needed.
type Table struct {
	mu sync.Mutex
	m  map[string]Handle
}

func NewTable() *Table { return &Table{m: make(map[string]Handle)} }

func (t *Table) Put(h Handle) {
	t.mu.Lock()
	t.m[h.Name] = h
	t.mu.Unlock()
}

func (t *Table) Get(name string) (Handle, bool) {
	t.mu.Lock()
	h, ok := t.m[name]
	t.mu.Unlock()
	return h, ok
}

// All returns a copy of the current handle set.
func (t *Table) All() []Handle {
	t.mu.Lock()
	out := make([]Handle, 0, len(t.m))
	for _, h := range t.m {
		out = append(out, h)
	}
	t.mu.Unlock()
	return out
}

func (t *Table) Len() int {
	t.mu.Lock()
	n := len(t.m)
	t.mu.Unlock()
	return n
}

// Launcher starts service commands as detached background processes.
type Launcher struct {
	// GlobalEnv entries ("KEY=VALUE") are prepended under the spec's own Env.
	GlobalEnv []string
}

// Start launches the spec's command detached from the supervisor: new
// session, no inherited stdio (either /dev/null or rotated log files).
// It returns once the child survived the spec's startup grace window.
// An immediate exit within that window is a launch failure; later exits
// are invisible to the supervisor by design.
func (l *Launcher) Start(spec service.Spec) (Handle, error) {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if env := l.mergedEnv(spec); len(env) > 0 {
		cmd.Env = env
	}
	configureSysProcAttr(cmd)

	var closers []func()
	if spec.Log.Empty() {
		null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return Handle{}, fmt.Errorf("open %s: %w", os.DevNull, err)
		}
		cmd.Stdout = null
		cmd.Stderr = null
		closers = append(closers, func() { _ = null.Close() })
	} else {
		if spec.Log.Dir != "" {
			_ = os.MkdirAll(spec.Log.Dir, 0o750)
		}
		outW, errW, err := spec.Log.Writers(spec.Name)
		if err != nil {
			return Handle{}, fmt.Errorf("prepare log writers for %s: %w", spec.Name, err)
		}
		if outW != nil {
			cmd.Stdout = outW
			closers = append(closers, func() { _ = outW.Close() })
		}
		if errW != nil {
			cmd.Stderr = errW
			closers = append(closers, func() { _ = errW.Close() })
		}
	}

	if err := cmd.Start(); err != nil {
		for _, c := range closers {
			c()
		}
		return Handle{}, fmt.Errorf("launch %s: %w", spec.Name, err)
	}

	pid := cmd.Process.Pid
	h := Handle{Name: spec.Name, PID: pid, StartedAt: time.Now()}
	writePIDFile(spec.PIDFile, pid)

	// Reap the child whenever it exits so it never lingers as a zombie while
	// the supervisor is alive. If the supervisor exits first, the child is
	// simply reparented; its lifetime is decoupled from ours.
	go func() {
		_ = cmd.Wait()
		for _, c := range closers {
			c()
		}
	}()

	time.Sleep(spec.EffectiveStartupGrace())
	if !processAlive(pid) {
		removePIDFile(spec.PIDFile)
		return Handle{}, fmt.Errorf("launch %s: process exited immediately after start", spec.Name)
	}
	return h, nil
}

func (l *Launcher) mergedEnv(spec service.Spec) []string {
	if len(l.GlobalEnv) == 0 && len(spec.Env) == 0 {
		return nil
	}
	env := append([]string(nil), os.Environ()...)
	env = append(env, l.GlobalEnv...)
	env = append(env, spec.Env...)
	return env
}

func writePIDFile(path string, pid int) {
	if path == "" || pid == 0 {
		return
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o750)
	_ = os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o600)
}

// removePIDFile best-effort
func removePIDFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// ReadPIDFile returns the PID recorded in a pidfile, or 0 when absent/invalid.
func ReadPIDFile(path string) int {
	if path == "" {
		return 0
	}
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

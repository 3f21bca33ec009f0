package supervisor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/aistack/internal/history"
	"github.com/loykin/aistack/internal/launcher"
	"github.com/loykin/aistack/internal/metrics"
	"github.com/loykin/aistack/internal/probe"
	"github.com/loykin/aistack/internal/service"
)

// startingWindow is how long after a launch a dead probe is still reported
// as "starting" rather than "unreachable".
const startingWindow = 10 * time.Second

// Supervisor runs best-effort, single-pass supervision over a static
// registry of services. It owns the table of launched handles; it never
// joins on launched children and never retries failed launches.
type Supervisor struct {
	mu       sync.RWMutex
	registry []service.Spec
	prober   probe.Prober
	launch   *launcher.Launcher
	handles  *launcher.Table
	logger   *slog.Logger
	sinks    []history.Sink
}

// New builds a supervisor over the given registry. The registry must have
// been validated by the caller (service.ValidateRegistry).
func New(registry []service.Spec) *Supervisor {
	return &Supervisor{
		registry: append([]service.Spec(nil), registry...),
		prober:   probe.New(),
		launch:   &launcher.Launcher{},
		handles:  launcher.NewTable(),
		logger:   slog.Default(),
	}
}

// SetLogger replaces the report logger.
func (s *Supervisor) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.logger = l
	s.mu.Unlock()
}

// SetProber replaces the liveness prober (used by tests with fakes).
func (s *Supervisor) SetProber(p probe.Prober) {
	if p == nil {
		return
	}
	s.mu.Lock()
	s.prober = p
	s.mu.Unlock()
}

// SetGlobalEnv sets "KEY=VALUE" entries merged under each spec's own env.
func (s *Supervisor) SetGlobalEnv(kvs []string) {
	s.mu.Lock()
	s.launch.GlobalEnv = append([]string(nil), kvs...)
	s.mu.Unlock()
}

// SetHistorySinks configures external history sinks (SQLite, PostgreSQL,
// ClickHouse). Passing no sinks clears the list.
func (s *Supervisor) SetHistorySinks(sinks ...history.Sink) {
	s.mu.Lock()
	s.sinks = append([]history.Sink(nil), sinks...)
	s.mu.Unlock()
}

// Registry returns a copy of the configured registry in order.
func (s *Supervisor) Registry() []service.Spec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]service.Spec(nil), s.registry...)
}

// Handles returns the handles of services launched by this supervisor.
func (s *Supervisor) Handles() []launcher.Handle {
	return s.handles.All()
}

// EnsureAll runs one supervisory pass: every registry entry is probed and,
// when no listener is found, launched as a detached process. Services are
// handled concurrently and independently; one failure never aborts the
// others. Results come back in registry order. Launches are fire-and-forget:
// OutcomeStarted does not imply readiness, only that the child survived its
// startup grace window.
func (s *Supervisor) EnsureAll(ctx context.Context) service.Summary {
	s.mu.RLock()
	registry := s.registry
	prober := s.prober
	log := s.logger
	s.mu.RUnlock()

	sum := service.Summary{
		PassID:    newPassID(),
		StartedAt: time.Now(),
		Results:   make([]service.Result, len(registry)),
	}

	var wg sync.WaitGroup
	for i := range registry {
		wg.Add(1)
		go func(i int, spec service.Spec) {
			defer wg.Done()
			sum.Results[i] = s.ensureOne(ctx, prober, spec)
		}(i, registry[i])
	}
	wg.Wait()
	sum.Elapsed = time.Since(sum.StartedAt)

	metrics.IncPass()
	for _, r := range sum.Results {
		metrics.IncOutcome(r.Name, string(r.Outcome))
		switch r.Outcome {
		case service.OutcomeAlreadyRunning:
			log.Info("service already running", "name", r.Name, "port", r.Port, "detected_by", r.DetectedBy)
		case service.OutcomeStarted:
			log.Info("service started", "name", r.Name, "port", r.Port, "pid", r.PID)
		case service.OutcomeStartFailed:
			log.Error("service start failed", "name", r.Name, "port", r.Port, "error", r.Error)
		}
	}
	s.persistPass(ctx, sum)
	return sum
}

// ensureOne handles a single registry entry. Outcomes are final for the
// pass: there are no retries and no backoff.
func (s *Supervisor) ensureOne(ctx context.Context, prober probe.Prober, spec service.Spec) service.Result {
	res := service.Result{Name: spec.Name, Port: spec.Port}

	probeStart := time.Now()
	alive, by, err := prober.Probe(ctx, spec)
	res.ProbeTime = time.Since(probeStart)
	metrics.ObserveProbeDuration(spec.Name, res.ProbeTime.Seconds())
	if err != nil {
		// A probe error is indistinguishable from "not listening" for this
		// heuristic; proceed to launch.
		alive = false
	}

	if alive {
		res.Outcome = service.OutcomeAlreadyRunning
		res.DetectedBy = by
		if h, ok := s.handles.Get(spec.Name); ok {
			res.PID = h.PID
		} else if pid := launcher.ReadPIDFile(spec.PIDFile); pid > 0 {
			res.PID = pid
		}
		metrics.SetServiceUp(spec.Name, true)
		return res
	}

	h, err := s.launch.Start(spec)
	if err != nil {
		res.Outcome = service.OutcomeStartFailed
		res.Err = err
		res.Error = err.Error()
		metrics.SetServiceUp(spec.Name, false)
		return res
	}
	s.handles.Put(h)
	res.Outcome = service.OutcomeStarted
	res.PID = h.PID
	metrics.SetServiceUp(spec.Name, true)
	return res
}

// StatusAll probes every registry entry without launching anything.
func (s *Supervisor) StatusAll(ctx context.Context) []service.Status {
	s.mu.RLock()
	registry := s.registry
	prober := s.prober
	s.mu.RUnlock()

	out := make([]service.Status, len(registry))
	var wg sync.WaitGroup
	for i := range registry {
		wg.Add(1)
		go func(i int, spec service.Spec) {
			defer wg.Done()
			st := service.Status{Name: spec.Name, Port: spec.Port, CheckedAt: time.Now()}
			probeStart := time.Now()
			alive, by, _ := prober.Probe(ctx, spec)
			st.ProbeTime = time.Since(probeStart)
			metrics.ObserveProbeDuration(spec.Name, st.ProbeTime.Seconds())
			if alive {
				st.State = service.StateRunning
				st.DetectedBy = by
				if h, ok := s.handles.Get(spec.Name); ok {
					st.PID = h.PID
				} else if pid := launcher.ReadPIDFile(spec.PIDFile); pid > 0 {
					st.PID = pid
				}
			} else if h, ok := s.handles.Get(spec.Name); ok && time.Since(h.StartedAt) < startingWindow {
				st.State = service.StateStarting
				st.PID = h.PID
			} else {
				st.State = service.StateUnreachable
			}
			metrics.SetServiceUp(spec.Name, alive)
			out[i] = st
		}(i, registry[i])
	}
	wg.Wait()
	return out
}

// persistPass fans the pass out to history sinks. Sink failures are logged
// and never fail the pass.
func (s *Supervisor) persistPass(ctx context.Context, sum service.Summary) {
	s.mu.RLock()
	sinks := append([]history.Sink(nil), s.sinks...)
	log := s.logger
	s.mu.RUnlock()
	if len(sinks) == 0 {
		return
	}
	now := time.Now().UTC()
	for _, r := range sum.Results {
		evt := history.Event{
			PassID:     sum.PassID,
			Service:    r.Name,
			Outcome:    string(r.Outcome),
			PID:        r.PID,
			Error:      r.Error,
			OccurredAt: now,
		}
		for _, sink := range sinks {
			if err := sink.Send(ctx, evt); err != nil {
				log.Warn("history sink send failed", "service", r.Name, "error", err)
			}
		}
	}
}

func newPassID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().UTC().Format("20060102T150405.000000000")
	}
	return hex.EncodeToString(b[:])
}

package aistack

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/aistack/internal/config"
	"github.com/loykin/aistack/internal/history"
	"github.com/loykin/aistack/internal/history/factory"
	"github.com/loykin/aistack/internal/launcher"
	"github.com/loykin/aistack/internal/metrics"
	"github.com/loykin/aistack/internal/probe"
	"github.com/loykin/aistack/internal/service"
	iapi "github.com/loykin/aistack/internal/server"
	sup "github.com/loykin/aistack/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = service.Spec

type Status = service.Status

type Result = service.Result

type Summary = service.Summary

type Handle = launcher.Handle

type HistorySink = history.Sink

const (
	OutcomeAlreadyRunning = service.OutcomeAlreadyRunning
	OutcomeStarted        = service.OutcomeStarted
	OutcomeStartFailed    = service.OutcomeStartFailed
)

// Supervisor is a thin facade over internal/supervisor.Supervisor.
// It provides a stable public API for embedding.

type Supervisor struct{ inner *sup.Supervisor }

// New builds a supervisor over the given registry after validating it.
func New(registry []Spec) (*Supervisor, error) {
	if err := service.ValidateRegistry(registry); err != nil {
		return nil, err
	}
	return &Supervisor{inner: sup.New(registry)}, nil
}

// DefaultRegistry is the built-in local ML stack.
func DefaultRegistry() []Spec { return service.DefaultRegistry() }

func (s *Supervisor) SetLogger(l *slog.Logger)          { s.inner.SetLogger(l) }
func (s *Supervisor) SetGlobalEnv(kvs []string)         { s.inner.SetGlobalEnv(kvs) }
func (s *Supervisor) SetHistorySinks(ss ...HistorySink) { s.inner.SetHistorySinks(ss...) }

func (s *Supervisor) EnsureAll(ctx context.Context) Summary {
	return s.inner.EnsureAll(ctx)
}

func (s *Supervisor) StatusAll(ctx context.Context) []Status {
	return s.inner.StatusAll(ctx)
}

func (s *Supervisor) Registry() []Spec  { return s.inner.Registry() }
func (s *Supervisor) Handles() []Handle { return s.inner.Handles() }

// WaitReady polls a service until it reports alive or ctx expires. EnsureAll
// itself never waits for readiness; callers that need it poll here.
func (s *Supervisor) WaitReady(ctx context.Context, spec Spec, interval time.Duration) error {
	return probe.WaitReady(ctx, probe.New(), spec, interval)
}

// LoadConfig parses a TOML config file.
func LoadConfig(path string) (*cfg.FileConfig, error) { return cfg.Load(path) }

// NewHistorySink creates a history sink from a DSN
// (sqlite://, postgres://, clickhouse://).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPServer starts an HTTP server exposing the internal API using the given supervisor.
func NewHTTPServer(addr, basePath string, s *Supervisor) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s.inner)
}

// NewHTTPHandler returns an embeddable handler for the supervisor API,
// mountable in any mux or framework.
func NewHTTPHandler(basePath string, s *Supervisor) http.Handler {
	return iapi.NewRouter(s.inner, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}

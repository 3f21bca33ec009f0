package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/aistack/internal/inspect"
	"github.com/loykin/aistack/internal/metrics"
	"github.com/loykin/aistack/internal/service"
	"github.com/loykin/aistack/internal/supervisor"
)

// Router provides embeddable HTTP handlers over a supervisor.
// Endpoints:
//
//	GET  {basePath}/status    probe-only pass, per-service state
//	POST {basePath}/ensure    run EnsureAll and return the summary
//	GET  {basePath}/services  registry listing
//	GET  {basePath}/healthz   daemon self-health
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      *supervisor.Supervisor
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/status, /api/ensure, /api/services.
func NewRouter(sup *supervisor.Supervisor, basePath string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/ensure", r.handleEnsure)
	group.GET("/services", r.handleServices)
	group.GET("/healthz", r.handleHealthz)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sup *supervisor.Supervisor) (*http.Server, error) {
	r := NewRouter(sup, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type statusEntry struct {
	service.Status
	Proc *inspect.ProcInfo `json:"proc,omitempty"`
}

func (r *Router) handleStatus(c *gin.Context) {
	statuses := r.sup.StatusAll(c.Request.Context())
	out := make([]statusEntry, len(statuses))
	withProc := c.Query("proc") == "true"
	for i, st := range statuses {
		out[i] = statusEntry{Status: st}
		if withProc && st.PID > 0 {
			if info, err := inspect.Collect(st.PID); err == nil {
				out[i].Proc = &info
			}
		}
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleEnsure(c *gin.Context) {
	sum := r.sup.EnsureAll(c.Request.Context())
	code := http.StatusOK
	if sum.Failed() {
		// Partial failure still returns the full summary.
		code = http.StatusMultiStatus
	}
	writeJSON(c, code, sum)
}

func (r *Router) handleServices(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Registry())
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"ok": true, "services": len(r.sup.Registry())})
}

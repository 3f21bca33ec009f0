package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/loykin/aistack/internal/service"
)

// Prober determines whether a service is live. Implementations must be
// safe for concurrent use and must return within the spec's probe timeout.
type Prober interface {
	// Probe returns liveness plus a description of the detection method.
	Probe(ctx context.Context, spec service.Spec) (bool, string, error)
}

// New returns the default prober: an HTTP health check when the spec has a
// health path, otherwise a TCP connect probe. The TCP probe only proves that
// something listens on the port; it cannot tell the intended service from an
// unrelated process bound to the same port.
func New() Prober {
	return &composite{
		http: &HTTPProber{},
		port: &PortProber{},
	}
}

type composite struct {
	http *HTTPProber
	port *PortProber
}

func (c *composite) Probe(ctx context.Context, spec service.Spec) (bool, string, error) {
	if spec.HealthPath != "" {
		alive, by, err := c.http.Probe(ctx, spec)
		if err == nil {
			return alive, by, nil
		}
		// Health endpoint unreachable or misbehaving: fall back to the port
		// heuristic so a service without a working health route still counts.
	}
	return c.port.Probe(ctx, spec)
}

// PortProber checks whether anything accepts a TCP connection on the port.
type PortProber struct {
	// Host defaults to 127.0.0.1.
	Host string
}

func (p *PortProber) Probe(ctx context.Context, spec service.Spec) (bool, string, error) {
	host := p.Host
	if host == "" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(spec.Port))
	d := net.Dialer{Timeout: spec.EffectiveProbeTimeout()}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		// Connection refused, timeout, unroutable: all mean "no listener"
		// for the purposes of this heuristic.
		return false, "", nil
	}
	_ = conn.Close()
	return true, "port:" + strconv.Itoa(spec.Port), nil
}

// HTTPProber issues a GET against the spec's health path and treats any
// 2xx/3xx response as alive.
type HTTPProber struct {
	Host string
}

func (p *HTTPProber) Probe(ctx context.Context, spec service.Spec) (bool, string, error) {
	host := p.Host
	if host == "" {
		host = "127.0.0.1"
	}
	url := fmt.Sprintf("http://%s%s", net.JoinHostPort(host, strconv.Itoa(spec.Port)), spec.HealthPath)

	ctx, cancel := context.WithTimeout(ctx, spec.EffectiveProbeTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, "", err
	}
	client := &http.Client{Timeout: spec.EffectiveProbeTimeout()}
	resp, err := client.Do(req)
	if err != nil {
		return false, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	alive := resp.StatusCode >= 200 && resp.StatusCode < 400
	return alive, "http:" + spec.HealthPath, nil
}

// WaitReady polls the prober until the service reports alive or the context
// expires. Callers that need readiness after a fire-and-forget launch poll
// with this; EnsureAll itself never does.
func WaitReady(ctx context.Context, p Prober, spec service.Spec, interval time.Duration) error {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		alive, _, _ := p.Probe(ctx, spec)
		if alive {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("service %s not ready: %w", spec.Name, ctx.Err())
		case <-t.C:
		}
	}
}

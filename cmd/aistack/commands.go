package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/loykin/aistack"
	"github.com/loykin/aistack/internal/config"
	"github.com/loykin/aistack/internal/history/sqlite"
	"github.com/loykin/aistack/internal/inspect"
	"github.com/loykin/aistack/internal/logger"
	"github.com/loykin/aistack/pkg/client"
)

type command struct {
	global *GlobalFlags
}

// newSupervisor builds a supervisor from the config file when given, or over
// the built-in registry otherwise. The parsed config is nil when no file was
// supplied.
func (c *command) newSupervisor(configPath string) (*aistack.Supervisor, *config.FileConfig, error) {
	if configPath == "" {
		sup, err := aistack.New(aistack.DefaultRegistry())
		return sup, nil, err
	}
	fc, err := aistack.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	registry, err := fc.Registry()
	if err != nil {
		return nil, nil, err
	}
	sup, err := aistack.New(registry)
	if err != nil {
		return nil, nil, err
	}
	env, err := fc.GlobalEnv()
	if err != nil {
		return nil, nil, err
	}
	sup.SetGlobalEnv(env)
	return sup, fc, nil
}

func (c *command) cliLogger() *slog.Logger {
	level := slog.LevelInfo
	if c.global.Verbose {
		level = slog.LevelDebug
	}
	return logger.NewCLI(level)
}

// Up runs one ensure pass, locally or against a remote daemon.
func (c *command) Up(f UpFlags) error {
	if f.APIUrl != "" {
		return c.upViaAPI(f)
	}

	sup, fc, err := c.newSupervisor(f.ConfigPath)
	if err != nil {
		return err
	}
	sup.SetLogger(c.cliLogger())

	dsn := f.HistoryDSN
	if dsn == "" && fc != nil {
		dsn = fc.History.DSN
	}
	if dsn != "" {
		sink, err := aistack.NewHistorySink(dsn)
		if err != nil {
			return fmt.Errorf("history sink: %w", err)
		}
		sup.SetHistorySinks(sink)
	}

	sum := sup.EnsureAll(context.Background())
	if f.JSONOutput {
		printJSON(sum)
	} else {
		renderSummary(sum)
	}
	if sum.Failed() {
		_, _, failed := sum.Counts()
		return fmt.Errorf("%d service(s) failed to start", failed)
	}
	return nil
}

// upViaAPI delegates the ensure pass to a running daemon.
func (c *command) upViaAPI(f UpFlags) error {
	apiClient := client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
	ctx := context.Background()
	if !apiClient.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable at %s - start it first with 'aistack serve'", f.APIUrl)
	}
	sum, err := apiClient.Ensure(ctx)
	if err != nil {
		return err
	}
	if f.JSONOutput {
		printJSON(sum)
	} else {
		table := newTable()
		table.Header("SERVICE", "PORT", "OUTCOME", "PID", "DETECTED BY", "PROBE", "ERROR")
		for _, r := range sum.Results {
			table.Append([]string{
				r.Name, strconv.Itoa(r.Port), r.Outcome,
				fmtPID(r.PID), r.DetectedBy, r.ProbeTime.Round(time.Millisecond).String(), r.Error,
			})
		}
		table.Render()
	}
	if sum.Failed() {
		return fmt.Errorf("remote ensure pass reported failures")
	}
	return nil
}

// Status probes every service, locally or via a remote daemon.
func (c *command) Status(f StatusFlags) error {
	if f.APIUrl != "" {
		return c.statusViaAPI(f)
	}

	sup, _, err := c.newSupervisor(f.ConfigPath)
	if err != nil {
		return err
	}
	statuses := sup.StatusAll(context.Background())
	if f.JSONOutput {
		printJSON(statuses)
		return nil
	}
	table := newTable()
	table.Header("SERVICE", "PORT", "STATE", "PID", "DETECTED BY", "PROBE", "CPU", "RSS")
	for _, st := range statuses {
		cpu, rss := "", ""
		if f.Proc && st.PID > 0 {
			if info, err := inspect.Collect(st.PID); err == nil {
				cpu = fmt.Sprintf("%.1f%%", info.CPUPercent)
				rss = fmtBytes(info.RSSBytes)
			}
		}
		table.Append([]string{
			st.Name, strconv.Itoa(st.Port), string(st.State),
			fmtPID(st.PID), st.DetectedBy, st.ProbeTime.Round(time.Millisecond).String(), cpu, rss,
		})
	}
	table.Render()
	return nil
}

// statusViaAPI fetches statuses from a running daemon.
func (c *command) statusViaAPI(f StatusFlags) error {
	apiClient := client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
	ctx := context.Background()
	if !apiClient.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable at %s - start it first with 'aistack serve'", f.APIUrl)
	}
	statuses, err := apiClient.Status(ctx, f.Proc)
	if err != nil {
		return err
	}
	if f.JSONOutput {
		printJSON(statuses)
		return nil
	}
	table := newTable()
	table.Header("SERVICE", "PORT", "STATE", "PID", "DETECTED BY", "PROBE")
	for _, st := range statuses {
		table.Append([]string{
			st.Name, strconv.Itoa(st.Port), st.State,
			fmtPID(st.PID), st.DetectedBy, st.ProbeTime.Round(time.Millisecond).String(),
		})
	}
	table.Render()
	return nil
}

// Services prints the configured registry.
func (c *command) Services(configPath string) error {
	sup, _, err := c.newSupervisor(configPath)
	if err != nil {
		return err
	}
	table := newTable()
	table.Header("SERVICE", "PORT", "COMMAND", "HEALTH PATH")
	for _, spec := range sup.Registry() {
		table.Append([]string{spec.Name, strconv.Itoa(spec.Port), spec.Command, spec.HealthPath})
	}
	table.Render()
	return nil
}

// Serve runs the daemon until SIGINT/SIGTERM.
func (c *command) Serve(f ServeFlags) error {
	log := c.cliLogger()
	slog.SetDefault(log)

	sup, fc, err := c.newSupervisor(f.ConfigPath)
	if err != nil {
		return err
	}
	sup.SetLogger(log)

	if fc != nil && fc.History.DSN != "" {
		sink, err := aistack.NewHistorySink(fc.History.DSN)
		if err != nil {
			return fmt.Errorf("history sink: %w", err)
		}
		sup.SetHistorySinks(sink)
	}

	listen := f.Listen
	basePath := "/api"
	if fc != nil {
		if listen == "" {
			listen = fc.ListenAddr()
		}
		if fc.Server.BasePath != "" {
			basePath = fc.Server.BasePath
		}
	}
	if listen == "" {
		listen = ":5119"
	}

	if err := aistack.RegisterMetricsDefault(); err != nil {
		log.Warn("metrics registration failed", "error", err)
	}

	server, err := aistack.NewHTTPServer(listen, basePath, sup)
	if err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	log.Info("daemon listening", "addr", listen, "base_path", basePath)

	if f.EnsureOnStart {
		sum := sup.EnsureAll(context.Background())
		running, started, failed := sum.Counts()
		log.Info("initial pass complete", "pass_id", sum.PassID,
			"already_running", running, "started", started, "failed", failed)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// History prints recent pass events from the SQLite history store.
func (c *command) History(f HistoryFlags) error {
	dsn := f.DSN
	if dsn == "" && f.ConfigPath != "" {
		fc, err := aistack.LoadConfig(f.ConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		dsn = fc.History.DSN
	}
	if dsn == "" {
		return fmt.Errorf("history DSN required (--dsn or [history].dsn in config)")
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "clickhouse://") {
		return fmt.Errorf("history query supports sqlite DSNs only")
	}

	sink, err := sqlite.New(strings.TrimPrefix(dsn, "sqlite://"))
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer func() { _ = sink.Close() }()

	events, err := sink.Recent(context.Background(), f.Limit)
	if err != nil {
		return err
	}
	if f.JSONOutput {
		printJSON(events)
		return nil
	}
	table := newTable()
	table.Header("TIME", "PASS", "SERVICE", "OUTCOME", "PID", "ERROR")
	for _, e := range events {
		table.Append([]string{
			e.OccurredAt.Local().Format("2006-01-02 15:04:05"),
			e.PassID, e.Service, e.Outcome, fmtPID(e.PID), e.Error,
		})
	}
	table.Render()
	return nil
}

// --- output helpers ---

func newTable() *tablewriter.Table {
	return tablewriter.NewWriter(os.Stdout)
}

func renderSummary(sum aistack.Summary) {
	table := newTable()
	table.Header("SERVICE", "PORT", "OUTCOME", "PID", "DETECTED BY", "PROBE", "ERROR")
	for _, r := range sum.Results {
		table.Append([]string{
			r.Name, strconv.Itoa(r.Port), string(r.Outcome),
			fmtPID(r.PID), r.DetectedBy, r.ProbeTime.Round(time.Millisecond).String(), r.Error,
		})
	}
	table.Render()
	running, started, failed := sum.Counts()
	fmt.Printf("pass %s: %d already running, %d started, %d failed (%s)\n",
		sum.PassID, running, started, failed, sum.Elapsed.Round(time.Millisecond))
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fmtPID(pid int) string {
	if pid <= 0 {
		return ""
	}
	return strconv.Itoa(pid)
}

func fmtBytes(b uint64) string {
	const mb = 1 << 20
	if b >= mb {
		return fmt.Sprintf("%.1fMB", float64(b)/mb)
	}
	return fmt.Sprintf("%dKB", b/(1<<10))
}

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
}

// UpFlags holds flags for the up command
type UpFlags struct {
	ConfigPath string
	JSONOutput bool
	HistoryDSN string
	// API connection (remote mode)
	APIUrl     string
	APITimeout time.Duration
}

// StatusFlags holds flags for the status command
type StatusFlags struct {
	ConfigPath string
	JSONOutput bool
	Proc       bool
	// API connection (remote mode)
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	ConfigPath    string
	Listen        string
	EnsureOnStart bool
}

// HistoryFlags holds flags for the history command
type HistoryFlags struct {
	ConfigPath string
	DSN        string
	Limit      int
	JSONOutput bool
}

// buildRoot creates the root command and wires all subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	upFlags := &UpFlags{}
	statusFlags := &StatusFlags{}
	serveFlags := &ServeFlags{}
	historyFlags := &HistoryFlags{}

	aistackCommand := command{global: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createUpCommand(aistackCommand, globalFlags, upFlags),
		createStatusCommand(aistackCommand, globalFlags, statusFlags),
		createServicesCommand(aistackCommand, globalFlags),
		createServeCommand(aistackCommand, globalFlags, serveFlags),
		createHistoryCommand(aistackCommand, globalFlags, historyFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "aistack",
		Short: "Local ML service stack supervisor",
		Long: `Aistack keeps a fixed set of local ML services (LLM runtime,
speech-to-text, text-to-speech, OCR) running. Each run is a single
best-effort pass: services already listening are left alone, missing
ones are launched detached and keep running after aistack exits.

Examples:
  aistack up                        # Ensure the default stack is running
  aistack up --config=stack.toml    # Ensure a custom registry
  aistack status                    # Probe every service without launching
  aistack serve                     # Run the supervision daemon`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config (default: built-in registry)")
	root.PersistentFlags().BoolVar(&flags.Verbose, "verbose", false, "enable debug logging")
	return root
}

// createUpCommand creates the up subcommand
func createUpCommand(aistackCommand command, globalFlags *GlobalFlags, upFlags *UpFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Ensure every registered service is running",
		Long: `Run one supervisory pass over the registry: probe each service and
launch the ones that are not listening. Exits non-zero when any
service could not be started.

Examples:
  aistack up
  aistack up --json
  aistack up --api-url=http://remote:5119/api   # Delegate to a daemon`,
		RunE: func(cmd *cobra.Command, args []string) error {
			upFlags.ConfigPath = globalFlags.ConfigPath
			return aistackCommand.Up(*upFlags)
		},
	}
	cmd.Flags().BoolVar(&upFlags.JSONOutput, "json", false, "print the summary as JSON")
	cmd.Flags().StringVar(&upFlags.HistoryDSN, "history-dsn", "", "record pass results to this DSN (sqlite://, postgres://, clickhouse://)")

	// Remote daemon connection
	cmd.Flags().StringVar(&upFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:5119/api)")
	cmd.Flags().DurationVar(&upFlags.APITimeout, "api-timeout", 30*time.Second, "request timeout")
	return cmd
}

// createStatusCommand creates the status subcommand
func createStatusCommand(aistackCommand command, globalFlags *GlobalFlags, statusFlags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the probe state of every registered service",
		Long: `Probe every registry entry without launching anything.

Examples:
  aistack status
  aistack status --proc             # Include CPU/RSS of known PIDs
  aistack status --api-url=http://remote:5119/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			statusFlags.ConfigPath = globalFlags.ConfigPath
			return aistackCommand.Status(*statusFlags)
		},
	}
	cmd.Flags().BoolVar(&statusFlags.JSONOutput, "json", false, "print statuses as JSON")
	cmd.Flags().BoolVar(&statusFlags.Proc, "proc", false, "include process CPU/memory info for known PIDs")

	// Remote daemon connection
	cmd.Flags().StringVar(&statusFlags.APIUrl, "api-url", "", "remote daemon URL (e.g. http://host:5119/api)")
	cmd.Flags().DurationVar(&statusFlags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return cmd
}

// createServicesCommand creates the services subcommand
func createServicesCommand(aistackCommand command, globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List the configured service registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return aistackCommand.Services(globalFlags.ConfigPath)
		},
	}
}

// createServeCommand creates the serve subcommand
func createServeCommand(aistackCommand command, globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the aistack daemon",
		Long: `Run the supervision daemon: expose the REST API and Prometheus
metrics, and optionally run an initial ensure pass on startup.

Examples:
  aistack serve                     # Built-in registry on :5119
  aistack serve stack.toml          # Registry and listen address from config
  aistack serve --listen=:6119`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			return aistackCommand.Serve(*serveFlags)
		},
	}
	cmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "listen address (overrides config, default :5119)")
	cmd.Flags().BoolVar(&serveFlags.EnsureOnStart, "ensure-on-start", true, "run one ensure pass immediately after startup")
	return cmd
}

// createHistoryCommand creates the history subcommand
func createHistoryCommand(aistackCommand command, globalFlags *GlobalFlags, historyFlags *HistoryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent ensure-pass results from the history store",
		Long: `Query the SQLite history store written by previous passes.

Examples:
  aistack history --dsn=sqlite:///var/lib/aistack/history.db
  aistack history --limit=50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			historyFlags.ConfigPath = globalFlags.ConfigPath
			return aistackCommand.History(*historyFlags)
		},
	}
	cmd.Flags().StringVar(&historyFlags.DSN, "dsn", "", "history DSN (sqlite only; falls back to [history].dsn from config)")
	cmd.Flags().IntVar(&historyFlags.Limit, "limit", 20, "maximum events to show")
	cmd.Flags().BoolVar(&historyFlags.JSONOutput, "json", false, "print events as JSON")
	return cmd
}

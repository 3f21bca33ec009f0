package service

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/aistack/internal/logger"
)

// Default probe bounds applied when a spec leaves them zero.
const (
	DefaultProbeTimeout = 2 * time.Second
	DefaultStartupGrace = 150 * time.Millisecond
)

// Spec describes one service in the registry: a network-accessible process
// identified by its listening port, with a command used to launch it when
// the port is not occupied. Entries are immutable after load.
type Spec struct {
	Name         string        `json:"name" mapstructure:"name"`
	Port         int           `json:"port" mapstructure:"port"`
	Command      string        `json:"command" mapstructure:"command"`
	HealthPath   string        `json:"health_path" mapstructure:"health_path"` // optional; "/health" etc.
	WorkDir      string        `json:"work_dir" mapstructure:"work_dir"`
	Env          []string      `json:"env" mapstructure:"env"`
	PIDFile      string        `json:"pid_file" mapstructure:"pid_file"`
	ProbeTimeout time.Duration `json:"probe_timeout" mapstructure:"probe_timeout"`
	StartupGrace time.Duration `json:"startup_grace" mapstructure:"startup_grace"`
	Log          logger.Config `json:"log" mapstructure:"log"`
}

// Validate checks the fields required for a spec to be usable in a registry.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("service requires name")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("service %s: port must be in 1..65535, got %d", s.Name, s.Port)
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("service %s requires command", s.Name)
	}
	if s.HealthPath != "" && !strings.HasPrefix(s.HealthPath, "/") {
		return fmt.Errorf("service %s: health_path must start with '/'", s.Name)
	}
	return nil
}

// EffectiveProbeTimeout returns the configured probe timeout or the default.
func (s *Spec) EffectiveProbeTimeout() time.Duration {
	if s.ProbeTimeout > 0 {
		return s.ProbeTimeout
	}
	return DefaultProbeTimeout
}

// EffectiveStartupGrace returns the configured post-launch recheck delay or the default.
func (s *Spec) EffectiveStartupGrace() time.Duration {
	if s.StartupGrace > 0 {
		return s.StartupGrace
	}
	return DefaultStartupGrace
}

// BuildCommand constructs an *exec.Cmd for the given spec.Command.
// It avoids invoking a shell when not necessary, and it also respects
// an explicit shell invocation already present in the command string
// (e.g., "sh -c 'ollama serve'"), avoiding double-wrapping with another shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	// If the command already explicitly uses a shell, honor it without adding another layer.
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		// Always use absolute shell path to avoid PATH dependency when Env is overridden.
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	// Fallback: when metacharacters are present, use /bin/sh -c
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// ok: intentional execution, input is validated and safe
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// beginning of cmdStr. It returns (shellPath, afterCArg, true) when matched.
// It preserves the substring after "-c " verbatim to avoid breaking quoting.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			// If after is wrapped in single or double quotes, strip one pair so that
			// we pass the actual script to the shell (the outer quotes would otherwise
			// inhibit parsing/redirection inside the script).
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}

// DefaultRegistry returns the built-in local ML stack supervised when no
// config file is supplied: the LLM runtime plus the three wrapper servers.
func DefaultRegistry() []Spec {
	return []Spec{
		{Name: "llm-runtime", Port: 11434, Command: "ollama serve", HealthPath: "/api/tags"},
		{Name: "speech-to-text", Port: 5115, Command: "aistack-stt-server", HealthPath: "/health"},
		{Name: "text-to-speech", Port: 5114, Command: "aistack-tts-server", HealthPath: "/health"},
		{Name: "ocr", Port: 5117, Command: "aistack-ocr-server", HealthPath: "/health"},
	}
}

// ValidateRegistry validates each spec and rejects duplicate names.
func ValidateRegistry(specs []Spec) error {
	seen := make(map[string]struct{}, len(specs))
	for i := range specs {
		if err := specs[i].Validate(); err != nil {
			return err
		}
		if _, dup := seen[specs[i].Name]; dup {
			return fmt.Errorf("duplicate service name %q in registry", specs[i].Name)
		}
		seen[specs[i].Name] = struct{}{}
	}
	return nil
}

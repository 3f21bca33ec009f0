package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/loykin/aistack/internal/logger"
	"github.com/loykin/aistack/internal/service"
)

// FileConfig represents the top-level TOML structure:
//
//	env = ["OLLAMA_NUM_PARALLEL=2"]
//	env_files = ["/etc/aistack/stack.env"]
//	use_os_env = true
//
//	[log]
//	dir = "/var/log/aistack"
//
//	[server]
//	listen = ":5119"
//
//	[history]
//	dsn = "sqlite:///var/lib/aistack/history.db"
//
//	[[services]]
//	name = "llm-runtime"
//	port = 11434
//	command = "ollama serve"
//	health_path = "/api/tags"
type FileConfig struct {
	Env      []string     `toml:"env" mapstructure:"env"`
	EnvFiles []string     `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool         `toml:"use_os_env" mapstructure:"use_os_env"`
	Log      *LogConfig   `toml:"log" mapstructure:"log"`
	Server   ServerConfig `toml:"server" mapstructure:"server"`
	History  HistoryConf  `toml:"history" mapstructure:"history"`
	Services []SvcConfig  `toml:"services" mapstructure:"services"`
}

type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type HistoryConf struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type SvcConfig struct {
	Name         string        `toml:"name" mapstructure:"name"`
	Port         int           `toml:"port" mapstructure:"port"`
	Command      string        `toml:"command" mapstructure:"command"`
	HealthPath   string        `toml:"health_path" mapstructure:"health_path"`
	WorkDir      string        `toml:"workdir" mapstructure:"workdir"`
	Env          []string      `toml:"env" mapstructure:"env"`
	PIDFile      string        `toml:"pidfile" mapstructure:"pidfile"`
	ProbeTimeout time.Duration `toml:"probe_timeout" mapstructure:"probe_timeout"`
	StartupGrace time.Duration `toml:"startup_grace" mapstructure:"startup_grace"`
	Log          *LogConfig    `toml:"log" mapstructure:"log"`
}

// Load parses the TOML config file.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

// Registry converts the parsed config into validated service specs,
// applying top-level log defaults to each service.
func (fc *FileConfig) Registry() ([]service.Spec, error) {
	specs := make([]service.Spec, 0, len(fc.Services))
	for _, sc := range fc.Services {
		logCfg := mergeLogConfig(fc.Log, sc.Log)
		s := service.Spec{
			Name:         sc.Name,
			Port:         sc.Port,
			Command:      sc.Command,
			HealthPath:   sc.HealthPath,
			WorkDir:      sc.WorkDir,
			Env:          sc.Env,
			PIDFile:      sc.PIDFile,
			ProbeTimeout: sc.ProbeTimeout,
			StartupGrace: sc.StartupGrace,
			Log:          logCfg,
		}
		specs = append(specs, s)
	}
	if err := service.ValidateRegistry(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// GlobalEnv merges env sources for launched services.
// Precedence: OS env (when use_os_env) provides base; then env_files in
// order; then the top-level env list overrides last.
func (fc *FileConfig) GlobalEnv() ([]string, error) {
	m := make(map[string]string)
	if fc.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range fc.EnvFiles {
		pairs, err := godotenv.Read(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range fc.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// ListenAddr returns the configured daemon listen address or the default.
func (fc *FileConfig) ListenAddr() string {
	if fc.Server.Listen != "" {
		return fc.Server.Listen
	}
	return ":5119"
}

func mergeLogConfig(top, svc *LogConfig) logger.Config {
	var out logger.Config
	if top != nil {
		out = logger.Config{
			Dir:        top.Dir,
			StdoutPath: top.Stdout,
			StderrPath: top.Stderr,
			MaxSizeMB:  top.MaxSizeMB,
			MaxBackups: top.MaxBackups,
			MaxAgeDays: top.MaxAgeDays,
			Compress:   top.Compress,
		}
	}
	if svc != nil {
		if svc.Dir != "" {
			out.Dir = svc.Dir
		}
		if svc.Stdout != "" {
			out.StdoutPath = svc.Stdout
		}
		if svc.Stderr != "" {
			out.StderrPath = svc.Stderr
		}
		if svc.MaxSizeMB != 0 {
			out.MaxSizeMB = svc.MaxSizeMB
		}
		if svc.MaxBackups != 0 {
			out.MaxBackups = svc.MaxBackups
		}
		if svc.MaxAgeDays != 0 {
			out.MaxAgeDays = svc.MaxAgeDays
		}
		if svc.Compress {
			out.Compress = true
		}
	}
	return out
}

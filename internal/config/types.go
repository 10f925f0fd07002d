package config

import (
	"time"

	"github.com/mattjoyce/go2voice/internal/auth"
)

// Config is the complete go2voice configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Executor ExecutorConfig `yaml:"executor"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	ASR      ASRConfig      `yaml:"asr"`
	Journal  JournalConfig  `yaml:"journal"`
	API      APIConfig      `yaml:"api"`
	Ingress  IngressConfig  `yaml:"ingress"`

	// Path is the absolute config file path. Empty when built from Defaults.
	Path string `yaml:"-"`
}

// ServiceConfig defines process-wide settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	PIDFile   string `yaml:"pid_file"`
}

// ExecutorConfig describes the go2_motion child process.
type ExecutorConfig struct {
	Command         []string      `yaml:"command"`
	Dir             string        `yaml:"dir,omitempty"`
	Env             []string      `yaml:"env,omitempty"`
	ReadyMarkers    []string      `yaml:"ready_markers"`
	LaunchTimeout   time.Duration `yaml:"launch_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	KillGrace       time.Duration `yaml:"kill_grace"`
	OutputTail      int           `yaml:"output_tail"`
	MirrorOutput    bool          `yaml:"mirror_output"`
}

// DispatchConfig tunes scoring and debounce.
type DispatchConfig struct {
	Cooldown      time.Duration `yaml:"cooldown"`
	Threshold     float64       `yaml:"threshold"`
	GoMinInterval time.Duration `yaml:"go_min_interval"`
	// IntentsFile overrides the built-in vocabulary. Relative paths resolve
	// against the config file's directory.
	IntentsFile string `yaml:"intents_file,omitempty"`
}

// ASR sources.
const (
	ASRSourceStdin   = "stdin"
	ASRSourceCommand = "command"
	ASRSourceNone    = "none"
)

// ASRConfig selects where transcripts come from.
type ASRConfig struct {
	Source  string   `yaml:"source"`
	Command []string `yaml:"command,omitempty"`
}

// JournalConfig defines the SQLite decision journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// APIConfig defines the operator HTTP API.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
	// Tokens are optional scoped bearer tokens alongside the admin key.
	Tokens []auth.TokenConfig `yaml:"tokens,omitempty"`
}

// IngressConfig defines the signed transcript webhook.
type IngressConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Listen          string `yaml:"listen"`
	Path            string `yaml:"path"`
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
	MaxBodySize     string `yaml:"max_body_size"`
}

// DefaultExecutorCommand launches go2_motion2 on the robot's wired interface.
// -n makes sudo fail fast instead of prompting.
var DefaultExecutorCommand = []string{
	"sudo", "-n", "-E",
	"/home/unitree/unitree_sdk2-main/build/bin/go2_motion2",
	"eth0",
}

// Defaults returns a Config with working values for the Go2.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "go2voice",
			LogLevel:  "info",
			LogFormat: "json",
			PIDFile:   "./data/go2voice.pid",
		},
		Executor: ExecutorConfig{
			Command:         append([]string(nil), DefaultExecutorCommand...),
			ReadyMarkers:    []string{"Go2 Motion"},
			LaunchTimeout:   3 * time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: 3 * time.Second,
			KillGrace:       2 * time.Second,
			OutputTail:      200,
		},
		Dispatch: DispatchConfig{
			Cooldown:  1500 * time.Millisecond,
			Threshold: 1.2,
		},
		ASR: ASRConfig{
			Source: ASRSourceStdin,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "./data/dispatch.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8380",
		},
		Ingress: IngressConfig{
			Enabled:         false,
			Listen:          "127.0.0.1:8381",
			Path:            "/transcripts",
			SignatureHeader: "X-Signature-256",
			MaxBodySize:     "64KB",
		},
	}
}

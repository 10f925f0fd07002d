package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "empty file keeps defaults",
			yaml: "",
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Dispatch.Cooldown != 1500*time.Millisecond {
					t.Errorf("cooldown = %v, want 1.5s", cfg.Dispatch.Cooldown)
				}
				if cfg.Dispatch.Threshold != 1.2 {
					t.Errorf("threshold = %v, want 1.2", cfg.Dispatch.Threshold)
				}
				if got := strings.Join(cfg.Executor.Command, " "); !strings.Contains(got, "go2_motion2 eth0") {
					t.Errorf("executor.command = %q", got)
				}
				if !cfg.Journal.Enabled {
					t.Error("journal should default to enabled")
				}
			},
		},
		{
			name: "overrides and durations",
			yaml: `
service:
  log_level: debug
  log_format: text
executor:
  command: ["/opt/go2/go2_motion2", "enp3s0"]
  launch_timeout: 5s
  ready_markers: ["Go2 Motion", "menu>"]
dispatch:
  cooldown: 2s
  threshold: 1.5
  go_min_interval: 500ms
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.LogLevel != "debug" || cfg.Service.LogFormat != "text" {
					t.Errorf("service = %+v", cfg.Service)
				}
				if len(cfg.Executor.Command) != 2 || cfg.Executor.Command[1] != "enp3s0" {
					t.Errorf("executor.command = %v", cfg.Executor.Command)
				}
				if cfg.Executor.LaunchTimeout != 5*time.Second {
					t.Errorf("launch_timeout = %v", cfg.Executor.LaunchTimeout)
				}
				if cfg.Executor.ShutdownTimeout != 3*time.Second {
					t.Errorf("shutdown_timeout default lost: %v", cfg.Executor.ShutdownTimeout)
				}
				if len(cfg.Executor.ReadyMarkers) != 2 {
					t.Errorf("ready_markers = %v", cfg.Executor.ReadyMarkers)
				}
				if cfg.Dispatch.GoMinInterval != 500*time.Millisecond {
					t.Errorf("go_min_interval = %v", cfg.Dispatch.GoMinInterval)
				}
			},
		},
		{
			name: "env interpolation",
			yaml: `
api:
  enabled: true
  api_key: ${GO2VOICE_TEST_KEY}
ingress:
  enabled: true
  secret: ${GO2VOICE_TEST_SECRET}
`,
			env: map[string]string{"GO2VOICE_TEST_KEY": "k-123", "GO2VOICE_TEST_SECRET": "s-456"},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.API.APIKey != "k-123" {
					t.Errorf("api_key = %q", cfg.API.APIKey)
				}
				if cfg.Ingress.Secret != "s-456" {
					t.Errorf("ingress.secret = %q", cfg.Ingress.Secret)
				}
			},
		},
		{
			name: "unset env var is reported",
			yaml: `
api:
  enabled: true
  api_key: ${GO2VOICE_TEST_UNSET_KEY}
`,
			wantErr: "${GO2VOICE_TEST_UNSET_KEY} is not set",
		},
		{
			name: "scoped tokens without api key",
			yaml: `
api:
  enabled: true
  tokens:
    - token: viewer-1
      scopes: [status:ro, events:ro]
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if len(cfg.API.Tokens) != 1 || len(cfg.API.Tokens[0].Scopes) != 2 {
					t.Errorf("api.tokens = %+v", cfg.API.Tokens)
				}
			},
		},
		{
			name: "unknown token scope",
			yaml: `
api:
  enabled: true
  tokens:
    - token: t
      scopes: [robot:rw]
`,
			wantErr: `unknown scope "robot:rw"`,
		},
		{
			name:    "unknown field",
			yaml:    "dispatch:\n  coldown: 2s\n",
			wantErr: "coldown",
		},
		{
			name:    "bad log level",
			yaml:    "service:\n  log_level: loud\n",
			wantErr: "service.log_level",
		},
		{
			name:    "empty executor command",
			yaml:    "executor:\n  command: []\n",
			wantErr: "executor.command is required",
		},
		{
			name:    "non-positive threshold",
			yaml:    "dispatch:\n  threshold: 0\n",
			wantErr: "dispatch.threshold",
		},
		{
			name:    "command source without command",
			yaml:    "asr:\n  source: command\n",
			wantErr: "asr.command is required",
		},
		{
			name:    "unknown asr source",
			yaml:    "asr:\n  source: microphone\n",
			wantErr: "asr.source",
		},
		{
			name:    "ingress path",
			yaml:    "ingress:\n  enabled: true\n  secret: s\n  path: transcripts\n",
			wantErr: "ingress.path",
		},
		{
			name:    "ingress body size",
			yaml:    "ingress:\n  enabled: true\n  secret: s\n  max_body_size: lots\n",
			wantErr: "ingress.max_body_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeConfig(t, t.TempDir(), tt.yaml)

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() succeeded, want error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Path != path {
				t.Errorf("cfg.Path = %q, want %q", cfg.Path, path)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "dispatch:\n  intents_file: intents.yaml\njournal:\n  path: data/j.db\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) error = %v", err)
	}
	if got, want := cfg.IntentsPath(), filepath.Join(dir, "intents.yaml"); got != want {
		t.Errorf("IntentsPath() = %q, want %q", got, want)
	}
	if got, want := cfg.JournalPath(), filepath.Join(dir, "data", "j.db"); got != want {
		t.Errorf("JournalPath() = %q, want %q", got, want)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config")
	}
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected error for directory without config.yaml")
	}
}

func TestDiscoverPrefersEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(ConfigDirEnv, dir)

	got, err := Discover()
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if got != dir {
		t.Errorf("Discover() = %q, want %q", got, dir)
	}
}

func TestDefaultsValidate(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("Defaults() do not validate: %v", err)
	}
	if Defaults().IntentsPath() != "" {
		t.Error("defaults should use the built-in vocabulary")
	}
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "", want: DefaultMaxBodySize},
		{in: "2048", want: 2048},
		{in: "64KB", want: 64 << 10},
		{in: "1mb", want: 1 << 20},
		{in: " 2 GB ", want: 2 << 30},
		{in: "0", wantErr: true},
		{in: "-1KB", wantErr: true},
		{in: "big", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseByteSize(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseByteSize(%q) = %d, want error", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseByteSize(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
}

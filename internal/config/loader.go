package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/go2voice/internal/auth"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ConfigDirEnv overrides config discovery.
const ConfigDirEnv = "GO2VOICE_CONFIG_DIR"

// Load reads the config at path (a file, or a directory holding
// config.yaml), verifies it against .checksums when present, and validates
// it. Unset fields keep their Defaults values.
func Load(path string) (*Config, error) {
	return load(path, true)
}

// LoadUnverified is Load without the checksum check. `config lock` uses it
// to re-authorize edited files.
func LoadUnverified(path string) (*Config, error) {
	return load(path, false)
}

func load(path string, verify bool) (*Config, error) {
	absPath, err := resolveConfigFile(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", absPath, err)
	}

	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", absPath, err)
	}
	cfg.Path = absPath

	if verify {
		if err := verifyChecksums(cfg); err != nil {
			return nil, err
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveConfigFile(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path %q: %w", path, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: pass --config or set $%s", absPath, ConfigDirEnv)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// Discover finds a config by checking, in order: $GO2VOICE_CONFIG_DIR,
// ~/.config/go2voice, /etc/go2voice, ./config.yaml.
func Discover() (string, error) {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		dir := filepath.Join(home, ".config", "go2voice")
		if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err == nil {
			return dir, nil
		}
	}

	if _, err := os.Stat("/etc/go2voice/config.yaml"); err == nil {
		return "/etc/go2voice", nil
	}

	if _, err := os.Stat("./config.yaml"); err == nil {
		return "./config.yaml", nil
	}

	return "", fmt.Errorf("no config found (checked: $%s, ~/.config/go2voice, /etc/go2voice, ./config.yaml)", ConfigDirEnv)
}

// Dir is the directory relative paths resolve against.
func (c *Config) Dir() string {
	if c.Path == "" {
		return "."
	}
	return filepath.Dir(c.Path)
}

// IntentsPath returns the absolute intents file path, or "" for the
// built-in vocabulary.
func (c *Config) IntentsPath() string {
	return c.resolve(c.Dispatch.IntentsFile)
}

// JournalPath returns the absolute journal database path.
func (c *Config) JournalPath() string {
	return c.resolve(c.Journal.Path)
}

// PIDPath returns the absolute PID lock path.
func (c *Config) PIDPath() string {
	return c.resolve(c.Service.PIDFile)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir(), p)
}

// interpolateEnv replaces ${VAR} with its value. Undefined variables are
// left in place so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

// Validate checks cross-field constraints.
func Validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := cfg.Service.LogFormat; f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", f)
	}

	ex := cfg.Executor
	if len(ex.Command) == 0 || strings.TrimSpace(ex.Command[0]) == "" {
		return fmt.Errorf("executor.command is required")
	}
	for name, d := range map[string]int64{
		"launch_timeout":   int64(ex.LaunchTimeout),
		"write_timeout":    int64(ex.WriteTimeout),
		"shutdown_timeout": int64(ex.ShutdownTimeout),
		"kill_grace":       int64(ex.KillGrace),
	} {
		if d <= 0 {
			return fmt.Errorf("executor.%s must be positive", name)
		}
	}
	if ex.OutputTail <= 0 {
		return fmt.Errorf("executor.output_tail must be positive")
	}

	if cfg.Dispatch.Cooldown < 0 {
		return fmt.Errorf("dispatch.cooldown must not be negative")
	}
	if cfg.Dispatch.Threshold <= 0 {
		return fmt.Errorf("dispatch.threshold must be positive")
	}
	if cfg.Dispatch.GoMinInterval < 0 {
		return fmt.Errorf("dispatch.go_min_interval must not be negative")
	}

	switch cfg.ASR.Source {
	case ASRSourceStdin, ASRSourceNone:
	case ASRSourceCommand:
		if len(cfg.ASR.Command) == 0 {
			return fmt.Errorf("asr.command is required when asr.source is %q", ASRSourceCommand)
		}
	default:
		return fmt.Errorf("asr.source must be one of: stdin, command, none (got %q)", cfg.ASR.Source)
	}

	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required")
		}
		if len(cfg.API.Tokens) == 0 {
			if err := requireResolved("api.api_key", cfg.API.APIKey); err != nil {
				return err
			}
		}
		for i, tok := range cfg.API.Tokens {
			if err := requireResolved(fmt.Sprintf("api.tokens[%d].token", i), tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.tokens[%d] has no scopes", i)
			}
			for _, sc := range tok.Scopes {
				if !auth.ValidScope(sc) {
					return fmt.Errorf("api.tokens[%d]: unknown scope %q", i, sc)
				}
			}
		}
	}

	if cfg.Ingress.Enabled {
		in := cfg.Ingress
		if in.Listen == "" {
			return fmt.Errorf("ingress.listen is required")
		}
		if !strings.HasPrefix(in.Path, "/") {
			return fmt.Errorf("ingress.path must start with / (got %q)", in.Path)
		}
		if in.SignatureHeader == "" {
			return fmt.Errorf("ingress.signature_header is required")
		}
		if err := requireResolved("ingress.secret", in.Secret); err != nil {
			return err
		}
		if _, err := ParseByteSize(in.MaxBodySize); err != nil {
			return fmt.Errorf("ingress.max_body_size: %w", err)
		}
	}

	return nil
}

func requireResolved(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}

// DefaultMaxBodySize applies when ingress.max_body_size is empty.
const DefaultMaxBodySize = 64 * 1024

// ParseByteSize parses "64KB", "1MB" or a plain byte count.
func ParseByteSize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	s := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{{"KB", 1 << 10}, {"MB", 1 << 20}, {"GB", 1 << 30}} {
		if strings.HasSuffix(s, unit.suffix) {
			multiplier = unit.mult
			s = strings.TrimSuffix(s, unit.suffix)
			break
		}
	}

	value, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", size, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	if value > (1<<62)/multiplier {
		return 0, fmt.Errorf("size too large")
	}
	return value * multiplier, nil
}

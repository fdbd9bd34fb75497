// Package config loads application configuration using layered sources:
// built-in defaults, an optional YAML config file, and environment
// variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/rewindbox/config.yaml",
	"/etc/rewindbox/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultMaxUploadBytes is the upload size ceiling. Oversized files are
// rejected before any sandbox resources are allocated.
const DefaultMaxUploadBytes = 100 << 20

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Library  LibraryConfig  `koanf:"library"`
	Logging  LoggingConfig  `koanf:"logging"`
	Security SecurityConfig `koanf:"security"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// LibraryConfig holds the decryption passphrase and sandbox policy for
// uploaded database images. The passphrase is a server-held secret; it
// is injected into the session manager and never read from ambient
// state at query time.
type LibraryConfig struct {
	Passphrase     string `koanf:"passphrase"`
	MaxUploadBytes int64  `koanf:"max_upload_bytes"`
	SandboxDir     string `koanf:"sandbox_dir"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SecurityConfig holds the CORS policy for the API surface.
type SecurityConfig struct {
	CORSOrigins []string `koanf:"cors_origins"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8090,
			Timeout: 60 * time.Second,
		},
		Library: LibraryConfig{
			Passphrase:     "",
			MaxUploadBytes: DefaultMaxUploadBytes,
			SandboxDir:     "", // empty means os.TempDir()
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Security: SecurityConfig{
			CORSOrigins: []string{"*"},
		},
	}
}

// Load builds a Config by layering defaults, an optional YAML file, and
// environment variables (highest priority).
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("processing slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the loaded configuration for values the service
// cannot run without.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Library.Passphrase == "" {
		return fmt.Errorf("library.passphrase is required (set DB_PASSPHRASE)")
	}
	if c.Library.MaxUploadBytes <= 0 {
		return fmt.Errorf("library.max_upload_bytes must be positive")
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config
// paths. Unmapped variables return "" and are skipped, so arbitrary
// environment entries never pollute the config.
func envTransformFunc(key string) string {
	mappings := map[string]string{
		"http_host":        "server.host",
		"http_port":        "server.port",
		"http_timeout":     "server.timeout",
		"db_passphrase":    "library.passphrase",
		"max_upload_bytes": "library.max_upload_bytes",
		"sandbox_dir":      "library.sandbox_dir",
		"log_level":        "logging.level",
		"log_format":       "logging.format",
		"log_caller":       "logging.caller",
		"cors_origins":     "security.cors_origins",
	}
	if mapped, ok := mappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when they arrive as strings from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("setting %s: %w", path, err)
			}
		}
	}
	return nil
}

// Package config provides configuration management for the application.
//
// Values are layered, lowest precedence first: built-in defaults, config.yaml
// (with ${VAR} and ${VAR:-default} placeholders), .env, process environment and
// finally any Source passed to Load, such as a Registry filled from a running
// database container.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pgsmoke/internal/core"
)

// Keys understood by the loader. The datasource keys are the contract between
// the fixture that publishes them and the application that reads them.
const (
	KeyDatasourceURL      = "DATASOURCE_URL"
	KeyDatasourceUsername = "DATASOURCE_USERNAME"
	KeyDatasourcePassword = "DATASOURCE_PASSWORD"
	KeyDatasourceMaxConns = "DATASOURCE_MAX_CONNS"
	KeyContainerImage     = "PGSMOKE_IMAGE"
	KeyStartupTimeout     = "PGSMOKE_STARTUP_TIMEOUT"
	KeyLogFormat          = "LOG_FORMAT"
	KeyLogLevel           = "LOG_LEVEL"

	// KeyConfigFile points at the YAML file; it is only read from the environment.
	KeyConfigFile = "PGSMOKE_CONFIG"
)

// DatasourceKeys lists the keys a fixture must publish for the application to connect.
var DatasourceKeys = []string{KeyDatasourceURL, KeyDatasourceUsername, KeyDatasourcePassword}

const defaultConfigFile = "config.yaml"

// Config holds the application configuration
type Config struct {
	Datasource DatasourceConfig `yaml:"datasource"`
	Container  ContainerConfig  `yaml:"container"`
	Log        LogConfig        `yaml:"log"`
}

// DatasourceConfig holds the database client configuration
type DatasourceConfig struct {
	// URL is the connection string, e.g. postgres://localhost:5432/app?sslmode=disable
	URL string `yaml:"url"`
	// Username and Password override credentials embedded in URL when set
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// MaxConns is the maximum connection pool size (default: 10)
	MaxConns int `yaml:"max_conns"`
}

// ContainerConfig holds defaults for the disposable database container
type ContainerConfig struct {
	Image          string        `yaml:"image"`
	StartupTimeout time.Duration `yaml:"startup_timeout"`
}

// LogConfig holds slog handler configuration
type LogConfig struct {
	// Format is "pretty" or "json"
	Format string `yaml:"format"`
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
}

// Load reads configuration from the layered sources.
// A missing config.yaml or .env is not an error; a malformed one is.
func Load(sources ...Source) (*Config, error) {
	// .env never overrides variables already present in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, core.NewConfigurationError("failed to parse .env", err)
	}

	cfg := buildDefaultConfig()

	path := os.Getenv(KeyConfigFile)
	if path == "" {
		path = defaultConfigFile
	}
	if err := applyYAML(cfg, path); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	for _, src := range sources {
		if src == nil {
			continue
		}
		if err := applyOverrides(cfg, src); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks the datasource keys the application needs to build its client.
func (c *Config) Validate() error {
	if c.Datasource.URL == "" {
		return core.NewConfigurationError(KeyDatasourceURL+" is required", nil)
	}
	u, err := url.Parse(c.Datasource.URL)
	if err != nil {
		return core.NewConfigurationError(KeyDatasourceURL+" is malformed", err)
	}
	if u.Scheme == "" {
		return core.NewConfigurationError(fmt.Sprintf("%s %q has no scheme", KeyDatasourceURL, redact(u)), nil)
	}
	if c.Datasource.MaxConns < 0 {
		return core.NewConfigurationError(fmt.Sprintf("%s must not be negative, got %d", KeyDatasourceMaxConns, c.Datasource.MaxConns), nil)
	}
	if c.Datasource.MaxConns > math.MaxInt32 {
		return core.NewConfigurationError(fmt.Sprintf("%s must not exceed %d, got %d", KeyDatasourceMaxConns, math.MaxInt32, c.Datasource.MaxConns), nil)
	}
	return nil
}

func buildDefaultConfig() *Config {
	return &Config{
		Datasource: DatasourceConfig{
			MaxConns: 10,
		},
		Container: ContainerConfig{
			Image:          "postgres:16-alpine",
			StartupTimeout: 60 * time.Second,
		},
		Log: LogConfig{
			Format: "pretty",
			Level:  "info",
		},
	}
}

// applyYAML overlays the YAML file at path onto cfg and expands placeholders
// in string values.
func applyYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return core.NewConfigurationError("failed to read "+path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return core.NewConfigurationError("failed to parse "+path, err)
	}

	for _, s := range []*string{
		&cfg.Datasource.URL,
		&cfg.Datasource.Username,
		&cfg.Datasource.Password,
		&cfg.Container.Image,
		&cfg.Log.Format,
		&cfg.Log.Level,
	} {
		*s = expandString(*s)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	return applyOverrides(cfg, EnvSource{})
}

// applyOverrides copies every key src knows about onto cfg.
func applyOverrides(cfg *Config, src Source) error {
	strs := map[string]*string{
		KeyDatasourceURL:      &cfg.Datasource.URL,
		KeyDatasourceUsername: &cfg.Datasource.Username,
		KeyDatasourcePassword: &cfg.Datasource.Password,
		KeyContainerImage:     &cfg.Container.Image,
		KeyLogFormat:          &cfg.Log.Format,
		KeyLogLevel:           &cfg.Log.Level,
	}
	for key, dst := range strs {
		if v, ok := src.Lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := src.Lookup(KeyDatasourceMaxConns); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return core.NewConfigurationError(fmt.Sprintf("%s must be an integer, got %q", KeyDatasourceMaxConns, v), err)
		}
		cfg.Datasource.MaxConns = n
	}

	if v, ok := src.Lookup(KeyStartupTimeout); ok && v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return core.NewConfigurationError(fmt.Sprintf("%s must be a duration, got %q", KeyStartupTimeout, v), err)
		}
		cfg.Container.StartupTimeout = d
	}

	return nil
}

func redact(u *url.URL) string {
	if u.User == nil {
		return u.String()
	}
	return u.Redacted()
}

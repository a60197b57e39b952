package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgsmoke/internal/core"
)

var allKeys = []string{
	KeyDatasourceURL,
	KeyDatasourceUsername,
	KeyDatasourcePassword,
	KeyDatasourceMaxConns,
	KeyContainerImage,
	KeyStartupTimeout,
	KeyLogFormat,
	KeyLogLevel,
}

// isolate clears every key Load reads and points it at a config file in a
// fresh temp dir. It returns the config file path, which does not exist yet.
func isolate(t *testing.T) string {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(KeyConfigFile, path)
	return path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.Datasource.URL)
	assert.Equal(t, 10, cfg.Datasource.MaxConns)
	assert.Equal(t, "postgres:16-alpine", cfg.Container.Image)
	assert.Equal(t, 60*time.Second, cfg.Container.StartupTimeout)
	assert.Equal(t, "pretty", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FromEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv(KeyDatasourceURL, "postgres://localhost:5432/app")
	t.Setenv(KeyDatasourceUsername, "app")
	t.Setenv(KeyDatasourcePassword, "secret")
	t.Setenv(KeyDatasourceMaxConns, "3")
	t.Setenv(KeyStartupTimeout, "2m")
	t.Setenv(KeyLogFormat, "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost:5432/app", cfg.Datasource.URL)
	assert.Equal(t, "app", cfg.Datasource.Username)
	assert.Equal(t, "secret", cfg.Datasource.Password)
	assert.Equal(t, 3, cfg.Datasource.MaxConns)
	assert.Equal(t, 2*time.Minute, cfg.Container.StartupTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_YAMLWithPlaceholders(t *testing.T) {
	path := isolate(t)
	writeFile(t, path, `
datasource:
  url: "postgres://${PGSMOKE_T_DB_HOST:-localhost}:5432/app?sslmode=disable"
  username: "${PGSMOKE_T_DB_USER:-sa}"
  password: "${PGSMOKE_T_DB_PASSWORD}"
  max_conns: 4
container:
  image: "postgres:12"
  startup_timeout: 90s
log:
  level: debug
`)
	t.Setenv("PGSMOKE_T_DB_HOST", "db.internal")
	t.Setenv("PGSMOKE_T_DB_PASSWORD", "from-env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://db.internal:5432/app?sslmode=disable", cfg.Datasource.URL)
	assert.Equal(t, "sa", cfg.Datasource.Username)
	assert.Equal(t, "from-env", cfg.Datasource.Password)
	assert.Equal(t, 4, cfg.Datasource.MaxConns)
	assert.Equal(t, "postgres:12", cfg.Container.Image)
	assert.Equal(t, 90*time.Second, cfg.Container.StartupTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched sections keep their defaults
	assert.Equal(t, "pretty", cfg.Log.Format)
}

func TestLoad_Precedence(t *testing.T) {
	path := isolate(t)
	writeFile(t, path, `
datasource:
  url: "postgres://yaml:5432/app"
  username: "yaml-user"
  password: "yaml-password"
`)
	t.Setenv(KeyDatasourceUsername, "env-user")
	t.Setenv(KeyDatasourcePassword, "env-password")

	reg := NewRegistry()
	reg.Add(KeyDatasourcePassword, func() string { return "registry-password" })

	cfg, err := Load(reg)
	require.NoError(t, err)

	assert.Equal(t, "postgres://yaml:5432/app", cfg.Datasource.URL, "yaml beats defaults")
	assert.Equal(t, "env-user", cfg.Datasource.Username, "env beats yaml")
	assert.Equal(t, "registry-password", cfg.Datasource.Password, "registry beats env")
}

func TestLoad_LaterSourcesWin(t *testing.T) {
	isolate(t)

	cfg, err := Load(
		MapSource{KeyDatasourceURL: "postgres://first/app"},
		nil,
		MapSource{KeyDatasourceURL: "postgres://second/app"},
	)
	require.NoError(t, err)
	assert.Equal(t, "postgres://second/app", cfg.Datasource.URL)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		dotenv string
		env    map[string]string
		match  string
	}{
		{
			name:   "malformed dotenv",
			dotenv: "DATASOURCE_URL='unterminated\n",
			match:  "failed to parse .env",
		},
		{
			name:  "malformed yaml",
			yaml:  "datasource: [unterminated",
			match: "failed to parse",
		},
		{
			name:  "non numeric max conns",
			env:   map[string]string{KeyDatasourceMaxConns: "many"},
			match: KeyDatasourceMaxConns,
		},
		{
			name:  "bad startup timeout",
			env:   map[string]string{KeyStartupTimeout: "soon"},
			match: KeyStartupTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := isolate(t)
			if tt.yaml != "" {
				writeFile(t, path, tt.yaml)
			}
			if tt.dotenv != "" {
				dir := t.TempDir()
				writeFile(t, filepath.Join(dir, ".env"), tt.dotenv)
				t.Chdir(dir)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.True(t, core.IsConfigurationError(err), "want configuration error, got %v", err)
			assert.Contains(t, err.Error(), tt.match)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ds      DatasourceConfig
		wantErr string
	}{
		{
			name: "valid postgres url",
			ds:   DatasourceConfig{URL: "postgres://localhost:5432/app", MaxConns: 10},
		},
		{
			name: "valid sqlite url",
			ds:   DatasourceConfig{URL: "sqlite:///tmp/app.db"},
		},
		{
			name:    "missing url",
			ds:      DatasourceConfig{},
			wantErr: "DATASOURCE_URL is required",
		},
		{
			name:    "malformed url",
			ds:      DatasourceConfig{URL: "postgres://host:port-not-a-number/app"},
			wantErr: "DATASOURCE_URL is malformed",
		},
		{
			name:    "url without scheme",
			ds:      DatasourceConfig{URL: "localhost/app"},
			wantErr: "has no scheme",
		},
		{
			name:    "max conns beyond int32",
			ds:      DatasourceConfig{URL: "postgres://localhost/app", MaxConns: math.MaxInt32 + 1},
			wantErr: "must not exceed",
		},
		{
			name:    "negative max conns",
			ds:      DatasourceConfig{URL: "postgres://localhost/app", MaxConns: -1},
			wantErr: "must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Datasource: tt.ds}
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, core.IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_DotenvFillsUnsetKeys(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "DATASOURCE_USERNAME=from-dotenv\n")
	t.Chdir(dir)
	t.Cleanup(func() { _ = os.Unsetenv(KeyDatasourceUsername) })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Datasource.Username)
}

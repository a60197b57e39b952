// Package storage is the data-access layer of the application: it turns the
// datasource configuration into a live connection and runs statements on it.
package storage

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"pgsmoke/internal/core"
	"pgsmoke/internal/observability"
)

// Type constants for storage backends
const (
	TypeSQLite     = "sqlite"
	TypePostgreSQL = "postgresql"
)

// Operation label values used for metrics
const (
	OpExecute     = "execute"
	OpQueryScalar = "query_scalar"
)

// Config holds datasource configuration
type Config struct {
	// URL selects the backend by scheme: postgres:// or postgresql:// for
	// PostgreSQL, sqlite: or file: for SQLite
	URL string
	// Username and Password override credentials embedded in URL (PostgreSQL only)
	Username string
	Password string
	// MaxConns is the maximum connection pool size (default: 10)
	MaxConns int
	// Metrics records statement outcomes; nil disables recording
	Metrics *observability.Metrics
}

// Storage runs statements against a datasource.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Type returns the storage type ("sqlite" or "postgresql")
	Type() string

	// Ping verifies the datasource is reachable.
	Ping(ctx context.Context) error

	// Execute runs a statement and discards any rows it returns.
	Execute(ctx context.Context, sql string) error

	// QueryScalar runs a statement returning a single value and formats it
	// as a string. SQL NULL and empty results are query errors.
	QueryScalar(ctx context.Context, sql string) (string, error)

	// Close releases all resources held by the storage.
	Close() error
}

// New creates a new Storage based on the URL scheme.
// It validates the configuration and establishes the database connection.
func New(ctx context.Context, cfg Config) (Storage, error) {
	if cfg.URL == "" {
		return nil, core.NewConfigurationError("datasource URL is required", nil)
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, core.NewConfigurationError("failed to parse datasource URL", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return NewPostgreSQL(ctx, cfg)
	case "sqlite", "sqlite3":
		return NewSQLite(ctx, SQLiteConfig{Path: sqlitePath(u), Metrics: cfg.Metrics})
	case "file":
		return NewSQLite(ctx, SQLiteConfig{Path: cfg.URL, Metrics: cfg.Metrics})
	default:
		return nil, core.NewConfigurationError(fmt.Sprintf("unknown datasource scheme: %q (valid: postgres, postgresql, sqlite, file)", u.Scheme), nil)
	}
}

// sqlitePath extracts the database path from sqlite:PATH, sqlite:///abs/path
// or sqlite://relative/path.
func sqlitePath(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	return u.Host + u.Path
}

// formatScalar renders a driver value the way a caller expects to read it
// back as text. Timestamps keep their time component; backends that can tell
// a DATE column apart format it before calling formatScalar.
func formatScalar(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case time.Time:
		return x.Format(time.RFC3339Nano), true
	case [16]byte:
		return uuid.UUID(x).String(), true
	case driver.Valuer:
		inner, err := x.Value()
		if err != nil {
			return fmt.Sprint(v), true
		}
		return formatScalar(inner)
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

// observe records the outcome of one statement.
func observe(m *observability.Metrics, backend, op string, start time.Time, err error) {
	m.ObserveQuery(backend, op, time.Since(start), err)
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"pgsmoke/internal/core"
	"pgsmoke/internal/observability"
)

const memoryPath = ":memory:"

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	// Path is the database file path, ":memory:" or a file: DSN
	Path    string
	Metrics *observability.Metrics
}

// sqliteStorage implements Storage for SQLite
type sqliteStorage struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// NewSQLite creates a new SQLite storage connection.
// File databases use WAL mode for concurrent reads while writing.
func NewSQLite(ctx context.Context, cfg SQLiteConfig) (Storage, error) {
	if cfg.Path == "" {
		return nil, core.NewConfigurationError("SQLite path is required", nil)
	}

	dsn := cfg.Path
	switch {
	case dsn == memoryPath, strings.HasPrefix(dsn, "file:"):
	default:
		// Ensure directory exists
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, core.NewConfigurationError(fmt.Sprintf("failed to create directory %s", dir), err)
		}
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.Path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, core.NewConfigurationError("failed to open SQLite database", err)
	}

	// SQLite only allows one writer at a time; a single connection also keeps
	// an in-memory database alive for the lifetime of the storage.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &sqliteStorage{db: db, metrics: cfg.Metrics}

	// Verify connection
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *sqliteStorage) Type() string {
	return TypeSQLite
}

func (s *sqliteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return core.NewQueryError("", "failed to ping SQLite database", err)
	}
	return nil
}

func (s *sqliteStorage) Execute(ctx context.Context, query string) (err error) {
	defer func(start time.Time) { observe(s.metrics, TypeSQLite, OpExecute, start, err) }(time.Now())

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return core.NewQueryError(query, "execute failed", err)
	}
	return nil
}

func (s *sqliteStorage) QueryScalar(ctx context.Context, query string) (result string, err error) {
	defer func(start time.Time) { observe(s.metrics, TypeSQLite, OpQueryScalar, start, err) }(time.Now())

	var v any
	if err := s.db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", core.NewQueryError(query, "query returned no rows", err)
		}
		return "", core.NewQueryError(query, "query failed", err)
	}

	result, ok := formatScalar(v)
	if !ok {
		return "", core.NewQueryError(query, "query returned NULL", nil)
	}
	return result, nil
}

func (s *sqliteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

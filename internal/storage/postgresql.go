package storage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"pgsmoke/internal/core"
	"pgsmoke/internal/observability"
)

// postgresStorage implements Storage for PostgreSQL
type postgresStorage struct {
	pool    *pgxpool.Pool
	metrics *observability.Metrics
}

// NewPostgreSQL creates a new PostgreSQL storage connection.
// It creates a connection pool for efficient connection reuse.
func NewPostgreSQL(ctx context.Context, cfg Config) (Storage, error) {
	if cfg.URL == "" {
		return nil, core.NewConfigurationError("PostgreSQL URL is required", nil)
	}

	// Parse the connection string and create pool config
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, core.NewConfigurationError("failed to parse PostgreSQL URL", err)
	}

	if cfg.Username != "" {
		poolCfg.ConnConfig.User = cfg.Username
	}
	if cfg.Password != "" {
		poolCfg.ConnConfig.Password = cfg.Password
	}

	// Set connection pool size
	if cfg.MaxConns > math.MaxInt32 {
		return nil, core.NewConfigurationError(fmt.Sprintf("max connections %d exceeds %d", cfg.MaxConns, math.MaxInt32), nil)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	} else {
		poolCfg.MaxConns = 10 // default
	}

	// Create the connection pool
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, core.NewConfigurationError("failed to create PostgreSQL connection pool", err)
	}

	s := &postgresStorage{pool: pool, metrics: cfg.Metrics}

	// Verify connection
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *postgresStorage) Type() string {
	return TypePostgreSQL
}

func (s *postgresStorage) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return core.NewQueryError("", "failed to ping PostgreSQL", err)
	}
	return nil
}

func (s *postgresStorage) Execute(ctx context.Context, sql string) (err error) {
	defer func(start time.Time) { observe(s.metrics, TypePostgreSQL, OpExecute, start, err) }(time.Now())

	if _, err := s.pool.Exec(ctx, sql); err != nil {
		return core.NewQueryError(sql, "execute failed", err)
	}
	return nil
}

func (s *postgresStorage) QueryScalar(ctx context.Context, sql string) (result string, err error) {
	defer func(start time.Time) { observe(s.metrics, TypePostgreSQL, OpQueryScalar, start, err) }(time.Now())

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return "", core.NewQueryError(sql, "query failed", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", core.NewQueryError(sql, "query failed", err)
		}
		return "", core.NewQueryError(sql, "query returned no rows", pgx.ErrNoRows)
	}

	values, err := rows.Values()
	if err != nil {
		return "", core.NewQueryError(sql, "query failed", err)
	}
	fields := rows.FieldDescriptions()
	if len(values) == 0 || len(fields) == 0 {
		return "", core.NewQueryError(sql, "query returned no columns", nil)
	}

	result, ok := formatPostgresValue(fields[0].DataTypeOID, values[0])
	if !ok {
		return "", core.NewQueryError(sql, "query returned NULL", nil)
	}
	return result, nil
}

// formatPostgresValue formats v using the column type: a DATE decodes to a
// time.Time at midnight that is indistinguishable from a TIMESTAMP otherwise.
func formatPostgresValue(oid uint32, v any) (string, bool) {
	if t, ok := v.(time.Time); ok && oid == pgtype.DateOID {
		return t.Format(time.DateOnly), true
	}
	return formatScalar(v)
}

func (s *postgresStorage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

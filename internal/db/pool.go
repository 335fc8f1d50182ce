package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Schema is applied by Migrate on startup
const Schema = `
CREATE TABLE IF NOT EXISTS faturas_qr (
	id               uuid PRIMARY KEY,
	user_id          text NOT NULL,
	nif_emitente     text,
	numero_documento text,
	atcud            text,
	data_emissao     text,
	total            numeric,
	retencao         numeric,
	base_total       numeric NOT NULL DEFAULT 0,
	iva_total        numeric NOT NULL DEFAULT 0,
	raw_payload      text NOT NULL,
	record_json      jsonb NOT NULL,
	imagem_url       text,
	created_at       timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS faturas_qr_user_created ON faturas_qr (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS nif_cache (
	nif          text PRIMARY KEY,
	company_name text NOT NULL,
	category_id  int
);
`

// Store wraps the connection pool used for invoices and the NIF cache
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens and verifies a connection pool for databaseURL
func Connect(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("no database configuration")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings optimized for PgBouncer
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Named("db").Info("database connection pool initialized")
	return &Store{pool: pool, logger: logger.Named("db")}, nil
}

// Migrate creates the tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("database connection pool closed")
	}
}

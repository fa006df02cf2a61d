package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"geminivoice-go/internal/migrations"

	_ "github.com/lib/pq"
)

const defaultPGTimeout = 5 * time.Second

// PostgresBackend keeps documents in the documents table (see migrations/sql).
type PostgresBackend struct {
	db             *sql.DB
	skipMigrations bool
}

// NewPostgresBackend opens a connection pool for dsn. Migrations run in Initialize.
func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &PostgresBackend{db: db}, nil
}

// NewPostgresBackendFromDB wraps an existing handle; the schema is assumed to exist.
func NewPostgresBackendFromDB(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db, skipMigrations: true}
}

func (p *PostgresBackend) Name() string { return "postgres" }

func (p *PostgresBackend) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultPGTimeout)
	defer cancel()
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if p.skipMigrations {
		return nil
	}
	if err := migrations.Up(p.db); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Close() error { return p.db.Close() }

func (p *PostgresBackend) Health(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresBackend) GetDocument(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultPGTimeout)
	defer cancel()
	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE doc_key = $1`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ErrNotFound{Key: key}
		}
		return nil, fmt.Errorf("failed to read document %s: %w", key, err)
	}
	return data, nil
}

func (p *PostgresBackend) PutDocument(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, defaultPGTimeout)
	defer cancel()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO documents (doc_key, data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (doc_key)
		DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		key, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", key, err)
	}
	return nil
}

func (p *PostgresBackend) DeleteDocument(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultPGTimeout)
	defer cancel()
	_, err := p.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_key = $1`, key)
	return err
}

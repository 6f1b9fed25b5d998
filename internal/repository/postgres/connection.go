package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantopian/pgcontents/internal/domain/repositories"
)

// DefaultSchema is the schema holding all contents tables. The DDL shipped
// under internal/database/migrations creates it.
const DefaultSchema = "pgcontents"

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds schema-qualified table names. Qualifying once here keeps
// the query strings below free of schema concatenation.
type TableNames struct {
	Schema            string
	Users             string
	Directories       string
	Files             string
	RemoteCheckpoints string
}

// NewTableNames creates table names under the given schema
func NewTableNames(schema string) *TableNames {
	return &TableNames{
		Schema:            schema,
		Users:             fmt.Sprintf("%s.users", schema),
		Directories:       fmt.Sprintf("%s.directories", schema),
		Files:             fmt.Sprintf("%s.files", schema),
		RemoteCheckpoints: fmt.Sprintf("%s.remote_checkpoints", schema),
	}
}

// CreateConnectionPool creates a new pgx connection pool and verifies the
// database is reachable.
//
// Note on table names: our use of fmt.Sprintf for schema-qualified table
// names is safe with prepared statements because the SQL string is
// interpolated BEFORE being sent to the database. All user-supplied values
// travel as query arguments.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	// Configure pool size
	config.MaxConns = 25
	config.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the appropriate query executor for the context.
// If a transaction is present in the context, it returns the transaction.
// Otherwise, it returns the provided pool.
// This enables repositories to automatically participate in transactions when they exist.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}

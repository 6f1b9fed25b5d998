package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantopian/pgcontents/internal/domain/repositories"
)

// PostgresUserRepository implements the UserRepository interface
type PostgresUserRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(config *RepositoryConfig) repositories.UserRepository {
	return &PostgresUserRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Ensure adds the user if they don't already exist
func (r *PostgresUserRepository) Ensure(ctx context.Context, userID string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id)
		VALUES ($1)
	`, r.tables.Users)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, userID); err != nil {
		if IsPgDuplicateError(err) {
			return nil
		}
		return fmt.Errorf("ensure user: %w", err)
	}

	return nil
}

// Exists checks if a user exists
func (r *PostgresUserRepository) Exists(ctx context.Context, userID string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)
	`, r.tables.Users)

	var exists bool
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}

	return exists, nil
}

// List returns all user ids
func (r *PostgresUserRepository) List(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT id FROM %s ORDER BY id
	`, r.tables.Users)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return ids, nil
}

// Purge deletes a user along with their files and directories. A single
// DELETE removes the whole directory tree at once, which satisfies the
// self-referencing foreign key because its checks run after the statement.
func (r *PostgresUserRepository) Purge(ctx context.Context, userID string) error {
	executor := GetExecutor(ctx, r.pool)

	statements := []string{
		fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, r.tables.Files),
		fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, r.tables.Directories),
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Users),
	}
	for _, stmt := range statements {
		if _, err := executor.Exec(ctx, stmt, userID); err != nil {
			return fmt.Errorf("purge user %s: %w", userID, err)
		}
	}

	return nil
}

package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantopian/pgcontents/internal/domain"
	"github.com/quantopian/pgcontents/internal/domain/models"
	"github.com/quantopian/pgcontents/internal/domain/repositories"
	"github.com/quantopian/pgcontents/internal/pathutil"
)

// PostgresCheckpointRepository implements the CheckpointRepository interface
type PostgresCheckpointRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewCheckpointRepository creates a new checkpoint repository
func NewCheckpointRepository(config *RepositoryConfig) repositories.CheckpointRepository {
	return &PostgresCheckpointRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Save appends a new checkpoint and returns it without content
func (r *PostgresCheckpointRepository) Save(ctx context.Context, userID, apiPath string, content []byte) (*models.Checkpoint, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, path, content)
		VALUES ($1, $2, $3)
		RETURNING id, last_modified
	`, r.tables.RemoteCheckpoints)

	cp := models.Checkpoint{
		UserID: userID,
		Path:   apiPath,
	}
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, userID, pathutil.FromAPIFilename(apiPath), content).
		Scan(&cp.ID, &cp.LastModified)
	if err != nil {
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}

	return &cp, nil
}

// Get retrieves one checkpoint with its content
func (r *PostgresCheckpointRepository) Get(ctx context.Context, userID, apiPath string, checkpointID int64) (*models.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, content, last_modified
		FROM %s
		WHERE user_id = $1 AND path = $2 AND id = $3
	`, r.tables.RemoteCheckpoints)

	cp := models.Checkpoint{
		UserID: userID,
		Path:   apiPath,
	}
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, userID, pathutil.FromAPIFilename(apiPath), checkpointID).
		Scan(&cp.ID, &cp.Content, &cp.LastModified)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("checkpoint %d for %s: %w", checkpointID, apiPath, domain.ErrNoSuchCheckpoint)
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}

	return &cp, nil
}

// List lists a path's checkpoints newest first, without content
func (r *PostgresCheckpointRepository) List(ctx context.Context, userID, apiPath string) ([]models.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT id, last_modified
		FROM %s
		WHERE user_id = $1 AND path = $2
		ORDER BY last_modified DESC, id DESC
	`, r.tables.RemoteCheckpoints)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID, pathutil.FromAPIFilename(apiPath))
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []models.Checkpoint
	for rows.Next() {
		cp := models.Checkpoint{UserID: userID, Path: apiPath}
		if err := rows.Scan(&cp.ID, &cp.LastModified); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cps = append(cps, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}

	return cps, nil
}

// LatestPerPath returns each path's newest checkpoint, without content
func (r *PostgresCheckpointRepository) LatestPerPath(ctx context.Context, userID string) ([]models.Checkpoint, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (path) id, path, last_modified
		FROM %s
		WHERE user_id = $1
		ORDER BY path, last_modified DESC, id DESC
	`, r.tables.RemoteCheckpoints)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("latest checkpoints: %w", err)
	}
	defer rows.Close()

	var cps []models.Checkpoint
	for rows.Next() {
		cp := models.Checkpoint{UserID: userID}
		var dbPath string
		if err := rows.Scan(&cp.ID, &dbPath, &cp.LastModified); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.Path = pathutil.ToAPIPath(dbPath)
		cps = append(cps, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}

	return cps, nil
}

// Delete deletes one checkpoint
func (r *PostgresCheckpointRepository) Delete(ctx context.Context, userID, apiPath string, checkpointID int64) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE user_id = $1 AND path = $2 AND id = $3
	`, r.tables.RemoteCheckpoints)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, userID, pathutil.FromAPIFilename(apiPath), checkpointID)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("checkpoint %d for %s: %w", checkpointID, apiPath, domain.ErrNoSuchCheckpoint)
	}

	return nil
}

// DeleteAllForPath deletes every checkpoint for a path
func (r *PostgresCheckpointRepository) DeleteAllForPath(ctx context.Context, userID, apiPath string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE user_id = $1 AND path = $2
	`, r.tables.RemoteCheckpoints)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, userID, pathutil.FromAPIFilename(apiPath)); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}

	return nil
}

// PurgeUser deletes every checkpoint belonging to a user
func (r *PostgresCheckpointRepository) PurgeUser(ctx context.Context, userID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE user_id = $1
	`, r.tables.RemoteCheckpoints)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("purge checkpoints: %w", err)
	}

	return nil
}

// MoveSingle relocates one checkpoint to a new path
func (r *PostgresCheckpointRepository) MoveSingle(ctx context.Context, userID, srcAPIPath, destAPIPath string, checkpointID int64) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET path = $4
		WHERE user_id = $1 AND path = $2 AND id = $3
	`, r.tables.RemoteCheckpoints)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query,
		userID, pathutil.FromAPIFilename(srcAPIPath), checkpointID, pathutil.FromAPIFilename(destAPIPath))
	if err != nil {
		return fmt.Errorf("move checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("checkpoint %d for %s: %w", checkpointID, srcAPIPath, domain.ErrNoSuchCheckpoint)
	}

	return nil
}

// MoveAll relocates the checkpoints of a file, or of every file under a
// directory, to a new path prefix
func (r *PostgresCheckpointRepository) MoveAll(ctx context.Context, userID, srcAPIPath, destAPIPath string) error {
	srcDBPath := pathutil.FromAPIFilename(srcAPIPath)
	destDBPath := pathutil.FromAPIFilename(destAPIPath)

	executor := GetExecutor(ctx, r.pool)

	// Move the checkpoints for the file at the path itself. A no-op when
	// the source path is a directory.
	exact := fmt.Sprintf(`
		UPDATE %s SET path = $3
		WHERE user_id = $1 AND path = $2
	`, r.tables.RemoteCheckpoints)
	if _, err := executor.Exec(ctx, exact, userID, srcDBPath, destDBPath); err != nil {
		return fmt.Errorf("move checkpoints: %w", err)
	}

	// Move the checkpoints for every file under the path. The trailing
	// slash keeps sibling paths sharing the prefix out of the match.
	spliced := fmt.Sprintf(`
		UPDATE %s
		SET path = concat($3::text, right(path, -length($2::text)))
		WHERE user_id = $1 AND starts_with(path, $2 || '/')
	`, r.tables.RemoteCheckpoints)
	if _, err := executor.Exec(ctx, spliced, userID, srcDBPath, destDBPath); err != nil {
		return fmt.Errorf("move descendant checkpoints: %w", err)
	}

	return nil
}

// SelectIDs returns all checkpoint ids belonging to a user
func (r *PostgresCheckpointRepository) SelectIDs(ctx context.Context, userID string) ([]int64, error) {
	query := fmt.Sprintf(`
		SELECT id FROM %s WHERE user_id = $1 ORDER BY id
	`, r.tables.RemoteCheckpoints)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("select checkpoint ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan checkpoint id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoint ids: %w", err)
	}

	return ids, nil
}

// ReencryptRow rewrites one row's content under a row lock
func (r *PostgresCheckpointRepository) ReencryptRow(ctx context.Context, id int64, transform repositories.TransformFn) error {
	selectQuery := fmt.Sprintf(`
		SELECT content FROM %s WHERE id = $1 FOR UPDATE
	`, r.tables.RemoteCheckpoints)
	updateQuery := fmt.Sprintf(`
		UPDATE %s SET content = $2 WHERE id = $1
	`, r.tables.RemoteCheckpoints)

	executor := GetExecutor(ctx, r.pool)

	var content []byte
	if err := executor.QueryRow(ctx, selectQuery, id).Scan(&content); err != nil {
		if IsPgNoRowsError(err) {
			return fmt.Errorf("checkpoint id %d: %w", id, domain.ErrNoSuchCheckpoint)
		}
		return fmt.Errorf("lock checkpoint row: %w", err)
	}

	rewritten, err := transform(content)
	if err != nil {
		return fmt.Errorf("transform checkpoint id %d: %w", id, err)
	}

	if _, err := executor.Exec(ctx, updateQuery, id, rewritten); err != nil {
		return fmt.Errorf("rewrite checkpoint row: %w", err)
	}

	return nil
}

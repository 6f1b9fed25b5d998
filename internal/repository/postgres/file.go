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

// PostgresFileRepository implements the FileRepository interface
type PostgresFileRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewFileRepository creates a new file repository
func NewFileRepository(config *RepositoryConfig) repositories.FileRepository {
	return &PostgresFileRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Get retrieves the file at a path, optionally with its content
func (r *PostgresFileRepository) Get(ctx context.Context, userID, apiPath string, includeContent bool) (*models.File, error) {
	dirname, name := pathutil.SplitAPIFilepath(apiPath)

	var query string
	if includeContent {
		query = fmt.Sprintf(`
			SELECT id, name, user_id, parent_name, content, created_at
			FROM %s
			WHERE user_id = $1 AND parent_name = $2 AND name = $3
		`, r.tables.Files)
	} else {
		query = fmt.Sprintf(`
			SELECT id, name, user_id, parent_name, created_at
			FROM %s
			WHERE user_id = $1 AND parent_name = $2 AND name = $3
		`, r.tables.Files)
	}

	var file models.File
	executor := GetExecutor(ctx, r.pool)
	row := executor.QueryRow(ctx, query, userID, dirname, name)
	var err error
	if includeContent {
		err = row.Scan(&file.ID, &file.Name, &file.UserID, &file.ParentName, &file.Content, &file.CreatedAt)
	} else {
		err = row.Scan(&file.ID, &file.Name, &file.UserID, &file.ParentName, &file.CreatedAt)
	}

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("file %s: %w", apiPath, domain.ErrNoSuchFile)
		}
		return nil, fmt.Errorf("get file: %w", err)
	}

	return &file, nil
}

// GetID retrieves just the id of the file at a path
func (r *PostgresFileRepository) GetID(ctx context.Context, userID, apiPath string) (int64, error) {
	dirname, name := pathutil.SplitAPIFilepath(apiPath)

	query := fmt.Sprintf(`
		SELECT id FROM %s
		WHERE user_id = $1 AND parent_name = $2 AND name = $3
	`, r.tables.Files)

	var id int64
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, userID, dirname, name).Scan(&id); err != nil {
		if IsPgNoRowsError(err) {
			return 0, fmt.Errorf("file %s: %w", apiPath, domain.ErrNoSuchFile)
		}
		return 0, fmt.Errorf("get file id: %w", err)
	}

	return id, nil
}

// Exists checks if a file exists
func (r *PostgresFileRepository) Exists(ctx context.Context, userID, apiPath string) (bool, error) {
	dirname, name := pathutil.SplitAPIFilepath(apiPath)

	query := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s
			WHERE user_id = $1 AND parent_name = $2 AND name = $3
		)
	`, r.tables.Files)

	var exists bool
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, userID, dirname, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check file exists: %w", err)
	}

	return exists, nil
}

// Save upserts the file at a path. Overwriting resets created_at so the
// stored timestamp always reflects the latest write.
func (r *PostgresFileRepository) Save(ctx context.Context, userID, apiPath string, content []byte) error {
	dirname, name := pathutil.SplitAPIFilepath(apiPath)

	query := fmt.Sprintf(`
		INSERT INTO %s (name, user_id, parent_name, content)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, parent_name, name)
		DO UPDATE SET content = EXCLUDED.content, created_at = now()
	`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, name, userID, dirname, content); err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("directory for %s: %w", apiPath, domain.ErrNoSuchDirectory)
		}
		return fmt.Errorf("save file: %w", err)
	}

	return nil
}

// Delete deletes a file
func (r *PostgresFileRepository) Delete(ctx context.Context, userID, apiPath string) error {
	dirname, name := pathutil.SplitAPIFilepath(apiPath)

	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE user_id = $1 AND parent_name = $2 AND name = $3
	`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, userID, dirname, name)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("file %s: %w", apiPath, domain.ErrNoSuchFile)
	}

	return nil
}

// Rename moves a file to a new path. The row id is stable across renames,
// but created_at is reset like it is on save.
func (r *PostgresFileRepository) Rename(ctx context.Context, userID, oldAPIPath, newAPIPath string) error {
	// Overwriting existing files is disallowed
	if exists, err := r.Exists(ctx, userID, newAPIPath); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("file %s: %w", newAPIPath, domain.ErrFileExists)
	}

	oldDirname, oldName := pathutil.SplitAPIFilepath(oldAPIPath)
	newDirname, newName := pathutil.SplitAPIFilepath(newAPIPath)

	query := fmt.Sprintf(`
		UPDATE %s
		SET name = $4, parent_name = $5, created_at = now()
		WHERE user_id = $1 AND parent_name = $2 AND name = $3
	`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, userID, oldDirname, oldName, newName, newDirname)
	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("directory for %s: %w", newAPIPath, domain.ErrNoSuchDirectory)
		}
		return fmt.Errorf("rename file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("file %s: %w", oldAPIPath, domain.ErrNoSuchFile)
	}

	return nil
}

// ListInDirectory lists the files directly inside a directory, without content
func (r *PostgresFileRepository) ListInDirectory(ctx context.Context, userID, apiDirname string) ([]models.File, error) {
	query := fmt.Sprintf(`
		SELECT id, name, user_id, parent_name, created_at
		FROM %s
		WHERE user_id = $1 AND parent_name = $2
		ORDER BY name
	`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID, pathutil.FromAPIDirname(apiDirname))
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []models.File
	for rows.Next() {
		var file models.File
		if err := rows.Scan(&file.ID, &file.Name, &file.UserID, &file.ParentName, &file.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}

	return files, nil
}

// SelectIDs returns all file ids belonging to a user
func (r *PostgresFileRepository) SelectIDs(ctx context.Context, userID string) ([]int64, error) {
	query := fmt.Sprintf(`
		SELECT id FROM %s WHERE user_id = $1 ORDER BY id
	`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("select file ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan file id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file ids: %w", err)
	}

	return ids, nil
}

// ReencryptRow rewrites one row's content under a row lock
func (r *PostgresFileRepository) ReencryptRow(ctx context.Context, id int64, transform repositories.TransformFn) error {
	selectQuery := fmt.Sprintf(`
		SELECT content FROM %s WHERE id = $1 FOR UPDATE
	`, r.tables.Files)
	updateQuery := fmt.Sprintf(`
		UPDATE %s SET content = $2 WHERE id = $1
	`, r.tables.Files)

	executor := GetExecutor(ctx, r.pool)

	var content []byte
	if err := executor.QueryRow(ctx, selectQuery, id).Scan(&content); err != nil {
		if IsPgNoRowsError(err) {
			return fmt.Errorf("file id %d: %w", id, domain.ErrNoSuchFile)
		}
		return fmt.Errorf("lock file row: %w", err)
	}

	rewritten, err := transform(content)
	if err != nil {
		return fmt.Errorf("transform file id %d: %w", id, err)
	}

	if _, err := executor.Exec(ctx, updateQuery, id, rewritten); err != nil {
		return fmt.Errorf("rewrite file row: %w", err)
	}

	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantopian/pgcontents/internal/domain"
	"github.com/quantopian/pgcontents/internal/domain/models"
	"github.com/quantopian/pgcontents/internal/domain/repositories"
	"github.com/quantopian/pgcontents/internal/pathutil"
)

// PostgresDirectoryRepository implements the DirectoryRepository interface
type PostgresDirectoryRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(config *RepositoryConfig) repositories.DirectoryRepository {
	return &PostgresDirectoryRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create creates a directory. The parent must already exist.
func (r *PostgresDirectoryRepository) Create(ctx context.Context, userID, apiDirname string) error {
	dbDirname := pathutil.FromAPIDirname(apiDirname)

	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, name, parent_user_id, parent_name)
		VALUES ($1, $2, $3, $4)
	`, r.tables.Directories)

	var parentUserID, parentName *string
	if !pathutil.IsRoot(apiDirname) {
		parent := pathutil.ParentDBDirname(dbDirname)
		parentUserID = &userID
		parentName = &parent
	}

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, userID, dbDirname, parentUserID, parentName); err != nil {
		if IsPgDuplicateError(err) {
			return fmt.Errorf("directory %s: %w", apiDirname, domain.ErrDirectoryExists)
		}
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("parent of %s: %w", apiDirname, domain.ErrNoSuchDirectory)
		}
		return fmt.Errorf("create directory: %w", err)
	}

	return nil
}

// Ensure creates a directory and any missing ancestors
func (r *PostgresDirectoryRepository) Ensure(ctx context.Context, userID, apiDirname string) error {
	dbDirname := pathutil.FromAPIDirname(apiDirname)

	for _, prefix := range pathutil.PrefixDirnames(dbDirname) {
		err := r.Create(ctx, userID, pathutil.ToAPIPath(prefix))
		if err != nil && !errors.Is(err, domain.ErrDirectoryExists) {
			return err
		}
	}

	return nil
}

// Exists checks if a directory exists
func (r *PostgresDirectoryRepository) Exists(ctx context.Context, userID, apiDirname string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE user_id = $1 AND name = $2)
	`, r.tables.Directories)

	var exists bool
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, userID, pathutil.FromAPIDirname(apiDirname)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check directory exists: %w", err)
	}

	return exists, nil
}

// Delete deletes an empty directory
func (r *PostgresDirectoryRepository) Delete(ctx context.Context, userID, apiDirname string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE user_id = $1 AND name = $2
	`, r.tables.Directories)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, userID, pathutil.FromAPIDirname(apiDirname))
	if err != nil {
		// Rows still referencing the directory mean it isn't empty
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("directory %s: %w", apiDirname, domain.ErrDirectoryNotEmpty)
		}
		return fmt.Errorf("delete directory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("directory %s: %w", apiDirname, domain.ErrNoSuchDirectory)
	}

	return nil
}

// Rename renames or moves a directory along with everything under it.
// Files follow their directories through the ON UPDATE CASCADE on the
// files -> directories foreign key.
func (r *PostgresDirectoryRepository) Rename(ctx context.Context, userID, oldAPIDirname, newAPIDirname string) error {
	if pathutil.IsRoot(oldAPIDirname) {
		return domain.ErrRenameRoot
	}

	oldDBDirname := pathutil.FromAPIDirname(oldAPIDirname)
	newDBDirname := pathutil.FromAPIDirname(newAPIDirname)

	// Overwriting existing directories is disallowed
	if exists, err := r.Exists(ctx, userID, newAPIDirname); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("directory %s: %w", newAPIDirname, domain.ErrDirectoryExists)
	}

	executor := GetExecutor(ctx, r.pool)

	// The parent foreign key is violated between the rename of a directory
	// and the splice of its descendants, so defer it to commit.
	deferFK := fmt.Sprintf(`SET CONSTRAINTS %s.directories_parent_user_id_fkey DEFERRED`, r.tables.Schema)
	if _, err := executor.Exec(ctx, deferFK); err != nil {
		return fmt.Errorf("defer parent constraint: %w", err)
	}

	newParent := pathutil.ParentDBDirname(newDBDirname)
	renamed := fmt.Sprintf(`
		UPDATE %s
		SET name = $3, parent_name = $4
		WHERE user_id = $1 AND name = $2
	`, r.tables.Directories)
	tag, err := executor.Exec(ctx, renamed, userID, oldDBDirname, newDBDirname, newParent)
	if err != nil {
		return fmt.Errorf("rename directory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("directory %s: %w", oldAPIDirname, domain.ErrNoSuchDirectory)
	}

	// Splice the new prefix onto every descendant in a single statement so
	// the non-deferrable prefix check constraint stays satisfied.
	spliced := fmt.Sprintf(`
		UPDATE %s
		SET name = concat($3::text, right(name, -length($2::text))),
		    parent_name = concat($3::text, right(parent_name, -length($2::text)))
		WHERE user_id = $1
		  AND starts_with(name, $2)
		  AND starts_with(parent_name, $2)
	`, r.tables.Directories)
	if _, err := executor.Exec(ctx, spliced, userID, oldDBDirname, newDBDirname); err != nil {
		return fmt.Errorf("rename descendants: %w", err)
	}

	return nil
}

// ListSubdirectories lists the immediate child directories
func (r *PostgresDirectoryRepository) ListSubdirectories(ctx context.Context, userID, apiDirname string) ([]models.Directory, error) {
	query := fmt.Sprintf(`
		SELECT user_id, name, parent_name
		FROM %s
		WHERE user_id = $1 AND parent_name = $2
		ORDER BY name
	`, r.tables.Directories)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID, pathutil.FromAPIDirname(apiDirname))
	if err != nil {
		return nil, fmt.Errorf("list subdirectories: %w", err)
	}
	defer rows.Close()

	var dirs []models.Directory
	for rows.Next() {
		var dir models.Directory
		if err := rows.Scan(&dir.UserID, &dir.Name, &dir.ParentName); err != nil {
			return nil, fmt.Errorf("scan directory: %w", err)
		}
		dirs = append(dirs, dir)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate directories: %w", err)
	}

	return dirs, nil
}

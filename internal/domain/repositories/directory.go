package repositories

import (
	"context"

	"github.com/quantopian/pgcontents/internal/domain/models"
)

// DirectoryRepository defines data access operations for the directory
// tree. All paths are API style; conversion to db style happens inside the
// implementation.
type DirectoryRepository interface {
	// Create creates a directory. The parent must already exist.
	Create(ctx context.Context, userID, apiDirname string) error

	// Ensure creates a directory if it doesn't already exist
	Ensure(ctx context.Context, userID, apiDirname string) error

	// Exists checks if a directory exists
	Exists(ctx context.Context, userID, apiDirname string) (bool, error)

	// Delete deletes an empty directory. Returns ErrDirectoryNotEmpty when
	// children remain, ErrNoSuchDirectory when no row matches.
	Delete(ctx context.Context, userID, apiDirname string) error

	// Rename renames or moves a directory and, transitively, everything
	// under it. File rows relocate through the schema's update cascade.
	Rename(ctx context.Context, userID, oldAPIDirname, newAPIDirname string) error

	// ListSubdirectories lists the immediate child directories
	ListSubdirectories(ctx context.Context, userID, apiDirname string) ([]models.Directory, error)
}

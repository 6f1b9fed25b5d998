package repositories

import (
	"context"

	"github.com/quantopian/pgcontents/internal/domain/models"
)

// TransformFn rewrites one content blob. Used by the re-encryption
// primitives to apply decrypt-then-encrypt under a row lock.
type TransformFn func(content []byte) ([]byte, error)

// FileRepository defines data access operations for file rows. Content
// passed in and out is ciphertext; encryption and decryption stay with the
// caller.
type FileRepository interface {
	// Get retrieves the file at a path, optionally with its content.
	// Returns ErrNoSuchFile when no row matches.
	Get(ctx context.Context, userID, apiPath string, includeContent bool) (*models.File, error)

	// GetID retrieves just the id of the file at a path
	GetID(ctx context.Context, userID, apiPath string) (int64, error)

	// Exists checks if a file exists
	Exists(ctx context.Context, userID, apiPath string) (bool, error)

	// Save upserts the file at a path. The parent directory must exist.
	Save(ctx context.Context, userID, apiPath string, content []byte) error

	// Delete deletes a file. Returns ErrNoSuchFile when no row matches.
	Delete(ctx context.Context, userID, apiPath string) error

	// Rename moves a file to a new path, refusing to overwrite an existing
	// destination with ErrFileExists. The row id is stable across renames.
	Rename(ctx context.Context, userID, oldAPIPath, newAPIPath string) error

	// ListInDirectory lists the files directly inside a directory, without
	// content, ordered by name
	ListInDirectory(ctx context.Context, userID, apiDirname string) ([]models.File, error)

	// SelectIDs returns all file ids belonging to a user
	SelectIDs(ctx context.Context, userID string) ([]int64, error)

	// ReencryptRow rewrites one row's content under a row lock
	ReencryptRow(ctx context.Context, id int64, transform TransformFn) error
}

package repositories

import (
	"context"

	"github.com/quantopian/pgcontents/internal/domain/models"
)

// CheckpointRepository defines data access operations for the append-only
// checkpoint log. Checkpoints reference files by path only; no foreign key
// ties them to file rows, so they survive file deletion and are relocated
// explicitly on renames.
type CheckpointRepository interface {
	// Save appends a new checkpoint and returns it without content
	Save(ctx context.Context, userID, apiPath string, content []byte) (*models.Checkpoint, error)

	// Get retrieves one checkpoint with its content. Returns
	// ErrNoSuchCheckpoint when no row matches the id/path pair.
	Get(ctx context.Context, userID, apiPath string, checkpointID int64) (*models.Checkpoint, error)

	// List lists a path's checkpoints newest first, without content
	List(ctx context.Context, userID, apiPath string) ([]models.Checkpoint, error)

	// LatestPerPath returns each path's newest checkpoint, without content
	LatestPerPath(ctx context.Context, userID string) ([]models.Checkpoint, error)

	// Delete deletes one checkpoint. Returns ErrNoSuchCheckpoint when no
	// row matches.
	Delete(ctx context.Context, userID, apiPath string, checkpointID int64) error

	// DeleteAllForPath deletes every checkpoint for a path
	DeleteAllForPath(ctx context.Context, userID, apiPath string) error

	// PurgeUser deletes every checkpoint belonging to a user
	PurgeUser(ctx context.Context, userID string) error

	// MoveSingle relocates one checkpoint to a new path. Returns
	// ErrNoSuchCheckpoint when no row matches.
	MoveSingle(ctx context.Context, userID, srcAPIPath, destAPIPath string, checkpointID int64) error

	// MoveAll relocates the checkpoints of a file, or of every file under a
	// directory, to a new path prefix
	MoveAll(ctx context.Context, userID, srcAPIPath, destAPIPath string) error

	// SelectIDs returns all checkpoint ids belonging to a user
	SelectIDs(ctx context.Context, userID string) ([]int64, error)

	// ReencryptRow rewrites one row's content under a row lock
	ReencryptRow(ctx context.Context, id int64, transform TransformFn) error
}

package repositories

import "context"

// UserRepository defines data access operations for user rows. Users are
// created implicitly on first use rather than through a signup flow.
type UserRepository interface {
	// Ensure adds the user if they don't already exist
	Ensure(ctx context.Context, userID string) error

	// Exists checks if a user exists
	Exists(ctx context.Context, userID string) (bool, error)

	// List returns all user ids
	List(ctx context.Context) ([]string, error)

	// Purge deletes a user and their files and directories. Checkpoints are
	// an independent log and are purged through the CheckpointRepository.
	Purge(ctx context.Context, userID string) error
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantopian/pgcontents/internal/crypto"
	"github.com/quantopian/pgcontents/internal/domain/models"
	"github.com/quantopian/pgcontents/internal/domain/repositories"
	"github.com/quantopian/pgcontents/internal/pathutil"
)

// CheckpointsService implements the append-only checkpoint API. Checkpoint
// content is re-encoded from decrypted file content rather than copied
// ciphertext, so every row is always readable with the current key.
type CheckpointsService struct {
	files       repositories.FileRepository
	dirs        repositories.DirectoryRepository
	checkpoints repositories.CheckpointRepository
	txManager   repositories.TransactionManager
	cryptoFor   crypto.Factory
	maxFileSize int64
	logger      *slog.Logger
}

// NewCheckpointsService creates a new checkpoints service
func NewCheckpointsService(
	files repositories.FileRepository,
	dirs repositories.DirectoryRepository,
	checkpoints repositories.CheckpointRepository,
	txManager repositories.TransactionManager,
	cryptoFor crypto.Factory,
	maxFileSize int64,
	logger *slog.Logger,
) *CheckpointsService {
	return &CheckpointsService{
		files:       files,
		dirs:        dirs,
		checkpoints: checkpoints,
		txManager:   txManager,
		cryptoFor:   cryptoFor,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Create snapshots the current content of the file at the path
func (s *CheckpointsService) Create(ctx context.Context, userID, apiPath string) (*models.Checkpoint, error) {
	apiPath, err := pathutil.NormalizeAPIPath(apiPath)
	if err != nil {
		return nil, err
	}

	c, err := s.cryptoFor(userID)
	if err != nil {
		return nil, err
	}

	var cp *models.Checkpoint
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		file, err := s.files.Get(txCtx, userID, apiPath, true)
		if err != nil {
			return err
		}
		plaintext, err := c.Decrypt(file.Content)
		if err != nil {
			return fmt.Errorf("file %s: %w", apiPath, err)
		}
		ciphertext, err := preprocessContent(c, s.maxFileSize, apiPath, plaintext)
		if err != nil {
			return err
		}
		cp, err = s.checkpoints.Save(txCtx, userID, apiPath, ciphertext)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("checkpoint created", "user_id", userID, "path", apiPath, "checkpoint_id", cp.ID)
	return cp, nil
}

// List returns the checkpoints of a path, newest first
func (s *CheckpointsService) List(ctx context.Context, userID, apiPath string) ([]models.Checkpoint, error) {
	apiPath, err := pathutil.NormalizeAPIPath(apiPath)
	if err != nil {
		return nil, err
	}
	return s.checkpoints.List(ctx, userID, apiPath)
}

// Restore writes a checkpoint's content back to its file path, recreating
// missing parent directories on the way.
func (s *CheckpointsService) Restore(ctx context.Context, userID, apiPath string, checkpointID int64) error {
	apiPath, err := pathutil.NormalizeAPIPath(apiPath)
	if err != nil {
		return err
	}

	c, err := s.cryptoFor(userID)
	if err != nil {
		return err
	}

	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		cp, err := s.checkpoints.Get(txCtx, userID, apiPath, checkpointID)
		if err != nil {
			return err
		}
		plaintext, err := c.Decrypt(cp.Content)
		if err != nil {
			return fmt.Errorf("checkpoint %d for %s: %w", checkpointID, apiPath, err)
		}
		ciphertext, err := preprocessContent(c, s.maxFileSize, apiPath, plaintext)
		if err != nil {
			return err
		}

		// The file may have been deleted along with its directories since
		// the checkpoint was taken
		dirname, _ := pathutil.SplitAPIFilepath(apiPath)
		if err := s.dirs.Ensure(txCtx, userID, pathutil.ToAPIPath(dirname)); err != nil {
			return err
		}
		return s.files.Save(txCtx, userID, apiPath, ciphertext)
	})
	if err != nil {
		return err
	}

	s.logger.Info("checkpoint restored", "user_id", userID, "path", apiPath, "checkpoint_id", checkpointID)
	return nil
}

// Delete removes one checkpoint
func (s *CheckpointsService) Delete(ctx context.Context, userID, apiPath string, checkpointID int64) error {
	apiPath, err := pathutil.NormalizeAPIPath(apiPath)
	if err != nil {
		return err
	}
	if err := s.checkpoints.Delete(ctx, userID, apiPath, checkpointID); err != nil {
		return err
	}

	s.logger.Info("checkpoint deleted", "user_id", userID, "path", apiPath, "checkpoint_id", checkpointID)
	return nil
}

// DeleteAllForPath removes every checkpoint of a path
func (s *CheckpointsService) DeleteAllForPath(ctx context.Context, userID, apiPath string) error {
	apiPath, err := pathutil.NormalizeAPIPath(apiPath)
	if err != nil {
		return err
	}
	return s.checkpoints.DeleteAllForPath(ctx, userID, apiPath)
}

// LatestPerPath returns each path's newest checkpoint, without content
func (s *CheckpointsService) LatestPerPath(ctx context.Context, userID string) ([]models.Checkpoint, error) {
	return s.checkpoints.LatestPerPath(ctx, userID)
}

// GetContent returns a checkpoint's decrypted content
func (s *CheckpointsService) GetContent(ctx context.Context, userID, apiPath string, checkpointID int64) ([]byte, error) {
	apiPath, err := pathutil.NormalizeAPIPath(apiPath)
	if err != nil {
		return nil, err
	}

	c, err := s.cryptoFor(userID)
	if err != nil {
		return nil, err
	}
	cp, err := s.checkpoints.Get(ctx, userID, apiPath, checkpointID)
	if err != nil {
		return nil, err
	}
	plaintext, err := c.Decrypt(cp.Content)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %d for %s: %w", checkpointID, apiPath, err)
	}
	return plaintext, nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantopian/pgcontents/internal/crypto"
	"github.com/quantopian/pgcontents/internal/domain/repositories"
)

// ReencryptService rewrites stored ciphertext under a new key, or strips
// encryption entirely. Runs are idempotent: the transitional crypto reads
// rows already carrying the new key as readily as rows still on the old one.
type ReencryptService struct {
	users       repositories.UserRepository
	files       repositories.FileRepository
	checkpoints repositories.CheckpointRepository
	txManager   repositories.TransactionManager
	logger      *slog.Logger
}

// NewReencryptService creates a new re-encryption service
func NewReencryptService(
	users repositories.UserRepository,
	files repositories.FileRepository,
	checkpoints repositories.CheckpointRepository,
	txManager repositories.TransactionManager,
	logger *slog.Logger,
) *ReencryptService {
	return &ReencryptService{
		users:       users,
		files:       files,
		checkpoints: checkpoints,
		txManager:   txManager,
		logger:      logger,
	}
}

// ReencryptUser re-encrypts every file and checkpoint of one user
func (s *ReencryptService) ReencryptUser(ctx context.Context, userID string, oldFactory, newFactory crypto.Factory) error {
	oldCrypto, err := oldFactory(userID)
	if err != nil {
		return err
	}
	newCrypto, err := newFactory(userID)
	if err != nil {
		return err
	}
	if _, ok := newCrypto.(crypto.NoEncryption); ok {
		return fmt.Errorf("re-encrypting to no encryption would strip keys; run unencrypt instead")
	}

	// Reads rows under either key, always writes the new one
	transitional, err := crypto.NewFallback(newCrypto, oldCrypto)
	if err != nil {
		return err
	}

	return s.rewriteUser(ctx, userID, transitional.Decrypt, transitional.Encrypt)
}

// ReencryptAllUsers re-encrypts every user's content in turn
func (s *ReencryptService) ReencryptAllUsers(ctx context.Context, oldFactory, newFactory crypto.Factory) error {
	s.logger.Info("beginning re-encryption for all users")
	userIDs, err := s.users.List(ctx)
	if err != nil {
		return err
	}
	for _, userID := range userIDs {
		if err := s.ReencryptUser(ctx, userID, oldFactory, newFactory); err != nil {
			return fmt.Errorf("user %s: %w", userID, err)
		}
	}
	s.logger.Info("finished re-encryption for all users")
	return nil
}

// UnencryptUser strips encryption from every file and checkpoint of one user
func (s *ReencryptService) UnencryptUser(ctx context.Context, userID string, oldFactory crypto.Factory) error {
	oldCrypto, err := oldFactory(userID)
	if err != nil {
		return err
	}
	return s.rewriteUser(ctx, userID, oldCrypto.Decrypt, crypto.NoEncryption{}.Encrypt)
}

// UnencryptAllUsers strips encryption from every user's content in turn
func (s *ReencryptService) UnencryptAllUsers(ctx context.Context, oldFactory crypto.Factory) error {
	s.logger.Info("beginning unencryption for all users")
	userIDs, err := s.users.List(ctx)
	if err != nil {
		return err
	}
	for _, userID := range userIDs {
		if err := s.UnencryptUser(ctx, userID, oldFactory); err != nil {
			return fmt.Errorf("user %s: %w", userID, err)
		}
	}
	s.logger.Info("finished unencryption for all users")
	return nil
}

// rewriteUser applies decrypt-then-encrypt to every content row of a user
// inside one transaction.
//
// Rewriting files and checkpoints in the same transaction relies on
// checkpoint creation always writing freshly encoded content from the
// application rather than copying rows inside the database. If checkpoint
// creation ever becomes an in-database copy, file re-encryption must commit
// before checkpoint re-encryption starts, or a checkpoint created mid-run
// could keep the old key forever.
func (s *ReencryptService) rewriteUser(ctx context.Context, userID string, decrypt, encrypt func([]byte) ([]byte, error)) error {
	transform := func(content []byte) ([]byte, error) {
		plaintext, err := decrypt(content)
		if err != nil {
			return nil, err
		}
		return encrypt(plaintext)
	}

	s.logger.Info("begin content rewrite", "user_id", userID)
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		fileIDs, err := s.files.SelectIDs(txCtx, userID)
		if err != nil {
			return err
		}
		s.logger.Info("rewriting files", "user_id", userID, "count", len(fileIDs))
		for _, id := range fileIDs {
			if err := s.files.ReencryptRow(txCtx, id, transform); err != nil {
				return err
			}
		}

		checkpointIDs, err := s.checkpoints.SelectIDs(txCtx, userID)
		if err != nil {
			return err
		}
		s.logger.Info("rewriting checkpoints", "user_id", userID, "count", len(checkpointIDs))
		for _, id := range checkpointIDs {
			if err := s.checkpoints.ReencryptRow(txCtx, id, transform); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("finished content rewrite", "user_id", userID)
	return nil
}

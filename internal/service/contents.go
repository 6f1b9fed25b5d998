package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/quantopian/pgcontents/internal/config"
	"github.com/quantopian/pgcontents/internal/crypto"
	"github.com/quantopian/pgcontents/internal/domain"
	"github.com/quantopian/pgcontents/internal/domain/models"
	"github.com/quantopian/pgcontents/internal/domain/repositories"
	"github.com/quantopian/pgcontents/internal/filetypes"
	"github.com/quantopian/pgcontents/internal/pathutil"
)

// directoryTimestamp stands in for created/last_modified on directories,
// which carry no timestamps of their own.
var directoryTimestamp = time.Unix(0, 0).UTC()

// SaveRequest is the deserialized body of a save operation
type SaveRequest struct {
	Type    string `json:"type"`
	Format  string `json:"format,omitempty"`
	Content any    `json:"content,omitempty"`
}

// Validate checks the request shape before any database work
func (r *SaveRequest) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.Type,
			validation.Required,
			validation.In(models.TypeNotebook, models.TypeFile, models.TypeDirectory),
		),
	)
	if err != nil {
		return err
	}

	switch r.Type {
	case models.TypeNotebook:
		if r.Content == nil {
			return fmt.Errorf("no content provided")
		}
	case models.TypeFile:
		if r.Content == nil {
			return fmt.Errorf("no content provided")
		}
		if r.Format != models.FormatText && r.Format != models.FormatBase64 {
			return fmt.Errorf("file content must declare format %q or %q", models.FormatText, models.FormatBase64)
		}
	}

	return nil
}

// ContentsService implements the filesystem-like contents API on top of the
// directory and file repositories. Every public operation runs in a single
// transaction.
type ContentsService struct {
	users       repositories.UserRepository
	dirs        repositories.DirectoryRepository
	files       repositories.FileRepository
	checkpoints repositories.CheckpointRepository
	txManager   repositories.TransactionManager
	registry    *filetypes.Registry
	cryptoFor   crypto.Factory
	maxFileSize int64
	logger      *slog.Logger
}

// NewContentsService creates a new contents service
func NewContentsService(
	users repositories.UserRepository,
	dirs repositories.DirectoryRepository,
	files repositories.FileRepository,
	checkpoints repositories.CheckpointRepository,
	txManager repositories.TransactionManager,
	registry *filetypes.Registry,
	cryptoFor crypto.Factory,
	maxFileSize int64,
	logger *slog.Logger,
) *ContentsService {
	return &ContentsService{
		users:       users,
		dirs:        dirs,
		files:       files,
		checkpoints: checkpoints,
		txManager:   txManager,
		registry:    registry,
		cryptoFor:   cryptoFor,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// EnsureUser creates the user row and root directory if they are missing
func (s *ContentsService) EnsureUser(ctx context.Context, userID string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	return s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		return s.ensureUser(txCtx, userID)
	})
}

func (s *ContentsService) ensureUser(ctx context.Context, userID string) error {
	if err := s.users.Ensure(ctx, userID); err != nil {
		return err
	}
	return s.dirs.Ensure(ctx, userID, "")
}

// DirExists checks if a directory exists at the path
func (s *ContentsService) DirExists(ctx context.Context, userID, apiPath string) (bool, error) {
	apiPath, err := pathutil.NormalizeAPIPath(apiPath)
	if err != nil {
		return false, err
	}
	return s.dirs.Exists(ctx, userID, apiPath)
}

// FileExists checks if a file exists at the path
func (s *ContentsService) FileExists(ctx context.Context, userID, apiPath string) (bool, error) {
	apiPath, err := pathutil.NormalizeAPIPath(apiPath)
	if err != nil {
		return false, err
	}
	return s.files.Exists(ctx, userID, apiPath)
}

// Get retrieves the content model at a path. When typeHint is empty the
// type is guessed from the path's extension and the directory tree. The
// format parameter only applies to plain files.
func (s *ContentsService) Get(ctx context.Context, userID, apiPath string, includeContent bool, typeHint, format string) (*models.Content, error) {
	apiPath, err := pathutil.NormalizeAPIPath(apiPath)
	if err != nil {
		return nil, err
	}

	var model *models.Content
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureUser(txCtx, userID); err != nil {
			return err
		}
		model, err = s.get(txCtx, userID, apiPath, includeContent, typeHint, format)
		return err
	})
	if err != nil {
		return nil, err
	}
	return model, nil
}

func (s *ContentsService) get(ctx context.Context, userID, apiPath string, includeContent bool, typeHint, format string) (*models.Content, error) {
	typ := typeHint
	if typ == "" {
		var err error
		typ, err = s.guessType(ctx, userID, apiPath)
		if err != nil {
			return nil, err
		}
	}

	switch typ {
	case models.TypeDirectory:
		return s.getDirectory(ctx, userID, apiPath, includeContent)
	case models.TypeNotebook, models.TypeFile:
		return s.getFile(ctx, userID, apiPath, typ, includeContent, format)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", domain.ErrValidation, typ)
	}
}

// guessType resolves the content type of a path. Notebook extensions win
// over directories of the same name, matching the Jupyter contents API.
func (s *ContentsService) guessType(ctx context.Context, userID, apiPath string) (string, error) {
	if s.registry.Guess(apiPath).Type == models.TypeNotebook {
		return models.TypeNotebook, nil
	}
	exists, err := s.dirs.Exists(ctx, userID, apiPath)
	if err != nil {
		return "", err
	}
	if exists {
		return models.TypeDirectory, nil
	}
	return models.TypeFile, nil
}

func (s *ContentsService) getDirectory(ctx context.Context, userID, apiPath string, includeContent bool) (*models.Content, error) {
	exists, err := s.dirs.Exists(ctx, userID, apiPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("directory %s: %w", apiPath, domain.ErrNoSuchDirectory)
	}

	model := baseModel(apiPath)
	model.Type = models.TypeDirectory
	model.Created = &directoryTimestamp
	model.LastModified = &directoryTimestamp
	if !includeContent {
		return model, nil
	}

	subdirs, err := s.dirs.ListSubdirectories(ctx, userID, apiPath)
	if err != nil {
		return nil, err
	}
	files, err := s.files.ListInDirectory(ctx, userID, apiPath)
	if err != nil {
		return nil, err
	}

	children := make([]*models.Content, 0, len(subdirs)+len(files))
	for _, dir := range subdirs {
		child := baseModel(dir.APIPath())
		child.Type = models.TypeDirectory
		child.Created = &directoryTimestamp
		child.LastModified = &directoryTimestamp
		children = append(children, child)
	}
	for i := range files {
		children = append(children, s.fileModel(&files[i], ""))
	}

	format := models.FormatJSON
	model.Format = &format
	model.Content = children
	return model, nil
}

func (s *ContentsService) getFile(ctx context.Context, userID, apiPath, typ string, includeContent bool, format string) (*models.Content, error) {
	file, err := s.files.Get(ctx, userID, apiPath, includeContent)
	if err != nil {
		if errors.Is(err, domain.ErrNoSuchFile) {
			// Report a type mismatch when the path is really a directory
			if exists, dirErr := s.dirs.Exists(ctx, userID, apiPath); dirErr == nil && exists {
				return nil, fmt.Errorf("%w: %s is a directory, not a %s", domain.ErrValidation, apiPath, typ)
			}
		}
		return nil, err
	}

	model := s.fileModel(file, typ)
	if !includeContent {
		return model, nil
	}

	c, err := s.cryptoFor(userID)
	if err != nil {
		return nil, err
	}
	plaintext, err := c.Decrypt(file.Content)
	if err != nil {
		return nil, fmt.Errorf("file %s: %w", apiPath, err)
	}

	if err := s.attachContent(model, plaintext, format); err != nil {
		return nil, fmt.Errorf("file %s: %w", apiPath, err)
	}
	return model, nil
}

// Save writes a notebook, file or directory at the path and returns the
// resulting model without content.
func (s *ContentsService) Save(ctx context.Context, userID, apiPath string, req *SaveRequest) (*models.Content, error) {
	apiPath, err := pathutil.NormalizeAPIPath(apiPath)
	if err != nil {
		return nil, err
	}
	if err := validatePath(apiPath); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	var model *models.Content
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureUser(txCtx, userID); err != nil {
			return err
		}

		switch req.Type {
		case models.TypeDirectory:
			if err := s.dirs.Ensure(txCtx, userID, apiPath); err != nil {
				return err
			}
		default:
			plaintext, err := encodeIncoming(req)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrValidation, err)
			}
			c, err := s.cryptoFor(userID)
			if err != nil {
				return err
			}
			ciphertext, err := preprocessContent(c, s.maxFileSize, apiPath, plaintext)
			if err != nil {
				return err
			}
			if err := s.files.Save(txCtx, userID, apiPath, ciphertext); err != nil {
				return err
			}
		}

		model, err = s.get(txCtx, userID, apiPath, false, req.Type, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("content saved", "user_id", userID, "path", apiPath, "type", req.Type)
	return model, nil
}

// Rename moves a file or directory to a new path. Checkpoints follow the
// renamed entity to its new location.
func (s *ContentsService) Rename(ctx context.Context, userID, oldAPIPath, newAPIPath string) (*models.Content, error) {
	oldAPIPath, err := pathutil.NormalizeAPIPath(oldAPIPath)
	if err != nil {
		return nil, err
	}
	newAPIPath, err = pathutil.NormalizeAPIPath(newAPIPath)
	if err != nil {
		return nil, err
	}
	if err := validatePath(newAPIPath); err != nil {
		return nil, err
	}

	var model *models.Content
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureUser(txCtx, userID); err != nil {
			return err
		}

		fileExists, err := s.files.Exists(txCtx, userID, oldAPIPath)
		if err != nil {
			return err
		}
		var typ string
		switch {
		case fileExists:
			typ = models.TypeFile
			if err := s.files.Rename(txCtx, userID, oldAPIPath, newAPIPath); err != nil {
				return err
			}
		default:
			dirExists, err := s.dirs.Exists(txCtx, userID, oldAPIPath)
			if err != nil {
				return err
			}
			if !dirExists && !pathutil.IsRoot(oldAPIPath) {
				return fmt.Errorf("no such entity %s: %w", oldAPIPath, domain.ErrNoSuchFile)
			}
			typ = models.TypeDirectory
			if err := s.renameDirectory(txCtx, userID, oldAPIPath, newAPIPath); err != nil {
				return err
			}
		}

		if err := s.checkpoints.MoveAll(txCtx, userID, oldAPIPath, newAPIPath); err != nil {
			return err
		}

		model, err = s.get(txCtx, userID, newAPIPath, false, typ, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("content renamed", "user_id", userID, "from", oldAPIPath, "to", newAPIPath)
	return model, nil
}

func (s *ContentsService) renameDirectory(ctx context.Context, userID, oldAPIPath, newAPIPath string) error {
	// The deferred parent constraint only reports a missing destination
	// parent at commit, too late to map. Check it up front instead.
	parent := pathutil.ToAPIPath(pathutil.ParentDBDirname(pathutil.FromAPIDirname(newAPIPath)))
	if !pathutil.IsRoot(newAPIPath) {
		exists, err := s.dirs.Exists(ctx, userID, parent)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("directory %s: %w", parent, domain.ErrNoSuchDirectory)
		}
	}
	return s.dirs.Rename(ctx, userID, oldAPIPath, newAPIPath)
}

// Delete removes the file or empty directory at the path. Checkpoints are
// an independent log and are not removed with their file.
func (s *ContentsService) Delete(ctx context.Context, userID, apiPath string) error {
	apiPath, err := pathutil.NormalizeAPIPath(apiPath)
	if err != nil {
		return err
	}
	if pathutil.IsRoot(apiPath) {
		return fmt.Errorf("%w: can't delete the root directory", domain.ErrValidation)
	}

	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureUser(txCtx, userID); err != nil {
			return err
		}

		fileExists, err := s.files.Exists(txCtx, userID, apiPath)
		if err != nil {
			return err
		}
		if fileExists {
			return s.files.Delete(txCtx, userID, apiPath)
		}
		return s.dirs.Delete(txCtx, userID, apiPath)
	})
	if err != nil {
		return err
	}

	s.logger.Info("content deleted", "user_id", userID, "path", apiPath)
	return nil
}

// PurgeUser removes a user and everything they own, checkpoints included
func (s *ContentsService) PurgeUser(ctx context.Context, userID string) error {
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.checkpoints.PurgeUser(txCtx, userID); err != nil {
			return err
		}
		return s.users.Purge(txCtx, userID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("user purged", "user_id", userID)
	return nil
}

// ListUsers returns the ids of every known user
func (s *ContentsService) ListUsers(ctx context.Context) ([]string, error) {
	return s.users.List(ctx)
}

// fileModel builds the no-content shell of a file's model. The type is
// guessed from the path's extension when not supplied.
func (s *ContentsService) fileModel(file *models.File, typ string) *models.Content {
	apiPath := file.APIPath()
	model := baseModel(apiPath)
	if typ == "" {
		typ = s.registry.Guess(apiPath).Type
	}
	model.Type = typ
	created := file.CreatedAt
	model.Created = &created
	model.LastModified = &created
	return model
}

func validateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if len(userID) > config.MaxUserIDLength {
		return fmt.Errorf("%w: user id exceeds %d characters", domain.ErrValidation, config.MaxUserIDLength)
	}
	return nil
}

func validatePath(apiPath string) error {
	if len(pathutil.FromAPIFilename(apiPath)) > config.MaxPathLength {
		return fmt.Errorf("%w: path exceeds %d characters", domain.ErrValidation, config.MaxPathLength)
	}
	return nil
}

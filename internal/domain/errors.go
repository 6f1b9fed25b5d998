package domain

import "errors"

// Sentinel errors raised by the storage engine - use with errors.Is().
// Call sites wrap these with path context, e.g.
// fmt.Errorf("file %s: %w", path, domain.ErrNoSuchFile).
var (
	// ErrNoSuchFile indicates a lookup of a file path with no rows.
	ErrNoSuchFile = errors.New("no such file")

	// ErrNoSuchDirectory indicates a lookup of a directory path with no rows.
	ErrNoSuchDirectory = errors.New("no such directory")

	// ErrNoSuchCheckpoint indicates a checkpoint id/path pair with no rows.
	ErrNoSuchCheckpoint = errors.New("no such checkpoint")

	// ErrFileExists indicates a rename destination already holding a file.
	ErrFileExists = errors.New("file already exists")

	// ErrDirectoryExists indicates a rename destination already holding a
	// directory.
	ErrDirectoryExists = errors.New("directory already exists")

	// ErrDirectoryNotEmpty indicates a delete of a directory that still has
	// children.
	ErrDirectoryNotEmpty = errors.New("directory not empty")

	// ErrFileTooLarge indicates encrypted content exceeding the configured
	// maximum file size.
	ErrFileTooLarge = errors.New("file too large")

	// ErrRenameRoot indicates an attempt to rename or move the root
	// directory.
	ErrRenameRoot = errors.New("renaming the root directory is not permitted")

	// ErrPathOutsideRoot indicates a path that escapes the user's root after
	// normalization (e.g. "../foo").
	ErrPathOutsideRoot = errors.New("path outside root")

	// ErrCorruptedFile indicates stored content that could not be decrypted
	// with any available key.
	ErrCorruptedFile = errors.New("corrupted file")
)

// Sentinel errors for the host layer.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

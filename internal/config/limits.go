package config

const (
	// MaxUserIDLength is the maximum length for user ids. Limited to 30 to
	// fit in the users table's VARCHAR(30) primary key.
	MaxUserIDLength = 30

	// MaxPathLength is the maximum length for db-style paths. Limited to 300
	// to fit the VARCHAR(300) path columns. Applies to full paths, not
	// individual segments, so deep hierarchies eat into it.
	MaxPathLength = 300

	// UnlimitedFileSize disables the file size check when used as
	// MaxFileSizeBytes.
	UnlimitedFileSize = 0
)

package models

import (
	"time"

	"github.com/quantopian/pgcontents/internal/pathutil"
)

// Content types understood by the contents API.
const (
	TypeNotebook  = "notebook"
	TypeFile      = "file"
	TypeDirectory = "directory"
)

// Content formats understood by the contents API.
const (
	FormatJSON   = "json"
	FormatText   = "text"
	FormatBase64 = "base64"
)

// Content is the model returned for files, notebooks and directories.
// Content holds a string (text or base64 payload), raw notebook JSON, or a
// []Content directory listing, depending on Type/Format. A nil Content with
// nil Format means the body was not requested.
type Content struct {
	Name         string     `json:"name"`
	Path         string     `json:"path"`
	Type         string     `json:"type"`
	Writable     bool       `json:"writable"`
	Created      *time.Time `json:"created"`
	LastModified *time.Time `json:"last_modified"`
	Mimetype     *string    `json:"mimetype"`
	Content      any        `json:"content"`
	Format       *string    `json:"format"`
}

// File is a single row from the files table. Content is nil when the row was
// fetched without its body.
type File struct {
	ID         int64
	Name       string
	UserID     string
	ParentName string
	Content    []byte
	CreatedAt  time.Time
}

// APIPath returns the file's API-style path.
func (f *File) APIPath() string {
	return pathutil.ToAPIPath(f.ParentName + f.Name)
}

// Directory is a single row from the directories table. ParentName is nil
// only for a user's root directory.
type Directory struct {
	UserID     string
	Name       string
	ParentName *string
}

// APIPath returns the directory's API-style path.
func (d *Directory) APIPath() string {
	return pathutil.ToAPIPath(d.Name)
}

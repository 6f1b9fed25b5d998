package models

import "time"

// Checkpoint is a single row from the remote_checkpoints table. Checkpoints
// are an append-only snapshot log: they reference files by path only and
// survive deletion of the file itself. Content is nil when the row was
// fetched without its body.
type Checkpoint struct {
	ID           int64     `json:"id,string"`
	UserID       string    `json:"-"`
	Path         string    `json:"-"`
	Content      []byte    `json:"-"`
	LastModified time.Time `json:"last_modified"`
}

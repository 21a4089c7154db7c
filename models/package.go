// models/package.go
package models

import "time"

// Package is a PyPI project as written by the metadata importer. The download
// pipeline only reads ID and Name; the directory snapshot is keyed by Name.
type Package struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Version    string    `db:"version" json:"version"`
	Summary    *string   `db:"summary" json:"summary,omitempty"` // Nullable
	HomePage   *string   `db:"home_page" json:"home_page,omitempty"`
	UploadTime time.Time `db:"upload_time" json:"upload_time"`
}

// DirectoryEntry is one (name, id) pair of the package directory.
type DirectoryEntry struct {
	Name string
	ID   int64
}

// Package imagehost stores photo files outside the database. Remote talks to
// a Cloudinary-compatible API, Local keeps files on disk.
package imagehost

import (
	"errors"
)

const (
	StatusDeleted  = "deleted"
	StatusNotFound = "not_found"
)

var (
	ErrNotFound     = errors.New("asset not found")
	ErrTooLarge     = errors.New("image too large")
	ErrInvalidImage = errors.New("invalid image")
)

// Asset identifies a hosted file.
type Asset struct {
	PublicID string `json:"public_id"`
	URL      string `json:"secure_url"`
}

// DeleteResult mirrors the host's answer to a delete call: one entry per
// requested public id, "deleted" or "not_found".
type DeleteResult struct {
	Deleted map[string]string `json:"deleted"`
}

// Succeeded reports whether publicID was actually removed.
func (d DeleteResult) Succeeded(publicID string) bool {
	return d.Deleted[publicID] == StatusDeleted
}

// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/folio/internal/models"

// Provider is the interface for vault file operations. All paths are
// relative to the vault root and use forward slashes.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// ListFiles returns metadata for every regular file under dir,
	// attachments included. Hidden entries are skipped.
	ListFiles(dir string) ([]models.FileMetadata, error)
	// Stat returns metadata for a single file.
	Stat(path string) (models.FileMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
}

package storage

import (
	"io"
	"path/filepath"

	"github.com/google/uuid"
)

type UsageStats struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// Storage holds document payloads, keyed by path. Metadata lives in the
// database; only raw bytes pass through here.
type Storage interface {
	Read(path string) (io.ReadCloser, error)

	Write(path string, data io.Reader) error

	Delete(path string) error

	Exists(path string) (bool, error)

	Size(path string) (int64, error)

	Usage() (UsageStats, error)

	Location() string
}

func ProjectDocumentsPath(projectId uuid.UUID) string {
	return filepath.Join("documents", projectId.String())
}

func DocumentPath(projectId, docId uuid.UUID) string {
	return filepath.Join(ProjectDocumentsPath(projectId), docId.String())
}

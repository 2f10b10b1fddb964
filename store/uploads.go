package store

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Uploads keeps client files on disk for the duration of one request.
type Uploads struct {
	dir string
}

func NewUploads(dir string) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Uploads{dir: dir}, nil
}

// Save writes src under a unique name and returns its path and a cleanup
// func that removes it. The cleanup is safe to call more than once.
func (u *Uploads) Save(filename string, src io.Reader) (string, func(), error) {
	path := filepath.Join(u.dir, uuid.NewString()+"_"+sanitize(filename))

	out, err := os.Create(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove upload", slog.String("path", path), slog.Any("error", err))
		}
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := out.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write upload file: %w", err)
	}

	return path, cleanup, nil
}

// sanitize keeps only the base name so uploads cannot escape the directory.
func sanitize(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}

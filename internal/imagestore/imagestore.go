// Package imagestore persists uploaded receipt images on disk under
// collision-free names.
package imagestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxUploadSize is the largest accepted receipt image.
const MaxUploadSize = 16 << 20

var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".heic": "image/heic",
}

// Store saves receipt images into a single directory.
type Store struct {
	dir string
}

// New creates the upload directory if needed and returns a store over it.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("upload directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// SavedImage describes a stored file.
type SavedImage struct {
	StoredFilename string
	Path           string
	MimeType       string
	Size           int64
}

// Save writes the image under a fresh UUID name, keeping the original
// extension. The extension decides the MIME type; unknown extensions are
// rejected.
func (s *Store) Save(originalFilename string, r io.Reader) (*SavedImage, error) {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	mimeType, ok := allowedExtensions[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported image type %q", ext)
	}

	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to create image file: %w", err)
	}

	size, err := io.Copy(f, io.LimitReader(r, MaxUploadSize+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write image file: %w", err)
	}
	if size > MaxUploadSize {
		_ = os.Remove(path)
		return nil, fmt.Errorf("image exceeds %d bytes", MaxUploadSize)
	}

	return &SavedImage{
		StoredFilename: name,
		Path:           path,
		MimeType:       mimeType,
		Size:           size,
	}, nil
}

// Path resolves a stored filename inside the upload directory, refusing
// names that escape it.
func (s *Store) Path(storedFilename string) (string, error) {
	if storedFilename != filepath.Base(storedFilename) || storedFilename == "." {
		return "", fmt.Errorf("invalid stored filename %q", storedFilename)
	}
	return filepath.Join(s.dir, storedFilename), nil
}

// Remove deletes a stored image. Missing files are not an error.
func (s *Store) Remove(storedFilename string) error {
	path, err := s.Path(storedFilename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove image: %w", err)
	}
	return nil
}

// Package upload stores user file attachments on local disk with type and
// size validation.
package upload

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Error text is shown to the client as-is.
var (
	// ErrFileTooLarge indicates the upload exceeds the configured limit.
	ErrFileTooLarge = errors.New("File size should be less than 5MB")

	// ErrUnsupportedType indicates a content type outside the allowed set.
	ErrUnsupportedType = errors.New("File type should be JPEG, PNG, or PDF")

	// ErrInvalidName indicates a missing or path-traversing filename.
	ErrInvalidName = errors.New("invalid file name")

	// ErrNotFound indicates no stored file matches the name.
	ErrNotFound = errors.New("file not found")
)

// allowedTypes is the accepted attachment MIME set: images the model can see
// plus PDFs.
var allowedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

// Store writes uploads under a single directory. Names are flattened with
// filepath.Base so a stored file can never escape the directory, and each
// upload gets a unique stored name so concurrent uploads of the same file
// name never overwrite each other.
type Store struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

// NewStore creates the upload directory if needed and returns a Store.
func NewStore(dir string, maxBytes int64, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes, logger: logger}, nil
}

// Validate checks name, declared content type, and size without touching
// disk. It returns all violations joined, mirroring what the upload endpoint
// reports to the client.
func (s *Store) Validate(name, contentType string, size int64) error {
	var errs []error
	if sanitize(name) == "" {
		errs = append(errs, ErrInvalidName)
	}
	if size > s.maxBytes {
		errs = append(errs, ErrFileTooLarge)
	}
	if !allowedTypes[contentType] {
		errs = append(errs, ErrUnsupportedType)
	}
	return errors.Join(errs...)
}

// Save validates and writes the upload, returning the unique stored name
// (the client name prefixed per upload). A reader that produces more than
// the declared size cap fails the save and the partial file is removed.
func (s *Store) Save(name, contentType string, size int64, r io.Reader) (string, error) {
	if err := s.Validate(name, contentType, size); err != nil {
		return "", err
	}
	stored := uuid.NewString() + "-" + sanitize(name)

	f, err := os.Create(filepath.Join(s.dir, stored))
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > s.maxBytes {
		err = ErrFileTooLarge
	}
	if err != nil {
		if rmErr := os.Remove(filepath.Join(s.dir, stored)); rmErr != nil {
			s.logger.Warn("removing partial upload failed", "file", stored, "error", rmErr)
		}
		return "", err
	}

	s.logger.Debug("file stored", "file", stored, "bytes", written)
	return stored, nil
}

// Open returns a reader for a stored file. Returns ErrNotFound for names
// that do not exist or do not survive sanitization.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	stored := sanitize(name)
	if stored == "" {
		return nil, ErrNotFound
	}

	f, err := os.Open(filepath.Join(s.dir, stored))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return f, nil
}

// sanitize flattens a client-supplied name to a bare file name. Returns ""
// for names with no usable base.
func sanitize(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == ".." || base == "/" || base == "" {
		return ""
	}
	return base
}

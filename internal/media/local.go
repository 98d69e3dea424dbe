// Package media stores uploaded images on the local filesystem.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/terra-clan/office-hub/internal/models"
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// LocalStore keeps files under Root. Paths handed out are relative to Root
// and always use forward slashes.
type LocalStore struct {
	Root     string
	MaxBytes int64
}

// NewLocalStore creates the root directory if needed
func NewLocalStore(root string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media root: %w", err)
	}
	return &LocalStore{Root: root, MaxBytes: maxBytes}, nil
}

// Save writes r to dir/<uuid><ext> and returns the relative path
func (s *LocalStore) Save(ctx context.Context, dir, originalName string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedExtensions[ext] {
		return "", models.Invalid("image", "unsupported image type %q", ext)
	}

	rel := path.Join(dir, uuid.NewString()+ext)
	full, err := s.resolve(rel)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create media file: %w", err)
	}

	src := r
	if s.MaxBytes > 0 {
		src = io.LimitReader(r, s.MaxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.MaxBytes > 0 && n > s.MaxBytes {
		err = models.Invalid("image", "image exceeds %d bytes", s.MaxBytes)
	}
	if err != nil {
		os.Remove(full)
		return "", err
	}

	slog.Debug("media saved", "path", rel, "bytes", n)
	return rel, nil
}

// Remove deletes files; missing files are ignored. Its signature matches
// storage.CleanupFunc.
func (s *LocalStore) Remove(ctx context.Context, paths []string) {
	for _, p := range paths {
		full, err := s.resolve(p)
		if err != nil {
			slog.Warn("refusing to remove media outside root", "path", p)
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Error("failed to remove media file", "path", p, "error", err)
			continue
		}
		slog.Debug("media removed", "path", p)
	}
}

// Open returns a reader for a stored file
func (s *LocalStore) Open(p string) (*os.File, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// resolve maps a relative media path to a filesystem path inside Root
func (s *LocalStore) resolve(rel string) (string, error) {
	clean := path.Clean("/" + rel)
	if clean == "/" || strings.Contains(rel, "..") {
		return "", fmt.Errorf("invalid media path %q", rel)
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean)), nil
}

// Package files stores uploaded documents on local disk.
package files

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrTooLarge is returned when a blob exceeds the configured limit.
var ErrTooLarge = errors.New("files: upload exceeds size limit")

// ErrEmpty is returned for zero-length uploads.
var ErrEmpty = errors.New("files: upload is empty")

// Stored describes a blob written by Save.
type Stored struct {
	Path   string
	Size   int64
	SHA256 string
}

// LocalStore keeps blobs under a root directory, one sub-directory per prefix.
type LocalStore struct {
	root     string
	maxBytes int64
}

// NewLocalStore creates the root directory if needed. maxBytes <= 0 means no limit.
func NewLocalStore(root string, maxBytes int64) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("upload directory not configured")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{root: root, maxBytes: maxBytes}, nil
}

// Save streams r to a new file under prefix. The stored path is relative to
// the root. Partial files are removed on error.
func (s *LocalStore) Save(ctx context.Context, prefix, name string, r io.Reader) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	dir := filepath.Join(s.root, cleanSegment(prefix))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Stored{}, err
	}
	rel := filepath.Join(cleanSegment(prefix), uuid.NewString()+strings.ToLower(filepath.Ext(name)))
	f, err := os.OpenFile(filepath.Join(s.root, rel), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return Stored{}, err
	}

	hash := sha256.New()
	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(io.MultiWriter(f, hash), src)
	closeErr := f.Close()
	switch {
	case err != nil:
	case closeErr != nil:
		err = closeErr
	case n == 0:
		err = ErrEmpty
	case s.maxBytes > 0 && n > s.maxBytes:
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.root, rel))
		return Stored{}, err
	}
	return Stored{Path: filepath.ToSlash(rel), Size: n, SHA256: hex.EncodeToString(hash.Sum(nil))}, nil
}

// Open returns a reader for a stored path.
func (s *LocalStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Delete removes a stored blob. Missing files are not an error.
func (s *LocalStore) Delete(_ context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid stored path %q", path)
	}
	return filepath.Join(s.root, clean), nil
}

func cleanSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
	if s == "" {
		return "misc"
	}
	return s
}

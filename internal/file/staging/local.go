package staging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps staged files on the local filesystem under a single root
// directory. Keys are flat; the sanitization in the gateway guarantees they
// contain no separators, and resolve double-checks anyway.
type LocalStore struct {
	root string
}

// NewLocalStore creates the staging directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("staging root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Save writes the stream to disk and returns the number of bytes written.
func (s *LocalStore) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	path, err := s.resolve(key)
	if err != nil {
		return 0, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create staged file: %w", err)
	}

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write staged file: %w", err)
	}

	return size, nil
}

// Open returns the staged bytes. A missing file is an ordinary error; the
// processor treats it as a permanent failure for that record.
func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open staged file: %w", err)
	}
	return f, nil
}

// Remove deletes the staged bytes. Removing an absent key is not an error.
func (s *LocalStore) Remove(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staged file: %w", err)
	}
	return nil
}

func (s *LocalStore) resolve(key string) (string, error) {
	path := filepath.Join(s.root, key)

	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") || rel == "." {
		return "", fmt.Errorf("invalid staging key: %q", key)
	}
	return path, nil
}

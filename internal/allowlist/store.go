// Package allowlist persists the set of email addresses that may still submit the form.
//
// The allowlist is a JSON array of lower-case addresses that is read and rewritten
// wholesale. Callers that mutate it must hold the allowlist lock (see internal/locks);
// FileStore itself only guarantees that a reader never observes a half-written file.
package allowlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrIO marks failures to read, parse or write the allowlist file.
var ErrIO = errors.New("allowlist: io failure")

// FileStore reads and writes the allowlist JSON file.
type FileStore struct {
	path string
	perm fs.FileMode
}

// NewFileStore returns a store backed by the file at path. The file does not have to exist.
func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("allowlist: path is required")
	}
	return &FileStore{path: filepath.Clean(path), perm: 0o644}, nil
}

// Path returns the location of the allowlist file.
func (s *FileStore) Path() string {
	return s.path
}

// Exists reports whether the allowlist file is present.
func (s *FileStore) Exists() (bool, error) {
	_, err := os.Stat(s.path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: stat %s: %w", ErrIO, s.path, err)
	}
}

// Load returns the current tokens in file order. A missing file yields an empty list.
func (s *FileStore) Load(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, s.path, err)
	}

	tokens := []string{}
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrIO, s.path, err)
	}
	if tokens == nil {
		// a literal null in the file
		tokens = []string{}
	}
	return tokens, nil
}

// Save replaces the file contents with tokens. The new contents are written to a
// temporary file in the same directory and renamed over the old file.
func (s *FileStore) Save(ctx context.Context, tokens []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tokens == nil {
		tokens = []string{}
	}

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrIO, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file in %s: %w", ErrIO, dir, err)
	}
	tmpName := tmp.Name()

	cleanup := func(cause error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %w", ErrIO, s.path, cause)
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(s.perm); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %w", ErrIO, s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: replace %s: %w", ErrIO, s.path, err)
	}
	return nil
}

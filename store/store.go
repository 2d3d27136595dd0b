// Package store owns the base output directory and maps conversion names to
// bundle directories under it.
package store

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/7blacky7/hf2onnx/types/model"
)

// Store resolves bundle locations below a base directory.
type Store struct {
	base string
}

// New returns a store rooted at base. The directory is created lazily.
func New(base string) (*Store, error) {
	if strings.TrimSpace(base) == "" {
		return nil, fmt.Errorf("store: base directory must not be empty")
	}

	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("store: resolve base directory: %w", err)
	}

	return &Store{base: abs}, nil
}

// Base returns the absolute base directory.
func (s *Store) Base() string {
	return s.base
}

// Resolve returns the bundle directory for name without touching the
// filesystem. The result is deterministic for a given base and name.
func (s *Store) Resolve(name string) (string, error) {
	rel, err := model.RelPath(name)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.base, rel)

	relPath, err := filepath.Rel(s.base, path)
	if err != nil || relPath == "." || strings.HasPrefix(relPath, "..") {
		return "", fmt.Errorf("%w: path traversal attempt detected: %s", model.ErrInvalidIdentifier, name)
	}

	return path, nil
}

// Ensure resolves name and creates the directory if it is missing. An
// existing directory is not an error and its contents are left alone.
func (s *Store) Ensure(name string) (string, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create bundle directory: %w", err)
	}

	return path, nil
}

// Subdir creates dir/name, e.g. the tokenizer directory inside a bundle.
func Subdir(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	return path, nil
}

// Files lists the regular files below dir as slash-separated paths relative
// to dir, sorted.
func Files(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	return files, nil
}

// Size returns the total size of the regular files below dir.
func Size(dir string) (int64, error) {
	var size int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}

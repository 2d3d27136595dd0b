// Package model defines the values that name one conversion: the model
// identifier and the export mode.
package model

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidIdentifier is returned for identifiers that cannot name a model
// or cannot be used as an output path segment.
var ErrInvalidIdentifier = errors.New("invalid model identifier")

// Identifier names a pretrained model in a registry, e.g.
// "dslim/bert-base-NER". It is opaque apart from being usable as a lookup
// key and as a relative output path.
type Identifier string

// ParseIdentifier trims s and validates it.
func ParseIdentifier(s string) (Identifier, error) {
	id := Identifier(strings.TrimSpace(s))
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate reports why id is unusable, or nil.
func (id Identifier) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("%w: identifier must not be empty", ErrInvalidIdentifier)
	}
	return nil
}

// IsLocal reports whether the identifier points at an existing-looking
// filesystem path rather than a registry name.
func (id Identifier) IsLocal() bool {
	s := string(id)
	return filepath.IsAbs(s) ||
		strings.HasPrefix(s, "./") ||
		strings.HasPrefix(s, "../") ||
		strings.HasPrefix(s, "~/") ||
		strings.HasPrefix(s, "."+string(filepath.Separator))
}

// OutputName returns the default bundle name for id: the identifier itself
// for registry names, the directory name for local paths.
func (id Identifier) OutputName() string {
	if id.IsLocal() {
		return filepath.Base(filepath.Clean(string(id)))
	}
	return string(id)
}

func (id Identifier) String() string {
	return string(id)
}

// RelPath validates name as a relative output path. Both "/" and the OS
// separator nest directories. Absolute paths and ".." segments are rejected.
func RelPath(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidIdentifier)
	}

	slashed := filepath.ToSlash(name)
	if path.IsAbs(slashed) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidIdentifier, name)
	}

	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q escapes the output directory", ErrInvalidIdentifier, name)
		}
	}

	rel := filepath.FromSlash(path.Clean(slashed))
	if rel == "." || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q is not a local path", ErrInvalidIdentifier, name)
	}

	return rel, nil
}

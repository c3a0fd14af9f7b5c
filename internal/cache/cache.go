// Package cache locates downloaded tracks in the local library cache.
//
// Files are content addressed: the key of a track depends only on where it
// was fetched from and how, never on the display name of its source.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrInvalidKey is returned by ParseKey for strings that are not keys.
var ErrInvalidKey = errors.New("invalid cache key")

// namespace for name-based keys
var namespace = uuid.MustParse("6f0c5a7e-3b1d-5e8a-9c2f-4d7b1e0a8c36")

// Source describes where a track comes from. Name is informational and does
// not contribute to the key, so renaming a source keeps its cached files.
type Source struct {
	Name   string
	Format string
	Kind   string
}

// Key identifies one cached file.
type Key struct {
	id uuid.UUID
}

// NewKey derives the key of input fetched through src.
func NewKey(src Source, input string) Key {
	data := src.Format + "\x00" + src.Kind + "\x00" + input
	return Key{id: uuid.NewSHA1(namespace, []byte(data))}
}

// ParseKey parses the String form of a key.
func ParseKey(s string) (Key, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Key{}, fmt.Errorf("%w %q: %w", ErrInvalidKey, s, err)
	}
	if id.Version() != 5 {
		return Key{}, fmt.Errorf("%w %q: not a name-based key", ErrInvalidKey, s)
	}
	return Key{id: id}, nil
}

func (k Key) String() string { return k.id.String() }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k.id == uuid.Nil }

// Lookup resolves keys to files on disk.
type Lookup interface {
	Find(key Key) (path string, ok bool)
}

// Dir is a flat cache directory with one file per key.
type Dir struct {
	dir string
}

var _ Lookup = (*Dir)(nil)

// New returns the cache rooted at dir. The directory is created lazily.
func New(dir string) *Dir {
	return &Dir{dir: dir}
}

// Root returns the cache directory.
func (d *Dir) Root() string { return d.dir }

// Path returns where key is stored, whether or not the file exists.
func (d *Dir) Path(key Key) string {
	return filepath.Join(d.dir, key.String())
}

// Find returns the path of key if the file exists.
func (d *Dir) Find(key Key) (string, bool) {
	path := d.Path(key)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// Create makes sure the cache directory exists and returns the path a new
// file for key should be written to.
func (d *Dir) Create(key Key) (string, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	return d.Path(key), nil
}

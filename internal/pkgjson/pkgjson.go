// Package pkgjson reads and edits package.json files. Edits go through
// sjson so the file's existing formatting and key order survive a
// version bump, which keeps release diffs to the single changed field.
package pkgjson

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"relkit/internal/semver"
)

var (
	// ErrNoVersion is returned when package.json has no version field.
	ErrNoVersion = errors.New("package.json has no version field")

	// ErrNoName is returned when package.json has no name field.
	ErrNoName = errors.New("package.json has no name field")
)

// File is a loaded package.json.
type File struct {
	Path string
	raw  []byte
}

// Load reads the package.json at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read package.json: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s is not valid JSON", path)
	}
	return &File{Path: path, raw: data}, nil
}

// Find walks up from dir looking for a package.json.
func Find(dir string) (*File, error) {
	for {
		candidate := filepath.Join(dir, "package.json")
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, fmt.Errorf("no package.json found above %s", dir)
		}
		dir = parent
	}
}

// Raw returns the current file contents.
func (f *File) Raw() []byte {
	return f.raw
}

// Name returns the package name.
func (f *File) Name() (string, error) {
	name := gjson.GetBytes(f.raw, "name")
	if !name.Exists() || name.String() == "" {
		return "", ErrNoName
	}
	return name.String(), nil
}

// Version returns the parsed version field.
func (f *File) Version() (semver.Version, error) {
	v := gjson.GetBytes(f.raw, "version")
	if !v.Exists() {
		return semver.Version{}, ErrNoVersion
	}
	parsed, err := semver.Parse(v.String())
	if err != nil {
		return semver.Version{}, fmt.Errorf("package.json version: %w", err)
	}
	return parsed, nil
}

// SetVersion updates the version field in memory.
func (f *File) SetVersion(v semver.Version) error {
	updated, err := sjson.SetBytes(f.raw, "version", v.String())
	if err != nil {
		return fmt.Errorf("set version: %w", err)
	}
	f.raw = updated
	return nil
}

// Private reports whether the package is marked private.
func (f *File) Private() bool {
	return gjson.GetBytes(f.raw, "private").Bool()
}

// PublishRegistry returns publishConfig.registry when set.
func (f *File) PublishRegistry() string {
	return gjson.GetBytes(f.raw, "publishConfig.registry").String()
}

// Save writes the file back to disk.
func (f *File) Save() error {
	return os.WriteFile(f.Path, f.raw, 0o644)
}

// Package backup snapshots release-critical state (package.json,
// CHANGELOG.md, the current git ref) into timestamped directories
// before destructive operations, and restores from them.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Dir is the default backup root, relative to the repo root.
const Dir = ".relkit/backups"

// ErrNoBackups is returned when no snapshot exists to restore from.
var ErrNoBackups = errors.New("no backups found")

// Manifest records what a snapshot contains.
type Manifest struct {
	CreatedAt time.Time `json:"created_at"`
	Reason    string    `json:"reason"`
	Version   string    `json:"version"`
	GitRef    string    `json:"git_ref"`
	Files     []string  `json:"files"`
}

// Snapshot is a completed backup.
type Snapshot struct {
	Path     string
	Manifest Manifest
}

// Options configures a snapshot.
type Options struct {
	// Root is the directory the relative Files paths resolve against.
	Root string

	// BackupDir is where snapshots are created; defaults to
	// Root/.relkit/backups.
	BackupDir string

	// Files are the repo-relative paths to copy. Missing files are
	// skipped rather than failing the snapshot.
	Files []string

	// Reason labels the snapshot ("rollback 1.3.0", "release 1.4.0").
	Reason string

	// Version is the package version at snapshot time.
	Version string

	// GitRef is the commit hash HEAD pointed at.
	GitRef string
}

// Create writes a new timestamped snapshot.
func Create(opts Options) (*Snapshot, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("backup root required")
	}
	backupDir := opts.BackupDir
	if backupDir == "" {
		backupDir = filepath.Join(opts.Root, Dir)
	}

	now := time.Now()
	dir := filepath.Join(backupDir, now.Format("20060102-150405.000"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	manifest := Manifest{
		CreatedAt: now,
		Reason:    opts.Reason,
		Version:   opts.Version,
		GitRef:    opts.GitRef,
	}

	for _, rel := range opts.Files {
		src := filepath.Join(opts.Root, rel)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		dst := filepath.Join(dir, rel)
		if err := copyFile(src, dst); err != nil {
			return nil, fmt.Errorf("backup %s: %w", rel, err)
		}
		manifest.Files = append(manifest.Files, rel)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	return &Snapshot{Path: dir, Manifest: manifest}, nil
}

// List returns all snapshots under backupDir, oldest first. Entries
// whose manifest cannot be read are skipped.
func List(backupDir string) ([]*Snapshot, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoBackups
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, ErrNoBackups
	}
	// Timestamped names sort lexically in chronological order.
	sort.Strings(names)

	snaps := make([]*Snapshot, 0, len(names))
	for _, name := range names {
		snap, err := Load(filepath.Join(backupDir, name))
		if err != nil {
			continue
		}
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		return nil, ErrNoBackups
	}
	return snaps, nil
}

// Latest returns the most recent snapshot under backupDir.
func Latest(backupDir string) (*Snapshot, error) {
	snaps, err := List(backupDir)
	if err != nil {
		return nil, err
	}
	return snaps[len(snaps)-1], nil
}

// Load reads a snapshot's manifest.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(path, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &Snapshot{Path: path, Manifest: manifest}, nil
}

// Restore copies the snapshot's files back under root.
func (s *Snapshot) Restore(root string) error {
	for _, rel := range s.Manifest.Files {
		src := filepath.Join(s.Path, rel)
		dst := filepath.Join(root, rel)
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("restore %s: %w", rel, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

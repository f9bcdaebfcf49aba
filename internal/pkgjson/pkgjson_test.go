package pkgjson

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"relkit/internal/semver"
)

const sample = `{
  "name": "@acme/widget",
  "version": "1.2.3",
  "private": false,
  "publishConfig": {
    "registry": "https://registry.npmjs.org"
  },
  "scripts": {
    "test": "jest"
  }
}
`

func writeSample(t *testing.T, content string) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "package.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	return f
}

func TestLoadFields(t *testing.T) {
	f := writeSample(t, sample)

	name, err := f.Name()
	if err != nil {
		t.Fatalf("Name() failed: %v", err)
	}
	if name != "@acme/widget" {
		t.Errorf("Name() = %q", name)
	}

	v, err := f.Version()
	if err != nil {
		t.Fatalf("Version() failed: %v", err)
	}
	if v.String() != "1.2.3" {
		t.Errorf("Version() = %s", v)
	}

	if f.Private() {
		t.Error("Private() = true")
	}
	if got := f.PublishRegistry(); got != "https://registry.npmjs.org" {
		t.Errorf("PublishRegistry() = %q", got)
	}
}

func TestSetVersionPreservesLayout(t *testing.T) {
	f := writeSample(t, sample)

	next, _ := semver.Parse("1.3.0")
	if err := f.SetVersion(next); err != nil {
		t.Fatalf("SetVersion() failed: %v", err)
	}

	out := string(f.Raw())
	if !strings.Contains(out, `"version": "1.3.0"`) {
		t.Errorf("version not updated:\n%s", out)
	}
	// Surrounding structure untouched.
	if !strings.Contains(out, `"test": "jest"`) {
		t.Errorf("scripts block disturbed:\n%s", out)
	}
	if !strings.HasPrefix(out, "{\n  \"name\": \"@acme/widget\",") {
		t.Errorf("leading layout disturbed:\n%s", out)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	f := writeSample(t, sample)
	next, _ := semver.Parse("2.0.0")
	if err := f.SetVersion(next); err != nil {
		t.Fatalf("SetVersion() failed: %v", err)
	}
	if err := f.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	reloaded, err := Load(f.Path)
	if err != nil {
		t.Fatalf("Load() after Save failed: %v", err)
	}
	v, err := reloaded.Version()
	if err != nil {
		t.Fatalf("Version() failed: %v", err)
	}
	if v.String() != "2.0.0" {
		t.Errorf("reloaded version = %s, want 2.0.0", v)
	}
}

func TestMissingFields(t *testing.T) {
	f := writeSample(t, `{"description": "no name or version"}`)
	if _, err := f.Name(); !errors.Is(err, ErrNoName) {
		t.Errorf("Name() error = %v, want ErrNoName", err)
	}
	if _, err := f.Version(); !errors.Is(err, ErrNoVersion) {
		t.Errorf("Version() error = %v, want ErrNoVersion", err)
	}
}

func TestInvalidVersion(t *testing.T) {
	f := writeSample(t, `{"name":"x","version":"v1.0.0"}`)
	if _, err := f.Version(); !errors.Is(err, semver.ErrInvalid) {
		t.Errorf("Version() error = %v, want semver.ErrInvalid", err)
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "package.json"), []byte(sample), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	nested := filepath.Join(root, "src", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	f, err := Find(nested)
	if err != nil {
		t.Fatalf("Find() failed: %v", err)
	}
	if f.Path != filepath.Join(root, "package.json") {
		t.Errorf("Find() = %s", f.Path)
	}
}

package changelog

import (
	"errors"
	"strings"
	"testing"
	"time"

	"relkit/internal/conventional"
)

const sample = `# Changelog

All notable changes are documented here.

## [Unreleased]

### Added

- pipeline step engine

## [1.2.0] - 2026-05-01

### Added

- rollback scopes

### Fixed

- registry poll timeout

[1.2.0]: https://example.com/compare/v1.1.0...v1.2.0
`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if doc.Title != "Changelog" {
		t.Errorf("Title = %q", doc.Title)
	}
	if len(doc.Releases) != 2 {
		t.Fatalf("got %d releases, want 2", len(doc.Releases))
	}
	unrel := doc.Unreleased()
	if unrel == nil {
		t.Fatal("Unreleased() = nil")
	}
	if got := unrel.Sections["Added"]; len(got) != 1 || got[0] != "pipeline step engine" {
		t.Errorf("Unreleased Added = %v", got)
	}

	rel := doc.Find("1.2.0")
	if rel == nil {
		t.Fatal("Find(1.2.0) = nil")
	}
	if rel.Date != "2026-05-01" {
		t.Errorf("1.2.0 date = %q", rel.Date)
	}
	if len(doc.Links) != 1 {
		t.Errorf("got %d links, want 1", len(doc.Links))
	}
}

func TestValidateMissingUnreleased(t *testing.T) {
	doc, err := Parse([]byte("# Changelog\n\n## [1.0.0] - 2026-01-01\n\n### Added\n\n- thing\n"))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	errs := Validate(doc)
	found := false
	for _, e := range errs {
		if errors.Is(e, ErrNoUnreleased) {
			found = true
		}
	}
	if !found {
		t.Errorf("Validate() = %v, want ErrNoUnreleased", errs)
	}
}

func TestValidateClean(t *testing.T) {
	doc, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if errs := Validate(doc); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestValidateUndatedRelease(t *testing.T) {
	doc, err := Parse([]byte("# Changelog\n\n## [Unreleased]\n\n## [1.0.0]\n"))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	errs := Validate(doc)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "no date") {
		t.Errorf("Validate() = %v, want undated release error", errs)
	}
}

func TestPromote(t *testing.T) {
	doc, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	date := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	if err := doc.Promote("1.3.0", date); err != nil {
		t.Fatalf("Promote() failed: %v", err)
	}

	rel := doc.Find("1.3.0")
	if rel == nil {
		t.Fatal("Find(1.3.0) = nil after Promote")
	}
	if rel.Date != "2026-08-26" {
		t.Errorf("promoted date = %q", rel.Date)
	}
	if len(rel.Sections["Added"]) != 1 {
		t.Errorf("promoted Added = %v", rel.Sections["Added"])
	}
	if !doc.Unreleased().Empty() {
		t.Error("Unreleased not empty after Promote")
	}

	// Promoting again must fail: empty unreleased.
	if err := doc.Promote("1.4.0", date); !errors.Is(err, ErrEmptyUnreleased) {
		t.Errorf("second Promote() error = %v, want ErrEmptyUnreleased", err)
	}
	// Duplicate version must fail regardless.
	if err := doc.Promote("1.2.0", date); !errors.Is(err, ErrDuplicateRelease) {
		t.Errorf("duplicate Promote() error = %v, want ErrDuplicateRelease", err)
	}
}

func TestRenderRoundTrip(t *testing.T) {
	doc, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	out := doc.Render()
	doc2, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse(Render()) failed: %v", err)
	}
	if len(doc2.Releases) != len(doc.Releases) {
		t.Errorf("round trip lost releases: %d -> %d", len(doc.Releases), len(doc2.Releases))
	}
	if doc2.Find("1.2.0") == nil {
		t.Error("round trip lost 1.2.0 section")
	}
}

func TestAddEntries(t *testing.T) {
	doc, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	groups := conventional.Grouped([]conventional.Commit{
		conventional.Parse("abcdef1234567", "fix(npm): handle 404 from registry"),
		conventional.Parse("1234567", "feat!: drop node 16"),
	})
	doc.AddEntries(groups)

	unrel := doc.Unreleased()
	if len(unrel.Sections["Fixed"]) != 1 {
		t.Fatalf("Fixed = %v", unrel.Sections["Fixed"])
	}
	if !strings.Contains(unrel.Sections["Fixed"][0], "(abcdef1)") {
		t.Errorf("entry missing short hash: %q", unrel.Sections["Fixed"][0])
	}
	if len(unrel.Sections["Changed"]) != 1 || !strings.HasPrefix(unrel.Sections["Changed"][0], "**BREAKING:**") {
		t.Errorf("Changed = %v", unrel.Sections["Changed"])
	}
}

func TestSkeletonValid(t *testing.T) {
	doc, err := Parse(Skeleton("widget"))
	if err != nil {
		t.Fatalf("Parse(Skeleton()) failed: %v", err)
	}
	if errs := Validate(doc); len(errs) != 0 {
		t.Errorf("Validate(Skeleton()) = %v", errs)
	}
}

// Package conventional parses conventional-commit messages and groups
// them into the sections a Keep a Changelog document expects.
package conventional

import (
	"regexp"
	"strings"
)

// Type is a conventional-commit type prefix.
type Type string

const (
	TypeFeat     Type = "feat"
	TypeFix      Type = "fix"
	TypeDocs     Type = "docs"
	TypeStyle    Type = "style"
	TypeRefactor Type = "refactor"
	TypePerf     Type = "perf"
	TypeTest     Type = "test"
	TypeBuild    Type = "build"
	TypeCI       Type = "ci"
	TypeChore    Type = "chore"
	TypeRevert   Type = "revert"
)

// Commit is a parsed conventional commit.
type Commit struct {
	Hash     string
	Type     Type
	Scope    string
	Breaking bool
	Subject  string

	// Raw is the original first line, kept for commits that do not
	// follow the convention.
	Raw string
}

// Conventional reports whether the commit matched the convention.
func (c Commit) Conventional() bool {
	return c.Type != ""
}

// headerRe matches "type(scope)!: subject".
var headerRe = regexp.MustCompile(`^(\w+)(?:\(([^)]*)\))?(!)?:\s+(.+)$`)

// Parse parses a commit subject line. Commits that do not follow the
// convention come back with an empty Type and the line preserved in Raw.
func Parse(hash, subject string) Commit {
	subject = strings.TrimSpace(subject)
	c := Commit{Hash: hash, Raw: subject}

	m := headerRe.FindStringSubmatch(subject)
	if m == nil {
		return c
	}

	typ := Type(strings.ToLower(m[1]))
	switch typ {
	case TypeFeat, TypeFix, TypeDocs, TypeStyle, TypeRefactor,
		TypePerf, TypeTest, TypeBuild, TypeCI, TypeChore, TypeRevert:
	default:
		return c
	}

	c.Type = typ
	c.Scope = m[2]
	c.Breaking = m[3] == "!"
	c.Subject = m[4]
	return c
}

// Section is a Keep a Changelog section name.
type Section string

const (
	SectionAdded      Section = "Added"
	SectionChanged    Section = "Changed"
	SectionDeprecated Section = "Deprecated"
	SectionRemoved    Section = "Removed"
	SectionFixed      Section = "Fixed"
	SectionSecurity   Section = "Security"
)

// SectionOrder is the canonical Keep a Changelog section ordering.
var SectionOrder = []Section{
	SectionAdded, SectionChanged, SectionDeprecated,
	SectionRemoved, SectionFixed, SectionSecurity,
}

// SectionFor maps a commit to its changelog section. Non-conventional
// commits and housekeeping types (chore, ci, test, ...) map to "" and
// are excluded from the changelog.
func SectionFor(c Commit) Section {
	switch c.Type {
	case TypeFeat:
		return SectionAdded
	case TypeFix:
		return SectionFixed
	case TypePerf, TypeRefactor:
		return SectionChanged
	case TypeRevert:
		return SectionRemoved
	}
	return ""
}

// Grouped buckets commits by changelog section, preserving input order.
// Breaking changes always land in Changed, flagged in the entry text by
// the renderer.
func Grouped(commits []Commit) map[Section][]Commit {
	groups := make(map[Section][]Commit)
	for _, c := range commits {
		sec := SectionFor(c)
		if c.Breaking {
			sec = SectionChanged
		}
		if sec == "" {
			continue
		}
		groups[sec] = append(groups[sec], c)
	}
	return groups
}

// SuggestBump recommends a version bump based on the commit set:
// any breaking change is major, any feat is minor, otherwise patch.
func SuggestBump(commits []Commit) string {
	bump := "patch"
	for _, c := range commits {
		if c.Breaking {
			return "major"
		}
		if c.Type == TypeFeat {
			bump = "minor"
		}
	}
	return bump
}

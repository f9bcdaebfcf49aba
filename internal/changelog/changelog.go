// Package changelog implements a Keep a Changelog document model:
// parsing, validation, rendering, and promotion of the Unreleased
// section when a release is cut.
package changelog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"relkit/internal/conventional"
)

var (
	// ErrNoUnreleased is returned when the document has no
	// "## [Unreleased]" section.
	ErrNoUnreleased = errors.New("changelog has no [Unreleased] section")

	// ErrNoTitle is returned when the document does not start with a
	// top-level heading.
	ErrNoTitle = errors.New("changelog has no top-level title")

	// ErrDuplicateRelease is returned when promoting Unreleased to a
	// version that already has a section.
	ErrDuplicateRelease = errors.New("changelog already has a section for this version")

	// ErrEmptyUnreleased is returned when promoting an Unreleased
	// section with no entries.
	ErrEmptyUnreleased = errors.New("unreleased section has no entries")
)

// Release is one "## [version] - date" block.
type Release struct {
	Version string // "Unreleased" for the unreleased block
	Date    string // empty for Unreleased
	// Sections maps "Added"/"Fixed"/... to bullet entries (without "- ").
	Sections map[string][]string
}

// Unreleased reports whether this is the unreleased block.
func (r *Release) Unreleased() bool {
	return strings.EqualFold(r.Version, "Unreleased")
}

// Empty reports whether the release has no entries in any section.
func (r *Release) Empty() bool {
	for _, entries := range r.Sections {
		if len(entries) > 0 {
			return false
		}
	}
	return true
}

// Document is a parsed changelog.
type Document struct {
	Title    string // first-level heading text
	Preamble []string
	Releases []*Release
	// Links holds trailing "[1.2.3]: https://..." reference definitions.
	Links []string
}

var (
	releaseHeadRe = regexp.MustCompile(`^## \[([^\]]+)\](?:\s*-\s*(.+))?$`)
	sectionHeadRe = regexp.MustCompile(`^### (\w+)\s*$`)
	linkDefRe     = regexp.MustCompile(`^\[[^\]]+\]:\s+\S+`)
)

// Parse parses a Keep a Changelog document.
func Parse(data []byte) (*Document, error) {
	doc := &Document{}
	var current *Release
	var section string

	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimRight(line, " \t")

		switch {
		case strings.HasPrefix(trimmed, "# ") && doc.Title == "":
			doc.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))

		case releaseHeadRe.MatchString(trimmed):
			m := releaseHeadRe.FindStringSubmatch(trimmed)
			current = &Release{
				Version:  m[1],
				Date:     strings.TrimSpace(m[2]),
				Sections: make(map[string][]string),
			}
			section = ""
			doc.Releases = append(doc.Releases, current)

		case sectionHeadRe.MatchString(trimmed) && current != nil:
			section = sectionHeadRe.FindStringSubmatch(trimmed)[1]

		case strings.HasPrefix(strings.TrimSpace(trimmed), "- ") && current != nil && section != "":
			entry := strings.TrimPrefix(strings.TrimSpace(trimmed), "- ")
			current.Sections[section] = append(current.Sections[section], entry)

		case linkDefRe.MatchString(trimmed):
			doc.Links = append(doc.Links, trimmed)

		case current == nil && trimmed != "" && !strings.HasPrefix(trimmed, "# "):
			doc.Preamble = append(doc.Preamble, trimmed)
		}
	}

	if doc.Title == "" {
		return nil, ErrNoTitle
	}
	return doc, nil
}

// Validate checks the document against the Keep a Changelog rules
// relkit relies on. It returns all problems found, with ErrNoUnreleased
// among them when the Unreleased section is missing.
func Validate(doc *Document) []error {
	var errs []error

	if doc.Unreleased() == nil {
		errs = append(errs, ErrNoUnreleased)
	}

	seen := make(map[string]bool)
	for _, r := range doc.Releases {
		key := strings.ToLower(r.Version)
		if seen[key] {
			errs = append(errs, fmt.Errorf("duplicate section for version %s", r.Version))
		}
		seen[key] = true

		if !r.Unreleased() && r.Date == "" {
			errs = append(errs, fmt.Errorf("release %s has no date", r.Version))
		}
		for name := range r.Sections {
			if !knownSection(name) {
				errs = append(errs, fmt.Errorf("release %s has unknown section %q", r.Version, name))
			}
		}
	}
	return errs
}

func knownSection(name string) bool {
	for _, s := range conventional.SectionOrder {
		if string(s) == name {
			return true
		}
	}
	return false
}

// Unreleased returns the unreleased block, or nil.
func (doc *Document) Unreleased() *Release {
	for _, r := range doc.Releases {
		if r.Unreleased() {
			return r
		}
	}
	return nil
}

// Find returns the release block for the given version, or nil.
func (doc *Document) Find(version string) *Release {
	for _, r := range doc.Releases {
		if r.Version == version {
			return r
		}
	}
	return nil
}

// Promote moves the Unreleased entries into a new release section for
// version, dated date, and leaves a fresh empty Unreleased block on top.
func (doc *Document) Promote(version string, date time.Time) error {
	if doc.Find(version) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateRelease, version)
	}
	unrel := doc.Unreleased()
	if unrel == nil {
		return ErrNoUnreleased
	}
	if unrel.Empty() {
		return ErrEmptyUnreleased
	}

	released := &Release{
		Version:  version,
		Date:     date.Format("2006-01-02"),
		Sections: unrel.Sections,
	}
	unrel.Sections = make(map[string][]string)

	// Insert the new release right after Unreleased.
	releases := make([]*Release, 0, len(doc.Releases)+1)
	for _, r := range doc.Releases {
		releases = append(releases, r)
		if r == unrel {
			releases = append(releases, released)
		}
	}
	doc.Releases = releases
	return nil
}

// AddEntries merges grouped commits into the Unreleased section,
// creating it when absent.
func (doc *Document) AddEntries(groups map[conventional.Section][]conventional.Commit) {
	unrel := doc.Unreleased()
	if unrel == nil {
		unrel = &Release{Version: "Unreleased", Sections: make(map[string][]string)}
		doc.Releases = append([]*Release{unrel}, doc.Releases...)
	}

	for _, sec := range conventional.SectionOrder {
		for _, c := range groups[sec] {
			entry := c.Subject
			if c.Scope != "" {
				entry = fmt.Sprintf("**%s:** %s", c.Scope, c.Subject)
			}
			if c.Breaking {
				entry = "**BREAKING:** " + entry
			}
			if c.Hash != "" {
				entry = fmt.Sprintf("%s (%s)", entry, shortHash(c.Hash))
			}
			unrel.Sections[string(sec)] = append(unrel.Sections[string(sec)], entry)
		}
	}
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}

// Render writes the document back to Keep a Changelog markdown.
func (doc *Document) Render() []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	for _, line := range doc.Preamble {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if len(doc.Preamble) > 0 {
		b.WriteByte('\n')
	}

	for _, r := range doc.Releases {
		if r.Date != "" {
			fmt.Fprintf(&b, "## [%s] - %s\n", r.Version, r.Date)
		} else {
			fmt.Fprintf(&b, "## [%s]\n", r.Version)
		}

		for _, sec := range conventional.SectionOrder {
			entries := r.Sections[string(sec)]
			if len(entries) == 0 {
				continue
			}
			fmt.Fprintf(&b, "\n### %s\n\n", sec)
			for _, e := range entries {
				fmt.Fprintf(&b, "- %s\n", e)
			}
		}
		b.WriteByte('\n')
	}

	for _, link := range doc.Links {
		b.WriteString(link)
		b.WriteByte('\n')
	}

	return []byte(b.String())
}

// Skeleton returns a minimal valid changelog for newly initialized
// projects.
func Skeleton(project string) []byte {
	doc := &Document{
		Title: "Changelog",
		Preamble: []string{
			fmt.Sprintf("All notable changes to %s are documented in this file.", project),
			"",
			"The format is based on [Keep a Changelog](https://keepachangelog.com/en/1.1.0/),",
			"and this project adheres to [Semantic Versioning](https://semver.org/spec/v2.0.0.html).",
		},
		Releases: []*Release{
			{Version: "Unreleased", Sections: make(map[string][]string)},
		},
	}
	return doc.Render()
}

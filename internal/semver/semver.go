// Package semver implements strict semantic version handling for
// package.json-sourced versions.
//
// Versions are strict semver 2.0.0 without a leading "v": "1.0" and
// "v1.0.0" are rejected, "1.0.0-rc.1" is accepted. Comparison defers to
// golang.org/x/mod/semver, which implements the full precedence rules
// including prerelease ordering.
package semver

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	xsemver "golang.org/x/mod/semver"
)

// ErrInvalid is returned when a string is not a strict semantic version.
var ErrInvalid = errors.New("invalid semantic version")

// Bump identifies which component of a version to increment.
type Bump string

const (
	BumpMajor      Bump = "major"
	BumpMinor      Bump = "minor"
	BumpPatch      Bump = "patch"
	BumpPrerelease Bump = "prerelease"
)

// ParseBump validates a bump keyword from the command line.
func ParseBump(s string) (Bump, error) {
	switch Bump(s) {
	case BumpMajor, BumpMinor, BumpPatch, BumpPrerelease:
		return Bump(s), nil
	}
	return "", fmt.Errorf("unknown bump type %q (want major, minor, patch, or prerelease)", s)
}

// Version is a parsed semantic version.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string // without leading "-"
	Build      string // without leading "+"
}

// semverRe is the official semver.org pattern, anchored, no leading "v".
var semverRe = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
	`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?` +
	`(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

// Parse parses a strict semantic version string.
func Parse(s string) (Version, error) {
	m := semverRe.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])

	return Version{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		Prerelease: m[4],
		Build:      m[5],
	}, nil
}

// IsValid reports whether s is a strict semantic version.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// String renders the version back to its canonical form.
func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		b.WriteByte('-')
		b.WriteString(v.Prerelease)
	}
	if v.Build != "" {
		b.WriteByte('+')
		b.WriteString(v.Build)
	}
	return b.String()
}

// IsPrerelease reports whether the version carries a prerelease suffix.
func (v Version) IsPrerelease() bool {
	return v.Prerelease != ""
}

// Bumped returns a new version with the requested component incremented.
// Bumping major/minor/patch clears the prerelease and build metadata.
// Bumping prerelease increments the trailing numeric identifier, or
// starts at "rc.1" when no prerelease is present.
func (v Version) Bumped(b Bump) (Version, error) {
	switch b {
	case BumpMajor:
		return Version{Major: v.Major + 1}, nil
	case BumpMinor:
		return Version{Major: v.Major, Minor: v.Minor + 1}, nil
	case BumpPatch:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}, nil
	case BumpPrerelease:
		return v.bumpedPrerelease()
	}
	return Version{}, fmt.Errorf("unknown bump type %q", b)
}

func (v Version) bumpedPrerelease() (Version, error) {
	next := v
	next.Build = ""

	if v.Prerelease == "" {
		// No existing prerelease: move to the next patch's first rc.
		next.Patch++
		next.Prerelease = "rc.1"
		return next, nil
	}

	ids := strings.Split(v.Prerelease, ".")
	last := ids[len(ids)-1]
	if n, err := strconv.Atoi(last); err == nil {
		ids[len(ids)-1] = strconv.Itoa(n + 1)
	} else {
		ids = append(ids, "1")
	}
	next.Prerelease = strings.Join(ids, ".")
	return next, nil
}

// Compare returns -1, 0, or +1 comparing a and b by semver precedence.
// Build metadata is ignored when comparing.
func Compare(a, b Version) int {
	return xsemver.Compare("v"+a.String(), "v"+b.String())
}

// CompareStrings compares two version strings; invalid versions sort lowest.
func CompareStrings(a, b string) int {
	return xsemver.Compare("v"+a, "v"+b)
}

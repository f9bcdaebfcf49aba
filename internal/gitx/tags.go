package gitx

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"relkit/internal/execx"
	"relkit/internal/semver"
)

// Tag describes a release tag.
type Tag struct {
	Name    string // e.g. "v1.2.3"
	Hash    string
	Version string // semver without the "v" prefix, empty for non-release tags
}

// TagOptions configures tag creation.
type TagOptions struct {
	// Name is the tag name, normally "v" + version.
	Name string

	// Message is the annotation message.
	Message string

	// Ref is the commit to tag. Empty tags HEAD.
	Ref string

	// Sign creates a GPG-signed tag (git tag -s). When false an
	// annotated tag is created instead.
	Sign bool

	// Force replaces an existing tag.
	Force bool
}

// TagExists reports whether the named tag exists locally.
func (r *Repo) TagExists(ctx context.Context, name string) bool {
	_, err := r.exec(ctx, "rev-parse", "--verify", "refs/tags/"+name)
	return err == nil
}

// CreateTag creates an annotated or signed tag.
func (r *Repo) CreateTag(ctx context.Context, opts TagOptions) error {
	if opts.Name == "" {
		return fmt.Errorf("tag name required")
	}
	if !opts.Force && r.TagExists(ctx, opts.Name) {
		return fmt.Errorf("%w: %s", ErrTagExists, opts.Name)
	}

	args := []string{"tag"}
	if opts.Sign {
		args = append(args, "-s")
	} else {
		args = append(args, "-a")
	}
	if opts.Force {
		args = append(args, "-f")
	}
	message := opts.Message
	if message == "" {
		message = "Release " + opts.Name
	}
	args = append(args, "-m", message, opts.Name)
	if opts.Ref != "" {
		args = append(args, opts.Ref)
	}

	if _, err := r.exec(ctx, args...); err != nil {
		if opts.Sign && strings.Contains(err.Error(), "gpg") {
			return fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
		}
		return err
	}
	return nil
}

// DeleteTag removes a local tag.
func (r *Repo) DeleteTag(ctx context.Context, name string) error {
	if !r.TagExists(ctx, name) {
		return fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	_, err := r.exec(ctx, "tag", "-d", name)
	return err
}

// DeleteRemoteTag removes a tag from the remote.
func (r *Repo) DeleteRemoteTag(ctx context.Context, remote, name string) error {
	if remote == "" {
		remote = "origin"
	}
	_, err := r.execRemote(ctx, "push", remote, "--delete", "refs/tags/"+name)
	return err
}

// PushTag pushes a single tag to the remote.
func (r *Repo) PushTag(ctx context.Context, remote, name string) error {
	return r.Push(ctx, remote, "refs/tags/"+name)
}

// VerifyTag checks the GPG signature on a tag (git tag -v).
func (r *Repo) VerifyTag(ctx context.Context, name string) error {
	if !r.TagExists(ctx, name) {
		return fmt.Errorf("%w: %s", ErrTagNotFound, name)
	}
	_, err := r.exec(ctx, "tag", "-v", name)
	return err
}

// ListReleaseTags returns all tags that look like release tags
// ("v" + semver), sorted descending by version.
func (r *Repo) ListReleaseTags(ctx context.Context) ([]Tag, error) {
	lines, err := execx.RunLines(ctx, execx.DefaultTimeout, r.root,
		"git", "tag", "--list", "v*", "--format=%(refname:short) %(objectname)")
	if err != nil {
		return nil, err
	}

	var tags []Tag
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := fields[0]
		version := strings.TrimPrefix(name, "v")
		if !semver.IsValid(version) {
			continue
		}
		tags = append(tags, Tag{Name: name, Hash: fields[1], Version: version})
	}

	sort.Slice(tags, func(i, j int) bool {
		return semver.CompareStrings(tags[i].Version, tags[j].Version) > 0
	})
	return tags, nil
}

// LatestReleaseTag returns the highest-versioned release tag.
func (r *Repo) LatestReleaseTag(ctx context.Context) (Tag, error) {
	tags, err := r.ListReleaseTags(ctx)
	if err != nil {
		return Tag{}, err
	}
	if len(tags) == 0 {
		return Tag{}, ErrTagNotFound
	}
	return tags[0], nil
}

// PreviousReleaseTag returns the release tag immediately before the
// given version, used by rollback to pick a restore target.
func (r *Repo) PreviousReleaseTag(ctx context.Context, version string) (Tag, error) {
	tags, err := r.ListReleaseTags(ctx)
	if err != nil {
		return Tag{}, err
	}
	for _, t := range tags {
		if semver.CompareStrings(t.Version, version) < 0 {
			return t, nil
		}
	}
	return Tag{}, fmt.Errorf("%w: no release before %s", ErrTagNotFound, version)
}

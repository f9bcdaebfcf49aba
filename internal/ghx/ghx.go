// Package ghx wraps the gh CLI for the GitHub release operations the
// workflow needs: creating releases from tags, demoting a release to
// prerelease during rollback, and checking CI status.
package ghx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"relkit/internal/execx"
)

var (
	// ErrGHNotInstalled is returned when the gh binary is missing.
	ErrGHNotInstalled = errors.New("gh CLI not installed")

	// ErrReleaseNotFound is returned when a release does not exist.
	ErrReleaseNotFound = errors.New("github release not found")
)

// remoteTimeout bounds gh invocations, all of which hit the network.
const remoteTimeout = 2 * time.Minute

// Client drives the gh binary from a repository directory.
type Client struct {
	dir string
}

// New creates a client rooted at the repository directory.
func New(dir string) (*Client, error) {
	if _, err := execx.LookPath("gh"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGHNotInstalled, err)
	}
	return &Client{dir: dir}, nil
}

// Installed reports whether gh is available.
func Installed() bool {
	_, err := execx.LookPath("gh")
	return err == nil
}

func (c *Client) exec(ctx context.Context, args ...string) ([]byte, error) {
	return execx.RunContext(ctx, remoteTimeout, c.dir, "gh", args...)
}

// Release is the subset of GitHub release metadata relkit uses.
type Release struct {
	TagName    string    `json:"tagName"`
	Name       string    `json:"name"`
	IsDraft    bool      `json:"isDraft"`
	Prerelease bool      `json:"isPrerelease"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CreateReleaseOptions configures release creation.
type CreateReleaseOptions struct {
	Tag        string
	Title      string
	NotesFile  string // path to markdown notes; empty generates from commits
	Prerelease bool
	Draft      bool
}

// CreateRelease creates a GitHub release for an existing tag.
func (c *Client) CreateRelease(ctx context.Context, opts CreateReleaseOptions) error {
	args := []string{"release", "create", opts.Tag}
	if opts.Title != "" {
		args = append(args, "--title", opts.Title)
	}
	if opts.NotesFile != "" {
		args = append(args, "--notes-file", opts.NotesFile)
	} else {
		args = append(args, "--generate-notes")
	}
	if opts.Prerelease {
		args = append(args, "--prerelease")
	}
	if opts.Draft {
		args = append(args, "--draft")
	}
	_, err := c.exec(ctx, args...)
	return err
}

// ViewRelease fetches release metadata for a tag.
func (c *Client) ViewRelease(ctx context.Context, tag string) (*Release, error) {
	out, err := c.exec(ctx, "release", "view", tag,
		"--json", "tagName,name,isDraft,isPrerelease,url,createdAt")
	if err != nil {
		if strings.Contains(err.Error(), "release not found") || execx.IsExitError(err) {
			return nil, fmt.Errorf("%w: %s", ErrReleaseNotFound, tag)
		}
		return nil, err
	}

	var rel Release
	if err := json.Unmarshal(out, &rel); err != nil {
		return nil, fmt.Errorf("parse gh release view output: %w", err)
	}
	return &rel, nil
}

// MarkPrerelease demotes a published release to prerelease. Rollback
// uses this instead of deleting, so the release page and assets stay
// reachable.
func (c *Client) MarkPrerelease(ctx context.Context, tag string) error {
	_, err := c.exec(ctx, "release", "edit", tag, "--prerelease")
	return err
}

// DeleteRelease removes a release (not its tag).
func (c *Client) DeleteRelease(ctx context.Context, tag string) error {
	_, err := c.exec(ctx, "release", "delete", tag, "--yes")
	return err
}

// CheckRun is one CI check result on a ref.
type CheckRun struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
}

// Checks returns the workflow runs triggered by a ref. Tag pushes
// record the tag name as the run's branch, so release tags work here.
func (c *Client) Checks(ctx context.Context, ref string) ([]CheckRun, error) {
	out, err := c.exec(ctx, "run", "list", "--branch", ref, "--json", "name,status,conclusion")
	if err != nil {
		return nil, err
	}

	var runs []CheckRun
	if err := json.Unmarshal(out, &runs); err != nil {
		return nil, fmt.Errorf("parse gh run list output: %w", err)
	}
	return runs, nil
}

// FailedChecks filters the check runs down to failures.
func FailedChecks(runs []CheckRun) []CheckRun {
	var failed []CheckRun
	for _, r := range runs {
		if r.Conclusion == "failure" || r.Conclusion == "timed_out" || r.Conclusion == "cancelled" {
			failed = append(failed, r)
		}
	}
	return failed
}

// OpenIssueCount returns the number of open issues carrying the given
// label, used by post-release monitoring as a health signal.
func (c *Client) OpenIssueCount(ctx context.Context, label string) (int, error) {
	args := []string{"issue", "list", "--state", "open", "--json", "number"}
	if label != "" {
		args = append(args, "--label", label)
	}
	out, err := c.exec(ctx, args...)
	if err != nil {
		return 0, err
	}

	var issues []struct {
		Number int `json:"number"`
	}
	if err := json.Unmarshal(out, &issues); err != nil {
		return 0, fmt.Errorf("parse gh issue list output: %w", err)
	}
	return len(issues), nil
}

// Package gitx wraps the git CLI with the operations the release
// workflow needs: repository discovery, working-tree state, commit
// listing for changelog generation, and signed tag management.
package gitx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"relkit/internal/execx"
)

// Repo is a handle on a git repository.
type Repo struct {
	root string
}

// Open locates the repository containing path.
func Open(path string) (*Repo, error) {
	if _, err := execx.LookPath("git"); err != nil {
		return nil, err
	}

	out, err := execx.Run(path, "git", "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotARepo, path)
	}
	return &Repo{root: execx.TrimOutput(out)}, nil
}

// Root returns the repository root directory.
func (r *Repo) Root() string {
	return r.root
}

// Version returns the git binary version string.
func (r *Repo) Version() (string, error) {
	out, err := execx.Run(r.root, "git", "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(execx.TrimOutput(out), "git version "), nil
}

// exec runs a git command in the repository root.
func (r *Repo) exec(ctx context.Context, args ...string) ([]byte, error) {
	return execx.RunContext(ctx, execx.DefaultTimeout, r.root, "git", args...)
}

// execRemote runs a git command that talks to the network, with a
// longer timeout.
func (r *Repo) execRemote(ctx context.Context, args ...string) ([]byte, error) {
	return execx.RunContext(ctx, 2*time.Minute, r.root, "git", args...)
}

// CurrentBranch returns the checked-out branch, or empty in detached
// HEAD state.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.exec(ctx, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return execx.TrimOutput(out), nil
}

// Head returns the full hash of HEAD.
func (r *Repo) Head(ctx context.Context) (string, error) {
	return r.ResolveRef(ctx, "HEAD")
}

// ResolveRef returns the commit hash a ref points at.
func (r *Repo) ResolveRef(ctx context.Context, ref string) (string, error) {
	out, err := r.exec(ctx, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrRefNotFound, ref)
	}
	return execx.TrimOutput(out), nil
}

// IsClean reports whether the working tree has no uncommitted changes.
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	out, err := r.exec(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return len(execx.ParseLines(out)) == 0, nil
}

// HasRemote reports whether any remote is configured.
func (r *Repo) HasRemote(ctx context.Context) bool {
	out, err := r.exec(ctx, "remote")
	if err != nil {
		return false
	}
	return len(execx.ParseLines(out)) > 0
}

// RemoteURL returns the fetch URL of the named remote.
func (r *Repo) RemoteURL(ctx context.Context, remote string) (string, error) {
	out, err := r.exec(ctx, "remote", "get-url", remote)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoRemote, remote)
	}
	return execx.TrimOutput(out), nil
}

// Add stages the given paths.
func (r *Repo) Add(ctx context.Context, paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	_, err := r.exec(ctx, args...)
	return err
}

// Commit commits the staged changes with the given message.
func (r *Repo) Commit(ctx context.Context, message string, signed bool) error {
	args := []string{"commit", "-m", message}
	if signed {
		args = append(args, "-S")
	} else {
		args = append(args, "--no-gpg-sign")
	}
	_, err := r.exec(ctx, args...)
	return err
}

// Push pushes the given refspec to the remote.
func (r *Repo) Push(ctx context.Context, remote string, refspec string) error {
	if remote == "" {
		remote = "origin"
	}
	if _, err := r.execRemote(ctx, "push", remote, refspec); err != nil {
		if execx.IsExitError(err) {
			return fmt.Errorf("%w: %v", ErrPushRejected, err)
		}
		return err
	}
	return nil
}

// Fetch fetches tags and refs from the remote.
func (r *Repo) Fetch(ctx context.Context, remote string) error {
	if remote == "" {
		remote = "origin"
	}
	_, err := r.execRemote(ctx, "fetch", "--tags", remote)
	return err
}

// ConfigGet reads a git config value; empty when unset.
func (r *Repo) ConfigGet(ctx context.Context, key string) string {
	out, err := r.exec(ctx, "config", "--get", key)
	if err != nil {
		return ""
	}
	return execx.TrimOutput(out)
}

// ConfigSet writes a git config value in the repository scope.
func (r *Repo) ConfigSet(ctx context.Context, key, value string) error {
	_, err := r.exec(ctx, "config", key, value)
	return err
}

// Checkout checks out a path from a ref into the working tree.
func (r *Repo) Checkout(ctx context.Context, ref string, paths ...string) error {
	args := append([]string{"checkout", ref, "--"}, paths...)
	_, err := r.exec(ctx, args...)
	return err
}

// ShowFile returns a file's content at the given ref.
func (r *Repo) ShowFile(ctx context.Context, ref, path string) ([]byte, error) {
	return r.exec(ctx, "show", ref+":"+path)
}

// Installed reports whether the git binary is available at all.
func Installed() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

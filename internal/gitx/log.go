package gitx

import (
	"context"
	"strings"

	"relkit/internal/conventional"
	"relkit/internal/execx"
)

// logFormat keeps hash and subject on one line with an unlikely
// separator, avoiding multi-line parsing.
const logFormat = "%H\x1f%s"

// CommitsBetween returns the commits in (from, to], oldest first,
// parsed as conventional commits. An empty from lists the full history
// of to.
func (r *Repo) CommitsBetween(ctx context.Context, from, to string) ([]conventional.Commit, error) {
	if to == "" {
		to = "HEAD"
	}
	rangeSpec := to
	if from != "" {
		rangeSpec = from + ".." + to
	}

	lines, err := execx.RunLines(ctx, execx.DefaultTimeout, r.root,
		"git", "log", "--reverse", "--no-merges", "--format="+logFormat, rangeSpec)
	if err != nil {
		return nil, err
	}

	commits := make([]conventional.Commit, 0, len(lines))
	for _, line := range lines {
		hash, subject, ok := strings.Cut(line, "\x1f")
		if !ok {
			continue
		}
		commits = append(commits, conventional.Parse(hash, subject))
	}
	return commits, nil
}

// CommitsSinceLastRelease returns the commits since the latest release
// tag, plus the tag itself. With no release tags the full history is
// returned and the zero Tag.
func (r *Repo) CommitsSinceLastRelease(ctx context.Context) ([]conventional.Commit, Tag, error) {
	last, err := r.LatestReleaseTag(ctx)
	if err != nil {
		// No tags yet: whole history feeds the first changelog.
		commits, logErr := r.CommitsBetween(ctx, "", "HEAD")
		return commits, Tag{}, logErr
	}

	commits, err := r.CommitsBetween(ctx, last.Name, "HEAD")
	if err != nil {
		return nil, Tag{}, err
	}
	return commits, last, nil
}

// Package rollback orchestrates rolling a published release back to a
// previous version. The flow is fixed: plan, back up local state,
// confirm, execute the selected scopes, verify. Scopes are independent
// remote mutations; a failure in one scope is recorded and the next
// scope still runs, since partial rollback is better than none.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"relkit/internal/backup"
	"relkit/internal/gitx"
	"relkit/internal/pipeline"
	"relkit/internal/pkgjson"
	"relkit/internal/semver"
)

// Scope selects one independent rollback routine.
type Scope string

const (
	ScopeNPM    Scope = "npm"
	ScopeGit    Scope = "git"
	ScopeGitHub Scope = "github"
	ScopeDocs   Scope = "docs"
)

// AllScopes is the default rollback selection, in execution order.
var AllScopes = []Scope{ScopeNPM, ScopeGit, ScopeGitHub, ScopeDocs}

// ErrNoPreviousVersion indicates no earlier release exists to roll
// back to.
var ErrNoPreviousVersion = errors.New("no previous version to roll back to")

// ParseScopes validates a comma-separated scope list.
func ParseScopes(s string) ([]Scope, error) {
	if s == "" || s == "all" {
		return AllScopes, nil
	}
	var scopes []Scope
	for _, part := range strings.Split(s, ",") {
		scope := Scope(strings.TrimSpace(part))
		switch scope {
		case ScopeNPM, ScopeGit, ScopeGitHub, ScopeDocs:
			scopes = append(scopes, scope)
		default:
			return nil, fmt.Errorf("unknown rollback scope %q", scope)
		}
	}
	return scopes, nil
}

// NPMClient is the npm surface the rollback needs.
type NPMClient interface {
	Deprecate(ctx context.Context, pkg, version, message string) error
	DistTagAdd(ctx context.Context, pkg, version, tag string) error
}

// RegistryClient answers version queries against the npm registry.
type RegistryClient interface {
	VersionExists(ctx context.Context, pkg, version string) (bool, error)
	PreviousVersion(ctx context.Context, pkg, version string) (string, error)
	DistTag(ctx context.Context, pkg, tag string) (string, error)
}

// GitClient is the git surface the rollback needs.
type GitClient interface {
	TagExists(ctx context.Context, name string) bool
	DeleteTag(ctx context.Context, name string) error
	DeleteRemoteTag(ctx context.Context, remote, name string) error
	PreviousReleaseTag(ctx context.Context, version string) (gitx.Tag, error)
	ShowFile(ctx context.Context, ref, path string) ([]byte, error)
}

// GitHubClient is the gh surface the rollback needs.
type GitHubClient interface {
	MarkPrerelease(ctx context.Context, tag string) error
}

// Plan captures what the rollback will do before anything runs.
type Plan struct {
	Package     string    `json:"package"`
	FromVersion string    `json:"from_version"`
	ToVersion   string    `json:"to_version"`
	TagName     string    `json:"tag_name"`
	Scopes      []Scope   `json:"scopes"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// Describe renders the plan for the confirmation prompt.
func (p Plan) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Roll back %s from %s to %s\n", p.Package, p.FromVersion, p.ToVersion)
	fmt.Fprintf(&b, "Tag to remove: %s\n", p.TagName)
	names := make([]string, len(p.Scopes))
	for i, s := range p.Scopes {
		names[i] = string(s)
	}
	fmt.Fprintf(&b, "Scopes: %s", strings.Join(names, ", "))
	if p.Reason != "" {
		fmt.Fprintf(&b, "\nReason: %s", p.Reason)
	}
	return b.String()
}

// Orchestrator wires the clients a rollback mutates through.
type Orchestrator struct {
	Root      string
	TagPrefix string
	Remote    string
	DocsGlobs []string // relative globs whose version strings get rewritten

	NPM      NPMClient
	Registry RegistryClient
	Git      GitClient
	GitHub   GitHubClient

	Logger *slog.Logger
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Orchestrator) tagName(version string) string {
	prefix := o.TagPrefix
	if prefix == "" {
		prefix = "v"
	}
	return prefix + version
}

// BuildPlan determines the rollback target. When target is empty the
// previous version is found via git release tags, falling back to the
// registry's version history.
func (o *Orchestrator) BuildPlan(ctx context.Context, pkg, from, target, reason string, scopes []Scope) (Plan, error) {
	if _, err := semver.Parse(from); err != nil {
		return Plan{}, fmt.Errorf("current version %q: %w", from, err)
	}

	if target == "" {
		tag, err := o.Git.PreviousReleaseTag(ctx, from)
		switch {
		case err == nil:
			target = tag.Version
		case errors.Is(err, gitx.ErrTagNotFound):
			prev, rerr := o.Registry.PreviousVersion(ctx, pkg, from)
			if rerr != nil {
				return Plan{}, fmt.Errorf("%w: %v", ErrNoPreviousVersion, rerr)
			}
			target = prev
		default:
			return Plan{}, fmt.Errorf("find previous release tag: %w", err)
		}
	}

	if _, err := semver.Parse(target); err != nil {
		return Plan{}, fmt.Errorf("target version %q: %w", target, err)
	}
	if target == from {
		return Plan{}, fmt.Errorf("target version %s equals the version being rolled back", from)
	}

	exists, err := o.Registry.VersionExists(ctx, pkg, target)
	if err != nil {
		o.logger().Warn("could not confirm target version on registry", "version", target, "error", err)
	} else if !exists {
		return Plan{}, fmt.Errorf("target version %s is not published", target)
	}

	if len(scopes) == 0 {
		scopes = AllScopes
	}
	return Plan{
		Package:     pkg,
		FromVersion: from,
		ToVersion:   target,
		TagName:     o.tagName(from),
		Scopes:      scopes,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Backup snapshots the files the rollback will touch.
func (o *Orchestrator) Backup(plan Plan, gitRef string) (*backup.Snapshot, error) {
	return backup.Create(backup.Options{
		Root:    o.Root,
		Files:   []string{"package.json", "CHANGELOG.md"},
		Reason:  "rollback " + plan.FromVersion + " -> " + plan.ToVersion,
		Version: plan.FromVersion,
		GitRef:  gitRef,
	})
}

// Steps builds the pipeline for the plan. Scope steps mutate remote
// state, so a dry run skips all of them.
func (o *Orchestrator) Steps(plan Plan) []pipeline.Step {
	steps := make([]pipeline.Step, 0, len(plan.Scopes)+2)
	for _, scope := range plan.Scopes {
		switch scope {
		case ScopeNPM:
			steps = append(steps, pipeline.Step{
				Name:    "npm: deprecate and retag",
				Mutates: true,
				Run: func(ctx context.Context) (string, error) {
					return o.rollbackNPM(ctx, plan)
				},
			})
		case ScopeGit:
			steps = append(steps, pipeline.Step{
				Name:    "git: remove release tag",
				Mutates: true,
				Run: func(ctx context.Context) (string, error) {
					return o.rollbackGit(ctx, plan)
				},
			})
		case ScopeGitHub:
			steps = append(steps, pipeline.Step{
				Name:    "github: demote release",
				Mutates: true,
				Run: func(ctx context.Context) (string, error) {
					return o.rollbackGitHub(ctx, plan)
				},
			})
		case ScopeDocs:
			steps = append(steps, pipeline.Step{
				Name:    "docs: rewrite version strings",
				Mutates: true,
				Run: func(ctx context.Context) (string, error) {
					return o.rollbackDocs(ctx, plan)
				},
			})
		}
	}
	steps = append(steps, pipeline.Step{
		Name:    "restore package.json version",
		Mutates: true,
		Run: func(ctx context.Context) (string, error) {
			return o.restorePackageVersion(plan)
		},
	})
	return steps
}

// Execute runs the plan. Scope failures are recorded in the report and
// execution continues; the report, not the error, is the source of
// truth for what happened.
func (o *Orchestrator) Execute(ctx context.Context, plan Plan, dryRun bool) (*pipeline.RunReport, error) {
	runner := pipeline.NewRunner(pipeline.Options{
		DryRun:          dryRun,
		ContinueOnError: true,
	})
	return runner.Run(ctx, "rollback", o.Steps(plan))
}

func (o *Orchestrator) rollbackNPM(ctx context.Context, plan Plan) (string, error) {
	msg := fmt.Sprintf("Rolled back, use %s instead", plan.ToVersion)
	if plan.Reason != "" {
		msg = fmt.Sprintf("Rolled back (%s), use %s instead", plan.Reason, plan.ToVersion)
	}
	if err := o.NPM.Deprecate(ctx, plan.Package, plan.FromVersion, msg); err != nil {
		return "", fmt.Errorf("deprecate %s@%s: %w", plan.Package, plan.FromVersion, err)
	}
	if err := o.NPM.DistTagAdd(ctx, plan.Package, plan.ToVersion, "latest"); err != nil {
		return "", fmt.Errorf("retag latest to %s: %w", plan.ToVersion, err)
	}
	return fmt.Sprintf("deprecated %s, latest -> %s", plan.FromVersion, plan.ToVersion), nil
}

func (o *Orchestrator) rollbackGit(ctx context.Context, plan Plan) (string, error) {
	if !o.Git.TagExists(ctx, plan.TagName) {
		return plan.TagName + " not present locally", nil
	}
	if err := o.Git.DeleteTag(ctx, plan.TagName); err != nil {
		return "", err
	}
	remote := o.Remote
	if remote == "" {
		remote = "origin"
	}
	if err := o.Git.DeleteRemoteTag(ctx, remote, plan.TagName); err != nil {
		// Local deletion succeeded; surface the remote failure but
		// keep the partial progress visible.
		return "", fmt.Errorf("local tag deleted, remote deletion failed: %w", err)
	}
	return "deleted " + plan.TagName + " locally and on " + remote, nil
}

func (o *Orchestrator) rollbackGitHub(ctx context.Context, plan Plan) (string, error) {
	if o.GitHub == nil {
		return "", pipeline.Warning(errors.New("gh not available, release left as-is"))
	}
	if err := o.GitHub.MarkPrerelease(ctx, plan.TagName); err != nil {
		return "", fmt.Errorf("demote release %s: %w", plan.TagName, err)
	}
	return "marked " + plan.TagName + " as prerelease", nil
}

// rollbackDocs rewrites bare version strings in documentation files.
// Only exact occurrences of the rolled-back version are touched.
func (o *Orchestrator) rollbackDocs(ctx context.Context, plan Plan) (string, error) {
	globs := o.DocsGlobs
	if len(globs) == 0 {
		globs = []string{"README.md", "docs/*.md"}
	}

	pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(plan.FromVersion) + `\b`)
	if err != nil {
		return "", err
	}

	changed := 0
	for _, glob := range globs {
		matches, err := filepath.Glob(filepath.Join(o.Root, glob))
		if err != nil {
			return "", fmt.Errorf("bad docs glob %q: %w", glob, err)
		}
		for _, path := range matches {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			if !pattern.Match(data) {
				continue
			}
			updated := pattern.ReplaceAll(data, []byte(plan.ToVersion))
			if err := os.WriteFile(path, updated, 0644); err != nil {
				return "", err
			}
			changed++
		}
	}
	if changed == 0 {
		return "no doc files referenced " + plan.FromVersion, nil
	}
	return fmt.Sprintf("rewrote %d file(s) to %s", changed, plan.ToVersion), nil
}

func (o *Orchestrator) restorePackageVersion(plan Plan) (string, error) {
	pj, err := pkgjson.Find(o.Root)
	if err != nil {
		return "", err
	}
	target, err := semver.Parse(plan.ToVersion)
	if err != nil {
		return "", err
	}
	if err := pj.SetVersion(target); err != nil {
		return "", err
	}
	if err := pj.Save(); err != nil {
		return "", err
	}
	return "package.json version set to " + plan.ToVersion, nil
}

// Verify checks post-rollback state: the registry's latest dist-tag,
// the local package.json version, and the absence of the release tag.
func (o *Orchestrator) Verify(ctx context.Context, plan Plan) []error {
	var problems []error

	if latest, err := o.Registry.DistTag(ctx, plan.Package, "latest"); err != nil {
		problems = append(problems, fmt.Errorf("check latest dist-tag: %w", err))
	} else if latest != plan.ToVersion {
		problems = append(problems, fmt.Errorf("latest dist-tag is %s, want %s", latest, plan.ToVersion))
	}

	if pj, err := pkgjson.Find(o.Root); err != nil {
		problems = append(problems, fmt.Errorf("read package.json: %w", err))
	} else if v, err := pj.Version(); err != nil {
		problems = append(problems, err)
	} else if v.String() != plan.ToVersion {
		problems = append(problems, fmt.Errorf("package.json version is %s, want %s", v, plan.ToVersion))
	}

	if hasGitScope(plan.Scopes) && o.Git.TagExists(ctx, plan.TagName) {
		problems = append(problems, fmt.Errorf("tag %s still exists", plan.TagName))
	}

	// The target tag's recorded package.json is the ground truth for
	// what the rollback restored to; a mismatch means the tag and the
	// registry disagree about what that version is.
	if targetTag := o.tagName(plan.ToVersion); o.Git.TagExists(ctx, targetTag) {
		if data, err := o.Git.ShowFile(ctx, targetTag, "package.json"); err == nil {
			if v := gjson.GetBytes(data, "version").String(); v != plan.ToVersion {
				problems = append(problems, fmt.Errorf("package.json at %s has version %s, want %s", targetTag, v, plan.ToVersion))
			}
		}
	}
	return problems
}

func hasGitScope(scopes []Scope) bool {
	for _, s := range scopes {
		if s == ScopeGit {
			return true
		}
	}
	return false
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"relkit/internal/backup"
	"relkit/internal/changelog"
	"relkit/internal/conventional"
	"relkit/internal/ghx"
	"relkit/internal/gitx"
	"relkit/internal/notify"
	"relkit/internal/npm"
	"relkit/internal/pipeline"
	"relkit/internal/semver"
	"relkit/internal/ui"
)

var releaseCmd = &cobra.Command{
	Use:     "release <major|minor|patch|prerelease>",
	GroupID: "workflow",
	Short:   "Run the full release pipeline",
	Long: `Run the whole release in one pipeline: bump the version, update
the changelog, commit, create a signed tag, push, publish to npm,
create the GitHub release, and verify registry visibility.

State is backed up before any mutation, every step is reported, and
the run is recorded in the release history. Use --dry-run to see the
plan; mutating steps are skipped entirely.

Examples:
  rk release patch
  rk release minor --dry-run
  rk release major --no-github`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bump, err := semver.ParseBump(args[0])
		if err != nil {
			return err
		}

		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		noGitHub, _ := cmd.Flags().GetBool("no-github")

		pkg, err := ws.packageName()
		if err != nil {
			return err
		}
		current, err := ws.pkg.Version()
		if err != nil {
			return err
		}
		next, err := current.Bumped(bump)
		if err != nil {
			return err
		}
		tagName := ws.cfg.Git.TagPrefix + next.String()

		fmt.Printf("%s releasing %s %s -> %s\n\n", ui.RenderHeading("rk release"), pkg, current, next)

		if !dryRun {
			snap, err := backup.Create(backup.Options{
				Root:    ws.root,
				Files:   []string{"package.json", ws.cfg.Changelog.Path},
				Reason:  "release " + next.String(),
				Version: current.String(),
			})
			if err != nil {
				return fmt.Errorf("backup before release: %w", err)
			}
			fmt.Printf("%s backup: %s\n", ui.RenderDim("·"), snap.Path)
		}

		steps := releaseSteps(ws, pkg, current, next, tagName, noGitHub)
		runner := pipeline.NewRunner(pipeline.Options{
			DryRun:   dryRun,
			Observer: printStepResult,
		})
		rep, err := runner.Run(cmd.Context(), "release "+next.String(), steps)
		if werr := writeReport(ws, rep); werr != nil {
			ws.logger.Warn("could not write report", "error", werr)
		}
		if err != nil {
			return err
		}

		if rep.Failed() {
			recordEvent(cmd.Context(), ws, "publish", pkg, next.String(), "failed", "release pipeline failed")
			notifyRelease(cmd.Context(), ws, notify.SeverityError,
				fmt.Sprintf("%s %s release failed", pkg, next),
				"See the release report for the failing step.")
			return fmt.Errorf("release failed; run 'rk rollback' if partial state was published")
		}
		if dryRun {
			fmt.Printf("\n%s dry run complete, nothing was changed\n", ui.RenderAccent("→"))
			return nil
		}

		recordEvent(cmd.Context(), ws, "publish", pkg, next.String(), "ok", "released")
		notifyRelease(cmd.Context(), ws, notify.SeverityInfo,
			fmt.Sprintf("%s %s released", pkg, next),
			fmt.Sprintf("Tag %s published and verified.", tagName))
		fmt.Printf("\n%s released %s@%s\n", ui.RenderPass("✓"), pkg, next)
		fmt.Printf("   next: rk monitor --until \"in 2 hours\"\n")
		return nil
	},
}

func releaseSteps(ws *workspace, pkg string, current, next semver.Version, tagName string, noGitHub bool) []pipeline.Step {
	cli := ws.npmCLI()
	registry := ws.registry()
	changelogPath := filepath.Join(ws.root, ws.cfg.Changelog.Path)

	steps := []pipeline.Step{
		{
			Name: "preflight",
			Run: func(ctx context.Context) (string, error) {
				clean, err := ws.repo.IsClean(ctx)
				if err != nil {
					return "", err
				}
				if !clean {
					return "", gitx.ErrDirtyTree
				}
				branch, err := ws.repo.CurrentBranch(ctx)
				if err != nil {
					return "", err
				}
				if branch != ws.cfg.Git.ReleaseBranch {
					return "", fmt.Errorf("on branch %s, releases run from %s", branch, ws.cfg.Git.ReleaseBranch)
				}
				exists, err := registry.VersionExists(ctx, pkg, next.String())
				if err == nil && exists {
					return "", fmt.Errorf("%s@%s already published", pkg, next)
				}
				return "branch " + branch + ", tree clean", nil
			},
		},
		{
			Name:    "bump version",
			Mutates: true,
			Run: func(ctx context.Context) (string, error) {
				if err := ws.pkg.SetVersion(next); err != nil {
					return "", err
				}
				if err := ws.pkg.Save(); err != nil {
					return "", err
				}
				return current.String() + " -> " + next.String(), nil
			},
		},
		{
			Name:    "update changelog",
			Mutates: true,
			Run: func(ctx context.Context) (string, error) {
				commits, _, err := ws.repo.CommitsSinceLastRelease(ctx)
				if err != nil {
					return "", err
				}
				doc, err := loadOrSkeleton(changelogPath, ws)
				if err != nil {
					return "", err
				}
				doc.AddEntries(conventional.Grouped(commits))
				if err := doc.Promote(next.String(), time.Now()); err != nil {
					if errors.Is(err, changelog.ErrEmptyUnreleased) {
						return "", pipeline.Warning(err)
					}
					return "", err
				}
				if err := os.WriteFile(changelogPath, doc.Render(), 0644); err != nil {
					return "", err
				}
				return fmt.Sprintf("%d commit(s) promoted to %s", len(commits), next), nil
			},
		},
		{
			Name:    "commit release",
			Mutates: true,
			Run: func(ctx context.Context) (string, error) {
				if err := ws.repo.Add(ctx, "package.json", ws.cfg.Changelog.Path); err != nil {
					return "", err
				}
				msg := "chore(release): " + next.String()
				if err := ws.repo.Commit(ctx, msg, ws.cfg.Signing.Required); err != nil {
					return "", err
				}
				return msg, nil
			},
		},
		{
			Name:    "create signed tag",
			Mutates: true,
			Run: func(ctx context.Context) (string, error) {
				opts := gitx.TagOptions{Name: tagName, Message: "Release " + next.String(), Sign: true}
				err := ws.repo.CreateTag(ctx, opts)
				if errors.Is(err, gitx.ErrSigningUnavailable) && !ws.cfg.Signing.Required {
					opts.Sign = false
					if err = ws.repo.CreateTag(ctx, opts); err == nil {
						return "", pipeline.Warning(fmt.Errorf("signing unavailable, created annotated tag %s", tagName))
					}
				}
				if err != nil {
					return "", err
				}
				return tagName + " (signed)", nil
			},
		},
		{
			Name:    "push branch and tag",
			Mutates: true,
			Run: func(ctx context.Context) (string, error) {
				if err := ws.repo.Push(ctx, ws.cfg.Git.Remote, ws.cfg.Git.ReleaseBranch); err != nil {
					return "", err
				}
				if err := ws.repo.PushTag(ctx, ws.cfg.Git.Remote, tagName); err != nil {
					return "", err
				}
				return "pushed to " + ws.cfg.Git.Remote, nil
			},
		},
		{
			Name:    "npm publish",
			Mutates: true,
			Run: func(ctx context.Context) (string, error) {
				err := cli.Publish(ctx, npm.PublishOptions{
					Tag:        ws.cfg.Registry.DistTag,
					Access:     ws.cfg.Registry.Access,
					Provenance: ws.cfg.Registry.Provenance,
				})
				if err != nil {
					return "", err
				}
				return "published " + next.String(), nil
			},
		},
	}

	if !noGitHub {
		steps = append(steps, pipeline.Step{
			Name:    "github release",
			Mutates: true,
			Run: func(ctx context.Context) (string, error) {
				if !ghx.Installed() {
					return "", pipeline.Warning(errors.New("gh not installed, skipping"))
				}
				gh, err := ghx.New(ws.root)
				if err != nil {
					return "", pipeline.Warning(err)
				}
				err = gh.CreateRelease(ctx, ghx.CreateReleaseOptions{
					Tag:        tagName,
					Title:      next.String(),
					Prerelease: next.IsPrerelease(),
				})
				if err != nil {
					return "", err
				}
				return "created release " + tagName, nil
			},
		})
	}

	steps = append(steps, pipeline.Step{
		Name:    "registry visibility",
		Mutates: true,
		Run: func(ctx context.Context) (string, error) {
			waitCtx, cancel := context.WithTimeout(ctx, visibilityWait)
			defer cancel()
			waited, err := registry.WaitForVersion(waitCtx, pkg, next.String(), 5*time.Second)
			if err != nil {
				return "", pipeline.Warning(err)
			}
			return fmt.Sprintf("visible after %s", waited.Round(time.Second)), nil
		},
	})
	return steps
}

// notifyRelease sends webhooks when any are configured; failures are
// logged, never fatal.
func notifyRelease(ctx context.Context, ws *workspace, sev notify.Severity, title, body string) {
	n := notify.New(ws.cfg.Webhooks.Discord, ws.cfg.Webhooks.Slack)
	if !n.Enabled() {
		return
	}
	if err := n.Send(ctx, notify.Event{Severity: sev, Title: title, Message: body}); err != nil {
		ws.logger.Warn("webhook notification failed", "error", err)
	}
}

func init() {
	releaseCmd.Flags().Bool("dry-run", false, "Show the pipeline without mutating anything")
	releaseCmd.Flags().Bool("no-github", false, "Skip creating the GitHub release")
	rootCmd.AddCommand(releaseCmd)
}

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"relkit/internal/ghx"
	"relkit/internal/pipeline"
	"relkit/internal/ui"
)

var verifyCmd = &cobra.Command{
	Use:     "verify",
	GroupID: "safety",
	Short:   "Verify a published release end to end",
	Long: `Check that a release actually landed: the version is visible on
the registry, the dist-tag points at it, the signed tag exists, the
GitHub release is published, and CI on the tag is green.

--stress fetches the packument N times concurrently to catch
replication lag across registry mirrors.

Examples:
  rk verify
  rk verify --version 2.1.0 --stress 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		version, _ := cmd.Flags().GetString("version")
		stress, _ := cmd.Flags().GetInt("stress")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		if version == "" {
			v, err := ws.pkg.Version()
			if err != nil {
				return err
			}
			version = v.String()
		}

		pkg, err := ws.packageName()
		if err != nil {
			return err
		}
		tagName := ws.cfg.Git.TagPrefix + version
		registry := ws.registry()

		steps := []pipeline.Step{
			{
				Name: "version on registry",
				Run: func(ctx context.Context) (string, error) {
					waitCtx, cancel := context.WithTimeout(ctx, timeout)
					defer cancel()
					waited, err := registry.WaitForVersion(waitCtx, pkg, version, 5*time.Second)
					if err != nil {
						return "", err
					}
					msg := fmt.Sprintf("visible (waited %s)", waited.Round(time.Second))
					if at, err := registry.PublishedAt(ctx, pkg, version); err == nil {
						msg += ", published " + at.Local().Format(time.RFC822)
					}
					return msg, nil
				},
			},
			{
				Name: "dist-tag points at release",
				Run: func(ctx context.Context) (string, error) {
					got, err := registry.DistTag(ctx, pkg, ws.cfg.Registry.DistTag)
					if err != nil {
						return "", err
					}
					if got != version {
						return "", fmt.Errorf("%s is %s, want %s", ws.cfg.Registry.DistTag, got, version)
					}
					return ws.cfg.Registry.DistTag + " -> " + version, nil
				},
			},
			{
				Name: "tarball downloadable",
				Run: func(ctx context.Context) (string, error) {
					tarball, err := registry.CheckTarball(ctx, pkg, version)
					if err != nil {
						return "", err
					}
					return tarball, nil
				},
			},
			{
				Name: "signed tag exists",
				Run: func(ctx context.Context) (string, error) {
					if !ws.repo.TagExists(ctx, tagName) {
						return "", fmt.Errorf("tag %s not found", tagName)
					}
					if err := ws.repo.VerifyTag(ctx, tagName); err != nil {
						return "", pipeline.Warning(fmt.Errorf("tag exists but signature check failed: %w", err))
					}
					return tagName + " verified", nil
				},
			},
			{
				Name: "github release",
				Run: func(ctx context.Context) (string, error) {
					if !ghx.Installed() {
						return "", pipeline.Warning(fmt.Errorf("gh not installed, skipping"))
					}
					gh, err := ghx.New(ws.root)
					if err != nil {
						return "", pipeline.Warning(err)
					}
					rel, err := gh.ViewRelease(ctx, tagName)
					if err != nil {
						return "", err
					}
					if rel.IsDraft {
						return "", fmt.Errorf("release %s is still a draft", tagName)
					}
					if rel.Prerelease {
						return "", pipeline.Warning(fmt.Errorf("release %s is marked prerelease", tagName))
					}
					return rel.URL, nil
				},
			},
			{
				Name: "ci checks on tag",
				Run: func(ctx context.Context) (string, error) {
					if !ghx.Installed() {
						return "", pipeline.Warning(fmt.Errorf("gh not installed, skipping"))
					}
					gh, err := ghx.New(ws.root)
					if err != nil {
						return "", pipeline.Warning(err)
					}
					runs, err := gh.Checks(ctx, tagName)
					if err != nil {
						return "", pipeline.Warning(fmt.Errorf("could not fetch checks: %w", err))
					}
					if len(runs) == 0 {
						return "no workflow runs for " + tagName, nil
					}
					if failed := ghx.FailedChecks(runs); len(failed) > 0 {
						names := make([]string, len(failed))
						for i, run := range failed {
							names[i] = run.Name
						}
						return "", fmt.Errorf("%d failing check(s): %s", len(failed), strings.Join(names, ", "))
					}
					return fmt.Sprintf("%d check(s) green", len(runs)), nil
				},
			},
		}

		if stress > 0 {
			steps = append(steps, pipeline.Step{
				Name: fmt.Sprintf("registry stress (%d concurrent fetches)", stress),
				Run: func(ctx context.Context) (string, error) {
					return stressRegistry(ctx, ws, pkg, version, stress)
				},
			})
		}

		runner := pipeline.NewRunner(pipeline.Options{
			ContinueOnError: true,
			Observer:        printStepResult,
		})
		rep, err := runner.Run(cmd.Context(), "verify "+version, steps)
		if werr := writeReport(ws, rep); werr != nil {
			ws.logger.Warn("could not write report", "error", werr)
		}
		if err != nil {
			return err
		}

		if rep.Failed() {
			recordEvent(cmd.Context(), ws, "verify", pkg, version, "failed", "verification failed")
			return fmt.Errorf("verification failed")
		}
		recordEvent(cmd.Context(), ws, "verify", pkg, version, "ok", "release verified")
		fmt.Printf("\n%s %s@%s verified\n", ui.RenderPass("✓"), pkg, version)
		return nil
	},
}

// stressRegistry fans out concurrent packument fetches and requires
// every response to contain the released version.
func stressRegistry(ctx context.Context, ws *workspace, pkg, version string, n int) (string, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	registry := ws.registry()
	for i := 0; i < n; i++ {
		g.Go(func() error {
			exists, err := registry.VersionExists(ctx, pkg, version)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("a fetch did not see %s", version)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d/%d fetches saw %s", n, n, version), nil
}

func init() {
	verifyCmd.Flags().String("version", "", "Version to verify (defaults to package.json)")
	verifyCmd.Flags().Int("stress", 0, "Number of concurrent registry fetches")
	verifyCmd.Flags().Duration("timeout", 5*time.Minute, "How long to wait for the version to appear")
	rootCmd.AddCommand(verifyCmd)
}

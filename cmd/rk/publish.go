package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"relkit/internal/npm"
	"relkit/internal/pipeline"
	"relkit/internal/report"
	"relkit/internal/ui"
)

var publishCmd = &cobra.Command{
	Use:     "publish",
	GroupID: "workflow",
	Short:   "Publish the package to the npm registry",
	Long: `Publish the current version with safety gates.

Before publishing, the command verifies that the working tree is
clean, the version is not already on the registry, npm authentication
works, the dependency audit passes, and the tarball contents look
sane (pack dry run). A JSON/Markdown report is written under
.relkit/reports.

Examples:
  rk publish
  rk publish --dry-run
  rk publish --tag next`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		distTag, _ := cmd.Flags().GetString("tag")
		if distTag == "" {
			distTag = ws.cfg.Registry.DistTag
		}

		pkg, err := ws.packageName()
		if err != nil {
			return err
		}
		version, err := ws.pkg.Version()
		if err != nil {
			return err
		}
		if ws.pkg.Private() {
			return fmt.Errorf("package %s is marked private", pkg)
		}

		cli := ws.npmCLI()
		registry := ws.registry()

		steps := publishSteps(ws, cli, registry, pkg, version.String(), distTag)
		runner := pipeline.NewRunner(pipeline.Options{
			DryRun: dryRun,
			Observer: func(res pipeline.Result) {
				printStepResult(res)
			},
		})
		rep, err := runner.Run(cmd.Context(), "publish "+version.String(), steps)
		if werr := writeReport(ws, rep); werr != nil {
			ws.logger.Warn("could not write report", "error", werr)
		}
		if err != nil {
			return err
		}
		if rep.Failed() {
			return fmt.Errorf("publish aborted, see report")
		}
		if !dryRun {
			recordEvent(cmd.Context(), ws, "publish", pkg, version.String(), "ok",
				fmt.Sprintf("published with dist-tag %s", distTag))
			fmt.Printf("\n%s published %s@%s (%s)\n", ui.RenderPass("✓"), pkg, version, distTag)
		}
		return nil
	},
}

func publishSteps(ws *workspace, cli *npm.CLI, registry *npm.Registry, pkg, version, distTag string) []pipeline.Step {
	return []pipeline.Step{
		{
			Name: "working tree clean",
			Run: func(ctx context.Context) (string, error) {
				clean, err := ws.repo.IsClean(ctx)
				if err != nil {
					return "", err
				}
				if !clean {
					return "", fmt.Errorf("working tree has uncommitted changes")
				}
				return "clean", nil
			},
		},
		{
			Name: "version not already published",
			Run: func(ctx context.Context) (string, error) {
				exists, err := registry.VersionExists(ctx, pkg, version)
				if err != nil {
					return "", pipeline.Warning(fmt.Errorf("registry unreachable: %w", err))
				}
				if exists {
					return "", fmt.Errorf("%s@%s already exists on the registry", pkg, version)
				}
				return version + " is new", nil
			},
		},
		{
			Name: "npm authentication",
			Run: func(ctx context.Context) (string, error) {
				user, err := cli.WhoAmI(ctx)
				if err != nil {
					return "", err
				}
				return "authenticated as " + user, nil
			},
		},
		{
			Name: "dependency audit",
			Run: func(ctx context.Context) (string, error) {
				summary, err := cli.Audit(ctx)
				if err != nil {
					return "", pipeline.Warning(fmt.Errorf("audit did not complete: %w", err))
				}
				if summary.Blocking("high") {
					return "", fmt.Errorf("audit found %d high and %d critical advisories",
						summary.High, summary.Critical)
				}
				if summary.Total > 0 {
					return "", pipeline.Warning(fmt.Errorf("%d low/moderate advisories", summary.Total))
				}
				return "no advisories", nil
			},
		},
		{
			Name: "pack dry run",
			Run: func(ctx context.Context) (string, error) {
				files, err := cli.Pack(ctx)
				if err != nil {
					return "", err
				}
				if len(files) == 0 {
					return "", fmt.Errorf("tarball would contain no files")
				}
				return fmt.Sprintf("%d file(s) in tarball", len(files)), nil
			},
		},
		{
			Name:    "npm publish",
			Mutates: true,
			Run: func(ctx context.Context) (string, error) {
				err := cli.Publish(ctx, npm.PublishOptions{
					Tag:        distTag,
					Access:     ws.cfg.Registry.Access,
					Provenance: ws.cfg.Registry.Provenance,
				})
				if err != nil {
					return "", err
				}
				return "published with dist-tag " + distTag, nil
			},
		},
		{
			Name:    "registry visibility",
			Mutates: true,
			Run: func(ctx context.Context) (string, error) {
				waitCtx, cancel := context.WithTimeout(ctx, visibilityWait)
				defer cancel()
				waited, err := registry.WaitForVersion(waitCtx, pkg, version, 5*time.Second)
				if err != nil {
					return "", pipeline.Warning(fmt.Errorf("not yet visible: %w", err))
				}
				return fmt.Sprintf("visible after %s", waited.Round(time.Second)), nil
			},
		},
	}
}

// visibilityWait bounds the post-publish poll for the version to show
// up on the registry. Replication is usually seconds; anything past
// this is worth a human look, not more waiting.
const visibilityWait = 5 * time.Minute

func printStepResult(res pipeline.Result) {
	switch res.Status {
	case pipeline.StatusPass:
		fmt.Printf("%s %s", ui.RenderPass("✓"), res.Step)
	case pipeline.StatusWarn:
		fmt.Printf("%s %s", ui.RenderWarn("⚠"), res.Step)
	case pipeline.StatusFail:
		fmt.Printf("%s %s", ui.RenderFail("✗"), res.Step)
	case pipeline.StatusSkipped:
		fmt.Printf("%s %s", ui.RenderDim("-"), res.Step)
	}
	if res.Message != "" {
		fmt.Printf(": %s", res.Message)
	}
	fmt.Println()
}

// writeReport persists the run report. Dry runs must leave the tree
// untouched, so they skip the write.
func writeReport(ws *workspace, rep *pipeline.RunReport) error {
	if rep.DryRun {
		return nil
	}
	_, mdPath, err := report.Write(rep, filepath.Join(ws.root, report.Dir))
	if err != nil {
		return err
	}
	fmt.Printf("%s report: %s\n", ui.RenderDim("·"), mdPath)
	return nil
}

func init() {
	publishCmd.Flags().Bool("dry-run", false, "Run the gates without publishing")
	publishCmd.Flags().String("tag", "", "Dist-tag to publish under (default from config)")
	rootCmd.AddCommand(publishCmd)
}

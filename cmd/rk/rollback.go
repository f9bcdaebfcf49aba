package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"relkit/internal/ghx"
	"relkit/internal/notify"
	"relkit/internal/rollback"
	"relkit/internal/ui"
)

var rollbackCmd = &cobra.Command{
	Use:     "rollback",
	GroupID: "safety",
	Short:   "Roll a published release back to a previous version",
	Long: `Roll back a bad release: deprecate it on npm and move the latest
dist-tag back, remove the git tag, demote the GitHub release to
prerelease, and rewrite version strings in the docs.

The flow is plan -> backup -> confirm -> execute -> verify. Scopes
are independent; a failure in one is logged and the rest still run.
package.json is restored to exactly the target version.

Examples:
  rk rollback                          # to the previous release
  rk rollback --to 2.0.3 --reason "broken postinstall"
  rk rollback --scope npm,git --yes
  rk rollback --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		target, _ := cmd.Flags().GetString("to")
		reason, _ := cmd.Flags().GetString("reason")
		scopeArg, _ := cmd.Flags().GetString("scope")
		yes, _ := cmd.Flags().GetBool("yes")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		scopes, err := rollback.ParseScopes(scopeArg)
		if err != nil {
			return err
		}

		pkg, err := ws.packageName()
		if err != nil {
			return err
		}
		current, err := ws.pkg.Version()
		if err != nil {
			return err
		}

		var gh rollback.GitHubClient
		if ghx.Installed() {
			if client, err := ghx.New(ws.root); err == nil {
				gh = client
			}
		}
		orch := &rollback.Orchestrator{
			Root:      ws.root,
			TagPrefix: ws.cfg.Git.TagPrefix,
			Remote:    ws.cfg.Git.Remote,
			NPM:       ws.npmCLI(),
			Registry:  ws.registry(),
			Git:       ws.repo,
			GitHub:    gh,
			Logger:    ws.logger,
		}

		// The previous-version search reads local tags; sync them from
		// the remote first so a fresh clone plans correctly. Dry runs
		// must not touch refs, so they plan from what is already here.
		if !dryRun && ws.repo.HasRemote(cmd.Context()) {
			if err := ws.repo.Fetch(cmd.Context(), ws.cfg.Git.Remote); err != nil {
				ws.logger.Warn("could not fetch tags from remote", "error", err)
			}
		}

		plan, err := orch.BuildPlan(cmd.Context(), pkg, current.String(), target, reason, scopes)
		if err != nil {
			return err
		}

		fmt.Println(ui.RenderHeading("Rollback plan"))
		fmt.Println(plan.Describe())
		fmt.Println()

		if dryRun {
			rep, err := orch.Execute(cmd.Context(), plan, true)
			if err != nil {
				return err
			}
			for _, res := range rep.Results {
				printStepResult(res)
			}
			fmt.Printf("\n%s dry run complete, nothing was changed\n", ui.RenderAccent("→"))
			return nil
		}

		if !yes {
			var confirmed bool
			prompt := huh.NewConfirm().
				Title(fmt.Sprintf("Roll back %s %s -> %s?", pkg, plan.FromVersion, plan.ToVersion)).
				Description("This mutates the npm registry, git tags, and the GitHub release.").
				Value(&confirmed)
			if err := prompt.Run(); err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("aborted")
				return nil
			}
		}

		head, err := ws.repo.Head(cmd.Context())
		if err != nil {
			return err
		}
		snap, err := orch.Backup(plan, head)
		if err != nil {
			return fmt.Errorf("backup before rollback: %w", err)
		}
		fmt.Printf("%s backup: %s\n\n", ui.RenderDim("·"), snap.Path)

		rep, err := orch.Execute(cmd.Context(), plan, false)
		if err != nil {
			return err
		}
		for _, res := range rep.Results {
			printStepResult(res)
		}
		if werr := writeReport(ws, rep); werr != nil {
			ws.logger.Warn("could not write report", "error", werr)
		}

		status := "ok"
		if rep.Failed() {
			status = "failed"
		}
		recordEvent(cmd.Context(), ws, "rollback", pkg, plan.FromVersion, status,
			fmt.Sprintf("rolled back to %s", plan.ToVersion))

		problems := orch.Verify(cmd.Context(), plan)
		fmt.Println()
		if len(problems) > 0 {
			for _, p := range problems {
				fmt.Printf("%s %v\n", ui.RenderWarn("⚠"), p)
			}
			notifyRelease(cmd.Context(), ws, notify.SeverityWarning,
				fmt.Sprintf("%s rollback incomplete", pkg),
				fmt.Sprintf("%d verification problem(s) after rolling back %s.", len(problems), plan.FromVersion))
			return fmt.Errorf("rollback finished with %d verification problem(s)", len(problems))
		}

		notifyRelease(cmd.Context(), ws, notify.SeverityWarning,
			fmt.Sprintf("%s rolled back", pkg),
			fmt.Sprintf("%s -> %s. Reason: %s", plan.FromVersion, plan.ToVersion, reason))
		fmt.Printf("%s rolled back to %s\n", ui.RenderPass("✓"), plan.ToVersion)
		return nil
	},
}

func init() {
	rollbackCmd.Flags().String("to", "", "Target version (defaults to the previous release)")
	rollbackCmd.Flags().String("reason", "", "Reason recorded in the deprecation message")
	rollbackCmd.Flags().String("scope", "all", "Scopes to roll back: npm,git,github,docs or all")
	rollbackCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
	rollbackCmd.Flags().Bool("dry-run", false, "Show the plan without mutating anything")
	rootCmd.AddCommand(rollbackCmd)
}

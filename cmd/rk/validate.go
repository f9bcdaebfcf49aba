package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"relkit/internal/changelog"
	"relkit/internal/config"
	"relkit/internal/execx"
	"relkit/internal/pipeline"
)

var validateCmd = &cobra.Command{
	Use:     "validate",
	GroupID: "safety",
	Short:   "Run the pre-release validation checklist",
	Long: `Run the pre-release checklist: clean tree, changelog structure,
npm authentication, dependency audit, plus any project commands.

Checks come from .relkit.checks.toml when present, otherwise a
conservative default set. Checks marked severity = "warn" report
problems without blocking the release. A JSON/Markdown report is
written under .relkit/reports.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		cl, err := config.LoadChecklist(filepath.Join(ws.root, config.ChecklistFileName))
		if err != nil {
			return err
		}

		steps := make([]pipeline.Step, 0, len(cl.Checks))
		for _, check := range cl.Checks {
			steps = append(steps, checkStep(ws, check))
		}

		runner := pipeline.NewRunner(pipeline.Options{
			ContinueOnError: true,
			Observer:        printStepResult,
		})
		rep, err := runner.Run(cmd.Context(), "pre-release validation", steps)
		if werr := writeReport(ws, rep); werr != nil {
			ws.logger.Warn("could not write report", "error", werr)
		}
		if err != nil {
			return err
		}

		passed, failed, warned, _ := rep.Counts()
		fmt.Printf("\n%d passed, %d failed, %d warning(s)\n", passed, failed, warned)
		if rep.Failed() {
			return fmt.Errorf("validation failed")
		}
		return nil
	},
}

// checkStep translates a checklist entry into a pipeline step. Checks
// never mutate anything.
func checkStep(ws *workspace, check config.Check) pipeline.Step {
	run := func(ctx context.Context) (string, error) {
		switch check.Kind {
		case config.CheckCleanTree:
			clean, err := ws.repo.IsClean(ctx)
			if err != nil {
				return "", err
			}
			if !clean {
				return "", fmt.Errorf("working tree has uncommitted changes")
			}
			return "clean", nil

		case config.CheckChangelog:
			data, err := os.ReadFile(filepath.Join(ws.root, ws.cfg.Changelog.Path))
			if err != nil {
				return "", err
			}
			doc, err := changelog.Parse(data)
			if err != nil {
				return "", err
			}
			if errs := changelog.Validate(doc); len(errs) > 0 {
				return "", errs[0]
			}
			return "valid", nil

		case config.CheckAuth:
			user, err := ws.npmCLI().WhoAmI(ctx)
			if err != nil {
				return "", err
			}
			return "authenticated as " + user, nil

		case config.CheckAudit:
			summary, err := ws.npmCLI().Audit(ctx)
			if err != nil {
				return "", err
			}
			if summary.Blocking("high") {
				return "", fmt.Errorf("%d high, %d critical advisories", summary.High, summary.Critical)
			}
			return fmt.Sprintf("%d advisories, none blocking", summary.Total), nil

		case config.CheckFileExists:
			if _, err := os.Stat(filepath.Join(ws.root, check.Path)); err != nil {
				return "", err
			}
			return check.Path + " present", nil

		case config.CheckCommand:
			fields := strings.Fields(check.Command)
			if len(fields) == 0 {
				return "", fmt.Errorf("check %q has no command", check.Name)
			}
			if _, err := execx.RunContext(ctx, 10*time.Minute, ws.root, fields[0], fields[1:]...); err != nil {
				return "", err
			}
			return "exit 0", nil

		default:
			return "", fmt.Errorf("unknown check kind %q", check.Kind)
		}
	}

	return pipeline.Step{
		Name: check.Name,
		Run: func(ctx context.Context) (string, error) {
			msg, err := run(ctx)
			if err != nil && !check.Blocking() {
				return "", pipeline.Warning(err)
			}
			return msg, err
		},
	}
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

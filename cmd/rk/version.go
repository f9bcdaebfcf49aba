package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/cobra"

	"relkit/internal/semver"
	"relkit/internal/ui"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	GroupID: "workflow",
	Short:   "Show, bump, set, or validate the package version",
	Long: `Manage the semantic version in package.json.

The version is the single source of truth; bump and set propagate it
into any additional files listed with --propagate (e.g. src/version.ts).

Examples:
  rk version show
  rk version bump patch
  rk version bump minor --dry-run
  rk version set 2.0.0-rc.1
  rk version validate 1.2.3`,
}

var versionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current package version",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		v, err := ws.pkg.Version()
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

var versionBumpCmd = &cobra.Command{
	Use:   "bump <major|minor|patch|prerelease>",
	Short: "Bump the package version",
	Args:  cobra.ExactArgs(1),
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

		current, err := ws.pkg.Version()
		if err != nil {
			return err
		}
		next, err := current.Bumped(bump)
		if err != nil {
			return err
		}
		return applyVersion(cmd, ws, current, next)
	},
}

var versionSetCmd = &cobra.Command{
	Use:   "set <version>",
	Short: "Set the package version explicitly",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		next, err := semver.Parse(args[0])
		if err != nil {
			return err
		}

		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		current, err := ws.pkg.Version()
		if err != nil {
			return err
		}
		return applyVersion(cmd, ws, current, next)
	},
}

var versionValidateCmd = &cobra.Command{
	Use:   "validate <version>",
	Short: "Check whether a string is a valid semantic version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := semver.Parse(args[0]); err != nil {
			return fmt.Errorf("%q: %w", args[0], err)
		}
		fmt.Printf("%s %s is a valid semantic version\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

func applyVersion(cmd *cobra.Command, ws *workspace, current, next semver.Version) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	propagate, _ := cmd.Flags().GetStringSlice("propagate")

	if dryRun {
		fmt.Printf("%s would bump %s -> %s (dry run)\n", ui.RenderAccent("→"), current, next)
		for _, rel := range propagate {
			fmt.Printf("   would update %s\n", rel)
		}
		return nil
	}

	if err := ws.pkg.SetVersion(next); err != nil {
		return err
	}
	if err := ws.pkg.Save(); err != nil {
		return err
	}
	ws.logger.Info("version updated", "from", current.String(), "to", next.String())

	for _, rel := range propagate {
		path := filepath.Join(ws.root, rel)
		if err := rewriteVersionString(path, current.String(), next.String()); err != nil {
			return fmt.Errorf("propagate to %s: %w", rel, err)
		}
		fmt.Printf("   updated %s\n", rel)
	}

	fmt.Printf("%s %s -> %s\n", ui.RenderPass("✓"), current, next)
	return nil
}

// rewriteVersionString replaces exact occurrences of the old version.
func rewriteVersionString(path, from, to string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(from) + `\b`)
	if err != nil {
		return err
	}
	if !pattern.Match(data) {
		return fmt.Errorf("no occurrence of %s found", from)
	}
	return os.WriteFile(path, pattern.ReplaceAll(data, []byte(to)), 0644)
}

func init() {
	for _, c := range []*cobra.Command{versionBumpCmd, versionSetCmd} {
		c.Flags().Bool("dry-run", false, "Show what would change without writing")
		c.Flags().StringSlice("propagate", nil, "Additional files to rewrite the version string in")
	}
	versionCmd.AddCommand(versionShowCmd, versionBumpCmd, versionSetCmd, versionValidateCmd)
	rootCmd.AddCommand(versionCmd)
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"relkit/internal/config"
	"relkit/internal/gitx"
	"relkit/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "workflow",
	Short:   "Write a starter .relkit.yaml at the repo root",
	Long: `Write the default configuration to .relkit.yaml so it can be
edited and committed. With --checks, also write the default
pre-release checklist to .relkit.checks.toml.

Existing files are left alone unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := gitx.Open(".")
		if err != nil {
			return err
		}
		root := repo.Root()

		force, _ := cmd.Flags().GetBool("force")
		withChecks, _ := cmd.Flags().GetBool("checks")

		cfgPath := filepath.Join(root, config.DefaultFileName)
		if _, err := os.Stat(cfgPath); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", config.DefaultFileName)
		}
		if err := config.Default().Save(root); err != nil {
			return err
		}
		fmt.Printf("%s wrote %s\n", ui.RenderPass("✓"), config.DefaultFileName)

		if withChecks {
			checksPath := filepath.Join(root, config.ChecklistFileName)
			if _, err := os.Stat(checksPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", config.ChecklistFileName)
			}
			if err := config.DefaultChecklist().Save(checksPath); err != nil {
				return err
			}
			fmt.Printf("%s wrote %s\n", ui.RenderPass("✓"), config.ChecklistFileName)
		}
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite existing files")
	initCmd.Flags().Bool("checks", false, "Also write the default checklist")
	rootCmd.AddCommand(initCmd)
}

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"relkit/internal/backup"
	"relkit/internal/ui"
)

var backupCmd = &cobra.Command{
	Use:     "backup",
	GroupID: "safety",
	Short:   "Snapshot and restore release-critical files",
	Long: `Manage the snapshots release and rollback take before mutating
anything. Snapshots live under .relkit/backups and hold package.json,
the changelog, and the commit HEAD pointed at.

Examples:
  rk backup create --reason "before manual surgery"
  rk backup list
  rk backup restore                # from the latest snapshot
  rk backup restore --ref v2.0.3   # from a git ref instead`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot package.json and the changelog now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		reason, _ := cmd.Flags().GetString("reason")
		version := ""
		if v, err := ws.pkg.Version(); err == nil {
			version = v.String()
		}
		head, err := ws.repo.Head(cmd.Context())
		if err != nil {
			return err
		}

		snap, err := backup.Create(backup.Options{
			Root:    ws.root,
			Files:   []string{"package.json", ws.cfg.Changelog.Path},
			Reason:  reason,
			Version: version,
			GitRef:  head,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s snapshot: %s (%d file(s))\n", ui.RenderPass("✓"), snap.Path, len(snap.Manifest.Files))
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		snaps, err := backup.List(filepath.Join(ws.root, backup.Dir))
		if err != nil {
			return err
		}
		for _, snap := range snaps {
			m := snap.Manifest
			line := fmt.Sprintf("%s  %-10s %s", m.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				m.Version, strings.Join(m.Files, ", "))
			if m.Reason != "" {
				line += "  (" + m.Reason + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the snapshot files",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		ref, _ := cmd.Flags().GetString("ref")
		files := []string{"package.json", ws.cfg.Changelog.Path}

		if ref != "" {
			if err := ws.repo.Checkout(cmd.Context(), ref, files...); err != nil {
				return err
			}
			fmt.Printf("%s restored %s from %s\n", ui.RenderPass("✓"), strings.Join(files, ", "), ref)
			return nil
		}

		snap, err := backup.Latest(filepath.Join(ws.root, backup.Dir))
		if err != nil {
			return err
		}
		if err := snap.Restore(ws.root); err != nil {
			return err
		}
		fmt.Printf("%s restored %s from %s\n", ui.RenderPass("✓"),
			strings.Join(snap.Manifest.Files, ", "), snap.Manifest.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		return nil
	},
}

func init() {
	backupCreateCmd.Flags().String("reason", "", "What this snapshot guards against")
	backupRestoreCmd.Flags().String("ref", "", "Restore from a git ref instead of a snapshot")
	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}

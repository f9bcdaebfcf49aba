package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"relkit/internal/gpgx"
	"relkit/internal/ui"
)

var gpgCmd = &cobra.Command{
	Use:     "gpg",
	GroupID: "safety",
	Short:   "Configure and inspect GPG signing for release tags",
}

var gpgSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure git to sign commits and tags",
	Long: `Pick a GPG secret key and write the git signing configuration
(user.signingkey, commit.gpgsign, tag.gpgsign) for this repository.

With --key the key is matched by ID suffix; otherwise the first
non-expired secret key is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		keyID, _ := cmd.Flags().GetString("key")
		if keyID == "" {
			keyID = ws.cfg.Signing.KeyID
		}

		keys, err := gpgx.SecretKeys(cmd.Context())
		if err != nil {
			return err
		}
		key, err := gpgx.PickKey(keys, keyID)
		if err != nil {
			return err
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if dryRun {
			fmt.Printf("%s would configure signing with key %s (%s) (dry run)\n",
				ui.RenderAccent("→"), key.ID, key.UserID)
			return nil
		}

		if err := gpgx.ConfigureGit(cmd.Context(), ws.repo, key); err != nil {
			return err
		}
		ws.logger.Info("gpg signing configured", "key", key.ID)
		fmt.Printf("%s signing configured with key %s (%s)\n", ui.RenderPass("✓"), key.ID, key.UserID)
		return nil
	},
}

var gpgStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show GPG keys and the repository signing configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		version, err := gpgx.Version(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("gpg: %s\n\n", version)

		keys, err := gpgx.SecretKeys(cmd.Context())
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Printf("%s no secret keys found\n", ui.RenderWarn("⚠"))
		}
		for _, k := range keys {
			marker := ui.RenderPass("✓")
			note := ""
			if k.Expired() {
				marker = ui.RenderFail("✗")
				note = " (expired)"
			} else if !k.ExpiresAt.IsZero() {
				note = fmt.Sprintf(" (expires %s)", k.ExpiresAt.Format(time.DateOnly))
			}
			fmt.Printf("%s %s  %s%s\n", marker, k.ID, k.UserID, note)
		}

		fmt.Println()
		if err := gpgx.SigningReady(cmd.Context(), ws.repo); err != nil {
			fmt.Printf("%s signing not ready: %v\n", ui.RenderWarn("⚠"), err)
			fmt.Println("   run 'rk gpg setup' to configure")
			return nil
		}
		fmt.Printf("%s repository is configured for signed tags\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	gpgSetupCmd.Flags().String("key", "", "Key ID suffix to use")
	gpgSetupCmd.Flags().Bool("dry-run", false, "Show the key that would be configured")
	gpgCmd.AddCommand(gpgSetupCmd, gpgStatusCmd)
	rootCmd.AddCommand(gpgCmd)
}

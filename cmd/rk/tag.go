package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"relkit/internal/ghx"
	"relkit/internal/gitx"
	"relkit/internal/ui"
)

var tagCmd = &cobra.Command{
	Use:     "tag",
	GroupID: "workflow",
	Short:   "Create, verify, push, and delete release tags",
	Long: `Manage GPG-signed release tags.

create signs the tag with the configured key and falls back to an
annotated tag when signing is unavailable (unless signing is required
in .relkit.yaml).

Examples:
  rk tag create              # tag the current package.json version
  rk tag create --version 2.1.0
  rk tag verify v2.1.0
  rk tag push v2.1.0
  rk tag delete v2.1.0 --remote`,
}

var tagCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a signed release tag for the current version",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		version, _ := cmd.Flags().GetString("version")
		message, _ := cmd.Flags().GetString("message")
		force, _ := cmd.Flags().GetBool("force")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if version == "" {
			v, err := ws.pkg.Version()
			if err != nil {
				return err
			}
			version = v.String()
		}
		name := ws.cfg.Git.TagPrefix + version
		if message == "" {
			message = "Release " + version
		}

		if dryRun {
			fmt.Printf("%s would create signed tag %s (dry run)\n", ui.RenderAccent("→"), name)
			return nil
		}

		opts := gitx.TagOptions{Name: name, Message: message, Sign: true, Force: force}
		err = ws.repo.CreateTag(cmd.Context(), opts)
		if errors.Is(err, gitx.ErrSigningUnavailable) {
			if ws.cfg.Signing.Required {
				return fmt.Errorf("%w (signing.required is set; run 'rk gpg setup')", err)
			}
			ws.logger.Warn("signing unavailable, creating annotated tag", "tag", name)
			fmt.Printf("%s signing unavailable, falling back to annotated tag\n", ui.RenderWarn("⚠"))
			opts.Sign = false
			err = ws.repo.CreateTag(cmd.Context(), opts)
		}
		if err != nil {
			return err
		}

		ws.logger.Info("tag created", "tag", name, "signed", opts.Sign)
		fmt.Printf("%s created %s\n", ui.RenderPass("✓"), name)
		return nil
	},
}

var tagVerifyCmd = &cobra.Command{
	Use:   "verify <tag>",
	Short: "Verify a tag's GPG signature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		if err := ws.repo.VerifyTag(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s %s has a valid signature\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

var tagPushCmd = &cobra.Command{
	Use:   "push <tag>",
	Short: "Push a tag to the remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if dryRun {
			fmt.Printf("%s would push %s to %s (dry run)\n", ui.RenderAccent("→"), args[0], ws.cfg.Git.Remote)
			return nil
		}
		if err := ws.repo.PushTag(cmd.Context(), ws.cfg.Git.Remote, args[0]); err != nil {
			return err
		}
		fmt.Printf("%s pushed %s to %s\n", ui.RenderPass("✓"), args[0], ws.cfg.Git.Remote)
		return nil
	},
}

var tagDeleteCmd = &cobra.Command{
	Use:   "delete <tag>",
	Short: "Delete a tag locally, and remotely with --remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		remote, _ := cmd.Flags().GetBool("remote")
		release, _ := cmd.Flags().GetBool("release")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if dryRun {
			fmt.Printf("%s would delete %s (remote=%v, release=%v, dry run)\n", ui.RenderAccent("→"), args[0], remote, release)
			return nil
		}

		if err := ws.repo.DeleteTag(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s deleted %s locally\n", ui.RenderPass("✓"), args[0])

		if remote {
			if err := ws.repo.DeleteRemoteTag(cmd.Context(), ws.cfg.Git.Remote, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s deleted %s on %s\n", ui.RenderPass("✓"), args[0], ws.cfg.Git.Remote)
		}

		if release {
			gh, err := ghx.New(ws.root)
			if err != nil {
				return err
			}
			if err := gh.DeleteRelease(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("%s deleted GitHub release %s\n", ui.RenderPass("✓"), args[0])
		}
		return nil
	},
}

func init() {
	tagCreateCmd.Flags().String("version", "", "Version to tag (defaults to package.json)")
	tagCreateCmd.Flags().String("message", "", "Tag message")
	tagCreateCmd.Flags().Bool("force", false, "Replace an existing tag")
	tagCreateCmd.Flags().Bool("dry-run", false, "Show what would happen without tagging")
	tagPushCmd.Flags().Bool("dry-run", false, "Show what would happen without pushing")
	tagDeleteCmd.Flags().Bool("remote", false, "Also delete the tag on the remote")
	tagDeleteCmd.Flags().Bool("release", false, "Also delete the matching GitHub release")
	tagDeleteCmd.Flags().Bool("dry-run", false, "Show what would happen without deleting")
	tagCmd.AddCommand(tagCreateCmd, tagVerifyCmd, tagPushCmd, tagDeleteCmd)
	rootCmd.AddCommand(tagCmd)
}

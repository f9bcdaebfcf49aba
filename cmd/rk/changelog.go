package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"relkit/internal/changelog"
	"relkit/internal/conventional"
	"relkit/internal/ui"
)

var changelogCmd = &cobra.Command{
	Use:     "changelog",
	GroupID: "workflow",
	Short:   "Generate and validate the changelog",
	Long: `Maintain CHANGELOG.md in Keep a Changelog format.

generate reads the conventional commits since the last release tag,
groups them into Added/Changed/Fixed/Removed sections under
[Unreleased], and optionally promotes that section to a versioned
release.

validate checks the document structure; --watch re-validates whenever
the file changes, which is useful while hand-editing entries.

Examples:
  rk changelog generate
  rk changelog generate --release 2.1.0
  rk changelog validate
  rk changelog validate --watch`,
}

var changelogGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Add commits since the last release to the Unreleased section",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		release, _ := cmd.Flags().GetString("release")

		commits, lastTag, err := ws.repo.CommitsSinceLastRelease(cmd.Context())
		if err != nil {
			return err
		}
		if len(commits) == 0 {
			fmt.Printf("%s no commits since %s\n", ui.RenderWarn("⚠"), lastTag.Name)
			return nil
		}

		path := filepath.Join(ws.root, ws.cfg.Changelog.Path)
		doc, err := loadOrSkeleton(path, ws)
		if err != nil {
			return err
		}

		groups := conventional.Grouped(commits)
		doc.AddEntries(groups)

		if release != "" {
			if err := doc.Promote(release, time.Now()); err != nil {
				return err
			}
		}

		rendered := doc.Render()
		if dryRun {
			fmt.Printf("%s would write %s (dry run):\n\n", ui.RenderAccent("→"), ws.cfg.Changelog.Path)
			os.Stdout.Write(rendered)
			return nil
		}
		if err := os.WriteFile(path, rendered, 0644); err != nil {
			return err
		}

		conventionalCount := 0
		for _, c := range commits {
			if c.Conventional() {
				conventionalCount++
			}
		}
		ws.logger.Info("changelog updated",
			"commits", len(commits),
			"conventional", conventionalCount,
			"since", lastTag.Name)
		fmt.Printf("%s %s updated with %d commit(s) since %s\n",
			ui.RenderPass("✓"), ws.cfg.Changelog.Path, len(commits), lastTag.Name)
		if suggested := conventional.SuggestBump(commits); suggested != "" {
			fmt.Printf("   suggested bump: %s\n", suggested)
		}
		return nil
	},
}

var changelogValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the changelog structure",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		path := filepath.Join(ws.root, ws.cfg.Changelog.Path)
		watch, _ := cmd.Flags().GetBool("watch")

		if !watch {
			return validateChangelogFile(path)
		}

		if err := validateChangelogFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("✗"), err)
		}
		return watchChangelog(cmd.Context(), path)
	},
}

func loadOrSkeleton(path string, ws *workspace) (*changelog.Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		name, nerr := ws.packageName()
		if nerr != nil {
			name = "Changelog"
		}
		return changelog.Parse(changelog.Skeleton(name))
	}
	if err != nil {
		return nil, err
	}
	return changelog.Parse(data)
}

func validateChangelogFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc, err := changelog.Parse(data)
	if err != nil {
		return err
	}
	if errs := changelog.Validate(doc); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("✗"), e)
		}
		return fmt.Errorf("%d validation problem(s)", len(errs))
	}
	fmt.Printf("%s %s is valid (%d release(s))\n", ui.RenderPass("✓"), filepath.Base(path), len(doc.Releases))
	return nil
}

// watchChangelog re-validates on every write to the file. Editors
// often replace the file rather than writing in place, so the watch is
// on the parent directory.
func watchChangelog(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	fmt.Printf("%s watching %s (Ctrl+C to stop)\n", ui.RenderAccent("👁"), path)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Editors emit bursts of events per save; debounce them.
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nstopped watching")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(200 * time.Millisecond)
		case <-pending:
			pending = nil
			if err := validateChangelogFile(path); err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("✗"), err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		}
	}
}

func init() {
	changelogGenerateCmd.Flags().Bool("dry-run", false, "Print the result without writing")
	changelogGenerateCmd.Flags().String("release", "", "Promote Unreleased to this version")
	changelogValidateCmd.Flags().Bool("watch", false, "Re-validate on file changes")
	changelogCmd.AddCommand(changelogGenerateCmd, changelogValidateCmd)
	rootCmd.AddCommand(changelogCmd)
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"relkit/internal/ai"
	"relkit/internal/conventional"
	"relkit/internal/ui"
)

var notesCmd = &cobra.Command{
	Use:     "notes",
	GroupID: "observe",
	Short:   "Draft release notes from the commit log",
	Long: `Render release notes for the commits since the last release.

By default the notes are grouped mechanically from the conventional
commit types. With --ai and ANTHROPIC_API_KEY set, the commit log is
summarized into prose instead.

Examples:
  rk notes
  rk notes --ai
  rk notes --ai --out RELEASE_NOTES.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		useAI, _ := cmd.Flags().GetBool("ai")
		out, _ := cmd.Flags().GetString("out")

		pkg, err := ws.packageName()
		if err != nil {
			return err
		}
		version, err := ws.pkg.Version()
		if err != nil {
			return err
		}

		commits, lastTag, err := ws.repo.CommitsSinceLastRelease(cmd.Context())
		if err != nil {
			return err
		}
		if len(commits) == 0 {
			return fmt.Errorf("no commits since %s", lastTag.Name)
		}

		var notes string
		if useAI {
			notes, err = aiNotes(cmd, ws, pkg, version.String(), lastTag.Version, commits)
			if errors.Is(err, ai.ErrNoAPIKey) {
				fmt.Fprintf(os.Stderr, "%s %v, falling back to grouped notes\n", ui.RenderWarn("⚠"), err)
				err = nil
				notes = groupedNotes(commits)
			}
			if err != nil {
				return err
			}
		} else {
			notes = groupedNotes(commits)
		}

		if out != "" {
			if err := os.WriteFile(out, []byte(notes+"\n"), 0644); err != nil {
				return err
			}
			fmt.Printf("%s wrote %s\n", ui.RenderPass("✓"), out)
			return nil
		}
		fmt.Println(notes)
		return nil
	},
}

func aiNotes(cmd *cobra.Command, ws *workspace, pkg, version, previous string, commits []conventional.Commit) (string, error) {
	writer, err := ai.NewWriter(ai.WithModel(ws.cfg.AI.Model))
	if err != nil {
		return "", err
	}

	log := make([]string, 0, len(commits))
	for _, c := range commits {
		log = append(log, c.Raw)
	}
	return writer.Draft(cmd.Context(), ai.NotesInput{
		Package:   pkg,
		Version:   version,
		Previous:  previous,
		CommitLog: log,
	})
}

// groupedNotes renders the mechanical fallback: commits grouped by
// changelog section.
func groupedNotes(commits []conventional.Commit) string {
	groups := conventional.Grouped(commits)

	var b strings.Builder
	for _, section := range conventional.SectionOrder {
		entries, ok := groups[section]
		if !ok || len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", section)
		for _, c := range entries {
			subject := c.Subject
			if c.Breaking {
				subject = "**BREAKING:** " + subject
			}
			if c.Scope != "" {
				subject = c.Scope + ": " + subject
			}
			fmt.Fprintf(&b, "- %s\n", subject)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func init() {
	notesCmd.Flags().Bool("ai", false, "Summarize with the Anthropic API")
	notesCmd.Flags().String("out", "", "Write notes to a file instead of stdout")
	rootCmd.AddCommand(notesCmd)
}

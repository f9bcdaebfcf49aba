package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"relkit/internal/history"
	"relkit/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	GroupID: "observe",
	Short:   "Browse the release event log",
	Long: `Every bump, tag, publish, verification, rollback, and monitoring
verdict is recorded in .relkit/history.db.

Examples:
  rk history list
  rk history list --kind rollback --since "last week"
  rk history show 42`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded release events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		kind, _ := cmd.Flags().GetString("kind")
		version, _ := cmd.Flags().GetString("filter-version")
		since, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")

		q := history.Query{Kind: kind, Version: version, Limit: limit}
		if since != "" {
			t, err := naturalTime(since)
			if err != nil {
				return err
			}
			q.Since = t
		}

		store, err := history.Open(filepath.Join(ws.root, history.DefaultPath))
		if err != nil {
			return err
		}
		defer store.Close()

		events, err := store.List(cmd.Context(), q)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("no events recorded")
			return nil
		}
		for _, ev := range events {
			printEvent(ev, false)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one event in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("event id must be a number: %q", args[0])
		}

		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		store, err := history.Open(filepath.Join(ws.root, history.DefaultPath))
		if err != nil {
			return err
		}
		defer store.Close()

		ev, err := store.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		printEvent(ev, true)
		return nil
	},
}

var historyVersionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List versions with a successful publish on record",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		store, err := history.Open(filepath.Join(ws.root, history.DefaultPath))
		if err != nil {
			return err
		}
		defer store.Close()

		versions, err := store.VersionsReleased(cmd.Context())
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Println("no published versions recorded")
			return nil
		}
		for _, v := range versions {
			fmt.Println(v)
		}
		return nil
	},
}

func printEvent(ev history.Event, full bool) {
	marker := ui.RenderPass("✓")
	switch ev.Status {
	case "failed":
		marker = ui.RenderFail("✗")
	case "warn", "degraded":
		marker = ui.RenderWarn("⚠")
	}
	fmt.Printf("%s #%d  %s  %-9s %s@%s  %s\n",
		marker, ev.ID, ev.CreatedAt.Local().Format("2006-01-02 15:04"),
		ev.Kind, ev.Package, ev.Version, ev.Summary)
	if full {
		for k, v := range ev.Detail {
			fmt.Printf("   %s: %s\n", k, v)
		}
	}
}

// recordEvent appends to the history store; failures are logged and
// never interrupt the command that triggered them.
func recordEvent(ctx context.Context, ws *workspace, kind, pkg, version, status, summary string) {
	store, err := history.Open(filepath.Join(ws.root, history.DefaultPath))
	if err != nil {
		ws.logger.Warn("could not open history store", "error", err)
		return
	}
	defer store.Close()

	_, err = store.Record(ctx, history.Event{
		Kind:    kind,
		Package: pkg,
		Version: version,
		Status:  status,
		Summary: summary,
	})
	if err != nil {
		ws.logger.Warn("could not record history event", "error", err)
	}
}

func init() {
	historyListCmd.Flags().String("kind", "", "Filter by event kind (bump, tag, publish, verify, rollback, monitor)")
	historyListCmd.Flags().String("filter-version", "", "Filter by version")
	historyListCmd.Flags().String("since", "", `Only events after this time, e.g. "last week"`)
	historyListCmd.Flags().Int("limit", 50, "Maximum events to show")
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyVersionsCmd)
	rootCmd.AddCommand(historyCmd)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"relkit/internal/ghx"
	"relkit/internal/monitor"
	"relkit/internal/monitor/dashboard"
	"relkit/internal/notify"
	"relkit/internal/ui"
)

var monitorCmd = &cobra.Command{
	Use:     "monitor",
	GroupID: "observe",
	Short:   "Watch a released version for regressions",
	Long: `Poll the npm registry and GitHub at an interval, grade each
snapshot against the configured thresholds, and send Discord/Slack
webhooks when the health changes.

--until accepts natural language ("in 2 hours", "tomorrow at 9am").
--dashboard serves the live snapshots over HTTP and WebSocket.

Examples:
  rk monitor --until "in 2 hours"
  rk monitor --interval 60 --dashboard
  rk monitor --version 2.1.0 --once`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer ws.Close()

		version, _ := cmd.Flags().GetString("version")
		until, _ := cmd.Flags().GetString("until")
		intervalSec, _ := cmd.Flags().GetInt("interval")
		once, _ := cmd.Flags().GetBool("once")
		useDashboard, _ := cmd.Flags().GetBool("dashboard")

		if version == "" {
			v, err := ws.pkg.Version()
			if err != nil {
				return err
			}
			version = v.String()
		}
		if intervalSec == 0 {
			intervalSec = ws.cfg.Monitor.IntervalSeconds
		}

		pkg, err := ws.packageName()
		if err != nil {
			return err
		}

		var gh *ghx.Client
		if ghx.Installed() {
			gh, _ = ghx.New(ws.root)
		}
		mon := monitor.New(monitor.Options{
			Package:    pkg,
			Version:    version,
			Registry:   ws.registry(),
			GitHub:     gh,
			IssueLabel: ws.cfg.Monitor.IssueLabel,
			Thresholds: monitor.Thresholds{
				MaxOpenIssues:    ws.cfg.Monitor.MaxOpenIssues,
				MinDownloads:     ws.cfg.Monitor.MinDownloads,
				RequireLatestTag: ws.cfg.Monitor.RequireLatestTag,
			},
			Notifier: notify.New(ws.cfg.Webhooks.Discord, ws.cfg.Webhooks.Slack),
			Logger:   ws.logger,
		})

		if once {
			snap := mon.Observe(cmd.Context())
			printSnapshot(snap)
			if snap.Health == monitor.HealthFailing {
				return fmt.Errorf("release is failing")
			}
			return nil
		}

		ctx := cmd.Context()
		if until != "" {
			deadline, err := parseNaturalTime(until)
			if err != nil {
				return err
			}
			var cancel context.CancelFunc
			ctx, cancel = context.WithDeadline(ctx, deadline)
			defer cancel()
			fmt.Printf("%s monitoring %s@%s until %s\n",
				ui.RenderAccent("→"), pkg, version, deadline.Format(time.RFC1123))
		} else {
			fmt.Printf("%s monitoring %s@%s (Ctrl+C to stop)\n", ui.RenderAccent("→"), pkg, version)
		}

		ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		onSnapshot := func(snap monitor.Snapshot) { printSnapshot(snap) }
		if useDashboard {
			srv := dashboard.NewServer(ws.cfg.Monitor.DashboardPort, ws.logger)
			if err := srv.Start(); err != nil {
				return err
			}
			defer srv.Stop()
			fmt.Printf("%s dashboard: http://%s (ws://%s/ws)\n", ui.RenderAccent("·"), srv.Addr(), srv.Addr())
			onSnapshot = func(snap monitor.Snapshot) {
				printSnapshot(snap)
				srv.Publish(snap)
			}
		}

		last := mon.Run(ctx, time.Duration(intervalSec)*time.Second, onSnapshot)
		recordEvent(context.Background(), ws, "monitor", pkg, version, string(last.Health),
			fmt.Sprintf("monitoring ended with health %s", last.Health))
		if last.Health == monitor.HealthFailing {
			return fmt.Errorf("release is failing; consider 'rk rollback'")
		}
		return nil
	},
}

// naturalTime resolves phrases like "in 2 hours" or "last week".
func naturalTime(s string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(s, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("could not understand %q", s)
	}
	return result.Time, nil
}

// parseNaturalTime resolves a phrase that must lie in the future.
func parseNaturalTime(s string) (time.Time, error) {
	t, err := naturalTime(s)
	if err != nil {
		return time.Time{}, err
	}
	if !t.After(time.Now()) {
		return time.Time{}, fmt.Errorf("%q is in the past", s)
	}
	return t, nil
}

func printSnapshot(snap monitor.Snapshot) {
	marker := ui.RenderPass("✓")
	switch snap.Health {
	case monitor.HealthDegraded:
		marker = ui.RenderWarn("⚠")
	case monitor.HealthFailing:
		marker = ui.RenderFail("✗")
	}
	fmt.Printf("%s [%s] health=%s registry=%v latest=%s downloads=%d issues=%d\n",
		marker, snap.Taken.Format("15:04:05"), snap.Health, snap.RegistryOK,
		snap.LatestDistTag, snap.Downloads, snap.OpenIssues)
	for _, p := range snap.Problems {
		fmt.Printf("   %s\n", ui.RenderDim(p))
	}
}

func init() {
	monitorCmd.Flags().String("version", "", "Version to monitor (defaults to package.json)")
	monitorCmd.Flags().String("until", "", `Stop time in natural language, e.g. "in 2 hours"`)
	monitorCmd.Flags().Int("interval", 0, "Poll interval in seconds (default from config)")
	monitorCmd.Flags().Bool("once", false, "Take a single snapshot and exit")
	monitorCmd.Flags().Bool("dashboard", false, "Serve live snapshots over HTTP/WebSocket")
	rootCmd.AddCommand(monitorCmd)
}

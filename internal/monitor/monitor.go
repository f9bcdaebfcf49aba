// Package monitor implements post-release health monitoring: it polls
// the npm registry and GitHub on an interval, grades each snapshot
// against static thresholds, and reports state changes.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"relkit/internal/ghx"
	"relkit/internal/notify"
	"relkit/internal/npm"
)

// Health grades a snapshot.
type Health string

const (
	HealthOK       Health = "ok"
	HealthDegraded Health = "degraded"
	HealthFailing  Health = "failing"
)

// Thresholds are the static limits a snapshot is graded against.
type Thresholds struct {
	// MaxOpenIssues is the number of open release-labeled issues
	// tolerated before the release is considered degraded.
	MaxOpenIssues int `mapstructure:"max_open_issues" yaml:"max_open_issues"`

	// MinDownloads marks the release degraded when the last-day
	// download count sits below it (a proxy for broken installs).
	// Zero disables the check.
	MinDownloads int `mapstructure:"min_downloads" yaml:"min_downloads"`

	// RequireLatestTag fails the release when the registry's latest
	// dist-tag no longer points at the monitored version.
	RequireLatestTag bool `mapstructure:"require_latest_tag" yaml:"require_latest_tag"`
}

// DefaultThresholds mirror what the release runbook used.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxOpenIssues:    3,
		RequireLatestTag: true,
	}
}

// Snapshot is one observation of release health.
type Snapshot struct {
	Taken          time.Time `json:"taken"`
	Version        string    `json:"version"`
	RegistryOK     bool      `json:"registry_ok"`
	LatestDistTag  string    `json:"latest_dist_tag"`
	Downloads      int       `json:"downloads"`
	OpenIssues     int       `json:"open_issues"`
	Health         Health    `json:"health"`
	Problems       []string  `json:"problems,omitempty"`
	ObservationErr string    `json:"observation_error,omitempty"`
}

// Monitor polls and grades.
type Monitor struct {
	pkg        string
	version    string
	registry   *npm.Registry
	gh         *ghx.Client // nil when gh is unavailable
	issueLabel string
	thresholds Thresholds
	notifier   *notify.Notifier
	logger     *slog.Logger
}

// Options configures a Monitor.
type Options struct {
	Package    string
	Version    string
	Registry   *npm.Registry
	GitHub     *ghx.Client
	IssueLabel string
	Thresholds Thresholds
	Notifier   *notify.Notifier
	Logger     *slog.Logger
}

// New creates a monitor.
func New(opts Options) *Monitor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	label := opts.IssueLabel
	if label == "" {
		label = "release-regression"
	}
	return &Monitor{
		pkg:        opts.Package,
		version:    opts.Version,
		registry:   opts.Registry,
		gh:         opts.GitHub,
		issueLabel: label,
		thresholds: opts.Thresholds,
		notifier:   opts.Notifier,
		logger:     logger,
	}
}

// Observe takes a single snapshot.
func (m *Monitor) Observe(ctx context.Context) Snapshot {
	snap := Snapshot{Taken: time.Now(), Version: m.version}

	exists, err := m.registry.VersionExists(ctx, m.pkg, m.version)
	if err != nil {
		snap.ObservationErr = err.Error()
	}
	snap.RegistryOK = err == nil && exists

	if tag, err := m.registry.DistTag(ctx, m.pkg, "latest"); err == nil {
		snap.LatestDistTag = tag
	}
	if downloads, err := m.registry.Downloads(ctx, m.pkg); err == nil {
		snap.Downloads = downloads
	}
	if m.gh != nil {
		if n, err := m.gh.OpenIssueCount(ctx, m.issueLabel); err == nil {
			snap.OpenIssues = n
		}
	}

	snap.Health, snap.Problems = m.grade(snap)
	return snap
}

func (m *Monitor) grade(snap Snapshot) (Health, []string) {
	var problems []string

	if !snap.RegistryOK {
		problems = append(problems, fmt.Sprintf("%s@%s not visible in registry", m.pkg, m.version))
		return HealthFailing, problems
	}
	if m.thresholds.RequireLatestTag && snap.LatestDistTag != "" && snap.LatestDistTag != m.version {
		problems = append(problems, fmt.Sprintf("latest dist-tag points at %s", snap.LatestDistTag))
	}
	if m.thresholds.MaxOpenIssues > 0 && snap.OpenIssues > m.thresholds.MaxOpenIssues {
		problems = append(problems, fmt.Sprintf("%d open %s issues (limit %d)",
			snap.OpenIssues, m.issueLabel, m.thresholds.MaxOpenIssues))
	}
	if m.thresholds.MinDownloads > 0 && snap.Downloads < m.thresholds.MinDownloads {
		problems = append(problems, fmt.Sprintf("downloads %d below floor %d",
			snap.Downloads, m.thresholds.MinDownloads))
	}

	switch {
	case len(problems) == 0:
		return HealthOK, nil
	case len(problems) >= 2:
		return HealthFailing, problems
	default:
		return HealthDegraded, problems
	}
}

// Run polls until the context is done, invoking onSnapshot for every
// observation and notifying webhooks when health changes. It returns
// the final snapshot.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, onSnapshot func(Snapshot)) Snapshot {
	if interval <= 0 {
		interval = time.Minute
	}

	var last Snapshot
	prevHealth := Health("")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		last = m.Observe(ctx)
		if onSnapshot != nil {
			onSnapshot(last)
		}
		m.logger.Info("monitor snapshot",
			"version", m.version,
			"health", string(last.Health),
			"downloads", last.Downloads,
			"open_issues", last.OpenIssues)

		if prevHealth != "" && last.Health != prevHealth {
			m.notifyChange(ctx, prevHealth, last)
		}
		prevHealth = last.Health

		select {
		case <-ctx.Done():
			return last
		case <-ticker.C:
		}
	}
}

func (m *Monitor) notifyChange(ctx context.Context, from Health, snap Snapshot) {
	if m.notifier == nil || !m.notifier.Enabled() {
		return
	}

	sev := notify.SeverityInfo
	switch snap.Health {
	case HealthDegraded:
		sev = notify.SeverityWarning
	case HealthFailing:
		sev = notify.SeverityError
	}

	ev := notify.Event{
		Title:    fmt.Sprintf("%s@%s: %s -> %s", m.pkg, m.version, from, snap.Health),
		Message:  strings.Join(snap.Problems, "\n"),
		Severity: sev,
	}
	if err := m.notifier.Send(ctx, ev); err != nil {
		m.logger.Warn("webhook delivery failed", "error", err)
	}
}

// Package report writes workflow run reports as JSON and Markdown.
// Reports land under .relkit/reports/ with timestamped names so
// successive runs never overwrite each other.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"relkit/internal/pipeline"
)

// Dir is the default report directory, relative to the repo root.
const Dir = ".relkit/reports"

// Write renders the report to both JSON and Markdown under dir and
// returns the two paths.
func Write(report *pipeline.RunReport, dir string) (jsonPath, mdPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create report directory: %w", err)
	}

	stamp := report.Started.Format("20060102-150405")
	base := fmt.Sprintf("%s-%s", sanitize(report.Name), stamp)

	jsonPath = filepath.Join(dir, base+".json")
	if err := writeJSON(report, jsonPath); err != nil {
		return "", "", err
	}

	mdPath = filepath.Join(dir, base+".md")
	if err := os.WriteFile(mdPath, Markdown(report), 0o644); err != nil {
		return "", "", fmt.Errorf("write markdown report: %w", err)
	}
	return jsonPath, mdPath, nil
}

func writeJSON(report *pipeline.RunReport, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write JSON report: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// Markdown renders the run report as a Markdown document.
func Markdown(report *pipeline.RunReport) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s report\n\n", report.Name)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", report.Started.Format(time.RFC3339))
	if report.DryRun {
		b.WriteString("**Mode:** dry-run (no state was mutated)\n\n")
	}

	passed, failed, warned, skipped := report.Counts()
	fmt.Fprintf(&b, "**Summary:** %d passed, %d failed, %d warnings, %d skipped\n\n",
		passed, failed, warned, skipped)

	b.WriteString("| Step | Status | Duration | Detail |\n")
	b.WriteString("|------|--------|----------|--------|\n")
	for _, res := range report.Results {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			res.Step, statusLabel(res.Status),
			res.Duration.Round(time.Millisecond),
			escapePipes(res.Message))
	}
	b.WriteByte('\n')

	if !report.Finished.IsZero() {
		fmt.Fprintf(&b, "Total duration: %s\n",
			report.Finished.Sub(report.Started).Round(time.Millisecond))
	}
	return []byte(b.String())
}

func statusLabel(s pipeline.Status) string {
	switch s {
	case pipeline.StatusPass:
		return "✅ pass"
	case pipeline.StatusFail:
		return "❌ fail"
	case pipeline.StatusWarn:
		return "⚠️ warn"
	case pipeline.StatusSkipped:
		return "⏭ skipped"
	}
	return string(s)
}

func escapePipes(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

func sanitize(name string) string {
	name = strings.ToLower(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, name)
}

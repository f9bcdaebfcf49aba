package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// ChecklistFileName is the optional per-repo checklist definition.
const ChecklistFileName = ".relkit.checks.toml"

// Check kinds understood by the validation runner.
const (
	CheckCommand    = "command"
	CheckFileExists = "file-exists"
	CheckCleanTree  = "clean-tree"
	CheckChangelog  = "changelog"
	CheckAuth       = "npm-auth"
	CheckAudit      = "npm-audit"
)

// Check is one named pre-release validation step.
type Check struct {
	Name     string `toml:"name"`
	Kind     string `toml:"kind"`
	Command  string `toml:"command,omitempty"`
	Path     string `toml:"path,omitempty"`
	Severity string `toml:"severity,omitempty"` // error (default) or warn
}

// Checklist is the ordered set of pre-release checks.
type Checklist struct {
	Checks []Check `toml:"check"`
}

// Blocking reports whether a failed check should stop the release.
func (c Check) Blocking() bool {
	return c.Severity != "warn"
}

// DefaultChecklist mirrors what a conservative npm release needs even
// when the repo ships no checklist file.
func DefaultChecklist() Checklist {
	return Checklist{Checks: []Check{
		{Name: "working tree clean", Kind: CheckCleanTree},
		{Name: "changelog has unreleased section", Kind: CheckChangelog},
		{Name: "npm authentication", Kind: CheckAuth},
		{Name: "dependency audit", Kind: CheckAudit, Severity: "warn"},
		{Name: "tests", Kind: CheckCommand, Command: "npm test"},
		{Name: "build", Kind: CheckCommand, Command: "npm run build", Severity: "warn"},
	}}
}

// LoadChecklist reads the TOML checklist at path, falling back to the
// defaults when the file does not exist.
func LoadChecklist(path string) (Checklist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultChecklist(), nil
		}
		return Checklist{}, fmt.Errorf("read checklist: %w", err)
	}

	var cl Checklist
	if err := toml.Unmarshal(data, &cl); err != nil {
		return Checklist{}, fmt.Errorf("parse checklist: %w", err)
	}
	if err := cl.Validate(); err != nil {
		return Checklist{}, err
	}
	return cl, nil
}

// Save writes the checklist as TOML to path.
func (cl Checklist) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cl); err != nil {
		return fmt.Errorf("encode checklist: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write checklist: %w", err)
	}
	return nil
}

// Validate rejects malformed check definitions.
func (cl Checklist) Validate() error {
	if len(cl.Checks) == 0 {
		return fmt.Errorf("checklist defines no checks")
	}
	seen := make(map[string]bool, len(cl.Checks))
	for i, c := range cl.Checks {
		if c.Name == "" {
			return fmt.Errorf("check %d: name is required", i+1)
		}
		if seen[c.Name] {
			return fmt.Errorf("check %q: duplicate name", c.Name)
		}
		seen[c.Name] = true

		switch c.Kind {
		case CheckCommand:
			if strings.TrimSpace(c.Command) == "" {
				return fmt.Errorf("check %q: command is required for kind %s", c.Name, c.Kind)
			}
		case CheckFileExists:
			if c.Path == "" {
				return fmt.Errorf("check %q: path is required for kind %s", c.Name, c.Kind)
			}
		case CheckCleanTree, CheckChangelog, CheckAuth, CheckAudit:
		default:
			return fmt.Errorf("check %q: unknown kind %q", c.Name, c.Kind)
		}

		switch c.Severity {
		case "", "error", "warn":
		default:
			return fmt.Errorf("check %q: severity must be error or warn", c.Name)
		}
	}
	return nil
}

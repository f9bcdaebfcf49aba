// Package npm wraps the npm CLI and the registry HTTP API.
//
// Mutating operations (publish, deprecate, dist-tag) go through the
// CLI so they pick up the user's authentication; read-only queries go
// straight to the registry over HTTP, which is faster and does not
// require npm to be installed.
package npm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"relkit/internal/execx"
)

// DefaultRegistry is the public npm registry.
const DefaultRegistry = "https://registry.npmjs.org"

// publishTimeout bounds registry-facing npm invocations, which upload
// tarballs and can be slow.
const publishTimeout = 5 * time.Minute

var (
	// ErrNotAuthenticated is returned when npm has no login for the
	// target registry.
	ErrNotAuthenticated = errors.New("not authenticated to npm registry")

	// ErrVersionExists is returned when publishing a version the
	// registry already has.
	ErrVersionExists = errors.New("version already published")

	// ErrVersionNotFound is returned when a queried version is not in
	// the registry.
	ErrVersionNotFound = errors.New("version not found in registry")
)

// CLI drives the npm binary from a working directory.
type CLI struct {
	dir      string
	registry string
}

// NewCLI creates a CLI handle rooted at dir. An empty registry uses
// npm's configured default.
func NewCLI(dir, registry string) *CLI {
	return &CLI{dir: dir, registry: registry}
}

// Installed reports whether the npm binary is available.
func Installed() bool {
	_, err := execx.LookPath("npm")
	return err == nil
}

// Version returns the npm binary version.
func (c *CLI) Version(ctx context.Context) (string, error) {
	out, err := execx.RunContext(ctx, execx.DefaultTimeout, c.dir, "npm", "--version")
	if err != nil {
		return "", err
	}
	return execx.TrimOutput(out), nil
}

func (c *CLI) registryArgs() []string {
	if c.registry == "" {
		return nil
	}
	return []string{"--registry", c.registry}
}

// WhoAmI returns the authenticated username, or ErrNotAuthenticated.
func (c *CLI) WhoAmI(ctx context.Context) (string, error) {
	args := append([]string{"whoami"}, c.registryArgs()...)
	out, err := execx.RunContext(ctx, execx.DefaultTimeout, c.dir, "npm", args...)
	if err != nil {
		if strings.Contains(err.Error(), "ENEEDAUTH") || execx.IsExitError(err) {
			return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
		}
		return "", err
	}
	return execx.FirstWord(out), nil
}

// PublishOptions configures npm publish.
type PublishOptions struct {
	// Tag is the dist-tag to publish under; empty means "latest".
	Tag string

	// Access is "public" or "restricted"; empty uses the npm default.
	Access string

	// Provenance enables npm provenance attestation.
	Provenance bool

	// DryRun runs "npm publish --dry-run", which uploads nothing.
	DryRun bool
}

// Publish publishes the package in the working directory.
func (c *CLI) Publish(ctx context.Context, opts PublishOptions) error {
	args := []string{"publish"}
	if opts.Tag != "" {
		args = append(args, "--tag", opts.Tag)
	}
	if opts.Access != "" {
		args = append(args, "--access", opts.Access)
	}
	if opts.Provenance {
		args = append(args, "--provenance")
	}
	if opts.DryRun {
		args = append(args, "--dry-run")
	}
	args = append(args, c.registryArgs()...)

	_, err := execx.RunContext(ctx, publishTimeout, c.dir, "npm", args...)
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "EPUBLISHCONFLICT"), strings.Contains(msg, "cannot publish over"):
			return fmt.Errorf("%w: %v", ErrVersionExists, err)
		case strings.Contains(msg, "ENEEDAUTH"), strings.Contains(msg, "E401"):
			return fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
		}
		return err
	}
	return nil
}

// Pack runs "npm pack --dry-run --json" and returns the file list the
// tarball would contain. Used as a pre-publish validation gate.
func (c *CLI) Pack(ctx context.Context) ([]string, error) {
	out, err := execx.RunContext(ctx, publishTimeout, c.dir, "npm", "pack", "--dry-run", "--json")
	if err != nil {
		return nil, err
	}

	var results []struct {
		Files []struct {
			Path string `json:"path"`
		} `json:"files"`
	}
	if err := json.Unmarshal(out, &results); err != nil {
		return nil, fmt.Errorf("parse npm pack output: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	files := make([]string, 0, len(results[0].Files))
	for _, f := range results[0].Files {
		files = append(files, f.Path)
	}
	return files, nil
}

// Deprecate marks a published version as deprecated with a message.
// An empty message would un-deprecate, so it is required here.
func (c *CLI) Deprecate(ctx context.Context, pkg, version, message string) error {
	if message == "" {
		return fmt.Errorf("deprecation message required")
	}
	spec := fmt.Sprintf("%s@%s", pkg, version)
	args := append([]string{"deprecate", spec, message}, c.registryArgs()...)
	_, err := execx.RunContext(ctx, publishTimeout, c.dir, "npm", args...)
	return err
}

// DistTagAdd points a dist-tag at a version.
func (c *CLI) DistTagAdd(ctx context.Context, pkg, version, tag string) error {
	spec := fmt.Sprintf("%s@%s", pkg, version)
	args := append([]string{"dist-tag", "add", spec, tag}, c.registryArgs()...)
	_, err := execx.RunContext(ctx, publishTimeout, c.dir, "npm", args...)
	return err
}

// AuditSummary is the severity breakdown from npm audit.
type AuditSummary struct {
	Info     int `json:"info"`
	Low      int `json:"low"`
	Moderate int `json:"moderate"`
	High     int `json:"high"`
	Critical int `json:"critical"`
	Total    int `json:"total"`
}

// Blocking reports whether the audit result should block a release,
// given the lowest severity considered blocking ("high" or "critical").
func (a AuditSummary) Blocking(threshold string) bool {
	switch threshold {
	case "critical":
		return a.Critical > 0
	case "high":
		return a.High > 0 || a.Critical > 0
	case "moderate":
		return a.Moderate > 0 || a.High > 0 || a.Critical > 0
	}
	return a.Total > 0
}

// Audit runs "npm audit --json" and returns the vulnerability counts.
// npm exits nonzero when vulnerabilities exist, so exit errors with
// parseable output are not failures.
func (c *CLI) Audit(ctx context.Context) (AuditSummary, error) {
	out, err := execx.RunContext(ctx, publishTimeout, c.dir, "npm", "audit", "--json")
	if err != nil && !execx.IsExitError(err) {
		return AuditSummary{}, err
	}
	return ParseAudit(out)
}

// ParseAudit extracts the severity counts from npm audit --json output.
func ParseAudit(out []byte) (AuditSummary, error) {
	var parsed struct {
		Metadata struct {
			Vulnerabilities AuditSummary `json:"vulnerabilities"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return AuditSummary{}, fmt.Errorf("parse npm audit output: %w", err)
	}
	return parsed.Metadata.Vulnerabilities, nil
}

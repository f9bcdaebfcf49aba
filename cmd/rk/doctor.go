package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"relkit/internal/config"
	"relkit/internal/execx"
	"relkit/internal/gitx"
	"relkit/internal/gpgx"
	"relkit/internal/npm"
	"relkit/internal/ui"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: "observe",
	Short:   "Check that the release environment is ready",
	Long: `Check the tools and configuration the release workflow depends on:
git, npm, gpg, and gh binaries, npm authentication, GPG keys, and
registry reachability. gh and gpg are optional; everything else is
required.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		failures := 0

		check := func(name string, required bool, fn func() (string, error)) {
			detail, err := fn()
			switch {
			case err == nil:
				fmt.Printf("%s %-22s %s\n", ui.RenderPass("✓"), name, detail)
			case required:
				failures++
				fmt.Printf("%s %-22s %v\n", ui.RenderFail("✗"), name, err)
			default:
				fmt.Printf("%s %-22s %v\n", ui.RenderWarn("⚠"), name, err)
			}
		}

		check("git", true, func() (string, error) {
			if !gitx.Installed() {
				return "", fmt.Errorf("not installed")
			}
			repo, err := gitx.Open(".")
			if err != nil {
				return "installed (not in a repository)", nil
			}
			v, _ := repo.Version()
			return v, nil
		})

		check("npm", true, func() (string, error) {
			if !npm.Installed() {
				return "", fmt.Errorf("not installed")
			}
			v, err := npm.NewCLI(".", "").Version(ctx)
			if err != nil {
				return "", err
			}
			return "v" + v, nil
		})

		check("npm auth", true, func() (string, error) {
			user, err := npm.NewCLI(".", "").WhoAmI(ctx)
			if err != nil {
				return "", err
			}
			return "logged in as " + user, nil
		})

		check("gpg", false, func() (string, error) {
			if !gpgx.Installed() {
				return "", fmt.Errorf("not installed (tags will be annotated, not signed)")
			}
			v, err := gpgx.Version(ctx)
			if err != nil {
				return "", err
			}
			keys, err := gpgx.SecretKeys(ctx)
			if err != nil {
				return v, nil
			}
			usable := 0
			for _, k := range keys {
				if !k.Expired() {
					usable++
				}
			}
			if usable == 0 {
				return "", fmt.Errorf("%s, no usable secret keys", v)
			}
			return fmt.Sprintf("%s, %d usable key(s)", v, usable), nil
		})

		check("gh", false, func() (string, error) {
			if _, err := execx.LookPath("gh"); err != nil {
				return "", fmt.Errorf("not installed (GitHub releases will be skipped)")
			}
			out, err := execx.RunContext(ctx, 10*time.Second, "", "gh", "--version")
			if err != nil {
				return "", err
			}
			fields := strings.Fields(string(out))
			if len(fields) >= 3 {
				return fields[0] + " " + fields[2], nil
			}
			return strings.TrimSpace(string(out)), nil
		})

		check("registry", true, func() (string, error) {
			cfg := registryURL()
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()
			// Fetching a tiny well-known package proves DNS, TLS, and
			// registry availability in one request.
			if _, err := npm.NewRegistry(cfg).DistTag(pingCtx, "semver", "latest"); err != nil {
				return "", fmt.Errorf("%s unreachable: %v", cfg, err)
			}
			return cfg + " reachable", nil
		})

		if failures > 0 {
			return fmt.Errorf("%d required check(s) failed", failures)
		}
		fmt.Printf("\n%s environment is ready\n", ui.RenderPass("✓"))
		return nil
	},
}

// registryURL reads the configured registry without requiring a git
// repository, so doctor works anywhere.
func registryURL() string {
	wd, err := os.Getwd()
	if err != nil {
		return config.Default().Registry.URL
	}
	cfg, err := config.Load(wd)
	if err != nil {
		return config.Default().Registry.URL
	}
	return cfg.Registry.URL
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

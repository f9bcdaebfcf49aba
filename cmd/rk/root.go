package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"relkit/internal/config"
	"relkit/internal/gitx"
	"relkit/internal/logging"
	"relkit/internal/npm"
	"relkit/internal/pkgjson"
)

var rkVersion = "dev"

var rootCmd = &cobra.Command{
	Use:   "rk",
	Short: "Release workflow automation for npm packages",
	Long: `rk automates the npm release workflow end to end: version bumps,
changelog generation, signed git tags, publishing, verification,
rollback, and post-release monitoring.

Run 'rk doctor' first to check that the required tools (git, npm,
gpg, gh) are available.`,
	Version:       rkVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "workflow", Title: "Release Workflow:"},
		&cobra.Group{ID: "safety", Title: "Validation & Recovery:"},
		&cobra.Group{ID: "observe", Title: "Observability:"},
	)

	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress log output on stderr")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}

// workspace bundles everything a command needs: the repo root, the
// loaded config, the package.json, and the logger. Commands that run
// outside a git repository (doctor, log) open what they need directly.
type workspace struct {
	root   string
	cfg    *config.Config
	repo   *gitx.Repo
	pkg    *pkgjson.File
	logger *slog.Logger
	closer io.Closer
}

func openWorkspace(cmd *cobra.Command) (*workspace, error) {
	repo, err := gitx.Open(".")
	if err != nil {
		return nil, err
	}
	root := repo.Root()

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	pkgDir := filepath.Join(root, cfg.Package.Dir)
	pkg, err := pkgjson.Find(pkgDir)
	if err != nil {
		return nil, fmt.Errorf("package.json in %s: %w", pkgDir, err)
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	level := cfg.Logging.Level
	if flagLevel, _ := cmd.Flags().GetString("log-level"); flagLevel != "" {
		level = flagLevel
	}
	logFile := ""
	if cfg.Logging.File != "" {
		logFile = filepath.Join(root, cfg.Logging.File)
	}
	logger, closer, err := logging.Setup(logging.Options{
		Level:    logging.LevelFromString(level),
		FilePath: logFile,
		Quiet:    quiet,
	})
	if err != nil {
		return nil, fmt.Errorf("set up logging: %w", err)
	}

	return &workspace{
		root:   root,
		cfg:    cfg,
		repo:   repo,
		pkg:    pkg,
		logger: logger,
		closer: closer,
	}, nil
}

func (w *workspace) Close() {
	if w.closer != nil {
		_ = w.closer.Close()
	}
}

// packageName resolves the npm package name, preferring the config
// override.
func (w *workspace) packageName() (string, error) {
	if w.cfg.Package.Name != "" {
		return w.cfg.Package.Name, nil
	}
	return w.pkg.Name()
}

func (w *workspace) npmCLI() *npm.CLI {
	return npm.NewCLI(filepath.Join(w.root, w.cfg.Package.Dir), w.cfg.Registry.URL)
}

func (w *workspace) registry() *npm.Registry {
	return npm.NewRegistry(w.cfg.Registry.URL)
}

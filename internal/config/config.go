// Package config loads release tooling configuration from .relkit.yaml
// with RELKIT_* environment overrides, plus the TOML validation
// checklist definitions.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file searched for at the repo root.
const DefaultFileName = ".relkit.yaml"

// Config is the full release tooling configuration.
type Config struct {
	Package   PackageConfig   `yaml:"package" mapstructure:"package"`
	Git       GitConfig       `yaml:"git" mapstructure:"git"`
	Registry  RegistryConfig  `yaml:"registry" mapstructure:"registry"`
	Signing   SigningConfig   `yaml:"signing" mapstructure:"signing"`
	Webhooks  WebhooksConfig  `yaml:"webhooks" mapstructure:"webhooks"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
	Changelog ChangelogConfig `yaml:"changelog" mapstructure:"changelog"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	AI        AIConfig        `yaml:"ai" mapstructure:"ai"`
}

// PackageConfig identifies the npm package under release management.
type PackageConfig struct {
	// Name overrides the name read from package.json; normally empty.
	Name string `yaml:"name" mapstructure:"name"`
	// Dir is the directory containing package.json, relative to the
	// repo root.
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// GitConfig controls remote and branch expectations.
type GitConfig struct {
	Remote        string `yaml:"remote" mapstructure:"remote"`
	ReleaseBranch string `yaml:"releaseBranch" mapstructure:"releaseBranch"`
	TagPrefix     string `yaml:"tagPrefix" mapstructure:"tagPrefix"`
}

// RegistryConfig points at the npm registry.
type RegistryConfig struct {
	URL        string `yaml:"url" mapstructure:"url"`
	Access     string `yaml:"access" mapstructure:"access"`
	DistTag    string `yaml:"distTag" mapstructure:"distTag"`
	Provenance bool   `yaml:"provenance" mapstructure:"provenance"`
}

// SigningConfig controls GPG tag signing.
type SigningConfig struct {
	Required bool   `yaml:"required" mapstructure:"required"`
	KeyID    string `yaml:"keyId" mapstructure:"keyId"`
}

// WebhooksConfig holds notification endpoints.
type WebhooksConfig struct {
	Discord string `yaml:"discord" mapstructure:"discord"`
	Slack   string `yaml:"slack" mapstructure:"slack"`
}

// MonitorConfig holds post-release monitoring thresholds.
type MonitorConfig struct {
	IntervalSeconds  int    `yaml:"intervalSeconds" mapstructure:"intervalSeconds"`
	MaxOpenIssues    int    `yaml:"maxOpenIssues" mapstructure:"maxOpenIssues"`
	MinDownloads     int    `yaml:"minDownloads" mapstructure:"minDownloads"`
	IssueLabel       string `yaml:"issueLabel" mapstructure:"issueLabel"`
	RequireLatestTag bool   `yaml:"requireLatestTag" mapstructure:"requireLatestTag"`
	DashboardPort    int    `yaml:"dashboardPort" mapstructure:"dashboardPort"`
}

// ChangelogConfig controls changelog generation.
type ChangelogConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	RepoURL string `yaml:"repoUrl" mapstructure:"repoUrl"`
}

// LoggingConfig controls the structured log output.
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}

// AIConfig controls AI-assisted release notes.
type AIConfig struct {
	Model string `yaml:"model" mapstructure:"model"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Package: PackageConfig{Dir: "."},
		Git: GitConfig{
			Remote:        "origin",
			ReleaseBranch: "main",
			TagPrefix:     "v",
		},
		Registry: RegistryConfig{
			URL:     "https://registry.npmjs.org",
			Access:  "public",
			DistTag: "latest",
		},
		Monitor: MonitorConfig{
			IntervalSeconds:  300,
			MaxOpenIssues:    3,
			IssueLabel:       "release-regression",
			RequireLatestTag: true,
			DashboardPort:    8787,
		},
		Changelog: ChangelogConfig{Path: "CHANGELOG.md"},
		Logging:   LoggingConfig{Level: "info", File: ".relkit/relkit.log"},
	}
}

// Load reads .relkit.yaml from root, applying defaults and RELKIT_*
// environment overrides. A missing file is not an error.
func Load(root string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("package.dir", def.Package.Dir)
	v.SetDefault("git.remote", def.Git.Remote)
	v.SetDefault("git.releaseBranch", def.Git.ReleaseBranch)
	v.SetDefault("git.tagPrefix", def.Git.TagPrefix)
	v.SetDefault("registry.url", def.Registry.URL)
	v.SetDefault("registry.access", def.Registry.Access)
	v.SetDefault("registry.distTag", def.Registry.DistTag)
	v.SetDefault("monitor.intervalSeconds", def.Monitor.IntervalSeconds)
	v.SetDefault("monitor.maxOpenIssues", def.Monitor.MaxOpenIssues)
	v.SetDefault("monitor.issueLabel", def.Monitor.IssueLabel)
	v.SetDefault("monitor.requireLatestTag", def.Monitor.RequireLatestTag)
	v.SetDefault("monitor.dashboardPort", def.Monitor.DashboardPort)
	v.SetDefault("changelog.path", def.Changelog.Path)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.file", def.Logging.File)

	v.SetConfigName(strings.TrimSuffix(DefaultFileName, filepath.Ext(DefaultFileName)))
	v.SetConfigType("yaml")
	v.AddConfigPath(root)

	v.SetEnvPrefix("RELKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration as YAML at the repo root.
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := filepath.Join(root, DefaultFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects values that would break the workflow later.
func (c *Config) Validate() error {
	if c.Registry.URL != "" && !strings.HasPrefix(c.Registry.URL, "http") {
		return &Error{Field: "registry.url", Message: "must be an http(s) URL"}
	}
	switch c.Registry.Access {
	case "", "public", "restricted":
	default:
		return &Error{Field: "registry.access", Message: "must be public or restricted"}
	}
	if c.Monitor.IntervalSeconds < 0 {
		return &Error{Field: "monitor.intervalSeconds", Message: "must not be negative"}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return &Error{Field: "logging.level", Message: "must be debug, info, warn, or error"}
	}
	return nil
}

// Error reports an invalid configuration field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

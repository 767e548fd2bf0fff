// Package config loads ripple.yaml.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jward/ripple"
	"github.com/jward/ripple/internal/generate"
)

// FileName is the config file looked up when no path is given.
const FileName = "ripple.yaml"

// Config represents the ripple configuration.
type Config struct {
	DB            string        `yaml:"db"`
	Root          string        `yaml:"root"`
	SchemaVersion int           `yaml:"schema_version"`
	ScriptsDir    string        `yaml:"scripts_dir"`
	Watch         *bool         `yaml:"watch"`
	Planner       PlannerConfig `yaml:"planner"`
	SQL           SQLConfig     `yaml:"sql"`
	Apply         ApplyConfig   `yaml:"apply"`
}

// PlannerConfig tunes impact traversal.
type PlannerConfig struct {
	MaxDepth int `yaml:"max_depth"`
}

// SQLConfig sets the dialect for sql symbols that carry none.
type SQLConfig struct {
	Dialect string `yaml:"dialect"`
}

// ApplyConfig holds the apply defaults. Pointers tell "unset" from false.
type ApplyConfig struct {
	Backup      *bool `yaml:"backup"`
	CheckSyntax *bool `yaml:"check_syntax"`
}

func boolPtr(b bool) *bool { return &b }

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DB:            ".ripple/index.db",
		Root:          ".",
		SchemaVersion: ripple.SchemaVersion,
		Watch:         boolPtr(false),
		Planner:       PlannerConfig{MaxDepth: ripple.DefaultMaxDepth},
		SQL:           SQLConfig{Dialect: ripple.DefaultDialect},
		Apply: ApplyConfig{
			Backup:      boolPtr(false),
			CheckSyntax: boolPtr(true),
		},
	}
}

// Load reads configuration from file, falling back to defaults. If
// configPath is empty, it looks for ripple.yaml in the current directory.
// Keys present in the file override the defaults.
func Load(configPath string) (*Config, error) {
	defaults := Default()

	if configPath == "" {
		configPath = FileName
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults, nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", configPath, err)
	}

	defaults.Merge(&fileCfg)
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", configPath, err)
	}
	return defaults, nil
}

// LoadFromDir loads ripple.yaml from dir.
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Merge combines another config into this one, with other's set values
// taking precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.DB != "" {
		c.DB = other.DB
	}
	if other.Root != "" {
		c.Root = other.Root
	}
	if other.SchemaVersion != 0 {
		c.SchemaVersion = other.SchemaVersion
	}
	if other.ScriptsDir != "" {
		c.ScriptsDir = other.ScriptsDir
	}
	if other.Watch != nil {
		c.Watch = other.Watch
	}
	if other.Planner.MaxDepth != 0 {
		c.Planner.MaxDepth = other.Planner.MaxDepth
	}
	if other.SQL.Dialect != "" {
		c.SQL.Dialect = strings.ToLower(other.SQL.Dialect)
	}
	if other.Apply.Backup != nil {
		c.Apply.Backup = other.Apply.Backup
	}
	if other.Apply.CheckSyntax != nil {
		c.Apply.CheckSyntax = other.Apply.CheckSyntax
	}
}

// Validate rejects values the engine cannot use.
func (c *Config) Validate() error {
	if c.Planner.MaxDepth < 0 {
		return fmt.Errorf("planner.max_depth must be >= 0, got %d", c.Planner.MaxDepth)
	}
	if c.SchemaVersion < 0 {
		return fmt.Errorf("schema_version must be >= 0, got %d", c.SchemaVersion)
	}
	if c.SQL.Dialect != "" && !slices.Contains(generate.Dialects(), c.SQL.Dialect) {
		return fmt.Errorf("sql.dialect %q is not one of %s", c.SQL.Dialect, strings.Join(generate.Dialects(), ", "))
	}
	return nil
}

// WatchEnabled reports whether the file watcher is on.
func (c *Config) WatchEnabled() bool { return c.Watch != nil && *c.Watch }

// BackupEnabled reports whether apply writes .orig copies.
func (c *Config) BackupEnabled() bool { return c.Apply.Backup != nil && *c.Apply.Backup }

// CheckSyntaxEnabled reports whether apply parses patched files.
func (c *Config) CheckSyntaxEnabled() bool { return c.Apply.CheckSyntax == nil || *c.Apply.CheckSyntax }

// EngineOptions translates the config into ripple.New options.
func (c *Config) EngineOptions(logger *slog.Logger) []ripple.Option {
	opts := []ripple.Option{
		ripple.WithRoot(c.Root),
		ripple.WithLogger(logger),
		ripple.WithMaxDepth(c.Planner.MaxDepth),
		ripple.WithDialect(c.SQL.Dialect),
		ripple.WithSchemaVersion(c.SchemaVersion),
		ripple.WithWatch(c.WatchEnabled()),
		ripple.WithApplyDefaults(c.BackupEnabled(), c.CheckSyntaxEnabled()),
	}
	if c.ScriptsDir != "" {
		opts = append(opts, ripple.WithScriptsDir(c.ScriptsDir))
	}
	return opts
}

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/ripple"
	"github.com/jward/ripple/internal/config"
)

// handledError wraps an error outputError already printed so main()
// doesn't print it twice.
type handledError struct{ err error }

func (e *handledError) Error() string { return e.err.Error() }
func (e *handledError) Unwrap() error { return e.err }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var he *handledError
		if !errors.As(err, &he) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

// app carries the global flags and the state built from them before a
// command runs.
type app struct {
	flagDB      string
	flagConfig  string
	flagRoot    string
	flagFormat  string
	flagVerbose bool

	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "ripple",
		Short:         "Plan and propagate field changes across a polyglot codebase",
		Long:          "Ripple loads a published symbol graph, plans the impact of adding, renaming or removing a field, and generates and applies the matching edits in every language.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		// No Run: prints help by default.
	}

	root.PersistentFlags().StringVar(&a.flagDB, "db", "", "database path (default: .ripple/index.db relative to the root)")
	root.PersistentFlags().StringVar(&a.flagConfig, "config", "", "config file (default: ripple.yaml in the current directory)")
	root.PersistentFlags().StringVar(&a.flagRoot, "root", "", "source root symbol paths are relative to")
	root.PersistentFlags().StringVar(&a.flagFormat, "format", "json", "output format: json|text")
	root.PersistentFlags().BoolVarP(&a.flagVerbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(a.publishCmd())
	root.AddCommand(a.queryCmd())
	root.AddCommand(a.planCmd())
	root.AddCommand(a.generateCmd())
	root.AddCommand(a.applyCmd())
	root.AddCommand(a.serveCmd())
	return root
}

// setup validates the global flags, loads the config and merges the flag
// overrides into it.
func (a *app) setup(cmd *cobra.Command) error {
	if err := validateFormat(a.flagFormat); err != nil {
		return err
	}
	a.out = cmd.OutOrStdout()

	level := slog.LevelWarn
	if a.flagVerbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(a.flagConfig)
	if err != nil {
		return err
	}
	cfg.Merge(&config.Config{DB: a.flagDB, Root: a.flagRoot})
	if a.flagRoot == "" && cfg.Root == "." {
		if cwd, err := os.Getwd(); err == nil {
			cfg.Root = findRepoRoot(cwd)
		}
	}
	if a.flagDB == "" && !filepath.IsAbs(cfg.DB) {
		cfg.DB = filepath.Join(cfg.Root, cfg.DB)
	}
	a.cfg = cfg
	return nil
}

// openEngine opens the index named by the config, creating its directory.
func (a *app) openEngine() (*ripple.Engine, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.DB), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(a.cfg.DB), err)
	}
	e, err := ripple.New(a.cfg.DB, a.cfg.EngineOptions(a.logger)...)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	return e, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

package ripple

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jward/ripple/internal/generate"
	"github.com/jward/ripple/internal/graph"
	"github.com/jward/ripple/internal/runtime"
	"github.com/jward/ripple/internal/store"
	"github.com/jward/ripple/scripts"
)

// Default planner depth ceiling and the hard cap on any traversal depth.
const (
	DefaultMaxDepth = 5
	MaxDepthCap     = 100
)

// DefaultDialect is the SQL dialect assumed for sql symbols without one.
const DefaultDialect = "postgres"

// Engine owns the published snapshot and runs queries, planning,
// generation and apply against it.
type Engine struct {
	store    *store.Store
	holder   *graph.Holder
	watcher  *graph.Watcher
	registry *generate.Registry
	runtime  *runtime.Runtime
	logger   *slog.Logger

	root          string
	schemaVersion int
	maxDepth      int
	dialect       string
	scriptsDir    string
	scriptsFS     fs.FS
	watch         bool
	backup        bool
	checkSyntax   bool
	extra         []generate.Generator

	stopWatch context.CancelFunc
	reload    singleflight.Group

	// applyMu serialises Apply; concurrent applies to one tree are unsupported.
	applyMu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithRoot sets the directory symbol file paths are relative to. It is used
// for freshness checks, source loading and apply. Defaults to the working
// directory at New.
func WithRoot(dir string) Option {
	return func(e *Engine) {
		e.root = dir
	}
}

// WithLogger sets the engine's logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithScriptsFS loads generator scripts from fsys instead of the embedded
// scripts.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithScriptsDir loads generator scripts from a directory on disk.
func WithScriptsDir(dir string) Option {
	return func(e *Engine) {
		e.scriptsDir = dir
	}
}

// WithMaxDepth sets the planner's traversal depth ceiling. Values above
// MaxDepthCap are capped; values below 1 keep the default.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		switch {
		case n > MaxDepthCap:
			e.maxDepth = MaxDepthCap
		case n > 0:
			e.maxDepth = n
		}
	}
}

// WithDialect sets the SQL dialect for sql symbols that carry none.
func WithDialect(d string) Option {
	return func(e *Engine) {
		if d != "" {
			e.dialect = strings.ToLower(d)
		}
	}
}

// WithSchemaVersion sets the snapshot schema version the caller expects.
// Queries against a snapshot of another version fail with
// *VersionMismatchError.
func WithSchemaVersion(v int) Option {
	return func(e *Engine) {
		e.schemaVersion = v
	}
}

// WithWatch enables the fsnotify watcher that invalidates the snapshot as
// soon as a tracked file changes.
func WithWatch(on bool) Option {
	return func(e *Engine) {
		e.watch = on
	}
}

// WithApplyDefaults sets the backup and syntax-check behaviour used by
// GenerateAndApply.
func WithApplyDefaults(backup, checkSyntax bool) Option {
	return func(e *Engine) {
		e.backup = backup
		e.checkSyntax = checkSyntax
	}
}

// RegisterGenerator adds g to the registry, replacing any generator with
// the same key.
func RegisterGenerator(g Generator) Option {
	return func(e *Engine) {
		e.extra = append(e.extra, g)
	}
}

// New creates an Engine backed by a SQLite index at dbPath. A snapshot
// already in the index is loaded.
//
// Script loading priority:
//  1. WithScriptsFS
//  2. WithScriptsDir
//  3. the embedded scripts
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("ripple: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("ripple: migrate: %w", err)
	}

	e := &Engine{
		store:         s,
		logger:        slog.Default(),
		schemaVersion: graph.SchemaVersion,
		maxDepth:      DefaultMaxDepth,
		dialect:       DefaultDialect,
		checkSyntax:   true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.root == "" {
		wd, err := os.Getwd()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("ripple: working directory: %w", err)
		}
		e.root = wd
	}

	rtOpts := []runtime.RuntimeOption{runtime.WithRuntimeLogger(e.logger)}
	switch {
	case e.scriptsFS != nil:
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.scriptsFS))
	case e.scriptsDir == "":
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(scripts.FS))
	}
	e.runtime = runtime.NewRuntime(e.scriptsDir, rtOpts...)

	e.registry, err = generate.NewDefaultRegistry(e.runtime)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("ripple: generators: %w", err)
	}
	for _, g := range e.extra {
		e.registry.Register(g)
	}

	e.holder = graph.NewHolder(e.root, s.DeclaredVersion)

	if e.watch {
		w, err := graph.NewWatcher(e.holder, e.logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("ripple: watcher: %w", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		w.Start(ctx)
		e.watcher, e.stopWatch = w, cancel
	}

	if err := e.Reload(context.Background()); err != nil && !errors.Is(err, ErrNotIndexed) {
		e.Close()
		return nil, err
	}
	return e, nil
}

// Close stops the watcher and releases the index.
func (e *Engine) Close() error {
	if e.watcher != nil {
		e.stopWatch()
		_ = e.watcher.Stop()
	}
	return e.store.Close()
}

// Root returns the directory file paths are resolved against.
func (e *Engine) Root() string { return e.root }

// Generators lists the registered generator keys.
func (e *Engine) Generators() []GeneratorKey { return e.registry.Keys() }

// Publish replaces the graph with symbols and edges. It is the only write
// path into the index: the snapshot is stored in one transaction and then
// swapped in, so readers never see a partial graph. An empty version is
// derived from the graph's content.
func (e *Engine) Publish(ctx context.Context, symbols []*Symbol, edges []Edge, version string) (*Snapshot, error) {
	if version == "" {
		tmp, err := graph.NewSnapshot(symbols, edges, graph.Meta{})
		if err != nil {
			return nil, fmt.Errorf("ripple: publish: %w", err)
		}
		version = store.ComputeVersion(tmp.Symbols(), append(append([]graph.Edge{}, tmp.Edges()...), tmp.StaleEdges()...))
	}

	snap, err := graph.NewSnapshot(symbols, edges, graph.Meta{
		Version:       version,
		SchemaVersion: graph.SchemaVersion,
		BuiltAt:       time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("ripple: publish: %w", err)
	}
	if err := e.store.PublishSnapshot(snap); err != nil {
		return nil, fmt.Errorf("ripple: publish: %w", err)
	}
	e.install(snap)
	return snap, nil
}

// PublishFiles replaces the data of files only, as after a partial
// reindex. Edges from other files into the replaced ones are kept; those
// that no longer resolve are reported as stale until reindexed.
func (e *Engine) PublishFiles(ctx context.Context, files []string, symbols []*Symbol, edges []Edge, version string) (*Snapshot, error) {
	if version == "" {
		prev, _ := e.store.DeclaredVersion()
		version = store.ComputeVersion(symbols, edges) + "+" + shortHash(prev+strings.Join(files, "\x00"))
	}
	own := make([]*Symbol, len(symbols))
	for i, sym := range symbols {
		c := *sym
		if c.QualifiedName == "" {
			c.QualifiedName = c.Name
		}
		if c.ID == "" {
			c.ID = graph.StableID(c.File, c.QualifiedName)
		}
		own[i] = &c
	}
	meta := graph.Meta{Version: version, SchemaVersion: graph.SchemaVersion, BuiltAt: time.Now()}
	if err := e.store.ReplaceFiles(files, own, edges, meta); err != nil {
		return nil, fmt.Errorf("ripple: publish files: %w", err)
	}
	snap, err := e.store.LoadSnapshot()
	if err != nil {
		return nil, fmt.Errorf("ripple: publish files: %w", err)
	}
	e.install(snap)
	return snap, nil
}

// Reload replaces the in-memory snapshot with the one in the index.
// Concurrent calls share one load.
func (e *Engine) Reload(ctx context.Context) error {
	_, err, _ := e.reload.Do("reload", func() (any, error) {
		snap, err := e.store.LoadSnapshot()
		if errors.Is(err, store.ErrEmpty) {
			return nil, ErrNotIndexed
		}
		if err != nil {
			return nil, fmt.Errorf("ripple: reload: %w", err)
		}
		e.install(snap)
		return nil, nil
	})
	return err
}

func (e *Engine) install(snap *graph.Snapshot) {
	e.holder.Publish(snap)
	if e.watcher != nil {
		if err := e.watcher.Track(snap); err != nil {
			e.logger.Warn("track snapshot files", "error", err)
		}
	}
	e.logger.Info("snapshot published",
		"version", snap.Version(),
		"symbols", len(snap.Symbols()),
		"edges", len(snap.Edges()),
		"stale_edges", len(snap.StaleEdges()))
}

// IsFresh reports whether the snapshot matches the index's declared
// version and no tracked source changed since it was built.
func (e *Engine) IsFresh() bool {
	return e.holder.IsFresh()
}

// CurrentVersion returns the version tag of the published snapshot.
func (e *Engine) CurrentVersion() (string, error) {
	v, err := e.holder.CurrentVersion()
	if errors.Is(err, graph.ErrNoSnapshot) {
		return "", ErrNotIndexed
	}
	return v, err
}

// Query returns a QueryClient over the engine's snapshot.
func (e *Engine) Query() *QueryClient {
	return &QueryClient{engine: e}
}

// snapshot loads the current snapshot and refuses it when it is missing,
// of an unexpected schema version or stale. Every read goes through here
// once and then uses the returned snapshot for the rest of the call.
func (e *Engine) snapshot(ctx context.Context) (*graph.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := e.holder.Load()
	if s == nil {
		return nil, ErrNotIndexed
	}
	if actual := s.Meta().SchemaVersion; e.schemaVersion != 0 && actual != e.schemaVersion {
		return nil, &VersionMismatchError{Expected: e.schemaVersion, Actual: actual}
	}
	f, err := e.holder.Check(s)
	if err != nil {
		if errors.Is(err, store.ErrEmpty) {
			return nil, ErrNotIndexed
		}
		return nil, fmt.Errorf("ripple: freshness: %w", err)
	}
	if !f.Fresh {
		return nil, &StaleError{Reason: string(f.Reason), File: f.File, Snapshot: f.Snapshot, Declared: f.Declared}
	}
	return s, nil
}

// resolve maps a snapshot path to a filesystem path.
func (e *Engine) resolve(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(e.root, file)
}

func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:4])
}

package generate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jward/ripple/internal/change"
	"github.com/jward/ripple/internal/graph"
	"github.com/jward/ripple/internal/runtime"
)

// Registry maps (language, dialect) keys to generators.
type Registry struct {
	mu   sync.RWMutex
	gens map[Key]Generator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{gens: make(map[Key]Generator)}
}

// NewDefaultRegistry registers the built-in generators, then one script
// generator for every script in rt whose key no built-in claims. rt may
// be nil.
func NewDefaultRegistry(rt *runtime.Runtime) (*Registry, error) {
	r := NewRegistry()
	r.Register(Java{})
	r.Register(Python{})
	r.Register(TypeScript{})
	r.Register(JSP{})
	for _, d := range Dialects() {
		g, err := NewSQL(d)
		if err != nil {
			return nil, err
		}
		r.Register(g)
	}

	if rt == nil {
		return r, nil
	}
	keys, err := rt.GeneratorKeys()
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		key := ParseKey(k)
		if _, ok := r.Lookup(key); ok {
			continue
		}
		r.Register(NewScript(rt, key))
	}
	return r, nil
}

// Register adds g, replacing any generator with the same key.
func (r *Registry) Register(g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gens[g.Key()] = g
}

// Lookup returns the generator for k.
func (r *Registry) Lookup(k Key) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gens[k]
	return g, ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Key, 0, len(r.gens))
	for k := range r.gens {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

var languageAliases = map[string]string{
	"ts":  "typescript",
	"tsx": "typescript",
	"py":  "python",
}

// Resolve returns the generator key for sym. SQL symbols without a
// dialect use defaultDialect.
func Resolve(sym *graph.Symbol, defaultDialect string) Key {
	lang := strings.ToLower(sym.Language)
	if alias, ok := languageAliases[lang]; ok {
		lang = alias
	}
	if lang != "sql" {
		return Key{Language: lang}
	}
	d := sym.Dialect
	if d == "" {
		d = defaultDialect
	}
	return Key{Language: lang, Dialect: strings.ToLower(d)}
}

// Target is a symbol a plan found, with the edge kind that reached it.
// The change's root symbol has an empty Via.
type Target struct {
	Symbol *graph.Symbol
	Via    graph.EdgeKind
	Depth  int
}

// Editable reports whether a change of kind k rewrites t. Renames and
// removals edit every target. An added field lands in the root, in
// artifacts derived from or mapped to it, and in forms that bind it;
// plain consumers keep compiling and are left alone.
func Editable(k change.Kind, t Target) bool {
	if k != change.AddField || t.Via == "" {
		return true
	}
	switch t.Via {
	case graph.EdgeDerivedFrom, graph.EdgeMappedTo:
		return true
	case graph.EdgeReferences:
		return t.Symbol.Kind == graph.KindForm || t.Symbol.Kind == graph.KindUIBinding
	}
	return false
}

// Batch is one change to generate across every target of a plan.
type Batch struct {
	Change         change.Spec
	Root           *graph.Symbol
	Targets        []Target
	Sources        Sources
	Snapshot       *graph.Snapshot
	DefaultDialect string
}

// Files returns the files the editable targets of b live in, sorted.
func (b Batch) Files() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range b.Targets {
		if !Editable(b.Change.Kind, t) || seen[t.Symbol.File] {
			continue
		}
		seen[t.Symbol.File] = true
		out = append(out, t.Symbol.File)
	}
	sort.Strings(out)
	return out
}

// Generate runs the matching generator for every editable target. Targets
// are grouped by key in first-appearance order. A missing generator yields
// an unsupported_language warning and a failing one a generation_failed
// warning per symbol; neither stops the other groups. Identical patches
// produced by different targets are kept once. Removals never reach a
// generator for symbols in test files; those get a test_reference warning.
func (r *Registry) Generate(ctx context.Context, b Batch) Output {
	var (
		out   Output
		order []Key
	)
	groups := make(map[Key][]*graph.Symbol)
	seen := make(map[string]bool)
	for _, t := range b.Targets {
		if t.Symbol == nil || seen[t.Symbol.ID] || !Editable(b.Change.Kind, t) {
			continue
		}
		seen[t.Symbol.ID] = true
		if b.Change.Kind == change.RemoveField && IsTestFile(t.Symbol.File) {
			out.Notes = append(out.Notes, testReference(b.Change, t.Symbol))
			continue
		}
		k := Resolve(t.Symbol, b.DefaultDialect)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], t.Symbol)
	}

	dup := make(map[patchKey]bool)
	for _, k := range order {
		syms := groups[k]
		g, ok := r.Lookup(k)
		if !ok {
			for _, s := range syms {
				out.Notes = append(out.Notes, change.Warning(change.CodeUnsupportedLanguage, s.ID, s.File,
					"no generator registered for %s; %s skipped", k, s.QualifiedName))
			}
			continue
		}

		res, err := g.Generate(ctx, Input{
			Change:   b.Change,
			Root:     b.Root,
			Symbols:  syms,
			Sources:  b.Sources,
			Snapshot: b.Snapshot,
		})
		if err != nil {
			for _, s := range syms {
				out.Notes = append(out.Notes, change.Warning(change.CodeGenerationFailed, s.ID, s.File,
					"%s generator: %v", k, err))
			}
			continue
		}
		for _, p := range res.Patches {
			pk := keyOf(p)
			if dup[pk] {
				continue
			}
			dup[pk] = true
			out.Patches = append(out.Patches, p)
		}
		out.Notes = append(out.Notes, res.Notes...)
	}
	return out
}

type patchKey struct {
	file       string
	start, end int
	old, repl  string
}

func keyOf(p change.Patch) patchKey {
	return patchKey{file: p.File, start: p.LineStart, end: p.LineEnd, old: p.OldText, repl: p.NewText}
}

// String lists the registered keys.
func (r *Registry) String() string {
	keys := r.Keys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	return fmt.Sprintf("generators[%s]", strings.Join(names, " "))
}

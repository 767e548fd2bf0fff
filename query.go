package ripple

import (
	"context"
	"fmt"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jward/ripple/internal/graph"
)

// QueryClient provides typed read access over the engine's snapshot. Every
// call checks freshness first and fails rather than serve stale data.
type QueryClient struct {
	engine *Engine
}

// SymbolByID returns the symbol with id.
func (q *QueryClient) SymbolByID(ctx context.Context, id string) (*Symbol, error) {
	snap, err := q.engine.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	sym, ok := snap.Symbol(id)
	if !ok {
		return nil, fmt.Errorf("symbol by id: %w: %s", ErrNotFound, id)
	}
	return sym, nil
}

// LookupDefinition returns the location of the symbol called name, or nil
// when there is none. See ResolveSymbol for matching and tie-breaking.
func (q *QueryClient) LookupDefinition(ctx context.Context, name, scope string) (*Location, error) {
	sym, err := q.ResolveSymbol(ctx, name, scope)
	if err != nil || sym == nil {
		return nil, err
	}
	loc := sym.Location()
	return &loc, nil
}

// ResolveSymbol finds the symbol called name, or nil when there is none.
//
// A name containing "." matches qualified names (exactly or as a dotted
// suffix); otherwise it matches simple names exactly. A non-empty scope
// keeps candidates whose container equals scope or ends with "."+scope.
// Several candidates are ordered by shortest qualified name, then qualified
// name, then file, then id, and the first wins.
func (q *QueryClient) ResolveSymbol(ctx context.Context, name, scope string) (*Symbol, error) {
	snap, err := q.engine.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	cands := definitionCandidates(snap, name, scope)
	if len(cands) == 0 {
		return nil, nil
	}
	return cands[0], nil
}

// Candidates returns every symbol LookupDefinition would choose from, in
// tie-break order.
func (q *QueryClient) Candidates(ctx context.Context, name, scope string) ([]*Symbol, error) {
	snap, err := q.engine.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return definitionCandidates(snap, name, scope), nil
}

func definitionCandidates(snap *graph.Snapshot, name, scope string) []*Symbol {
	var pool []*Symbol
	if strings.Contains(name, ".") {
		for _, s := range snap.Symbols() {
			if s.QualifiedName == name || strings.HasSuffix(s.QualifiedName, "."+name) {
				pool = append(pool, s)
			}
		}
	} else {
		pool = snap.SymbolsNamed(name)
	}

	var out []*Symbol
	for _, s := range pool {
		if scope != "" && !inScope(s, scope) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if len(a.QualifiedName) != len(b.QualifiedName) {
			return len(a.QualifiedName) < len(b.QualifiedName)
		}
		if a.QualifiedName != b.QualifiedName {
			return a.QualifiedName < b.QualifiedName
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.ID < b.ID
	})
	return out
}

func inScope(s *Symbol, scope string) bool {
	c := s.Container()
	return c == scope || strings.HasSuffix(c, "."+scope)
}

// DependencyFilter selects symbols for SymbolDependencies. Empty fields
// do not filter.
type DependencyFilter struct {
	NodeTypes []Kind `json:"node_types,omitempty"`
	// Domain matches a symbol's language or its "domain" attribute.
	Domain string `json:"domain,omitempty"`
	// Paths are gitignore-style patterns; "src/" selects everything under
	// src and "*.sql" every SQL file.
	Paths []string `json:"paths,omitempty"`
}

// Dependencies is the projection SymbolDependencies returns: the selected
// symbols and the edges between them.
type Dependencies struct {
	Symbols []*Symbol `json:"symbols"`
	Edges   []Edge    `json:"edges"`
}

// SymbolDependencies filters the snapshot's symbols and projects the edges
// whose endpoints both survive the filter. It does not traverse.
func (q *QueryClient) SymbolDependencies(ctx context.Context, f DependencyFilter) (*Dependencies, error) {
	snap, err := q.engine.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	kinds := make(map[Kind]bool, len(f.NodeTypes))
	for _, k := range f.NodeTypes {
		kinds[Kind(strings.ToLower(string(k)))] = true
	}
	var paths *ignore.GitIgnore
	if len(f.Paths) > 0 {
		paths = ignore.CompileIgnoreLines(f.Paths...)
	}

	out := &Dependencies{Symbols: []*Symbol{}, Edges: []Edge{}}
	keep := make(map[string]bool)
	for _, s := range snap.Symbols() {
		if len(kinds) > 0 && !kinds[s.Kind] {
			continue
		}
		if f.Domain != "" && !strings.EqualFold(s.Language, f.Domain) && !strings.EqualFold(s.Attr("domain"), f.Domain) {
			continue
		}
		if paths != nil && !paths.MatchesPath(s.File) {
			continue
		}
		keep[s.ID] = true
		out.Symbols = append(out.Symbols, s)
	}
	for _, e := range snap.Edges() {
		if keep[e.From] && keep[e.To] {
			out.Edges = append(out.Edges, e)
		}
	}
	return out, nil
}

// ChainNode is a symbol reached by a call-chain traversal, with its hop
// distance from the root.
type ChainNode struct {
	Symbol *Symbol `json:"symbol"`
	Depth  int     `json:"depth"`
}

// Chain is the call neighbourhood of one root: callers upstream and
// callees downstream, each in breadth-first order.
type Chain struct {
	Root       *Symbol     `json:"root"`
	Upstream   []ChainNode `json:"upstream"`
	Downstream []ChainNode `json:"downstream"`
}

// CallChainResult is returned by CallChain.
type CallChainResult struct {
	Chains []Chain `json:"chains"`
}

// CallChain walks CALLS edges breadth-first from id in both directions, up
// to maxDepth hops. A negative maxDepth is an error, values above
// MaxDepthCap are capped and 0 returns the root alone. Cycles are cut by a
// visited set per direction.
func (q *QueryClient) CallChain(ctx context.Context, id string, maxDepth int) (*CallChainResult, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("call chain: maxDepth must be >= 0, got %d", maxDepth)
	}
	if maxDepth > MaxDepthCap {
		maxDepth = MaxDepthCap
	}
	snap, err := q.engine.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	root, ok := snap.Symbol(id)
	if !ok {
		return nil, fmt.Errorf("call chain: %w: %s", ErrNotFound, id)
	}

	chain := Chain{
		Root:       root,
		Upstream:   walkCalls(snap, id, maxDepth, false),
		Downstream: walkCalls(snap, id, maxDepth, true),
	}
	return &CallChainResult{Chains: []Chain{chain}}, nil
}

// walkCalls is a BFS over CALLS edges. outgoing follows callees, otherwise
// callers.
func walkCalls(snap *graph.Snapshot, id string, maxDepth int, outgoing bool) []ChainNode {
	out := []ChainNode{}
	visited := map[string]bool{id: true}
	frontier := []string{id}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			var edges []Edge
			if outgoing {
				edges = snap.Outgoing(cur, graph.EdgeCalls)
			} else {
				edges = snap.Incoming(cur, graph.EdgeCalls)
			}
			level := make([]*Symbol, 0, len(edges))
			for _, e := range edges {
				other := e.From
				if outgoing {
					other = e.To
				}
				if visited[other] {
					continue
				}
				visited[other] = true
				if s, ok := snap.Symbol(other); ok {
					level = append(level, s)
				}
			}
			graph.SortSymbols(level)
			for _, s := range level {
				out = append(out, ChainNode{Symbol: s, Depth: depth})
				next = append(next, s.ID)
			}
		}
		frontier = next
	}
	return out
}

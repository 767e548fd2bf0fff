package graph

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"time"
)

// SchemaVersion is the snapshot layout version this build understands.
const SchemaVersion = 1

// Sentinel errors for snapshot construction.
var (
	// ErrDuplicateSymbol is returned when two symbols share an id.
	ErrDuplicateSymbol = errors.New("duplicate symbol id")

	// ErrInvalidSymbol is returned for a symbol missing its name or file.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrInvalidEdge is returned for an edge with an unknown kind.
	ErrInvalidEdge = errors.New("invalid edge kind")
)

// Meta describes a snapshot's provenance.
type Meta struct {
	Version       string
	SchemaVersion int
	BuiltAt       time.Time
}

// Snapshot is an immutable (symbols, edges, version) triple.
type Snapshot struct {
	meta Meta

	symbols []*Symbol // sorted by (file, line_start, id)
	byID    map[string]*Symbol
	byName  map[string][]*Symbol
	byFile  map[string][]*Symbol

	edges    []Edge
	stale    []Edge
	outgoing map[string][]Edge
	incoming map[string][]Edge
}

// NewSnapshot validates and indexes symbols and edges. Symbols are copied, so
// callers may reuse their slices afterwards. A symbol without an id receives
// StableID(file, qualified name). Edges whose endpoints are not in the
// snapshot are kept aside as stale and excluded from traversal.
func NewSnapshot(symbols []*Symbol, edges []Edge, meta Meta) (*Snapshot, error) {
	if meta.SchemaVersion == 0 {
		meta.SchemaVersion = SchemaVersion
	}
	if meta.BuiltAt.IsZero() {
		meta.BuiltAt = time.Now()
	}

	s := &Snapshot{
		meta:     meta,
		symbols:  make([]*Symbol, 0, len(symbols)),
		byID:     make(map[string]*Symbol, len(symbols)),
		byName:   make(map[string][]*Symbol),
		byFile:   make(map[string][]*Symbol),
		outgoing: make(map[string][]Edge),
		incoming: make(map[string][]Edge),
	}

	for _, in := range symbols {
		if in == nil || in.Name == "" || in.File == "" {
			return nil, fmt.Errorf("%w: %+v", ErrInvalidSymbol, in)
		}
		sym := *in
		sym.Attributes = maps.Clone(in.Attributes)
		if sym.QualifiedName == "" {
			sym.QualifiedName = sym.Name
		}
		if sym.ID == "" {
			sym.ID = StableID(sym.File, sym.QualifiedName)
		}
		if _, dup := s.byID[sym.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSymbol, sym.ID)
		}
		s.byID[sym.ID] = &sym
		s.symbols = append(s.symbols, &sym)
	}

	SortSymbols(s.symbols)
	for _, sym := range s.symbols {
		s.byName[sym.Name] = append(s.byName[sym.Name], sym)
		s.byFile[sym.File] = append(s.byFile[sym.File], sym)
	}

	for _, e := range edges {
		if !e.Kind.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEdge, e.Kind)
		}
		_, fromOK := s.byID[e.From]
		_, toOK := s.byID[e.To]
		if !fromOK || !toOK {
			s.stale = append(s.stale, e)
			continue
		}
		s.edges = append(s.edges, e)
		s.outgoing[e.From] = append(s.outgoing[e.From], e)
		s.incoming[e.To] = append(s.incoming[e.To], e)
	}

	return s, nil
}

// SortSymbols orders symbols by (file, line_start, id).
func SortSymbols(syms []*Symbol) {
	sort.Slice(syms, func(i, j int) bool {
		a, b := syms[i], syms[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.LineStart != b.LineStart {
			return a.LineStart < b.LineStart
		}
		return a.ID < b.ID
	})
}

// Meta returns the snapshot's provenance.
func (s *Snapshot) Meta() Meta { return s.meta }

// Version returns the snapshot's version tag.
func (s *Snapshot) Version() string { return s.meta.Version }

// Symbol returns the symbol with the given id.
func (s *Snapshot) Symbol(id string) (*Symbol, bool) {
	sym, ok := s.byID[id]
	return sym, ok
}

// Symbols returns every symbol in (file, line_start, id) order. The slice is
// shared; callers must not modify it.
func (s *Snapshot) Symbols() []*Symbol { return s.symbols }

// SymbolsNamed returns symbols with an exact name match.
func (s *Snapshot) SymbolsNamed(name string) []*Symbol { return s.byName[name] }

// SymbolsInFile returns the symbols declared in file.
func (s *Snapshot) SymbolsInFile(file string) []*Symbol { return s.byFile[file] }

// Files returns the tracked source files in sorted order.
func (s *Snapshot) Files() []string {
	files := make([]string, 0, len(s.byFile))
	for f := range s.byFile {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Edges returns every live edge.
func (s *Snapshot) Edges() []Edge { return s.edges }

// StaleEdges returns edges dropped because an endpoint was missing.
func (s *Snapshot) StaleEdges() []Edge { return s.stale }

// Outgoing returns live edges leaving id, optionally filtered by kind.
func (s *Snapshot) Outgoing(id string, kinds ...EdgeKind) []Edge {
	return filterEdges(s.outgoing[id], kinds)
}

// Incoming returns live edges arriving at id, optionally filtered by kind.
func (s *Snapshot) Incoming(id string, kinds ...EdgeKind) []Edge {
	return filterEdges(s.incoming[id], kinds)
}

func filterEdges(edges []Edge, kinds []EdgeKind) []Edge {
	if len(kinds) == 0 {
		return edges
	}
	var out []Edge
	for _, e := range edges {
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

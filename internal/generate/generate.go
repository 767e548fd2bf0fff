// Package generate turns a change.Spec and the symbols a plan found into
// concrete, language-idiomatic patches.
//
// Generators are registered under a (language, dialect) Key. They never
// touch the filesystem: file contents arrive materialised in Input.Sources
// and results are returned as data. A failure on one symbol is recorded as
// a generation_failed note and does not stop the others.
package generate

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jward/ripple/internal/change"
	"github.com/jward/ripple/internal/graph"
	"github.com/jward/ripple/internal/naming"
)

// Key identifies a generator.
type Key struct {
	Language string
	Dialect  string
}

func (k Key) String() string {
	if k.Dialect == "" {
		return k.Language
	}
	return k.Language + "/" + k.Dialect
}

// ParseKey parses "java" or "sql/postgres".
func ParseKey(s string) Key {
	lang, dialect, _ := strings.Cut(s, "/")
	return Key{Language: lang, Dialect: dialect}
}

// Sources maps a file path to its lines, without line terminators.
type Sources map[string][]string

// SplitLines splits file content into lines. A trailing newline does not
// produce an extra empty line.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

// Input is everything a generator may read.
type Input struct {
	Change   change.Spec
	Root     *graph.Symbol
	Symbols  []*graph.Symbol
	Sources  Sources
	Snapshot *graph.Snapshot
}

// Lines returns the loaded lines of file.
func (in Input) Lines(file string) ([]string, error) {
	src, ok := in.Sources[file]
	if !ok {
		return nil, fmt.Errorf("source for %s not loaded", file)
	}
	return src, nil
}

// Parent returns the symbol that defines sym, or nil. A DEFINES edge wins;
// otherwise a same-file symbol whose qualified name is sym's container.
func (in Input) Parent(sym *graph.Symbol) *graph.Symbol {
	if in.Snapshot == nil {
		return nil
	}
	for _, e := range in.Snapshot.Incoming(sym.ID, graph.EdgeDefines) {
		if p, ok := in.Snapshot.Symbol(e.From); ok {
			return p
		}
	}
	container := sym.Container()
	if container == "" {
		return nil
	}
	for _, s := range in.Snapshot.SymbolsInFile(sym.File) {
		if s.QualifiedName == container {
			return s
		}
	}
	return nil
}

// Children returns the symbols sym defines.
func (in Input) Children(sym *graph.Symbol) []*graph.Symbol {
	if in.Snapshot == nil {
		return nil
	}
	var out []*graph.Symbol
	for _, e := range in.Snapshot.Outgoing(sym.ID, graph.EdgeDefines) {
		if c, ok := in.Snapshot.Symbol(e.To); ok {
			out = append(out, c)
		}
	}
	graph.SortSymbols(out)
	return out
}

// Output is a generator's result.
type Output struct {
	Patches []change.Patch `json:"patches"`
	Notes   []change.Note  `json:"notes"`
}

// Generator emits patches for one (language, dialect).
type Generator interface {
	Key() Key
	Generate(ctx context.Context, in Input) (Output, error)
}

var testFileRe = regexp.MustCompile(`(^|/)(tests?)/|Test\.java$|_test\.[A-Za-z0-9]+$|(^|/)test_[^/]*\.py$|\.(spec|test)\.[jt]sx?$`)

// IsTestFile reports whether path looks like a test source.
func IsTestFile(path string) bool {
	return testFileRe.MatchString(filepath.ToSlash(path))
}

// editor accumulates one generator run's output. It claims every line a
// patch covers so that a later patch on the same line is dropped instead
// of producing an overlap.
type editor struct {
	key     Key
	out     Output
	claimed map[string]map[int]bool
}

func newEditor(k Key) *editor {
	return &editor{key: k, claimed: make(map[string]map[int]bool)}
}

// run calls fn for sym and turns an error into a generation_failed note.
func (e *editor) run(sym *graph.Symbol, fn func() error) {
	if err := fn(); err != nil {
		e.out.Notes = append(e.out.Notes, change.Warning(change.CodeGenerationFailed, sym.ID, sym.File,
			"%s generator: %v", e.key, err))
	}
}

func (e *editor) free(file string, start, end int) bool {
	lines := e.claimed[file]
	for n := start; n <= end; n++ {
		if lines[n] {
			return false
		}
	}
	return true
}

func (e *editor) emit(sym *graph.Symbol, p change.Patch) bool {
	if !e.free(p.File, p.LineStart, p.LineEnd) {
		return false
	}
	lines := e.claimed[p.File]
	if lines == nil {
		lines = make(map[int]bool)
		e.claimed[p.File] = lines
	}
	for n := p.LineStart; n <= p.LineEnd; n++ {
		lines[n] = true
	}
	p.SymbolID = sym.ID
	p.Generator = e.key.String()
	e.out.Patches = append(e.out.Patches, p)
	return true
}

func (e *editor) note(n change.Note) {
	e.out.Notes = append(e.out.Notes, n)
}

// tokenMap maps identifier tokens to replacements.
type tokenMap map[string]string

// add records old->new unless old is already mapped or unchanged.
func (m tokenMap) add(old, repl string) {
	if old == "" || old == repl {
		return
	}
	if _, ok := m[old]; !ok {
		m[old] = repl
	}
}

func (m tokenMap) lookup(tok string) (string, bool) {
	r, ok := m[tok]
	return r, ok
}

func (m tokenMap) has(tok string) bool {
	_, ok := m[tok]
	return ok
}

// clamp limits [start, end] to a file of n lines.
func clamp(start, end, n int) (int, int) {
	if start < 1 {
		start = 1
	}
	if end > n {
		end = n
	}
	return start, end
}

// indentOf returns the leading whitespace of line.
func indentOf(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// bodyIndent returns the indentation of the first non-blank line strictly
// inside [start, end], or the opening line's indentation plus def.
func bodyIndent(src []string, start, end int, def string) string {
	for n := start + 1; n < end && n <= len(src); n++ {
		if strings.TrimSpace(src[n-1]) != "" {
			return indentOf(src[n-1])
		}
	}
	if start >= 1 && start <= len(src) {
		return indentOf(src[start-1]) + def
	}
	return def
}

// renameLines emits one patch per line in [start, end] of sym.File that
// contains a mapped token.
func renameLines(e *editor, in Input, sym *graph.Symbol, start, end int, fn func(string) (string, bool)) error {
	src, err := in.Lines(sym.File)
	if err != nil {
		return err
	}
	start, end = clamp(start, end, len(src))
	desc := fmt.Sprintf("rename %s to %s", in.Change.Params.OldName, in.Change.Params.NewName)
	for n := start; n <= end; n++ {
		if !e.free(sym.File, n, n) {
			continue
		}
		repl, count := naming.ReplaceTokens(src[n-1], fn)
		if count == 0 {
			continue
		}
		p, err := change.Replace(sym.File, src, n, n, []string{repl}, desc)
		if err != nil {
			return err
		}
		e.emit(sym, p)
	}
	return nil
}

// deleteMatching emits a deletion for each unclaimed line in [start, end]
// of sym.File holding a token for which match is true.
func deleteMatching(e *editor, in Input, sym *graph.Symbol, start, end int, match func(string) bool) error {
	src, err := in.Lines(sym.File)
	if err != nil {
		return err
	}
	start, end = clamp(start, end, len(src))
	desc := fmt.Sprintf("remove reference to %s", in.Change.Params.Name)
	for n := start; n <= end; n++ {
		if !e.free(sym.File, n, n) || !naming.HasToken(src[n-1], match) {
			continue
		}
		p, err := change.Delete(sym.File, src, n, n, desc)
		if err != nil {
			return err
		}
		e.emit(sym, p)
	}
	return nil
}

// deleteRange emits one deletion for [start, end] of sym.File.
func deleteRange(e *editor, in Input, sym *graph.Symbol, start, end int, desc string) error {
	src, err := in.Lines(sym.File)
	if err != nil {
		return err
	}
	start, end = clamp(start, end, len(src))
	if !e.free(sym.File, start, end) {
		return nil
	}
	p, err := change.Delete(sym.File, src, start, end, desc)
	if err != nil {
		return err
	}
	e.emit(sym, p)
	return nil
}

// warnIfTest records a test_reference warning for removals inside test
// files and reports whether the symbol must be skipped.
func warnIfTest(e *editor, in Input, sym *graph.Symbol) bool {
	if in.Change.Kind != change.RemoveField || !IsTestFile(sym.File) {
		return false
	}
	e.note(testReference(in.Change, sym))
	return true
}

func testReference(c change.Spec, sym *graph.Symbol) change.Note {
	return change.Warning(change.CodeTestReference, sym.ID, sym.File,
		"%s references removed field %s in a test; review assertions by hand", sym.QualifiedName, c.Params.Name)
}

// alreadyDefined reports whether container already defines a child field
// equivalent to name.
func alreadyDefined(in Input, container *graph.Symbol, name string) bool {
	for _, c := range in.Children(container) {
		if equivalentField(c, name) {
			return true
		}
	}
	return false
}

// equivalentField reports whether sym is a data member named like name.
func equivalentField(sym *graph.Symbol, name string) bool {
	switch sym.Kind {
	case graph.KindField, graph.KindColumn, graph.KindUIBinding:
		return naming.Equivalent(sym.Name, name)
	}
	return false
}

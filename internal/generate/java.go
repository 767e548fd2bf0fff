package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/jward/ripple/internal/change"
	"github.com/jward/ripple/internal/graph"
	"github.com/jward/ripple/internal/naming"
	"github.com/jward/ripple/internal/typemap"
)

// Java emits annotated fields with getters and setters, accessor-aware
// renames and whole-method accessor removal.
type Java struct{}

func (Java) Key() Key { return Key{Language: "java"} }

func (g Java) Generate(_ context.Context, in Input) (Output, error) {
	e := newEditor(g.Key())
	for _, sym := range in.Symbols {
		if warnIfTest(e, in, sym) {
			continue
		}
		e.run(sym, func() error {
			switch in.Change.Kind {
			case change.AddField:
				return g.add(e, in, sym)
			case change.RenameField:
				return g.rename(e, in, sym)
			case change.RemoveField:
				return g.remove(e, in, sym)
			}
			return fmt.Errorf("unsupported change kind %q", in.Change.Kind)
		})
	}
	return e.out, nil
}

// javaTokens maps the camelCase field, its get/set/is accessors and its
// UPPER_SNAKE constant or column name.
func javaTokens(old, repl string) tokenMap {
	m := tokenMap{}
	m.add(naming.Camel.Apply(old), naming.Camel.Apply(repl))
	for _, prefix := range []string{"get", "set", "is"} {
		m.add(prefix+naming.Pascal.Apply(old), prefix+naming.Pascal.Apply(repl))
	}
	m.add(naming.UpperSnake.Apply(old), naming.UpperSnake.Apply(repl))
	return m
}

func isORM(sym *graph.Symbol) bool {
	return sym.Kind == graph.KindEntity || sym.Attr("orm") != ""
}

func (Java) add(e *editor, in Input, sym *graph.Symbol) error {
	p := in.Change.Params
	name, _ := in.Change.NameIn(naming.Camel)
	if alreadyDefined(in, sym, name) {
		e.note(change.Info(change.CodeAlreadyDefined, sym.ID, sym.File, "%s already defines %s", sym.QualifiedName, name))
		return nil
	}
	src, err := in.Lines(sym.File)
	if err != nil {
		return err
	}
	typ, err := typemap.Native(typemap.Java, p.Type, p.Length)
	if err != nil {
		return err
	}

	ind := bodyIndent(src, sym.LineStart, sym.LineEnd, "    ")
	step := strings.Repeat(" ", 4)
	if strings.HasPrefix(ind, "\t") {
		step = "\t"
	}
	pascal := naming.Pascal.Apply(p.Name)

	lines := []string{""}
	if isORM(sym) {
		col := naming.UpperSnake.Apply(p.Name)
		if p.Nullable || p.Length > 0 {
			var attrs []string
			attrs = append(attrs, fmt.Sprintf("name = %q", col))
			if p.Nullable {
				attrs = append(attrs, "nullable = true")
			}
			if p.Length > 0 && typemap.Normalize(p.Type) == "string" {
				attrs = append(attrs, fmt.Sprintf("length = %d", p.Length))
			}
			lines = append(lines, ind+"@Column("+strings.Join(attrs, ", ")+")")
		} else {
			lines = append(lines, ind+fmt.Sprintf("@Column(name = %q)", col))
		}
	}
	lines = append(lines,
		ind+fmt.Sprintf("private %s %s;", typ, name),
		"",
		ind+fmt.Sprintf("public %s get%s() {", typ, pascal),
		ind+step+fmt.Sprintf("return %s;", name),
		ind+"}",
		"",
		ind+fmt.Sprintf("public void set%s(%s %s) {", pascal, typ, name),
		ind+step+fmt.Sprintf("this.%s = %s;", name, name),
		ind+"}",
	)

	patch, err := change.InsertBefore(sym.File, src, sym.LineEnd, lines,
		fmt.Sprintf("add field %s with accessors to %s", name, sym.Name))
	if err != nil {
		return err
	}
	e.emit(sym, patch)
	return nil
}

// scope returns the lines a rename or removal scans for sym: the enclosing
// class for a field, so accessors and constructor assignments are covered,
// and the symbol itself otherwise.
func (Java) scope(in Input, sym *graph.Symbol) (int, int) {
	if sym.Kind == graph.KindField {
		if parent := in.Parent(sym); parent != nil && parent.File == sym.File {
			return parent.LineStart, parent.LineEnd
		}
	}
	return sym.LineStart, sym.LineEnd
}

func (g Java) rename(e *editor, in Input, sym *graph.Symbol) error {
	m := javaTokens(in.Change.Params.OldName, in.Change.Params.NewName)
	start, end := g.scope(in, sym)
	return renameLines(e, in, sym, start, end, m.lookup)
}

func (g Java) remove(e *editor, in Input, sym *graph.Symbol) error {
	name := in.Change.Params.Name
	m := javaTokens(name, "")

	if field := g.field(in, sym, name); field != nil {
		src, err := in.Lines(field.File)
		if err != nil {
			return err
		}
		start := annotatedStart(src, field.LineStart)
		if err := deleteRange(e, in, field, start, field.LineEnd, "remove field "+field.Name); err != nil {
			return err
		}
		if parent := in.Parent(field); parent != nil {
			for _, c := range in.Children(parent) {
				if c.Kind != graph.KindMethod || !m.has(c.Name) || c.File != field.File {
					continue
				}
				start := annotatedStart(src, c.LineStart)
				if start > 1 && strings.TrimSpace(src[start-2]) == "" {
					start--
				}
				if err := deleteRange(e, in, c, start, c.LineEnd, "remove accessor "+c.Name); err != nil {
					return err
				}
			}
		}
	}

	start, end := g.scope(in, sym)
	return deleteMatching(e, in, sym, start, end, m.has)
}

// field returns sym when it is the named field, or the same-file field of
// that name sym defines.
func (Java) field(in Input, sym *graph.Symbol, name string) *graph.Symbol {
	if equivalentField(sym, name) {
		return sym
	}
	for _, c := range in.Children(sym) {
		if c.Kind == graph.KindField && c.File == sym.File && equivalentField(c, name) {
			return c
		}
	}
	return nil
}

// annotatedStart walks back from line n over annotation lines directly
// above it.
func annotatedStart(src []string, n int) int {
	for n > 1 && strings.HasPrefix(strings.TrimSpace(src[n-2]), "@") {
		n--
	}
	return n
}

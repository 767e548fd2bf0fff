package generate

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jward/ripple/internal/change"
	"github.com/jward/ripple/internal/graph"
	"github.com/jward/ripple/internal/naming"
	"github.com/jward/ripple/internal/typemap"
)

// Python emits annotated class attributes suitable for dataclasses and
// Pydantic models, using snake_case names.
type Python struct{}

func (Python) Key() Key { return Key{Language: "python"} }

func (g Python) Generate(_ context.Context, in Input) (Output, error) {
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
				m := pythonTokens(in.Change.Params.OldName, in.Change.Params.NewName)
				return renameLines(e, in, sym, sym.LineStart, sym.LineEnd, m.lookup)
			case change.RemoveField:
				return g.remove(e, in, sym)
			}
			return fmt.Errorf("unsupported change kind %q", in.Change.Kind)
		})
	}
	return e.out, nil
}

func pythonTokens(old, repl string) tokenMap {
	m := tokenMap{}
	m.add(naming.Snake.Apply(old), naming.Snake.Apply(repl))
	m.add(naming.UpperSnake.Apply(old), naming.UpperSnake.Apply(repl))
	return m
}

func (Python) add(e *editor, in Input, sym *graph.Symbol) error {
	p := in.Change.Params
	name, _ := in.Change.NameIn(naming.Snake)
	src, err := in.Lines(sym.File)
	if err != nil {
		return err
	}
	attr := regexp.MustCompile(`^\s+` + regexp.QuoteMeta(name) + `\s*:`)
	if alreadyDefined(in, sym, name) || anyLine(src, sym.LineStart, sym.LineEnd, attr) {
		e.note(change.Info(change.CodeAlreadyDefined, sym.ID, sym.File, "%s already defines %s", sym.QualifiedName, name))
		return nil
	}
	typ, err := typemap.Native(typemap.Python, p.Type, p.Length)
	if err != nil {
		return err
	}

	decl := fmt.Sprintf("%s: %s", name, typ)
	if p.Nullable {
		decl = fmt.Sprintf("%s: Optional[%s] = None", name, typ)
	}
	ind := bodyIndent(src, sym.LineStart, sym.LineEnd+1, "    ")

	patch, err := change.InsertAfter(sym.File, src, sym.LineEnd, []string{ind + decl},
		fmt.Sprintf("add attribute %s to %s", name, sym.Name))
	if err != nil {
		return err
	}
	e.emit(sym, patch)

	if imports := missingImports(src, typemap.Normalize(p.Type), p.Nullable); len(imports) > 0 && sym.LineEnd > 1 {
		patch, err := change.InsertBefore(sym.File, src, 1, imports, "import types used by "+name)
		if err != nil {
			return err
		}
		e.emit(sym, patch)
	}
	return nil
}

var pythonImports = map[string][2]string{
	"date":     {"date", "from datetime import date"},
	"datetime": {"datetime", "from datetime import datetime"},
	"decimal":  {"Decimal", "from decimal import Decimal"},
	"uuid":     {"UUID", "from uuid import UUID"},
}

// missingImports returns the import lines a new attribute needs that src
// does not already have.
func missingImports(src []string, generic string, nullable bool) []string {
	var need [][2]string
	if imp, ok := pythonImports[generic]; ok {
		need = append(need, imp)
	}
	if nullable {
		need = append(need, [2]string{"Optional", "from typing import Optional"})
	}
	var out []string
	for _, imp := range need {
		re := regexp.MustCompile(`^\s*(from\s+\S+\s+)?import\s+.*\b` + imp[0] + `\b`)
		found := false
		for _, line := range src {
			if re.MatchString(line) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, imp[1])
		}
	}
	return out
}

func (Python) remove(e *editor, in Input, sym *graph.Symbol) error {
	m := pythonTokens(in.Change.Params.Name, "")
	if equivalentField(sym, in.Change.Params.Name) {
		if err := deleteRange(e, in, sym, sym.LineStart, sym.LineEnd, "remove attribute "+sym.Name); err != nil {
			return err
		}
	}
	return deleteMatching(e, in, sym, sym.LineStart, sym.LineEnd, m.has)
}

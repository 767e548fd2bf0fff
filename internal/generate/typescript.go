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

// TypeScript emits interface or class properties with camelCase names.
type TypeScript struct{}

func (TypeScript) Key() Key { return Key{Language: "typescript"} }

func (g TypeScript) Generate(_ context.Context, in Input) (Output, error) {
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
				m := camelTokens(in.Change.Params.OldName, in.Change.Params.NewName)
				return renameLines(e, in, sym, sym.LineStart, sym.LineEnd, m.lookup)
			case change.RemoveField:
				m := camelTokens(in.Change.Params.Name, "")
				if equivalentField(sym, in.Change.Params.Name) {
					if err := deleteRange(e, in, sym, sym.LineStart, sym.LineEnd, "remove property "+sym.Name); err != nil {
						return err
					}
				}
				return deleteMatching(e, in, sym, sym.LineStart, sym.LineEnd, m.has)
			}
			return fmt.Errorf("unsupported change kind %q", in.Change.Kind)
		})
	}
	return e.out, nil
}

func camelTokens(old, repl string) tokenMap {
	m := tokenMap{}
	m.add(naming.Camel.Apply(old), naming.Camel.Apply(repl))
	return m
}

func (TypeScript) add(e *editor, in Input, sym *graph.Symbol) error {
	p := in.Change.Params
	name, _ := in.Change.NameIn(naming.Camel)
	src, err := in.Lines(sym.File)
	if err != nil {
		return err
	}
	re := regexp.MustCompile(`^\s*(readonly\s+)?` + regexp.QuoteMeta(name) + `\??\s*:`)
	if alreadyDefined(in, sym, name) || anyLine(src, sym.LineStart, sym.LineEnd, re) {
		e.note(change.Info(change.CodeAlreadyDefined, sym.ID, sym.File, "%s already defines %s", sym.QualifiedName, name))
		return nil
	}
	typ, err := typemap.Native(typemap.TypeScript, p.Type, p.Length)
	if err != nil {
		return err
	}

	decl := fmt.Sprintf("%s: %s;", name, typ)
	if p.Nullable {
		decl = fmt.Sprintf("%s?: %s;", name, typ)
	}
	ind := bodyIndent(src, sym.LineStart, sym.LineEnd, "  ")

	patch, err := change.InsertBefore(sym.File, src, sym.LineEnd, []string{ind + decl},
		fmt.Sprintf("add property %s to %s", name, sym.Name))
	if err != nil {
		return err
	}
	e.emit(sym, patch)
	return nil
}

func anyLine(src []string, start, end int, re *regexp.Regexp) bool {
	start, end = clamp(start, end, len(src))
	for n := start; n <= end; n++ {
		if re.MatchString(src[n-1]) {
			return true
		}
	}
	return false
}

package generate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jward/ripple/internal/change"
	"github.com/jward/ripple/internal/graph"
	"github.com/jward/ripple/internal/naming"
	"github.com/jward/ripple/internal/typemap"
)

// JSP emits Spring form tag bindings inside a form.
type JSP struct{}

func (JSP) Key() Key { return Key{Language: "jsp"} }

func (g JSP) Generate(_ context.Context, in Input) (Output, error) {
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
					if err := deleteRange(e, in, sym, sym.LineStart, sym.LineEnd, "remove binding "+sym.Name); err != nil {
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

// Label returns a human label for a field name: "orderStatus" -> "Order Status".
func Label(name string) string {
	words := strings.Split(naming.Snake.Apply(name), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func (JSP) add(e *editor, in Input, sym *graph.Symbol) error {
	p := in.Change.Params
	name, _ := in.Change.NameIn(naming.Camel)
	src, err := in.Lines(sym.File)
	if err != nil {
		return err
	}
	bound := regexp.MustCompile(`path\s*=\s*"` + regexp.QuoteMeta(name) + `"`)
	if alreadyDefined(in, sym, name) || anyLine(src, sym.LineStart, sym.LineEnd, bound) {
		e.note(change.Info(change.CodeAlreadyDefined, sym.ID, sym.File, "%s already binds %s", sym.QualifiedName, name))
		return nil
	}
	input, err := typemap.Native(typemap.JSP, p.Type, p.Length)
	if err != nil {
		return err
	}

	var tag string
	switch input {
	case "checkbox":
		tag = fmt.Sprintf(`<form:checkbox path="%s"/>`, name)
	case "textarea":
		tag = fmt.Sprintf(`<form:textarea path="%s"/>`, name)
	case "text":
		tag = fmt.Sprintf(`<form:input path="%s"/>`, name)
	default:
		tag = fmt.Sprintf(`<form:input path="%s" type="%s"/>`, name, input)
	}
	ind := bodyIndent(src, sym.LineStart, sym.LineEnd, "  ")
	lines := []string{
		ind + fmt.Sprintf(`<form:label path="%s">%s</form:label>`, name, Label(p.Name)),
		ind + tag,
	}

	patch, err := change.InsertBefore(sym.File, src, sym.LineEnd, lines,
		fmt.Sprintf("bind %s in form %s", name, sym.Name))
	if err != nil {
		return err
	}
	e.emit(sym, patch)
	return nil
}

package runtime

import (
	"context"
	"fmt"

	"github.com/risor-io/risor/object"

	"github.com/jward/ripple/internal/graph"
)

// makeSymbolFn creates the "symbol" host function.
//
// symbol(id) → map or nil
func makeSymbolFn(snap *graph.Snapshot) *object.Builtin {
	return object.NewBuiltin("symbol", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("symbol", 1, len(args))
		}
		id, err := toString(args[0])
		if err != nil {
			return object.Errorf("symbol: %v", err)
		}
		if snap == nil {
			return object.Nil
		}
		s, ok := snap.Symbol(id)
		if !ok {
			return object.Nil
		}
		return symbolToMap(s)
	})
}

// makeEdgeWalkFn creates "children" or "parent", which follow DEFINES edges
// out of or into a symbol.
//
// children(id) → []map
// parent(id) → map or nil
func makeEdgeWalkFn(name string, snap *graph.Snapshot, outgoing bool) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		id, err := toString(args[0])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}

		var syms []*graph.Symbol
		if snap != nil {
			if outgoing {
				for _, e := range snap.Outgoing(id, graph.EdgeDefines) {
					if s, ok := snap.Symbol(e.To); ok {
						syms = append(syms, s)
					}
				}
			} else {
				for _, e := range snap.Incoming(id, graph.EdgeDefines) {
					if s, ok := snap.Symbol(e.From); ok {
						syms = append(syms, s)
					}
				}
			}
		}
		graph.SortSymbols(syms)

		if !outgoing {
			if len(syms) == 0 {
				return object.Nil
			}
			return symbolToMap(syms[0])
		}
		return symbolsToList(syms)
	})
}

func symbolToMap(s *graph.Symbol) object.Object {
	attrs := make(map[string]object.Object, len(s.Attributes))
	for k, v := range s.Attributes {
		attrs[k] = object.NewString(v)
	}
	return object.NewMap(map[string]object.Object{
		"id":             object.NewString(s.ID),
		"name":           object.NewString(s.Name),
		"qualified_name": object.NewString(s.QualifiedName),
		"kind":           object.NewString(string(s.Kind)),
		"language":       object.NewString(s.Language),
		"dialect":        object.NewString(s.Dialect),
		"file":           object.NewString(s.File),
		"line_start":     object.NewInt(int64(s.LineStart)),
		"line_end":       object.NewInt(int64(s.LineEnd)),
		"attributes":     object.NewMap(attrs),
	})
}

func symbolsToList(syms []*graph.Symbol) object.Object {
	items := make([]object.Object, len(syms))
	for i, s := range syms {
		items[i] = symbolToMap(s)
	}
	return object.NewList(items)
}

func linesToList(lines []string) object.Object {
	items := make([]object.Object, len(lines))
	for i, l := range lines {
		items[i] = object.NewString(l)
	}
	return object.NewList(items)
}

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if s, ok := v.(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getInt(m map[string]object.Object, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	if i, ok := v.(*object.Int); ok {
		return int(i.Value())
	}
	if f, ok := v.(*object.Float); ok {
		return int(f.Value())
	}
	return 0
}

// getLines accepts either a string (split on newlines) or a list of strings.
func getLines(m map[string]object.Object, key string) ([]string, bool, error) {
	v, ok := m[key]
	if !ok || v == object.Nil {
		return nil, false, nil
	}
	switch t := v.(type) {
	case *object.String:
		if t.Value() == "" {
			return nil, true, nil
		}
		return splitLines(t.Value()), true, nil
	case *object.List:
		var out []string
		for _, item := range t.Value() {
			s, err := toString(item)
			if err != nil {
				return nil, false, fmt.Errorf("%s: %w", key, err)
			}
			out = append(out, s)
		}
		return out, true, nil
	}
	return nil, false, fmt.Errorf("%s: expected string or list, got %s", key, v.Type())
}

func toString(obj object.Object) (string, error) {
	s, ok := obj.(*object.String)
	if !ok {
		return "", fmt.Errorf("expected string, got %s", obj.Type())
	}
	return s.Value(), nil
}

package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/ripple/internal/change"
	"github.com/jward/ripple/internal/graph"
)

// GeneratorRequest is the input of one script generator run.
type GeneratorRequest struct {
	Language string
	Dialect  string
	Change   change.Spec
	Symbols  []*graph.Symbol
	Sources  map[string][]string
	Snapshot *graph.Snapshot
}

// target is the typemap target a script's native_type defaults to.
func (r GeneratorRequest) target() string {
	if r.Dialect != "" {
		return r.Language + "/" + r.Dialect
	}
	return r.Language
}

// GeneratorResult collects what a script emitted.
type GeneratorResult struct {
	Patches []change.Patch
	Notes   []change.Note
}

// RunGenerator runs the generator script for req's language and dialect.
//
// Scripts see these globals in addition to the standard ones:
//
//	change    map of kind, target_symbol_id, name, type, old_name, new_name, nullable, length
//	symbols   list of symbol maps to edit
//	sources   map of file path to list of lines
//	symbol, parent, children   snapshot lookups by symbol id
//	native_type(generic [, target [, length]])
//	emit(map)  records a patch; keys file, line_start, line_end, new_text,
//	           description, symbol_id and optional op (replace, insert_before,
//	           insert_after, delete)
//	note(code, message [, symbol_id])  records a warning
//
// Old text is taken from sources, so a script cannot emit a patch whose
// old_text disagrees with the file.
func (r *Runtime) RunGenerator(ctx context.Context, req GeneratorRequest) (GeneratorResult, error) {
	key := req.Language
	if req.Dialect != "" {
		key += "/" + req.Dialect
	}

	var res GeneratorResult
	globals := map[string]any{
		"change":      changeToMap(req.Change),
		"symbols":     symbolsToList(req.Symbols),
		"sources":     sourcesToMap(req.Sources),
		"symbol":      makeSymbolFn(req.Snapshot),
		"parent":      makeEdgeWalkFn("parent", req.Snapshot, false),
		"children":    makeEdgeWalkFn("children", req.Snapshot, true),
		"native_type": makeNativeTypeFn(req.target()),
		"emit":        makeEmitFn(key, req.Sources, &res),
		"note":        makeNoteFn(&res),
	}

	if err := r.RunScript(ctx, GeneratorScriptPath(key), globals); err != nil {
		return GeneratorResult{}, err
	}
	r.logger.Debug("generator script finished", "generator", key, "result", res.String())
	return res, nil
}

func changeToMap(c change.Spec) object.Object {
	p := c.Params
	return object.NewMap(map[string]object.Object{
		"kind":             object.NewString(string(c.Kind)),
		"target_symbol_id": object.NewString(c.Target),
		"name":             object.NewString(p.Name),
		"type":             object.NewString(p.Type),
		"old_name":         object.NewString(p.OldName),
		"new_name":         object.NewString(p.NewName),
		"nullable":         object.NewBool(p.Nullable),
		"length":           object.NewInt(int64(p.Length)),
	})
}

func sourcesToMap(src map[string][]string) object.Object {
	m := make(map[string]object.Object, len(src))
	for file, lines := range src {
		m[file] = linesToList(lines)
	}
	return object.NewMap(m)
}

// makeEmitFn creates the "emit" host function.
//
// emit({file, line_start, line_end, new_text, description, symbol_id, op})
func makeEmitFn(generator string, sources map[string][]string, res *GeneratorResult) *object.Builtin {
	return object.NewBuiltin("emit", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("emit", 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("emit: %v", err)
		}

		file := getString(m, "file")
		src, ok := sources[file]
		if !ok {
			return object.Errorf("emit: source for %q not loaded", file)
		}
		start := getInt(m, "line_start")
		end := getInt(m, "line_end")
		if end == 0 {
			end = start
		}
		lines, _, err := getLines(m, "new_text")
		if err != nil {
			return object.Errorf("emit: %v", err)
		}
		desc := getString(m, "description")

		var p change.Patch
		switch op := getString(m, "op"); op {
		case "", "replace":
			p, err = change.Replace(file, src, start, end, lines, desc)
		case "insert_before":
			p, err = change.InsertBefore(file, src, start, lines, desc)
		case "insert_after":
			p, err = change.InsertAfter(file, src, start, lines, desc)
		case "delete":
			p, err = change.Delete(file, src, start, end, desc)
		default:
			return object.Errorf("emit: unknown op %q", op)
		}
		if err != nil {
			return object.Errorf("emit: %v", err)
		}
		p.SymbolID = getString(m, "symbol_id")
		p.Generator = generator
		res.Patches = append(res.Patches, p)
		return object.Nil
	})
}

// makeNoteFn creates the "note" host function.
//
// note(code, message [, symbol_id])
func makeNoteFn(res *GeneratorResult) *object.Builtin {
	return object.NewBuiltin("note", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 2 || len(args) > 3 {
			return object.Errorf("note: expected 2 or 3 arguments, got %d", len(args))
		}
		code, err := toString(args[0])
		if err != nil {
			return object.Errorf("note: code: %v", err)
		}
		msg, err := toString(args[1])
		if err != nil {
			return object.Errorf("note: message: %v", err)
		}
		var id string
		if len(args) == 3 {
			if id, err = toString(args[2]); err != nil {
				return object.Errorf("note: symbol_id: %v", err)
			}
		}
		res.Notes = append(res.Notes, change.Warning(change.Code(code), id, "", "%s", msg))
		return object.Nil
	})
}

func splitLines(s string) []string {
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// String renders a result summary for logs.
func (r GeneratorResult) String() string {
	return fmt.Sprintf("%d patches, %d notes", len(r.Patches), len(r.Notes))
}

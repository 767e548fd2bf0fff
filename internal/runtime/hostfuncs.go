package runtime

import (
	"context"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/ripple/internal/naming"
	"github.com/jward/ripple/internal/typemap"
)

// parsedTree is the source and grammar behind one parse_src result.
type parsedTree struct {
	src  []byte
	lang *sitter.Language
}

// sourceStore maps the root node of every tree a script parsed to its
// source. smacker/go-tree-sitter has no Node.Tree(), so lookups walk a node
// up to its root first.
type sourceStore struct {
	mu    sync.RWMutex
	trees map[uintptr]parsedTree
}

func newSourceStore() *sourceStore {
	return &sourceStore{trees: make(map[uintptr]parsedTree)}
}

func nodeKey(n *sitter.Node) uintptr {
	for n.Parent() != nil {
		n = n.Parent()
	}
	return uintptr(unsafe.Pointer(n))
}

func (s *sourceStore) add(tree *sitter.Tree, pt parsedTree) {
	s.mu.Lock()
	s.trees[nodeKey(tree.RootNode())] = pt
	s.mu.Unlock()
}

func (s *sourceStore) lookup(n *sitter.Node) (parsedTree, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pt, ok := s.trees[nodeKey(n)]
	return pt, ok
}

func stringArg(fn string, obj object.Object, what string) (string, *object.Error) {
	str, ok := obj.(*object.String)
	if !ok {
		return "", object.Errorf("%s: %s must be a string, got %s", fn, what, obj.Type())
	}
	return str.Value(), nil
}

func nodeArg(fn string, obj object.Object) (*sitter.Node, *object.Error) {
	proxy, ok := obj.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected proxy (Node), got %s", fn, obj.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected *sitter.Node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

// proxyNode wraps n for Risor. A nil node becomes Risor nil, not a proxied
// Go nil pointer.
func proxyNode(fn string, n *sitter.Node) object.Object {
	if n == nil {
		return object.Nil
	}
	p, err := object.NewProxy(n)
	if err != nil {
		return object.Errorf("%s: proxy error: %v", fn, err)
	}
	return p
}

// makeParseSrcFn creates "parse_src". Generators parse the lines the engine
// loaded for a file, never the file on disk.
//
// parse_src(source, language) → *sitter.Tree
func makeParseSrcFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("parse_src", 2, len(args))
		}
		src, errObj := stringArg("parse_src", args[0], "source")
		if errObj != nil {
			return errObj
		}
		langName, errObj := stringArg("parse_src", args[1], "language")
		if errObj != nil {
			return errObj
		}
		lang, found := ParserForLanguage(langName)
		if !found {
			return object.Errorf("parse_src: unsupported language %q", langName)
		}

		parser := sitter.NewParser()
		defer parser.Close()
		parser.SetLanguage(lang)
		tree, err := parser.ParseCtx(ctx, nil, []byte(src))
		if err != nil {
			return object.Errorf("parse_src: %v", err)
		}
		ss.add(tree, parsedTree{src: []byte(src), lang: lang})

		proxy, err := object.NewProxy(tree)
		if err != nil {
			return object.Errorf("parse_src: proxy error: %v", err)
		}
		return proxy
	})
}

// makeNodeTextFn creates "node_text". Risor proxies cannot pass a []byte to
// node.Content, so the source is supplied from the store.
//
// node_text(node) → string
func makeNodeTextFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		pt, ok := ss.lookup(node)
		if !ok {
			return object.Errorf("node_text: node does not belong to a parse_src tree")
		}
		return object.NewString(node.Content(pt.src))
	})
}

// makeQueryFn creates "query". Every match becomes a map from capture name
// to node.
//
// query(pattern, node) → []map[string]Node
func makeQueryFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, errObj := stringArg("query", args[0], "pattern")
		if errObj != nil {
			return errObj
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		pt, ok := ss.lookup(node)
		if !ok {
			return object.Errorf("query: node does not belong to a parse_src tree")
		}

		q, err := sitter.NewQuery([]byte(pattern), pt.lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()
		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		matches := []object.Object{}
		for {
			m, ok := cursor.NextMatch()
			if !ok {
				break
			}
			m = cursor.FilterPredicates(m, pt.src)
			captures := make(map[string]object.Object, len(m.Captures))
			for _, c := range m.Captures {
				captures[q.CaptureNameForId(c.Index)] = proxyNode("query", c.Node)
			}
			matches = append(matches, object.NewMap(captures))
		}
		return object.NewList(matches)
	})
}

// makeNodeChildFn creates "node_child", ChildByFieldName returning nil for a
// missing field.
//
// node_child(node, field) → Node or nil
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, errObj := stringArg("node_child", args[1], "field")
		if errObj != nil {
			return errObj
		}
		return proxyNode("node_child", node.ChildByFieldName(field))
	})
}

// makeCaseFn creates a naming helper such as "to_snake".
//
// to_snake(name) → string
func makeCaseFn(name string, conv naming.Convention) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		str, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("%s: expected string, got %s", name, args[0].Type())
		}
		return object.NewString(conv.Apply(str.Value()))
	})
}

// makeReplaceIdentFn creates "replace_ident", which replaces whole
// identifier occurrences only.
//
// replace_ident(line, old, new) → string
func makeReplaceIdentFn() *object.Builtin {
	return object.NewBuiltin("replace_ident", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 3 {
			return object.NewArgsError("replace_ident", 3, len(args))
		}
		var strs [3]string
		for i, a := range args {
			str, ok := a.(*object.String)
			if !ok {
				return object.Errorf("replace_ident: argument %d must be a string, got %s", i+1, a.Type())
			}
			strs[i] = str.Value()
		}
		out, _ := naming.ReplaceIdent(strs[0], strs[1], strs[2])
		return object.NewString(out)
	})
}

// makeContainsIdentFn creates "contains_ident".
//
// contains_ident(line, ident) → bool
func makeContainsIdentFn() *object.Builtin {
	return object.NewBuiltin("contains_ident", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("contains_ident", 2, len(args))
		}
		line, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("contains_ident: line must be a string, got %s", args[0].Type())
		}
		ident, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("contains_ident: ident must be a string, got %s", args[1].Type())
		}
		return object.NewBool(naming.ContainsIdent(line.Value(), ident.Value()))
	})
}

// makeNativeTypeFn creates "native_type", bound to the running generator's
// target when the script omits one.
//
// native_type(generic [, target [, length]]) → string
func makeNativeTypeFn(defaultTarget string) *object.Builtin {
	return object.NewBuiltin("native_type", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 3 {
			return object.Errorf("native_type: expected 1 to 3 arguments, got %d", len(args))
		}
		generic, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("native_type: type must be a string, got %s", args[0].Type())
		}
		target := defaultTarget
		if len(args) > 1 {
			t, ok := args[1].(*object.String)
			if !ok {
				return object.Errorf("native_type: target must be a string, got %s", args[1].Type())
			}
			target = t.Value()
		}
		length := 0
		if len(args) > 2 {
			l, ok := args[2].(*object.Int)
			if !ok {
				return object.Errorf("native_type: length must be an int, got %s", args[2].Type())
			}
			length = int(l.Value())
		}
		native, err := typemap.Native(target, generic.Value(), length)
		if err != nil {
			return object.Errorf("native_type: %v", err)
		}
		return object.NewString(native)
	})
}

// logObject provides log.info/warn/error methods for Risor scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg, "source", "script")
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg, "source", "script")
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg, "source", "script")
}

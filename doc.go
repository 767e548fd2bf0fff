// Package ripple propagates one logical change (add, rename or remove a
// field) through every layer of a codebase that refers to it: entity
// classes, ORM mappings, SQL migrations, UI bindings and tests, across
// languages.
//
// # Pipeline
//
// An external indexer publishes a symbol graph; ripple never parses source
// to build it.
//
//  1. Publish: symbols and typed edges are stored in SQLite and swapped in
//     as an immutable, versioned snapshot.
//
//  2. Plan: the planner walks REFERENCES, DERIVED_FROM and MAPPED_TO edges
//     out from the target symbol and grades the blast radius LOW, MEDIUM or
//     HIGH.
//
//  3. Generate: per-language generators (Java, Python, TypeScript, JSP and
//     four SQL dialects, plus Risor scripts) turn the plan into line
//     patches collected in a Manifest.
//
//  4. Apply: the manifest is validated for overlaps, every patch is checked
//     against the file on disk, and files are rewritten.
//
// # Usage
//
//	e, err := ripple.New("ripple.db", ripple.WithRoot("path/to/project"))
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	_, err = e.Publish(ctx, symbols, edges, "")
//
//	spec := ripple.ChangeSpec{
//		Kind:   ripple.AddField,
//		Target: ripple.StableID("src/User.java", "com.acme.User"),
//		Params: ripple.Params{Name: "email", Type: "string"},
//	}
//	plan, err := e.Plan(ctx, spec)
//	m, err := e.Generate(ctx, spec, plan)
//	res, err := e.Apply(ctx, m, ripple.ApplyOptions{CheckSyntax: true})
//
// # Query API
//
// The [QueryClient] returned by [Engine.Query] provides:
//
//   - [QueryClient.LookupDefinition]: where a name is defined, with a
//     documented tie-break when several symbols match.
//   - [QueryClient.SymbolDependencies]: symbols and edges filtered by kind,
//     language domain and path pattern.
//   - [QueryClient.CallChain]: callers and callees of a symbol, breadth
//     first and cycle safe.
//
// # Errors
//
// Every query, plan and generate call refuses a missing ([ErrNotIndexed]),
// stale ([ErrCacheStale]) or foreign-schema ([ErrVersionMismatch])
// snapshot. Partial coverage is not an error: unsupported languages, zero
// references and failures on one symbol become notes on the plan or
// manifest.
package ripple

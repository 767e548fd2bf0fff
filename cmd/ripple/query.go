package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/ripple"
)

func (a *app) queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the published snapshot",
		Long:  "Run read-only queries against the published symbol graph. Line numbers are 1-based and inclusive.",
	}
	cmd.AddCommand(a.definitionCmd())
	cmd.AddCommand(a.symbolCmd())
	cmd.AddCommand(a.depsCmd())
	cmd.AddCommand(a.callChainCmd())
	return cmd
}

// withQuery opens the engine for one query command and closes it after.
func (a *app) withQuery(cmd *cobra.Command, command string, fn func(ctx context.Context, q *ripple.QueryClient) (any, error)) error {
	engine, err := a.openEngine()
	if err != nil {
		return a.outputError(cmd, command, nil, err)
	}
	defer engine.Close()

	results, err := fn(cmd.Context(), engine.Query())
	if err != nil {
		return a.outputError(cmd, command, nil, err)
	}
	return a.outputResult(CLIResult{Command: command, Results: results})
}

// resolveSymbolArg accepts a symbol id or a (possibly dotted) name.
func resolveSymbolArg(ctx context.Context, q *ripple.QueryClient, arg, scope string) (*ripple.Symbol, error) {
	if strings.HasPrefix(arg, "sym:") {
		return q.SymbolByID(ctx, arg)
	}
	sym, err := q.ResolveSymbol(ctx, arg, scope)
	if err != nil {
		return nil, err
	}
	if sym == nil {
		return nil, fmt.Errorf("%w: %s", ripple.ErrNotFound, arg)
	}
	return sym, nil
}

func (a *app) definitionCmd() *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "definition <name>",
		Short: "Find where a symbol is defined",
		Long:  "Resolves a name such as Order or User.status to its defining location. Ambiguous names prefer the shortest qualified name. No match yields a null result.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, "definition", func(ctx context.Context, q *ripple.QueryClient) (any, error) {
				sym, err := q.ResolveSymbol(ctx, args[0], scope)
				if err != nil || sym == nil {
					return nil, err
				}
				loc := sym.Location()
				return CLIDefinition{Location: &loc, SymbolID: sym.ID}, nil
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "qualified-name segment the definition must sit in")
	return cmd
}

func (a *app) symbolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symbol <id>",
		Short: "Show one symbol by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, "symbol", func(ctx context.Context, q *ripple.QueryClient) (any, error) {
				return q.SymbolByID(ctx, args[0])
			})
		},
	}
}

func (a *app) depsCmd() *cobra.Command {
	var (
		types  []string
		domain string
		paths  []string
	)
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "List symbols and the edges between them",
		Long:  "Filters symbols by kind, domain (language or domain attribute) and gitignore-style path patterns, and returns the edges whose endpoints both match.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, "deps", func(ctx context.Context, q *ripple.QueryClient) (any, error) {
				f := ripple.DependencyFilter{Domain: domain, Paths: paths}
				for _, t := range types {
					f.NodeTypes = append(f.NodeTypes, ripple.Kind(t))
				}
				return q.SymbolDependencies(ctx, f)
			})
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "symbol kinds to keep (repeatable)")
	cmd.Flags().StringVar(&domain, "domain", "", "language or domain attribute to keep")
	cmd.Flags().StringSliceVar(&paths, "path", nil, "gitignore-style path pattern to keep (repeatable)")
	return cmd
}

func (a *app) callChainCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "call-chain <symbol>",
		Short: "Show callers and callees of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, "call-chain", func(ctx context.Context, q *ripple.QueryClient) (any, error) {
				sym, err := resolveSymbolArg(ctx, q, args[0], "")
				if err != nil {
					return nil, err
				}
				return q.CallChain(ctx, sym.ID, depth)
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", ripple.DefaultMaxDepth, "hop limit in each direction")
	return cmd
}

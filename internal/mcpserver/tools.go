package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jward/ripple"
)

var toolNames = []string{
	"lookup_definition",
	"symbol_dependencies",
	"call_chain",
	"plan_change",
	"generate_patches",
	"apply_manifest",
}

// Arguments structs

type LookupDefinitionArgs struct {
	Name  string `json:"name" jsonschema:"Symbol name, optionally dotted (User.status)"`
	Scope string `json:"scope,omitempty" jsonschema:"Qualified-name segment that narrows the candidates"`
}

type SymbolDependenciesArgs struct {
	NodeTypes []string `json:"node_types,omitempty" jsonschema:"Symbol kinds to keep, such as entity or column"`
	Domain    string   `json:"domain,omitempty" jsonschema:"Language or domain attribute to keep"`
	Paths     []string `json:"paths,omitempty" jsonschema:"Gitignore-style path patterns to keep"`
}

type CallChainArgs struct {
	SymbolID string `json:"symbol_id" jsonschema:"Id of the root symbol"`
	MaxDepth *int   `json:"max_depth,omitempty" jsonschema:"Hop limit in each direction, default 5"`
}

type ChangeArgs struct {
	Kind     string `json:"kind" jsonschema:"add_field, rename_field or remove_field"`
	Target   string `json:"target_symbol_id" jsonschema:"Id of the symbol the change starts from"`
	Name     string `json:"name,omitempty" jsonschema:"Field name for add_field and remove_field"`
	Type     string `json:"type,omitempty" jsonschema:"Generic type for add_field (string, int, long, decimal, bool, date, datetime)"`
	OldName  string `json:"old_name,omitempty" jsonschema:"Current name for rename_field"`
	NewName  string `json:"new_name,omitempty" jsonschema:"New name for rename_field"`
	Nullable bool   `json:"nullable,omitempty" jsonschema:"Whether an added column accepts NULL"`
	Length   int    `json:"length,omitempty" jsonschema:"Column length for an added string field"`
}

type GenerateArgs struct {
	Kind     string `json:"kind" jsonschema:"add_field, rename_field or remove_field"`
	Target   string `json:"target_symbol_id" jsonschema:"Id of the symbol the change starts from"`
	Name     string `json:"name,omitempty" jsonschema:"Field name for add_field and remove_field"`
	Type     string `json:"type,omitempty" jsonschema:"Generic type for add_field"`
	OldName  string `json:"old_name,omitempty" jsonschema:"Current name for rename_field"`
	NewName  string `json:"new_name,omitempty" jsonschema:"New name for rename_field"`
	Nullable bool   `json:"nullable,omitempty" jsonschema:"Whether an added column accepts NULL"`
	Length   int    `json:"length,omitempty" jsonschema:"Column length for an added string field"`
	Output   string `json:"output,omitempty" jsonschema:"Path to save the manifest for later review"`
	Preview  bool   `json:"preview,omitempty" jsonschema:"Include a unified diff of the patches"`
}

type ApplyArgs struct {
	ManifestID   string `json:"manifest_id,omitempty" jsonschema:"Id returned by generate_patches"`
	ManifestPath string `json:"manifest_path,omitempty" jsonschema:"Path of a saved manifest"`
	DryRun       bool   `json:"dry_run,omitempty" jsonschema:"Verify every patch without writing"`
	Force        bool   `json:"force,omitempty" jsonschema:"Keep going past files that no longer match"`
	Backup       *bool  `json:"backup,omitempty" jsonschema:"Write .orig copies before replacing files"`
}

func (a ChangeArgs) spec() ripple.ChangeSpec {
	return ripple.ChangeSpec{
		Kind:   ripple.ChangeKind(a.Kind),
		Target: a.Target,
		Params: ripple.Params{
			Name:     a.Name,
			Type:     a.Type,
			OldName:  a.OldName,
			NewName:  a.NewName,
			Nullable: a.Nullable,
			Length:   a.Length,
		},
	}
}

func (a GenerateArgs) spec() ripple.ChangeSpec {
	return ChangeArgs{
		Kind: a.Kind, Target: a.Target, Name: a.Name, Type: a.Type,
		OldName: a.OldName, NewName: a.NewName, Nullable: a.Nullable, Length: a.Length,
	}.spec()
}

// generateResult is the generate_patches payload.
type generateResult struct {
	Manifest *ripple.Manifest `json:"manifest"`
	Saved    string           `json:"saved,omitempty"`
	Preview  string           `json:"preview,omitempty"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "lookup_definition",
		Description: "Returns the file and line range where a symbol is defined",
	}, s.lookupDefinition)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "symbol_dependencies",
		Description: "Lists symbols matching the filters and the edges between them",
	}, s.symbolDependencies)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "call_chain",
		Description: "Returns callers and callees of a symbol up to a hop limit",
	}, s.callChain)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "plan_change",
		Description: "Computes the impact and risk of a change without touching files",
	}, s.planChange)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "generate_patches",
		Description: "Plans a change and generates a reviewable manifest of patches",
	}, s.generatePatches)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "apply_manifest",
		Description: "Applies a generated manifest to the source tree",
	}, s.applyManifest)
}

func (s *Server) lookupDefinition(ctx context.Context, _ *mcp.CallToolRequest, args LookupDefinitionArgs) (*mcp.CallToolResult, any, error) {
	if args.Name == "" {
		return errorResult(errors.New("name is required")), nil, nil
	}
	loc, err := s.engine.Query().LookupDefinition(ctx, args.Name, args.Scope)
	if err != nil {
		return errorResult(err), nil, nil
	}
	if loc == nil {
		return jsonResult(map[string]any{"found": false}), nil, nil
	}
	return jsonResult(map[string]any{"found": true, "location": loc}), nil, nil
}

func (s *Server) symbolDependencies(ctx context.Context, _ *mcp.CallToolRequest, args SymbolDependenciesArgs) (*mcp.CallToolResult, any, error) {
	f := ripple.DependencyFilter{Domain: args.Domain, Paths: args.Paths}
	for _, k := range args.NodeTypes {
		f.NodeTypes = append(f.NodeTypes, ripple.Kind(k))
	}
	deps, err := s.engine.Query().SymbolDependencies(ctx, f)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(deps), nil, nil
}

func (s *Server) callChain(ctx context.Context, _ *mcp.CallToolRequest, args CallChainArgs) (*mcp.CallToolResult, any, error) {
	depth := ripple.DefaultMaxDepth
	if args.MaxDepth != nil {
		depth = *args.MaxDepth
	}
	res, err := s.engine.Query().CallChain(ctx, args.SymbolID, depth)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(res), nil, nil
}

func (s *Server) planChange(ctx context.Context, _ *mcp.CallToolRequest, args ChangeArgs) (*mcp.CallToolResult, any, error) {
	plan, err := s.engine.Plan(ctx, args.spec())
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(plan), nil, nil
}

func (s *Server) generatePatches(ctx context.Context, _ *mcp.CallToolRequest, args GenerateArgs) (*mcp.CallToolResult, any, error) {
	m, err := s.engine.Generate(ctx, args.spec(), nil)
	if err != nil {
		return errorResult(err), nil, nil
	}
	s.remember(m)

	out := generateResult{Manifest: m}
	if args.Output != "" {
		if err := m.Save(args.Output); err != nil {
			return errorResult(err), nil, nil
		}
		out.Saved = args.Output
	}
	if args.Preview {
		out.Preview, err = m.Preview()
		if err != nil {
			return errorResult(err), nil, nil
		}
	}
	s.logger.Info("manifest generated", "id", m.ID, "patches", len(m.Patches), "risk", m.Risk)
	return jsonResult(out), nil, nil
}

func (s *Server) applyManifest(ctx context.Context, _ *mcp.CallToolRequest, args ApplyArgs) (*mcp.CallToolResult, any, error) {
	var m *ripple.Manifest
	switch {
	case args.ManifestID != "":
		var ok bool
		if m, ok = s.manifest(args.ManifestID); !ok {
			return errorResult(fmt.Errorf("%w: manifest %s", ripple.ErrNotFound, args.ManifestID)), nil, nil
		}
	case args.ManifestPath != "":
		var err error
		if m, err = ripple.LoadManifest(args.ManifestPath); err != nil {
			return errorResult(err), nil, nil
		}
	default:
		return errorResult(errors.New("manifest_id or manifest_path is required")), nil, nil
	}

	opts := s.engine.ApplyDefaults()
	opts.DryRun = args.DryRun
	opts.Force = args.Force
	if args.Backup != nil {
		opts.Backup = *args.Backup
	}
	res, err := s.engine.Apply(ctx, m, opts)
	if args.ManifestPath != "" && m.Consumed() {
		if serr := m.Save(args.ManifestPath); serr != nil {
			s.logger.Warn("save consumed manifest", "path", args.ManifestPath, "error", serr)
		}
	}
	switch {
	case err != nil && res == nil:
		return errorResult(err), nil, nil
	case err != nil:
		// Partial outcome: report what was written alongside the failure.
		out := jsonResult(map[string]any{
			"result": res,
			"error":  err.Error(),
			"code":   ripple.ErrorCode(err),
		})
		out.IsError = true
		return out, nil, nil
	}
	return jsonResult(res), nil, nil
}

package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/ripple"
)

const userJava = `package com.acme;

@Entity
public class User {
    @Column(name = "STATUS")
    private String status;

    public String getStatus() {
        return status;
    }

    public void setStatus(String status) {
        this.status = status;
    }
}
`

const migrationSQL = `CREATE TABLE USERS (
    ID BIGINT PRIMARY KEY,
    STATUS VARCHAR(20)
);
`

func sym(name, qname string, kind ripple.Kind, lang, file string, start, end int) *ripple.Symbol {
	return &ripple.Symbol{
		ID:            ripple.StableID(file, qname),
		Name:          name,
		QualifiedName: qname,
		Kind:          kind,
		Language:      lang,
		File:          file,
		LineStart:     start,
		LineEnd:       end,
	}
}

type fixture struct {
	root   string
	server *Server
	userID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	for name, body := range map[string]string{"src/User.java": userJava, "db/migration.sql": migrationSQL} {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := ripple.New(filepath.Join(t.TempDir(), "ripple.db"),
		ripple.WithRoot(root), ripple.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	user := sym("User", "com.acme.User", ripple.KindEntity, "java", "src/User.java", 4, 15)
	field := sym("status", "com.acme.User.status", ripple.KindField, "java", "src/User.java", 6, 6)
	getter := sym("getStatus", "com.acme.User.getStatus", ripple.KindMethod, "java", "src/User.java", 8, 10)
	setter := sym("setStatus", "com.acme.User.setStatus", ripple.KindMethod, "java", "src/User.java", 12, 14)
	table := sym("USERS", "USERS", ripple.KindTable, "sql", "db/migration.sql", 1, 4)
	column := sym("STATUS", "USERS.STATUS", ripple.KindColumn, "sql", "db/migration.sql", 3, 3)
	table.Dialect, column.Dialect = "postgres", "postgres"
	edges := []ripple.Edge{
		{From: user.ID, To: field.ID, Kind: ripple.EdgeDefines},
		{From: user.ID, To: getter.ID, Kind: ripple.EdgeDefines},
		{From: user.ID, To: setter.ID, Kind: ripple.EdgeDefines},
		{From: getter.ID, To: setter.ID, Kind: ripple.EdgeCalls},
		{From: table.ID, To: column.ID, Kind: ripple.EdgeDefines},
		{From: table.ID, To: user.ID, Kind: ripple.EdgeDerivedFrom},
		{From: column.ID, To: field.ID, Kind: ripple.EdgeDerivedFrom},
	}
	_, err = e.Publish(context.Background(),
		[]*ripple.Symbol{user, field, getter, setter, table, column}, edges, "")
	require.NoError(t, err)

	return &fixture{root: root, server: New(e, logger), userID: user.ID}
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func decode(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), v))
}

func addEmail(target string) GenerateArgs {
	return GenerateArgs{Kind: "add_field", Target: target, Name: "email", Type: "string"}
}

// =============================================================================
// Protocol
// =============================================================================

func TestServer_ListAndCallOverTransport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := f.server.MCP().Connect(ctx, serverT, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	defer cs.Close()

	tools, err := cs.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	want := append([]string(nil), toolNames...)
	sort.Strings(want)
	sort.Strings(names)
	assert.Equal(t, want, names)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "lookup_definition",
		Arguments: map[string]any{"name": "User.status"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	var got struct {
		Found    bool            `json:"found"`
		Location ripple.Location `json:"location"`
	}
	decode(t, res, &got)
	assert.True(t, got.Found)
	assert.Equal(t, ripple.Location{File: "src/User.java", LineStart: 6, LineEnd: 6}, got.Location)
}

// =============================================================================
// Query tools
// =============================================================================

func TestLookupDefinition_Missing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, _, err := f.server.lookupDefinition(context.Background(), nil, LookupDefinitionArgs{Name: "Invoice"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"found": false}`, text(t, res))

	res, _, err = f.server.lookupDefinition(context.Background(), nil, LookupDefinitionArgs{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSymbolDependencies(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, _, err := f.server.symbolDependencies(context.Background(), nil, SymbolDependenciesArgs{Domain: "sql"})
	require.NoError(t, err)
	var deps ripple.Dependencies
	decode(t, res, &deps)
	assert.Len(t, deps.Symbols, 2)
	assert.Len(t, deps.Edges, 1)
}

func TestCallChain(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	getter := ripple.StableID("src/User.java", "com.acme.User.getStatus")

	res, _, err := f.server.callChain(context.Background(), nil, CallChainArgs{SymbolID: getter})
	require.NoError(t, err)
	var chain ripple.CallChainResult
	decode(t, res, &chain)
	require.Len(t, chain.Chains, 1)
	require.Len(t, chain.Chains[0].Downstream, 1)
	assert.Equal(t, "setStatus", chain.Chains[0].Downstream[0].Symbol.Name)

	res, _, err = f.server.callChain(context.Background(), nil, CallChainArgs{SymbolID: "sym:0000000000000000"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), `"code":"not_found"`)
}

// =============================================================================
// Change tools
// =============================================================================

func TestPlanChange(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, _, err := f.server.planChange(context.Background(), nil,
		ChangeArgs{Kind: "add_field", Target: f.userID, Name: "email", Type: "string"})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var plan ripple.Plan
	decode(t, res, &plan)
	assert.Equal(t, []string{"db/migration.sql", "src/User.java"}, plan.Files)
	assert.Equal(t, ripple.RiskMedium, plan.Risk)

	res, _, err = f.server.planChange(context.Background(), nil, ChangeArgs{Kind: "add_field", Target: f.userID})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), `"code":"invalid_change"`)
}

func TestGenerateThenApplyByID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	res, _, err := f.server.generatePatches(ctx, nil, GenerateArgs{
		Kind: "add_field", Target: f.userID, Name: "email", Type: "string", Preview: true,
	})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var gen generateResult
	decode(t, res, &gen)
	require.NotNil(t, gen.Manifest)
	assert.Len(t, gen.Manifest.Patches, 2)
	assert.Contains(t, gen.Preview, "+ALTER TABLE USERS ADD COLUMN EMAIL")

	res, _, err = f.server.applyManifest(ctx, nil, ApplyArgs{ManifestID: gen.Manifest.ID})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var applied ripple.ApplyResult
	decode(t, res, &applied)
	assert.Equal(t, 2, applied.PatchesApplied)

	src, err := os.ReadFile(filepath.Join(f.root, "src/User.java"))
	require.NoError(t, err)
	assert.Contains(t, string(src), "private String email;")

	// The in-memory manifest is now consumed.
	res, _, err = f.server.applyManifest(ctx, nil, ApplyArgs{ManifestID: gen.Manifest.ID})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), `"code":"manifest_consumed"`)
}

func TestGenerateSaveThenApplyByPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	out := filepath.Join(t.TempDir(), "manifest.json")

	args := addEmail(f.userID)
	args.Output = out
	res, _, err := f.server.generatePatches(ctx, nil, args)
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	res, _, err = f.server.applyManifest(ctx, nil, ApplyArgs{ManifestPath: out, DryRun: true})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	unchanged, err := os.ReadFile(filepath.Join(f.root, "src/User.java"))
	require.NoError(t, err)
	assert.Equal(t, userJava, string(unchanged))

	res, _, err = f.server.applyManifest(ctx, nil, ApplyArgs{ManifestPath: out})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	saved, err := ripple.LoadManifest(out)
	require.NoError(t, err)
	assert.True(t, saved.Consumed())
}

func TestApplyManifest_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	res, _, err := f.server.applyManifest(ctx, nil, ApplyArgs{})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, _, err = f.server.applyManifest(ctx, nil, ApplyArgs{ManifestID: "nope"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), `"code":"not_found"`)

	res, _, err = f.server.applyManifest(ctx, nil, ApplyArgs{ManifestPath: filepath.Join(t.TempDir(), "missing.json")})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

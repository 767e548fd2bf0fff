package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/ripple/internal/graph"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func testSymbol(file, qname string, kind graph.Kind, lang string, start, end int) *graph.Symbol {
	name := qname
	for i := len(qname) - 1; i >= 0; i-- {
		if qname[i] == '.' {
			name = qname[i+1:]
			break
		}
	}
	return &graph.Symbol{
		ID:            graph.StableID(file, qname),
		Name:          name,
		QualifiedName: qname,
		Kind:          kind,
		Language:      lang,
		File:          file,
		LineStart:     start,
		LineEnd:       end,
	}
}

// userGraph returns a three-file graph: a Java entity, its table and a JSP form.
func userGraph(t *testing.T, version string) *graph.Snapshot {
	t.Helper()
	user := testSymbol("User.java", "User", graph.KindEntity, "java", 1, 10)
	name := testSymbol("User.java", "User.name", graph.KindField, "java", 3, 3)
	table := testSymbol("migration.sql", "USERS", graph.KindTable, "sql", 1, 4)
	table.Dialect = "postgres"
	form := testSymbol("user-form.jsp", "userForm", graph.KindForm, "jsp", 1, 6)
	form.Attributes = map[string]string{"bean": "user"}

	snap, err := graph.NewSnapshot(
		[]*graph.Symbol{user, name, table, form},
		[]graph.Edge{
			{From: user.ID, To: name.ID, Kind: graph.EdgeDefines},
			{From: table.ID, To: user.ID, Kind: graph.EdgeDerivedFrom},
			{From: form.ID, To: user.ID, Kind: graph.EdgeReferences},
		},
		graph.Meta{Version: version, BuiltAt: time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)},
	)
	require.NoError(t, err)
	return snap
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"files", "symbols", "edges", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestDeclaredVersion_Empty(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.DeclaredVersion()
	require.ErrorIs(t, err, ErrEmpty)

	_, err = s.LoadSnapshot()
	require.ErrorIs(t, err, ErrEmpty)
}

// =============================================================================
// Publish & Load
// =============================================================================

func TestPublishSnapshot_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	orig := userGraph(t, "v1")
	require.NoError(t, s.PublishSnapshot(orig))

	v, err := s.DeclaredVersion()
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	got, err := s.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Version())
	assert.Equal(t, graph.SchemaVersion, got.Meta().SchemaVersion)
	assert.True(t, orig.Meta().BuiltAt.Equal(got.Meta().BuiltAt))
	assert.Equal(t, orig.Symbols(), got.Symbols())
	assert.ElementsMatch(t, orig.Edges(), got.Edges())

	form := got.SymbolsNamed("userForm")
	require.Len(t, form, 1)
	assert.Equal(t, "user", form[0].Attr("bean"))
	table := got.SymbolsNamed("USERS")
	require.Len(t, table, 1)
	assert.Equal(t, "postgres", table[0].Dialect)
}

func TestPublishSnapshot_Replaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.PublishSnapshot(userGraph(t, "v1")))

	only := testSymbol("Order.java", "Order", graph.KindEntity, "java", 1, 5)
	next, err := graph.NewSnapshot([]*graph.Symbol{only}, nil, graph.Meta{Version: "v2"})
	require.NoError(t, err)
	require.NoError(t, s.PublishSnapshot(next))

	got, err := s.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Version())
	require.Len(t, got.Symbols(), 1)
	assert.Equal(t, "Order", got.Symbols()[0].Name)
	assert.Empty(t, got.Edges())
}

func TestReplaceFiles_LeavesDanglingEdgesStale(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.PublishSnapshot(userGraph(t, "v1")))

	// Reindex User.java with the entity renamed: the old id disappears and
	// edges from the other files now dangle.
	account := testSymbol("User.java", "Account", graph.KindEntity, "java", 1, 10)
	require.NoError(t, s.ReplaceFiles([]string{"User.java"}, []*graph.Symbol{account}, nil, graph.Meta{Version: "v2"}))

	got, err := s.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Version())
	assert.Len(t, got.SymbolsInFile("User.java"), 1)
	assert.Empty(t, got.Edges())
	assert.Len(t, got.StaleEdges(), 2)

	var count int
	require.NoError(t, s.db.QueryRow("SELECT symbol_count FROM files WHERE path = 'User.java'").Scan(&count))
	assert.Equal(t, 1, count)
}

// =============================================================================
// Version hashing
// =============================================================================

func TestComputeVersion_OrderIndependent(t *testing.T) {
	t.Parallel()
	snap := userGraph(t, "")
	syms := snap.Symbols()
	rev := make([]*graph.Symbol, len(syms))
	for i, s := range syms {
		rev[len(syms)-1-i] = s
	}

	a := ComputeVersion(syms, snap.Edges())
	b := ComputeVersion(rev, snap.Edges())
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	moved := *syms[0]
	moved.LineStart++
	c := ComputeVersion(append([]*graph.Symbol{&moved}, syms[1:]...), snap.Edges())
	assert.NotEqual(t, a, c)
}

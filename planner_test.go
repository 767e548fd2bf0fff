package ripple

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planFor(t *testing.T, e *Engine, spec ChangeSpec) *Plan {
	t.Helper()
	p, err := e.Plan(context.Background(), spec)
	require.NoError(t, err)
	return p
}

// orderGraph is a single Java class whose field total is used by a method
// of the same file. extra symbols and edges are appended.
func orderGraph(extra []*Symbol, extraEdges ...Edge) ([]*Symbol, []Edge, *Symbol, *Symbol) {
	f := "src/Order.java"
	order := mk("Order", "com.acme.Order", KindEntity, "java", f, 3, 30)
	total := mk("total", "com.acme.Order.total", KindField, "java", f, 5, 5)
	calc := mk("recalc", "com.acme.Order.recalc", KindMethod, "java", f, 10, 14)
	symbols := append([]*Symbol{order, total, calc}, extra...)
	edges := append([]Edge{
		{From: order.ID, To: total.ID, Kind: EdgeDefines},
		{From: order.ID, To: calc.ID, Kind: EdgeDefines},
		{From: calc.ID, To: total.ID, Kind: EdgeReferences},
	}, extraEdges...)
	return symbols, edges, order, total
}

// =============================================================================
// Risk
// =============================================================================

func TestPlan_LowWhenConfinedToOneFile(t *testing.T) {
	t.Parallel()
	symbols, edges, order, _ := orderGraph(nil)
	e := publishedEngine(t, symbols, edges)

	p := planFor(t, e, renameSpec(order.ID, "total", "amount"))
	assert.Equal(t, RiskLow, p.Risk)
	assert.Equal(t, []string{"com.acme.Order.recalc"}, impactNames(p.DownstreamImpacts))
	assert.Equal(t, EdgeReferences, p.DownstreamImpacts[0].Via)
	assert.Equal(t, 1, p.DownstreamImpacts[0].Depth)
	assert.Equal(t, []string{"src/Order.java"}, p.Files)
	assert.Equal(t, 1, p.FileCount)
	assert.Equal(t, 3, p.SymbolCount)
	assert.Empty(t, p.Warnings)
	assert.Contains(t, p.Summary, "risk LOW")
}

func TestPlan_LowWhenReferencesSitInOneOtherFile(t *testing.T) {
	t.Parallel()
	tag := mk("Tag", "com.acme.Tag", KindEntity, "java", "src/Tag.java", 1, 10)
	label := mk("label", "com.acme.Tag.label", KindField, "java", "src/Tag.java", 3, 3)
	render := mk("render", "com.acme.Report.render", KindMethod, "java", "src/Report.java", 8, 20)
	e := publishedEngine(t, []*Symbol{tag, label, render}, []Edge{
		{From: tag.ID, To: label.ID, Kind: EdgeDefines},
		{From: render.ID, To: label.ID, Kind: EdgeReferences},
	})

	p := planFor(t, e, renameSpec(tag.ID, "label", "title"))
	assert.Equal(t, RiskLow, p.Risk)
	assert.Equal(t, []string{"com.acme.Report.render"}, impactNames(p.DownstreamImpacts))
	assert.Contains(t, p.RiskReason, "src/Report.java")
	assert.Equal(t, 2, p.FileCount)

	// The same shape reaching a hand-written TypeScript file is not LOW.
	view := mk("render", "web.TagView.render", KindFunction, "typescript", "web/tag.ts", 2, 9)
	e = publishedEngine(t, []*Symbol{tag, label, view}, []Edge{
		{From: tag.ID, To: label.ID, Kind: EdgeDefines},
		{From: view.ID, To: label.ID, Kind: EdgeReferences},
	})
	p = planFor(t, e, renameSpec(tag.ID, "label", "title"))
	assert.Equal(t, RiskHigh, p.Risk)
}

func TestPlan_RemoveIsAlwaysHigh(t *testing.T) {
	t.Parallel()
	symbols, edges, order, _ := orderGraph(nil)
	e := publishedEngine(t, symbols, edges)

	rename := planFor(t, e, renameSpec(order.ID, "total", "amount"))
	remove := planFor(t, e, removeSpec(order.ID, "total"))

	require.Equal(t, RiskLow, rename.Risk)
	assert.Equal(t, RiskHigh, remove.Risk)
	assert.Equal(t, impactNames(rename.DownstreamImpacts), impactNames(remove.DownstreamImpacts))
	assert.True(t, remove.Risk.AtLeast(rename.Risk))
}

func TestPlan_MediumAcrossFilesOfOneLanguage(t *testing.T) {
	t.Parallel()
	report := mk("render", "com.acme.Report.render", KindMethod, "java", "src/Report.java", 8, 20)
	symbols, edges, order, total := orderGraph([]*Symbol{report})
	edges = append(edges, Edge{From: report.ID, To: total.ID, Kind: EdgeReferences})
	e := publishedEngine(t, symbols, edges)

	p := planFor(t, e, renameSpec(order.ID, "total", "amount"))
	assert.Equal(t, RiskMedium, p.Risk)
	assert.Equal(t, 2, p.FileCount)
	assert.Contains(t, p.RiskReason, "2 files")
}

func TestPlan_MediumWhenOtherLanguagesAreDerived(t *testing.T) {
	t.Parallel()
	table := mk("ORDERS", "ORDERS", KindTable, "sql", "db/orders.sql", 1, 6)
	symbols, edges, order, _ := orderGraph([]*Symbol{table})
	edges = append(edges, Edge{From: table.ID, To: order.ID, Kind: EdgeDerivedFrom})
	e := publishedEngine(t, symbols, edges)

	p := planFor(t, e, addSpec(order.ID, "discount", "decimal"))
	assert.Equal(t, RiskMedium, p.Risk)
	assert.Equal(t, []string{"ORDERS"}, impactNames(p.DownstreamImpacts))
	assert.Contains(t, p.RiskReason, "derived")
	assert.True(t, p.HasWarning(CodeCrossLanguage))
}

func TestPlan_HighWhenCrossingIntoHandWrittenSource(t *testing.T) {
	t.Parallel()
	symbols, edges := userGraph("status")
	e := publishedEngine(t, symbols, edges)

	p := planFor(t, e, addSpec(userID, "email", "string"))
	assert.Equal(t, RiskHigh, p.Risk)
	assert.Contains(t, p.RiskReason, "jsp")
	assert.ElementsMatch(t, []string{"userForm", "USERS"}, impactNames(p.DownstreamImpacts))
	assert.Equal(t, []string{userFormPath, migrationPath, userJavaPath}, p.Files)
	assert.Equal(t, 3, p.FileCount)
}

func TestPlan_GeneratedArtifactIsDerived(t *testing.T) {
	t.Parallel()
	dto := mk("OrderDTO", "web.OrderDTO", KindType, "typescript", "web/order.ts", 1, 5)
	dto.Attributes = map[string]string{"generated": "true"}
	symbols, edges, order, _ := orderGraph([]*Symbol{dto})
	edges = append(edges, Edge{From: dto.ID, To: order.ID, Kind: EdgeReferences})
	e := publishedEngine(t, symbols, edges)

	p := planFor(t, e, addSpec(order.ID, "discount", "decimal"))
	assert.Equal(t, RiskMedium, p.Risk)
}

func TestPlan_RenameWithoutReferencesIsHigh(t *testing.T) {
	t.Parallel()
	f := "src/Tag.java"
	tag := mk("Tag", "com.acme.Tag", KindEntity, "java", f, 1, 10)
	label := mk("label", "com.acme.Tag.label", KindField, "java", f, 3, 3)
	e := publishedEngine(t, []*Symbol{tag, label}, []Edge{{From: tag.ID, To: label.ID, Kind: EdgeDefines}})

	p := planFor(t, e, renameSpec(tag.ID, "label", "title"))
	assert.Equal(t, RiskHigh, p.Risk)
	assert.Empty(t, p.DownstreamImpacts)
	assert.True(t, p.HasWarning(CodeZeroReferences))
	assert.Contains(t, p.Summary, "Double-check: zero_references.")

	// Adding a field is not a reference problem.
	p = planFor(t, e, addSpec(tag.ID, "color", "string"))
	assert.Equal(t, RiskLow, p.Risk)
	assert.False(t, p.HasWarning(CodeZeroReferences))
}

// =============================================================================
// Validation
// =============================================================================

func TestPlan_Errors(t *testing.T) {
	t.Parallel()
	symbols, edges := userGraph("status")
	e := publishedEngine(t, symbols, edges)
	ctx := context.Background()
	field := StableID(userJavaPath, "com.acme.User.status")

	_, err := e.Plan(ctx, addSpec(userID, "", "string"))
	assert.ErrorIs(t, err, ErrInvalidChange)
	assert.Equal(t, "invalid_change", ErrorCode(err))

	_, err = e.Plan(ctx, addSpec(userID, "email", "blob"))
	assert.ErrorIs(t, err, ErrInvalidChange)

	_, err = e.Plan(ctx, renameSpec(userID, "status", "status"))
	assert.ErrorIs(t, err, ErrInvalidChange)

	_, err = e.Plan(ctx, addSpec(field, "email", "string"))
	assert.ErrorIs(t, err, ErrInvalidChange)

	_, err = e.Plan(ctx, addSpec("sym:0000000000000000", "email", "string"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlan_AddAlreadyDefined(t *testing.T) {
	t.Parallel()
	symbols, edges := userGraph("status")
	e := publishedEngine(t, symbols, edges)

	p := planFor(t, e, addSpec(userID, "status", "string"))
	assert.True(t, p.HasWarning(CodeAlreadyDefined))
	assert.Equal(t, RiskLow, p.Risk)
	assert.Empty(t, p.DirectImpacts)
	assert.Empty(t, p.DownstreamImpacts)
	assert.Empty(t, p.Files)
	assert.Zero(t, p.FileCount)
	assert.Contains(t, p.Summary, "No impacts.")
}

func TestPlan_RenameCollisionWarns(t *testing.T) {
	t.Parallel()
	amount := mk("amount", "com.acme.Order.amount", KindField, "java", "src/Order.java", 6, 6)
	symbols, edges, order, _ := orderGraph([]*Symbol{amount})
	edges = append(edges, Edge{From: order.ID, To: amount.ID, Kind: EdgeDefines})
	e := publishedEngine(t, symbols, edges)

	p := planFor(t, e, renameSpec(order.ID, "total", "amount"))
	assert.True(t, p.HasWarning(CodeAlreadyDefined))
	assert.NotEmpty(t, p.DownstreamImpacts)
}

// =============================================================================
// Traversal
// =============================================================================

func TestPlan_DirectImpactsIncludeSiblings(t *testing.T) {
	t.Parallel()
	symbols, edges := userGraph("status")
	e := publishedEngine(t, symbols, edges)
	field := StableID(userJavaPath, "com.acme.User.status")

	p := planFor(t, e, renameSpec(field, "status", "state"))
	assert.Equal(t, []string{"com.acme.User.getStatus", "com.acme.User.setStatus"}, impactNames(p.DirectImpacts))
	for _, im := range p.DirectImpacts {
		assert.True(t, im.Sibling)
	}
	assert.Equal(t, []string{"USERS.STATUS"}, impactNames(p.DownstreamImpacts))
	assert.Equal(t, RiskMedium, p.Risk)
}

func TestPlan_RenameSeedsMatchingField(t *testing.T) {
	t.Parallel()
	symbols, edges := userGraph("status")
	e := publishedEngine(t, symbols, edges)

	p := planFor(t, e, renameSpec(userID, "status", "orderStatus"))
	assert.ElementsMatch(t, []string{"userForm", "USERS", "USERS.STATUS"}, impactNames(p.DownstreamImpacts))
	assert.ElementsMatch(t, []string{"com.acme.User.status", "com.acme.User.getStatus", "com.acme.User.setStatus"},
		impactNames(p.DirectImpacts))
}

// chainGraph is n0 <- n1 <- ... <- n(n-1) over REFERENCES, each in its own
// file.
func chainGraph(n int) ([]*Symbol, []Edge) {
	var symbols []*Symbol
	var edges []Edge
	for i := range n {
		kind := KindMethod
		if i == 0 {
			kind = KindEntity
		}
		s := mk(fmt.Sprintf("n%d", i), fmt.Sprintf("chain.n%d", i), kind, "java", fmt.Sprintf("src/N%d.java", i), 1, 5)
		symbols = append(symbols, s)
		if i > 0 {
			edges = append(edges, Edge{From: s.ID, To: symbols[i-1].ID, Kind: EdgeReferences})
		}
	}
	return symbols, edges
}

func TestPlan_DepthCeiling(t *testing.T) {
	t.Parallel()
	symbols, edges := chainGraph(10)
	root := symbols[0].ID
	ctx := context.Background()

	root := touchTree(t, symbols)
	def := newTestEngine(t, WithRoot(root))
	_, err := def.Publish(ctx, symbols, edges, "")
	require.NoError(t, err)
	p := planFor(t, def, addSpec(root, "x", "int"))
	require.Len(t, p.DownstreamImpacts, DefaultMaxDepth)
	assert.Equal(t, DefaultMaxDepth, p.DownstreamImpacts[DefaultMaxDepth-1].Depth)

	shallow := newTestEngine(t, WithRoot(root), WithMaxDepth(2))
	_, err = shallow.Publish(ctx, symbols, edges, "")
	require.NoError(t, err)
	p = planFor(t, shallow, addSpec(root, "x", "int"))
	assert.Equal(t, []string{"chain.n1", "chain.n2"}, impactNames(p.DownstreamImpacts))

	deep := newTestEngine(t, WithRoot(root), WithMaxDepth(1000))
	_, err = deep.Publish(ctx, symbols, edges, "")
	require.NoError(t, err)
	p = planFor(t, deep, addSpec(root, "x", "int"))
	assert.Len(t, p.DownstreamImpacts, 9)
}

func TestPlan_CyclesReportEachSymbolOnce(t *testing.T) {
	t.Parallel()
	symbols, edges := chainGraph(4)
	// n0 <- n1 <- n2 <- n3 plus n1 <- n3 and n3 <- n1 and n0 <- n3.
	edges = append(edges,
		Edge{From: symbols[3].ID, To: symbols[1].ID, Kind: EdgeReferences},
		Edge{From: symbols[1].ID, To: symbols[3].ID, Kind: EdgeReferences},
		Edge{From: symbols[3].ID, To: symbols[0].ID, Kind: EdgeReferences},
	)
	e := publishedEngine(t, symbols, edges)

	p := planFor(t, e, addSpec(symbols[0].ID, "x", "int"))
	assert.Equal(t, []string{"chain.n1", "chain.n2", "chain.n3"}, impactNames(p.DownstreamImpacts))
	depths := map[string]int{}
	for _, im := range p.DownstreamImpacts {
		depths[im.Symbol.Name] = im.Depth
	}
	assert.Equal(t, map[string]int{"n1": 1, "n2": 2, "n3": 1}, depths)
}

func TestPlan_MappedToFollowedBothWays(t *testing.T) {
	t.Parallel()
	symbols, edges := userGraph("status")
	tsUser := mk("User", "web.User", KindType, "typescript", "web/user.ts", 1, 3)
	pyUser := mk("User", "app.models.User", KindType, "python", "app/models.py", 5, 7)
	symbols = append(symbols, tsUser, pyUser)
	edges = append(edges,
		Edge{From: tsUser.ID, To: userID, Kind: EdgeMappedTo},
		Edge{From: userID, To: pyUser.ID, Kind: EdgeMappedTo},
	)
	e := publishedEngine(t, symbols, edges)

	p := planFor(t, e, addSpec(userID, "email", "string"))
	via := map[string]EdgeKind{}
	for _, im := range p.DownstreamImpacts {
		via[im.Symbol.QualifiedName] = im.Via
	}
	assert.Equal(t, EdgeMappedTo, via["web.User"])
	assert.Equal(t, EdgeMappedTo, via["app.models.User"])
	assert.Equal(t, RiskHigh, p.Risk)
	assert.Equal(t, 5, p.FileCount)
}

func TestPlan_Deterministic(t *testing.T) {
	t.Parallel()
	symbols, edges := userGraph("status")
	e := publishedEngine(t, symbols, edges)

	first := planFor(t, e, renameSpec(userID, "status", "orderStatus"))
	for range 5 {
		assert.Equal(t, first, planFor(t, e, renameSpec(userID, "status", "orderStatus")))
	}
}

// =============================================================================
// Warnings
// =============================================================================

func TestPlan_StaleEdgeWarning(t *testing.T) {
	t.Parallel()
	symbols, edges := userGraph("status")
	form := StableID(userFormPath, "userForm")
	edges = append(edges, Edge{From: form, To: StableID("src/Gone.java", "Gone"), Kind: EdgeReferences})
	e := publishedEngine(t, symbols, edges)

	p := planFor(t, e, addSpec(userID, "email", "string"))
	require.True(t, p.HasWarning(CodeStaleEdge))
	for _, n := range p.Warnings {
		if n.Code == CodeStaleEdge {
			assert.Equal(t, form, n.SymbolID)
		}
	}
}

func TestPlan_UnsupportedLanguageWarning(t *testing.T) {
	t.Parallel()
	symbols, edges := userGraph("status")
	model := mk("User", "User", KindType, "ruby", "app/models/user.rb", 1, 8)
	symbols = append(symbols, model)
	edges = append(edges, Edge{From: model.ID, To: userID, Kind: EdgeDerivedFrom})
	e := publishedEngine(t, symbols, edges)

	p := planFor(t, e, addSpec(userID, "email", "string"))
	require.True(t, p.HasWarning(CodeUnsupportedLanguage))
	assert.Contains(t, p.Summary, "unsupported_language")
	assert.Contains(t, impactNames(p.DownstreamImpacts), "User")
}

func TestPlan_TestReferenceWarningOnRemove(t *testing.T) {
	t.Parallel()
	symbols, edges := userGraph("status")
	test := mk("status", "UserTest.status", KindMethod, "java", "src/test/java/UserTest.java", 2, 4)
	field := StableID(userJavaPath, "com.acme.User.status")
	symbols = append(symbols, test)
	edges = append(edges, Edge{From: test.ID, To: field, Kind: EdgeReferences})
	e := publishedEngine(t, symbols, edges)

	p := planFor(t, e, removeSpec(userID, "status"))
	assert.True(t, p.HasWarning(CodeTestReference))

	p = planFor(t, e, renameSpec(userID, "status", "state"))
	assert.False(t, p.HasWarning(CodeTestReference))
}

package generate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/ripple/internal/change"
	"github.com/jward/ripple/internal/graph"
)

// =============================================================================
// Fixture
// =============================================================================

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

const modelsPy = `from dataclasses import dataclass


@dataclass
class User:
    status: str
    name: str
`

const userTs = `export interface User {
  status: string;
}
`

const userFormJsp = `<form:form modelAttribute="user" action="/users" method="post">
    <form:label path="status">Status</form:label>
    <form:input path="status"/>
    <button type="submit">Save</button>
</form:form>
`

const migrationSQL = `CREATE TABLE USERS (
    ID BIGINT PRIMARY KEY,
    STATUS VARCHAR(20)
);
`

const userTestJava = `public class UserTest {
    void status() {
        assertEquals("A", user.getStatus());
    }
}
`

type fixture struct {
	t    *testing.T
	snap *graph.Snapshot
	src  Sources
}

func sym(name, qname string, kind graph.Kind, lang, file string, start, end int) *graph.Symbol {
	return &graph.Symbol{
		ID: graph.StableID(file, qname), Name: name, QualifiedName: qname, Kind: kind,
		Language: lang, File: file, LineStart: start, LineEnd: end,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	user := sym("User", "com.acme.User", graph.KindEntity, "java", "src/User.java", 4, 15)
	status := sym("status", "com.acme.User.status", graph.KindField, "java", "src/User.java", 6, 6)
	getter := sym("getStatus", "com.acme.User.getStatus", graph.KindMethod, "java", "src/User.java", 8, 10)
	setter := sym("setStatus", "com.acme.User.setStatus", graph.KindMethod, "java", "src/User.java", 12, 14)
	pyUser := sym("User", "app.models.User", graph.KindType, "python", "app/models.py", 5, 7)
	tsUser := sym("User", "User", graph.KindType, "typescript", "web/user.ts", 1, 3)
	form := sym("userForm", "userForm", graph.KindForm, "jsp", "WEB-INF/user-form.jsp", 1, 5)
	table := sym("USERS", "USERS", graph.KindTable, "sql", "db/migration.sql", 1, 4)
	table.Dialect = "postgres"
	column := sym("STATUS", "USERS.STATUS", graph.KindColumn, "sql", "db/migration.sql", 3, 3)
	column.Dialect = "postgres"
	test := sym("status", "UserTest.status", graph.KindMethod, "java", "src/test/java/UserTest.java", 2, 4)

	edges := []graph.Edge{
		{From: user.ID, To: status.ID, Kind: graph.EdgeDefines},
		{From: user.ID, To: getter.ID, Kind: graph.EdgeDefines},
		{From: user.ID, To: setter.ID, Kind: graph.EdgeDefines},
		{From: table.ID, To: column.ID, Kind: graph.EdgeDefines},
		{From: table.ID, To: user.ID, Kind: graph.EdgeDerivedFrom},
		{From: tsUser.ID, To: user.ID, Kind: graph.EdgeMappedTo},
		{From: form.ID, To: user.ID, Kind: graph.EdgeReferences},
		{From: test.ID, To: getter.ID, Kind: graph.EdgeCalls},
	}
	snap, err := graph.NewSnapshot(
		[]*graph.Symbol{user, status, getter, setter, pyUser, tsUser, form, table, column, test},
		edges, graph.Meta{Version: "v1"})
	require.NoError(t, err)

	return &fixture{
		t:    t,
		snap: snap,
		src: Sources{
			"src/User.java":               SplitLines(userJava),
			"app/models.py":               SplitLines(modelsPy),
			"web/user.ts":                 SplitLines(userTs),
			"WEB-INF/user-form.jsp":       SplitLines(userFormJsp),
			"db/migration.sql":            SplitLines(migrationSQL),
			"src/test/java/UserTest.java": SplitLines(userTestJava),
		},
	}
}

func (f *fixture) sym(file, qname string) *graph.Symbol {
	f.t.Helper()
	s, ok := f.snap.Symbol(graph.StableID(file, qname))
	require.True(f.t, ok, "symbol %s in %s", qname, file)
	return s
}

func (f *fixture) input(spec change.Spec, syms ...*graph.Symbol) Input {
	return Input{Change: spec, Root: syms[0], Symbols: syms, Sources: f.src, Snapshot: f.snap}
}

func addSpec(name, typ string) change.Spec {
	return change.Spec{Kind: change.AddField, Target: "x", Params: change.Params{Name: name, Type: typ}}
}

func renameSpec(old, repl string) change.Spec {
	return change.Spec{Kind: change.RenameField, Target: "x", Params: change.Params{OldName: old, NewName: repl}}
}

func removeSpec(name string) change.Spec {
	return change.Spec{Kind: change.RemoveField, Target: "x", Params: change.Params{Name: name}}
}

// applyPatches rewrites lines the way the apply engine does: descending
// line order within the file.
func applyPatches(src []string, patches []change.Patch) []string {
	ps := append([]change.Patch(nil), patches...)
	change.SortPatches(ps)
	out := append([]string(nil), src...)
	for i := len(ps) - 1; i >= 0; i-- {
		p := ps[i]
		var repl []string
		if !p.IsDeletion() {
			repl = strings.Split(p.NewText, "\n")
		}
		tail := append([]string(nil), out[p.LineEnd:]...)
		out = append(append(out[:p.LineStart-1], repl...), tail...)
	}
	return out
}

func generateOne(t *testing.T, g Generator, in Input) Output {
	t.Helper()
	out, err := g.Generate(context.Background(), in)
	require.NoError(t, err)
	return out
}

// =============================================================================
// Java
// =============================================================================

func TestJava_AddField(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	user := f.sym("src/User.java", "com.acme.User")

	out := generateOne(t, Java{}, f.input(addSpec("email", "string"), user))
	require.Len(t, out.Patches, 1)
	p := out.Patches[0]

	assert.Equal(t, "src/User.java", p.File)
	assert.Equal(t, 15, p.LineStart)
	assert.Equal(t, 15, p.LineEnd)
	assert.Equal(t, "}", p.OldText)
	assert.Equal(t, user.ID, p.SymbolID)
	assert.Equal(t, "java", p.Generator)
	assert.Equal(t, strings.Join([]string{
		"",
		`    @Column(name = "EMAIL")`,
		"    private String email;",
		"",
		"    public String getEmail() {",
		"        return email;",
		"    }",
		"",
		"    public void setEmail(String email) {",
		"        this.email = email;",
		"    }",
		"}",
	}, "\n"), p.NewText)
	assert.Empty(t, out.Notes)
}

func TestJava_AddFieldNullableWithLength(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	spec := addSpec("nickName", "string")
	spec.Params.Nullable = true
	spec.Params.Length = 40

	out := generateOne(t, Java{}, f.input(spec, f.sym("src/User.java", "com.acme.User")))
	require.Len(t, out.Patches, 1)
	assert.Contains(t, out.Patches[0].NewText, `@Column(name = "NICK_NAME", nullable = true, length = 40)`)
	assert.Contains(t, out.Patches[0].NewText, "private String nickName;")
}

func TestJava_AddFieldAlreadyDefined(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	out := generateOne(t, Java{}, f.input(addSpec("status", "string"), f.sym("src/User.java", "com.acme.User")))
	assert.Empty(t, out.Patches)
	require.Len(t, out.Notes, 1)
	assert.Equal(t, change.CodeAlreadyDefined, out.Notes[0].Code)
	assert.Equal(t, change.SeverityInfo, out.Notes[0].Severity)
}

func TestJava_RenameField(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	status := f.sym("src/User.java", "com.acme.User.status")

	out := generateOne(t, Java{}, f.input(renameSpec("status", "orderStatus"), status))
	require.Len(t, out.Patches, 6)

	got := applyPatches(f.src["src/User.java"], out.Patches)
	assert.Equal(t, `    @Column(name = "ORDER_STATUS")`, got[4])
	assert.Equal(t, "    private String orderStatus;", got[5])
	assert.Equal(t, "    public String getOrderStatus() {", got[7])
	assert.Equal(t, "        return orderStatus;", got[8])
	assert.Equal(t, "    public void setOrderStatus(String orderStatus) {", got[11])
	assert.Equal(t, "        this.orderStatus = orderStatus;", got[12])
}

func TestJava_RemoveField(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	status := f.sym("src/User.java", "com.acme.User.status")

	out := generateOne(t, Java{}, f.input(removeSpec("status"), status))
	require.Len(t, out.Patches, 3)
	for _, p := range out.Patches {
		assert.True(t, p.IsDeletion())
	}
	assert.Equal(t, [2]int{5, 6}, [2]int{out.Patches[0].LineStart, out.Patches[0].LineEnd})
	assert.Equal(t, [2]int{7, 10}, [2]int{out.Patches[1].LineStart, out.Patches[1].LineEnd})
	assert.Equal(t, [2]int{11, 14}, [2]int{out.Patches[2].LineStart, out.Patches[2].LineEnd})

	got := applyPatches(f.src["src/User.java"], out.Patches)
	assert.Equal(t, []string{"package com.acme;", "", "@Entity", "public class User {", "}"}, got)
}

func TestJava_RemoveFieldViaEntity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	user := f.sym("src/User.java", "com.acme.User")

	out := generateOne(t, Java{}, f.input(removeSpec("status"), user))
	require.Len(t, out.Patches, 3)
	got := applyPatches(f.src["src/User.java"], out.Patches)
	assert.Equal(t, []string{"package com.acme;", "", "@Entity", "public class User {", "}"}, got)
}

func TestJava_RemoveInTestFileWarns(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	test := f.sym("src/test/java/UserTest.java", "UserTest.status")

	out := generateOne(t, Java{}, f.input(removeSpec("status"), test))
	assert.Empty(t, out.Patches)
	require.Len(t, out.Notes, 1)
	assert.Equal(t, change.CodeTestReference, out.Notes[0].Code)
	assert.Equal(t, change.SeverityWarning, out.Notes[0].Severity)
	assert.Equal(t, test.File, out.Notes[0].File)
}

func TestJava_MissingSourceIsGenerationFailed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	in := f.input(addSpec("email", "string"), f.sym("src/User.java", "com.acme.User"))
	in.Sources = Sources{}

	out := generateOne(t, Java{}, in)
	assert.Empty(t, out.Patches)
	require.Len(t, out.Notes, 1)
	assert.Equal(t, change.CodeGenerationFailed, out.Notes[0].Code)
}

// =============================================================================
// Python
// =============================================================================

func TestPython_AddField(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	user := f.sym("app/models.py", "app.models.User")

	out := generateOne(t, Python{}, f.input(addSpec("orderStatus", "string"), user))
	require.Len(t, out.Patches, 1)
	assert.Equal(t, 7, out.Patches[0].LineStart)
	assert.Equal(t, "    name: str\n    order_status: str", out.Patches[0].NewText)
}

func TestPython_AddNullableDateAddsImports(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	spec := addSpec("shippedOn", "date")
	spec.Params.Nullable = true

	out := generateOne(t, Python{}, f.input(spec, f.sym("app/models.py", "app.models.User")))
	require.Len(t, out.Patches, 2)
	assert.Equal(t, "    name: str\n    shipped_on: Optional[date] = None", out.Patches[0].NewText)

	imports := out.Patches[1]
	assert.Equal(t, 1, imports.LineStart)
	assert.Equal(t, "from datetime import date\nfrom typing import Optional\nfrom dataclasses import dataclass", imports.NewText)
}

func TestPython_AddFieldAlreadyDefined(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	out := generateOne(t, Python{}, f.input(addSpec("name", "string"), f.sym("app/models.py", "app.models.User")))
	assert.Empty(t, out.Patches)
	require.Len(t, out.Notes, 1)
	assert.Equal(t, change.CodeAlreadyDefined, out.Notes[0].Code)
}

func TestPython_RenameAndRemove(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	user := f.sym("app/models.py", "app.models.User")

	out := generateOne(t, Python{}, f.input(renameSpec("status", "orderStatus"), user))
	require.Len(t, out.Patches, 1)
	assert.Equal(t, "    order_status: str", out.Patches[0].NewText)

	out = generateOne(t, Python{}, f.input(removeSpec("status"), user))
	require.Len(t, out.Patches, 1)
	assert.Equal(t, 6, out.Patches[0].LineStart)
	assert.True(t, out.Patches[0].IsDeletion())
}

// =============================================================================
// TypeScript
// =============================================================================

func TestTypeScript_AddField(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	user := f.sym("web/user.ts", "User")

	out := generateOne(t, TypeScript{}, f.input(addSpec("order_status", "string"), user))
	require.Len(t, out.Patches, 1)
	assert.Equal(t, 3, out.Patches[0].LineStart)
	assert.Equal(t, "  orderStatus: string;\n}", out.Patches[0].NewText)

	spec := addSpec("email", "string")
	spec.Params.Nullable = true
	out = generateOne(t, TypeScript{}, f.input(spec, user))
	require.Len(t, out.Patches, 1)
	assert.Equal(t, "  email?: string;\n}", out.Patches[0].NewText)
}

func TestTypeScript_Rename(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	out := generateOne(t, TypeScript{}, f.input(renameSpec("status", "order_status"), f.sym("web/user.ts", "User")))
	require.Len(t, out.Patches, 1)
	assert.Equal(t, "  orderStatus: string;", out.Patches[0].NewText)
}

// =============================================================================
// JSP
// =============================================================================

func TestLabel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Order Status", Label("orderStatus"))
	assert.Equal(t, "Email", Label("email"))
	assert.Equal(t, "Created At", Label("created_at"))
}

func TestJSP_AddField(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	form := f.sym("WEB-INF/user-form.jsp", "userForm")

	out := generateOne(t, JSP{}, f.input(addSpec("email", "string"), form))
	require.Len(t, out.Patches, 1)
	assert.Equal(t, 5, out.Patches[0].LineStart)
	assert.Equal(t, strings.Join([]string{
		`    <form:label path="email">Email</form:label>`,
		`    <form:input path="email"/>`,
		`</form:form>`,
	}, "\n"), out.Patches[0].NewText)

	out = generateOne(t, JSP{}, f.input(addSpec("active", "bool"), form))
	require.Len(t, out.Patches, 1)
	assert.Contains(t, out.Patches[0].NewText, `<form:checkbox path="active"/>`)

	out = generateOne(t, JSP{}, f.input(addSpec("birthday", "date"), form))
	require.Len(t, out.Patches, 1)
	assert.Contains(t, out.Patches[0].NewText, `<form:input path="birthday" type="date"/>`)
}

func TestJSP_AddFieldAlreadyBound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	out := generateOne(t, JSP{}, f.input(addSpec("status", "string"), f.sym("WEB-INF/user-form.jsp", "userForm")))
	assert.Empty(t, out.Patches)
	require.Len(t, out.Notes, 1)
	assert.Equal(t, change.CodeAlreadyDefined, out.Notes[0].Code)
}

func TestJSP_RenameAndRemove(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	form := f.sym("WEB-INF/user-form.jsp", "userForm")

	out := generateOne(t, JSP{}, f.input(renameSpec("status", "orderStatus"), form))
	require.Len(t, out.Patches, 2)
	got := applyPatches(f.src[form.File], out.Patches)
	assert.Equal(t, `    <form:label path="orderStatus">Status</form:label>`, got[1])
	assert.Equal(t, `    <form:input path="orderStatus"/>`, got[2])

	out = generateOne(t, JSP{}, f.input(removeSpec("status"), form))
	require.Len(t, out.Patches, 2)
	got = applyPatches(f.src[form.File], out.Patches)
	assert.Len(t, got, 3)
}

// =============================================================================
// Round trip
// =============================================================================

const mysqlMigration = `create table users (
    id bigint primary key,
    status varchar(20)
);
`

func TestRenameRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	mysqlUsers := &graph.Symbol{ID: "sym:mysql-users", Name: "users", QualifiedName: "users", Kind: graph.KindTable,
		Language: "sql", Dialect: "mysql", File: "db/mysql.sql", LineStart: 1, LineEnd: 4}

	cases := []struct {
		name   string
		gen    Generator
		file   string
		sym    string
		symbol *graph.Symbol
		src    []string
	}{
		{name: "java", gen: Java{}, file: "src/User.java", sym: "com.acme.User.status"},
		{name: "python", gen: Python{}, file: "app/models.py", sym: "app.models.User"},
		{name: "typescript", gen: TypeScript{}, file: "web/user.ts", sym: "User"},
		{name: "jsp", gen: JSP{}, file: "WEB-INF/user-form.jsp", sym: "userForm"},
		{name: "sql/postgres", gen: mustSQL(t, "postgres"), file: "db/migration.sql", sym: "USERS"},
		{name: "sql/oracle", gen: mustSQL(t, "oracle"), file: "db/migration.sql", sym: "USERS"},
		{name: "sql/sqlserver", gen: mustSQL(t, "sqlserver"), file: "db/migration.sql", sym: "USERS"},
		{name: "sql/mysql upper-case source", gen: mustSQL(t, "mysql"), file: "db/migration.sql", sym: "USERS"},
		{name: "sql/mysql", gen: mustSQL(t, "mysql"), file: "db/mysql.sql", symbol: mysqlUsers,
			src: SplitLines(mysqlMigration)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.symbol
			if s == nil {
				s = f.sym(tc.file, tc.sym)
			}
			original := tc.src
			if original == nil {
				original = f.src[tc.file]
			}

			in := f.input(renameSpec("status", "orderStatus"), s)
			in.Sources = Sources{tc.file: original}
			fwd := generateOne(t, tc.gen, in)
			require.NotEmpty(t, fwd.Patches)
			renamed := applyPatches(original, fwd.Patches)
			require.NotEqual(t, original, renamed)

			in = f.input(renameSpec("orderStatus", "status"), s)
			in.Sources = Sources{tc.file: renamed}
			back := generateOne(t, tc.gen, in)
			assert.Equal(t, original, applyPatches(renamed, back.Patches))
		})
	}

	t.Run("mysql keeps lower snake case", func(t *testing.T) {
		in := f.input(renameSpec("status", "orderStatus"), mysqlUsers)
		in.Sources = Sources{"db/mysql.sql": SplitLines(mysqlMigration)}
		out := generateOne(t, mustSQL(t, "mysql"), in)
		require.Len(t, out.Patches, 1)
		assert.Equal(t, "    order_status varchar(20)", out.Patches[0].NewText)
	})
}

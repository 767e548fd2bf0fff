package ripple

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jward/ripple/internal/naming"
)

// =============================================================================
// Fixture: a User entity in Java, a JSP form bound to it and the SQL table
// derived from it.
// =============================================================================

const (
	userJavaPath  = "src/User.java"
	userFormPath  = "WEB-INF/user-form.jsp"
	migrationPath = "db/migration.sql"
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

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine opens an engine rooted at the fixture tree unless opts
// choose another root.
func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ripple.db")
	e, err := New(dbPath, append([]Option{WithLogger(quietLogger()), WithRoot(userTree(t))}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// writeTree writes files under a new temp dir and returns the dir.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func userTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		userJavaPath:  userJava,
		userFormPath:  userFormJsp,
		migrationPath: migrationSQL,
	})
}

// touchTree creates an empty file for every file symbols name and returns
// the tree's root.
func touchTree(t *testing.T, symbols []*Symbol) string {
	t.Helper()
	files := make(map[string]string)
	for _, s := range symbols {
		files[s.File] = ""
	}
	return writeTree(t, files)
}

func mk(name, qname string, kind Kind, lang, file string, start, end int) *Symbol {
	return &Symbol{
		ID: StableID(file, qname), Name: name, QualifiedName: qname, Kind: kind,
		Language: lang, File: file, LineStart: start, LineEnd: end,
	}
}

var userID = StableID(userJavaPath, "com.acme.User")

// userGraph is the index of the fixture tree with the User field called
// field. Line ranges match the fixture files.
func userGraph(field string) ([]*Symbol, []Edge) {
	camel := naming.Camel.Apply(field)
	pascal := naming.Pascal.Apply(field)
	col := naming.UpperSnake.Apply(field)

	user := mk("User", "com.acme.User", KindEntity, "java", userJavaPath, 4, 15)
	f := mk(camel, "com.acme.User."+camel, KindField, "java", userJavaPath, 6, 6)
	getter := mk("get"+pascal, "com.acme.User.get"+pascal, KindMethod, "java", userJavaPath, 8, 10)
	setter := mk("set"+pascal, "com.acme.User.set"+pascal, KindMethod, "java", userJavaPath, 12, 14)
	form := mk("userForm", "userForm", KindForm, "jsp", userFormPath, 1, 5)
	table := mk("USERS", "USERS", KindTable, "sql", migrationPath, 1, 4)
	table.Dialect = "postgres"
	column := mk(col, "USERS."+col, KindColumn, "sql", migrationPath, 3, 3)
	column.Dialect = "postgres"

	symbols := []*Symbol{user, f, getter, setter, form, table, column}
	edges := []Edge{
		{From: user.ID, To: f.ID, Kind: EdgeDefines},
		{From: user.ID, To: getter.ID, Kind: EdgeDefines},
		{From: user.ID, To: setter.ID, Kind: EdgeDefines},
		{From: table.ID, To: column.ID, Kind: EdgeDefines},
		{From: table.ID, To: user.ID, Kind: EdgeDerivedFrom},
		{From: column.ID, To: f.ID, Kind: EdgeDerivedFrom},
		{From: form.ID, To: user.ID, Kind: EdgeReferences},
	}
	return symbols, edges
}

func addSpec(target, name, typ string) ChangeSpec {
	return ChangeSpec{Kind: AddField, Target: target, Params: Params{Name: name, Type: typ}}
}

func renameSpec(target, old, repl string) ChangeSpec {
	return ChangeSpec{Kind: RenameField, Target: target, Params: Params{OldName: old, NewName: repl}}
}

func removeSpec(target, name string) ChangeSpec {
	return ChangeSpec{Kind: RemoveField, Target: target, Params: Params{Name: name}}
}

func impactNames(ims []Impact) []string {
	out := make([]string, len(ims))
	for i, im := range ims {
		out[i] = im.Symbol.QualifiedName
	}
	return out
}

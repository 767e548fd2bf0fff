package generate

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jward/ripple/internal/change"
	"github.com/jward/ripple/internal/graph"
	"github.com/jward/ripple/internal/naming"
	"github.com/jward/ripple/internal/typemap"
)

// Dialect holds the identifier casing and column DDL of one SQL dialect.
type Dialect struct {
	Name      string
	Case      naming.Convention
	addColumn string // table, column, type
	target    string
}

var dialects = map[string]Dialect{
	"postgres":  {Name: "postgres", Case: naming.UpperSnake, addColumn: "ALTER TABLE %s ADD COLUMN %s %s;", target: typemap.Postgres},
	"oracle":    {Name: "oracle", Case: naming.UpperSnake, addColumn: "ALTER TABLE %s ADD (%s %s);", target: typemap.Oracle},
	"mysql":     {Name: "mysql", Case: naming.Snake, addColumn: "ALTER TABLE %s ADD COLUMN %s %s;", target: typemap.MySQL},
	"sqlserver": {Name: "sqlserver", Case: naming.UpperSnake, addColumn: "ALTER TABLE %s ADD %s %s;", target: typemap.SQLServer},
}

// LookupDialect returns a supported dialect by name.
func LookupDialect(name string) (Dialect, bool) {
	d, ok := dialects[strings.ToLower(name)]
	return d, ok
}

// Dialects returns the supported dialect names in sorted order.
func Dialects() []string {
	out := make([]string, 0, len(dialects))
	for name := range dialects {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Column returns name in the dialect's native identifier casing.
func (d Dialect) Column(name string) string { return d.Case.Apply(name) }

// AddColumn renders the dialect's ALTER TABLE ... ADD statement.
func (d Dialect) AddColumn(table, column, generic string, length int) (string, error) {
	typ, err := typemap.Native(d.target, generic, length)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(d.addColumn, table, column, typ), nil
}

// DropColumn renders the dialect's ALTER TABLE ... DROP COLUMN statement.
func (d Dialect) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", table, column)
}

// SQL emits migrations for tables and in-place renames for one dialect.
// Added and dropped columns are appended as ALTER TABLE statements after
// the table statement, leaving earlier DDL untouched.
type SQL struct {
	dialect Dialect
}

// NewSQL returns the generator for a dialect name.
func NewSQL(dialect string) (SQL, error) {
	d, ok := LookupDialect(dialect)
	if !ok {
		return SQL{}, fmt.Errorf("unknown SQL dialect %q", dialect)
	}
	return SQL{dialect: d}, nil
}

func (g SQL) Key() Key { return Key{Language: "sql", Dialect: g.dialect.Name} }

func (g SQL) Generate(_ context.Context, in Input) (Output, error) {
	e := newEditor(g.Key())
	for _, sym := range in.Symbols {
		if warnIfTest(e, in, sym) {
			continue
		}
		e.run(sym, func() error {
			switch in.Change.Kind {
			case change.AddField:
				return g.add(e, in, sym)
			case change.RenameField:
				return renameLines(e, in, sym, sym.LineStart, sym.LineEnd,
					g.renameFn(in.Change.Params.OldName, in.Change.Params.NewName))
			case change.RemoveField:
				return g.remove(e, in, sym)
			}
			return fmt.Errorf("unsupported change kind %q", in.Change.Kind)
		})
	}
	return e.out, nil
}

// table resolves the table a symbol belongs to.
func (g SQL) table(in Input, sym *graph.Symbol) *graph.Symbol {
	if sym.Kind == graph.KindColumn {
		if p := in.Parent(sym); p != nil && p.File == sym.File {
			return p
		}
	}
	return sym
}

func (g SQL) add(e *editor, in Input, sym *graph.Symbol) error {
	p := in.Change.Params
	table := g.table(in, sym)
	col := g.dialect.Column(p.Name)
	src, err := in.Lines(table.File)
	if err != nil {
		return err
	}
	added := regexp.MustCompile(`(?i)ALTER\s+TABLE\s+["\x60\[]?` + regexp.QuoteMeta(table.Name) +
		`["\x60\]]?\s+ADD\s+(COLUMN\s+)?\(?\s*["\x60\[]?` + regexp.QuoteMeta(col) + `\b`)
	if alreadyDefined(in, table, col) || anyLine(src, 1, len(src), added) {
		e.note(change.Info(change.CodeAlreadyDefined, table.ID, table.File, "%s already has column %s", table.Name, col))
		return nil
	}
	stmt, err := g.dialect.AddColumn(table.Name, col, p.Type, p.Length)
	if err != nil {
		return err
	}
	patch, err := change.InsertAfter(table.File, src, table.LineEnd, []string{"", stmt},
		fmt.Sprintf("%s: add column %s to %s", g.dialect.Name, col, table.Name))
	if err != nil {
		return err
	}
	e.emit(table, patch)
	return nil
}

// renameFn maps occurrences of the old column name, matched without regard
// to case. Each occurrence keeps its own casing; mixed-case occurrences take
// the dialect's casing, and an exact camelCase occurrence stays camelCase.
func (g SQL) renameFn(old, repl string) func(string) (string, bool) {
	snakeOld := strings.ToLower(naming.Snake.Apply(old))
	camelOld := naming.Camel.Apply(old)
	camelRepl := naming.Camel.Apply(repl)
	target := g.dialect.Column(repl)
	return func(tok string) (string, bool) {
		if tok == camelOld && camelOld != strings.ToLower(camelOld) {
			return camelRepl, true
		}
		if strings.ToLower(tok) != snakeOld {
			return "", false
		}
		return naming.MatchCase(tok, target), true
	}
}

func (g SQL) remove(e *editor, in Input, sym *graph.Symbol) error {
	name := in.Change.Params.Name
	switch sym.Kind {
	case graph.KindTable, graph.KindColumn:
		table := g.table(in, sym)
		col := g.dialect.Column(name)
		if sym.Kind == graph.KindColumn {
			col = sym.Name
		}
		src, err := in.Lines(table.File)
		if err != nil {
			return err
		}
		patch, err := change.InsertAfter(table.File, src, table.LineEnd,
			[]string{"", g.dialect.DropColumn(table.Name, col)},
			fmt.Sprintf("%s: drop column %s from %s", g.dialect.Name, col, table.Name))
		if err != nil {
			return err
		}
		e.emit(table, patch)
		return nil
	}
	match := g.renameFn(name, name)
	return deleteMatching(e, in, sym, sym.LineStart, sym.LineEnd, func(tok string) bool {
		_, ok := match(tok)
		return ok
	})
}

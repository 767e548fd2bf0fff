// Package typemap is the shared generic-to-native type table consulted by
// every patch generator, so one change parameter type produces consistent
// declarations across languages and SQL dialects.
package typemap

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownType is returned for a generic type with no table row.
var ErrUnknownType = errors.New("unknown generic type")

// Targets.
const (
	Java       = "java"
	Python     = "python"
	TypeScript = "typescript"
	JSP        = "jsp"
	Postgres   = "sql/postgres"
	Oracle     = "sql/oracle"
	MySQL      = "sql/mysql"
	SQLServer  = "sql/sqlserver"
)

// DefaultLength is the string column length when none is given.
const DefaultLength = 255

// row is one generic type across all targets. SQL entries may contain a
// single %d verb that receives the column length.
type row map[string]string

var table = map[string]row{
	"string": {
		Java: "String", Python: "str", TypeScript: "string", JSP: "text",
		Postgres: "VARCHAR(%d)", Oracle: "VARCHAR2(%d)", MySQL: "VARCHAR(%d)", SQLServer: "NVARCHAR(%d)",
	},
	"text": {
		Java: "String", Python: "str", TypeScript: "string", JSP: "textarea",
		Postgres: "TEXT", Oracle: "CLOB", MySQL: "TEXT", SQLServer: "NVARCHAR(MAX)",
	},
	"int": {
		Java: "Integer", Python: "int", TypeScript: "number", JSP: "number",
		Postgres: "INTEGER", Oracle: "NUMBER(10)", MySQL: "INT", SQLServer: "INT",
	},
	"long": {
		Java: "Long", Python: "int", TypeScript: "number", JSP: "number",
		Postgres: "BIGINT", Oracle: "NUMBER(19)", MySQL: "BIGINT", SQLServer: "BIGINT",
	},
	"bool": {
		Java: "Boolean", Python: "bool", TypeScript: "boolean", JSP: "checkbox",
		Postgres: "BOOLEAN", Oracle: "NUMBER(1)", MySQL: "TINYINT(1)", SQLServer: "BIT",
	},
	"decimal": {
		Java: "BigDecimal", Python: "Decimal", TypeScript: "number", JSP: "number",
		Postgres: "NUMERIC(19,4)", Oracle: "NUMBER(19,4)", MySQL: "DECIMAL(19,4)", SQLServer: "DECIMAL(19,4)",
	},
	"float": {
		Java: "Double", Python: "float", TypeScript: "number", JSP: "number",
		Postgres: "DOUBLE PRECISION", Oracle: "BINARY_DOUBLE", MySQL: "DOUBLE", SQLServer: "FLOAT",
	},
	"date": {
		Java: "LocalDate", Python: "date", TypeScript: "string", JSP: "date",
		Postgres: "DATE", Oracle: "DATE", MySQL: "DATE", SQLServer: "DATE",
	},
	"datetime": {
		Java: "LocalDateTime", Python: "datetime", TypeScript: "Date", JSP: "datetime-local",
		Postgres: "TIMESTAMP", Oracle: "TIMESTAMP", MySQL: "DATETIME", SQLServer: "DATETIME2",
	},
	"uuid": {
		Java: "UUID", Python: "UUID", TypeScript: "string", JSP: "text",
		Postgres: "UUID", Oracle: "RAW(16)", MySQL: "CHAR(36)", SQLServer: "UNIQUEIDENTIFIER",
	},
}

var aliases = map[string]string{
	"str":       "string",
	"varchar":   "string",
	"integer":   "int",
	"int32":     "int",
	"int64":     "long",
	"bigint":    "long",
	"boolean":   "bool",
	"double":    "float",
	"numeric":   "decimal",
	"timestamp": "datetime",
}

// Normalize lowercases a generic type name and resolves aliases.
func Normalize(generic string) string {
	g := strings.ToLower(strings.TrimSpace(generic))
	if a, ok := aliases[g]; ok {
		return a
	}
	return g
}

// Known reports whether generic has a table row.
func Known(generic string) bool {
	_, ok := table[Normalize(generic)]
	return ok
}

// Generics returns the canonical generic type names in sorted order.
func Generics() []string {
	out := make([]string, 0, len(table))
	for g := range table {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Native returns the declaration type for generic in target. length applies
// to sized string columns; zero selects DefaultLength. A target without its
// own column falls back to its language family, so "sql/db2" resolves like
// "sql/postgres" and an unknown target is an error.
func Native(target, generic string, length int) (string, error) {
	r, ok := table[Normalize(generic)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, generic)
	}
	native, ok := r[target]
	if !ok && strings.HasPrefix(target, "sql/") {
		native, ok = r[Postgres]
	}
	if !ok {
		return "", fmt.Errorf("no %q mapping for target %q", generic, target)
	}
	if strings.Contains(native, "%d") {
		if length <= 0 {
			length = DefaultLength
		}
		native = fmt.Sprintf(native, length)
	}
	return native, nil
}

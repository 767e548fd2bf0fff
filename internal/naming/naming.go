// Package naming converts identifiers between the case conventions of the
// supported languages and performs whole-identifier replacement in source
// lines.
package naming

import (
	"strings"

	"github.com/iancoleman/strcase"
)

// Convention is an identifier casing style.
type Convention string

const (
	Camel      Convention = "camel"       // orderStatus
	Pascal     Convention = "pascal"      // OrderStatus
	Snake      Convention = "snake"       // order_status
	UpperSnake Convention = "upper_snake" // ORDER_STATUS
)

// Apply converts name to c.
func (c Convention) Apply(name string) string {
	switch c {
	case Camel:
		return strcase.ToLowerCamel(name)
	case Pascal:
		return strcase.ToCamel(name)
	case Snake:
		return strcase.ToSnake(name)
	case UpperSnake:
		return strcase.ToScreamingSnake(name)
	}
	return name
}

// Equivalent reports whether a and b name the same field once case
// conventions are ignored: "orderStatus", "order_status" and "ORDER_STATUS"
// are all equivalent.
func Equivalent(a, b string) bool {
	return strcase.ToSnake(a) == strcase.ToSnake(b)
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// indexIdent returns the byte offsets of whole-identifier occurrences of
// ident in line. haystack and needle must have equal byte lengths to line
// and ident.
func indexIdent(line, haystack, needle string) []int {
	if needle == "" {
		return nil
	}
	var out []int
	for pos := 0; pos <= len(haystack)-len(needle); {
		i := strings.Index(haystack[pos:], needle)
		if i < 0 {
			break
		}
		start := pos + i
		end := start + len(needle)
		if (start == 0 || !isIdentByte(line[start-1])) && (end == len(line) || !isIdentByte(line[end])) {
			out = append(out, start)
			pos = end
			continue
		}
		pos = start + 1
	}
	return out
}

// ContainsIdent reports whether line contains ident as a whole identifier.
func ContainsIdent(line, ident string) bool {
	return len(indexIdent(line, line, ident)) > 0
}

// ContainsIdentFold is ContainsIdent ignoring ASCII case.
func ContainsIdentFold(line, ident string) bool {
	return len(indexIdent(line, asciiLower(line), asciiLower(ident))) > 0
}

// ReplaceIdent replaces every whole-identifier occurrence of old in line
// with repl and returns the new line and the number of replacements.
func ReplaceIdent(line, old, repl string) (string, int) {
	return replaceAt(line, indexIdent(line, line, old), len(old), func(string) string { return repl })
}

// ReplaceIdentFold replaces whole-identifier occurrences of old regardless
// of case. Each replacement takes the casing of the occurrence it replaces
// (see MatchCase), so "email", "EMAIL" and "Email" map to their own forms.
func ReplaceIdentFold(line, old, repl string) (string, int) {
	hits := indexIdent(line, asciiLower(line), asciiLower(old))
	return replaceAt(line, hits, len(old), func(found string) string { return MatchCase(found, repl) })
}

// ReplaceTokens rewrites every identifier token of line for which fn
// reports a replacement. Tokens are visited once, left to right, so a
// replacement is never itself rewritten by a later mapping.
func ReplaceTokens(line string, fn func(tok string) (string, bool)) (string, int) {
	var b strings.Builder
	n := 0
	for i := 0; i < len(line); {
		if !isIdentByte(line[i]) {
			b.WriteByte(line[i])
			i++
			continue
		}
		j := i
		for j < len(line) && isIdentByte(line[j]) {
			j++
		}
		tok := line[i:j]
		if repl, ok := fn(tok); ok {
			b.WriteString(repl)
			n++
		} else {
			b.WriteString(tok)
		}
		i = j
	}
	if n == 0 {
		return line, 0
	}
	return b.String(), n
}

// HasToken reports whether any identifier token of line satisfies fn.
func HasToken(line string, fn func(tok string) bool) bool {
	found := false
	ReplaceTokens(line, func(tok string) (string, bool) {
		if !found && fn(tok) {
			found = true
		}
		return "", false
	})
	return found
}

func replaceAt(line string, hits []int, n int, repl func(found string) string) (string, int) {
	if len(hits) == 0 {
		return line, 0
	}
	var b strings.Builder
	prev := 0
	for _, h := range hits {
		b.WriteString(line[prev:h])
		b.WriteString(repl(line[h : h+n]))
		prev = h + n
	}
	b.WriteString(line[prev:])
	return b.String(), len(hits)
}

// MatchCase returns repl upper-cased when sample has no lower-case letters,
// lower-cased when sample has no upper-case letters, and unchanged
// otherwise.
func MatchCase(sample, repl string) string {
	hasUpper, hasLower := false, false
	for i := 0; i < len(sample); i++ {
		c := sample[i]
		switch {
		case 'a' <= c && c <= 'z':
			hasLower = true
		case 'A' <= c && c <= 'Z':
			hasUpper = true
		}
	}
	switch {
	case hasUpper && !hasLower:
		return strings.ToUpper(repl)
	case hasLower && !hasUpper:
		return strings.ToLower(repl)
	}
	return repl
}

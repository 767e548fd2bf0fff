// Package graph holds the in-memory symbol graph: symbols, typed edges and
// the immutable, versioned snapshot that queries run against.
//
// A Snapshot is never mutated after NewSnapshot returns. Replacement happens
// by publishing a new Snapshot into a Holder, which swaps a single pointer, so
// a reader that loaded a snapshot keeps a consistent view for the whole call.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Kind classifies a symbol.
type Kind string

const (
	KindEntity    Kind = "entity"
	KindField     Kind = "field"
	KindMethod    Kind = "method"
	KindFunction  Kind = "function"
	KindType      Kind = "type"
	KindTable     Kind = "table"
	KindColumn    Kind = "column"
	KindUIBinding Kind = "ui_binding"
	KindForm      Kind = "form"
	KindModule    Kind = "module"
)

// EdgeKind is the relationship carried by an Edge.
type EdgeKind string

const (
	EdgeDefines      EdgeKind = "DEFINES"
	EdgeReferences   EdgeKind = "REFERENCES"
	EdgeCalls        EdgeKind = "CALLS"
	EdgeDerivedFrom  EdgeKind = "DERIVED_FROM"
	EdgeDocumentedBy EdgeKind = "DOCUMENTED_BY"
	EdgeMappedTo     EdgeKind = "MAPPED_TO"
)

// Valid reports whether k is one of the known edge kinds.
func (k EdgeKind) Valid() bool {
	switch k {
	case EdgeDefines, EdgeReferences, EdgeCalls, EdgeDerivedFrom, EdgeDocumentedBy, EdgeMappedTo:
		return true
	}
	return false
}

// Symbol is a named, typed, located program entity.
//
// Lines are 1-based and inclusive. (File, LineStart, LineEnd) is not unique:
// generated or templated code may alias the same range.
type Symbol struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	QualifiedName string            `json:"qualified_name"`
	Kind          Kind              `json:"kind"`
	Language      string            `json:"language"`
	Dialect       string            `json:"dialect,omitempty"`
	File          string            `json:"file"`
	LineStart     int               `json:"line_start"`
	LineEnd       int               `json:"line_end"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// Container returns the qualified name of the enclosing scope, or "" for a
// top-level symbol.
func (s *Symbol) Container() string {
	i := strings.LastIndex(s.QualifiedName, ".")
	if i < 0 {
		return ""
	}
	return s.QualifiedName[:i]
}

// Attr returns an attribute value, or "" when unset.
func (s *Symbol) Attr(key string) string {
	if s.Attributes == nil {
		return ""
	}
	return s.Attributes[key]
}

// Edge is a directed, typed relationship between two symbol ids.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Location is a file range.
type Location struct {
	File      string `json:"file"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
}

// Location returns the symbol's file range.
func (s *Symbol) Location() Location {
	return Location{File: s.File, LineStart: s.LineStart, LineEnd: s.LineEnd}
}

// StableID derives a symbol id from its declaring file and fully qualified
// name. The id only changes when the symbol is renamed or moved.
func StableID(file, qualifiedName string) string {
	h := sha256.Sum256([]byte(file + "\x00" + qualifiedName))
	return "sym:" + hex.EncodeToString(h[:8])
}

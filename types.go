package ripple

import (
	"github.com/jward/ripple/internal/change"
	"github.com/jward/ripple/internal/generate"
	"github.com/jward/ripple/internal/graph"
)

// Public type aliases for the internal graph, change and generate types.
// These are Go type aliases (=), identical to the internal types at compile
// time, so no conversion is needed at the package boundary.

type Symbol = graph.Symbol
type Edge = graph.Edge
type Kind = graph.Kind
type EdgeKind = graph.EdgeKind
type Location = graph.Location
type Snapshot = graph.Snapshot

type ChangeSpec = change.Spec
type ChangeKind = change.Kind
type Params = change.Params
type Patch = change.Patch
type Note = change.Note
type NoteCode = change.Code

type Generator = generate.Generator
type GeneratorKey = generate.Key
type GeneratorInput = generate.Input
type GeneratorOutput = generate.Output

// Symbol kinds.
const (
	KindEntity    = graph.KindEntity
	KindField     = graph.KindField
	KindMethod    = graph.KindMethod
	KindFunction  = graph.KindFunction
	KindType      = graph.KindType
	KindTable     = graph.KindTable
	KindColumn    = graph.KindColumn
	KindUIBinding = graph.KindUIBinding
	KindForm      = graph.KindForm
	KindModule    = graph.KindModule
)

// Edge kinds.
const (
	EdgeDefines      = graph.EdgeDefines
	EdgeReferences   = graph.EdgeReferences
	EdgeCalls        = graph.EdgeCalls
	EdgeDerivedFrom  = graph.EdgeDerivedFrom
	EdgeDocumentedBy = graph.EdgeDocumentedBy
	EdgeMappedTo     = graph.EdgeMappedTo
)

// Change kinds.
const (
	AddField    = change.AddField
	RenameField = change.RenameField
	RemoveField = change.RemoveField
)

// Note codes.
const (
	CodeUnsupportedLanguage = change.CodeUnsupportedLanguage
	CodeZeroReferences      = change.CodeZeroReferences
	CodeTestReference       = change.CodeTestReference
	CodeAlreadyDefined      = change.CodeAlreadyDefined
	CodeGenerationFailed    = change.CodeGenerationFailed
	CodeSyntaxError         = change.CodeSyntaxError
	CodeStaleEdge           = change.CodeStaleEdge
	CodeCrossLanguage       = change.CodeCrossLanguage
)

// SchemaVersion is the snapshot layout version this build writes.
const SchemaVersion = graph.SchemaVersion

// StableID derives a symbol id from its declaring file and qualified name.
func StableID(file, qualifiedName string) string {
	return graph.StableID(file, qualifiedName)
}

package change

import "fmt"

// Severity grades a Note.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Code identifies the condition a Note reports.
type Code string

const (
	CodeUnsupportedLanguage Code = "unsupported_language"
	CodeZeroReferences      Code = "zero_references"
	CodeTestReference       Code = "test_reference"
	CodeAlreadyDefined      Code = "already_defined"
	CodeGenerationFailed    Code = "generation_failed"
	CodeSyntaxError         Code = "syntax_error"
	CodeStaleEdge           Code = "stale_edge"
	CodeCrossLanguage       Code = "cross_language"
)

// Note is a non-fatal finding attached to a plan or manifest.
type Note struct {
	Severity Severity `json:"severity"`
	Code     Code     `json:"code"`
	SymbolID string   `json:"symbol_id,omitempty"`
	File     string   `json:"file,omitempty"`
	Message  string   `json:"message"`
}

// Warning builds a warning-level note.
func Warning(code Code, symbolID, file, format string, args ...any) Note {
	return Note{Severity: SeverityWarning, Code: code, SymbolID: symbolID, File: file, Message: fmt.Sprintf(format, args...)}
}

// Info builds an info-level note.
func Info(code Code, symbolID, file, format string, args ...any) Note {
	return Note{Severity: SeverityInfo, Code: code, SymbolID: symbolID, File: file, Message: fmt.Sprintf(format, args...)}
}

func (n Note) String() string {
	loc := n.File
	if loc == "" {
		loc = n.SymbolID
	}
	if loc == "" {
		return fmt.Sprintf("[%s] %s: %s", n.Severity, n.Code, n.Message)
	}
	return fmt.Sprintf("[%s] %s %s: %s", n.Severity, n.Code, loc, n.Message)
}

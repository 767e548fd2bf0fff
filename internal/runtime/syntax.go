package runtime

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// SyntaxIssue is one ERROR or MISSING node found by CheckSyntax. Lines and
// columns are 1-based.
type SyntaxIssue struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

func (i SyntaxIssue) String() string {
	return fmt.Sprintf("%d:%d: %s", i.Line, i.Column, i.Message)
}

// maxSyntaxIssues caps how many issues one file reports.
const maxSyntaxIssues = 20

// CheckSyntax parses src with the grammar for path's language and returns
// the parse errors it contains. checked is false when the language has no
// grammar, in which case nothing was verified.
func CheckSyntax(ctx context.Context, path string, src []byte) (issues []SyntaxIssue, checked bool, err error) {
	langName, ok := LanguageForFile(path)
	if !ok {
		return nil, false, nil
	}
	lang, ok := ParserForLanguage(langName)
	if !ok {
		return nil, false, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, false, fmt.Errorf("runtime: parsing %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil, true, nil
	}
	collectIssues(root, &issues)
	if len(issues) == 0 {
		p := root.StartPoint()
		issues = append(issues, SyntaxIssue{Line: int(p.Row) + 1, Column: int(p.Column) + 1, Message: "syntax error"})
	}
	return issues, true, nil
}

func collectIssues(n *sitter.Node, out *[]SyntaxIssue) {
	if len(*out) >= maxSyntaxIssues {
		return
	}
	switch {
	case n.IsMissing():
		p := n.StartPoint()
		*out = append(*out, SyntaxIssue{Line: int(p.Row) + 1, Column: int(p.Column) + 1,
			Message: fmt.Sprintf("missing %s", n.Type())})
		return
	case n.Type() == "ERROR":
		p := n.StartPoint()
		*out = append(*out, SyntaxIssue{Line: int(p.Row) + 1, Column: int(p.Column) + 1,
			Message: "unexpected input"})
		return
	}
	if !n.HasError() {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		collectIssues(n.Child(i), out)
	}
}

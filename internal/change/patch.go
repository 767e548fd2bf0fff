package change

import (
	"fmt"
	"sort"
	"strings"
)

// Patch replaces lines [LineStart, LineEnd] of File (1-based, inclusive)
// with NewText. OldText is the exact original text of those lines joined by
// "\n" and is verified before writing. An empty NewText deletes the lines.
// Insertions keep their anchor line inside NewText.
type Patch struct {
	File        string `json:"file"`
	LineStart   int    `json:"line_start"`
	LineEnd     int    `json:"line_end"`
	OldText     string `json:"old_text"`
	NewText     string `json:"new_text"`
	Description string `json:"description"`
	SymbolID    string `json:"symbol_id,omitempty"`
	Generator   string `json:"generator,omitempty"`
}

// Overlaps reports whether p and q touch a shared line of the same file.
func (p Patch) Overlaps(q Patch) bool {
	return p.File == q.File && p.LineStart <= q.LineEnd && q.LineStart <= p.LineEnd
}

// IsDeletion reports whether the patch removes its lines.
func (p Patch) IsDeletion() bool { return p.NewText == "" }

func (p Patch) String() string {
	return fmt.Sprintf("%s:%d-%d %s", p.File, p.LineStart, p.LineEnd, p.Description)
}

// NewLines returns NewText split into lines; a deletion has none.
func (p Patch) NewLines() []string {
	if p.NewText == "" {
		return nil
	}
	return strings.Split(p.NewText, "\n")
}

// Replace builds a patch over lines [start, end] of src, a file's lines.
func Replace(file string, src []string, start, end int, newLines []string, desc string) (Patch, error) {
	if start < 1 || end < start || end > len(src) {
		return Patch{}, fmt.Errorf("%s: line range %d-%d outside 1-%d", file, start, end, len(src))
	}
	return Patch{
		File:        file,
		LineStart:   start,
		LineEnd:     end,
		OldText:     strings.Join(src[start-1:end], "\n"),
		NewText:     strings.Join(newLines, "\n"),
		Description: desc,
	}, nil
}

// InsertBefore builds a patch that inserts lines ahead of line n of src.
func InsertBefore(file string, src []string, n int, lines []string, desc string) (Patch, error) {
	if n < 1 || n > len(src) {
		return Patch{}, fmt.Errorf("%s: anchor line %d outside 1-%d", file, n, len(src))
	}
	return Replace(file, src, n, n, append(append([]string{}, lines...), src[n-1]), desc)
}

// InsertAfter builds a patch that inserts lines after line n of src.
func InsertAfter(file string, src []string, n int, lines []string, desc string) (Patch, error) {
	if n < 1 || n > len(src) {
		return Patch{}, fmt.Errorf("%s: anchor line %d outside 1-%d", file, n, len(src))
	}
	return Replace(file, src, n, n, append([]string{src[n-1]}, lines...), desc)
}

// Delete builds a patch removing lines [start, end] of src.
func Delete(file string, src []string, start, end int, desc string) (Patch, error) {
	return Replace(file, src, start, end, nil, desc)
}

// SortPatches orders patches by (file, line_start, line_end).
func SortPatches(ps []Patch) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.LineStart != b.LineStart {
			return a.LineStart < b.LineStart
		}
		return a.LineEnd < b.LineEnd
	})
}

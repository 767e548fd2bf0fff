package ripple

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// Preview renders the manifest as a unified diff for review. It needs no
// file access: each patch carries its original and replacement text, and
// lines shared by both ends of a patch are shown as context.
func (m *Manifest) Preview() (string, error) {
	var fds []*diff.FileDiff
	for _, g := range m.ByFile() {
		fds = append(fds, fileDiff(g))
	}
	if len(fds) == 0 {
		return "", nil
	}
	out, err := diff.PrintMultiFileDiff(fds)
	if err != nil {
		return "", fmt.Errorf("ripple: preview: %w", err)
	}
	return string(out), nil
}

func fileDiff(g FilePatches) *diff.FileDiff {
	ps := append([]Patch(nil), g.Patches...)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].LineStart < ps[j].LineStart })

	fd := &diff.FileDiff{OrigName: "a/" + g.File, NewName: "b/" + g.File}
	shift := 0
	for _, p := range ps {
		h := hunk(p, shift)
		shift += int(h.NewLines) - int(h.OrigLines)
		fd.Hunks = append(fd.Hunks, h)
	}
	return fd
}

// hunk converts p into a diff hunk; shift is the net line count added by
// earlier hunks of the same file.
func hunk(p Patch, shift int) *diff.Hunk {
	oldLines := strings.Split(p.OldText, "\n")
	newLines := p.NewLines()

	pre := 0
	for pre < len(oldLines) && pre < len(newLines) && oldLines[pre] == newLines[pre] {
		pre++
	}
	post := 0
	for post < len(oldLines)-pre && post < len(newLines)-pre &&
		oldLines[len(oldLines)-1-post] == newLines[len(newLines)-1-post] {
		post++
	}

	var body bytes.Buffer
	for _, l := range oldLines[:pre] {
		body.WriteString(" " + l + "\n")
	}
	for _, l := range oldLines[pre : len(oldLines)-post] {
		body.WriteString("-" + l + "\n")
	}
	for _, l := range newLines[pre : len(newLines)-post] {
		body.WriteString("+" + l + "\n")
	}
	for _, l := range oldLines[len(oldLines)-post:] {
		body.WriteString(" " + l + "\n")
	}

	newStart := p.LineStart + shift
	if len(newLines) == 0 {
		newStart--
	}
	return &diff.Hunk{
		OrigStartLine: int32(p.LineStart),
		OrigLines:     int32(len(oldLines)),
		NewStartLine:  int32(newStart),
		NewLines:      int32(len(newLines)),
		Section:       p.Description,
		Body:          body.Bytes(),
	}
}

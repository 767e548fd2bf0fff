package ripple

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jward/ripple/internal/change"
	"github.com/jward/ripple/internal/generate"
	"github.com/jward/ripple/internal/runtime"
)

// BackupSuffix is appended to a file's path for its pre-apply copy.
const BackupSuffix = ".orig"

// ApplyOptions configures Apply.
type ApplyOptions struct {
	// DryRun verifies every patch against the files on disk and reports
	// what would be written, without writing.
	DryRun bool

	// Force keeps going past a file that fails, collecting the failure.
	// Without it the first failure aborts before any further file is
	// written.
	Force bool

	// Backup writes a BackupSuffix copy of each file before replacing it.
	Backup bool

	// CheckSyntax parses each written file and records syntax_error notes.
	// It never blocks a write.
	CheckSyntax bool
}

// FileFailure is a file whose patches were not applied.
type FileFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// ApplyResult reports the outcome of Apply.
type ApplyResult struct {
	DryRun         bool          `json:"dry_run"`
	FilesWritten   []string      `json:"files_written"`
	PatchesApplied int           `json:"patches_applied"`
	Skipped        int           `json:"skipped"`
	Failed         []FileFailure `json:"failed,omitempty"`
	Notes          []Note        `json:"notes"`
}

type fileEdit struct {
	file    string
	path    string
	patches []Patch
	mode    os.FileMode
	orig    []byte
	updated []byte
}

// Apply writes a manifest's patches to disk.
//
// All files are read and every patch's original text verified before the
// first write. Without Force, any verification or write failure aborts
// with no further files written. Within a file patches are applied from
// the bottom up so earlier edits do not shift later ones. A manifest that
// was written from is marked consumed and cannot be applied again.
func (e *Engine) Apply(ctx context.Context, m *Manifest, opts ApplyOptions) (*ApplyResult, error) {
	if m == nil {
		return nil, errors.New("ripple: apply: nil manifest")
	}
	ctx, span := startSpan(ctx, "Apply", m.Change)
	defer span.End()

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	if m.Consumed() {
		return nil, fmt.Errorf("ripple: apply manifest %s: %w", m.ID, ErrManifestConsumed)
	}
	if err := m.Validate(); err != nil {
		recordApplyMetrics(ctx, "rejected", 0)
		return nil, err
	}

	res := &ApplyResult{DryRun: opts.DryRun, FilesWritten: []string{}, Notes: []Note{}}
	var firstErr error
	fail := func(f string, n int, err error) {
		aerr := &ApplyError{File: f, Err: err}
		if firstErr == nil {
			firstErr = aerr
		}
		res.Failed = append(res.Failed, FileFailure{File: f, Error: err.Error()})
		res.Skipped += n
		e.logger.Warn("apply file failed", "file", f, "error", err)
	}

	// Phase 1: read and verify everything.
	var edits []*fileEdit
	for _, g := range m.ByFile() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ed, err := e.prepare(g)
		if err != nil {
			fail(g.File, len(g.Patches), err)
			continue
		}
		edits = append(edits, ed)
	}
	if firstErr != nil && !opts.Force {
		res.Skipped = len(m.Patches)
		recordApplyMetrics(ctx, "aborted", 0)
		return res, firstErr
	}

	if opts.DryRun {
		for _, ed := range edits {
			res.FilesWritten = append(res.FilesWritten, ed.file)
			res.PatchesApplied += len(ed.patches)
		}
		recordApplyMetrics(ctx, "dry_run", 0)
		return res, firstErr
	}

	// Phase 2: write.
	for i, ed := range edits {
		if err := e.write(ed, opts.Backup); err != nil {
			fail(ed.file, len(ed.patches), err)
			if !opts.Force {
				for _, rest := range edits[i+1:] {
					res.Skipped += len(rest.patches)
				}
				break
			}
			continue
		}
		res.FilesWritten = append(res.FilesWritten, ed.file)
		res.PatchesApplied += len(ed.patches)
		if opts.CheckSyntax {
			res.Notes = append(res.Notes, e.syntaxNotes(ctx, ed)...)
		}
	}

	if len(res.FilesWritten) > 0 {
		now := time.Now().UTC()
		m.AppliedAt = &now
	}

	outcome := "ok"
	if firstErr != nil {
		outcome = "partial"
	}
	recordApplyMetrics(ctx, outcome, len(res.FilesWritten))
	e.logger.Info("apply",
		"manifest", m.ID,
		"change", m.Change.String(),
		"files", len(res.FilesWritten),
		"patches", res.PatchesApplied,
		"skipped", res.Skipped)
	return res, firstErr
}

// prepare reads one file, verifies its patches and computes the new
// content.
func (e *Engine) prepare(g FilePatches) (*fileEdit, error) {
	path := e.resolve(g.File)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content := string(data)
	trailing := strings.HasSuffix(content, "\n")
	lines := generate.SplitLines(content)

	ps := append([]Patch(nil), g.Patches...)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].LineStart > ps[j].LineStart })
	for _, p := range ps {
		if p.LineEnd > len(lines) {
			return nil, fmt.Errorf("%w: lines %d-%d beyond end of file (%d lines)", ErrPatchMismatch, p.LineStart, p.LineEnd, len(lines))
		}
		if got := strings.Join(lines[p.LineStart-1:p.LineEnd], "\n"); got != p.OldText {
			return nil, fmt.Errorf("%w: lines %d-%d changed since generation", ErrPatchMismatch, p.LineStart, p.LineEnd)
		}
		next := make([]string, 0, len(lines)-(p.LineEnd-p.LineStart+1)+len(p.NewLines()))
		next = append(next, lines[:p.LineStart-1]...)
		next = append(next, p.NewLines()...)
		next = append(next, lines[p.LineEnd:]...)
		lines = next
	}

	out := strings.Join(lines, "\n")
	if trailing && len(lines) > 0 {
		out += "\n"
	}
	return &fileEdit{
		file:    g.File,
		path:    path,
		patches: g.Patches,
		mode:    info.Mode().Perm(),
		orig:    data,
		updated: []byte(out),
	}, nil
}

func (e *Engine) write(ed *fileEdit, backup bool) error {
	if backup {
		if err := os.WriteFile(ed.path+BackupSuffix, ed.orig, ed.mode); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
	}
	return writeFileAtomic(ed.path, ed.updated, ed.mode)
}

func (e *Engine) syntaxNotes(ctx context.Context, ed *fileEdit) []Note {
	issues, checked, err := runtime.CheckSyntax(ctx, ed.file, ed.updated)
	if err != nil {
		e.logger.Warn("syntax check", "file", ed.file, "error", err)
		return nil
	}
	if !checked {
		return nil
	}
	out := make([]Note, 0, len(issues))
	for _, is := range issues {
		out = append(out, change.Warning(change.CodeSyntaxError, "", ed.file, "%s", is.String()))
	}
	return out
}

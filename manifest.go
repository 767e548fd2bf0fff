package ripple

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jward/ripple/internal/change"
)

// Manifest is an ordered, reviewable bundle of patches with provenance.
// It is created by Generate, may be saved for review, and is consumed at
// most once by Apply.
type Manifest struct {
	ID              string     `json:"id"`
	Change          ChangeSpec `json:"change"`
	Target          *Symbol    `json:"target"`
	PlanSummary     string     `json:"plan_summary"`
	Risk            Risk       `json:"risk"`
	GeneratedAt     time.Time  `json:"generated_at"`
	SnapshotVersion string     `json:"snapshot_version"`
	Patches         []Patch    `json:"patches"`
	Notes           []Note     `json:"notes"`
	AppliedAt       *time.Time `json:"applied_at,omitempty"`
}

// FilePatches is one file's share of a manifest.
type FilePatches struct {
	File    string  `json:"file"`
	Patches []Patch `json:"patches"`
}

// NewManifest bundles patches generated for plan.
func NewManifest(plan *Plan, patches []Patch, notes []Note) *Manifest {
	if patches == nil {
		patches = []Patch{}
	}
	if notes == nil {
		notes = []Note{}
	}
	return &Manifest{
		ID:              uuid.NewString(),
		Change:          plan.Change,
		Target:          plan.Source,
		PlanSummary:     plan.Summary,
		Risk:            plan.Risk,
		GeneratedAt:     time.Now().UTC(),
		SnapshotVersion: plan.SnapshotVersion,
		Patches:         patches,
		Notes:           notes,
	}
}

// Consumed reports whether the manifest was already applied.
func (m *Manifest) Consumed() bool { return m.AppliedAt != nil }

// ByFile groups the patches by file. Files keep the order of their first
// patch and each file's patches keep generation order.
func (m *Manifest) ByFile() []FilePatches {
	var out []FilePatches
	idx := make(map[string]int)
	for _, p := range m.Patches {
		i, ok := idx[p.File]
		if !ok {
			i = len(out)
			idx[p.File] = i
			out = append(out, FilePatches{File: p.File})
		}
		out[i].Patches = append(out[i].Patches, p)
	}
	return out
}

// Files lists the files the manifest touches, in ByFile order.
func (m *Manifest) Files() []string {
	groups := m.ByFile()
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.File
	}
	return out
}

// Validate rejects a manifest with an invalid line range or with two
// patches sharing a line of the same file. Overlaps are never merged.
func (m *Manifest) Validate() error {
	for _, g := range m.ByFile() {
		ps := append([]Patch(nil), g.Patches...)
		for _, p := range ps {
			if p.LineStart < 1 || p.LineEnd < p.LineStart {
				return &ApplyError{File: g.File, Err: fmt.Errorf("%w: invalid line range %d-%d", ErrPatchMismatch, p.LineStart, p.LineEnd)}
			}
		}
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].LineStart < ps[j].LineStart })
		for i := 1; i < len(ps); i++ {
			if ps[i-1].Overlaps(ps[i]) {
				return &OverlapError{File: g.File, A: ps[i-1], B: ps[i]}
			}
		}
	}
	return nil
}

// Warnings returns the notes of warning severity or above.
func (m *Manifest) Warnings() []Note {
	var out []Note
	for _, n := range m.Notes {
		if n.Severity != change.SeverityInfo {
			out = append(out, n)
		}
	}
	return out
}

// Save writes the manifest as indented JSON.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("ripple: encode manifest: %w", err)
	}
	if err := writeFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("ripple: save manifest: %w", err)
	}
	return nil
}

// LoadManifest reads a manifest written by Save.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ripple: load manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("ripple: decode manifest %s: %w", path, err)
	}
	return &m, nil
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, mode); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

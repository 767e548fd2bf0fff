package graph

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

// ErrNoSnapshot is returned when freshness is asked of an empty Holder.
var ErrNoSnapshot = errors.New("no snapshot published")

// VersionSource reports the version the on-disk index currently declares.
type VersionSource func() (string, error)

// StaleReason says why a snapshot is not fresh.
type StaleReason string

const (
	StaleNone     StaleReason = ""
	StaleVersion  StaleReason = "version"
	StaleModified StaleReason = "modified"
	StaleMissing  StaleReason = "missing"
	StaleWatched  StaleReason = "watched"
)

// Freshness is the detailed outcome of a freshness check.
type Freshness struct {
	Fresh    bool
	Reason   StaleReason
	File     string // offending file for modified/missing/watched
	Snapshot string // version held in memory
	Declared string // version declared on disk
}

// Holder owns the current Snapshot behind a single swap pointer.
// Publish replaces it atomically; readers call Load once per operation and
// keep that snapshot for the whole call.
type Holder struct {
	cur      atomic.Pointer[Snapshot]
	root     string
	declared VersionSource

	dirty     atomic.Bool
	dirtyFile atomic.Pointer[string]
}

// NewHolder creates an empty Holder. root resolves the snapshot's relative
// file paths for mtime checks; an empty root resolves them against the
// working directory. A nil declared source treats the in-memory version as
// authoritative.
func NewHolder(root string, declared VersionSource) *Holder {
	return &Holder{root: root, declared: declared}
}

// Publish swaps in s and clears any pending watcher invalidation.
func (h *Holder) Publish(s *Snapshot) {
	h.cur.Store(s)
	h.dirty.Store(false)
	h.dirtyFile.Store(nil)
}

// Load returns the current snapshot, or nil when nothing was published.
func (h *Holder) Load() *Snapshot {
	return h.cur.Load()
}

// MarkDirty records that a tracked file changed after the snapshot was
// built. It is called by Watcher.
func (h *Holder) MarkDirty(file string) {
	h.dirtyFile.Store(&file)
	h.dirty.Store(true)
}

// CurrentVersion returns the published snapshot's version tag.
func (h *Holder) CurrentVersion() (string, error) {
	s := h.cur.Load()
	if s == nil {
		return "", ErrNoSnapshot
	}
	return s.Version(), nil
}

// IsFresh reports whether the snapshot matches the declared on-disk version
// and no tracked file was modified after it was built.
func (h *Holder) IsFresh() bool {
	f, err := h.Check(h.cur.Load())
	return err == nil && f.Fresh
}

// Check runs the freshness check against s, which callers obtain from Load
// so that the check and the following query see the same snapshot.
func (h *Holder) Check(s *Snapshot) (Freshness, error) {
	if s == nil {
		return Freshness{}, ErrNoSnapshot
	}
	f := Freshness{Snapshot: s.Version(), Declared: s.Version()}

	if h.declared != nil {
		v, err := h.declared()
		if err != nil {
			return f, fmt.Errorf("declared version: %w", err)
		}
		f.Declared = v
		if v != s.Version() {
			f.Reason = StaleVersion
			return f, nil
		}
	}

	if h.dirty.Load() {
		f.Reason = StaleWatched
		if p := h.dirtyFile.Load(); p != nil {
			f.File = *p
		}
		return f, nil
	}

	built := s.Meta().BuiltAt
	for _, file := range s.Files() {
		info, err := os.Stat(h.resolve(file))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				f.Reason, f.File = StaleMissing, file
				return f, nil
			}
			return f, fmt.Errorf("stat %s: %w", file, err)
		}
		if info.ModTime().After(built) {
			f.Reason, f.File = StaleModified, file
			return f, nil
		}
	}

	f.Fresh = true
	return f, nil
}

// Root returns the directory relative file paths resolve against.
func (h *Holder) Root() string { return h.root }

func (h *Holder) resolve(file string) string {
	if filepath.IsAbs(file) || h.root == "" {
		return file
	}
	return filepath.Join(h.root, file)
}

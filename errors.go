package ripple

import (
	"errors"
	"fmt"

	"github.com/jward/ripple/internal/change"
)

// Sentinel errors. Every error returned by the Engine wraps exactly one of
// these, so callers can branch with errors.Is.
var (
	// ErrNotIndexed is returned when no snapshot has been published.
	ErrNotIndexed = errors.New("ripple: not indexed")

	// ErrNotFound is returned when a symbol id does not resolve.
	ErrNotFound = errors.New("ripple: symbol not found")

	// ErrCacheStale is returned when the in-memory snapshot no longer
	// matches the index or the source tree.
	ErrCacheStale = errors.New("ripple: snapshot is stale")

	// ErrVersionMismatch is returned when the snapshot's schema version is
	// not the one the caller expects.
	ErrVersionMismatch = errors.New("ripple: schema version mismatch")

	// ErrOverlappingPatches is returned when a manifest holds two patches
	// touching the same line of a file.
	ErrOverlappingPatches = errors.New("ripple: overlapping patches")

	// ErrManifestConsumed is returned when a manifest is applied twice.
	ErrManifestConsumed = errors.New("ripple: manifest already applied")

	// ErrInvalidChange is returned for a malformed change spec, or one
	// that does not fit its target symbol.
	ErrInvalidChange = change.ErrInvalid

	// ErrPatchMismatch is returned when a file no longer holds a patch's
	// original text.
	ErrPatchMismatch = errors.New("ripple: file does not match patch")
)

// StaleError details why a snapshot was refused.
type StaleError struct {
	Reason   string // version, modified, missing, watched or plan
	File     string
	Snapshot string
	Declared string
}

func (e *StaleError) Error() string {
	switch {
	case e.File != "":
		return fmt.Sprintf("ripple: snapshot %s is stale (%s: %s)", e.Snapshot, e.Reason, e.File)
	case e.Declared != "":
		return fmt.Sprintf("ripple: snapshot %s is stale (%s: declared %s)", e.Snapshot, e.Reason, e.Declared)
	}
	return fmt.Sprintf("ripple: snapshot %s is stale (%s)", e.Snapshot, e.Reason)
}

func (e *StaleError) Unwrap() error { return ErrCacheStale }

// VersionMismatchError reports the expected and actual schema versions.
type VersionMismatchError struct {
	Expected int
	Actual   int
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("ripple: schema version %d, expected %d", e.Actual, e.Expected)
}

func (e *VersionMismatchError) Unwrap() error { return ErrVersionMismatch }

// OverlapError names the first pair of overlapping patches.
type OverlapError struct {
	File string
	A, B Patch
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("ripple: %s: patches %d-%d and %d-%d overlap",
		e.File, e.A.LineStart, e.A.LineEnd, e.B.LineStart, e.B.LineEnd)
}

func (e *OverlapError) Unwrap() error { return ErrOverlappingPatches }

// ApplyError is a failure to apply one file's patches.
type ApplyError struct {
	File string
	Err  error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("ripple: apply %s: %v", e.File, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// ErrorCode maps an error to a short machine-readable code, or "internal".
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotIndexed):
		return "not_indexed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCacheStale):
		return "cache_stale"
	case errors.Is(err, ErrVersionMismatch):
		return "version_mismatch"
	case errors.Is(err, ErrOverlappingPatches):
		return "overlapping_patches"
	case errors.Is(err, ErrManifestConsumed):
		return "manifest_consumed"
	case errors.Is(err, ErrInvalidChange):
		return "invalid_change"
	case errors.Is(err, ErrPatchMismatch):
		return "patch_mismatch"
	}
	return "internal"
}

package ripple

import (
	"fmt"
	"strings"

	"github.com/jward/ripple/internal/graph"
)

// Risk grades a plan.
type Risk string

const (
	RiskLow    Risk = "LOW"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH"
)

// rank orders risks so callers can compare them.
func (r Risk) rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	}
	return -1
}

// AtLeast reports whether r is as severe as o.
func (r Risk) AtLeast(o Risk) bool { return r.rank() >= o.rank() }

// assessRisk applies the risk rules in order; the first that matches wins.
//
//  1. removals are HIGH
//  2. renames and removals with no downstream impact are HIGH
//  3. impacts in another language's hand-written source are HIGH
//  4. downstream impacts confined to one file of the root's language are
//     LOW
//  5. everything else is MEDIUM
func assessRisk(kind ChangeKind, root *Symbol, downstream []Impact) (Risk, string) {
	if kind == RemoveField {
		return RiskHigh, "removal is irreversible"
	}
	if kind != AddField && len(downstream) == 0 {
		return RiskHigh, "no internal references found; the symbol may be consumed outside the index"
	}

	for _, im := range downstream {
		if crossesLanguage(root, im.Symbol) && !isDerived(im) {
			return RiskHigh, fmt.Sprintf("crosses from %s into hand-written %s source (%s)",
				root.Language, im.Symbol.Language, im.Symbol.File)
		}
	}

	files := make(map[string]bool)
	crossing := false
	for _, im := range downstream {
		files[im.Symbol.File] = true
		if crossesLanguage(root, im.Symbol) {
			crossing = true
		}
	}
	if len(files) == 0 {
		return RiskLow, "no downstream impacts"
	}
	if len(files) == 1 && !crossing {
		return RiskLow, "all downstream impacts are confined to " + downstream[0].Symbol.File
	}

	if languages(root, downstream) > 1 {
		return RiskMedium, "other languages are reached only through derived artifacts"
	}
	return RiskMedium, fmt.Sprintf("impacts span %d files", countFiles(root, downstream))
}

// isDerived reports whether an impact is a generated or derived artifact
// rather than hand-written source.
func isDerived(im Impact) bool {
	s := im.Symbol
	return im.Via == graph.EdgeDerivedFrom ||
		strings.EqualFold(s.Language, "sql") ||
		strings.EqualFold(s.Attr("generated"), "true")
}

func crossesLanguage(a, b *Symbol) bool {
	return !strings.EqualFold(a.Language, b.Language)
}

func languages(root *Symbol, impacts []Impact) int {
	seen := map[string]bool{strings.ToLower(root.Language): true}
	for _, im := range impacts {
		seen[strings.ToLower(im.Symbol.Language)] = true
	}
	return len(seen)
}

func countFiles(root *Symbol, impacts []Impact) int {
	seen := map[string]bool{root.File: true}
	for _, im := range impacts {
		seen[im.Symbol.File] = true
	}
	return len(seen)
}

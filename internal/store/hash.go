package store

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/jward/ripple/internal/graph"
)

// ComputeVersion derives a deterministic version tag from a graph's
// semantic content. It is used when an indexer publishes without naming a
// version. Input order does not affect the result.
func ComputeVersion(symbols []*graph.Symbol, edges []graph.Edge) string {
	h := sha256.New()

	skeys := make([]string, len(symbols))
	for i, s := range symbols {
		keys := make([]string, 0, len(s.Attributes))
		for k := range s.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := ""
		for _, k := range keys {
			attrs += k + "=" + s.Attributes[k] + ";"
		}
		skeys[i] = fmt.Sprintf("symbol:%s:%s:%s:%s:%s:%s:%d:%d:%s",
			s.ID, s.File, s.QualifiedName, s.Kind, s.Language, s.Dialect, s.LineStart, s.LineEnd, attrs)
	}
	sort.Strings(skeys)
	for _, k := range skeys {
		fmt.Fprintln(h, k)
	}

	ekeys := make([]string, len(edges))
	for i, e := range edges {
		ekeys[i] = fmt.Sprintf("edge:%s:%s:%s", e.From, e.To, e.Kind)
	}
	sort.Strings(ekeys)
	for _, k := range ekeys {
		fmt.Fprintln(h, k)
	}

	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

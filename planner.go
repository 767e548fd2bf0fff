package ripple

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jward/ripple/internal/change"
	"github.com/jward/ripple/internal/generate"
	"github.com/jward/ripple/internal/graph"
	"github.com/jward/ripple/internal/naming"
)

// Impact is a symbol a change reaches, with the edge kind of the last hop
// and the hop distance from the root.
type Impact struct {
	Symbol  *Symbol  `json:"symbol"`
	Via     EdgeKind `json:"via,omitempty"`
	Depth   int      `json:"depth"`
	Sibling bool     `json:"sibling,omitempty"`
}

// Plan is the impact analysis of one change. It is computed fresh per
// request and never persisted by the engine.
type Plan struct {
	Source            *Symbol    `json:"source"`
	Change            ChangeSpec `json:"change"`
	DirectImpacts     []Impact   `json:"direct_impacts"`
	DownstreamImpacts []Impact   `json:"downstream_impacts"`
	Risk              Risk       `json:"risk"`
	RiskReason        string     `json:"risk_reason"`
	FileCount         int        `json:"file_count"`
	SymbolCount       int        `json:"symbol_count"`
	Files             []string   `json:"files"`
	Warnings          []Note     `json:"warnings"`
	Summary           string     `json:"summary"`
	SnapshotVersion   string     `json:"snapshot_version"`
}

// HasWarning reports whether the plan carries a note with code.
func (p *Plan) HasWarning(code NoteCode) bool {
	for _, n := range p.Warnings {
		if n.Code == code {
			return true
		}
	}
	return false
}

// targets lists the symbols generation may edit: the root first, then the
// downstream impacts.
func (p *Plan) targets() []generate.Target {
	if p.FileCount == 0 {
		return nil
	}
	out := make([]generate.Target, 0, 1+len(p.DownstreamImpacts))
	out = append(out, generate.Target{Symbol: p.Source})
	for _, im := range p.DownstreamImpacts {
		out = append(out, generate.Target{Symbol: im.Symbol, Via: im.Via, Depth: im.Depth})
	}
	return out
}

// containerKinds are the symbol kinds a field can be added to.
var containerKinds = map[Kind]bool{
	KindEntity: true,
	KindType:   true,
	KindTable:  true,
	KindForm:   true,
	KindModule: true,
}

// Plan computes the propagation plan for spec. It reads the snapshot only.
func (e *Engine) Plan(ctx context.Context, spec ChangeSpec) (*Plan, error) {
	start := time.Now()
	ctx, span := startSpan(ctx, "Plan", spec)
	defer span.End()

	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("ripple: plan: %w", err)
	}
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	root, ok := snap.Symbol(spec.Target)
	if !ok {
		return nil, fmt.Errorf("ripple: plan: %w: %s", ErrNotFound, spec.Target)
	}
	if spec.Kind == AddField && !containerKinds[root.Kind] {
		return nil, fmt.Errorf("ripple: plan: %w: cannot add a field to %s %s", ErrInvalidChange, root.Kind, root.QualifiedName)
	}

	pl := &planner{snap: snap, registry: e.registry, maxDepth: e.maxDepth, dialect: e.dialect}
	p := pl.plan(spec, root)

	span.SetAttributes(
		attribute.String("ripple.risk", string(p.Risk)),
		attribute.Int("ripple.files", p.FileCount),
	)
	recordPlanMetrics(ctx, spec.Kind, time.Since(start), len(p.DownstreamImpacts), p.Risk)
	e.logger.Info("plan",
		"change", spec.String(),
		"target", root.QualifiedName,
		"risk", p.Risk,
		"files", p.FileCount,
		"warnings", len(p.Warnings))
	for _, n := range p.Warnings {
		if n.Severity == change.SeverityWarning {
			e.logger.Warn("plan warning", "code", n.Code, "symbol", n.SymbolID, "message", n.Message)
		}
	}
	return p, nil
}

type planner struct {
	snap     *graph.Snapshot
	registry *generate.Registry
	maxDepth int
	dialect  string
}

func (pl *planner) plan(spec ChangeSpec, root *Symbol) *Plan {
	p := &Plan{
		Source:            root,
		Change:            spec,
		DirectImpacts:     []Impact{},
		DownstreamImpacts: []Impact{},
		Files:             []string{},
		Warnings:          []Note{},
		SnapshotVersion:   pl.snap.Version(),
	}
	container := pl.container(root)

	switch spec.Kind {
	case AddField:
		if existing := pl.child(container, spec.Params.Name); existing != nil {
			p.Warnings = append(p.Warnings, change.Warning(change.CodeAlreadyDefined, existing.ID, existing.File,
				"%s already defines %s", container.QualifiedName, existing.Name))
			p.Risk, p.RiskReason = RiskLow, "nothing to change"
			p.finish()
			return p
		}
	case RenameField:
		if existing := pl.child(container, spec.Params.NewName); existing != nil {
			p.Warnings = append(p.Warnings, change.Warning(change.CodeAlreadyDefined, existing.ID, existing.File,
				"%s already defines %s; the rename will collide", container.QualifiedName, existing.Name))
		}
	}

	seeds := []*Symbol{root}
	if spec.Kind != AddField {
		if f := pl.child(root, spec.FieldName()); f != nil {
			seeds = append(seeds, f)
		}
	}

	p.DirectImpacts = pl.direct(root)
	p.DownstreamImpacts = pl.downstream(seeds)
	p.Warnings = append(p.Warnings, pl.warnings(spec, root, seeds, p)...)
	p.Risk, p.RiskReason = assessRisk(spec.Kind, root, p.DownstreamImpacts)
	p.finish()
	return p
}

// container returns the symbol a field of root lives in: root itself when
// it can hold fields, otherwise its parent.
func (pl *planner) container(root *Symbol) *Symbol {
	if containerKinds[root.Kind] {
		return root
	}
	if parent := pl.parent(root); parent != nil {
		return parent
	}
	return root
}

func (pl *planner) parent(sym *Symbol) *Symbol {
	for _, e := range pl.snap.Incoming(sym.ID, graph.EdgeDefines) {
		if p, ok := pl.snap.Symbol(e.From); ok {
			return p
		}
	}
	return nil
}

// child returns the data member sym defines whose name is equivalent to
// name under any case convention.
func (pl *planner) child(sym *Symbol, name string) *Symbol {
	if name == "" {
		return nil
	}
	for _, e := range pl.snap.Outgoing(sym.ID, graph.EdgeDefines) {
		c, ok := pl.snap.Symbol(e.To)
		if !ok {
			continue
		}
		switch c.Kind {
		case KindField, KindColumn, KindUIBinding:
			if naming.Equivalent(c.Name, name) {
				return c
			}
		}
	}
	return nil
}

// direct returns what root defines plus its same-file siblings.
func (pl *planner) direct(root *Symbol) []Impact {
	out := []Impact{}
	seen := map[string]bool{root.ID: true}
	for _, e := range pl.snap.Outgoing(root.ID, graph.EdgeDefines) {
		if c, ok := pl.snap.Symbol(e.To); ok && !seen[c.ID] {
			seen[c.ID] = true
			out = append(out, Impact{Symbol: c, Via: graph.EdgeDefines, Depth: 1})
		}
	}
	if parent := pl.parent(root); parent != nil {
		for _, e := range pl.snap.Outgoing(parent.ID, graph.EdgeDefines) {
			s, ok := pl.snap.Symbol(e.To)
			if !ok || seen[s.ID] || s.File != root.File {
				continue
			}
			seen[s.ID] = true
			out = append(out, Impact{Symbol: s, Via: graph.EdgeDefines, Depth: 1, Sibling: true})
		}
	}
	sortImpacts(out)
	return out
}

type hop struct {
	id  string
	via EdgeKind
}

// dependents lists the symbols one hop outward from id: referrers and
// derived artifacts through incoming edges, and mappings either way.
func (pl *planner) dependents(id string) []hop {
	var hops []hop
	for _, e := range pl.snap.Incoming(id, graph.EdgeReferences, graph.EdgeDerivedFrom, graph.EdgeMappedTo) {
		hops = append(hops, hop{id: e.From, via: e.Kind})
	}
	for _, e := range pl.snap.Outgoing(id, graph.EdgeMappedTo) {
		hops = append(hops, hop{id: e.To, via: e.Kind})
	}
	sort.Slice(hops, func(i, j int) bool {
		if hops[i].id != hops[j].id {
			return hops[i].id < hops[j].id
		}
		return hops[i].via < hops[j].via
	})
	return hops
}

// downstream is a BFS from seeds bounded by maxDepth. The visited set makes
// cycles and diamonds terminate with each symbol reported once, at its
// shortest distance.
func (pl *planner) downstream(seeds []*Symbol) []Impact {
	out := []Impact{}
	visited := make(map[string]bool)
	var frontier []string
	for _, s := range seeds {
		visited[s.ID] = true
		frontier = append(frontier, s.ID)
	}
	for depth := 1; depth <= pl.maxDepth && len(frontier) > 0; depth++ {
		sort.Strings(frontier)
		var next []string
		for _, cur := range frontier {
			for _, h := range pl.dependents(cur) {
				if visited[h.id] {
					continue
				}
				visited[h.id] = true
				sym, ok := pl.snap.Symbol(h.id)
				if !ok {
					continue
				}
				out = append(out, Impact{Symbol: sym, Via: h.via, Depth: depth})
				next = append(next, h.id)
			}
		}
		frontier = next
	}
	sortImpacts(out)
	return out
}

func (pl *planner) warnings(spec ChangeSpec, root *Symbol, seeds []*Symbol, p *Plan) []Note {
	var out []Note

	if spec.Kind != AddField && len(p.DownstreamImpacts) == 0 {
		out = append(out, change.Warning(change.CodeZeroReferences, root.ID, root.File,
			"no references to %s found in the index", spec.FieldName()))
	}

	involved := make(map[string]*Symbol)
	for _, s := range seeds {
		involved[s.ID] = s
	}
	for _, im := range p.DirectImpacts {
		involved[im.Symbol.ID] = im.Symbol
	}
	for _, im := range p.DownstreamImpacts {
		involved[im.Symbol.ID] = im.Symbol
	}
	for _, e := range pl.snap.StaleEdges() {
		present, ok := involved[e.From]
		if !ok {
			present, ok = involved[e.To]
		}
		if !ok {
			continue
		}
		out = append(out, change.Warning(change.CodeStaleEdge, present.ID, present.File,
			"%s edge %s -> %s has a missing endpoint; reindex to include it", e.Kind, e.From, e.To))
	}

	targets := append([]Impact{{Symbol: root}}, p.DownstreamImpacts...)
	for _, im := range targets {
		t := generate.Target{Symbol: im.Symbol, Via: im.Via, Depth: im.Depth}
		if !generate.Editable(spec.Kind, t) {
			continue
		}
		k := generate.Resolve(im.Symbol, pl.dialect)
		if _, ok := pl.registry.Lookup(k); !ok {
			out = append(out, change.Warning(change.CodeUnsupportedLanguage, im.Symbol.ID, im.Symbol.File,
				"no generator registered for %s; %s will be skipped", k, im.Symbol.QualifiedName))
		}
		if spec.Kind == RemoveField && generate.IsTestFile(im.Symbol.File) {
			out = append(out, change.Warning(change.CodeTestReference, im.Symbol.ID, im.Symbol.File,
				"%s is referenced from test code; review assertions before applying", spec.FieldName()))
		}
	}

	byLang := make(map[string]int)
	for _, im := range p.DownstreamImpacts {
		if crossesLanguage(root, im.Symbol) {
			byLang[strings.ToLower(im.Symbol.Language)]++
		}
	}
	langs := make([]string, 0, len(byLang))
	for l := range byLang {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	for _, l := range langs {
		out = append(out, change.Info(change.CodeCrossLanguage, "", "",
			"%d impact(s) cross from %s into %s", byLang[l], strings.ToLower(root.Language), l))
	}
	return out
}

// finish fills the derived counts and the summary.
func (p *Plan) finish() {
	if p.HasWarning(change.CodeAlreadyDefined) && p.Change.Kind == AddField {
		p.Summary = p.summary()
		return
	}
	files := map[string]bool{p.Source.File: true}
	symbols := map[string]bool{p.Source.ID: true}
	for _, im := range p.DirectImpacts {
		symbols[im.Symbol.ID] = true
	}
	for _, im := range p.DownstreamImpacts {
		files[im.Symbol.File] = true
		symbols[im.Symbol.ID] = true
	}
	p.Files = make([]string, 0, len(files))
	for f := range files {
		p.Files = append(p.Files, f)
	}
	sort.Strings(p.Files)
	p.FileCount = len(p.Files)
	p.SymbolCount = len(symbols)
	p.Summary = p.summary()
}

func (p *Plan) summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s: risk %s (%s). ", p.Change.String(), p.Source.QualifiedName, p.Risk, p.RiskReason)
	if p.FileCount == 0 {
		b.WriteString("No impacts.")
	} else {
		fmt.Fprintf(&b, "%d downstream impact(s) across %d file(s).", len(p.DownstreamImpacts), p.FileCount)
	}
	var warn []string
	for _, n := range p.Warnings {
		if n.Severity != change.SeverityInfo {
			warn = append(warn, string(n.Code))
		}
	}
	if len(warn) > 0 {
		fmt.Fprintf(&b, " Double-check: %s.", strings.Join(uniqueStrings(warn), ", "))
	}
	return b.String()
}

// sortImpacts orders impacts by (file, line_start, id).
func sortImpacts(ims []Impact) {
	sort.SliceStable(ims, func(i, j int) bool {
		a, b := ims[i].Symbol, ims[j].Symbol
		if a.File != b.File {
			return a.File < b.File
		}
		if a.LineStart != b.LineStart {
			return a.LineStart < b.LineStart
		}
		return a.ID < b.ID
	})
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

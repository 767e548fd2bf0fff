package ripple

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jward/ripple/internal/change"
	"github.com/jward/ripple/internal/generate"
)

// Generate turns a plan into a manifest. A nil plan is computed first. The
// plan must have been made against the current snapshot; generation itself
// never writes.
func (e *Engine) Generate(ctx context.Context, spec ChangeSpec, plan *Plan) (*Manifest, error) {
	ctx, span := startSpan(ctx, "Generate", spec)
	defer span.End()

	if plan == nil {
		p, err := e.Plan(ctx, spec)
		if err != nil {
			return nil, err
		}
		plan = p
	}
	if plan.Change != spec {
		return nil, fmt.Errorf("ripple: generate: %w: plan was made for %q", ErrInvalidChange, plan.Change.String())
	}

	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if plan.SnapshotVersion != snap.Version() {
		return nil, &StaleError{Reason: "plan", Snapshot: plan.SnapshotVersion, Declared: snap.Version()}
	}

	b := generate.Batch{
		Change:         spec,
		Root:           plan.Source,
		Targets:        plan.targets(),
		Snapshot:       snap,
		DefaultDialect: e.dialect,
	}
	sources, failed, err := e.loadSources(ctx, b.Files())
	if err != nil {
		return nil, err
	}
	for f, ferr := range failed {
		e.logger.Warn("load source", "file", f, "error", ferr)
	}
	b.Sources = sources

	out := e.registry.Generate(ctx, b)
	change.SortPatches(out.Patches)
	m := NewManifest(plan, out.Patches, mergeNotes(plan.Warnings, out.Notes))

	span.SetAttributes(attribute.Int("ripple.patches", len(m.Patches)))
	recordGenerateMetrics(ctx, spec.Kind, len(m.Patches))
	e.logger.Info("generate",
		"change", spec.String(),
		"target", plan.Source.QualifiedName,
		"manifest", m.ID,
		"patches", len(m.Patches),
		"files", len(m.Files()),
		"notes", len(m.Notes))
	for _, n := range out.Notes {
		if n.Severity != change.SeverityInfo {
			e.logger.Warn("generate note", "code", n.Code, "symbol", n.SymbolID, "file", n.File, "message", n.Message)
		}
	}
	return m, nil
}

// GenerateAndApply generates a manifest and, unless dryRun, applies it
// with the engine's apply defaults. A dry run returns the manifest and a
// nil result.
func (e *Engine) GenerateAndApply(ctx context.Context, spec ChangeSpec, plan *Plan, dryRun bool) (*Manifest, *ApplyResult, error) {
	m, err := e.Generate(ctx, spec, plan)
	if err != nil {
		return nil, nil, err
	}
	if dryRun {
		return m, nil, nil
	}
	res, err := e.Apply(ctx, m, e.ApplyDefaults())
	return m, res, err
}

// ApplyDefaults returns the options set by WithApplyDefaults.
func (e *Engine) ApplyDefaults() ApplyOptions {
	return ApplyOptions{Backup: e.backup, CheckSyntax: e.checkSyntax}
}

// mergeNotes appends generator notes to plan warnings, dropping a
// generator note that repeats a plan note's code for the same symbol.
func mergeNotes(plan, gen []Note) []Note {
	type key struct {
		code NoteCode
		sym  string
	}
	seen := make(map[key]bool)
	out := make([]Note, 0, len(plan)+len(gen))
	for _, n := range plan {
		out = append(out, n)
		if n.SymbolID != "" {
			seen[key{n.Code, n.SymbolID}] = true
		}
	}
	for _, n := range gen {
		if n.SymbolID != "" && seen[key{n.Code, n.SymbolID}] {
			continue
		}
		out = append(out, n)
	}
	return out
}

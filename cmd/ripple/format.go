package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jward/ripple"
)

// formatLocationText formats a definition as "file:start-end".
func formatLocationText(w io.Writer, def CLIDefinition) {
	if def.Location == nil {
		return
	}
	fmt.Fprintf(w, "%s:%d-%d\n", def.Location.File, def.Location.LineStart, def.Location.LineEnd)
}

// formatSymbolsText formats symbols as aligned columns.
func formatSymbolsText(w io.Writer, syms []*ripple.Symbol) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tLANGUAGE\tFILE\tLINES")
	for _, s := range syms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d-%d\n",
			s.ID, s.QualifiedName, s.Kind, s.Language, s.File, s.LineStart, s.LineEnd)
	}
	tw.Flush()
}

// formatDependenciesText formats a dependency projection as symbols then
// edges.
func formatDependenciesText(w io.Writer, deps *ripple.Dependencies) {
	formatSymbolsText(w, deps.Symbols)
	if len(deps.Edges) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tKIND\tTO")
	for _, e := range deps.Edges {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.From, e.Kind, e.To)
	}
	tw.Flush()
}

// formatChainText formats a call chain as an indented list per direction.
func formatChainText(w io.Writer, res *ripple.CallChainResult) {
	for _, ch := range res.Chains {
		fmt.Fprintf(w, "%s (%s:%d)\n", ch.Root.QualifiedName, ch.Root.File, ch.Root.LineStart)
		for _, dir := range []struct {
			label string
			nodes []ripple.ChainNode
		}{{"callers", ch.Upstream}, {"callees", ch.Downstream}} {
			if len(dir.nodes) == 0 {
				continue
			}
			fmt.Fprintf(w, "  %s:\n", dir.label)
			for _, n := range dir.nodes {
				fmt.Fprintf(w, "  %s%s\n", strings.Repeat("  ", n.Depth), n.Symbol.QualifiedName)
			}
		}
	}
}

func formatNotesText(w io.Writer, notes []ripple.Note) {
	for _, n := range notes {
		loc := n.File
		if loc == "" {
			loc = n.SymbolID
		}
		if loc != "" {
			fmt.Fprintf(w, "  [%s] %s: %s (%s)\n", n.Severity, n.Code, n.Message, loc)
		} else {
			fmt.Fprintf(w, "  [%s] %s: %s\n", n.Severity, n.Code, n.Message)
		}
	}
}

// formatPlanText formats a plan as its summary, the impact table and the
// warnings.
func formatPlanText(w io.Writer, p *ripple.Plan) {
	fmt.Fprintf(w, "Change: %s\n", p.Change.String())
	fmt.Fprintf(w, "Risk:   %s (%s)\n", p.Risk, p.RiskReason)
	fmt.Fprintf(w, "Scope:  %d symbols in %d files\n", p.SymbolCount, p.FileCount)
	fmt.Fprintln(w)

	impacts := append(append([]ripple.Impact(nil), p.DirectImpacts...), p.DownstreamImpacts...)
	if len(impacts) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "DEPTH\tVIA\tSYMBOL\tKIND\tFILE")
		for _, im := range impacts {
			via := string(im.Via)
			if im.Sibling {
				via = "sibling"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s:%d\n",
				im.Depth, via, im.Symbol.QualifiedName, im.Symbol.Kind, im.Symbol.File, im.Symbol.LineStart)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	if len(p.Warnings) > 0 {
		fmt.Fprintln(w, "Notes:")
		formatNotesText(w, p.Warnings)
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, p.Summary)
}

// formatManifestText prints the manifest header and its diff preview.
func formatManifestText(w io.Writer, m CLIManifest) {
	fmt.Fprintf(w, "Manifest %s: %d patches in %d files, risk %s\n",
		m.Manifest.ID, len(m.Manifest.Patches), len(m.Manifest.Files()), m.Manifest.Risk)
	if m.Saved != "" {
		fmt.Fprintf(w, "Saved to %s\n", m.Saved)
	}
	if len(m.Manifest.Notes) > 0 {
		fmt.Fprintln(w, "Notes:")
		formatNotesText(w, m.Manifest.Notes)
	}
	if m.Preview != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, m.Preview)
	}
}

// formatApplyText summarises an apply.
func formatApplyText(w io.Writer, res *ripple.ApplyResult) {
	verb := "Applied"
	if res.DryRun {
		verb = "Would apply"
	}
	fmt.Fprintf(w, "%s %d patches to %d files (%d skipped)\n",
		verb, res.PatchesApplied, len(res.FilesWritten), res.Skipped)
	for _, f := range res.FilesWritten {
		fmt.Fprintf(w, "  %s\n", f)
	}
	for _, f := range res.Failed {
		fmt.Fprintf(w, "  FAILED %s: %s\n", f.File, f.Error)
	}
	if len(res.Notes) > 0 {
		fmt.Fprintln(w, "Notes:")
		formatNotesText(w, res.Notes)
	}
}

// outputResultText dispatches to the appropriate text formatter based on
// the result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIDefinition:
		formatLocationText(w, v)
	case *ripple.Symbol:
		formatSymbolsText(w, []*ripple.Symbol{v})
	case *ripple.Dependencies:
		formatDependenciesText(w, v)
	case *ripple.CallChainResult:
		formatChainText(w, v)
	case *ripple.Plan:
		formatPlanText(w, v)
	case CLIManifest:
		formatManifestText(w, v)
	case *ripple.ApplyResult:
		formatApplyText(w, v)
	case CLIPublish:
		fmt.Fprintf(w, "Published %s: %d symbols, %d edges (%d stale)\n",
			v.Version, v.Symbols, v.Edges, v.StaleEdges)
	case nil:
		// No output for nil results.
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputResult writes a CLIResult in the selected format.
func (a *app) outputResult(result CLIResult) error {
	if a.flagFormat == "text" {
		return outputResultText(a.out, result)
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as
// a CLIResult envelope carrying the engine's error code. A partial result,
// such as an apply that failed on some files, rides along. In text mode the
// error goes to stderr.
func (a *app) outputError(cmd *cobra.Command, command string, results any, err error) error {
	if a.flagFormat == "text" {
		if results != nil {
			_ = outputResultText(a.out, CLIResult{Command: command, Results: results})
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return &handledError{err}
	}
	_ = a.outputResult(CLIResult{
		Command: command,
		Results: results,
		Error:   err.Error(),
		Code:    ripple.ErrorCode(err),
	})
	return &handledError{err}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/ripple"
)

// changeFlags builds a ChangeSpec from flags, or from a JSON document
// given with --spec.
type changeFlags struct {
	specFile string
	target   string
	scope    string
	name     string
	typ      string
	oldName  string
	newName  string
	nullable bool
	length   int
}

func (f *changeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.specFile, "spec", "", "read the change from a JSON file instead of flags")
	cmd.Flags().StringVar(&f.target, "target", "", "target symbol id or name")
	cmd.Flags().StringVar(&f.scope, "scope", "", "qualified-name segment used to resolve a target name")
	cmd.Flags().StringVar(&f.name, "name", "", "field name (add_field, remove_field)")
	cmd.Flags().StringVar(&f.typ, "type", "", "generic field type (add_field)")
	cmd.Flags().StringVar(&f.oldName, "old-name", "", "current field name (rename_field)")
	cmd.Flags().StringVar(&f.newName, "new-name", "", "new field name (rename_field)")
	cmd.Flags().BoolVar(&f.nullable, "nullable", false, "added column accepts NULL (add_field)")
	cmd.Flags().IntVar(&f.length, "length", 0, "column length for an added string field (add_field)")
}

// spec assembles the change. A target given by name is resolved against the
// snapshot.
func (f *changeFlags) spec(ctx context.Context, q *ripple.QueryClient, args []string) (ripple.ChangeSpec, error) {
	var s ripple.ChangeSpec
	if f.specFile != "" {
		data, err := os.ReadFile(f.specFile)
		if err != nil {
			return s, fmt.Errorf("reading change spec: %w", err)
		}
		if err := json.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("%w: decoding %s: %v", ripple.ErrInvalidChange, f.specFile, err)
		}
	}
	if len(args) > 0 {
		s.Kind = ripple.ChangeKind(args[0])
	}
	if f.target != "" {
		s.Target = f.target
	}
	mergeParam(&s.Params.Name, f.name)
	mergeParam(&s.Params.Type, f.typ)
	mergeParam(&s.Params.OldName, f.oldName)
	mergeParam(&s.Params.NewName, f.newName)
	if f.nullable {
		s.Params.Nullable = true
	}
	if f.length != 0 {
		s.Params.Length = f.length
	}

	if s.Target == "" {
		return s, fmt.Errorf("%w: --target is required", ripple.ErrInvalidChange)
	}
	sym, err := resolveSymbolArg(ctx, q, s.Target, f.scope)
	if err != nil {
		return s, err
	}
	s.Target = sym.ID
	return s, nil
}

func mergeParam(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

const changeUse = " <add_field|rename_field|remove_field>"

func (a *app) planCmd() *cobra.Command {
	var cf changeFlags
	cmd := &cobra.Command{
		Use:   "plan" + changeUse,
		Short: "Compute the impact and risk of a change",
		Long:  "Walks the symbol graph from the target and reports every symbol the change reaches, the files involved, the risk grade and any warnings. Nothing is written.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, "plan", nil, err)
			}
			defer engine.Close()

			spec, err := cf.spec(cmd.Context(), engine.Query(), args)
			if err != nil {
				return a.outputError(cmd, "plan", nil, err)
			}
			plan, err := engine.Plan(cmd.Context(), spec)
			if err != nil {
				return a.outputError(cmd, "plan", nil, err)
			}
			return a.outputResult(CLIResult{Command: "plan", Results: plan})
		},
	}
	cf.register(cmd)
	return cmd
}

func (a *app) generateCmd() *cobra.Command {
	var (
		cf      changeFlags
		output  string
		preview bool
	)
	cmd := &cobra.Command{
		Use:   "generate" + changeUse,
		Short: "Generate the patches for a change",
		Long:  "Plans the change and runs the language generators over every impacted file. The manifest is printed, and saved with -o for review and a later `ripple apply`.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, "generate", nil, err)
			}
			defer engine.Close()

			spec, err := cf.spec(cmd.Context(), engine.Query(), args)
			if err != nil {
				return a.outputError(cmd, "generate", nil, err)
			}
			m, err := engine.Generate(cmd.Context(), spec, nil)
			if err != nil {
				return a.outputError(cmd, "generate", nil, err)
			}

			out := CLIManifest{Manifest: m}
			if output != "" {
				if err := m.Save(output); err != nil {
					return a.outputError(cmd, "generate", nil, err)
				}
				out.Saved = output
			}
			if preview {
				if out.Preview, err = m.Preview(); err != nil {
					return a.outputError(cmd, "generate", nil, err)
				}
			}
			return a.outputResult(CLIResult{Command: "generate", Results: out})
		},
	}
	cf.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "save the manifest to this path")
	cmd.Flags().BoolVar(&preview, "preview", false, "include a unified diff of the patches")
	return cmd
}

func (a *app) applyCmd() *cobra.Command {
	var (
		force, backup, dryRun, noCheck bool
	)
	cmd := &cobra.Command{
		Use:   "apply <manifest.json>",
		Short: "Apply a saved manifest to the source tree",
		Long:  "Verifies every patch against the files on disk, then writes them. Without --force any mismatch aborts before the first write. The manifest is marked consumed and cannot be applied twice.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			m, err := ripple.LoadManifest(path)
			if err != nil {
				return a.outputError(cmd, "apply", nil, err)
			}

			engine, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, "apply", nil, err)
			}
			defer engine.Close()

			opts := engine.ApplyDefaults()
			opts.DryRun = dryRun
			opts.Force = force
			if cmd.Flags().Changed("backup") {
				opts.Backup = backup
			}
			if noCheck {
				opts.CheckSyntax = false
			}

			res, applyErr := engine.Apply(cmd.Context(), m, opts)
			if m.Consumed() {
				if err := m.Save(path); err != nil {
					a.logger.Warn("saving consumed manifest", "path", path, "error", err)
				}
			}
			if applyErr != nil {
				if res != nil {
					return a.outputError(cmd, "apply", res, applyErr)
				}
				return a.outputError(cmd, "apply", nil, applyErr)
			}
			return a.outputResult(CLIResult{Command: "apply", Results: res})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "keep going past files that no longer match")
	cmd.Flags().BoolVar(&backup, "backup", false, "write "+ripple.BackupSuffix+" copies before replacing files")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "verify every patch without writing")
	cmd.Flags().BoolVar(&noCheck, "no-syntax-check", false, "skip parsing the written files")
	return cmd
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/ripple"
)

func (a *app) publishCmd() *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "publish <snapshot.json>",
		Short: "Publish a symbol graph into the index",
		Long:  "Reads symbols and edges produced by an indexer and atomically replaces the published snapshot. When the document lists files, only those files are replaced.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readSnapshotFile(args[0], cmd.InOrStdin())
			if err != nil {
				return a.outputError(cmd, "publish", nil, err)
			}
			if version != "" {
				doc.Version = version
			}

			engine, err := a.openEngine()
			if err != nil {
				return a.outputError(cmd, "publish", nil, err)
			}
			defer engine.Close()

			var snap *ripple.Snapshot
			if len(doc.Files) > 0 {
				snap, err = engine.PublishFiles(cmd.Context(), doc.Files, doc.Symbols, doc.Edges, doc.Version)
			} else {
				snap, err = engine.Publish(cmd.Context(), doc.Symbols, doc.Edges, doc.Version)
			}
			if err != nil {
				return a.outputError(cmd, "publish", nil, err)
			}

			return a.outputResult(CLIResult{
				Command: "publish",
				Results: CLIPublish{
					Version:    snap.Version(),
					Symbols:    len(snap.Symbols()),
					Edges:      len(snap.Edges()),
					StaleEdges: len(snap.StaleEdges()),
					Database:   a.cfg.DB,
				},
			})
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "version tag for the snapshot (default: content hash)")
	return cmd
}

// readSnapshotFile decodes a publish document; "-" reads stdin.
func readSnapshotFile(path string, stdin io.Reader) (*SnapshotFile, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var doc SnapshotFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", path, err)
	}
	return &doc, nil
}

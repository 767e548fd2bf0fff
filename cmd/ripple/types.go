package main

import (
	"github.com/jward/ripple"
)

// CLIResult is the top-level JSON envelope for every command.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// SnapshotFile is the document `ripple publish` reads. When Files is set
// only those files are replaced in the index.
type SnapshotFile struct {
	Version string           `json:"version,omitempty"`
	Files   []string         `json:"files,omitempty"`
	Symbols []*ripple.Symbol `json:"symbols"`
	Edges   []ripple.Edge    `json:"edges"`
}

// CLIPublish reports a published snapshot.
type CLIPublish struct {
	Version    string `json:"version"`
	Symbols    int    `json:"symbols"`
	Edges      int    `json:"edges"`
	StaleEdges int    `json:"stale_edges"`
	Database   string `json:"database"`
}

// CLIDefinition is the result of `query definition`.
type CLIDefinition struct {
	Location *ripple.Location `json:"location"`
	SymbolID string           `json:"symbol_id,omitempty"`
}

// CLIManifest is the result of `generate`.
type CLIManifest struct {
	Manifest *ripple.Manifest `json:"manifest"`
	Saved    string           `json:"saved,omitempty"`
	Preview  string           `json:"preview,omitempty"`
}

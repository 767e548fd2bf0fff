package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jward/ripple/internal/graph"
)

// PublishSnapshot replaces the stored graph with snap in one transaction.
// Stale edges are stored too, so a later partial reindex can revive them.
func (s *Store) PublishSnapshot(snap *graph.Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM edges",
		"DELETE FROM symbols",
		"DELETE FROM files",
	} {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("clear snapshot: %w", err)
		}
	}

	if err := insertSymbols(tx, snap.Symbols()); err != nil {
		return err
	}
	if err := insertEdges(tx, append(append([]graph.Edge{}, snap.Edges()...), snap.StaleEdges()...)); err != nil {
		return err
	}
	if err := writeHeader(tx, snap.Meta()); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceFiles swaps the data of the given files for symbols and edges from
// a partial reindex and stamps meta as the new declared version. Edges that
// leave a replaced file are dropped with it; edges from other files into it
// are kept and may now dangle.
func (s *Store) ReplaceFiles(files []string, symbols []*graph.Symbol, edges []graph.Edge, meta graph.Meta) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if len(files) > 0 {
		placeholders := placeholderList(len(files))
		args := stringsToArgs(files)
		for _, q := range []string{
			"DELETE FROM edges WHERE from_id IN (SELECT id FROM symbols WHERE file IN (" + placeholders + "))",
			"DELETE FROM symbols WHERE file IN (" + placeholders + ")",
			"DELETE FROM files WHERE path IN (" + placeholders + ")",
		} {
			if _, err := tx.Exec(q, args...); err != nil {
				return fmt.Errorf("delete file data: %w", err)
			}
		}
	}

	if err := insertSymbols(tx, symbols); err != nil {
		return err
	}
	if err := insertEdges(tx, edges); err != nil {
		return err
	}
	if err := writeHeader(tx, meta); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadSnapshot rebuilds the stored graph as an in-memory snapshot.
func (s *Store) LoadSnapshot() (*graph.Snapshot, error) {
	version, schemaVersion, builtAt, err := s.Header()
	if err != nil {
		return nil, err
	}

	symbols, err := s.loadSymbols()
	if err != nil {
		return nil, err
	}
	edges, err := s.loadEdges()
	if err != nil {
		return nil, err
	}

	snap, err := graph.NewSnapshot(symbols, edges, graph.Meta{
		Version:       version,
		SchemaVersion: schemaVersion,
		BuiltAt:       builtAt,
	})
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	return snap, nil
}

func insertSymbols(tx *sql.Tx, symbols []*graph.Symbol) error {
	counts := make(map[string]int)
	langs := make(map[string]string)
	for _, sym := range symbols {
		counts[sym.File]++
		if langs[sym.File] == "" {
			langs[sym.File] = sym.Language
		}
	}
	for file, n := range counts {
		if _, err := tx.Exec(
			`INSERT INTO files (path, language, symbol_count) VALUES (?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET symbol_count = symbol_count + excluded.symbol_count`,
			file, langs[file], n,
		); err != nil {
			return fmt.Errorf("insert file %s: %w", file, err)
		}
	}

	stmt, err := tx.Prepare(`INSERT INTO symbols
		(id, file, name, qualified_name, kind, language, dialect, line_start, line_end, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare symbol insert: %w", err)
	}
	defer stmt.Close()
	for _, sym := range symbols {
		qname := sym.QualifiedName
		if qname == "" {
			qname = sym.Name
		}
		id := sym.ID
		if id == "" {
			id = graph.StableID(sym.File, qname)
		}
		if _, err := stmt.Exec(id, sym.File, sym.Name, qname, string(sym.Kind), sym.Language,
			sym.Dialect, sym.LineStart, sym.LineEnd, marshalAttributes(sym.Attributes)); err != nil {
			return fmt.Errorf("insert symbol %s: %w", id, err)
		}
	}
	return nil
}

func insertEdges(tx *sql.Tx, edges []graph.Edge) error {
	stmt, err := tx.Prepare("INSERT OR IGNORE INTO edges (from_id, to_id, kind) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare edge insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range edges {
		if _, err := stmt.Exec(e.From, e.To, string(e.Kind)); err != nil {
			return fmt.Errorf("insert edge %s->%s: %w", e.From, e.To, err)
		}
	}
	return nil
}

func writeHeader(tx *sql.Tx, meta graph.Meta) error {
	sv := meta.SchemaVersion
	if sv == 0 {
		sv = graph.SchemaVersion
	}
	builtAt := meta.BuiltAt
	if builtAt.IsZero() {
		builtAt = time.Now()
	}
	for k, v := range map[string]string{
		metaVersion:       meta.Version,
		metaSchemaVersion: strconv.Itoa(sv),
		metaBuiltAt:       builtAt.UTC().Format(time.RFC3339Nano),
	} {
		if err := setMeta(tx, k, v); err != nil {
			return fmt.Errorf("write %s: %w", k, err)
		}
	}
	return nil
}

func (s *Store) loadSymbols() ([]*graph.Symbol, error) {
	rows, err := s.db.Query(`SELECT id, file, name, qualified_name, kind, language,
		COALESCE(dialect, ''), line_start, line_end, COALESCE(attributes, '')
		FROM symbols ORDER BY file, line_start, id`)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var out []*graph.Symbol
	for rows.Next() {
		var (
			sym   graph.Symbol
			kind  string
			attrs string
		)
		if err := rows.Scan(&sym.ID, &sym.File, &sym.Name, &sym.QualifiedName, &kind, &sym.Language,
			&sym.Dialect, &sym.LineStart, &sym.LineEnd, &attrs); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		sym.Kind = graph.Kind(kind)
		sym.Attributes = unmarshalAttributes(attrs)
		out = append(out, &sym)
	}
	return out, rows.Err()
}

func (s *Store) loadEdges() ([]graph.Edge, error) {
	rows, err := s.db.Query("SELECT from_id, to_id, kind FROM edges ORDER BY from_id, to_id, kind")
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var out []graph.Edge
	for rows.Next() {
		var (
			e    graph.Edge
			kind string
		)
		if err := rows.Scan(&e.From, &e.To, &kind); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Kind = graph.EdgeKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

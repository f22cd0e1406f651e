// Package queryindex provides an embedded-SQLite secondary index over
// the change graph.
//
// The index accelerates the revset predicates that otherwise scan every
// change (author, committer, description, paths, conflicted) on large
// graphs. It is a cache, never a source of truth: the evaluator consults
// it only when it is fresh for the current operation head, and falls
// back to the in-memory linear scan otherwise — its absence changes
// performance, not correctness.
//
// The database runs embedded with WAL so readers can overlap the
// refresh that follows each appended operation.
package queryindex

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/jjcore/jjcore/internal/types"
)

// Index wraps the SQLite connection holding the change-graph index.
type Index struct {
	conn *sql.DB
	path string
}

// Open creates or opens the index database at path. The caller must
// Close when done.
func Open(path string) (*Index, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping index database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	idx := &Index{conn: conn, path: path}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := idx.conn.Exec(pragma); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return idx, nil
}

// Close checkpoints the WAL and closes the connection.
func (idx *Index) Close() error {
	if idx.conn == nil {
		return nil
	}
	if _, err := idx.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: checkpoint index WAL: %v\n", err)
	}
	err := idx.conn.Close()
	idx.conn = nil
	return err
}

// InitSchema creates the index tables. Idempotent.
func (idx *Index) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS changes (
		change_id TEXT PRIMARY KEY,
		commit_id TEXT NOT NULL,
		author TEXT NOT NULL,
		committer TEXT NOT NULL,
		description TEXT NOT NULL,
		abandoned INTEGER NOT NULL DEFAULT 0,
		conflicted INTEGER NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS change_paths (
		change_id TEXT NOT NULL,
		path TEXT NOT NULL,
		PRIMARY KEY (change_id, path),
		FOREIGN KEY (change_id) REFERENCES changes(change_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_changes_author ON changes(author);
	CREATE INDEX IF NOT EXISTS idx_changes_description ON changes(description);
	CREATE INDEX IF NOT EXISTS idx_changes_conflicted ON changes(conflicted);
	CREATE INDEX IF NOT EXISTS idx_change_paths_path ON change_paths(path);
	`
	_, err := idx.conn.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("create index schema: %w", err)
	}
	return nil
}

// Refresh rebuilds the index from a graph snapshot and stamps it with
// the operation head it reflects. Runs in one transaction so readers
// never observe a half-rebuilt index.
func (idx *Index) Refresh(ctx context.Context, head string, changes map[string]*types.Change, conflicted map[string]bool) error {
	tx, err := idx.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index refresh: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM change_paths"); err != nil {
		return fmt.Errorf("clear change_paths: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM changes"); err != nil {
		return fmt.Errorf("clear changes: %w", err)
	}

	insChange, err := tx.PrepareContext(ctx, `
		INSERT INTO changes (change_id, commit_id, author, committer, description, abandoned, conflicted, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare change insert: %w", err)
	}
	defer insChange.Close()
	insPath, err := tx.PrepareContext(ctx, `INSERT INTO change_paths (change_id, path) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare path insert: %w", err)
	}
	defer insPath.Close()

	for id, ch := range changes {
		author := ch.Author.Name + " <" + ch.Author.Email + ">"
		committer := ch.Committer.Name + " <" + ch.Committer.Email + ">"
		_, err := insChange.ExecContext(ctx, id, ch.CommitID, author, committer, ch.Description,
			boolToInt(ch.Abandoned), boolToInt(conflicted[id]), ch.Timestamp.UnixNano())
		if err != nil {
			return fmt.Errorf("index change %s: %w", id, err)
		}
		for p := range ch.FileSnapshot {
			if _, err := insPath.ExecContext(ctx, id, p); err != nil {
				return fmt.Errorf("index path %s of %s: %w", p, id, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('head', ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		head); err != nil {
		return fmt.Errorf("stamp index head: %w", err)
	}

	return tx.Commit()
}

// FreshFor reports whether the index reflects the given operation head.
func (idx *Index) FreshFor(ctx context.Context, head string) bool {
	var got string
	err := idx.conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'head'`).Scan(&got)
	return err == nil && got == head
}

// SearchAuthor returns ChangeIds whose author line contains pattern.
func (idx *Index) SearchAuthor(ctx context.Context, pattern string) ([]string, error) {
	return idx.search(ctx, `SELECT change_id FROM changes WHERE instr(author, ?) > 0`, pattern)
}

// SearchCommitter returns ChangeIds whose committer line contains pattern.
func (idx *Index) SearchCommitter(ctx context.Context, pattern string) ([]string, error) {
	return idx.search(ctx, `SELECT change_id FROM changes WHERE instr(committer, ?) > 0`, pattern)
}

// SearchDescription returns ChangeIds whose description contains pattern.
func (idx *Index) SearchDescription(ctx context.Context, pattern string) ([]string, error) {
	return idx.search(ctx, `SELECT change_id FROM changes WHERE instr(description, ?) > 0`, pattern)
}

// SearchPath returns ChangeIds touching a path matched by the SQL GLOB
// pattern.
func (idx *Index) SearchPath(ctx context.Context, glob string) ([]string, error) {
	return idx.search(ctx, `SELECT DISTINCT change_id FROM change_paths WHERE path GLOB ?`, glob)
}

// Conflicted returns ChangeIds hosting an unresolved conflict.
func (idx *Index) Conflicted(ctx context.Context) ([]string, error) {
	rows, err := idx.conn.QueryContext(ctx, `SELECT change_id FROM changes WHERE conflicted = 1`)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func (idx *Index) search(ctx context.Context, query, arg string) ([]string, error) {
	rows, err := idx.conn.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func collectIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

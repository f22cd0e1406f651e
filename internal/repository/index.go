package repository

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jjcore/jjcore/internal/queryindex"
)

// SetQueryIndex attaches a secondary SQLite index. Once attached, every
// successful mutation refreshes it and revset evaluation consults it
// when fresh; a stale or failing index silently degrades to the
// in-memory scan.
func (r *Repository) SetQueryIndex(idx *queryindex.Index) {
	r.index = idx
}

// refreshIndex rebuilds the attached index for the current head.
// Best-effort: a refresh failure is logged and the index simply goes
// stale, which the accelerator detects via its head stamp.
func (r *Repository) refreshIndex(ctx context.Context) {
	if r.index == nil {
		return
	}
	head, err := r.oplog.Head()
	if err != nil {
		return
	}
	if err := r.index.Refresh(ctx, head, r.graph.Snapshot(), r.conflicts.ConflictedChanges()); err != nil {
		slog.Warn("query index refresh failed", "err", err)
	}
}

// indexAccelerator adapts queryindex.Index to the revset Accelerator
// contract, answering only when the index is fresh for the operation
// head captured at snapshot time.
type indexAccelerator struct {
	idx   *queryindex.Index
	head  string
	fresh bool
}

func (r *Repository) accelerator() *indexAccelerator {
	if r.index == nil {
		return nil
	}
	head, err := r.oplog.Head()
	if err != nil {
		return nil
	}
	return &indexAccelerator{
		idx:   r.index,
		head:  head,
		fresh: r.index.FreshFor(context.Background(), head),
	}
}

func (a *indexAccelerator) answer(ids []string, err error) ([]string, bool) {
	if err != nil {
		return nil, false
	}
	return ids, true
}

func (a *indexAccelerator) Author(pattern string) ([]string, bool) {
	if !a.fresh {
		return nil, false
	}
	return a.answer(a.idx.SearchAuthor(context.Background(), pattern))
}

func (a *indexAccelerator) Committer(pattern string) ([]string, bool) {
	if !a.fresh {
		return nil, false
	}
	return a.answer(a.idx.SearchCommitter(context.Background(), pattern))
}

func (a *indexAccelerator) Description(pattern string) ([]string, bool) {
	if !a.fresh {
		return nil, false
	}
	return a.answer(a.idx.SearchDescription(context.Background(), pattern))
}

func (a *indexAccelerator) Paths(glob string) ([]string, bool) {
	if !a.fresh {
		return nil, false
	}
	// SQLite GLOB lets '*' cross '/' where path.Match stops at it, so
	// wildcard patterns can answer differently under the two matchers.
	// Only literal paths are safe to answer from the index; the
	// evaluator scans for the rest.
	if strings.ContainsAny(glob, "*?[") {
		return nil, false
	}
	return a.answer(a.idx.SearchPath(context.Background(), glob))
}

func (a *indexAccelerator) Conflicted() ([]string, bool) {
	if !a.fresh {
		return nil, false
	}
	return a.answer(a.idx.Conflicted(context.Background()))
}

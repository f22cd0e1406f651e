package repository

import (
	"context"

	"github.com/jjcore/jjcore/internal/jjerrors"
)

// SparsePatterns returns the working copy's ordered sparse pattern list.
func (r *Repository) SparsePatterns() ([]string, error) {
	return r.sparse.Patterns()
}

// SetSparsePatterns replaces the sparse pattern list and records the
// operation. Materialization bookkeeping only: already-tracked files
// outside the new scope stay on disk until the next checkout.
func (r *Repository) SetSparsePatterns(ctx context.Context, patterns []string) error {
	return r.withMutation(ctx, "set sparse patterns", func() error {
		return r.sparse.Replace(patterns)
	})
}

// checkSparse rejects writes to paths outside the sparse scope.
func (r *Repository) checkSparse(path string) error {
	ok, err := r.sparse.Includes(path)
	if err != nil {
		return err
	}
	if !ok {
		return jjerrors.Newf(jjerrors.CodeFileNotInSparse, "path %q is outside the sparse working-copy patterns", path).
			WithSuggestion("widen the sparse patterns or write inside the included paths")
	}
	return nil
}

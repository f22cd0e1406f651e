package repository

import (
	"context"

	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/revset"
	"github.com/jjcore/jjcore/internal/types"
)

// Undo rolls the repository back to the view of the current head
// operation's parent: working-copy pointer and bookmarks are restored
// and one new "undo" operation carrying that view is appended. Undoing
// an undo is just another undo, stepping one view further back.
func (r *Repository) Undo(ctx context.Context) (*types.Operation, error) {
	if err := r.lease.Acquire(ctx); err != nil {
		return nil, err
	}
	defer r.lease.Release()

	if r.hooks.PreCommit != nil {
		if err := r.hooks.PreCommit(ctx, "undo"); err != nil {
			return nil, jjerrors.Newf(jjerrors.CodeInvalidArgument, "preCommit hook rejected operation: %v", err)
		}
	}

	op, view, err := r.oplog.Undo(ctx, r.user.operationUser())
	if err != nil {
		return nil, err
	}

	if err := r.bookmarks.Restore(view.Bookmarks); err != nil {
		return nil, err
	}
	if view.WorkingCopy != "" {
		if ch, err := r.graph.Get(view.WorkingCopy); err == nil {
			if err := r.checkoutFiles(ch); err != nil {
				return nil, err
			}
			if err := r.wc.SetCurrentChange(view.WorkingCopy, op.OperationID); err != nil {
				return nil, err
			}
		}
	}

	if r.hooks.PostCommit != nil {
		r.hooks.PostCommit(ctx, op)
	}
	return op, nil
}

// AtHandle is a read-only view of the repository as of one operation.
// Its queries observe that operation's View; mutations are not offered.
type AtHandle struct {
	repo *Repository
	opID string
	view *types.View
}

// At returns a read-only handle observing the repository as of opID.
func (r *Repository) At(opID string) (*AtHandle, error) {
	view, err := r.oplog.View(opID)
	if err != nil {
		return nil, err
	}
	return &AtHandle{repo: r, opID: opID, view: view}, nil
}

// View returns the snapshot this handle observes.
func (h *AtHandle) View() *types.View { return h.view.Clone() }

// WorkingCopyChange returns the ChangeId the working copy pointed at.
func (h *AtHandle) WorkingCopyChange() string { return h.view.WorkingCopy }

// Evaluate runs a revset against the time-traveled view: the graph's
// nodes are shared (changes are never destroyed), but bookmarks and the
// working-copy pointer come from the historical View.
func (h *AtHandle) Evaluate(expr string) ([]string, error) {
	parsed, err := revset.Parse(expr)
	if err != nil {
		return nil, err
	}
	ctx, err := h.repo.revsetContext()
	if err != nil {
		return nil, err
	}
	ctx.Bookmarks = h.view.Bookmarks
	ctx.WorkingCopy = h.view.WorkingCopy
	ctx.GitHead = h.view.WorkingCopy
	gitRefs := make(map[string]string, len(h.view.Bookmarks))
	for name, id := range h.view.Bookmarks {
		gitRefs["refs/heads/"+name] = id
	}
	for name, id := range ctx.Tags {
		gitRefs["refs/tags/"+name] = id
	}
	ctx.GitRefs = gitRefs
	return revset.Evaluate(ctx, parsed)
}

// Show returns a change and its diff as observed through this handle.
// Change content is immutable once recorded, so this delegates to the
// live repository's Show.
func (h *AtHandle) Show(changeID string) (*ShowReport, error) {
	if changeID == "" {
		changeID = h.view.WorkingCopy
	}
	return h.repo.Show(changeID)
}

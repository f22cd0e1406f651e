package repository

import (
	"context"

	"github.com/jjcore/jjcore/internal/idgen"
	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/types"
)

// Squash folds source's file content into dest, abandons source, and
// rewrites any child of source to point at dest instead. dest keeps its
// ChangeId; source's ChangeId is preserved in history only through the
// abandoned node itself (the graph never deletes nodes).
func (r *Repository) Squash(ctx context.Context, source, dest string) (*types.Change, error) {
	if source == dest {
		return nil, jjerrors.New(jjerrors.CodeInvalidArgument, "cannot squash a change into itself")
	}
	var result *types.Change
	err := r.withMutation(ctx, "squash "+shortID(source)+" into "+shortID(dest), func() error {
		src, err := r.requireChange(source)
		if err != nil {
			return err
		}
		dst, err := r.requireChange(dest)
		if err != nil {
			return err
		}
		dst = dst.Clone()
		if dst.FileSnapshot == nil {
			dst.FileSnapshot = make(map[string]string)
		}
		for p, content := range src.FileSnapshot {
			dst.FileSnapshot[p] = content
		}
		suffix := "(squashed from " + shortID(source) + ")"
		if dst.Description != "" {
			dst.Description = dst.Description + " " + suffix
		} else {
			dst.Description = suffix
		}
		dst.Committer = r.user.identity(r.clock())
		if err := r.synthesizeCommitIfNeeded(ctx, dst); err != nil {
			return err
		}
		if err := r.graph.Update(dst); err != nil {
			return err
		}

		src = src.Clone()
		src.Abandoned = true
		if err := r.graph.Update(src); err != nil {
			return err
		}

		for _, childID := range r.graph.Children(source) {
			if childID == dest {
				continue
			}
			child, err := r.graph.Get(childID)
			if err != nil {
				return err
			}
			child = child.Clone()
			child.Parents = replaceParent(child.Parents, source, dest)
			if err := r.graph.Update(child); err != nil {
				return err
			}
		}

		cur, err := r.wc.CurrentChange()
		if err != nil {
			return err
		}
		if cur == source {
			wcOp, _ := r.oplog.Head()
			if err := r.wc.SetCurrentChange(dest, wcOp); err != nil {
				return err
			}
		}
		result = dst
		return nil
	})
	return result, err
}

func replaceParent(parents []string, old, new string) []string {
	out := make([]string, len(parents))
	for i, p := range parents {
		if p == old {
			out[i] = new
		} else {
			out[i] = p
		}
	}
	return out
}

// SplitResult holds the two changes a split produces.
type SplitResult struct {
	First  *types.Change
	Second *types.Change
}

// Split divides changeID's tracked paths in two. The original change
// keeps its ChangeId and the paths in firstPaths (description updated);
// a new change carrying every remaining path is created as its child,
// and the original's other children are rewired onto it.
func (r *Repository) Split(ctx context.Context, changeID string, firstPaths []string, firstDescription, secondDescription string) (*SplitResult, error) {
	var result *SplitResult
	err := r.withMutation(ctx, "split "+shortID(changeID), func() error {
		orig, err := r.requireChange(changeID)
		if err != nil {
			return err
		}
		firstSet := make(map[string]bool, len(firstPaths))
		for _, p := range firstPaths {
			if _, ok := orig.FileSnapshot[p]; !ok {
				return jjerrors.Newf(jjerrors.CodeFileNotFound, "path %q is not tracked by %s", p, changeID)
			}
			firstSet[p] = true
		}

		firstSnapshot := make(map[string]string)
		secondSnapshot := make(map[string]string)
		for p, content := range orig.FileSnapshot {
			if firstSet[p] {
				firstSnapshot[p] = content
			} else {
				secondSnapshot[p] = content
			}
		}

		priorChildren := r.graph.Children(changeID)

		now := r.clock()
		first := orig.Clone()
		first.Description = firstDescription
		first.FileSnapshot = firstSnapshot
		first.Committer = r.user.identity(now)
		if err := r.synthesizeCommitIfNeeded(ctx, first); err != nil {
			return err
		}
		if err := r.graph.Update(first); err != nil {
			return err
		}

		secondID, err := r.graph.NewChangeID()
		if err != nil {
			return err
		}
		second := &types.Change{
			ChangeID:     secondID,
			CommitID:     idgen.ZeroCommitID,
			Parents:      []string{changeID},
			Tree:         idgen.EmptyTreeRef,
			Author:       orig.Author,
			Committer:    r.user.identity(now),
			Description:  secondDescription,
			FileSnapshot: secondSnapshot,
			Timestamp:    now,
		}
		if err := r.synthesizeCommitIfNeeded(ctx, second); err != nil {
			return err
		}
		if err := r.graph.Add(second); err != nil {
			return err
		}

		for _, childID := range priorChildren {
			child, err := r.graph.Get(childID)
			if err != nil {
				return err
			}
			child = child.Clone()
			child.Parents = replaceParent(child.Parents, changeID, secondID)
			if err := r.graph.Update(child); err != nil {
				return err
			}
		}

		cur, err := r.wc.CurrentChange()
		if err != nil {
			return err
		}
		if cur == changeID {
			wcOp, _ := r.oplog.Head()
			if err := r.wc.SetCurrentChange(secondID, wcOp); err != nil {
				return err
			}
		}
		result = &SplitResult{First: first, Second: second}
		return nil
	})
	return result, err
}

// Duplicate creates a fresh, independent Change for each id in changeIDs,
// copying its content and parents but assigning new ChangeIds. Duplicates
// share no identity with their source; they are unrelated new changes.
func (r *Repository) Duplicate(ctx context.Context, changeIDs []string) ([]*types.Change, error) {
	if len(changeIDs) == 0 {
		return nil, jjerrors.New(jjerrors.CodeInvalidArgument, "duplicate requires at least one change id")
	}
	var result []*types.Change
	err := r.withMutation(ctx, "duplicate", func() error {
		remap := make(map[string]string, len(changeIDs))
		for _, id := range changeIDs {
			newID, err := r.graph.NewChangeID()
			if err != nil {
				return err
			}
			remap[id] = newID
		}
		for _, id := range changeIDs {
			orig, err := r.requireChange(id)
			if err != nil {
				return err
			}
			parents := make([]string, len(orig.Parents))
			for i, p := range orig.Parents {
				if np, ok := remap[p]; ok {
					parents[i] = np
				} else {
					parents[i] = p
				}
			}
			now := r.clock()
			dup := &types.Change{
				ChangeID:     remap[id],
				CommitID:     idgen.ZeroCommitID,
				Parents:      parents,
				Tree:         orig.Tree,
				Author:       orig.Author,
				Committer:    r.user.identity(now),
				Description:  orig.Description,
				FileSnapshot: cloneSnapshot(orig.FileSnapshot),
				Timestamp:    now,
			}
			if err := r.synthesizeCommitIfNeeded(ctx, dup); err != nil {
				return err
			}
			if err := r.graph.Add(dup); err != nil {
				return err
			}
			result = append(result, dup)
		}
		return nil
	})
	return result, err
}

func cloneSnapshot(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Backout creates a new change on top of the working copy that reverses
// revision's content changes relative to its first parent: every path
// revision touched is restored to its pre-revision content (or removed,
// if revision introduced it).
func (r *Repository) Backout(ctx context.Context, revision, message string) (*types.Change, error) {
	var result *types.Change
	err := r.withMutation(ctx, "backout "+shortID(revision), func() error {
		rev, err := r.requireChange(revision)
		if err != nil {
			return err
		}
		var before map[string]string
		if len(rev.Parents) > 0 {
			parent, err := r.graph.Get(rev.Parents[0])
			if err != nil {
				return err
			}
			before = parent.FileSnapshot
		}

		cur, err := r.wc.CurrentChange()
		if err != nil {
			return err
		}
		base, err := r.requireChange(cur)
		if err != nil {
			return err
		}

		snapshot := cloneSnapshot(base.FileSnapshot)
		if snapshot == nil {
			snapshot = make(map[string]string)
		}
		for p := range rev.FileSnapshot {
			if orig, ok := before[p]; ok {
				snapshot[p] = orig
			} else {
				delete(snapshot, p)
			}
		}

		id, err := r.graph.NewChangeID()
		if err != nil {
			return err
		}
		now := r.clock()
		if message == "" {
			message = "backout of " + shortID(revision)
		}
		ch := &types.Change{
			ChangeID:     id,
			CommitID:     idgen.ZeroCommitID,
			Parents:      []string{cur},
			Tree:         idgen.EmptyTreeRef,
			Author:       r.user.identity(now),
			Committer:    r.user.identity(now),
			Description:  message,
			FileSnapshot: snapshot,
			Timestamp:    now,
			BackedOut:    revision,
		}
		if err := r.synthesizeCommitIfNeeded(ctx, ch); err != nil {
			return err
		}
		if err := r.graph.Add(ch); err != nil {
			return err
		}
		if err := r.checkoutFiles(ch); err != nil {
			return err
		}
		wcOp, _ := r.oplog.Head()
		if err := r.wc.SetCurrentChange(id, wcOp); err != nil {
			return err
		}
		result = ch
		return nil
	})
	return result, err
}

package repository

import (
	"context"

	"github.com/jjcore/jjcore/internal/conflict"
	"github.com/jjcore/jjcore/internal/idgen"
	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/mergedriver"
	"github.com/jjcore/jjcore/internal/types"
)

// MergeOptions configures the `merge` operation.
type MergeOptions struct {
	Source      string // the change to merge with the working copy's current change
	Description string
	DryRun      bool // compute conflicts without creating a change
}

// MergeResult reports the outcome of a merge attempt.
type MergeResult struct {
	Change    *types.Change // nil when DryRun; conflicted merges still create it
	Conflicts []*types.Conflict
}

// Merge creates a new change whose parents are the working copy's current
// change and source, and checks it out: it finds their closest common
// ancestor, three-way merges every path that differs on either side via
// the merge-driver registry, and records any conflict on the new change
// through the conflict model rather than failing the operation. In dry-run
// mode it reports would-be conflicts without mutating anything.
func (r *Repository) Merge(ctx context.Context, opts MergeOptions) (*MergeResult, error) {
	if opts.Source == "" {
		return nil, jjerrors.New(jjerrors.CodeInvalidArgument, "merge requires a source change")
	}

	if opts.DryRun {
		cur, err := r.wc.CurrentChange()
		if err != nil {
			return nil, err
		}
		plan, err := r.planMerge(cur, opts.Source)
		if err != nil {
			return nil, err
		}
		return &MergeResult{Conflicts: plan.conflicts}, nil
	}

	var result *MergeResult
	err := r.withMutation(ctx, "merge "+shortID(opts.Source), func() error {
		cur, err := r.wc.CurrentChange()
		if err != nil {
			return err
		}
		plan, err := r.planMerge(cur, opts.Source)
		if err != nil {
			return err
		}

		id, err := r.graph.NewChangeID()
		if err != nil {
			return err
		}
		now := r.clock()
		desc := opts.Description
		if desc == "" {
			desc = "merge " + shortID(opts.Source) + " into " + shortID(cur)
		}
		ch := &types.Change{
			ChangeID:     id,
			CommitID:     idgen.ZeroCommitID,
			Parents:      []string{cur, opts.Source},
			Tree:         idgen.EmptyTreeRef,
			Author:       r.user.identity(now),
			Committer:    r.user.identity(now),
			Description:  desc,
			FileSnapshot: plan.merged,
			Timestamp:    now,
		}
		if err := r.synthesizeCommitIfNeeded(ctx, ch); err != nil {
			return err
		}
		if err := r.graph.Add(ch); err != nil {
			return err
		}
		for _, c := range plan.conflicts {
			c.ChangeID = id
			if _, err := r.conflicts.Record(c); err != nil {
				return err
			}
		}
		if err := r.checkoutFiles(ch); err != nil {
			return err
		}
		wcOp, _ := r.oplog.Head()
		if err := r.wc.SetCurrentChange(id, wcOp); err != nil {
			return err
		}
		result = &MergeResult{Change: ch, Conflicts: plan.conflicts}
		return nil
	})
	return result, err
}

type mergePlan struct {
	merged    map[string]string
	conflicts []*types.Conflict
}

func (r *Repository) planMerge(leftID, rightID string) (*mergePlan, error) {
	left, err := r.requireChange(leftID)
	if err != nil {
		return nil, err
	}
	right, err := r.requireChange(rightID)
	if err != nil {
		return nil, err
	}
	baseID := r.commonAncestor(leftID, rightID)
	if baseID == "" {
		return nil, jjerrors.Newf(jjerrors.CodeMergeError, "%s and %s have no common ancestor", shortID(leftID), shortID(rightID))
	}
	base, err := r.graph.Get(baseID)
	if err != nil {
		return nil, err
	}
	return r.buildMergePlan(base, left, right)
}

func (r *Repository) buildMergePlan(base, left, right *types.Change) (*mergePlan, error) {
	var baseSnap map[string]string
	if base != nil {
		baseSnap = base.FileSnapshot
	}
	paths := make(map[string]bool)
	for p := range baseSnap {
		paths[p] = true
	}
	for p := range left.FileSnapshot {
		paths[p] = true
	}
	for p := range right.FileSnapshot {
		paths[p] = true
	}

	merged := make(map[string]string)
	var conflicts []*types.Conflict
	for p := range paths {
		baseContent, baseExists := baseSnap[p]
		leftContent, leftExists := left.FileSnapshot[p]
		rightContent, rightExists := right.FileSnapshot[p]

		sides := types.ConflictSides{Base: baseContent, Left: leftContent, Right: rightContent}
		det := conflict.Detect(p, sides, baseExists, leftExists, rightExists)
		if det == nil {
			switch {
			case leftExists && (!baseExists || leftContent != baseContent):
				merged[p] = leftContent
			case rightExists && (!baseExists || rightContent != baseContent):
				merged[p] = rightContent
			case leftExists && rightExists:
				merged[p] = leftContent
			}
			continue
		}

		out := r.drivers.Merge(mergedriver.Input{Base: baseContent, Left: leftContent, Right: rightContent, Path: p})
		if !out.HasConflict {
			merged[p] = out.Content
			continue
		}
		merged[p] = out.Content
		conflicts = append(conflicts, &types.Conflict{Path: p, Type: det.Type, Sides: sides, Timestamp: r.clock()})
	}
	return &mergePlan{merged: merged, conflicts: conflicts}, nil
}

// commonAncestor returns the closest common ancestor of a and b: a node
// reachable from both by parent edges, with no other common ancestor
// reachable from it. Ties are broken by ChangeId for determinism.
func (r *Repository) commonAncestor(a, b string) string {
	ancA := ancestorSetIncluding(r.graph.Ancestors(a), a)
	ancB := ancestorSetIncluding(r.graph.Ancestors(b), b)

	var shared []string
	for id := range ancA {
		if ancB[id] {
			shared = append(shared, id)
		}
	}
	if len(shared) == 0 {
		return ""
	}

	best := ""
	for _, candidate := range shared {
		dominated := false
		for _, other := range shared {
			if other == candidate {
				continue
			}
			for _, anc := range r.graph.Ancestors(other) {
				if anc == candidate {
					dominated = true
					break
				}
			}
			if dominated {
				break
			}
		}
		if !dominated && (best == "" || candidate < best) {
			best = candidate
		}
	}
	return best
}

func ancestorSetIncluding(ancestors []string, self string) map[string]bool {
	set := make(map[string]bool, len(ancestors)+1)
	set[self] = true
	for _, a := range ancestors {
		set[a] = true
	}
	return set
}

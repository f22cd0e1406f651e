package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jjcore/jjcore/internal/gitbackend"
	"github.com/jjcore/jjcore/internal/idgen"
	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/types"
)

// NewOptions configures the `new` operation.
type NewOptions struct {
	Message string
	Parents []string // defaults to [currentWorkingCopy]
}

// New creates a Change whose parents default to the current working
// copy, assigns it a fresh ChangeId, sets its tree to the empty-tree
// sentinel, and checks it out.
func (r *Repository) New(ctx context.Context, opts NewOptions) (*types.Change, error) {
	var result *types.Change
	err := r.withMutation(ctx, describeNew(opts.Message), func() error {
		parents := opts.Parents
		if len(parents) == 0 {
			cur, err := r.wc.CurrentChange()
			if err != nil {
				return err
			}
			if cur != "" {
				parents = []string{cur}
			}
		}
		for _, p := range parents {
			if _, err := r.graph.Get(p); err != nil {
				return err
			}
		}
		id, err := r.graph.NewChangeID()
		if err != nil {
			return err
		}
		now := r.clock()
		ch := &types.Change{
			ChangeID:    id,
			CommitID:    idgen.ZeroCommitID,
			Parents:     parents,
			Tree:        idgen.EmptyTreeRef,
			Author:      r.user.identity(now),
			Committer:   r.user.identity(now),
			Description: opts.Message,
			Timestamp:   now,
		}
		if err := r.graph.Add(ch); err != nil {
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

func describeNew(message string) string {
	if message == "" {
		return "new empty change"
	}
	return "new change: " + message
}

// DescribeOptions configures the `describe` operation.
type DescribeOptions struct {
	Revision string // defaults to the working copy
	Message  string
}

// Describe updates a change's description. If a Git backend is present
// and the change already has file content, it synthesizes a new Git
// commit and updates commitId — the ChangeId never changes.
func (r *Repository) Describe(ctx context.Context, opts DescribeOptions) (*types.Change, error) {
	var result *types.Change
	err := r.withMutation(ctx, "describe", func() error {
		revision := opts.Revision
		if revision == "" {
			cur, err := r.wc.CurrentChange()
			if err != nil {
				return err
			}
			revision = cur
		}
		ch, err := r.requireChange(revision)
		if err != nil {
			return err
		}
		ch = ch.Clone()
		ch.Description = opts.Message
		ch.Committer = r.user.identity(r.clock())
		if err := r.synthesizeCommitIfNeeded(ctx, ch); err != nil {
			return err
		}
		if err := r.graph.Update(ch); err != nil {
			return err
		}
		result = ch
		return nil
	})
	return result, err
}

// Amend updates the current change's description (when message is
// non-empty) and re-synthesizes its commit from the change's tracked
// content; files are not re-read from disk. It shares describe's
// contract: the ChangeId is preserved; only the CommitId and tree change.
func (r *Repository) Amend(ctx context.Context, message string) (*types.Change, error) {
	var result *types.Change
	err := r.withMutation(ctx, "amend", func() error {
		cur, err := r.wc.CurrentChange()
		if err != nil {
			return err
		}
		ch, err := r.requireChange(cur)
		if err != nil {
			return err
		}
		ch = ch.Clone()
		if message != "" {
			ch.Description = message
		}
		ch.Committer = r.user.identity(r.clock())
		if err := r.synthesizeCommitIfNeeded(ctx, ch); err != nil {
			return err
		}
		if err := r.graph.Update(ch); err != nil {
			return err
		}
		result = ch
		return nil
	})
	return result, err
}

// synthesizeCommitIfNeeded builds a Git commit from ch's FileSnapshot when
// a non-empty tree of content is present, recording the prior CommitId as
// a predecessor.
func (r *Repository) synthesizeCommitIfNeeded(ctx context.Context, ch *types.Change) error {
	if r.backend == nil || len(ch.FileSnapshot) == 0 {
		return nil
	}
	tree, err := r.buildTree(ctx, ch.FileSnapshot)
	if err != nil {
		return err
	}
	ch.Tree = tree

	commitID, err := r.backend.CreateCommit(ctx, gitbackend.CommitSpec{
		Message:   ch.Description,
		Author:    identitySignature(ch.Author),
		Committer: identitySignature(ch.Committer),
		Parents:   parentCommits(r.graph, ch.Parents),
		Tree:      tree,
	})
	if err != nil {
		return jjerrors.Newf(jjerrors.CodeBackendNotAvailable, "synthesize commit: %v", err)
	}
	if ch.CommitID != "" && ch.CommitID != idgen.ZeroCommitID && ch.CommitID != commitID {
		ch.Predecessors = append(ch.Predecessors, ch.CommitID)
	}
	ch.CommitID = commitID
	return nil
}

func identitySignature(id types.Identity) gitbackend.Signature {
	return gitbackend.Signature{Name: id.Name, Email: id.Email, Timestamp: id.Timestamp.Unix()}
}

func parentCommits(g interface {
	Get(string) (*types.Change, error)
}, parents []string) []string {
	var out []string
	for _, p := range parents {
		if pc, err := g.Get(p); err == nil && pc.CommitID != "" && pc.CommitID != idgen.ZeroCommitID {
			out = append(out, pc.CommitID)
		}
	}
	return out
}

// buildTree content-addresses a file snapshot into an opaque TreeRef via
// the Git backend: one blob per path, then a manifest blob listing
// path->blob-oid pairs in sorted order, stored as a tree object. The core
// never parses pack files; this is the only place it asks the backend to
// turn content into an object graph.
func (r *Repository) buildTree(ctx context.Context, snapshot map[string]string) (string, error) {
	if len(snapshot) == 0 {
		return idgen.EmptyTreeRef, nil
	}
	paths := make([]string, 0, len(snapshot))
	for p := range snapshot {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var manifest []byte
	for _, p := range paths {
		oid, err := r.backend.PutObject(ctx, gitbackend.ObjectBlob, []byte(snapshot[p]))
		if err != nil {
			return "", err
		}
		manifest = append(manifest, []byte(fmt.Sprintf("%s\x00%s\n", p, oid))...)
	}
	return r.backend.PutObject(ctx, gitbackend.ObjectTree, manifest)
}

// EditOptions configures the `edit` operation.
type EditOptions struct {
	Restore bool // allow checking out an abandoned change
}

// Edit sets the working copy's current change and materializes its
// tracked file content onto disk via the FS capability.
func (r *Repository) Edit(ctx context.Context, changeID string, opts EditOptions) (*types.Change, error) {
	var result *types.Change
	err := r.withMutation(ctx, "edit "+shortID(changeID), func() error {
		ch, err := r.requireChange(changeID)
		if err != nil {
			return err
		}
		if ch.Abandoned && !opts.Restore {
			return jjerrors.Newf(jjerrors.CodeInvalidArgument, "change %s is abandoned; use restore semantics to edit it", changeID)
		}
		if err := r.checkoutFiles(ch); err != nil {
			return err
		}
		wcOp, _ := r.oplog.Head()
		if err := r.wc.SetCurrentChange(changeID, wcOp); err != nil {
			return err
		}
		result = ch
		return nil
	})
	return result, err
}

// checkoutFiles materializes ch's FileSnapshot onto disk, removing
// tracked files absent from the snapshot and writing/overwriting the rest.
func (r *Repository) checkoutFiles(ch *types.Change) error {
	tracked, err := r.wc.ListFiles()
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(ch.FileSnapshot))
	for p, content := range ch.FileSnapshot {
		keep[p] = true
		if err := r.fs.WriteFile(p, []byte(content)); err != nil {
			return jjerrors.Newf(jjerrors.CodeFileNotFound, "write %s: %v", p, err)
		}
		st, ok, err := r.fs.Stat(p)
		if err != nil || !ok {
			return jjerrors.Newf(jjerrors.CodeFileNotFound, "stat %s after write: %v", p, err)
		}
		if err := r.wc.TrackFile(p, st); err != nil {
			return err
		}
	}
	for _, p := range tracked {
		if !keep[p] {
			_ = r.fs.Remove(p)
			if err := r.wc.UntrackFile(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// Abandon flips a change's abandoned flag on. Abandoning does not remove
// the node; it only hides it from default revsets.
func (r *Repository) Abandon(ctx context.Context, changeID string) error {
	return r.setAbandoned(ctx, changeID, true, "abandon "+shortID(changeID))
}

// Restore flips a change's abandoned flag off.
func (r *Repository) Restore(ctx context.Context, changeID string) error {
	return r.setAbandoned(ctx, changeID, false, "restore "+shortID(changeID))
}

func (r *Repository) setAbandoned(ctx context.Context, changeID string, abandoned bool, desc string) error {
	return r.withMutation(ctx, desc, func() error {
		ch, err := r.requireChange(changeID)
		if err != nil {
			return err
		}
		ch = ch.Clone()
		ch.Abandoned = abandoned
		return r.graph.Update(ch)
	})
}

// MetaEditOptions configures the `metaedit` operation.
type MetaEditOptions struct {
	Revision  string // defaults to the working copy
	Author    *types.Identity
	Committer *types.Identity
}

// MetaEdit updates author/committer metadata, preserving the ChangeId and
// tree content. Default revision is the working copy.
func (r *Repository) MetaEdit(ctx context.Context, opts MetaEditOptions) (*types.Change, error) {
	var result *types.Change
	err := r.withMutation(ctx, "metaedit", func() error {
		revision := opts.Revision
		if revision == "" {
			cur, err := r.wc.CurrentChange()
			if err != nil {
				return err
			}
			revision = cur
		}
		ch, err := r.requireChange(revision)
		if err != nil {
			return err
		}
		ch = ch.Clone()
		if opts.Author != nil {
			ch.Author = *opts.Author
		}
		if opts.Committer != nil {
			ch.Committer = *opts.Committer
		}
		if err := r.synthesizeCommitIfNeeded(ctx, ch); err != nil {
			return err
		}
		if err := r.graph.Update(ch); err != nil {
			return err
		}
		result = ch
		return nil
	})
	return result, err
}

// NavResult reports the outcome of a next/prev navigation.
type NavResult struct {
	ChangeID string
	From     string
	To       string
}

// Next checks out a child of the current working-copy change. With more
// than one child, the lexicographically smallest ChangeId is chosen
// deterministically.
func (r *Repository) Next(ctx context.Context) (*NavResult, error) {
	return r.navigate(ctx, true)
}

// Prev checks out the first parent of the current working-copy change.
func (r *Repository) Prev(ctx context.Context) (*NavResult, error) {
	return r.navigate(ctx, false)
}

func (r *Repository) navigate(ctx context.Context, forward bool) (*NavResult, error) {
	var result *NavResult
	desc := "prev"
	if forward {
		desc = "next"
	}
	err := r.withMutation(ctx, desc, func() error {
		cur, err := r.wc.CurrentChange()
		if err != nil {
			return err
		}
		var target string
		if forward {
			children := r.graph.Children(cur)
			if len(children) == 0 {
				return jjerrors.Newf(jjerrors.CodeNotFound, "change %s has no children", cur)
			}
			sort.Strings(children)
			target = children[0]
		} else {
			parents, err := r.graph.Parents(cur)
			if err != nil {
				return err
			}
			if len(parents) == 0 {
				return jjerrors.Newf(jjerrors.CodeNotFound, "change %s has no parents", cur)
			}
			target = parents[0]
		}
		ch, err := r.requireChange(target)
		if err != nil {
			return err
		}
		if err := r.checkoutFiles(ch); err != nil {
			return err
		}
		wcOp, _ := r.oplog.Head()
		if err := r.wc.SetCurrentChange(target, wcOp); err != nil {
			return err
		}
		result = &NavResult{ChangeID: target, From: cur, To: target}
		return nil
	})
	return result, err
}

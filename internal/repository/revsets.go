package repository

import (
	"github.com/jjcore/jjcore/internal/idgen"
	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/revset"
	"github.com/jjcore/jjcore/internal/types"
)

// revsetContext snapshots the repository state a revset evaluates against.
// Everything is copied up front so evaluation stays pure even if a
// concurrent reader pokes at the stores (mutations are excluded by the
// lease, reads are not).
func (r *Repository) revsetContext() (*revset.Context, error) {
	graph := r.graph.Snapshot()
	changes := make(map[string]*revset.Change, len(graph))
	touched := make(map[string][]string, len(graph))
	for id, ch := range graph {
		changes[id] = &revset.Change{
			ChangeID:    ch.ChangeID,
			Parents:     ch.Parents,
			Tree:        ch.Tree,
			Author:      ch.Author.Name + " <" + ch.Author.Email + ">",
			Committer:   ch.Committer.Name + " <" + ch.Committer.Email + ">",
			Description: ch.Description,
			Timestamp:   ch.Timestamp.UnixNano(),
			Abandoned:   ch.Abandoned,
		}
		if len(ch.FileSnapshot) > 0 {
			paths := make([]string, 0, len(ch.FileSnapshot))
			for p := range ch.FileSnapshot {
				paths = append(paths, p)
			}
			touched[id] = paths
		}
	}

	local, _ := r.bookmarks.Snapshot()
	wcID, err := r.wc.CurrentChange()
	if err != nil {
		return nil, err
	}

	gitRefs := make(map[string]string)
	for name, id := range local {
		gitRefs["refs/heads/"+name] = id
	}
	tags := r.tags.List()
	for name, id := range tags {
		gitRefs["refs/tags/"+name] = id
	}

	rctx := &revset.Context{
		Changes:         changes,
		Bookmarks:       local,
		Tags:            tags,
		GitRefs:         gitRefs,
		GitHead:         wcID,
		WorkingCopy:     wcID,
		CurrentUserName: r.user.Name,
		EmptyTree:       idgen.EmptyTreeRef,
		Conflicted:      r.conflicts.ConflictedChanges(),
		TouchedPaths:    touched,
	}
	if accel := r.accelerator(); accel != nil {
		rctx.Accel = accel
	}
	return rctx, nil
}

// Evaluate parses and evaluates a revset expression against the current
// repository state, returning matching ChangeIds newest-first.
func (r *Repository) Evaluate(expr string) ([]string, error) {
	parsed, err := revset.Parse(expr)
	if err != nil {
		return nil, err
	}
	ctx, err := r.revsetContext()
	if err != nil {
		return nil, err
	}
	return revset.Evaluate(ctx, parsed)
}

// LogEntry is one row of `log` output: the change decorated with the
// names pointing at it.
type LogEntry struct {
	Change    *types.Change
	Bookmarks []string
	Tags      []string
	IsWC      bool
}

// Log evaluates a revset (default: all visible changes) and returns the
// matching changes newest-first, decorated with bookmark/tag names and
// the working-copy marker.
func (r *Repository) Log(expr string) ([]*LogEntry, error) {
	if expr == "" {
		expr = "all()"
	}
	ids, err := r.Evaluate(expr)
	if err != nil {
		return nil, err
	}

	local, _ := r.bookmarks.Snapshot()
	byTarget := make(map[string][]string)
	for name, id := range local {
		byTarget[id] = append(byTarget[id], name)
	}
	tagsByTarget := make(map[string][]string)
	for name, id := range r.tags.List() {
		tagsByTarget[id] = append(tagsByTarget[id], name)
	}
	wcID, err := r.wc.CurrentChange()
	if err != nil {
		return nil, err
	}

	entries := make([]*LogEntry, 0, len(ids))
	for _, id := range ids {
		ch, err := r.graph.Get(id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &LogEntry{
			Change:    ch,
			Bookmarks: byTarget[id],
			Tags:      tagsByTarget[id],
			IsWC:      id == wcID,
		})
	}
	return entries, nil
}

// ResolveRevision turns a user-facing revision argument into a ChangeId:
// "@" means the working copy, a 32-hex string is a ChangeId, anything
// else is tried as a bookmark then a tag name.
func (r *Repository) ResolveRevision(rev string) (string, error) {
	if rev == "" || rev == "@" {
		return r.wc.CurrentChange()
	}
	if idgen.IsValidChangeID(rev) {
		if r.graph.Exists(rev) {
			return rev, nil
		}
	}
	if target, err := r.bookmarks.Get(rev); err == nil {
		return target, nil
	}
	if target, err := r.tags.Get(rev); err == nil {
		return target, nil
	}
	ids, err := r.Evaluate(rev)
	if err == nil && len(ids) == 1 {
		return ids[0], nil
	}
	return "", jjerrors.Newf(jjerrors.CodeChangeNotFound, "cannot resolve revision %q", rev)
}

package repository

import (
	"sort"

	"github.com/jjcore/jjcore/internal/idgen"
	"github.com/jjcore/jjcore/internal/types"
)

// FileChange classifies one path's difference between a change and its
// first parent, as reported by Show.
type FileChange struct {
	Path string
	Kind string // "added" | "modified" | "removed"
}

// StatusReport is what `status` returns: the current change, its pending
// on-disk modifications, its unresolved conflicts, and parent summaries.
type StatusReport struct {
	Current       *types.Change
	ModifiedFiles []string
	Conflicts     []*types.Conflict
	Parents       []*types.Change
}

// Status reports the working copy's current change, files whose on-disk
// state disagrees with the tracked fingerprints, unresolved conflicts,
// and the parents of the current change.
func (r *Repository) Status() (*StatusReport, error) {
	cur, err := r.wc.CurrentChange()
	if err != nil {
		return nil, err
	}
	ch, err := r.requireChange(cur)
	if err != nil {
		return nil, err
	}
	modified, err := r.wc.GetModifiedFiles()
	if err != nil {
		return nil, err
	}
	sort.Strings(modified)

	var parents []*types.Change
	for _, p := range ch.Parents {
		pc, err := r.graph.Get(p)
		if err != nil {
			return nil, err
		}
		parents = append(parents, pc)
	}

	var conflicts []*types.Conflict
	for _, c := range r.conflicts.Unresolved() {
		if c.ChangeID == "" || c.ChangeID == cur {
			conflicts = append(conflicts, c)
		}
	}

	return &StatusReport{
		Current:       ch,
		ModifiedFiles: modified,
		Conflicts:     conflicts,
		Parents:       parents,
	}, nil
}

// ShowReport is what `show` returns: the change plus its diff against
// its first parent.
type ShowReport struct {
	Change *types.Change
	Diff   []FileChange
}

// Show returns a change and the file-level diff it introduces relative
// to its first parent. The root change diffs against an empty tree.
func (r *Repository) Show(changeID string) (*ShowReport, error) {
	if changeID == "" {
		cur, err := r.wc.CurrentChange()
		if err != nil {
			return nil, err
		}
		changeID = cur
	}
	ch, err := r.requireChange(changeID)
	if err != nil {
		return nil, err
	}

	var parentSnap map[string]string
	if len(ch.Parents) > 0 {
		parent, err := r.graph.Get(ch.Parents[0])
		if err != nil {
			return nil, err
		}
		parentSnap = parent.FileSnapshot
	}

	return &ShowReport{Change: ch, Diff: diffSnapshots(parentSnap, ch.FileSnapshot)}, nil
}

func diffSnapshots(before, after map[string]string) []FileChange {
	var out []FileChange
	for p, content := range after {
		prev, ok := before[p]
		switch {
		case !ok:
			out = append(out, FileChange{Path: p, Kind: "added"})
		case prev != content:
			out = append(out, FileChange{Path: p, Kind: "modified"})
		}
	}
	for p := range before {
		if _, ok := after[p]; !ok {
			out = append(out, FileChange{Path: p, Kind: "removed"})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// IsEmpty reports whether a change has the empty-tree sentinel and no
// tracked content.
func IsEmpty(ch *types.Change) bool {
	return len(ch.FileSnapshot) == 0 && (ch.Tree == idgen.EmptyTreeRef || ch.Tree == "")
}

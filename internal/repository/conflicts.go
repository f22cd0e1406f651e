package repository

import (
	"context"

	"github.com/jjcore/jjcore/internal/conflict"
	"github.com/jjcore/jjcore/internal/mergedriver"
	"github.com/jjcore/jjcore/internal/types"
)

// ResolveConflict settles a single conflict and applies the resolved
// content to the working copy's current change and its on-disk file.
func (r *Repository) ResolveConflict(ctx context.Context, conflictID string, in conflict.ResolutionInput) error {
	return r.withMutation(ctx, "resolve conflict "+conflictID, func() error {
		c, err := r.conflicts.Get(conflictID)
		if err != nil {
			return err
		}
		if err := r.conflicts.Resolve(conflictID, in); err != nil {
			return err
		}
		resolved, err := r.conflicts.Get(conflictID)
		if err != nil {
			return err
		}
		return r.applyResolution(c.Path, resolved)
	})
}

// ResolveAllConflicts applies one strategy to every unresolved conflict
// whose path matches the optional glob, then applies each resolution to
// the working copy. The "driver" strategy consults the
// merge-driver registry per path.
func (r *Repository) ResolveAllConflicts(ctx context.Context, strategy conflict.ResolveAllStrategy, pathGlob string) ([]string, error) {
	var resolved []string
	err := r.withMutation(ctx, "resolve conflicts ("+string(strategy)+")", func() error {
		driver := func(path string, sides types.ConflictSides) (string, bool, error) {
			d := r.drivers.Get(path)
			if d == nil {
				return "", true, nil
			}
			out, err := d(mergedriver.Input{Base: sides.Base, Left: sides.Left, Right: sides.Right, Path: path})
			if err != nil {
				return "", true, err
			}
			return out.Content, out.HasConflict, nil
		}

		ids, err := r.conflicts.ResolveAll(strategy, pathGlob, driver)
		if err != nil {
			return err
		}
		for _, id := range ids {
			c, err := r.conflicts.Get(id)
			if err != nil {
				return err
			}
			if err := r.applyResolution(c.Path, c); err != nil {
				return err
			}
		}
		resolved = ids
		return nil
	})
	return resolved, err
}

// applyResolution writes a resolved conflict's content into the current
// change's snapshot and the on-disk file.
func (r *Repository) applyResolution(path string, c *types.Conflict) error {
	if c.Resolution == nil {
		return nil
	}
	cur, err := r.wc.CurrentChange()
	if err != nil {
		return err
	}
	ch, err := r.requireChange(cur)
	if err != nil {
		return err
	}
	ch = ch.Clone()
	if ch.FileSnapshot == nil {
		ch.FileSnapshot = make(map[string]string)
	}
	ch.FileSnapshot[path] = c.Resolution.Content
	if err := r.fs.WriteFile(path, []byte(c.Resolution.Content)); err == nil {
		if st, ok, err := r.fs.Stat(path); err == nil && ok {
			_ = r.wc.TrackFile(path, st)
		}
	}
	return r.graph.Update(ch)
}

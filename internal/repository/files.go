package repository

import (
	"context"

	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/workingcopy"
)

// WriteFile creates or overwrites path with content in the working copy.
// File operations implicitly mutate the current change: no staging area
// exists, so every write lands directly in the checked-out change's
// tracked content.
func (r *Repository) WriteFile(ctx context.Context, path string, content string) error {
	if err := workingcopy.ValidatePath(path); err != nil {
		return err
	}
	if err := r.checkSparse(path); err != nil {
		return err
	}
	return r.withMutation(ctx, "write "+path, func() error {
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
		ch.FileSnapshot[path] = content
		if err := r.fs.WriteFile(path, []byte(content)); err != nil {
			return jjerrors.Newf(jjerrors.CodeFileNotFound, "write %s: %v", path, err)
		}
		st, ok, err := r.fs.Stat(path)
		if err != nil || !ok {
			return jjerrors.Newf(jjerrors.CodeFileNotFound, "stat %s after write: %v", path, err)
		}
		if err := r.wc.TrackFile(path, st); err != nil {
			return err
		}
		return r.graph.Update(ch)
	})
}

// RemoveFile deletes path from the working copy's current change.
func (r *Repository) RemoveFile(ctx context.Context, path string) error {
	if err := workingcopy.ValidatePath(path); err != nil {
		return err
	}
	return r.withMutation(ctx, "remove "+path, func() error {
		cur, err := r.wc.CurrentChange()
		if err != nil {
			return err
		}
		ch, err := r.requireChange(cur)
		if err != nil {
			return err
		}
		if _, ok := ch.FileSnapshot[path]; !ok {
			return jjerrors.Newf(jjerrors.CodeFileNotFound, "file %q not tracked", path)
		}
		ch = ch.Clone()
		delete(ch.FileSnapshot, path)
		if err := r.fs.Remove(path); err != nil {
			return jjerrors.Newf(jjerrors.CodeFileNotFound, "remove %s: %v", path, err)
		}
		if err := r.wc.UntrackFile(path); err != nil {
			return err
		}
		return r.graph.Update(ch)
	})
}

// RenameFile moves src to dst within the working copy's current change.
// This is the "file" half of the polymorphic move(args) surface (see
// Move for the history/rebase half and the ambiguity rule between them).
func (r *Repository) RenameFile(ctx context.Context, src, dst string) error {
	if err := workingcopy.ValidateMove(src, dst); err != nil {
		return err
	}
	return r.withMutation(ctx, "rename "+src+" -> "+dst, func() error {
		cur, err := r.wc.CurrentChange()
		if err != nil {
			return err
		}
		ch, err := r.requireChange(cur)
		if err != nil {
			return err
		}
		content, ok := ch.FileSnapshot[src]
		if !ok {
			return jjerrors.Newf(jjerrors.CodeFileNotFound, "file %q not tracked", src)
		}
		ch = ch.Clone()
		delete(ch.FileSnapshot, src)
		ch.FileSnapshot[dst] = content
		if err := r.fs.Rename(src, dst); err != nil {
			return jjerrors.Newf(jjerrors.CodeFileMoveFailed, "rename %s -> %s: %v", src, dst, err)
		}
		if err := r.wc.UntrackFile(src); err != nil {
			return err
		}
		st, ok, err := r.fs.Stat(dst)
		if err != nil || !ok {
			return jjerrors.Newf(jjerrors.CodeFileMoveFailed, "stat %s after rename: %v", dst, err)
		}
		if err := r.wc.TrackFile(dst, st); err != nil {
			return err
		}
		return r.graph.Update(ch)
	})
}

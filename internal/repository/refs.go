package repository

import (
	"context"
	"strings"

	"github.com/jjcore/jjcore/internal/idgen"
	"github.com/jjcore/jjcore/internal/jjerrors"
)

// CreateBookmark adds a movable bookmark at target and records the
// operation. In a colocated repository the bookmark is mirrored to
// refs/heads/<name>.
func (r *Repository) CreateBookmark(ctx context.Context, name, target string) error {
	return r.withMutation(ctx, "create bookmark "+name, func() error {
		if _, err := r.requireChange(target); err != nil {
			return err
		}
		if err := r.bookmarks.Create(name, target); err != nil {
			return err
		}
		r.exportRef(ctx, "refs/heads/"+name, target)
		return nil
	})
}

// MoveBookmark repoints an existing bookmark and records the operation.
func (r *Repository) MoveBookmark(ctx context.Context, name, target string) error {
	return r.withMutation(ctx, "move bookmark "+name, func() error {
		if _, err := r.requireChange(target); err != nil {
			return err
		}
		if err := r.bookmarks.Move(name, target); err != nil {
			return err
		}
		r.exportRef(ctx, "refs/heads/"+name, target)
		return nil
	})
}

// DeleteBookmark removes a bookmark and records the operation.
func (r *Repository) DeleteBookmark(ctx context.Context, name string) error {
	return r.withMutation(ctx, "delete bookmark "+name, func() error {
		if err := r.bookmarks.Delete(name); err != nil {
			return err
		}
		if r.colocated {
			_ = r.backend.UpdateRef(ctx, "refs/heads/"+name, "")
		}
		return nil
	})
}

// CreateTag adds an immutable tag at changeID and records the operation.
// Mirrored to refs/tags/<name> when colocated.
func (r *Repository) CreateTag(ctx context.Context, name, changeID string) error {
	return r.withMutation(ctx, "create tag "+name, func() error {
		if _, err := r.requireChange(changeID); err != nil {
			return err
		}
		if err := r.tags.Create(name, changeID); err != nil {
			return err
		}
		r.exportRef(ctx, "refs/tags/"+name, changeID)
		return nil
	})
}

// DeleteTag removes a tag — the only mutation tags allow — and records
// the operation.
func (r *Repository) DeleteTag(ctx context.Context, name string) error {
	return r.withMutation(ctx, "delete tag "+name, func() error {
		if err := r.tags.Delete(name); err != nil {
			return err
		}
		if r.colocated {
			_ = r.backend.UpdateRef(ctx, "refs/tags/"+name, "")
		}
		return nil
	})
}

// exportRef mirrors one ref to the Git backend in colocated mode. The
// ref points at the change's backing CommitId; changes with no commit
// yet are skipped, and a later commit synthesis does not export them
// (ExportRefs does).
func (r *Repository) exportRef(ctx context.Context, refName, changeID string) {
	if !r.colocated {
		return
	}
	ch, err := r.graph.Get(changeID)
	if err != nil || ch.CommitID == "" || ch.CommitID == idgen.ZeroCommitID {
		return
	}
	_ = r.backend.UpdateRef(ctx, refName, ch.CommitID)
}

// ExportRefs mirrors every local bookmark, tag and remote bookmark to
// the Git backend: refs/heads/<name>, refs/tags/<name> and
// refs/remotes/<remote>/<name>. Only changes with a backing commit are
// exported. Returns the ref names written.
func (r *Repository) ExportRefs(ctx context.Context) ([]string, error) {
	if !r.colocated {
		return nil, jjerrors.New(jjerrors.CodeBackendNotAvailable, "repository is not colocated with a git backend")
	}
	var written []string
	local, remote := r.bookmarks.Snapshot()
	for name, id := range local {
		if r.tryExport(ctx, "refs/heads/"+name, id) {
			written = append(written, "refs/heads/"+name)
		}
	}
	for name, id := range r.tags.List() {
		if r.tryExport(ctx, "refs/tags/"+name, id) {
			written = append(written, "refs/tags/"+name)
		}
	}
	for remoteName, m := range remote {
		for name, id := range m {
			ref := "refs/remotes/" + remoteName + "/" + name
			if r.tryExport(ctx, ref, id) {
				written = append(written, ref)
			}
		}
	}
	return written, nil
}

func (r *Repository) tryExport(ctx context.Context, refName, changeID string) bool {
	ch, err := r.graph.Get(changeID)
	if err != nil || ch.CommitID == "" || ch.CommitID == idgen.ZeroCommitID {
		return false
	}
	return r.backend.UpdateRef(ctx, refName, ch.CommitID) == nil
}

// ImportRefs reconciles the other direction: Git refs whose commits are
// known to the change graph become (or update) bookmarks. Refs pointing
// at commits the graph has never seen are skipped — importing foreign
// history is the fetch path's job.
func (r *Repository) ImportRefs(ctx context.Context) ([]string, error) {
	if !r.colocated {
		return nil, jjerrors.New(jjerrors.CodeBackendNotAvailable, "repository is not colocated with a git backend")
	}
	refs, err := r.backend.ListRefs(ctx, "refs/heads/")
	if err != nil {
		return nil, err
	}
	var imported []string
	err = r.withMutation(ctx, "import git refs", func() error {
		for _, ref := range refs {
			oid, err := r.backend.ReadRef(ctx, ref)
			if err != nil || oid == "" {
				continue
			}
			changeID, ok := r.graph.FindByCommit(oid)
			if !ok {
				continue
			}
			name := strings.TrimPrefix(ref, "refs/heads/")
			if cur, err := r.bookmarks.Get(name); err == nil {
				if cur != changeID {
					if err := r.bookmarks.Move(name, changeID); err != nil {
						return err
					}
					imported = append(imported, name)
				}
				continue
			}
			if err := r.bookmarks.Create(name, changeID); err != nil {
				return err
			}
			imported = append(imported, name)
		}
		return nil
	})
	return imported, err
}

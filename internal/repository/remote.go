package repository

import (
	"context"
	"strings"

	"github.com/jjcore/jjcore/internal/gitbackend"
)

// FetchResult reports what a repository-level fetch did.
type FetchResult struct {
	Fetched []string
	Updated map[string]string // remote bookmark name -> ChangeId
}

// Fetch delegates to the Git backend, then reconciles: every updated ref
// whose commit is known to the change graph updates the remote-bookmark
// table. Foreign commits (history this graph has never recorded) are
// left to the backend's object store; they surface once a local change
// adopts them.
func (r *Repository) Fetch(ctx context.Context, remote string, refs []string) (*FetchResult, error) {
	res, err := r.backend.Fetch(ctx, gitbackend.FetchRequest{Remote: remote, Refs: refs})
	if err != nil {
		return nil, err
	}
	result := &FetchResult{Fetched: res.Fetched, Updated: make(map[string]string)}
	err = r.withMutation(ctx, "fetch from "+remote, func() error {
		for ref, oid := range res.Updated {
			name := strings.TrimPrefix(ref, "refs/heads/")
			changeID, ok := r.graph.FindByCommit(oid)
			if !ok {
				continue
			}
			if err := r.bookmarks.SetRemote(remote, name, changeID); err != nil {
				return err
			}
			result.Updated[name] = changeID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PushResult reports what a repository-level push did.
type PushResult struct {
	Pushed   []string
	Rejected map[string]string
}

// Push exports the named bookmarks' refs and pushes them to the remote,
// then records the remote's new targets. Empty names pushes every local
// bookmark.
func (r *Repository) Push(ctx context.Context, remote string, names []string, force bool) (*PushResult, error) {
	local, _ := r.bookmarks.Snapshot()
	if len(names) == 0 {
		for name := range local {
			names = append(names, name)
		}
	}

	var refs []string
	for _, name := range names {
		target, ok := local[name]
		if !ok {
			continue
		}
		r.exportRef(ctx, "refs/heads/"+name, target)
		refs = append(refs, "refs/heads/"+name)
	}

	res, err := r.backend.Push(ctx, gitbackend.PushRequest{Remote: remote, Refs: refs, Force: force})
	if err != nil {
		return &PushResult{Rejected: res.Rejected}, err
	}

	result := &PushResult{Pushed: res.Pushed, Rejected: res.Rejected}
	err = r.withMutation(ctx, "push to "+remote, func() error {
		for _, ref := range res.Pushed {
			name := strings.TrimPrefix(ref, "refs/heads/")
			if target, ok := local[name]; ok {
				if err := r.bookmarks.SetRemote(remote, name, target); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

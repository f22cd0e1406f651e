// Package repository implements the repository aggregate: it owns the
// change graph, working copy, operation log, bookmark/tag stores,
// conflict model and merge-driver registry, and exposes the command
// surface (new/describe/edit/squash/split/abandon/restore/rebase/merge/
// duplicate/backout/metaedit/absorb/tag/sparse/log/status/undo). Every
// mutating method validates, mutates state atomically under a repo-wide
// lease, records exactly one Operation, and returns the affected
// entities.
package repository

import (
	"context"
	"sort"
	"time"

	"github.com/jjcore/jjcore/internal/bookmark"
	"github.com/jjcore/jjcore/internal/changegraph"
	"github.com/jjcore/jjcore/internal/conflict"
	"github.com/jjcore/jjcore/internal/gitbackend"
	"github.com/jjcore/jjcore/internal/idgen"
	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/lock"
	"github.com/jjcore/jjcore/internal/mergedriver"
	"github.com/jjcore/jjcore/internal/oplog"
	"github.com/jjcore/jjcore/internal/queryindex"
	"github.com/jjcore/jjcore/internal/sparse"
	"github.com/jjcore/jjcore/internal/storage"
	"github.com/jjcore/jjcore/internal/tag"
	"github.com/jjcore/jjcore/internal/types"
	"github.com/jjcore/jjcore/internal/workingcopy"
)

// Hooks are the preCommit/postCommit event dispatch points. PreCommit
// failures are fatal to the operation (no mutation is visible);
// PostCommit runs after the operation is recorded, returns nothing, and
// cannot fail or roll back the operation.
type Hooks struct {
	PreCommit  func(ctx context.Context, description string) error
	PostCommit func(ctx context.Context, op *types.Operation)
}

// User identifies the human or agent issuing operations against this
// repository handle.
type User struct {
	Name     string
	Email    string
	Hostname string
}

func (u User) identity(ts time.Time) types.Identity {
	return types.Identity{Name: u.Name, Email: u.Email, Timestamp: ts}
}

func (u User) operationUser() types.OperationUser {
	return types.OperationUser{Name: u.Name, Email: u.Email, Hostname: u.Hostname}
}

// Options configures a new Repository.
type Options struct {
	Dir     string
	FS      FS
	Backend gitbackend.Backend
	Hooks   Hooks
	User    User
	Clock   func() time.Time

	// Colocated mirrors bookmarks/tags to Git refs (refs/heads/<name>,
	// refs/tags/<name>, refs/remotes/<remote>/<name>) on the backend.
	Colocated bool
}

// Repository is the repository aggregate.
type Repository struct {
	dir       string
	fs        FS
	backend   gitbackend.Backend
	hooks     Hooks
	user      User
	clock     func() time.Time
	colocated bool

	store     *storage.Store
	graph     *changegraph.Graph
	wc        *workingcopy.WorkingCopy
	bookmarks *bookmark.Store
	tags      *tag.Store
	conflicts *conflict.Model
	drivers   *mergedriver.Registry
	oplog     *oplog.Log
	sparse    *sparse.Set
	lease     *lock.Lease

	bisect *bisectState
	index  *queryindex.Index
}

// Open constructs a Repository rooted at opts.Dir. It does not create an
// initial change; call Init for a fresh repository or just start issuing
// operations against an already-initialized store.
func Open(opts Options) (*Repository, error) {
	if opts.Dir == "" {
		return nil, jjerrors.New(jjerrors.CodeInvalidArgument, "dir is required")
	}
	st, err := storage.Open(opts.Dir)
	if err != nil {
		return nil, err
	}
	fsImpl := opts.FS
	if fsImpl == nil {
		fsImpl = NewOSFS(opts.Dir)
	}
	backend := opts.Backend
	if backend == nil {
		backend = gitbackend.NewMemory()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	r := &Repository{
		dir:       opts.Dir,
		fs:        fsImpl,
		backend:   backend,
		hooks:     opts.Hooks,
		user:      opts.User,
		clock:     clock,
		colocated: opts.Colocated,
		store:     st,
		graph:     changegraph.New(st),
		wc:        workingcopy.New(st, fsImpl.Stat),
		bookmarks: bookmark.New(st),
		tags:      tag.New(st),
		conflicts: conflict.New(st),
		drivers:   mergedriver.NewRegistry(),
		oplog:     oplog.New(st, opts.Dir+"/oplog.lock"),
		sparse:    sparse.New(opts.Dir),
	}
	r.lease = lock.New(opts.Dir + "/repo.lock")
	return r, nil
}

// Drivers exposes the merge-driver registry for host registration of native
// or WASM merge drivers.
func (r *Repository) Drivers() *mergedriver.Registry { return r.drivers }

// Backend exposes the underlying Git Backend, e.g. so a host can import
// objects before first use.
func (r *Repository) Backend() gitbackend.Backend { return r.backend }

// Init creates the repository's root change (empty tree, no parents) and
// checks it out, recording the first Operation. Calling Init on an
// already-initialized repository is a no-op that returns the working
// copy's current change.
func (r *Repository) Init(ctx context.Context) (*types.Change, error) {
	head, err := r.oplog.Head()
	if err != nil {
		return nil, err
	}
	if head != "" {
		cur, err := r.wc.CurrentChange()
		if err != nil {
			return nil, err
		}
		return r.graph.Get(cur)
	}

	var result *types.Change
	err = r.withMutation(ctx, "initialize repo", func() error {
		id, err := r.graph.NewChangeID()
		if err != nil {
			return err
		}
		now := r.clock()
		ch := &types.Change{
			ChangeID:  id,
			CommitID:  idgen.ZeroCommitID,
			Parents:   nil,
			Tree:      idgen.EmptyTreeRef,
			Author:    r.user.identity(now),
			Committer: r.user.identity(now),
			Timestamp: now,
		}
		if err := r.graph.Add(ch); err != nil {
			return err
		}
		if err := r.wc.Init(id); err != nil {
			return err
		}
		result = ch
		return nil
	})
	return result, err
}

// withMutation is the shared envelope every mutating operation runs
// inside: acquire the repo-wide lease, run preCommit, run fn (which must
// perform the domain mutation), synthesize and record a View/Operation,
// then run postCommit. On any failure before the operation record is
// appended, no mutation is observably visible to later reads.
func (r *Repository) withMutation(ctx context.Context, description string, fn func() error) error {
	if err := r.lease.Acquire(ctx); err != nil {
		return err
	}
	defer r.lease.Release()

	if r.hooks.PreCommit != nil {
		if err := r.hooks.PreCommit(ctx, description); err != nil {
			return jjerrors.Newf(jjerrors.CodeInvalidArgument, "preCommit hook rejected operation: %v", err)
		}
	}

	if err := fn(); err != nil {
		return err
	}

	view, err := r.currentView()
	if err != nil {
		return err
	}
	op := &types.Operation{
		Timestamp:   r.clock(),
		User:        r.user.operationUser(),
		Description: description,
		View:        *view,
	}
	recorded, err := r.oplog.Record(ctx, op)
	if err != nil {
		return err
	}

	r.refreshIndex(ctx)

	if r.hooks.PostCommit != nil {
		r.hooks.PostCommit(ctx, recorded)
	}
	return nil
}

// currentView snapshots bookmarks, remote bookmarks, visible heads and the
// working-copy pointer into a View.
func (r *Repository) currentView() (*types.View, error) {
	local, remote := r.bookmarks.Snapshot()
	heads := r.visibleHeadIDs()
	wcID, err := r.wc.CurrentChange()
	if err != nil {
		return nil, err
	}
	return &types.View{
		Bookmarks:       local,
		RemoteBookmarks: remote,
		Heads:           heads,
		WorkingCopy:     wcID,
	}, nil
}

func (r *Repository) visibleHeadIDs() []string {
	all := r.graph.Snapshot()
	hasVisibleChild := make(map[string]bool)
	for _, ch := range all {
		if ch.Abandoned {
			continue
		}
		for _, p := range ch.Parents {
			hasVisibleChild[p] = true
		}
	}
	var heads []string
	for id, ch := range all {
		if ch.Abandoned {
			continue
		}
		if !hasVisibleChild[id] {
			heads = append(heads, id)
		}
	}
	sort.Strings(heads)
	return heads
}

// shortID returns an 8-character prefix of id, used in generated
// descriptions like "(squashed from <src8>)".
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func (r *Repository) requireChange(id string) (*types.Change, error) {
	if id == "" {
		return nil, jjerrors.New(jjerrors.CodeInvalidChangeID, "change id is required")
	}
	return r.graph.Get(id)
}

// CurrentChangeID returns the ChangeId of the working copy.
func (r *Repository) CurrentChangeID() (string, error) {
	return r.wc.CurrentChange()
}

// WorkingCopy exposes the working-copy engine for hosts that need direct
// file-tracking access (e.g. a CLI's `jjcore status`).
func (r *Repository) WorkingCopy() *workingcopy.WorkingCopy { return r.wc }

// Bookmarks exposes the bookmark store.
func (r *Repository) Bookmarks() *bookmark.Store { return r.bookmarks }

// Tags exposes the tag store.
func (r *Repository) Tags() *tag.Store { return r.tags }

// Conflicts exposes the conflict model.
func (r *Repository) Conflicts() *conflict.Model { return r.conflicts }

// OperationLog exposes the operation log for direct `op log`/`op show` use.
func (r *Repository) OperationLog() *oplog.Log { return r.oplog }

// Graph exposes the change graph for direct traversal by hosts (e.g. a
// revset `git_refs()` implementation that needs ref-to-change resolution
// outside this package).
func (r *Repository) Graph() *changegraph.Graph { return r.graph }


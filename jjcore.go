// Package jjcore is the public face of a change-centric version-control
// engine layered on a Git object store: stable change identifiers that
// survive rewrites, a working copy that is itself a change, an
// append-only operation log with undo, first-class conflicts, bookmarks
// and tags, and a revset query language.
//
// Construction goes through CreateRepository; everything else hangs off
// the returned Repository aggregate.
package jjcore

import (
	"context"
	"path/filepath"
	"time"

	"github.com/jjcore/jjcore/internal/events"
	"github.com/jjcore/jjcore/internal/gitbackend"
	gitexec "github.com/jjcore/jjcore/internal/gitbackend/git"
	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/queryindex"
	"github.com/jjcore/jjcore/internal/repository"
	"github.com/jjcore/jjcore/internal/storage"
	"github.com/jjcore/jjcore/internal/types"
	"github.com/jjcore/jjcore/internal/userconfig"
	"github.com/jjcore/jjcore/internal/watch"
)

// MetaDirName is the metadata directory created inside the working
// directory, the .jj-equivalent.
const MetaDirName = ".jjcore"

// Repository is the repository aggregate. It re-exports the internal
// repository type so hosts work entirely through this package.
type Repository = repository.Repository

// Hooks are the preCommit/postCommit dispatch points.
type Hooks = repository.Hooks

// Error is the stable-coded error type every operation returns.
type Error = jjerrors.Error

// Change, Operation, View, Bookmark, Tag and Conflict re-export the
// core entity shapes.
type (
	Change    = types.Change
	Operation = types.Operation
	View      = types.View
	Bookmark  = types.Bookmark
	Tag       = types.Tag
	Conflict  = types.Conflict
)

// FS is the filesystem capability the working copy materializes
// through; nil selects the real filesystem rooted at Dir.
type FS = repository.FS

// Options configures CreateRepository.
type Options struct {
	// Dir is the working directory. Metadata lives in Dir/.jjcore.
	Dir string

	// FS overrides the working-copy filesystem (e.g. an in-memory one
	// for tests). Defaults to the real filesystem rooted at Dir.
	FS FS

	// Backend selects the Git backend: "memory" (default), "git" (shell
	// out to a local git binary rooted at Dir), or a custom
	// implementation via CustomBackend.
	Backend       string
	CustomBackend gitbackend.Backend

	// Remote names the git remote used by fetch/push with the "git"
	// backend.
	Remote string

	// Colocated mirrors bookmarks and tags to Git refs.
	Colocated bool

	Hooks Hooks

	// User overrides the configured identity. Empty fields fall back to
	// the persisted user config.
	UserName  string
	UserEmail string
	Hostname  string

	// EventsEnabled starts a WebSocket events server on EventsPort (0
	// picks an ephemeral port) broadcasting one message per appended
	// operation.
	EventsEnabled bool
	EventsPort    int

	// QueryIndex opens the SQLite secondary index, refreshed after every
	// operation and consulted by scan-heavy revset predicates.
	QueryIndex bool

	// WatchEnabled starts a filesystem watcher over Dir (skipping the
	// metadata directory) that marks working-copy files dirty as the OS
	// reports changes, feeding WorkingCopy.DirtyFiles. Requires the real
	// filesystem (ignored when a custom FS is supplied).
	WatchEnabled bool

	Clock func() time.Time
}

// Handle owns a constructed repository plus its optional attachments
// (events server, user config).
type Handle struct {
	Repo   *Repository
	Config *userconfig.Config
	Events *events.Server
	Index  *queryindex.Index
	Watch  *watch.Watcher

	metaDir   string
	watchDone chan struct{}
}

// CreateRepository constructs (or reopens) a repository rooted at
// opts.Dir.
func CreateRepository(opts Options) (*Handle, error) {
	if opts.Dir == "" {
		return nil, jjerrors.New(jjerrors.CodeInvalidArgument, "dir is required")
	}
	metaDir := filepath.Join(opts.Dir, MetaDirName)

	st, err := storage.Open(metaDir)
	if err != nil {
		return nil, err
	}
	cfg := userconfig.New(st)

	user, err := cfg.User()
	if err != nil {
		return nil, err
	}
	if opts.UserName != "" {
		user.Name = opts.UserName
	}
	if opts.UserEmail != "" {
		user.Email = opts.UserEmail
	}

	var backend gitbackend.Backend
	switch {
	case opts.CustomBackend != nil:
		backend = opts.CustomBackend
	case opts.Backend == "" || opts.Backend == "memory":
		backend = gitbackend.NewMemory()
	case opts.Backend == "git":
		backend = gitexec.New(opts.Dir, opts.Remote)
	default:
		return nil, jjerrors.Newf(jjerrors.CodeInvalidConfig, "unknown backend %q", opts.Backend)
	}

	fsImpl := opts.FS
	if fsImpl == nil {
		fsImpl = repository.NewOSFS(opts.Dir)
	}

	repo, err := repository.Open(repository.Options{
		Dir:       metaDir,
		FS:        fsImpl,
		Backend:   backend,
		Hooks:     opts.Hooks,
		Colocated: opts.Colocated,
		User: repository.User{
			Name:     user.Name,
			Email:    user.Email,
			Hostname: opts.Hostname,
		},
		Clock: opts.Clock,
	})
	if err != nil {
		return nil, err
	}

	h := &Handle{Repo: repo, Config: cfg, metaDir: metaDir}

	if opts.EventsEnabled {
		srv := events.NewServer(&events.Config{Port: opts.EventsPort})
		if err := srv.Start(); err != nil {
			return nil, err
		}
		repo.OperationLog().SetBroadcast(srv.BroadcastOperation)
		h.Events = srv
	}

	if opts.QueryIndex {
		idx, err := queryindex.Open(filepath.Join(metaDir, "index.db"))
		if err != nil {
			return nil, err
		}
		if err := idx.InitSchema(context.Background()); err != nil {
			_ = idx.Close()
			return nil, err
		}
		repo.SetQueryIndex(idx)
		h.Index = idx
	}

	if opts.WatchEnabled && opts.FS == nil {
		w, err := watch.New()
		if err != nil {
			return nil, err
		}
		if err := w.Start(opts.Dir, MetaDirName); err != nil {
			return nil, err
		}
		h.Watch = w
		h.watchDone = make(chan struct{})
		wc := repo.WorkingCopy()
		go func() {
			defer close(h.watchDone)
			for ev := range w.Events() {
				wc.MarkDirty(ev.Path)
			}
		}()
	}

	return h, nil
}

// MetaDir returns the metadata directory backing this handle.
func (h *Handle) MetaDir() string { return h.metaDir }

// Close releases the handle's attachments: the events server, the query
// index, and the filesystem watcher.
func (h *Handle) Close() error {
	if h.Events != nil {
		if err := h.Events.Stop(); err != nil {
			return err
		}
	}
	if h.Index != nil {
		if err := h.Index.Close(); err != nil {
			return err
		}
	}
	if h.Watch != nil {
		if err := h.Watch.Stop(); err != nil {
			return err
		}
		<-h.watchDone
	}
	return nil
}

// Package bookmark implements the bookmark store: movable named
// pointers to changes, plus their remote-tracking counterparts.
package bookmark

import (
	"sort"
	"strings"
	"sync"

	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/storage"
)

const docPath = "bookmarks.json"

type trackedRef struct {
	Remote     string `json:"remote"`
	RemoteName string `json:"remoteName"`
}

type doc struct {
	Version int                          `json:"version"`
	Local   map[string]string            `json:"local"`
	Remote  map[string]map[string]string `json:"remote"`
	Tracked map[string]trackedRef        `json:"tracked"`
}

// Store is the persisted bookmark store.
type Store struct {
	store *storage.Store

	mu      sync.Mutex
	local   map[string]string
	remote  map[string]map[string]string
	tracked map[string]trackedRef
	loaded  bool
}

// New returns a Store backed by s.
func New(s *storage.Store) *Store {
	return &Store{
		store:   s,
		local:   make(map[string]string),
		remote:  make(map[string]map[string]string),
		tracked: make(map[string]trackedRef),
	}
}

func (b *Store) ensureLoaded() error {
	if b.loaded {
		return nil
	}
	var d doc
	ok, err := b.store.Read(docPath, &d)
	if err != nil {
		return jjerrors.New(jjerrors.CodeStorageReadFailed, err.Error())
	}
	if ok {
		if d.Local != nil {
			b.local = d.Local
		}
		if d.Remote != nil {
			b.remote = d.Remote
		}
		if d.Tracked != nil {
			b.tracked = d.Tracked
		}
	}
	b.loaded = true
	return nil
}

func (b *Store) save() error {
	d := doc{Version: 1, Local: b.local, Remote: b.remote, Tracked: b.tracked}
	if err := b.store.Write(docPath, d); err != nil {
		return jjerrors.New(jjerrors.CodeStorageWriteFailed, err.Error())
	}
	return nil
}

func isValidName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsAny(name, " \t\n\r")
}

// Create adds a new local bookmark pointing at target. Fails with
// BookmarkExists if name is already taken.
func (b *Store) Create(name, target string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureLoaded(); err != nil {
		return err
	}
	if !isValidName(name) {
		return jjerrors.Newf(jjerrors.CodeInvalidArgument, "invalid bookmark name %q", name)
	}
	if _, exists := b.local[name]; exists {
		return jjerrors.Newf(jjerrors.CodeBookmarkExists, "bookmark %q already exists", name)
	}
	b.local[name] = target
	return b.save()
}

// Move repoints an existing bookmark. Fails with BookmarkNotFound if
// absent.
func (b *Store) Move(name, target string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureLoaded(); err != nil {
		return err
	}
	if _, exists := b.local[name]; !exists {
		return jjerrors.Newf(jjerrors.CodeBookmarkNotFound, "bookmark %q not found", name)
	}
	b.local[name] = target
	return b.save()
}

// Delete removes a local bookmark.
func (b *Store) Delete(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureLoaded(); err != nil {
		return err
	}
	if _, exists := b.local[name]; !exists {
		return jjerrors.Newf(jjerrors.CodeBookmarkNotFound, "bookmark %q not found", name)
	}
	delete(b.local, name)
	return b.save()
}

// Get returns a local bookmark's target ChangeId.
func (b *Store) Get(name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureLoaded(); err != nil {
		return "", err
	}
	target, ok := b.local[name]
	if !ok {
		return "", jjerrors.Newf(jjerrors.CodeBookmarkNotFound, "bookmark %q not found", name)
	}
	return target, nil
}

// List returns a copy of every local bookmark, keyed by name. Use Names
// for a sorted listing.
func (b *Store) List() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.ensureLoaded()
	out := make(map[string]string, len(b.local))
	for k, v := range b.local {
		out[k] = v
	}
	return out
}

// Names returns every local bookmark name, sorted.
func (b *Store) Names() []string {
	l := b.List()
	out := make([]string, 0, len(l))
	for k := range l {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SetRemote records the remote's view of a bookmark (used on fetch).
func (b *Store) SetRemote(remote, name, target string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureLoaded(); err != nil {
		return err
	}
	if b.remote[remote] == nil {
		b.remote[remote] = make(map[string]string)
	}
	b.remote[remote][name] = target
	return b.save()
}

// GetRemote returns the remote's last-known target for name.
func (b *Store) GetRemote(remote, name string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.ensureLoaded()
	m, ok := b.remote[remote]
	if !ok {
		return "", false
	}
	target, ok := m[name]
	return target, ok
}

// Track associates a local bookmark with a remote name so push/fetch know
// where to synchronize it.
func (b *Store) Track(localName, remote, remoteName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureLoaded(); err != nil {
		return err
	}
	if _, ok := b.local[localName]; !ok {
		return jjerrors.Newf(jjerrors.CodeBookmarkNotFound, "bookmark %q not found", localName)
	}
	b.tracked[localName] = trackedRef{Remote: remote, RemoteName: remoteName}
	return b.save()
}

// Snapshot returns a deep copy of local+remote bookmark state for
// embedding into a View.
func (b *Store) Snapshot() (local map[string]string, remote map[string]map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.ensureLoaded()
	local = make(map[string]string, len(b.local))
	for k, v := range b.local {
		local[k] = v
	}
	remote = make(map[string]map[string]string, len(b.remote))
	for r, m := range b.remote {
		rm := make(map[string]string, len(m))
		for k, v := range m {
			rm[k] = v
		}
		remote[r] = rm
	}
	return local, remote
}

// Restore replaces local bookmark state wholesale — used by undo/redo and
// time-travel to roll the store back to a prior View.
func (b *Store) Restore(local map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureLoaded(); err != nil {
		return err
	}
	b.local = make(map[string]string, len(local))
	for k, v := range local {
		b.local[k] = v
	}
	return b.save()
}

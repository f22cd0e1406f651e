// Package tag implements the tag store: immutable named pointers to
// changes. Unlike a bookmark, a tag can never be moved once created —
// only deleted.
package tag

import (
	"sort"
	"strings"
	"sync"

	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/storage"
)

const docPath = "tags.json"

type doc struct {
	Version int               `json:"version"`
	Tags    map[string]string `json:"tags"`
}

// Store is the persisted tag store.
type Store struct {
	store *storage.Store

	mu     sync.Mutex
	tags   map[string]string
	loaded bool
}

// New returns a Store backed by s.
func New(s *storage.Store) *Store {
	return &Store{store: s, tags: make(map[string]string)}
}

func (t *Store) ensureLoaded() error {
	if t.loaded {
		return nil
	}
	var d doc
	ok, err := t.store.Read(docPath, &d)
	if err != nil {
		return jjerrors.New(jjerrors.CodeStorageReadFailed, err.Error())
	}
	if ok && d.Tags != nil {
		t.tags = d.Tags
	}
	t.loaded = true
	return nil
}

func (t *Store) save() error {
	d := doc{Version: 1, Tags: t.tags}
	if err := t.store.Write(docPath, d); err != nil {
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

// Create adds an immutable tag pointing at changeID. Fails with TagExists
// if the name is already taken — tags cannot be overwritten.
func (t *Store) Create(name, changeID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureLoaded(); err != nil {
		return err
	}
	if !isValidName(name) {
		return jjerrors.Newf(jjerrors.CodeInvalidTagName, "invalid tag name %q", name)
	}
	if _, exists := t.tags[name]; exists {
		return jjerrors.Newf(jjerrors.CodeTagExists, "tag %q already exists", name)
	}
	t.tags[name] = changeID
	return t.save()
}

// Delete removes a tag. This is the only way a tag's binding changes.
func (t *Store) Delete(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureLoaded(); err != nil {
		return err
	}
	if _, exists := t.tags[name]; !exists {
		return jjerrors.Newf(jjerrors.CodeTagNotFound, "tag %q not found", name)
	}
	delete(t.tags, name)
	return t.save()
}

// Get resolves a tag to its ChangeId.
func (t *Store) Get(name string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureLoaded(); err != nil {
		return "", err
	}
	id, ok := t.tags[name]
	if !ok {
		return "", jjerrors.Newf(jjerrors.CodeTagNotFound, "tag %q not found", name)
	}
	return id, nil
}

// Names returns every tag name, sorted.
func (t *Store) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.ensureLoaded()
	out := make([]string, 0, len(t.tags))
	for k := range t.tags {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// List returns a copy of the full name -> ChangeId map.
func (t *Store) List() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.ensureLoaded()
	out := make(map[string]string, len(t.tags))
	for k, v := range t.tags {
		out[k] = v
	}
	return out
}

// Package sparse keeps the ordered list of glob patterns that scope the
// working copy. The list is stored as YAML — the one hand-edited file in
// the metadata directory, where an ordered list reads better than JSON.
// An empty list means "everything is in scope".
package sparse

import (
	"os"
	"path"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jjcore/jjcore/internal/jjerrors"
)

const fileName = "sparse.yaml"

type doc struct {
	Version  int      `yaml:"version"`
	Patterns []string `yaml:"patterns"`
}

// Set is the persisted, ordered sparse-pattern list.
type Set struct {
	dir string

	mu       sync.Mutex
	patterns []string
	loaded   bool
}

// New returns a Set persisted under dir.
func New(dir string) *Set {
	return &Set{dir: dir}
}

func (s *Set) path() string { return filepath.Join(s.dir, fileName) }

func (s *Set) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			s.loaded = true
			return nil
		}
		return jjerrors.Newf(jjerrors.CodeStorageReadFailed, "read sparse patterns: %v", err)
	}
	var d doc
	if err := yaml.Unmarshal(data, &d); err != nil {
		return jjerrors.Newf(jjerrors.CodeStorageCorrupt, "parse sparse patterns: %v", err)
	}
	if d.Version != 0 && d.Version != 1 {
		return jjerrors.Newf(jjerrors.CodeStorageVersionMismatch, "sparse patterns version %d, expected 1", d.Version)
	}
	s.patterns = d.Patterns
	s.loaded = true
	return nil
}

func (s *Set) save() error {
	data, err := yaml.Marshal(doc{Version: 1, Patterns: s.patterns})
	if err != nil {
		return jjerrors.Newf(jjerrors.CodeStorageWriteFailed, "encode sparse patterns: %v", err)
	}
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return jjerrors.Newf(jjerrors.CodeStorageWriteFailed, "write sparse patterns: %v", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		_ = os.Remove(tmp)
		return jjerrors.Newf(jjerrors.CodeStorageWriteFailed, "rename sparse patterns: %v", err)
	}
	return nil
}

// Patterns returns the ordered pattern list.
func (s *Set) Patterns() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	return append([]string(nil), s.patterns...), nil
}

// Replace swaps in a new ordered pattern list, validating each glob.
func (s *Set) Replace(patterns []string) error {
	for _, p := range patterns {
		if _, err := path.Match(p, "probe"); err != nil {
			return jjerrors.Newf(jjerrors.CodeInvalidArgument, "invalid sparse pattern %q: %v", p, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.patterns = append([]string(nil), patterns...)
	return s.save()
}

// Includes reports whether p is in scope: an empty pattern list includes
// everything, otherwise the first matching pattern wins.
func (s *Set) Includes(p string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return false, err
	}
	if len(s.patterns) == 0 {
		return true, nil
	}
	for _, pattern := range s.patterns {
		if ok, _ := path.Match(pattern, p); ok {
			return true, nil
		}
		// Directory patterns like "src/*" shouldn't need a "src/*/*"
		// sibling for nested files; a pattern that matches any ancestor
		// directory of p covers the subtree.
		for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
			if ok, _ := path.Match(pattern, dir); ok {
				return true, nil
			}
		}
	}
	return false, nil
}

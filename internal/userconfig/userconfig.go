// Package userconfig loads and saves the repository's user configuration:
// the author identity plus a free-form key/value tree for everything
// else. Two front doors exist for the same data: the persisted JSON
// document every other store uses, and an optional human-edited TOML
// file that, when present, overrides the document on load.
package userconfig

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/storage"
)

const (
	docPath  = "config.json"
	tomlName = "config.toml"
)

// Identity is the configured user.
type Identity struct {
	Name  string `json:"name" toml:"name"`
	Email string `json:"email" toml:"email"`
}

type doc struct {
	Version int            `json:"version"`
	User    Identity       `json:"user"`
	Extra   map[string]any `json:"extra,omitempty"`
}

type tomlDoc struct {
	User  Identity       `toml:"user"`
	Extra map[string]any `toml:"extra"`
}

// Config is the loaded configuration: a tagged identity for the keys the
// core understands, plus a free-form map for the rest. Dotted-path access
// is a helper over the map, not the storage shape.
type Config struct {
	store *storage.Store

	mu     sync.Mutex
	user   Identity
	extra  map[string]any
	loaded bool
}

// New returns a Config backed by s.
func New(s *storage.Store) *Config {
	return &Config{store: s, extra: make(map[string]any)}
}

func (c *Config) ensureLoaded() error {
	if c.loaded {
		return nil
	}
	var d doc
	ok, err := c.store.Read(docPath, &d)
	if err != nil {
		return jjerrors.New(jjerrors.CodeStorageReadFailed, err.Error())
	}
	if ok {
		c.user = d.User
		if d.Extra != nil {
			c.extra = d.Extra
		}
	}

	// The TOML front door wins over the persisted document when present:
	// it is the file humans actually edit.
	tomlPath := filepath.Join(c.store.Root(), tomlName)
	if data, err := os.ReadFile(tomlPath); err == nil {
		var td tomlDoc
		if err := toml.Unmarshal(data, &td); err != nil {
			return jjerrors.Newf(jjerrors.CodeInvalidConfig, "parse %s: %v", tomlName, err)
		}
		if td.User.Name != "" {
			c.user.Name = td.User.Name
		}
		if td.User.Email != "" {
			c.user.Email = td.User.Email
		}
		for k, v := range td.Extra {
			c.extra[k] = v
		}
	}

	c.loaded = true
	return nil
}

func (c *Config) save() error {
	d := doc{Version: 1, User: c.user, Extra: c.extra}
	if err := c.store.Write(docPath, d); err != nil {
		return jjerrors.New(jjerrors.CodeStorageWriteFailed, err.Error())
	}
	return nil
}

// User returns the configured identity.
func (c *Config) User() (Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(); err != nil {
		return Identity{}, err
	}
	return c.user, nil
}

// SetUser updates the identity and persists.
func (c *Config) SetUser(id Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(); err != nil {
		return err
	}
	c.user = id
	return c.save()
}

// Get resolves a dotted path ("ui.color", "remote.origin.url") through
// the free-form tree. The bool is false when any segment is missing.
func (c *Config) Get(dotted string) (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(); err != nil {
		return nil, false, err
	}
	var cur any = c.extra
	for _, seg := range strings.Split(dotted, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false, nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false, nil
		}
	}
	return cur, true, nil
}

// Set writes a dotted path into the free-form tree, creating
// intermediate maps, and persists.
func (c *Config) Set(dotted string, value any) error {
	segs := strings.Split(dotted, ".")
	if len(segs) == 0 || dotted == "" {
		return jjerrors.New(jjerrors.CodeInvalidConfig, "config key is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(); err != nil {
		return err
	}
	m := c.extra
	for _, seg := range segs[:len(segs)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[seg] = next
		}
		m = next
	}
	m[segs[len(segs)-1]] = value
	return c.save()
}

// WriteTOML emits the current configuration to the human-editable TOML
// file.
func (c *Config) WriteTOML() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureLoaded(); err != nil {
		return err
	}
	var sb strings.Builder
	enc := toml.NewEncoder(&sb)
	if err := enc.Encode(tomlDoc{User: c.user, Extra: c.extra}); err != nil {
		return jjerrors.Newf(jjerrors.CodeStorageWriteFailed, "encode %s: %v", tomlName, err)
	}
	tomlPath := filepath.Join(c.store.Root(), tomlName)
	tmp := tomlPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o600); err != nil {
		return jjerrors.Newf(jjerrors.CodeStorageWriteFailed, "write %s: %v", tomlName, err)
	}
	if err := os.Rename(tmp, tomlPath); err != nil {
		_ = os.Remove(tmp)
		return jjerrors.Newf(jjerrors.CodeStorageWriteFailed, "rename %s: %v", tomlName, err)
	}
	return nil
}

package gitbackend

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/jjcore/jjcore/internal/jjerrors"
)

// ErrNoRemote is returned by Fetch/Push on backends with no remote
// transport configured.
var ErrNoRemote = jjerrors.New(jjerrors.CodeNetworkNotAvailable, "no remote configured for this backend")

// MemoryBackend is an in-process Backend over plain maps. It never touches
// disk; it exists for tests and the default backend:"memory" construction
// option.
type MemoryBackend struct {
	mu      sync.Mutex
	objects map[string]Object
	refs    map[string]string
}

// NewMemory returns an empty MemoryBackend.
func NewMemory() *MemoryBackend {
	return &MemoryBackend{
		objects: make(map[string]Object),
		refs:    make(map[string]string),
	}
}

func hashObject(typ ObjectType, data []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", typ, len(data))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func (m *MemoryBackend) GetObject(_ context.Context, oid string) (Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[oid]
	if !ok {
		return Object{}, jjerrors.Newf(jjerrors.CodeNotFound, "object %s not found", oid)
	}
	return obj, nil
}

func (m *MemoryBackend) PutObject(_ context.Context, typ ObjectType, data []byte) (string, error) {
	oid := hashObject(typ, data)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[oid]; !exists {
		cp := append([]byte(nil), data...)
		m.objects[oid] = Object{Type: typ, Data: cp}
	}
	return oid, nil
}

func (m *MemoryBackend) ReadRef(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs[name], nil
}

func (m *MemoryBackend) UpdateRef(_ context.Context, name, oid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if oid == "" {
		delete(m.refs, name)
		return nil
	}
	m.refs[name] = oid
	return nil
}

func (m *MemoryBackend) ListRefs(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name := range m.refs {
		if len(prefix) == 0 || (len(name) >= len(prefix) && name[:len(prefix)] == prefix) {
			out = append(out, name)
		}
	}
	return out, nil
}

func (m *MemoryBackend) CreateCommit(ctx context.Context, spec CommitSpec) (string, error) {
	tree := spec.Tree
	payload := fmt.Sprintf("tree %s\n", tree)
	for _, p := range spec.Parents {
		payload += fmt.Sprintf("parent %s\n", p)
	}
	payload += fmt.Sprintf("author %s <%s> %d\n", spec.Author.Name, spec.Author.Email, spec.Author.Timestamp)
	payload += fmt.Sprintf("committer %s <%s> %d\n", spec.Committer.Name, spec.Committer.Email, spec.Committer.Timestamp)
	payload += "\n" + spec.Message
	return m.PutObject(ctx, ObjectCommit, []byte(payload))
}

func (m *MemoryBackend) Fetch(context.Context, FetchRequest) (FetchResult, error) {
	return FetchResult{}, ErrNoRemote
}

func (m *MemoryBackend) Push(context.Context, PushRequest) (PushResult, error) {
	return PushResult{}, ErrNoRemote
}

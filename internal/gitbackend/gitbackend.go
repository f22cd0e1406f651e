// Package gitbackend defines the Git Backend interface consumed by the
// repository core, along with an in-process "memory" implementation used
// by default and by tests. The core never parses pack files directly —
// it only ever calls through this interface.
package gitbackend

import "context"

// ObjectType is a Git object kind.
type ObjectType string

const (
	ObjectBlob   ObjectType = "blob"
	ObjectTree   ObjectType = "tree"
	ObjectCommit ObjectType = "commit"
)

// Object is a raw Git object as returned by GetObject.
type Object struct {
	Type ObjectType
	Data []byte
}

// CommitSpec describes a commit to synthesize via CreateCommit.
type CommitSpec struct {
	Message   string
	Author    Signature
	Committer Signature
	Parents   []string
	Tree      string // optional; backend may compute from a working tree
}

// Signature is a name/email/timestamp triple for a commit.
type Signature struct {
	Name      string
	Email     string
	Timestamp int64
}

// FetchRequest describes a fetch operation against a remote.
type FetchRequest struct {
	Remote string
	Refs   []string
}

// FetchResult reports what a fetch actually did.
type FetchResult struct {
	Fetched []string
	Updated map[string]string
}

// PushRequest describes a push operation against a remote.
type PushRequest struct {
	Remote string
	Refs   []string
	Force  bool
}

// PushResult reports what a push actually did.
type PushResult struct {
	Pushed   []string
	Rejected map[string]string
}

// Backend is the Git object-store boundary: object storage, ref
// storage, optional remote transport, and commit synthesis.
// Implementations must never require the caller to understand pack file
// internals.
type Backend interface {
	// GetObject fetches a single object by oid.
	GetObject(ctx context.Context, oid string) (Object, error)
	// PutObject stores data under the given type and returns its oid.
	// Duplicate writes of identical content deduplicate to the same oid.
	PutObject(ctx context.Context, typ ObjectType, data []byte) (string, error)
	// ReadRef returns the oid a ref currently points at, or "" if absent.
	ReadRef(ctx context.Context, name string) (string, error)
	// UpdateRef repoints name at oid. oid == "" deletes the ref.
	UpdateRef(ctx context.Context, name, oid string) error
	// ListRefs returns every ref name with the given prefix.
	ListRefs(ctx context.Context, prefix string) ([]string, error)
	// CreateCommit synthesizes a commit object and returns its oid.
	CreateCommit(ctx context.Context, spec CommitSpec) (string, error)

	// Fetch and Push are optional; implementations without remote
	// transport return ErrNoRemote.
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
	Push(ctx context.Context, req PushRequest) (PushResult, error)
}

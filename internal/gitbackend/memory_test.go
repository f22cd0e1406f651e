package gitbackend

import (
	"context"
	"errors"
	"testing"
)

// TestPutObject_Deduplicates tests identical content yields the same oid.
func TestPutObject_Deduplicates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, err := m.PutObject(ctx, ObjectBlob, []byte("hello"))
	if err != nil {
		t.Fatalf("PutObject() failed: %v", err)
	}
	b, err := m.PutObject(ctx, ObjectBlob, []byte("hello"))
	if err != nil {
		t.Fatalf("PutObject() failed: %v", err)
	}
	if a != b {
		t.Errorf("duplicate content produced different oids: %s vs %s", a, b)
	}
	if len(a) != 40 {
		t.Errorf("oid length = %d, want 40", len(a))
	}

	c, err := m.PutObject(ctx, ObjectBlob, []byte("other"))
	if err != nil {
		t.Fatalf("PutObject() failed: %v", err)
	}
	if c == a {
		t.Error("different content collided")
	}
}

// TestGetObject_RoundTrip tests type and data survive storage.
func TestGetObject_RoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	oid, err := m.PutObject(ctx, ObjectTree, []byte("tree data"))
	if err != nil {
		t.Fatalf("PutObject() failed: %v", err)
	}
	obj, err := m.GetObject(ctx, oid)
	if err != nil {
		t.Fatalf("GetObject() failed: %v", err)
	}
	if obj.Type != ObjectTree || string(obj.Data) != "tree data" {
		t.Errorf("GetObject() = %+v", obj)
	}

	if _, err := m.GetObject(ctx, "feedfacefeedfacefeedfacefeedfacefeedface"); err == nil {
		t.Error("GetObject() of a missing oid succeeded")
	}
}

// TestRefs tests update, read, delete, and prefix listing.
func TestRefs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.UpdateRef(ctx, "refs/heads/main", "1111111111111111111111111111111111111111"); err != nil {
		t.Fatalf("UpdateRef() failed: %v", err)
	}
	if err := m.UpdateRef(ctx, "refs/tags/v1", "2222222222222222222222222222222222222222"); err != nil {
		t.Fatalf("UpdateRef() failed: %v", err)
	}

	oid, err := m.ReadRef(ctx, "refs/heads/main")
	if err != nil || oid != "1111111111111111111111111111111111111111" {
		t.Errorf("ReadRef() = %q, %v", oid, err)
	}

	heads, err := m.ListRefs(ctx, "refs/heads/")
	if err != nil {
		t.Fatalf("ListRefs() failed: %v", err)
	}
	if len(heads) != 1 {
		t.Errorf("ListRefs(refs/heads/) = %v", heads)
	}

	if err := m.UpdateRef(ctx, "refs/heads/main", ""); err != nil {
		t.Fatalf("UpdateRef(delete) failed: %v", err)
	}
	oid, _ = m.ReadRef(ctx, "refs/heads/main")
	if oid != "" {
		t.Error("deleted ref still resolves")
	}
}

// TestCreateCommit tests commit synthesis references its tree.
func TestCreateCommit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	tree, err := m.PutObject(ctx, ObjectTree, []byte("manifest"))
	if err != nil {
		t.Fatalf("PutObject() failed: %v", err)
	}
	oid, err := m.CreateCommit(ctx, CommitSpec{
		Message: "first",
		Author:  Signature{Name: "a", Email: "a@example.com", Timestamp: 1},
		Tree:    tree,
	})
	if err != nil {
		t.Fatalf("CreateCommit() failed: %v", err)
	}
	obj, err := m.GetObject(ctx, oid)
	if err != nil {
		t.Fatalf("GetObject(commit) failed: %v", err)
	}
	if obj.Type != ObjectCommit {
		t.Errorf("commit object type = %s", obj.Type)
	}
}

// TestFetchPush_NoRemote tests the no-transport errors.
func TestFetchPush_NoRemote(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.Fetch(ctx, FetchRequest{Remote: "origin"}); !errors.Is(err, ErrNoRemote) {
		t.Errorf("Fetch() = %v, want ErrNoRemote", err)
	}
	if _, err := m.Push(ctx, PushRequest{Remote: "origin"}); !errors.Is(err, ErrNoRemote) {
		t.Errorf("Push() = %v, want ErrNoRemote", err)
	}
}

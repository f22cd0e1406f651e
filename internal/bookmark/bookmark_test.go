package bookmark

import (
	"errors"
	"testing"

	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/storage"
)

const (
	c1 = "11111111111111111111111111111111"
	c2 = "22222222222222222222222222222222"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open() failed: %v", err)
	}
	return New(s)
}

// TestCreate_DuplicateFails tests bookmark name uniqueness.
func TestCreate_DuplicateFails(t *testing.T) {
	b := testStore(t)
	if err := b.Create("feature", c1); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	err := b.Create("feature", c2)
	if !errors.Is(err, jjerrors.ErrBookmarkExists) {
		t.Errorf("duplicate Create() = %v, want BOOKMARK_EXISTS", err)
	}
}

// TestMove_ThenListHasOneEntry tests the uniqueness+move scenario: after
// moving, list contains exactly one entry at the new target.
func TestMove_ThenListHasOneEntry(t *testing.T) {
	b := testStore(t)
	if err := b.Create("feature", c1); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := b.Move("feature", c2); err != nil {
		t.Fatalf("Move() failed: %v", err)
	}

	list := b.List()
	if len(list) != 1 {
		t.Fatalf("List() has %d entries, want 1", len(list))
	}
	if list["feature"] != c2 {
		t.Errorf("feature -> %s, want %s", list["feature"], c2)
	}
}

// TestMove_MissingFails tests moving an absent bookmark.
func TestMove_MissingFails(t *testing.T) {
	b := testStore(t)
	err := b.Move("nope", c1)
	if !errors.Is(err, jjerrors.ErrBookmarkNotFound) {
		t.Errorf("Move(missing) = %v, want BOOKMARK_NOT_FOUND", err)
	}
}

// TestCreate_InvalidName tests name validation (no whitespace, non-empty).
func TestCreate_InvalidName(t *testing.T) {
	b := testStore(t)
	for _, name := range []string{"", "has space", "has\ttab"} {
		if err := b.Create(name, c1); err == nil {
			t.Errorf("Create(%q) succeeded", name)
		}
	}
}

// TestDelete tests removal and subsequent not-found.
func TestDelete(t *testing.T) {
	b := testStore(t)
	if err := b.Create("feature", c1); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := b.Delete("feature"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := b.Get("feature"); !errors.Is(err, jjerrors.ErrBookmarkNotFound) {
		t.Errorf("Get() after delete = %v, want BOOKMARK_NOT_FOUND", err)
	}
}

// TestRemoteTracking tests the remote bookmark table and tracking.
func TestRemoteTracking(t *testing.T) {
	b := testStore(t)
	if err := b.SetRemote("origin", "main", c1); err != nil {
		t.Fatalf("SetRemote() failed: %v", err)
	}
	target, ok := b.GetRemote("origin", "main")
	if !ok || target != c1 {
		t.Errorf("GetRemote() = %q, %v", target, ok)
	}

	if err := b.Create("main", c1); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := b.Track("main", "origin", "main"); err != nil {
		t.Fatalf("Track() failed: %v", err)
	}
	if err := b.Track("ghost", "origin", "ghost"); err == nil {
		t.Error("Track() of missing local bookmark succeeded")
	}
}

// TestRestore tests wholesale replacement used by undo.
func TestRestore(t *testing.T) {
	b := testStore(t)
	if err := b.Create("feature", c1); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := b.Restore(map[string]string{"main": c2}); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}
	list := b.List()
	if len(list) != 1 || list["main"] != c2 {
		t.Errorf("List() after Restore = %v", list)
	}
}

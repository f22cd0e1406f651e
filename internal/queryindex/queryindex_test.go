package queryindex

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jjcore/jjcore/internal/types"
)

func testIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	if err := idx.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return idx
}

func sampleChanges() map[string]*types.Change {
	return map[string]*types.Change{
		"11111111111111111111111111111111": {
			ChangeID:     "11111111111111111111111111111111",
			CommitID:     "1111111111111111111111111111111111111111",
			Author:       types.Identity{Name: "alice", Email: "alice@example.com"},
			Committer:    types.Identity{Name: "alice", Email: "alice@example.com"},
			Description:  "add parser",
			Timestamp:    time.Unix(1, 0),
			FileSnapshot: map[string]string{"src/parser.go": "package parser"},
		},
		"22222222222222222222222222222222": {
			ChangeID:     "22222222222222222222222222222222",
			CommitID:     "2222222222222222222222222222222222222222",
			Author:       types.Identity{Name: "bob", Email: "bob@example.com"},
			Committer:    types.Identity{Name: "carol", Email: "carol@example.com"},
			Description:  "fix evaluator",
			Timestamp:    time.Unix(2, 0),
			FileSnapshot: map[string]string{"docs/notes.md": "notes"},
		},
	}
}

// TestRefresh_Search tests a refresh followed by each search predicate.
func TestRefresh_Search(t *testing.T) {
	idx := testIndex(t)
	ctx := context.Background()

	conflicted := map[string]bool{"22222222222222222222222222222222": true}
	if err := idx.Refresh(ctx, "head-1", sampleChanges(), conflicted); err != nil {
		t.Fatalf("Refresh() failed: %v", err)
	}

	got, err := idx.SearchAuthor(ctx, "alice")
	if err != nil {
		t.Fatalf("SearchAuthor() failed: %v", err)
	}
	if len(got) != 1 || got[0] != "11111111111111111111111111111111" {
		t.Errorf("SearchAuthor(alice) = %v", got)
	}

	got, err = idx.SearchCommitter(ctx, "carol")
	if err != nil {
		t.Fatalf("SearchCommitter() failed: %v", err)
	}
	if len(got) != 1 || got[0] != "22222222222222222222222222222222" {
		t.Errorf("SearchCommitter(carol) = %v", got)
	}

	got, err = idx.SearchDescription(ctx, "parser")
	if err != nil {
		t.Fatalf("SearchDescription() failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("SearchDescription(parser) = %v", got)
	}

	got, err = idx.SearchPath(ctx, "src/*")
	if err != nil {
		t.Fatalf("SearchPath() failed: %v", err)
	}
	if len(got) != 1 || got[0] != "11111111111111111111111111111111" {
		t.Errorf("SearchPath(src/*) = %v", got)
	}

	got, err = idx.Conflicted(ctx)
	if err != nil {
		t.Fatalf("Conflicted() failed: %v", err)
	}
	if len(got) != 1 || got[0] != "22222222222222222222222222222222" {
		t.Errorf("Conflicted() = %v", got)
	}
}

// TestFreshFor tests the head stamp.
func TestFreshFor(t *testing.T) {
	idx := testIndex(t)
	ctx := context.Background()

	if idx.FreshFor(ctx, "head-1") {
		t.Error("empty index claims freshness")
	}
	if err := idx.Refresh(ctx, "head-1", sampleChanges(), nil); err != nil {
		t.Fatalf("Refresh() failed: %v", err)
	}
	if !idx.FreshFor(ctx, "head-1") {
		t.Error("index not fresh for its own head")
	}
	if idx.FreshFor(ctx, "head-2") {
		t.Error("index claims freshness for a newer head")
	}
}

// TestRefresh_ReplacesPriorState tests a second refresh fully replaces
// the first.
func TestRefresh_ReplacesPriorState(t *testing.T) {
	idx := testIndex(t)
	ctx := context.Background()

	if err := idx.Refresh(ctx, "head-1", sampleChanges(), nil); err != nil {
		t.Fatalf("Refresh() failed: %v", err)
	}

	smaller := map[string]*types.Change{
		"33333333333333333333333333333333": {
			ChangeID:    "33333333333333333333333333333333",
			CommitID:    "3333333333333333333333333333333333333333",
			Author:      types.Identity{Name: "dave"},
			Description: "rewrite",
			Timestamp:   time.Unix(3, 0),
		},
	}
	if err := idx.Refresh(ctx, "head-2", smaller, nil); err != nil {
		t.Fatalf("second Refresh() failed: %v", err)
	}

	got, err := idx.SearchAuthor(ctx, "alice")
	if err != nil {
		t.Fatalf("SearchAuthor() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("stale rows survived refresh: %v", got)
	}
}

package changegraph

import (
	"errors"
	"testing"
	"time"

	"github.com/jjcore/jjcore/internal/idgen"
	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/storage"
	"github.com/jjcore/jjcore/internal/types"
)

func testGraph(t *testing.T) *Graph {
	t.Helper()
	s, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open() failed: %v", err)
	}
	return New(s)
}

func change(id string, parents ...string) *types.Change {
	return &types.Change{
		ChangeID:  id,
		CommitID:  idgen.ZeroCommitID,
		Parents:   parents,
		Tree:      idgen.EmptyTreeRef,
		Timestamp: time.Now(),
	}
}

const (
	idA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	idB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	idC = "cccccccccccccccccccccccccccccccc"
)

// TestAdd_ParentMustExist tests referential integrity on insert.
func TestAdd_ParentMustExist(t *testing.T) {
	g := testGraph(t)
	err := g.Add(change(idA, idB))
	var e *jjerrors.Error
	if !errors.As(err, &e) || e.Code != jjerrors.CodeChangeNotFound {
		t.Errorf("Add() with missing parent = %v, want CHANGE_NOT_FOUND", err)
	}
}

// TestAdd_Duplicate tests that a second insert of the same id fails.
func TestAdd_Duplicate(t *testing.T) {
	g := testGraph(t)
	if err := g.Add(change(idA)); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	err := g.Add(change(idA))
	if !errors.Is(err, jjerrors.ErrChangeExists) {
		t.Errorf("duplicate Add() = %v, want CHANGE_EXISTS", err)
	}
}

// TestAdd_SelfParent tests self-edges are rejected.
func TestAdd_SelfParent(t *testing.T) {
	g := testGraph(t)
	err := g.Add(change(idA, idA))
	var e *jjerrors.Error
	if !errors.As(err, &e) || e.Code != jjerrors.CodeInvalidArgument {
		t.Errorf("self-parent Add() = %v, want INVALID_ARGUMENT", err)
	}
}

// TestUpdate_CycleRejected tests that reparenting cannot close a cycle.
func TestUpdate_CycleRejected(t *testing.T) {
	g := testGraph(t)
	if err := g.Add(change(idA)); err != nil {
		t.Fatalf("Add(A) failed: %v", err)
	}
	if err := g.Add(change(idB, idA)); err != nil {
		t.Fatalf("Add(B) failed: %v", err)
	}

	// A <- B exists; making A a child of B closes the cycle.
	rewired := change(idA, idB)
	err := g.Update(rewired)
	var e *jjerrors.Error
	if !errors.As(err, &e) || e.Code != jjerrors.CodeInvalidArgument {
		t.Errorf("cycle Update() = %v, want INVALID_ARGUMENT", err)
	}

	// State unchanged: A still has no parents.
	got, err := g.Get(idA)
	if err != nil {
		t.Fatalf("Get(A) failed: %v", err)
	}
	if len(got.Parents) != 0 {
		t.Errorf("A's parents mutated to %v after rejected update", got.Parents)
	}
}

// TestUpdate_PredecessorsAppendOnly tests that shrinking predecessors fails.
func TestUpdate_PredecessorsAppendOnly(t *testing.T) {
	g := testGraph(t)
	c := change(idA)
	c.Predecessors = []string{"1111111111111111111111111111111111111111"}
	if err := g.Add(c); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	shrunk := c.Clone()
	shrunk.Predecessors = nil
	if err := g.Update(shrunk); err == nil {
		t.Error("Update() with shrunken predecessors succeeded")
	}
}

// TestUpdate_CommitIndexSwap tests the byCommit index follows commitId rewrites.
func TestUpdate_CommitIndexSwap(t *testing.T) {
	g := testGraph(t)
	c := change(idA)
	c.CommitID = "1111111111111111111111111111111111111111"
	if err := g.Add(c); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	updated := c.Clone()
	updated.CommitID = "2222222222222222222222222222222222222222"
	updated.Predecessors = append(updated.Predecessors, c.CommitID)
	if err := g.Update(updated); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	if _, ok := g.FindByCommit("1111111111111111111111111111111111111111"); ok {
		t.Error("old commit id still resolves")
	}
	id, ok := g.FindByCommit("2222222222222222222222222222222222222222")
	if !ok || id != idA {
		t.Errorf("FindByCommit(new) = %q, %v", id, ok)
	}
}

// TestTraversals tests parents/children/ancestors/descendants on a chain.
func TestTraversals(t *testing.T) {
	g := testGraph(t)
	for _, c := range []*types.Change{change(idA), change(idB, idA), change(idC, idB)} {
		if err := g.Add(c); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
	}

	parents, err := g.Parents(idC)
	if err != nil {
		t.Fatalf("Parents() failed: %v", err)
	}
	if len(parents) != 1 || parents[0] != idB {
		t.Errorf("Parents(C) = %v, want [B]", parents)
	}

	children := g.Children(idA)
	if len(children) != 1 || children[0] != idB {
		t.Errorf("Children(A) = %v, want [B]", children)
	}

	anc := g.Ancestors(idC)
	if len(anc) != 2 {
		t.Errorf("Ancestors(C) = %v, want 2 entries", anc)
	}

	desc := g.Descendants(idA)
	if len(desc) != 2 {
		t.Errorf("Descendants(A) = %v, want 2 entries", desc)
	}
}

// TestPersistence_Reload tests the graph survives a fresh load from disk.
func TestPersistence_Reload(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("storage.Open() failed: %v", err)
	}
	g := New(s)
	if err := g.Add(change(idA)); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	s2, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("storage.Open() again failed: %v", err)
	}
	g2 := New(s2)
	if !g2.Exists(idA) {
		t.Error("reloaded graph lost the change")
	}
}

// TestNewChangeID_Unique tests minted ids avoid collisions with the graph.
func TestNewChangeID_Unique(t *testing.T) {
	g := testGraph(t)
	id, err := g.NewChangeID()
	if err != nil {
		t.Fatalf("NewChangeID() failed: %v", err)
	}
	if !idgen.IsValidChangeID(id) {
		t.Errorf("NewChangeID() = %q, not a valid change id", id)
	}
}

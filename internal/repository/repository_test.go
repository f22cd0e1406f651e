package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jjcore/jjcore/internal/conflict"
	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/types"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := Open(Options{
		Dir:  filepath.Join(t.TempDir(), "meta"),
		FS:   NewMemFS(),
		User: User{Name: "test", Email: "test@example.com", Hostname: "host"},
	})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return r
}

func initRepo(t *testing.T, r *Repository) *types.Change {
	t.Helper()
	root, err := r.Init(context.Background())
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	return root
}

func errCode(err error) jjerrors.Code {
	var e *jjerrors.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// TestAmend_PreservesChangeID is the amend scenario: describe, capture
// the id, amend, and observe the same id with the new description.
func TestAmend_PreservesChangeID(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	if _, err := r.Describe(ctx, DescribeOptions{Message: "A"}); err != nil {
		t.Fatalf("Describe() failed: %v", err)
	}
	id, err := r.CurrentChangeID()
	if err != nil {
		t.Fatalf("CurrentChangeID() failed: %v", err)
	}

	amended, err := r.Amend(ctx, "A'")
	if err != nil {
		t.Fatalf("Amend() failed: %v", err)
	}
	if amended.ChangeID != id {
		t.Errorf("amend changed the ChangeId: %s -> %s", id, amended.ChangeID)
	}
	if amended.Description != "A'" {
		t.Errorf("description = %q, want %q", amended.Description, "A'")
	}
}

// TestUndo_RestoresWorkingCopyPointer is the undo scenario: two undos
// walk the working copy back through each new change to the root.
func TestUndo_RestoresWorkingCopyPointer(t *testing.T) {
	r := testRepo(t)
	root := initRepo(t, r)
	ctx := context.Background()

	first, err := r.New(ctx, NewOptions{Message: "f1"})
	if err != nil {
		t.Fatalf("New(f1) failed: %v", err)
	}
	if _, err := r.New(ctx, NewOptions{Message: "f2"}); err != nil {
		t.Fatalf("New(f2) failed: %v", err)
	}

	if _, err := r.Undo(ctx); err != nil {
		t.Fatalf("Undo() failed: %v", err)
	}
	cur, err := r.CurrentChangeID()
	if err != nil {
		t.Fatalf("CurrentChangeID() failed: %v", err)
	}
	if cur != first.ChangeID {
		t.Errorf("after undo working copy = %s, want %s", cur, first.ChangeID)
	}

	if _, err := r.Undo(ctx); err != nil {
		t.Fatalf("second Undo() failed: %v", err)
	}
	cur, _ = r.CurrentChangeID()
	if cur != root.ChangeID {
		t.Errorf("after second undo working copy = %s, want root %s", cur, root.ChangeID)
	}
}

// TestMerge_DetectsContentConflict is the merge scenario: diverged edits
// of one path conflict, and resolveAll(ours) keeps the current side.
func TestMerge_DetectsContentConflict(t *testing.T) {
	r := testRepo(t)
	root := initRepo(t, r)
	ctx := context.Background()

	if err := r.WriteFile(ctx, "file.txt", "base\n"); err != nil {
		t.Fatalf("WriteFile(base) failed: %v", err)
	}

	branchA, err := r.New(ctx, NewOptions{Message: "branch A"})
	if err != nil {
		t.Fatalf("New(A) failed: %v", err)
	}
	if err := r.WriteFile(ctx, "file.txt", "A\n"); err != nil {
		t.Fatalf("WriteFile(A) failed: %v", err)
	}

	if _, err := r.Edit(ctx, root.ChangeID, EditOptions{}); err != nil {
		t.Fatalf("Edit(root) failed: %v", err)
	}
	if _, err := r.New(ctx, NewOptions{Message: "branch B"}); err != nil {
		t.Fatalf("New(B) failed: %v", err)
	}
	if err := r.WriteFile(ctx, "file.txt", "B\n"); err != nil {
		t.Fatalf("WriteFile(B) failed: %v", err)
	}

	res, err := r.Merge(ctx, MergeOptions{Source: branchA.ChangeID})
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if len(res.Conflicts) < 1 {
		t.Fatal("Merge() reported no conflicts")
	}
	if res.Conflicts[0].Path != "file.txt" {
		t.Errorf("conflict path = %q, want file.txt", res.Conflicts[0].Path)
	}
	if res.Conflicts[0].Type != types.ConflictContent {
		t.Errorf("conflict type = %s, want content", res.Conflicts[0].Type)
	}

	if _, err := r.ResolveAllConflicts(ctx, conflict.StrategyOurs, ""); err != nil {
		t.Fatalf("ResolveAllConflicts() failed: %v", err)
	}
	cur, _ := r.CurrentChangeID()
	ch, err := r.Graph().Get(cur)
	if err != nil {
		t.Fatalf("Get(merge change) failed: %v", err)
	}
	if ch.FileSnapshot["file.txt"] != "B\n" {
		t.Errorf("resolved content = %q, want B\\n (ours = current side)", ch.FileSnapshot["file.txt"])
	}
}

// TestMerge_DryRunDoesNotMutate tests dry-run reports conflicts with no
// new change and no operation.
func TestMerge_DryRunDoesNotMutate(t *testing.T) {
	r := testRepo(t)
	root := initRepo(t, r)
	ctx := context.Background()

	if err := r.WriteFile(ctx, "f.txt", "base\n"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	branchA, err := r.New(ctx, NewOptions{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "f.txt", "A\n"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if _, err := r.Edit(ctx, root.ChangeID, EditOptions{}); err != nil {
		t.Fatalf("Edit() failed: %v", err)
	}
	if _, err := r.New(ctx, NewOptions{}); err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "f.txt", "B\n"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	opsBefore, _ := r.OperationLog().All()
	res, err := r.Merge(ctx, MergeOptions{Source: branchA.ChangeID, DryRun: true})
	if err != nil {
		t.Fatalf("Merge(dry-run) failed: %v", err)
	}
	if res.Change != nil {
		t.Error("dry-run created a change")
	}
	if len(res.Conflicts) == 0 {
		t.Error("dry-run reported no conflicts")
	}
	opsAfter, _ := r.OperationLog().All()
	if len(opsAfter) != len(opsBefore) {
		t.Error("dry-run appended an operation")
	}
}

// TestMerge_NoCommonAncestorFails tests disjoint histories refuse to merge.
func TestMerge_NoCommonAncestorFails(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	// A second rootless change shares no ancestor with the working copy.
	orphanID, err := r.Graph().NewChangeID()
	if err != nil {
		t.Fatalf("NewChangeID() failed: %v", err)
	}
	orphan := &types.Change{
		ChangeID:  orphanID,
		CommitID:  "0000000000000000000000000000000000000000",
		Tree:      "0000000000000000000000000000000000000000",
		Timestamp: time.Now(),
	}
	if err := r.Graph().Add(orphan); err != nil {
		t.Fatalf("Add(orphan) failed: %v", err)
	}

	_, err = r.Merge(ctx, MergeOptions{Source: orphanID})
	if errCode(err) != jjerrors.CodeMergeError {
		t.Errorf("Merge() without common ancestor = %v, want MERGE_ERROR", err)
	}
}

// TestBookmark_UniquenessAndMove is the bookmark scenario.
func TestBookmark_UniquenessAndMove(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	c1, err := r.New(ctx, NewOptions{Message: "c1"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	c2, err := r.New(ctx, NewOptions{Message: "c2"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := r.CreateBookmark(ctx, "feature", c1.ChangeID); err != nil {
		t.Fatalf("CreateBookmark() failed: %v", err)
	}
	if err := r.CreateBookmark(ctx, "feature", c2.ChangeID); errCode(err) != jjerrors.CodeBookmarkExists {
		t.Errorf("duplicate CreateBookmark() = %v, want BOOKMARK_EXISTS", err)
	}
	if err := r.MoveBookmark(ctx, "feature", c2.ChangeID); err != nil {
		t.Fatalf("MoveBookmark() failed: %v", err)
	}

	list := r.Bookmarks().List()
	if len(list) != 1 || list["feature"] != c2.ChangeID {
		t.Errorf("List() = %v, want feature -> %s", list, c2.ChangeID)
	}
}

// TestLog_RangeSemantics is the revset range scenario: C1..C3 returns
// exactly [C3, C2], newest first, never C1.
func TestLog_RangeSemantics(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	c1, err := r.New(ctx, NewOptions{Message: "c1"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	c2, err := r.New(ctx, NewOptions{Message: "c2"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	c3, err := r.New(ctx, NewOptions{Message: "c3"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	entries, err := r.Log(c1.ChangeID + ".." + c3.ChangeID)
	if err != nil {
		t.Fatalf("Log() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Log(C1..C3) returned %d entries, want 2", len(entries))
	}
	if entries[0].Change.ChangeID != c3.ChangeID || entries[1].Change.ChangeID != c2.ChangeID {
		t.Errorf("Log(C1..C3) = [%s, %s], want [%s, %s]",
			entries[0].Change.ChangeID, entries[1].Change.ChangeID, c3.ChangeID, c2.ChangeID)
	}
}

// TestMove_AmbiguousTwoHexArgs is the ambiguous-move scenario.
func TestMove_AmbiguousTwoHexArgs(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	_, err := r.Move(ctx, MoveArgs{
		From: strings.Repeat("a", 32),
		To:   strings.Repeat("b", 32),
	})
	if errCode(err) != jjerrors.CodeAmbiguousOperation {
		t.Fatalf("Move() with two hex args = %v, want AMBIGUOUS_OPERATION", err)
	}
	var e *jjerrors.Error
	errors.As(err, &e)
	if !strings.Contains(e.Suggestion, "changeId") || !strings.Contains(e.Suggestion, "newParent") {
		t.Errorf("suggestion %q should reference changeId and newParent", e.Suggestion)
	}
}

// TestRebase_RejectsSelfAndCycle tests the reparent guards.
func TestRebase_RejectsSelfAndCycle(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	a, err := r.New(ctx, NewOptions{Message: "a"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	b, err := r.New(ctx, NewOptions{Message: "b"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := r.RebaseChange(ctx, a.ChangeID, a.ChangeID); err == nil {
		t.Error("rebase onto itself succeeded")
	}
	// b descends from a; making b a's parent closes a cycle.
	if _, err := r.RebaseChange(ctx, a.ChangeID, b.ChangeID); err == nil {
		t.Error("cycle-closing rebase succeeded")
	}
}

// TestSquash_FoldsContentAndAbandonsSource tests content transfer, the
// description suffix, and source abandonment.
func TestSquash_FoldsContentAndAbandonsSource(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	dest, err := r.New(ctx, NewOptions{Message: "dest"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "d.txt", "dest content"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	src, err := r.New(ctx, NewOptions{Message: "src"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "s.txt", "src content"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	squashed, err := r.Squash(ctx, src.ChangeID, dest.ChangeID)
	if err != nil {
		t.Fatalf("Squash() failed: %v", err)
	}
	if squashed.ChangeID != dest.ChangeID {
		t.Errorf("squash minted a new id for dest")
	}
	if squashed.FileSnapshot["s.txt"] != "src content" {
		t.Error("source content missing from dest after squash")
	}
	wantSuffix := fmt.Sprintf("(squashed from %s)", src.ChangeID[:8])
	if !strings.HasSuffix(squashed.Description, wantSuffix) {
		t.Errorf("description %q missing suffix %q", squashed.Description, wantSuffix)
	}

	srcAfter, err := r.Graph().Get(src.ChangeID)
	if err != nil {
		t.Fatalf("Get(src) failed: %v", err)
	}
	if !srcAfter.Abandoned {
		t.Error("source not abandoned after squash")
	}
}

// TestSplit_KeepsOriginalIDForPartOne tests the id-stability contract.
func TestSplit_KeepsOriginalIDForPartOne(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	ch, err := r.New(ctx, NewOptions{Message: "both"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "a.txt", "a"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "b.txt", "b"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	res, err := r.Split(ctx, ch.ChangeID, []string{"a.txt"}, "part one", "part two")
	if err != nil {
		t.Fatalf("Split() failed: %v", err)
	}
	if res.First.ChangeID != ch.ChangeID {
		t.Errorf("part one id = %s, want original %s", res.First.ChangeID, ch.ChangeID)
	}
	if res.Second.ChangeID == ch.ChangeID {
		t.Error("part two reused the original id")
	}
	if len(res.Second.Parents) != 1 || res.Second.Parents[0] != ch.ChangeID {
		t.Errorf("part two parents = %v, want [%s]", res.Second.Parents, ch.ChangeID)
	}
	if _, ok := res.First.FileSnapshot["a.txt"]; !ok {
		t.Error("part one lost a.txt")
	}
	if _, ok := res.Second.FileSnapshot["b.txt"]; !ok {
		t.Error("part two lost b.txt")
	}
	if _, err := r.Split(ctx, res.Second.ChangeID, []string{"nope.txt"}, "x", "y"); errCode(err) != jjerrors.CodeFileNotFound {
		t.Errorf("Split() with untracked path = %v, want FILE_NOT_FOUND", err)
	}
}

// TestDuplicate_MintsFreshIDs tests duplication copies content under
// new identities.
func TestDuplicate_MintsFreshIDs(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	orig, err := r.New(ctx, NewOptions{Message: "original"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "f.txt", "content"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	dups, err := r.Duplicate(ctx, []string{orig.ChangeID})
	if err != nil {
		t.Fatalf("Duplicate() failed: %v", err)
	}
	if len(dups) != 1 {
		t.Fatalf("Duplicate() returned %d changes", len(dups))
	}
	if dups[0].ChangeID == orig.ChangeID {
		t.Error("duplicate shares the original id")
	}
	if dups[0].Description != "original" || dups[0].FileSnapshot["f.txt"] != "content" {
		t.Error("duplicate content diverged from the original")
	}
}

// TestBackout_ReversesDelta tests the reversing change and its marker.
func TestBackout_ReversesDelta(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	if err := r.WriteFile(ctx, "f.txt", "v1"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	bad, err := r.New(ctx, NewOptions{Message: "bad edit"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "f.txt", "v2"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "new.txt", "introduced"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	backout, err := r.Backout(ctx, bad.ChangeID, "")
	if err != nil {
		t.Fatalf("Backout() failed: %v", err)
	}
	if backout.BackedOut != bad.ChangeID {
		t.Errorf("BackedOut = %q, want %s", backout.BackedOut, bad.ChangeID)
	}
	if backout.FileSnapshot["f.txt"] != "v1" {
		t.Errorf("f.txt = %q after backout, want v1", backout.FileSnapshot["f.txt"])
	}
	if _, ok := backout.FileSnapshot["new.txt"]; ok {
		t.Error("file introduced by the reverted change survived the backout")
	}
}

// TestMetaEdit_PreservesIDAndContent tests author rewrites.
func TestMetaEdit_PreservesIDAndContent(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	if err := r.WriteFile(ctx, "f.txt", "content"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	id, _ := r.CurrentChangeID()

	edited, err := r.MetaEdit(ctx, MetaEditOptions{
		Author: &types.Identity{Name: "other", Email: "other@example.com", Timestamp: time.Now()},
	})
	if err != nil {
		t.Fatalf("MetaEdit() failed: %v", err)
	}
	if edited.ChangeID != id {
		t.Error("metaedit changed the ChangeId")
	}
	if edited.Author.Name != "other" {
		t.Errorf("author = %q, want other", edited.Author.Name)
	}
	if edited.FileSnapshot["f.txt"] != "content" {
		t.Error("metaedit disturbed file content")
	}
}

// TestAbsorb_FoldsIntoNearestOwner tests file-level absorption.
func TestAbsorb_FoldsIntoNearestOwner(t *testing.T) {
	r := testRepo(t)
	root := initRepo(t, r)
	ctx := context.Background()

	if err := r.WriteFile(ctx, "f.txt", "one\n"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if _, err := r.New(ctx, NewOptions{Message: "wip"}); err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "f.txt", "two\n"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "fresh.txt", "brand new"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	plan, err := r.Absorb(ctx, AbsorbOptions{})
	if err != nil {
		t.Fatalf("Absorb() failed: %v", err)
	}
	if len(plan) != 1 || plan[0].Path != "f.txt" || plan[0].Target != root.ChangeID {
		t.Fatalf("Absorb() plan = %+v, want f.txt -> root", plan)
	}

	rootAfter, _ := r.Graph().Get(root.ChangeID)
	if rootAfter.FileSnapshot["f.txt"] != "two\n" {
		t.Errorf("root f.txt = %q, want absorbed content", rootAfter.FileSnapshot["f.txt"])
	}
	cur, _ := r.CurrentChangeID()
	wip, _ := r.Graph().Get(cur)
	if _, ok := wip.FileSnapshot["f.txt"]; ok {
		t.Error("absorbed file still in the working change")
	}
	if _, ok := wip.FileSnapshot["fresh.txt"]; !ok {
		t.Error("genuinely new file was absorbed away")
	}
}

// TestAbsorb_DryRun tests the plan-only path.
func TestAbsorb_DryRun(t *testing.T) {
	r := testRepo(t)
	root := initRepo(t, r)
	ctx := context.Background()

	if err := r.WriteFile(ctx, "f.txt", "one"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if _, err := r.New(ctx, NewOptions{}); err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "f.txt", "two"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	plan, err := r.Absorb(ctx, AbsorbOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Absorb(dry-run) failed: %v", err)
	}
	if len(plan) != 1 {
		t.Fatalf("plan = %+v", plan)
	}
	rootAfter, _ := r.Graph().Get(root.ChangeID)
	if rootAfter.FileSnapshot["f.txt"] != "one" {
		t.Error("dry-run mutated the target ancestor")
	}
}

// TestEveryMutationAppendsOneOperation tests the one-op-per-mutation
// contract and head chaining.
func TestEveryMutationAppendsOneOperation(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	ops1, _ := r.OperationLog().All()
	if _, err := r.New(ctx, NewOptions{Message: "x"}); err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ops2, _ := r.OperationLog().All()
	if len(ops2) != len(ops1)+1 {
		t.Fatalf("New() appended %d operations, want 1", len(ops2)-len(ops1))
	}
	last := ops2[len(ops2)-1]
	prev := ops2[len(ops2)-2]
	if len(last.Parents) != 1 || last.Parents[0] != prev.OperationID {
		t.Error("new operation's parents[0] is not the prior head")
	}
}

// TestHooks tests preCommit aborts with no mutation and postCommit
// observes the recorded operation.
func TestHooks(t *testing.T) {
	var postOps []string
	blocked := errors.New("rejected by policy")
	failPre := false

	r, err := Open(Options{
		Dir: filepath.Join(t.TempDir(), "meta"),
		FS:  NewMemFS(),
		Hooks: Hooks{
			PreCommit: func(ctx context.Context, description string) error {
				if failPre {
					return blocked
				}
				return nil
			},
			PostCommit: func(ctx context.Context, op *types.Operation) {
				postOps = append(postOps, op.Description)
			},
		},
		User: User{Name: "test"},
	})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	ctx := context.Background()
	if _, err := r.Init(ctx); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if len(postOps) != 1 {
		t.Fatalf("postCommit calls = %d, want 1", len(postOps))
	}

	failPre = true
	opsBefore, _ := r.OperationLog().All()
	if _, err := r.New(ctx, NewOptions{Message: "nope"}); err == nil {
		t.Fatal("New() succeeded despite preCommit rejection")
	}
	opsAfter, _ := r.OperationLog().All()
	if len(opsAfter) != len(opsBefore) {
		t.Error("rejected operation still appended to the log")
	}
	if len(postOps) != 1 {
		t.Error("postCommit ran for a rejected operation")
	}
}

// TestSparse_BlocksOutOfScopeWrites tests FILE_NOT_IN_SPARSE.
func TestSparse_BlocksOutOfScopeWrites(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	if err := r.SetSparsePatterns(ctx, []string{"src/*"}); err != nil {
		t.Fatalf("SetSparsePatterns() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "src/main.go", "package main"); err != nil {
		t.Fatalf("in-scope WriteFile() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "docs/readme.md", "hi"); errCode(err) != jjerrors.CodeFileNotInSparse {
		t.Errorf("out-of-scope WriteFile() = %v, want FILE_NOT_IN_SPARSE", err)
	}
}

// TestFileOps tests remove and rename against the current change.
func TestFileOps(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	if err := r.WriteFile(ctx, "a.txt", "content"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := r.RenameFile(ctx, "a.txt", "b.txt"); err != nil {
		t.Fatalf("RenameFile() failed: %v", err)
	}
	cur, _ := r.CurrentChangeID()
	ch, _ := r.Graph().Get(cur)
	if _, ok := ch.FileSnapshot["a.txt"]; ok {
		t.Error("a.txt survived the rename")
	}
	if ch.FileSnapshot["b.txt"] != "content" {
		t.Error("b.txt missing after rename")
	}

	if err := r.RemoveFile(ctx, "b.txt"); err != nil {
		t.Fatalf("RemoveFile() failed: %v", err)
	}
	if err := r.RemoveFile(ctx, "b.txt"); errCode(err) != jjerrors.CodeFileNotFound {
		t.Errorf("double RemoveFile() = %v, want FILE_NOT_FOUND", err)
	}
	if err := r.RenameFile(ctx, "x.txt", "x.txt"); err == nil {
		t.Error("rename with src == dst succeeded")
	}
}

// TestNextPrev tests parent/child navigation.
func TestNextPrev(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	child, err := r.New(ctx, NewOptions{Message: "child"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	nav, err := r.Prev(ctx)
	if err != nil {
		t.Fatalf("Prev() failed: %v", err)
	}
	if nav.From != child.ChangeID {
		t.Errorf("Prev().From = %s, want %s", nav.From, child.ChangeID)
	}

	nav, err = r.Next(ctx)
	if err != nil {
		t.Fatalf("Next() failed: %v", err)
	}
	if nav.To != child.ChangeID {
		t.Errorf("Next().To = %s, want %s", nav.To, child.ChangeID)
	}
}

// TestEdit_RefusesAbandoned tests checkout of abandoned changes needs
// restore semantics.
func TestEdit_RefusesAbandoned(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	ch, err := r.New(ctx, NewOptions{Message: "doomed"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if _, err := r.New(ctx, NewOptions{Message: "after"}); err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := r.Abandon(ctx, ch.ChangeID); err != nil {
		t.Fatalf("Abandon() failed: %v", err)
	}

	if _, err := r.Edit(ctx, ch.ChangeID, EditOptions{}); err == nil {
		t.Error("Edit() of abandoned change succeeded without restore")
	}
	if _, err := r.Edit(ctx, ch.ChangeID, EditOptions{Restore: true}); err != nil {
		t.Errorf("Edit() with restore failed: %v", err)
	}
}

// TestTagOperations tests recorded tag create/delete and immutability.
func TestTagOperations(t *testing.T) {
	r := testRepo(t)
	root := initRepo(t, r)
	ctx := context.Background()

	if err := r.CreateTag(ctx, "v1.0", root.ChangeID); err != nil {
		t.Fatalf("CreateTag() failed: %v", err)
	}
	if err := r.CreateTag(ctx, "v1.0", root.ChangeID); errCode(err) != jjerrors.CodeTagExists {
		t.Errorf("duplicate CreateTag() = %v, want TAG_EXISTS", err)
	}
	if err := r.DeleteTag(ctx, "v1.0"); err != nil {
		t.Fatalf("DeleteTag() failed: %v", err)
	}
	if err := r.CreateTag(ctx, "missing", strings.Repeat("f", 32)); errCode(err) != jjerrors.CodeChangeNotFound {
		t.Errorf("CreateTag(missing change) = %v, want CHANGE_NOT_FOUND", err)
	}
}

// TestBisect tests the narrowing state machine.
func TestBisect(t *testing.T) {
	r := testRepo(t)
	root := initRepo(t, r)
	ctx := context.Background()

	var chain []*types.Change
	for i := 0; i < 3; i++ {
		ch, err := r.New(ctx, NewOptions{Message: fmt.Sprintf("c%d", i+1)})
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		chain = append(chain, ch)
	}

	status, err := r.BisectStart([]string{root.ChangeID}, []string{chain[2].ChangeID})
	if err != nil {
		t.Fatalf("BisectStart() failed: %v", err)
	}
	if len(status.Candidates) != 3 {
		t.Fatalf("initial candidates = %v", status.Candidates)
	}
	if _, err := r.BisectStart([]string{root.ChangeID}, []string{chain[2].ChangeID}); errCode(err) != jjerrors.CodeBisectAlreadyActive {
		t.Errorf("second BisectStart() = %v, want BISECT_ALREADY_ACTIVE", err)
	}

	if _, err := r.BisectMark(chain[1].ChangeID, false); err != nil {
		t.Fatalf("BisectMark(bad) failed: %v", err)
	}
	status, err = r.BisectMark(chain[0].ChangeID, true)
	if err != nil {
		t.Fatalf("BisectMark(good) failed: %v", err)
	}
	if status.Found != chain[1].ChangeID {
		t.Errorf("Found = %s, want %s", status.Found, chain[1].ChangeID)
	}
	if err := r.BisectReset(); errCode(err) != jjerrors.CodeBisectNotActive {
		t.Errorf("BisectReset() after completion = %v, want BISECT_NOT_ACTIVE", err)
	}
}

// TestWorkspaces tests registration, listing and repointing.
func TestWorkspaces(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	ws, err := r.AddWorkspace(ctx, "second", "/tmp/second")
	if err != nil {
		t.Fatalf("AddWorkspace() failed: %v", err)
	}
	cur, _ := r.CurrentChangeID()
	if ws.ChangeID != cur {
		t.Errorf("new workspace starts at %s, want current %s", ws.ChangeID, cur)
	}
	if _, err := r.AddWorkspace(ctx, "second", "/tmp/elsewhere"); err == nil {
		t.Error("duplicate AddWorkspace() succeeded")
	}

	other, err := r.New(ctx, NewOptions{Message: "elsewhere"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := r.UpdateWorkspaceChange(ctx, "second", other.ChangeID); err != nil {
		t.Fatalf("UpdateWorkspaceChange() failed: %v", err)
	}

	list, err := r.ListWorkspaces()
	if err != nil {
		t.Fatalf("ListWorkspaces() failed: %v", err)
	}
	if len(list) != 1 || list[0].ChangeID != other.ChangeID {
		t.Errorf("ListWorkspaces() = %+v", list)
	}

	if err := r.ForgetWorkspace(ctx, "second"); err != nil {
		t.Fatalf("ForgetWorkspace() failed: %v", err)
	}
	list, _ = r.ListWorkspaces()
	if len(list) != 0 {
		t.Error("workspace survived ForgetWorkspace()")
	}
}

// TestStatusShow tests the read-side reports.
func TestStatusShow(t *testing.T) {
	r := testRepo(t)
	initRepo(t, r)
	ctx := context.Background()

	if err := r.WriteFile(ctx, "f.txt", "v1"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	ch, err := r.New(ctx, NewOptions{Message: "edit"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "f.txt", "v2"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := r.WriteFile(ctx, "g.txt", "new"); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	st, err := r.Status()
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if st.Current.ChangeID != ch.ChangeID {
		t.Errorf("Status().Current = %s", st.Current.ChangeID)
	}
	if len(st.Parents) != 1 {
		t.Errorf("Status().Parents = %d entries", len(st.Parents))
	}

	show, err := r.Show("")
	if err != nil {
		t.Fatalf("Show() failed: %v", err)
	}
	kinds := map[string]string{}
	for _, d := range show.Diff {
		kinds[d.Path] = d.Kind
	}
	if kinds["f.txt"] != "modified" || kinds["g.txt"] != "added" {
		t.Errorf("Show().Diff = %v", kinds)
	}
}

// TestTimeTravel tests the read-only At handle.
func TestTimeTravel(t *testing.T) {
	r := testRepo(t)
	root := initRepo(t, r)
	ctx := context.Background()

	ops, _ := r.OperationLog().All()
	initOp := ops[len(ops)-1]

	if _, err := r.New(ctx, NewOptions{Message: "later"}); err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	h, err := r.At(initOp.OperationID)
	if err != nil {
		t.Fatalf("At() failed: %v", err)
	}
	if h.WorkingCopyChange() != root.ChangeID {
		t.Errorf("time-traveled working copy = %s, want root", h.WorkingCopyChange())
	}
	ids, err := h.Evaluate("@")
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != root.ChangeID {
		t.Errorf("@ at init = %v", ids)
	}
}

// TestResolveRevision tests @, raw ids, bookmarks and tags.
func TestResolveRevision(t *testing.T) {
	r := testRepo(t)
	root := initRepo(t, r)
	ctx := context.Background()

	id, err := r.ResolveRevision("@")
	if err != nil || id != root.ChangeID {
		t.Errorf("ResolveRevision(@) = %s, %v", id, err)
	}
	id, err = r.ResolveRevision(root.ChangeID)
	if err != nil || id != root.ChangeID {
		t.Errorf("ResolveRevision(raw id) = %s, %v", id, err)
	}

	if err := r.CreateBookmark(ctx, "main", root.ChangeID); err != nil {
		t.Fatalf("CreateBookmark() failed: %v", err)
	}
	id, err = r.ResolveRevision("main")
	if err != nil || id != root.ChangeID {
		t.Errorf("ResolveRevision(bookmark) = %s, %v", id, err)
	}

	if _, err := r.ResolveRevision("no-such-rev"); errCode(err) != jjerrors.CodeChangeNotFound {
		t.Errorf("ResolveRevision(garbage) = %v, want CHANGE_NOT_FOUND", err)
	}
}

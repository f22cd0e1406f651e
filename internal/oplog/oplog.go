// Package oplog implements the operation log: an append-only DAG of
// immutable Operation records plus a head pointer. The log is the
// authoritative source of repository history; every mutation appends
// exactly one record whose parent is the prior head.
package oplog

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/jjcore/jjcore/internal/idgen"
	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/lock"
	"github.com/jjcore/jjcore/internal/storage"
	"github.com/jjcore/jjcore/internal/types"
)

const (
	logPath  = "oplog.jsonl"
	headPath = "oplog-head.json"
)

type headDoc struct {
	Version int    `json:"version"`
	Head    string `json:"head"`
}

// BroadcastFunc is called once per successfully appended operation. It is
// additive: a failure here never rolls back the append. internal/events
// supplies a websocket-backed implementation; nil disables broadcasting.
type BroadcastFunc func(op *types.Operation)

// Log is the persisted, append-only OperationLog.
type Log struct {
	store     *storage.Store
	lease     *lock.Lease
	broadcast BroadcastFunc

	head string // cached head operation id; "" until first read
}

// New returns a Log backed by store. lockPath names the advisory lock
// file guarding the head-pointer read-modify-rename sequence across
// processes.
func New(store *storage.Store, lockPath string) *Log {
	return &Log{store: store, lease: lock.New(lockPath)}
}

// SetBroadcast installs a callback invoked after every successful append.
func (l *Log) SetBroadcast(fn BroadcastFunc) { l.broadcast = fn }

func (l *Log) currentHead() (string, error) {
	var d headDoc
	ok, err := l.store.Read(headPath, &d)
	if err != nil {
		return "", jjerrors.New(jjerrors.CodeStorageReadFailed, err.Error())
	}
	if !ok {
		return "", nil
	}
	return d.Head, nil
}

// canonicalEncoding produces the stable byte encoding hashed into an
// operation's id: every field except the id itself, in field-declaration
// order via struct-tag JSON marshaling.
func canonicalEncoding(op *types.Operation) ([]byte, error) {
	type withoutID struct {
		Timestamp    time.Time           `json:"timestamp"`
		User         types.OperationUser `json:"user"`
		Description  string              `json:"description"`
		Parents      []string            `json:"parents"`
		View         types.View          `json:"view"`
		FileSnapshot map[string]string   `json:"fileSnapshot,omitempty"`
	}
	return json.Marshal(withoutID{
		Timestamp:    op.Timestamp,
		User:         op.User,
		Description:  op.Description,
		Parents:      op.Parents,
		View:         op.View,
		FileSnapshot: op.FileSnapshot,
	})
}

// Record assigns op's operationId by content hash, sets parents to the
// current head, appends the record, and atomically repoints the head.
// The lease serializes appenders across processes: each reads the head
// while holding it, so a second appender chains onto the first's record.
// OperationConflict is returned only when the lease cannot be acquired.
func (l *Log) Record(ctx context.Context, op *types.Operation) (*types.Operation, error) {
	var result *types.Operation
	err := l.lease.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer l.lease.Release()

	head, err := l.currentHead()
	if err != nil {
		return nil, err
	}
	op.Parents = nil
	if head != "" {
		op.Parents = []string{head}
	}

	encoding, err := canonicalEncoding(op)
	if err != nil {
		return nil, jjerrors.Newf(jjerrors.CodeStorageWriteFailed, "encode operation: %v", err)
	}
	op.OperationID = idgen.OperationID(encoding)

	line, err := json.Marshal(op)
	if err != nil {
		return nil, jjerrors.Newf(jjerrors.CodeStorageWriteFailed, "encode operation record: %v", err)
	}
	if err := l.store.AppendLine(logPath, string(line)); err != nil {
		return nil, err
	}
	if err := l.store.Write(headPath, headDoc{Version: 1, Head: op.OperationID}); err != nil {
		return nil, err
	}
	l.head = op.OperationID
	result = op

	if l.broadcast != nil {
		l.broadcast(result)
	}
	return result, nil
}

// Head returns the current head OperationId, or "" if the log is empty.
func (l *Log) Head() (string, error) {
	return l.currentHead()
}

// Get returns a single operation by id.
func (l *Log) Get(id string) (*types.Operation, error) {
	lines, err := l.store.ReadLines(logPath)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		var op types.Operation
		if err := json.Unmarshal([]byte(line), &op); err != nil {
			return nil, jjerrors.Newf(jjerrors.CodeStorageCorrupt, "corrupt operation record: %v", err)
		}
		if op.OperationID == id {
			return &op, nil
		}
	}
	return nil, jjerrors.Newf(jjerrors.CodeNotFound, "operation %s not found", id)
}

// All returns every operation in chronological (oldest-first) order.
func (l *Log) All() ([]*types.Operation, error) {
	lines, err := l.store.ReadLines(logPath)
	if err != nil {
		return nil, err
	}
	ops := make([]*types.Operation, 0, len(lines))
	for _, line := range lines {
		var op types.Operation
		if err := json.Unmarshal([]byte(line), &op); err != nil {
			return nil, jjerrors.Newf(jjerrors.CodeStorageCorrupt, "corrupt operation record: %v", err)
		}
		ops = append(ops, &op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Timestamp.Before(ops[j].Timestamp) })
	return ops, nil
}

// Since returns every operation recorded after lastSeen, oldest first.
// An empty lastSeen returns the full chronological log.
func (l *Log) Since(lastSeen string) ([]*types.Operation, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	if lastSeen == "" {
		return all, nil
	}
	for i, op := range all {
		if op.OperationID == lastSeen {
			return all[i+1:], nil
		}
	}
	return all, nil
}

// Undo reads the current head, derives the previous view from its first
// parent, and records a new operation with description "undo" carrying
// that view forward. Returns the new operation and the view to restore
// into the rest of the repository's stores.
func (l *Log) Undo(ctx context.Context, user types.OperationUser) (*types.Operation, *types.View, error) {
	head, err := l.currentHead()
	if err != nil {
		return nil, nil, err
	}
	if head == "" {
		return nil, nil, jjerrors.New(jjerrors.CodeNotFound, "operation log is empty, nothing to undo")
	}
	current, err := l.Get(head)
	if err != nil {
		return nil, nil, err
	}

	// A run of n consecutive undos at the head means the repository
	// currently shows the view n steps behind the last real operation;
	// this undo steps back once more. Walking past the root restores
	// the empty initial view.
	cursor := current
	steps := 1
	for cursor.Description == "undo" && len(cursor.Parents) > 0 {
		steps++
		cursor, err = l.Get(cursor.Parents[0])
		if err != nil {
			return nil, nil, err
		}
	}

	var previousView types.View
	for ; steps > 0; steps-- {
		if len(cursor.Parents) == 0 {
			cursor = nil
			break
		}
		cursor, err = l.Get(cursor.Parents[0])
		if err != nil {
			return nil, nil, err
		}
	}
	if cursor == nil {
		previousView = types.View{
			Bookmarks:       map[string]string{},
			RemoteBookmarks: map[string]map[string]string{},
		}
	} else {
		previousView = *cursor.View.Clone()
	}

	op := &types.Operation{
		Timestamp:   timeNow(),
		User:        user,
		Description: "undo",
		View:        previousView,
	}
	recorded, err := l.Record(ctx, op)
	if err != nil {
		return nil, nil, err
	}
	return recorded, &previousView, nil
}

// timeNow is indirected so tests can stub it. Undo stamps its operation
// with it; the repository's own clock is not passed down here.
var timeNow = time.Now

// ViewID content-addresses a View: identical views share an id, so
// operations that change nothing observable produce recognizably
// identical snapshots.
func ViewID(v *types.View) (string, error) {
	encoding, err := json.Marshal(v)
	if err != nil {
		return "", jjerrors.Newf(jjerrors.CodeStorageWriteFailed, "encode view: %v", err)
	}
	return idgen.ViewID(encoding), nil
}

// View returns a read-only handle observing the repository state as of
// opID — used for operations.at(opId) time-travel.
func (l *Log) View(opID string) (*types.View, error) {
	op, err := l.Get(opID)
	if err != nil {
		return nil, err
	}
	return op.View.Clone(), nil
}

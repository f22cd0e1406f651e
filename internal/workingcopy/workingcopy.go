// Package workingcopy tracks the file states of the current working
// copy: which change is checked out, and a cheap mtime/size/mode
// fingerprint per tracked file so modifications can be detected without
// hashing content on every call.
package workingcopy

import (
	"path"
	"strings"
	"sync"

	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/storage"
	"github.com/jjcore/jjcore/internal/types"
)

const docPath = "working-copy.json"

type doc struct {
	Version    int                        `json:"version"`
	ChangeID   string                     `json:"changeId"`
	Operation  string                     `json:"operation"`
	FileStates map[string]types.FileState `json:"fileStates"`
}

// StatFunc is how WorkingCopy probes the current on-disk state of a path;
// hosts supply one backed by their filesystem capability.
type StatFunc func(path string) (types.FileState, bool, error)

// WorkingCopy is the persisted working-copy state plus a pluggable way to
// stat files on disk.
type WorkingCopy struct {
	store *storage.Store
	stat  StatFunc

	mu         sync.Mutex
	changeID   string
	operation  string
	fileStates map[string]types.FileState
	dirty      map[string]bool
	loaded     bool
}

// New returns a WorkingCopy backed by s. stat is used by GetModifiedFiles
// and may be nil if the host never calls it.
func New(s *storage.Store, stat StatFunc) *WorkingCopy {
	return &WorkingCopy{
		store:      s,
		stat:       stat,
		fileStates: make(map[string]types.FileState),
		dirty:      make(map[string]bool),
	}
}

// Init sets the initial checked-out change for a freshly created
// repository.
func (w *WorkingCopy) Init(rootChangeID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.changeID = rootChangeID
	w.fileStates = make(map[string]types.FileState)
	w.loaded = true
	return w.save()
}

func (w *WorkingCopy) ensureLoaded() error {
	if w.loaded {
		return nil
	}
	var d doc
	ok, err := w.store.Read(docPath, &d)
	if err != nil {
		return jjerrors.New(jjerrors.CodeStorageReadFailed, err.Error())
	}
	if ok {
		w.changeID = d.ChangeID
		w.operation = d.Operation
		if d.FileStates != nil {
			w.fileStates = d.FileStates
		}
	}
	w.loaded = true
	return nil
}

// Load forces a (re)read from storage, discarding any in-memory state.
func (w *WorkingCopy) Load() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loaded = false
	return w.ensureLoaded()
}

// Save persists the current in-memory state.
func (w *WorkingCopy) Save() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.save()
}

func (w *WorkingCopy) save() error {
	d := doc{Version: 1, ChangeID: w.changeID, Operation: w.operation, FileStates: w.fileStates}
	if err := w.store.Write(docPath, d); err != nil {
		return jjerrors.New(jjerrors.CodeStorageWriteFailed, err.Error())
	}
	return nil
}

// validatePath enforces the shared path rules: relative, no leading
// slash, no ".." segments.
func validatePath(p string) error {
	if p == "" {
		return jjerrors.New(jjerrors.CodeInvalidPath, "path is empty")
	}
	if strings.HasPrefix(p, "/") {
		return jjerrors.Newf(jjerrors.CodeInvalidPath, "path %q must be relative", p)
	}
	clean := path.Clean(p)
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return jjerrors.Newf(jjerrors.CodeInvalidPath, "path %q must not contain ..", p)
		}
	}
	return nil
}

// ValidateMove enforces the move-specific path rule: src must differ
// from dst, both must be valid paths.
func ValidateMove(src, dst string) error {
	if err := validatePath(src); err != nil {
		return err
	}
	if err := validatePath(dst); err != nil {
		return err
	}
	if src == dst {
		return jjerrors.New(jjerrors.CodeInvalidArgument, "move source and destination must differ")
	}
	return nil
}

// ValidatePath exposes the shared path rule to callers outside this
// package (e.g. the repository core's write/remove operations).
func ValidatePath(p string) error { return validatePath(p) }

// CurrentChange returns the ChangeId currently checked out.
func (w *WorkingCopy) CurrentChange() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLoaded(); err != nil {
		return "", err
	}
	return w.changeID, nil
}

// SetCurrentChange repoints the working copy at id. It does not
// materialize files — that is the caller's responsibility.
func (w *WorkingCopy) SetCurrentChange(id, operationID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLoaded(); err != nil {
		return err
	}
	w.changeID = id
	w.operation = operationID
	return w.save()
}

// TrackFile records (or updates) a file's fingerprint.
func (w *WorkingCopy) TrackFile(p string, st types.FileState) error {
	if err := validatePath(p); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLoaded(); err != nil {
		return err
	}
	w.fileStates[p] = st
	return w.save()
}

// UntrackFile removes a file's fingerprint.
func (w *WorkingCopy) UntrackFile(p string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLoaded(); err != nil {
		return err
	}
	delete(w.fileStates, p)
	return w.save()
}

// ListFiles returns every tracked path.
func (w *WorkingCopy) ListFiles() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(w.fileStates))
	for p := range w.fileStates {
		out = append(out, p)
	}
	return out, nil
}

// MarkDirty records that path was observed changing (e.g. by a
// filesystem watcher) so the next DirtyFiles call checks it without
// waiting for a full GetModifiedFiles poll. Untracked paths are ignored.
func (w *WorkingCopy) MarkDirty(p string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.ensureLoaded()
	if _, tracked := w.fileStates[p]; tracked {
		w.dirty[p] = true
	}
}

// DirtyFiles drains the MarkDirty set and returns the tracked paths in
// it whose disk state actually disagrees with the fingerprint (paths
// are confirmed with stat when one is available). This is the cheap
// incremental counterpart to GetModifiedFiles for hosts running a
// filesystem watcher: only the files the watcher reported are checked.
func (w *WorkingCopy) DirtyFiles() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLoaded(); err != nil {
		return nil, err
	}
	dirty := w.dirty
	w.dirty = make(map[string]bool)

	var modified []string
	for p := range dirty {
		tracked, ok := w.fileStates[p]
		if !ok {
			continue
		}
		if w.stat == nil {
			modified = append(modified, p)
			continue
		}
		cur, exists, err := w.stat(p)
		if err != nil {
			return nil, err
		}
		if !exists || cur.Size != tracked.Size || !cur.MTime.Equal(tracked.MTime) {
			modified = append(modified, p)
		}
	}
	return modified, nil
}

// GetModifiedFiles detects files whose disk state disagrees with the
// tracked fingerprint: missing on disk, differing size, or differing
// mtime. No content hashing in this fast path.
func (w *WorkingCopy) GetModifiedFiles() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureLoaded(); err != nil {
		return nil, err
	}
	if w.stat == nil {
		return nil, nil
	}
	var modified []string
	for p, tracked := range w.fileStates {
		cur, ok, err := w.stat(p)
		if err != nil {
			return nil, err
		}
		if !ok {
			modified = append(modified, p)
			continue
		}
		if cur.Size != tracked.Size || !cur.MTime.Equal(tracked.MTime) {
			modified = append(modified, p)
		}
	}
	return modified, nil
}

// SnapshotFiles eagerly reads the content of every tracked file, for
// operations that must later restore working-copy state (e.g. squash,
// absorb). contentReader supplies the content for a path.
func (w *WorkingCopy) SnapshotFiles(contentReader func(path string) (string, error)) (map[string]string, error) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.fileStates))
	for p := range w.fileStates {
		paths = append(paths, p)
	}
	w.mu.Unlock()

	out := make(map[string]string, len(paths))
	for _, p := range paths {
		content, err := contentReader(p)
		if err != nil {
			return nil, err
		}
		out[p] = content
	}
	return out, nil
}

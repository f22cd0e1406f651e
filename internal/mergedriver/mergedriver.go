// Package mergedriver implements the merge-driver registry: pattern-keyed
// registration of merge drivers, exact-path-over-glob resolution, and the
// default three-way fallback a failing driver degrades to.
package mergedriver

import (
	"path"
	"sort"
	"sync"

	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/types"
)

// Input is what a driver receives for one conflicted path.
type Input struct {
	Base      string
	Left      string
	Right     string
	Path      string
	Ancestors []string
}

// Output is what a driver must produce.
type Output struct {
	Content     string
	HasConflict bool
}

// Driver is a pure merge function. If it panics or returns an error, the
// registry falls back to the default three-way merge.
type Driver func(Input) (Output, error)

type entry struct {
	pattern  string
	isGlob   bool
	order    int
	native   Driver
	wasmImpl *wasmDriver
}

// Registry is the MergeDriverRegistry.
type Registry struct {
	mu      sync.RWMutex
	byExact map[string]*entry
	globs   []*entry
	seq     int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byExact: make(map[string]*entry)}
}

// isGlobPattern reports whether a pattern contains glob metacharacters.
func isGlobPattern(pattern string) bool {
	for _, r := range pattern {
		switch r {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

// Register adds a native Go driver for pattern. Exact (non-glob) paths
// always win over glob matches regardless of registration order; among
// globs, registration order decides.
func (r *Registry) Register(pattern string, d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e := &entry{pattern: pattern, isGlob: isGlobPattern(pattern), order: r.seq, native: d}
	if e.isGlob {
		r.globs = append(r.globs, e)
		return
	}
	r.byExact[pattern] = e
}

// Unregister removes any driver registered under pattern.
func (r *Registry) Unregister(pattern string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byExact, pattern)
	kept := r.globs[:0]
	for _, e := range r.globs {
		if e.pattern != pattern {
			kept = append(kept, e)
		}
	}
	r.globs = kept
}

// Get resolves the driver registered for path, or nil if none matches.
func (r *Registry) Get(p string) Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byExact[p]; ok {
		return e.driverFunc()
	}
	sorted := append([]*entry(nil), r.globs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].order < sorted[j].order })
	for _, e := range sorted {
		if ok, _ := path.Match(e.pattern, p); ok {
			return e.driverFunc()
		}
	}
	return nil
}

func (e *entry) driverFunc() Driver {
	if e.native != nil {
		return e.native
	}
	if e.wasmImpl != nil {
		return e.wasmImpl.invoke
	}
	return nil
}

// Merge resolves and invokes the driver for path, falling back to the
// default three-way merge if no driver is registered or the driver fails.
func (r *Registry) Merge(in Input) Output {
	d := r.Get(in.Path)
	if d == nil {
		return DefaultMerge(in)
	}
	out, err := safeInvoke(d, in)
	if err != nil {
		return DefaultMerge(in)
	}
	return out
}

// safeInvoke calls d, converting a panic into an error so a misbehaving
// driver degrades to the default merge instead of taking down the caller.
func safeInvoke(d Driver, in Input) (out Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = jjerrors.Newf(jjerrors.CodeMergeError, "merge driver panicked: %v", r)
		}
	}()
	return d(in)
}

// DefaultMerge performs the baseline three-way merge: identical sides (or
// one unchanged side) resolve cleanly, otherwise it produces a content
// conflict rendered with standard markers.
func DefaultMerge(in Input) Output {
	switch {
	case in.Left == in.Right:
		return Output{Content: in.Left, HasConflict: false}
	case in.Left == in.Base:
		return Output{Content: in.Right, HasConflict: false}
	case in.Right == in.Base:
		return Output{Content: in.Left, HasConflict: false}
	default:
		sides := types.ConflictSides{Base: in.Base, Left: in.Left, Right: in.Right}
		return Output{Content: renderConflict(sides), HasConflict: true}
	}
}

func renderConflict(sides types.ConflictSides) string {
	return "<<<<<<< ours\n" + sides.Left + "\n||||||| base\n" + sides.Base + "\n=======\n" + sides.Right + "\n>>>>>>> theirs\n"
}

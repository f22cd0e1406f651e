// Package watch provides optional filesystem watching for the working
// copy: hosts attach a Watcher to learn about edits as the OS reports
// them instead of waiting for the next modified-files poll. Purely
// additive — the working copy's synchronous mtime/size check remains the
// source of truth.
package watch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp is the kind of filesystem operation observed.
type EventOp int

const (
	// OpCreate indicates a new file appeared.
	OpCreate EventOp = iota
	// OpModify indicates an existing file changed.
	OpModify
	// OpDelete indicates a file disappeared.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one working-copy file event, with Path relative to the
// watched root.
type Event struct {
	Path string
	Op   EventOp
}

// Watcher watches a working-copy root directory and emits Events for
// file changes directly inside it, skipping the metadata directory.
// Subdirectories are not watched.
type Watcher struct {
	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	root    string
	skipDir string
}

// New creates a Watcher. Start must be called before events flow.
func New() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		watcher: fw,
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching root. skipDir names a subdirectory (typically
// the repository's metadata directory) whose events are ignored.
func (w *Watcher) Start(root, skipDir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	w.root = root
	w.skipDir = skipDir

	if err := w.watcher.Add(root); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and closes the event channels. Blocks until the
// processing goroutine has exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel emitting file events. Closed on Stop.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the channel emitting watcher errors. Closed on Stop.
func (w *Watcher) Errors() <-chan error { return w.errors }

// IsRunning reports whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev, ok := w.convertEvent(event); ok {
				select {
				case w.events <- ev:
				case <-w.done:
					return
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event into a working-copy Event, or
// drops it (metadata directory, chmod-only noise, unresolvable paths).
func (w *Watcher) convertEvent(event fsnotify.Event) (Event, bool) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return Event{}, false
	}
	rel = filepath.ToSlash(rel)
	if w.skipDir != "" && (rel == w.skipDir || strings.HasPrefix(rel, w.skipDir+"/")) {
		return Event{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		// A rename shows up as delete here; the new name triggers its
		// own create event.
		op = OpDelete
	default:
		return Event{}, false
	}

	return Event{Path: rel, Op: op}, true
}

// Package conflict implements the conflict model: three-way detection,
// persisted storage, resolution strategies, and marker rendering/parsing.
package conflict

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/storage"
	"github.com/jjcore/jjcore/internal/types"
)

// globMatch matches p against a shell glob pattern, treating path
// separators like path.Match does.
func globMatch(pattern, p string) (bool, error) {
	ok, err := path.Match(pattern, p)
	if err != nil {
		return false, jjerrors.Newf(jjerrors.CodeInvalidArgument, "invalid glob pattern %q: %v", pattern, err)
	}
	return ok, nil
}

const docPath = "conflicts.json"

type doc struct {
	Version       int                        `json:"version"`
	Conflicts     map[string]*types.Conflict `json:"conflicts"`
	FileConflicts map[string]string          `json:"fileConflicts"`
}

// Model is the persisted conflict model.
type Model struct {
	store *storage.Store

	mu            sync.Mutex
	conflicts     map[string]*types.Conflict
	fileConflicts map[string]string
	counter       int
	loaded        bool
}

// ConflictedChanges returns the set of ChangeIds hosting at least one
// unresolved conflict, for the revset engine's conflicted() predicate.
func (m *Model) ConflictedChanges() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.ensureLoaded()
	out := make(map[string]bool)
	for _, c := range m.conflicts {
		if !c.Resolved && c.ChangeID != "" {
			out[c.ChangeID] = true
		}
	}
	return out
}

// New returns a Model backed by s.
func New(s *storage.Store) *Model {
	return &Model{
		store:         s,
		conflicts:     make(map[string]*types.Conflict),
		fileConflicts: make(map[string]string),
	}
}

func (m *Model) ensureLoaded() error {
	if m.loaded {
		return nil
	}
	var d doc
	ok, err := m.store.Read(docPath, &d)
	if err != nil {
		return jjerrors.New(jjerrors.CodeStorageReadFailed, err.Error())
	}
	if ok {
		if d.Conflicts != nil {
			m.conflicts = d.Conflicts
		}
		if d.FileConflicts != nil {
			m.fileConflicts = d.FileConflicts
		}
		m.counter = len(m.conflicts)
	}
	m.loaded = true
	return nil
}

func (m *Model) save() error {
	d := doc{Version: 1, Conflicts: m.conflicts, FileConflicts: m.fileConflicts}
	if err := m.store.Write(docPath, d); err != nil {
		return jjerrors.New(jjerrors.CodeStorageWriteFailed, err.Error())
	}
	return nil
}

// Detect performs a three-way comparison of base/left/right content for a
// path and returns the resulting Conflict, or nil if there is none.
func Detect(path string, sides types.ConflictSides, baseExists, leftExists, rightExists bool) *types.Conflict {
	switch {
	case !baseExists && leftExists && rightExists:
		if sides.Left == sides.Right {
			return nil
		}
		return &types.Conflict{Path: path, Type: types.ConflictAddAdd, Sides: sides}
	case baseExists && !leftExists && rightExists:
		if sides.Base == sides.Right {
			return nil
		}
		return &types.Conflict{Path: path, Type: types.ConflictDeleteModify, Sides: sides}
	case baseExists && leftExists && !rightExists:
		if sides.Base == sides.Left {
			return nil
		}
		return &types.Conflict{Path: path, Type: types.ConflictModifyDelete, Sides: sides}
	case baseExists && leftExists && rightExists:
		leftChanged := sides.Left != sides.Base
		rightChanged := sides.Right != sides.Base
		if !leftChanged || !rightChanged {
			return nil
		}
		if sides.Left == sides.Right {
			return nil
		}
		return &types.Conflict{Path: path, Type: types.ConflictContent, Sides: sides}
	default:
		return nil
	}
}

// Record stores a freshly detected conflict, assigning it a fresh
// conflictId.
func (m *Model) Record(c *types.Conflict) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(); err != nil {
		return "", err
	}
	m.counter++
	id := fmt.Sprintf("conflict-%d", m.counter)
	c.ConflictID = id
	m.conflicts[id] = c
	m.fileConflicts[c.Path] = id
	return id, m.save()
}

// Get returns a conflict by id.
func (m *Model) Get(id string) (*types.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(); err != nil {
		return nil, err
	}
	c, ok := m.conflicts[id]
	if !ok {
		return nil, jjerrors.Newf(jjerrors.CodeNotFound, "conflict %s not found", id)
	}
	return c, nil
}

// ForPath returns the conflict currently bound to a path, if any.
func (m *Model) ForPath(path string) (*types.Conflict, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.ensureLoaded()
	id, ok := m.fileConflicts[path]
	if !ok {
		return nil, false
	}
	return m.conflicts[id], true
}

// Unresolved returns every unresolved conflict, sorted by conflictId.
func (m *Model) Unresolved() []*types.Conflict {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.ensureLoaded()
	var out []*types.Conflict
	for _, c := range m.conflicts {
		if !c.Resolved {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConflictID < out[j].ConflictID })
	return out
}

// All returns every conflict regardless of resolution state.
func (m *Model) All() []*types.Conflict {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.ensureLoaded()
	var out []*types.Conflict
	for _, c := range m.conflicts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConflictID < out[j].ConflictID })
	return out
}

// Clear removes the conflict bound to a path (used when a change is
// rewritten in a way that removes the conflict).
func (m *Model) Clear(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(); err != nil {
		return err
	}
	id, ok := m.fileConflicts[path]
	if !ok {
		return nil
	}
	delete(m.fileConflicts, path)
	delete(m.conflicts, id)
	return m.save()
}

// ResolutionInput is the union of resolution shapes resolve() accepts:
// manual content, a side pick, or explicit content.
type ResolutionInput struct {
	Content string // manual or explicit content
	Side    string // "ours" | "theirs" | "base"
}

// Resolve settles a single conflict.
func (m *Model) Resolve(id string, in ResolutionInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(); err != nil {
		return err
	}
	c, ok := m.conflicts[id]
	if !ok {
		return jjerrors.Newf(jjerrors.CodeNotFound, "conflict %s not found", id)
	}
	content, kind, err := resolveContent(c, in)
	if err != nil {
		return err
	}
	c.Resolved = true
	c.Resolution = &types.ConflictResolution{Kind: kind, Content: content}
	if m.fileConflicts[c.Path] == id {
		delete(m.fileConflicts, c.Path)
	}
	return m.save()
}

func resolveContent(c *types.Conflict, in ResolutionInput) (content, kind string, err error) {
	switch in.Side {
	case "ours":
		return c.Sides.Left, "side", nil
	case "theirs":
		return c.Sides.Right, "side", nil
	case "base":
		return c.Sides.Base, "side", nil
	case "":
		return in.Content, "manual", nil
	default:
		return "", "", jjerrors.Newf(jjerrors.CodeInvalidArgument, "unknown resolution side %q", in.Side)
	}
}

// ResolveAllStrategy names a resolveAll batch strategy.
type ResolveAllStrategy string

const (
	StrategyOurs   ResolveAllStrategy = "ours"
	StrategyTheirs ResolveAllStrategy = "theirs"
	StrategyUnion  ResolveAllStrategy = "union"
	StrategyDriver ResolveAllStrategy = "driver"
)

// DriverFunc resolves a conflict via a registered merge driver; the
// registry itself lives in internal/mergedriver to avoid an import cycle.
type DriverFunc func(path string, sides types.ConflictSides) (content string, hasConflict bool, err error)

// ResolveAll applies strategy to every unresolved conflict whose path
// matches the optional glob filter. Unmatched or unresolvable conflicts
// remain untouched.
func (m *Model) ResolveAll(strategy ResolveAllStrategy, pathGlob string, driver DriverFunc) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(); err != nil {
		return nil, err
	}
	var resolvedIDs []string
	for id, c := range m.conflicts {
		if c.Resolved {
			continue
		}
		if pathGlob != "" {
			matched, err := globMatch(pathGlob, c.Path)
			if err != nil {
				return nil, err
			}
			if !matched {
				continue
			}
		}
		var content string
		var kind string
		switch strategy {
		case StrategyOurs:
			content, kind = c.Sides.Left, "side"
		case StrategyTheirs:
			content, kind = c.Sides.Right, "side"
		case StrategyUnion:
			content, kind = unionMerge(c.Sides.Left, c.Sides.Right), "content"
		case StrategyDriver:
			if driver == nil {
				continue
			}
			out, hasConflict, err := driver(c.Path, c.Sides)
			if err != nil || hasConflict {
				continue
			}
			content, kind = out, "driver"
		default:
			return nil, jjerrors.Newf(jjerrors.CodeInvalidArgument, "unknown resolveAll strategy %q", strategy)
		}
		c.Resolved = true
		c.Resolution = &types.ConflictResolution{Kind: kind, Content: content}
		if m.fileConflicts[c.Path] == id {
			delete(m.fileConflicts, c.Path)
		}
		resolvedIDs = append(resolvedIDs, id)
	}
	if len(resolvedIDs) > 0 {
		if err := m.save(); err != nil {
			return nil, err
		}
	}
	sort.Strings(resolvedIDs)
	return resolvedIDs, nil
}

// unionMerge concatenates left's lines in order, then right's lines that
// aren't already present.
func unionMerge(left, right string) string {
	seen := make(map[string]bool)
	var out []string
	for _, line := range strings.Split(left, "\n") {
		if !seen[line] {
			seen[line] = true
			out = append(out, line)
		}
	}
	for _, line := range strings.Split(right, "\n") {
		if !seen[line] {
			seen[line] = true
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

const (
	markerOursOpen  = "<<<<<<< ours"
	markerBase      = "||||||| base"
	markerSeparator = "======="
	markerTheirs    = ">>>>>>> theirs"
)

// RenderMarkers produces the standard three-way conflict-marker text for
// a path's sides.
func RenderMarkers(sides types.ConflictSides) string {
	var b strings.Builder
	b.WriteString(markerOursOpen + "\n")
	b.WriteString(sides.Left)
	if !strings.HasSuffix(sides.Left, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(markerBase + "\n")
	b.WriteString(sides.Base)
	if !strings.HasSuffix(sides.Base, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(markerSeparator + "\n")
	b.WriteString(sides.Right)
	if !strings.HasSuffix(sides.Right, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(markerTheirs + "\n")
	return b.String()
}

// ParseMarkers extracts {base,left,right} from marker text the user
// edited by hand. Returns ok=false if no markers are found.
func ParseMarkers(text string) (sides types.ConflictSides, ok bool) {
	lines := strings.Split(text, "\n")
	var section int // 0=none,1=left,2=base,3=right
	var left, base, right []string
	found := false
	for _, line := range lines {
		switch line {
		case markerOursOpen:
			section = 1
			found = true
			continue
		case markerBase:
			section = 2
			continue
		case markerSeparator:
			section = 3
			continue
		case markerTheirs:
			section = 0
			continue
		}
		switch section {
		case 1:
			left = append(left, line)
		case 2:
			base = append(base, line)
		case 3:
			right = append(right, line)
		}
	}
	if !found {
		return types.ConflictSides{}, false
	}
	return types.ConflictSides{
		Base:  strings.Join(base, "\n"),
		Left:  strings.Join(left, "\n"),
		Right: strings.Join(right, "\n"),
	}, true
}

// Package changegraph maintains the in-memory index of Changes backing a
// repository: the node map, the commit-id index, and graph traversals
// (parents, children, ancestors, descendants). It persists itself to a
// single versioned document and enforces the data model's referential
// invariants on every write.
package changegraph

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jjcore/jjcore/internal/idgen"
	"github.com/jjcore/jjcore/internal/jjerrors"
	"github.com/jjcore/jjcore/internal/storage"
	"github.com/jjcore/jjcore/internal/types"
)

const docPath = "graph.json"

type graphDoc struct {
	Version int                      `json:"version"`
	Changes map[string]*types.Change `json:"changes"`
}

// Graph is the in-memory ChangeGraph index over the persisted graph
// document.
type Graph struct {
	store *storage.Store

	mu       sync.Mutex
	nodes    map[string]*types.Change
	byCommit map[string]string
	loaded   bool
}

// New returns a Graph backed by store. The document is loaded lazily on
// first access.
func New(store *storage.Store) *Graph {
	return &Graph{
		store:    store,
		nodes:    make(map[string]*types.Change),
		byCommit: make(map[string]string),
	}
}

func (g *Graph) ensureLoaded() error {
	if g.loaded {
		return nil
	}
	var raw json.RawMessage
	ok, err := g.store.Read(docPath, &raw)
	if err != nil {
		return jjerrors.New(jjerrors.CodeStorageReadFailed, err.Error())
	}
	if !ok {
		g.loaded = true
		return nil
	}
	if err := storage.CheckVersion(docPath, raw, 1); err != nil {
		return jjerrors.New(jjerrors.CodeStorageVersionMismatch, err.Error())
	}
	var doc graphDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return jjerrors.New(jjerrors.CodeStorageCorrupt, err.Error())
	}
	for id, c := range doc.Changes {
		g.nodes[id] = c
		if c.CommitID != "" && c.CommitID != idgen.ZeroCommitID {
			g.byCommit[c.CommitID] = id
		}
	}
	g.loaded = true
	return nil
}

func (g *Graph) save() error {
	doc := graphDoc{Version: 1, Changes: g.nodes}
	if err := g.store.Write(docPath, doc); err != nil {
		return jjerrors.New(jjerrors.CodeStorageWriteFailed, err.Error())
	}
	return nil
}

// Add inserts a brand-new Change. Every parent must already exist in the
// graph and the change must not already be present.
func (g *Graph) Add(c *types.Change) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureLoaded(); err != nil {
		return err
	}
	if _, exists := g.nodes[c.ChangeID]; exists {
		return jjerrors.Newf(jjerrors.CodeChangeExists, "change %s already exists", c.ChangeID)
	}
	for _, p := range c.Parents {
		if p == c.ChangeID {
			return jjerrors.Newf(jjerrors.CodeInvalidArgument, "change %s cannot be its own parent", c.ChangeID)
		}
		if _, ok := g.nodes[p]; !ok {
			return jjerrors.Newf(jjerrors.CodeChangeNotFound, "parent %s of %s does not exist", p, c.ChangeID)
		}
	}
	if err := g.checkNoCycle(c.ChangeID, c.Parents); err != nil {
		return err
	}
	g.nodes[c.ChangeID] = c
	if c.CommitID != "" && c.CommitID != idgen.ZeroCommitID {
		g.byCommit[c.CommitID] = c.ChangeID
	}
	return g.save()
}

// Update replaces an existing Change in place, re-validating parent
// references and atomically swapping the commit index.
func (g *Graph) Update(c *types.Change) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureLoaded(); err != nil {
		return err
	}
	old, ok := g.nodes[c.ChangeID]
	if !ok {
		return jjerrors.Newf(jjerrors.CodeChangeNotFound, "change %s does not exist", c.ChangeID)
	}
	for _, p := range c.Parents {
		if p == c.ChangeID {
			return jjerrors.Newf(jjerrors.CodeInvalidArgument, "change %s cannot be its own parent", c.ChangeID)
		}
		if _, ok := g.nodes[p]; !ok {
			return jjerrors.Newf(jjerrors.CodeChangeNotFound, "parent %s of %s does not exist", p, c.ChangeID)
		}
	}
	if err := g.checkNoCycle(c.ChangeID, c.Parents); err != nil {
		return err
	}
	if len(old.Predecessors) > len(c.Predecessors) {
		return jjerrors.New(jjerrors.CodeInvalidArgument, "predecessors list is append-only")
	}

	if old.CommitID != "" && old.CommitID != idgen.ZeroCommitID {
		delete(g.byCommit, old.CommitID)
	}
	g.nodes[c.ChangeID] = c
	if c.CommitID != "" && c.CommitID != idgen.ZeroCommitID {
		g.byCommit[c.CommitID] = c.ChangeID
	}
	return g.save()
}

// checkNoCycle walks from each candidate parent up through the existing
// graph, failing if it ever reaches id (which would close a cycle once
// the new edge id->parent is added).
func (g *Graph) checkNoCycle(id string, parents []string) error {
	visited := make(map[string]bool)
	var walk func(string) error
	walk = func(cur string) error {
		if cur == id {
			return jjerrors.Newf(jjerrors.CodeInvalidArgument, "parent edge would create a cycle through %s", id)
		}
		if visited[cur] {
			return nil
		}
		visited[cur] = true
		c, ok := g.nodes[cur]
		if !ok {
			return nil
		}
		for _, p := range c.Parents {
			if err := walk(p); err != nil {
				return err
			}
		}
		return nil
	}
	for _, p := range parents {
		if err := walk(p); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the Change for id, or a CHANGE_NOT_FOUND error.
func (g *Graph) Get(id string) (*types.Change, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureLoaded(); err != nil {
		return nil, err
	}
	c, ok := g.nodes[id]
	if !ok {
		return nil, jjerrors.Newf(jjerrors.CodeChangeNotFound, "change %s not found", id)
	}
	return c, nil
}


// FindByCommit resolves a CommitId to its owning ChangeId.
func (g *Graph) FindByCommit(commitID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.ensureLoaded()
	id, ok := g.byCommit[commitID]
	return id, ok
}

// Parents returns the direct parent ChangeIds of id.
func (g *Graph) Parents(id string) ([]string, error) {
	c, err := g.Get(id)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), c.Parents...), nil
}

// Children returns every ChangeId that lists id as a parent (linear scan).
func (g *Graph) Children(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.ensureLoaded()
	var out []string
	for cid, c := range g.nodes {
		for _, p := range c.Parents {
			if p == id {
				out = append(out, cid)
				break
			}
		}
	}
	return out
}

// Ancestors returns every ChangeId reachable from id by following parent
// edges (BFS), excluding id itself.
func (g *Graph) Ancestors(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.ensureLoaded()
	return g.bfsUp(id)
}

func (g *Graph) bfsUp(start string) []string {
	seen := map[string]bool{start: true}
	queue := []string{start}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		c, ok := g.nodes[cur]
		if !ok {
			continue
		}
		for _, p := range c.Parents {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
				queue = append(queue, p)
			}
		}
	}
	return out
}

// Descendants returns every ChangeId reachable from id by following child
// edges (BFS), excluding id itself.
func (g *Graph) Descendants(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.ensureLoaded()
	return g.bfsDown(id)
}

func (g *Graph) bfsDown(start string) []string {
	childIndex := make(map[string][]string, len(g.nodes))
	for cid, c := range g.nodes {
		for _, p := range c.Parents {
			childIndex[p] = append(childIndex[p], cid)
		}
	}
	seen := map[string]bool{start: true}
	queue := []string{start}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range childIndex[cur] {
			if !seen[child] {
				seen[child] = true
				out = append(out, child)
				queue = append(queue, child)
			}
		}
	}
	return out
}

// All returns every ChangeId currently in the graph, visible or abandoned.
func (g *Graph) All() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.ensureLoaded()
	out := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	return out
}

// Exists reports whether id is present in the graph.
func (g *Graph) Exists(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.ensureLoaded()
	_, ok := g.nodes[id]
	return ok
}

// Snapshot returns a defensive copy of every Change in the graph, keyed
// by ChangeId — used by the revset evaluator so it sees a consistent view
// even if the graph mutates during evaluation.
func (g *Graph) Snapshot() map[string]*types.Change {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.ensureLoaded()
	out := make(map[string]*types.Change, len(g.nodes))
	for id, c := range g.nodes {
		out[id] = c.Clone()
	}
	return out
}

// NewChangeID mints a fresh, graph-unique ChangeId.
func (g *Graph) NewChangeID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.ensureLoaded()
	for i := 0; i < 8; i++ {
		id, err := idgen.ChangeID()
		if err != nil {
			return "", err
		}
		if _, exists := g.nodes[id]; !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("changegraph: exhausted retries generating a unique change id")
}

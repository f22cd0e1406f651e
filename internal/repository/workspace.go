package repository

import (
	"context"
	"sort"

	"github.com/jjcore/jjcore/internal/jjerrors"
)

const workspacesDoc = "workspaces.json"

// Workspace is one of possibly several working-copy directories sharing
// this repository's object store and operation log. The default
// workspace is the repository's own directory.
type Workspace struct {
	Name     string `json:"name"`
	Dir      string `json:"dir"`
	ChangeID string `json:"changeId"`
}

type workspacesFile struct {
	Version    int                   `json:"version"`
	Workspaces map[string]*Workspace `json:"workspaces"`
}

func (r *Repository) readWorkspaces() (*workspacesFile, error) {
	var doc workspacesFile
	ok, err := r.store.Read(workspacesDoc, &doc)
	if err != nil {
		return nil, jjerrors.New(jjerrors.CodeStorageReadFailed, err.Error())
	}
	if !ok {
		return &workspacesFile{Version: 1, Workspaces: make(map[string]*Workspace)}, nil
	}
	if doc.Workspaces == nil {
		doc.Workspaces = make(map[string]*Workspace)
	}
	return &doc, nil
}

// AddWorkspace registers a new working-copy directory checked out at the
// current change. Only the registration is recorded; nothing is written
// to the directory.
func (r *Repository) AddWorkspace(ctx context.Context, name, dir string) (*Workspace, error) {
	if name == "" || dir == "" {
		return nil, jjerrors.New(jjerrors.CodeInvalidArgument, "workspace name and dir are required")
	}
	var result *Workspace
	err := r.withMutation(ctx, "add workspace "+name, func() error {
		doc, err := r.readWorkspaces()
		if err != nil {
			return err
		}
		if _, exists := doc.Workspaces[name]; exists {
			return jjerrors.Newf(jjerrors.CodeInvalidArgument, "workspace %q already exists", name)
		}
		cur, err := r.wc.CurrentChange()
		if err != nil {
			return err
		}
		ws := &Workspace{Name: name, Dir: dir, ChangeID: cur}
		doc.Workspaces[name] = ws
		if err := r.store.Write(workspacesDoc, doc); err != nil {
			return jjerrors.New(jjerrors.CodeStorageWriteFailed, err.Error())
		}
		result = ws
		return nil
	})
	return result, err
}

// ForgetWorkspace removes a workspace registration. Files in its
// directory are left alone.
func (r *Repository) ForgetWorkspace(ctx context.Context, name string) error {
	return r.withMutation(ctx, "forget workspace "+name, func() error {
		doc, err := r.readWorkspaces()
		if err != nil {
			return err
		}
		if _, exists := doc.Workspaces[name]; !exists {
			return jjerrors.Newf(jjerrors.CodeNotFound, "workspace %q not found", name)
		}
		delete(doc.Workspaces, name)
		if err := r.store.Write(workspacesDoc, doc); err != nil {
			return jjerrors.New(jjerrors.CodeStorageWriteFailed, err.Error())
		}
		return nil
	})
}

// ListWorkspaces returns every registered workspace, sorted by name.
func (r *Repository) ListWorkspaces() ([]*Workspace, error) {
	doc, err := r.readWorkspaces()
	if err != nil {
		return nil, err
	}
	out := make([]*Workspace, 0, len(doc.Workspaces))
	for _, ws := range doc.Workspaces {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdateWorkspaceChange repoints a workspace at a change, recording the
// operation. The default working copy uses Edit; this is the secondary
// workspaces' counterpart.
func (r *Repository) UpdateWorkspaceChange(ctx context.Context, name, changeID string) error {
	return r.withMutation(ctx, "update workspace "+name, func() error {
		if _, err := r.requireChange(changeID); err != nil {
			return err
		}
		doc, err := r.readWorkspaces()
		if err != nil {
			return err
		}
		ws, exists := doc.Workspaces[name]
		if !exists {
			return jjerrors.Newf(jjerrors.CodeNotFound, "workspace %q not found", name)
		}
		ws.ChangeID = changeID
		if err := r.store.Write(workspacesDoc, doc); err != nil {
			return jjerrors.New(jjerrors.CodeStorageWriteFailed, err.Error())
		}
		return nil
	})
}

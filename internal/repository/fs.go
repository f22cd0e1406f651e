package repository

import (
	"os"
	"path/filepath"
	"time"

	"github.com/jjcore/jjcore/internal/types"
)

// FS is the filesystem capability the repository talks to for
// materializing and reading working-copy files. It mirrors the external
// interface's fs capability (readFile/writeFile/mkdir/readdir/stat/
// unlink/rename); Go's synchronous calls stand in for the source's async
// ones since this core suspends at I/O edges rather than modeling
// explicit promises.
type FS interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Mkdir(path string) error
	ReadDir(path string) ([]string, error)
	Stat(path string) (types.FileState, bool, error)
	Remove(path string) error
	Rename(oldPath, newPath string) error
}

// osFS implements FS against the real filesystem, rooted at dir.
type osFS struct {
	root string
}

// NewOSFS returns an FS backed by the real filesystem at root.
func NewOSFS(root string) FS { return &osFS{root: root} }

func (f *osFS) abs(p string) string { return filepath.Join(f.root, p) }

func (f *osFS) ReadFile(p string) ([]byte, error) { return os.ReadFile(f.abs(p)) }

func (f *osFS) WriteFile(p string, data []byte) error {
	full := f.abs(p)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

func (f *osFS) Mkdir(p string) error { return os.MkdirAll(f.abs(p), 0o755) }

func (f *osFS) ReadDir(p string) ([]string, error) {
	entries, err := os.ReadDir(f.abs(p))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out, nil
}

func (f *osFS) Stat(p string) (types.FileState, bool, error) {
	info, err := os.Stat(f.abs(p))
	if err != nil {
		if os.IsNotExist(err) {
			return types.FileState{}, false, nil
		}
		return types.FileState{}, false, err
	}
	return types.FileState{
		MTime: info.ModTime(),
		Size:  info.Size(),
		Mode:  uint32(info.Mode().Perm()),
	}, true, nil
}

func (f *osFS) Remove(p string) error { return os.Remove(f.abs(p)) }

func (f *osFS) Rename(oldPath, newPath string) error {
	full := f.abs(newPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.Rename(f.abs(oldPath), full)
}

// MemFS is an in-memory FS used by tests.
type MemFS struct {
	files map[string][]byte
	mtime map[string]time.Time
	seq   int64
}

// NewMemFS returns an empty in-memory filesystem.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte), mtime: make(map[string]time.Time)}
}

func (f *MemFS) ReadFile(p string) ([]byte, error) {
	data, ok := f.files[p]
	if !ok {
		return nil, os.ErrNotExist
	}
	return append([]byte(nil), data...), nil
}

func (f *MemFS) WriteFile(p string, data []byte) error {
	f.files[p] = append([]byte(nil), data...)
	f.seq++
	f.mtime[p] = time.Unix(0, f.seq)
	return nil
}

func (f *MemFS) Mkdir(p string) error { return nil }

func (f *MemFS) ReadDir(p string) ([]string, error) {
	var out []string
	prefix := p
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	for name := range f.files {
		if prefix == "" || len(name) > len(prefix) && name[:len(prefix)] == prefix {
			out = append(out, name)
		}
	}
	return out, nil
}

func (f *MemFS) Stat(p string) (types.FileState, bool, error) {
	data, ok := f.files[p]
	if !ok {
		return types.FileState{}, false, nil
	}
	return types.FileState{MTime: f.mtime[p], Size: int64(len(data)), Mode: 0o644}, true, nil
}

func (f *MemFS) Remove(p string) error {
	if _, ok := f.files[p]; !ok {
		return os.ErrNotExist
	}
	delete(f.files, p)
	delete(f.mtime, p)
	return nil
}

func (f *MemFS) Rename(oldPath, newPath string) error {
	data, ok := f.files[oldPath]
	if !ok {
		return os.ErrNotExist
	}
	f.files[newPath] = data
	f.mtime[newPath] = f.mtime[oldPath]
	delete(f.files, oldPath)
	delete(f.mtime, oldPath)
	return nil
}

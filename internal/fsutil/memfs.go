package fsutil

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	errNotDir   = errors.New("not a directory")
	errNotEmpty = errors.New("directory not empty")
)

// MemoryFileSystem keeps a flat map of cleaned paths to nodes. Directories
// must exist before files are written into them, as on disk; "/" and "."
// always exist.
type MemoryFileSystem struct {
	mu     sync.RWMutex
	nodes  map[string]*node
	writes int
}

var _ FileSystem = (*MemoryFileSystem)(nil)

// node is a file when dir is false.
type node struct {
	dir  bool
	data []byte
	perm os.FileMode
}

func (n *node) info(name string) fs.FileInfo {
	st := nodeStat{name: filepath.Base(name), size: int64(len(n.data)), mode: n.perm}
	if n.dir {
		st.mode = fs.ModeDir | 0755
		st.size = 0
	}
	return st
}

func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{nodes: map[string]*node{}}
}

// WriteCount is the number of successful WriteFile calls. Tests use it to
// show that a skipped unit wrote nothing.
func (m *MemoryFileSystem) WriteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// lookup returns the node at a cleaned path. Caller holds m.mu.
func (m *MemoryFileSystem) lookup(p string) (*node, bool) {
	if p == "/" || p == "." {
		return &node{dir: true}, true
	}
	n, ok := m.nodes[p]
	return n, ok
}

func (m *MemoryFileSystem) isDir(p string) bool {
	n, ok := m.lookup(p)
	return ok && n.dir
}

func (m *MemoryFileSystem) file(op, name string) (*node, string, error) {
	p := filepath.Clean(name)
	n, ok := m.lookup(p)
	if !ok || n.dir {
		return nil, p, &fs.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
	}
	return n, p, nil
}

func (m *MemoryFileSystem) Open(name string) (fs.File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, p, err := m.file("open", name)
	if err != nil {
		return nil, err
	}
	data := bytes.Clone(n.data)
	return &openFile{Reader: bytes.NewReader(data), info: n.info(p)}, nil
}

func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, _, err := m.file("read", name)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(n.data), nil
}

func (m *MemoryFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := filepath.Clean(name)
	if !m.isDir(filepath.Dir(p)) {
		return &fs.PathError{Op: "write", Path: p, Err: fs.ErrNotExist}
	}
	if m.isDir(p) {
		return &fs.PathError{Op: "write", Path: p, Err: fs.ErrExist}
	}
	m.nodes[p] = &node{data: bytes.Clone(data), perm: perm}
	m.writes++
	return nil
}

func (m *MemoryFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dir := filepath.Clean(name)
	if !m.isDir(dir) {
		return nil, &fs.PathError{Op: "readdir", Path: dir, Err: fs.ErrNotExist}
	}
	var out []fs.DirEntry
	for p, n := range m.nodes {
		if p != dir && filepath.Dir(p) == dir {
			out = append(out, fs.FileInfoToDirEntry(n.info(p)))
		}
	}
	slices.SortFunc(out, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
	return out, nil
}

func (m *MemoryFileSystem) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := filepath.Clean(name)
	n, ok := m.lookup(p)
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: p, Err: fs.ErrNotExist}
	}
	return n.info(p), nil
}

func (m *MemoryFileSystem) MkdirAll(dir string, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := filepath.Clean(dir); p != "/" && p != "."; p = filepath.Dir(p) {
		if n, ok := m.nodes[p]; ok {
			if !n.dir {
				return &fs.PathError{Op: "mkdir", Path: p, Err: errNotDir}
			}
			continue
		}
		m.nodes[p] = &node{dir: true}
	}
	return nil
}

// Rename moves a file only; directory renames are not needed here.
func (m *MemoryFileSystem) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, to := filepath.Clean(oldpath), filepath.Clean(newpath)
	n, ok := m.nodes[from]
	if !ok || n.dir || !m.isDir(filepath.Dir(to)) || m.isDir(to) {
		return &os.LinkError{Op: "rename", Old: from, New: to, Err: fs.ErrNotExist}
	}
	delete(m.nodes, from)
	m.nodes[to] = n
	return nil
}

func (m *MemoryFileSystem) Link(oldname, newname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, to := filepath.Clean(oldname), filepath.Clean(newname)
	n, ok := m.nodes[from]
	if !ok || n.dir || !m.isDir(filepath.Dir(to)) {
		return &os.LinkError{Op: "link", Old: from, New: to, Err: fs.ErrNotExist}
	}
	if _, taken := m.lookup(to); taken {
		return &os.LinkError{Op: "link", Old: from, New: to, Err: fs.ErrExist}
	}
	m.nodes[to] = &node{data: bytes.Clone(n.data), perm: n.perm}
	return nil
}

func (m *MemoryFileSystem) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := filepath.Clean(name)
	n, ok := m.nodes[p]
	if !ok {
		return &fs.PathError{Op: "remove", Path: p, Err: fs.ErrNotExist}
	}
	if n.dir {
		for q := range m.nodes {
			if filepath.Dir(q) == p {
				return &fs.PathError{Op: "remove", Path: p, Err: errNotEmpty}
			}
		}
	}
	delete(m.nodes, p)
	return nil
}

func (m *MemoryFileSystem) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.lookup(filepath.Clean(name))
	return ok
}

// openFile is the fs.File returned by MemoryFileSystem.Open. It embeds a
// bytes.Reader, so it is also an io.Seeker.
type openFile struct {
	*bytes.Reader
	info fs.FileInfo
}

func (f *openFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *openFile) Close() error               { return nil }

type nodeStat struct {
	name string
	size int64
	mode fs.FileMode
}

func (s nodeStat) Name() string       { return s.name }
func (s nodeStat) Size() int64        { return s.size }
func (s nodeStat) Mode() fs.FileMode  { return s.mode }
func (s nodeStat) ModTime() time.Time { return time.Time{} }
func (s nodeStat) IsDir() bool        { return s.mode.IsDir() }
func (s nodeStat) Sys() any           { return nil }

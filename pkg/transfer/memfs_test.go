package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"time"

	"sftpush/pkg/storage"
)

type memEntry struct {
	data    []byte
	dir     bool
	modTime time.Time
}

// memFS is an in-memory RemoteFileSystem that behaves like a strict SFTP server: parents
// must exist, mkdir and rename refuse existing targets, and mtimes advance per write.
type memFS struct {
	entries  map[string]*memEntry
	clock    time.Time
	ops      []string
	onWrite  func(p string)
	failures map[string]error
}

func newMemFS() *memFS {
	start := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	return &memFS{
		entries:  map[string]*memEntry{"/": {dir: true, modTime: start}},
		clock:    start,
		failures: map[string]error{},
	}
}

func (m *memFS) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memFS) record(op, p string) error {
	m.ops = append(m.ops, op+" "+p)
	if err := m.failures[op+" "+p]; err != nil {
		return err
	}
	return nil
}

func (m *memFS) parentExists(p string) bool {
	parent, ok := m.entries[path.Dir(p)]
	return ok && parent.dir
}

func (m *memFS) mkdirAll(p string) {
	p = path.Clean(p)
	for cur := p; cur != "/" && cur != "."; cur = path.Dir(cur) {
		if _, ok := m.entries[cur]; !ok {
			m.entries[cur] = &memEntry{dir: true, modTime: m.clock}
		}
	}
}

func (m *memFS) put(p, content string) {
	m.mkdirAll(path.Dir(p))
	m.entries[path.Clean(p)] = &memEntry{data: []byte(content), modTime: m.tick()}
}

func (m *memFS) content(p string) (string, bool) {
	e, ok := m.entries[path.Clean(p)]
	if !ok || e.dir {
		return "", false
	}
	return string(e.data), true
}

func (m *memFS) files() []string {
	var out []string
	for p, e := range m.entries {
		if !e.dir {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (m *memFS) countOps(op string) int {
	n := 0
	for _, o := range m.ops {
		if len(o) > len(op) && o[:len(op)+1] == op+" " {
			n++
		}
	}
	return n
}

func (m *memFS) GetBackendType() storage.BackendType { return storage.BackendTypeSFTP }

func (m *memFS) Close() error { return nil }

func (m *memFS) CheckFileExists(_ context.Context, key string) (*storage.FileMetadata, error) {
	key = path.Clean(key)
	if err := m.record("stat", key); err != nil {
		return nil, err
	}
	e, ok := m.entries[key]
	if !ok {
		return &storage.FileMetadata{Exists: false}, nil
	}
	return &storage.FileMetadata{
		Exists:       true,
		IsDir:        e.dir,
		Size:         int64(len(e.data)),
		LastModified: e.modTime,
	}, nil
}

func (m *memFS) MakeDir(_ context.Context, key string) error {
	key = path.Clean(key)
	if err := m.record("mkdir", key); err != nil {
		return err
	}
	if _, ok := m.entries[key]; ok {
		return fmt.Errorf("mkdir %s: %w", key, os.ErrExist)
	}
	if !m.parentExists(key) {
		return fmt.Errorf("mkdir %s: %w", key, os.ErrNotExist)
	}
	m.entries[key] = &memEntry{dir: true, modTime: m.tick()}
	return nil
}

func (m *memFS) Remove(_ context.Context, key string) error {
	key = path.Clean(key)
	if err := m.record("remove", key); err != nil {
		return err
	}
	if _, ok := m.entries[key]; !ok {
		return fmt.Errorf("remove %s: %w", key, os.ErrNotExist)
	}
	delete(m.entries, key)
	return nil
}

func (m *memFS) Rename(_ context.Context, oldKey, newKey string) error {
	oldKey, newKey = path.Clean(oldKey), path.Clean(newKey)
	if err := m.record("rename", oldKey+" -> "+newKey); err != nil {
		return err
	}
	e, ok := m.entries[oldKey]
	if !ok {
		return fmt.Errorf("rename %s: %w", oldKey, os.ErrNotExist)
	}
	if _, exists := m.entries[newKey]; exists {
		return fmt.Errorf("rename onto %s: %w", newKey, os.ErrExist)
	}
	delete(m.entries, oldKey)
	m.entries[newKey] = e
	return nil
}

// UploadFromReader exposes a partially written entry while onWrite runs.
func (m *memFS) UploadFromReader(_ context.Context, reader io.Reader, key string) error {
	key = path.Clean(key)
	if err := m.record("upload", key); err != nil {
		return err
	}
	if !m.parentExists(key) {
		return fmt.Errorf("create %s: %w", key, os.ErrNotExist)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	m.entries[key] = &memEntry{data: data[:len(data)/2], modTime: m.tick()}
	if m.onWrite != nil {
		m.onWrite(key)
	}
	m.entries[key] = &memEntry{data: data, modTime: m.tick()}
	return nil
}

var _ storage.RemoteFileSystem = (*memFS)(nil)

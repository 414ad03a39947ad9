package devserver

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Workspace. The offline CLI mode and tests use it.
type MemoryStore struct {
	mu    sync.Mutex
	files map[string]string
	info  Info

	// Writes counts successful WriteFile calls.
	Writes int
	// Commands records Exec calls in order.
	Commands []string
}

func NewMemoryStore(seed map[string]string) *MemoryStore {
	files := make(map[string]string, len(seed))
	for k, v := range seed {
		files[clean(k)] = v
	}
	return &MemoryStore{files: files, info: Info{RepoID: "local"}}
}

func clean(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func (m *MemoryStore) Info() Info { return m.info }

func (m *MemoryStore) ReadFile(_ context.Context, p string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[clean(p)]
	if !ok {
		return "", fmt.Errorf("read %s: %w", p, ErrNotFound)
	}
	return content, nil
}

func (m *MemoryStore) WriteFile(_ context.Context, p, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[clean(p)] = content
	m.Writes++
	return nil
}

// ListFiles returns the direct children of dir; subdirectories end in "/".
func (m *MemoryStore) ListFiles(_ context.Context, dir string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := clean(dir)
	if prefix != "" && prefix != "." {
		prefix += "/"
	} else {
		prefix = ""
	}
	seen := map[string]bool{}
	for name := range m.files {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i+1]
		}
		seen[rest] = true
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("list %s: %w", dir, ErrNotFound)
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Exec(_ context.Context, command string, _ bool) (ExecResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = append(m.Commands, command)
	return ExecResult{}, nil
}

func (m *MemoryStore) CommitAndPush(context.Context, string) error { return nil }

func (m *MemoryStore) Shutdown(context.Context) error { return nil }

// WriteCount returns Writes under the store lock.
func (m *MemoryStore) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Writes
}

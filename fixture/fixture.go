// Package fixture stores captured portal pages for replay.
package fixture

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotExist is returned when a fixture has not been captured.
var ErrNotExist = errors.New("fixture: not found")

// FS reads and writes fixtures by slash-separated path.
type FS interface {
	Read(path string) (string, error)
	Write(path, text string) error
}

// Slug returns the fixture path for a request path, e.g.
// "/up/faces/up/po/Poa00701A.jsp" with name "attendance" becomes
// "stub/-up-faces-up-po-Poa00701A.jspattendance.html".
func Slug(path, name string) string {
	escaped := (&url.URL{Path: path}).EscapedPath()
	return Key(strings.ReplaceAll(escaped, "/", "-") + name)
}

// Key returns the fixture path for a bare fixture key.
func Key(key string) string {
	return "stub/" + key + ".html"
}

// Dir is an FS rooted at a directory on disk.
type Dir string

func (d Dir) Read(path string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(string(d), filepath.FromSlash(path)))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", path, ErrNotExist)
	}
	if err != nil {
		return "", fmt.Errorf("read fixture %s: %w", path, err)
	}
	return string(raw), nil
}

func (d Dir) Write(path, text string) error {
	full := filepath.Join(string(d), filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create fixture directory: %w", err)
	}
	if err := os.WriteFile(full, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// Memory is an in-process FS, safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewMemory returns a Memory seeded with files.
func NewMemory(files map[string]string) *Memory {
	m := &Memory{files: make(map[string]string, len(files))}
	for k, v := range files {
		m.files[k] = v
	}
	return m
}

func (m *Memory) Read(path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.files[path]
	if !ok {
		return "", fmt.Errorf("%s: %w", path, ErrNotExist)
	}
	return text, nil
}

func (m *Memory) Write(path, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string]string)
	}
	m.files[path] = text
	return nil
}

// Paths returns the stored paths in no particular order.
func (m *Memory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for k := range m.files {
		out = append(out, k)
	}
	return out
}

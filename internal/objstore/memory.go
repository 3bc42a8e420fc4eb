package objstore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
)

// Memory is an in-process Store. It backs tests and offline runs against
// local fixture data, and doubles as the fault-injection point for failure
// scenarios: Fail intercepts calls by operation and object id.
type Memory struct {
	mu      sync.Mutex
	objects map[string]string
	folders map[string]map[string]string // folder id -> name -> object id
	counter int

	// Fail, when set, runs before every operation; a non-nil return is
	// surfaced as the call's error.
	Fail func(op, objectID string) error
}

func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]string),
		folders: make(map[string]map[string]string),
	}
}

func (m *Memory) check(op, objectID string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op, objectID)
}

// Seed places an object inside a folder and returns its id.
func (m *Memory) Seed(folderID, name, content string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	id := fmt.Sprintf("%s/%s#%d", folderID, name, m.counter)
	m.objects[id] = content
	folder := m.folders[folderID]
	if folder == nil {
		folder = make(map[string]string)
		m.folders[folderID] = folder
	}
	folder[name] = id
	return id
}

// SeedObject places a free-standing object under an explicit id.
func (m *Memory) SeedObject(objectID, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectID] = content
}

func (m *Memory) ReadText(ctx context.Context, objectID string) (string, error) {
	if err := m.check("read", objectID); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.objects[objectID]
	if !ok {
		return "", &PermanentError{Err: fmt.Errorf("%s: %w", objectID, ErrNotFound)}
	}
	return content, nil
}

func (m *Memory) WriteText(ctx context.Context, objectID, content string) error {
	if err := m.check("write", objectID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectID] = content
	return nil
}

func (m *Memory) Delete(ctx context.Context, objectID string) error {
	if err := m.check("delete", objectID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectID)
	for _, folder := range m.folders {
		for name, id := range folder {
			if id == objectID {
				delete(folder, name)
			}
		}
	}
	return nil
}

func (m *Memory) ListFolder(ctx context.Context, folderID string) (map[string]string, error) {
	if err := m.check("list", folderID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for name, id := range m.folders[folderID] {
		out[name] = id
	}
	return out, nil
}

func (m *Memory) CreatePointer(ctx context.Context, sourceID, name, destFolderID string) (string, error) {
	if err := m.check("pointer", destFolderID); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	id := fmt.Sprintf("%s/%s#ptr%d", strings.TrimSuffix(destFolderID, "/"), name, m.counter)
	m.objects[id] = sourceID
	folder := m.folders[destFolderID]
	if folder == nil {
		folder = make(map[string]string)
		m.folders[destFolderID] = folder
	}
	folder[name] = id
	return id, nil
}

// PointerTarget returns the source object a pointer references, for
// assertions in tests and consistency checks in tooling.
func (m *Memory) PointerTarget(pointerID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.objects[pointerID]
	if !ok || !strings.Contains(path.Base(pointerID), "#ptr") {
		return "", false
	}
	return content, ok
}

// FolderNames lists the object names currently present in a folder.
func (m *Memory) FolderNames(folderID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.folders[folderID]))
	for name := range m.folders[folderID] {
		names = append(names, name)
	}
	return names
}

package docstore

import (
	"context"
	"slices"
	"sync"
)

// Memory keeps documents in process memory. It is safe for concurrent use.
type Memory struct {
	mu   sync.Mutex
	docs map[string][]byte

	// FailSet, when set, is consulted before every write; a non-nil error
	// aborts the write. Tests use it to simulate persistence failures.
	FailSet func(key string) error
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(doc), true, nil
}

func (m *Memory) Set(_ context.Context, key string, doc []byte, mode WriteMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSet != nil {
		if err := m.FailSet(key); err != nil {
			return err
		}
	}
	existing, found := m.docs[key]
	out, err := Resolve(existing, found, doc, mode)
	if err != nil {
		return err
	}
	m.docs[key] = slices.Clone(out)
	return nil
}

// Keys returns the stored keys.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.docs))
	for k := range m.docs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

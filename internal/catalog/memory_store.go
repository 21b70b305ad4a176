package catalog

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Item)}
}

func (m *MemoryStore) InsertItem(_ context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *item
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.items[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) GetItem(_ context.Context, id string) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *MemoryStore) UpdateItem(_ context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		return ErrItemNotFound
	}
	cp := *item
	cp.UpdatedAt = time.Now()
	m.items[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) ListItems(_ context.Context, platform string) ([]*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Item, 0)
	for _, item := range m.items {
		if platform != "" && item.Platform != platform {
			continue
		}
		cp := *item
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

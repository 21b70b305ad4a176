package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/boostlab/boostpanel/internal/status"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	orders  map[string]*Order
	history map[string][]*StatusHistory
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[string]*Order),
		history: make(map[string][]*StatusHistory),
	}
}

func (m *MemoryStore) InsertOrder(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.orders[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) UpdateOrderStatus(_ context.Context, id, newStatus string, completedAt *time.Time) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	o.Status = newStatus
	if completedAt != nil {
		t := *completedAt
		o.CompletedAt = &t
	}
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) SetExternalID(_ context.Context, id, externalID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	o.ExternalID = externalID
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) StampStatusCheck(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	t := at
	o.LastStatusCheck = &t
	o.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) UpdateRefund(_ context.Context, id, refundStatus, orderStatus string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	o.RefundStatus = refundStatus
	if orderStatus != "" {
		o.Status = orderStatus
	}
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) InsertStatusHistory(_ context.Context, h *StatusHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.history[cp.OrderID] = append(m.history[cp.OrderID], &cp)
	return nil
}

func (m *MemoryStore) ListStatusHistory(_ context.Context, orderID string) ([]*StatusHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.history[orderID]
	out := make([]*StatusHistory, 0, len(rows))
	for _, h := range rows {
		cp := *h
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) ListCheckable(_ context.Context, limit int) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Order, 0)
	for _, o := range m.orders {
		if status.IsTerminalOrder(o.Status) {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListOrders(_ context.Context, userID string, limit int) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Order, 0)
	for _, o := range m.orders {
		if o.UserID != userID {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CountOrders(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orders), nil
}

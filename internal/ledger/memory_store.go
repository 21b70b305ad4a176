package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/boostlab/boostpanel/internal/money"
	"github.com/boostlab/boostpanel/internal/status"
)

// MemoryStore is an in-memory ledger store for demo/development mode.
type MemoryStore struct {
	balances     map[string]money.Amount
	transactions map[string]*Transaction
	verified     map[string]*VerifiedTransaction
	mu           sync.RWMutex
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:     make(map[string]money.Amount),
		transactions: make(map[string]*Transaction),
		verified:     make(map[string]*VerifiedTransaction),
	}
}

func (m *MemoryStore) GetBalance(ctx context.Context, userID string) (money.Amount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[userID], nil
}

// SetBalance overwrites a balance directly. Test and seed hook only;
// production paths go through AddToBalance/DebitBalance.
func (m *MemoryStore) SetBalance(userID string, balance money.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = balance
}

func (m *MemoryStore) AddToBalance(ctx context.Context, userID string, delta money.Amount) (money.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[userID] += delta
	return m.balances[userID], nil
}

func (m *MemoryStore) DebitBalance(ctx context.Context, userID string, amount money.Amount) (money.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.balances[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	if bal < amount {
		return 0, ErrInsufficientBalance
	}
	m.balances[userID] = bal - amount
	return m.balances[userID], nil
}

func (m *MemoryStore) InsertTransaction(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *tx
	m.transactions[tx.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *MemoryStore) UpdateTransactionStatus(ctx context.Context, id, txStatus string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	tx.Status = txStatus
	tx.UpdatedAt = time.Now()
	cp := *tx
	return &cp, nil
}

func (m *MemoryStore) MarkCredited(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok {
		return false, ErrTransactionNotFound
	}
	if tx.CreditedAt != nil {
		return false, nil
	}
	tx.CreditedAt = &at
	return true, nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, userID string) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Transaction
	for _, tx := range m.transactions {
		if tx.UserID == userID {
			cp := *tx
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) ListDeposits(ctx context.Context, txStatus string, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Transaction
	for _, tx := range m.transactions {
		if tx.Type == status.TypeDeposit && tx.Status == txStatus {
			cp := *tx
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) GetVerified(ctx context.Context, transactionID string) (*VerifiedTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.verified[transactionID]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (m *MemoryStore) UpsertVerified(ctx context.Context, v *VerifiedTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *v
	m.verified[v.TransactionID] = &cp
	return nil
}

func (m *MemoryStore) CountProfiles(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.balances), nil
}

func (m *MemoryStore) CountPendingDeposits(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, tx := range m.transactions {
		if tx.Type == status.TypeDeposit && tx.Status == status.TxPending {
			n++
		}
	}
	return n, nil
}

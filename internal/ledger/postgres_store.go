package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/boostlab/boostpanel/internal/money"
	"github.com/boostlab/boostpanel/internal/status"
)

// PostgresStore implements Store with PostgreSQL.
//
// Amounts are BIGINT cents. Balance mutations are single atomic
// UPDATE ... RETURNING statements, never read-modify-write.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetBalance(ctx context.Context, userID string) (money.Amount, error) {
	var balance int64
	err := p.db.QueryRowContext(ctx, `
		SELECT balance FROM profiles WHERE user_id = $1
	`, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return money.Amount(balance), nil
}

func (p *PostgresStore) AddToBalance(ctx context.Context, userID string, delta money.Amount) (money.Amount, error) {
	var balance int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO profiles (user_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			balance    = profiles.balance + $2,
			updated_at = NOW()
		RETURNING balance
	`, userID, int64(delta)).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("add to balance: %w", err)
	}
	return money.Amount(balance), nil
}

func (p *PostgresStore) DebitBalance(ctx context.Context, userID string, amount money.Amount) (money.Amount, error) {
	var balance int64
	err := p.db.QueryRowContext(ctx, `
		UPDATE profiles SET
			balance    = balance - $2,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING balance
	`, userID, int64(amount)).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		// CHECK constraint violation means insufficient balance.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23514" {
			return 0, ErrInsufficientBalance
		}
		return 0, fmt.Errorf("debit balance: %w", err)
	}
	return money.Amount(balance), nil
}

func (p *PostgresStore) InsertTransaction(ctx context.Context, tx *Transaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, type, tx_status, amount, reference, credited_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
	`, tx.ID, tx.UserID, tx.Type, tx.Status, int64(tx.Amount), tx.Reference, tx.CreditedAt, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, tx_status, amount, COALESCE(reference, ''), credited_at, created_at, updated_at
		FROM transactions WHERE id = $1
	`, id)
	return scanTransaction(row)
}

func (p *PostgresStore) UpdateTransactionStatus(ctx context.Context, id, txStatus string) (*Transaction, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE transactions SET
			tx_status  = $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING id, user_id, type, tx_status, amount, COALESCE(reference, ''), credited_at, created_at, updated_at
	`, id, txStatus)
	return scanTransaction(row)
}

func (p *PostgresStore) MarkCredited(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE transactions SET credited_at = $2
		WHERE id = $1 AND credited_at IS NULL
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark credited: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows == 1, nil
}

func (p *PostgresStore) ListTransactions(ctx context.Context, userID string) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, type, tx_status, amount, COALESCE(reference, ''), credited_at, created_at, updated_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (p *PostgresStore) ListDeposits(ctx context.Context, txStatus string, limit int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, type, tx_status, amount, COALESCE(reference, ''), credited_at, created_at, updated_at
		FROM transactions
		WHERE type = 'deposit' AND tx_status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, txStatus, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (p *PostgresStore) GetVerified(ctx context.Context, transactionID string) (*VerifiedTransaction, error) {
	v := &VerifiedTransaction{}
	err := p.db.QueryRowContext(ctx, `
		SELECT transaction_id, verified_status, verifier_id, updated_at
		FROM verified_transactions WHERE transaction_id = $1
	`, transactionID).Scan(&v.TransactionID, &v.Status, &v.VerifierID, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (p *PostgresStore) UpsertVerified(ctx context.Context, v *VerifiedTransaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO verified_transactions (transaction_id, verified_status, verifier_id, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (transaction_id) DO UPDATE SET
			verified_status = $2,
			verifier_id     = $3,
			updated_at      = $4
	`, v.TransactionID, v.Status, v.VerifierID, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert verified transaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) CountProfiles(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n)
	return n, err
}

func (p *PostgresStore) CountPendingDeposits(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions WHERE type = $1 AND tx_status = $2
	`, status.TypeDeposit, status.TxPending).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	tx := &Transaction{}
	var amount int64
	var credited sql.NullTime
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Status, &amount, &tx.Reference, &credited, &tx.CreatedAt, &tx.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	tx.Amount = money.Amount(amount)
	if credited.Valid {
		t := credited.Time
		tx.CreditedAt = &t
	}
	return tx, nil
}

func scanTransactions(rows *sql.Rows) ([]*Transaction, error) {
	var result []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

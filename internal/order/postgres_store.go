package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/boostlab/boostpanel/internal/money"
)

const orderColumns = `id, user_id, service_id, link, quantity, total_cost,
	COALESCE(external_id, ''), status, COALESCE(refund_status, ''),
	last_status_check, completed_at, created_at, updated_at`

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed order store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) InsertOrder(ctx context.Context, o *Order) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, service_id, link, quantity, total_cost,
			external_id, status, refund_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''), $10, $11)
	`, o.ID, o.UserID, o.ServiceID, o.Link, o.Quantity, int64(o.TotalCost),
		o.ExternalID, o.Status, o.RefundStatus, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = $1
	`, id)
	return scanOrder(row)
}

func (p *PostgresStore) UpdateOrderStatus(ctx context.Context, id, newStatus string, completedAt *time.Time) (*Order, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE orders SET
			status       = $2,
			completed_at = COALESCE($3, completed_at),
			updated_at   = NOW()
		WHERE id = $1
		RETURNING `+orderColumns+`
	`, id, newStatus, completedAt)
	return scanOrder(row)
}

func (p *PostgresStore) SetExternalID(ctx context.Context, id, externalID string) (*Order, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE orders SET
			external_id = $2,
			updated_at  = NOW()
		WHERE id = $1
		RETURNING `+orderColumns+`
	`, id, externalID)
	return scanOrder(row)
}

func (p *PostgresStore) StampStatusCheck(ctx context.Context, id string, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE orders SET last_status_check = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("stamp status check: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (p *PostgresStore) UpdateRefund(ctx context.Context, id, refundStatus, orderStatus string) (*Order, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE orders SET
			refund_status = $2,
			status        = COALESCE(NULLIF($3, ''), status),
			updated_at    = NOW()
		WHERE id = $1
		RETURNING `+orderColumns+`
	`, id, refundStatus, orderStatus)
	return scanOrder(row)
}

func (p *PostgresStore) InsertStatusHistory(ctx context.Context, h *StatusHistory) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO status_history (id, order_id, new_status, previous_status, source, actor, raw, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
	`, h.ID, h.OrderID, h.NewStatus, h.PreviousStatus, h.Source, h.Actor, []byte(h.Raw), h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListStatusHistory(ctx context.Context, orderID string) ([]*StatusHistory, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, order_id, new_status, previous_status, source, COALESCE(actor, ''), raw, created_at
		FROM status_history
		WHERE order_id = $1
		ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*StatusHistory
	for rows.Next() {
		h := &StatusHistory{}
		var raw []byte
		if err := rows.Scan(&h.ID, &h.OrderID, &h.NewStatus, &h.PreviousStatus, &h.Source, &h.Actor, &raw, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Raw = raw
		result = append(result, h)
	}
	return result, rows.Err()
}

func (p *PostgresStore) ListCheckable(ctx context.Context, limit int) ([]*Order, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status NOT IN ('completed', 'canceled', 'cancelled', 'refunded')
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (p *PostgresStore) ListOrders(ctx context.Context, userID string, limit int) ([]*Order, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (p *PostgresStore) CountOrders(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	o := &Order{}
	var cost int64
	var lastCheck, completed sql.NullTime
	err := row.Scan(&o.ID, &o.UserID, &o.ServiceID, &o.Link, &o.Quantity, &cost,
		&o.ExternalID, &o.Status, &o.RefundStatus,
		&lastCheck, &completed, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o.TotalCost = money.Amount(cost)
	if lastCheck.Valid {
		t := lastCheck.Time
		o.LastStatusCheck = &t
	}
	if completed.Valid {
		t := completed.Time
		o.CompletedAt = &t
	}
	return o, nil
}

func scanOrders(rows *sql.Rows) ([]*Order, error) {
	var result []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

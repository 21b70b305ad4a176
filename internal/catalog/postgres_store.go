package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/boostlab/boostpanel/internal/money"
)

const itemColumns = `id, platform, service_type, name, rate, min_quantity, max_quantity,
	COALESCE(provider_service_id, ''), active, created_at, updated_at`

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed catalog store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) InsertItem(ctx context.Context, item *Item) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO services (id, platform, service_type, name, rate, min_quantity, max_quantity,
			provider_service_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11)
	`, item.ID, item.Platform, item.ServiceType, item.Name, int64(item.Rate),
		item.MinQuantity, item.MaxQuantity, item.ProviderServiceID, item.Active,
		item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert catalog item: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetItem(ctx context.Context, id string) (*Item, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM services WHERE id = $1
	`, id)
	return scanItem(row)
}

func (p *PostgresStore) UpdateItem(ctx context.Context, item *Item) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE services SET
			platform            = $2,
			service_type        = $3,
			name                = $4,
			rate                = $5,
			min_quantity        = $6,
			max_quantity        = $7,
			provider_service_id = NULLIF($8, ''),
			active              = $9,
			updated_at          = NOW()
		WHERE id = $1
	`, item.ID, item.Platform, item.ServiceType, item.Name, int64(item.Rate),
		item.MinQuantity, item.MaxQuantity, item.ProviderServiceID, item.Active)
	if err != nil {
		return fmt.Errorf("update catalog item: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (p *PostgresStore) ListItems(ctx context.Context, platform string) ([]*Item, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM services
		WHERE $1 = '' OR platform = $1
		ORDER BY name ASC
	`, platform)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	item := &Item{}
	var rate int64
	err := row.Scan(&item.ID, &item.Platform, &item.ServiceType, &item.Name, &rate,
		&item.MinQuantity, &item.MaxQuantity, &item.ProviderServiceID, &item.Active,
		&item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	item.Rate = money.Amount(rate)
	return item, nil
}

// Package catalog holds the sellable service catalog: what each
// platform service costs per 1000 units and the quantity bounds an
// order must respect.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/boostlab/boostpanel/internal/money"
)

var (
	ErrItemNotFound = errors.New("catalog item not found")
	ErrInvalidItem  = errors.New("invalid catalog item")
)

// Item is one orderable service. Rate is the price per 1000 units.
// ProviderServiceID identifies the service on the upstream fulfillment
// provider when orders are forwarded.
type Item struct {
	ID                string       `json:"id"`
	Platform          string       `json:"platform"`
	ServiceType       string       `json:"serviceType"`
	Name              string       `json:"name"`
	Rate              money.Amount `json:"rate"`
	MinQuantity       int          `json:"minQuantity"`
	MaxQuantity       int          `json:"maxQuantity"`
	ProviderServiceID string       `json:"providerServiceId,omitempty"`
	Active            bool         `json:"active"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// Cost computes the total price of quantity units at the item's rate.
func (i *Item) Cost(quantity int) money.Amount {
	return money.Amount(int64(i.Rate) * int64(quantity) / 1000)
}

// Store persists catalog items.
type Store interface {
	InsertItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, id string) (*Item, error)
	UpdateItem(ctx context.Context, item *Item) error
	ListItems(ctx context.Context, platform string) ([]*Item, error)
}

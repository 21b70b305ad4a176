package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/boostlab/boostpanel/internal/idgen"
	"github.com/boostlab/boostpanel/internal/money"
)

func parseRate(s string) (money.Amount, bool) {
	rate, ok := money.Parse(s)
	if !ok || rate <= 0 {
		return 0, false
	}
	return rate, true
}

// Service validates and manages catalog items.
type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

type CreateItemParams struct {
	Platform          string
	ServiceType       string
	Name              string
	Rate              string
	MinQuantity       int
	MaxQuantity       int
	ProviderServiceID string
}

func (s *Service) Create(ctx context.Context, params CreateItemParams) (*Item, error) {
	if params.Platform == "" || params.Name == "" {
		return nil, fmt.Errorf("%w: platform and name are required", ErrInvalidItem)
	}
	rate, ok := parseRate(params.Rate)
	if !ok {
		return nil, fmt.Errorf("%w: bad rate %q", ErrInvalidItem, params.Rate)
	}
	if params.MinQuantity <= 0 || params.MaxQuantity < params.MinQuantity {
		return nil, fmt.Errorf("%w: quantity bounds %d..%d", ErrInvalidItem, params.MinQuantity, params.MaxQuantity)
	}

	item := &Item{
		ID:                idgen.WithPrefix("svc_"),
		Platform:          params.Platform,
		ServiceType:       params.ServiceType,
		Name:              params.Name,
		Rate:              rate,
		MinQuantity:       params.MinQuantity,
		MaxQuantity:       params.MaxQuantity,
		ProviderServiceID: params.ProviderServiceID,
		Active:            true,
	}
	if err := s.store.InsertItem(ctx, item); err != nil {
		return nil, err
	}

	s.logger.Info("catalog item created",
		"item_id", item.ID,
		"platform", item.Platform,
		"rate", item.Rate)
	return s.store.GetItem(ctx, item.ID)
}

func (s *Service) Get(ctx context.Context, id string) (*Item, error) {
	return s.store.GetItem(ctx, id)
}

func (s *Service) List(ctx context.Context, platform string) ([]*Item, error) {
	return s.store.ListItems(ctx, platform)
}

// SetActive toggles whether an item can be ordered.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*Item, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	item.Active = active
	if err := s.store.UpdateItem(ctx, item); err != nil {
		return nil, err
	}
	return s.store.GetItem(ctx, id)
}

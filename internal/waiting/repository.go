package waiting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ridealert/ridealert/internal/kvstore"
)

// Repository persists the waiting-alert list. The registry loads it once at
// startup and saves after every mutating operation.
type Repository interface {
	Load(ctx context.Context) ([]Alert, error)
	Save(ctx context.Context, alerts []Alert) error
}

// StoreRepository persists alerts as a JSON array in the key-value store
// under the activeWaitingAlerts key.
type StoreRepository struct {
	store kvstore.Store
}

// NewStoreRepository creates a kvstore-backed repository.
func NewStoreRepository(store kvstore.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

// Load reads the persisted alert list. A missing key is an empty list.
func (r *StoreRepository) Load(ctx context.Context) ([]Alert, error) {
	raw, err := r.store.Get(ctx, kvstore.KeyActiveWaitingAlerts)
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading alerts: %w", err)
	}

	var alerts []Alert
	if err := json.Unmarshal(raw, &alerts); err != nil {
		return nil, fmt.Errorf("decoding alerts: %w", err)
	}
	return alerts, nil
}

// Save writes the full alert list.
func (r *StoreRepository) Save(ctx context.Context, alerts []Alert) error {
	if alerts == nil {
		alerts = []Alert{}
	}

	raw, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("encoding alerts: %w", err)
	}
	if err := r.store.Put(ctx, kvstore.KeyActiveWaitingAlerts, raw); err != nil {
		return fmt.Errorf("saving alerts: %w", err)
	}
	return nil
}

var _ Repository = (*StoreRepository)(nil)

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/digkill/PixelMuse/internal/models"
)

type GuestUsageRepository struct {
	store Store
}

func NewGuestUsageRepository(store Store) *GuestUsageRepository {
	return &GuestUsageRepository{store: store}
}

// Get returns the stored record, or nil when there is none or it is unreadable.
func (r *GuestUsageRepository) Get(ctx context.Context) (*models.GuestUsage, error) {
	raw, err := r.store.Get(ctx, KeyGuestUsage)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load guest usage: %w", err)
	}
	var usage models.GuestUsage
	if err := json.Unmarshal(raw, &usage); err != nil {
		return nil, nil
	}
	return &usage, nil
}

// Update runs fn against the stored record atomically. fn receives nil when
// no readable record exists and may return ErrSkipUpdate.
func (r *GuestUsageRepository) Update(ctx context.Context, fn func(*models.GuestUsage) (models.GuestUsage, error)) error {
	return r.store.Update(ctx, KeyGuestUsage, func(current []byte, exists bool) ([]byte, error) {
		var existing *models.GuestUsage
		if exists {
			var usage models.GuestUsage
			if err := json.Unmarshal(current, &usage); err == nil {
				existing = &usage
			}
		}
		next, err := fn(existing)
		if err != nil {
			return nil, err
		}
		return json.Marshal(next)
	})
}

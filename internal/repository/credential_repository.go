package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CredentialRepository stores the user-supplied model API key in plaintext.
type CredentialRepository struct {
	store Store
}

func NewCredentialRepository(store Store) *CredentialRepository {
	return &CredentialRepository{store: store}
}

func (r *CredentialRepository) Get(ctx context.Context) (string, error) {
	raw, err := r.store.Get(ctx, KeyCustomAPIKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("load custom key: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (r *CredentialRepository) Save(ctx context.Context, key string) error {
	if err := r.store.Set(ctx, KeyCustomAPIKey, []byte(key)); err != nil {
		return fmt.Errorf("save custom key: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Clear(ctx context.Context) error {
	if err := r.store.Remove(ctx, KeyCustomAPIKey); err != nil {
		return fmt.Errorf("clear custom key: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/digkill/PixelMuse/internal/models"
)

// SessionRepository holds the current-session token and account snapshot.
type SessionRepository struct {
	store Store
}

func NewSessionRepository(store Store) *SessionRepository {
	return &SessionRepository{store: store}
}

// Get returns the cached snapshot, or nil when either the token or the
// snapshot is missing.
func (r *SessionRepository) Get(ctx context.Context) (*models.Account, error) {
	token, err := r.store.Get(ctx, KeySessionToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session token: %w", err)
	}
	if len(token) == 0 {
		return nil, nil
	}

	raw, err := r.store.Get(ctx, KeySessionAccount)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session account: %w", err)
	}
	var account models.Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, nil
	}
	return &account, nil
}

// Start caches the account as the current session under a new token.
func (r *SessionRepository) Start(ctx context.Context, account models.Account, token string) error {
	if err := r.SaveSnapshot(ctx, account); err != nil {
		return err
	}
	if err := r.store.Set(ctx, KeySessionToken, []byte(token)); err != nil {
		return fmt.Errorf("save session token: %w", err)
	}
	return nil
}

func (r *SessionRepository) SaveSnapshot(ctx context.Context, account models.Account) error {
	raw, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encode session account: %w", err)
	}
	if err := r.store.Set(ctx, KeySessionAccount, raw); err != nil {
		return fmt.Errorf("save session account: %w", err)
	}
	return nil
}

func (r *SessionRepository) Clear(ctx context.Context) error {
	if err := r.store.Remove(ctx, KeySessionAccount); err != nil {
		return fmt.Errorf("clear session account: %w", err)
	}
	if err := r.store.Remove(ctx, KeySessionToken); err != nil {
		return fmt.Errorf("clear session token: %w", err)
	}
	return nil
}

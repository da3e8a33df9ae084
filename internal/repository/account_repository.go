package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/digkill/PixelMuse/internal/models"
)

// StoredAccount is an account row in the all-accounts table. PasswordHash never
// leaves this package's callers in the service layer.
type StoredAccount struct {
	models.Account
	PasswordHash string `json:"passwordHash"`
}

type AccountRepository struct {
	store Store
}

func NewAccountRepository(store Store) *AccountRepository {
	return &AccountRepository{store: store}
}

func (r *AccountRepository) List(ctx context.Context) ([]StoredAccount, error) {
	raw, err := r.store.Get(ctx, KeyAllAccounts)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	return decodeAccounts(raw)
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*StoredAccount, error) {
	accounts, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].Email == email {
			return &accounts[i], nil
		}
	}
	return nil, nil
}

// Create appends the account, failing with ErrConflict when the email is taken.
func (r *AccountRepository) Create(ctx context.Context, account StoredAccount) error {
	return r.store.Update(ctx, KeyAllAccounts, func(current []byte, exists bool) ([]byte, error) {
		var accounts []StoredAccount
		if exists {
			decoded, err := decodeAccounts(current)
			if err != nil {
				return nil, err
			}
			accounts = decoded
		}
		for _, a := range accounts {
			if a.Email == account.Email {
				return nil, ErrConflict
			}
		}
		accounts = append(accounts, account)
		return json.Marshal(accounts)
	})
}

// Update applies fn to the account with the given id and returns the result.
// fn may return ErrSkipUpdate to keep the stored row; the unchanged row is
// returned together with ErrSkipUpdate in that case.
func (r *AccountRepository) Update(ctx context.Context, id string, fn func(*StoredAccount) error) (*StoredAccount, error) {
	var result *StoredAccount
	var skipped bool
	err := r.store.Update(ctx, KeyAllAccounts, func(current []byte, exists bool) ([]byte, error) {
		if !exists {
			return nil, ErrNotFound
		}
		accounts, err := decodeAccounts(current)
		if err != nil {
			return nil, err
		}
		for i := range accounts {
			if accounts[i].ID != id {
				continue
			}
			original := accounts[i]
			if err := fn(&accounts[i]); err != nil {
				if errors.Is(err, ErrSkipUpdate) {
					result = &original
					skipped = true
				}
				return nil, err
			}
			updated := accounts[i]
			result = &updated
			return json.Marshal(accounts)
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	if skipped {
		return result, ErrSkipUpdate
	}
	return result, nil
}

func decodeAccounts(raw []byte) ([]StoredAccount, error) {
	var accounts []StoredAccount
	if len(raw) == 0 {
		return accounts, nil
	}
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return accounts, nil
}

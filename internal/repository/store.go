package repository

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("key not found")
	ErrSkipUpdate = errors.New("skip update")
	ErrConflict   = errors.New("conflicting record")
)

// Logical storage keys shared by every Store implementation.
const (
	KeySessionAccount = "pixelmuse_user"
	KeySessionToken   = "pixelmuse_token"
	KeyAllAccounts    = "pixelmuse_all_users"
	KeyGuestUsage     = "pixelmuse_guest_usage"
	KeyRecords        = "pixelmuse_records"
	KeyCustomAPIKey   = "pixelmuse_custom_api_key"
)

// UpdateFunc receives the current value of a key and returns the value to
// store. Returning ErrSkipUpdate leaves the key untouched; any other error
// aborts the update and is returned from Store.Update.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Store is a key-value port. Update is atomic with respect to other calls
// on the same Store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

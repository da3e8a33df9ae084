package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// MySQLStore keeps entries in the kv_entries table. Update locks the row with
// SELECT ... FOR UPDATE so concurrent writers on the same key are serialized.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) DB() *sql.DB {
	return s.db
}

func (s *MySQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT v FROM kv_entries WHERE k = ?`
	row := s.db.QueryRowContext(ctx, query, key)
	var v []byte
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get entry %s: %w", key, err)
	}
	return v, nil
}

func (s *MySQLStore) Set(ctx context.Context, key string, value []byte) error {
	const query = `
INSERT INTO kv_entries (k, v) VALUES (?, ?)
ON DUPLICATE KEY UPDATE v = VALUES(v), updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set entry %s: %w", key, err)
	}
	return nil
}

func (s *MySQLStore) Remove(ctx context.Context, key string) error {
	const query = `DELETE FROM kv_entries WHERE k = ?`
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("remove entry %s: %w", key, err)
	}
	return nil
}

func (s *MySQLStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current []byte
	exists := true
	row := tx.QueryRowContext(ctx, `SELECT v FROM kv_entries WHERE k = ? FOR UPDATE`, key)
	if err := row.Scan(&current); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lock entry %s: %w", key, err)
		}
		exists = false
	}

	next, err := fn(current, exists)
	if err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			return nil
		}
		return err
	}

	const upsert = `
INSERT INTO kv_entries (k, v) VALUES (?, ?)
ON DUPLICATE KEY UPDATE v = VALUES(v), updated_at = NOW()`
	if _, err := tx.ExecContext(ctx, upsert, key, next); err != nil {
		return fmt.Errorf("write entry %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entry %s: %w", key, err)
	}
	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/digkill/PixelMuse/internal/models"
)

type RecordRepository struct {
	store Store
}

func NewRecordRepository(store Store) *RecordRepository {
	return &RecordRepository{store: store}
}

// List returns records newest first.
func (r *RecordRepository) List(ctx context.Context) ([]models.GenerationRecord, error) {
	raw, err := r.store.Get(ctx, KeyRecords)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []models.GenerationRecord{}, nil
		}
		return nil, fmt.Errorf("load records: %w", err)
	}
	var records []models.GenerationRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return []models.GenerationRecord{}, nil
	}
	return records, nil
}

// Prepend stores record at the head and keeps at most limit entries.
func (r *RecordRepository) Prepend(ctx context.Context, record models.GenerationRecord, limit int) error {
	return r.store.Update(ctx, KeyRecords, func(current []byte, exists bool) ([]byte, error) {
		var records []models.GenerationRecord
		if exists {
			_ = json.Unmarshal(current, &records)
		}
		records = append([]models.GenerationRecord{record}, records...)
		if limit > 0 && len(records) > limit {
			records = records[:limit]
		}
		return json.Marshal(records)
	})
}

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/PixelMuse/internal/gemini"
	"github.com/digkill/PixelMuse/internal/models"
	"github.com/digkill/PixelMuse/internal/repository"
)

// RecordLimit caps the persisted generation history.
const RecordLimit = 100

const guestUserID = "guest"

// ImageStorage publishes an image and returns a URL for it.
type ImageStorage interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

type HistoryService struct {
	log     *slog.Logger
	records *repository.RecordRepository
	storage ImageStorage
	now     func() time.Time
}

// NewHistoryService creates the record keeper. storage may be nil, in which
// case records keep the image as a data URI.
func NewHistoryService(log *slog.Logger, records *repository.RecordRepository, storage ImageStorage, now func() time.Time) *HistoryService {
	if now == nil {
		now = time.Now
	}
	return &HistoryService{log: log, records: records, storage: storage, now: now}
}

type RecordInput struct {
	Account      *models.Account
	TemplateName string
	Image        *gemini.Image
	Prompt       string
	Settings     models.GenerationSettings
	Cost         models.CostType
}

// Save persists a record for a finished generation. Failures are logged and
// returned, but callers treat them as non-fatal.
func (h *HistoryService) Save(ctx context.Context, in RecordInput) (models.GenerationRecord, error) {
	record := models.GenerationRecord{
		ID:           uuid.NewString(),
		UserID:       guestUserID,
		TemplateName: in.TemplateName,
		ImageURL:     in.Image.DataURI(),
		Prompt:       in.Prompt,
		Settings:     in.Settings,
		Cost:         in.Cost,
		CreatedAt:    h.now().UTC(),
	}
	if in.Account != nil {
		record.UserID = in.Account.ID
	}

	if h.storage != nil {
		url, err := h.storage.Upload(ctx, in.Image.Bytes, in.Image.MimeType)
		if err != nil {
			h.log.Warn("image upload failed, keeping data uri", "err", err)
		} else {
			record.ImageURL = url
		}
	}

	if err := h.records.Prepend(ctx, record, RecordLimit); err != nil {
		h.log.Error("failed to save generation record", "err", err)
		return record, err
	}
	return record, nil
}

func (h *HistoryService) List(ctx context.Context) ([]models.GenerationRecord, error) {
	return h.records.List(ctx)
}

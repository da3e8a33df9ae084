package service

import (
	"context"
	"fmt"
	"time"

	"github.com/digkill/PixelMuse/internal/models"
	"github.com/digkill/PixelMuse/internal/repository"
)

const dateLayout = "2006-01-02"

// GuestQuota tracks the daily generation count for unauthenticated users.
// A stored record from an earlier day counts as zero; nothing resets it explicitly.
type GuestQuota struct {
	usage *repository.GuestUsageRepository
	now   func() time.Time
	loc   *time.Location
	limit int
}

func NewGuestQuota(usage *repository.GuestUsageRepository, now func() time.Time, loc *time.Location) *GuestQuota {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &GuestQuota{usage: usage, now: now, loc: loc, limit: GuestDailyLimit}
}

func (q *GuestQuota) today() string {
	return q.now().In(q.loc).Format(dateLayout)
}

// CurrentUsage returns today's record without writing anything back.
func (q *GuestQuota) CurrentUsage(ctx context.Context) (models.GuestUsage, error) {
	today := q.today()
	usage, err := q.usage.Get(ctx)
	if err != nil {
		return models.GuestUsage{}, fmt.Errorf("guest usage: %w", err)
	}
	if usage == nil || usage.Date != today {
		return models.GuestUsage{Date: today, Count: 0}, nil
	}
	return *usage, nil
}

func (q *GuestQuota) Remaining(ctx context.Context) (int, error) {
	usage, err := q.CurrentUsage(ctx)
	if err != nil {
		return 0, err
	}
	return max(0, q.limit-usage.Count), nil
}

// Consume spends one guest generation. It reports false when today's limit
// is already reached.
func (q *GuestQuota) Consume(ctx context.Context) (bool, error) {
	today := q.today()
	consumed := false
	err := q.usage.Update(ctx, func(existing *models.GuestUsage) (models.GuestUsage, error) {
		count := 0
		if existing != nil && existing.Date == today {
			count = existing.Count
		}
		if count >= q.limit {
			return models.GuestUsage{}, repository.ErrSkipUpdate
		}
		consumed = true
		return models.GuestUsage{Date: today, Count: count + 1}, nil
	})
	if err != nil {
		return false, fmt.Errorf("consume guest credit: %w", err)
	}
	return consumed, nil
}

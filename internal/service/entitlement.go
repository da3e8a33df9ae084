package service

import (
	"context"

	"github.com/digkill/PixelMuse/internal/models"
)

// guestMaxUploads is the per-collection upload cap without an account.
const guestMaxUploads = 1

// Entitlements answers what the current session may do. It has no side effects.
type Entitlements struct {
	accounts *AccountService
}

func NewEntitlements(accounts *AccountService) *Entitlements {
	return &Entitlements{accounts: accounts}
}

func (e *Entitlements) CanUseResolution(ctx context.Context, res models.Resolution) (bool, error) {
	account, plan, err := e.accounts.CurrentPlan(ctx)
	if err != nil {
		return false, err
	}
	return canUseResolution(account, plan, res), nil
}

func (e *Entitlements) CanUseEdit(ctx context.Context) (bool, error) {
	account, plan, err := e.accounts.CurrentPlan(ctx)
	if err != nil {
		return false, err
	}
	return account != nil && plan.EditEnabled, nil
}

func (e *Entitlements) MaxUploads(ctx context.Context) (int, error) {
	account, plan, err := e.accounts.CurrentPlan(ctx)
	if err != nil {
		return 0, err
	}
	return maxUploads(account, plan), nil
}

func (e *Entitlements) CanUseTemplate(ctx context.Context, templateID string) (bool, error) {
	account, plan, err := e.accounts.CurrentPlan(ctx)
	if err != nil {
		return false, err
	}
	return canUseTemplate(account, plan, templateID), nil
}

// Snapshot evaluates every predicate once, for rendering lock states.
type Snapshot struct {
	Guest          bool                       `json:"guest"`
	Plan           models.PlanType            `json:"plan"`
	MaxUploads     int                        `json:"maxUploads"`
	CanEdit        bool                       `json:"canEdit"`
	Resolutions    map[models.Resolution]bool `json:"resolutions"`
	TemplateAccess map[string]bool            `json:"templates"`
}

func (e *Entitlements) Snapshot(ctx context.Context, templates []models.Template) (Snapshot, error) {
	account, plan, err := e.accounts.CurrentPlan(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Guest:          account == nil,
		Plan:           plan.ID,
		MaxUploads:     maxUploads(account, plan),
		CanEdit:        account != nil && plan.EditEnabled,
		Resolutions:    make(map[models.Resolution]bool, 3),
		TemplateAccess: make(map[string]bool, len(templates)),
	}
	for _, res := range []models.Resolution{models.Resolution1K, models.Resolution2K, models.Resolution4K} {
		snap.Resolutions[res] = canUseResolution(account, plan, res)
	}
	for _, t := range templates {
		snap.TemplateAccess[t.ID] = canUseTemplate(account, plan, t.ID)
	}
	return snap, nil
}

func canUseResolution(account *models.Account, plan models.Plan, res models.Resolution) bool {
	rank := res.Rank()
	if rank < 0 {
		return false
	}
	if account == nil {
		return res == models.Resolution1K
	}
	return rank <= plan.MaxResolution.Rank()
}

func maxUploads(account *models.Account, plan models.Plan) int {
	if account == nil {
		return guestMaxUploads
	}
	return plan.MaxUploads
}

func canUseTemplate(account *models.Account, plan models.Plan, templateID string) bool {
	if account == nil {
		return isStarterTemplate(templateID)
	}
	switch plan.ID {
	case models.PlanPro, models.PlanEnterprise:
		return true
	case models.PlanBasic:
		return templateID != TemplateCustom
	default:
		return isStarterTemplate(templateID)
	}
}

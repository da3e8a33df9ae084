package service

import (
	"slices"

	"github.com/digkill/PixelMuse/internal/models"
)

const (
	// GuestDailyLimit is the number of generations a guest gets per calendar day.
	GuestDailyLimit = 2
	// SignupCredits is the one-time balance granted at registration.
	SignupCredits = 5
)

var pricingPlans = []models.Plan{
	{
		ID:      models.PlanFree,
		Name:    "体验版",
		NameEn:  "Free",
		Price:   0,
		Period:  "forever",
		Credits: SignupCredits,
		Features: []string{
			"5 generations on sign-up",
			"2 free generations per day without an account",
			"Standard 1K resolution",
			"3 starter composition templates",
			"Single image upload",
			"Platform watermark",
		},
		Badge:         "Free",
		MaxResolution: models.Resolution1K,
		MaxUploads:    1,
	},
	{
		ID:      models.PlanBasic,
		Name:    "轻享版",
		NameEn:  "Basic",
		Price:   128,
		Period:  "month",
		Credits: 60,
		Features: []string{
			"60 generations per month",
			"HD 2K resolution",
			"All 13 composition templates",
			"Up to 2 image uploads",
			"Image editing",
			"Permanent gallery",
			"Watermark removal",
		},
		MaxResolution: models.Resolution2K,
		MaxUploads:    2,
		EditEnabled:   true,
	},
	{
		ID:      models.PlanPro,
		Name:    "专业版",
		NameEn:  "Pro",
		Price:   398,
		Period:  "month",
		Credits: 100,
		Features: []string{
			"100 generations per month",
			"Ultra HD 4K resolution",
			"All templates plus custom composition",
			"Up to 4 image uploads",
			"Advanced editing",
			"Style reference images",
			"Priority queue",
			"Permanent gallery",
			"API access",
			"Commercial license",
		},
		Highlighted:   true,
		Badge:         "Recommended",
		MaxResolution: models.Resolution4K,
		MaxUploads:    4,
		EditEnabled:   true,
		PriorityQueue: true,
	},
	{
		ID:      models.PlanEnterprise,
		Name:    "旗舰版",
		NameEn:  "Enterprise",
		Price:   1598,
		Period:  "month",
		Credits: 400,
		Features: []string{
			"400 generations per month",
			"Ultra HD 4K resolution",
			"Unlimited composition templates",
			"Up to 4 image uploads",
			"Every advanced feature",
			"Batch generation",
			"Highest priority queue",
			"Dedicated support",
			"Unlimited API calls",
			"Commercial and exclusive license",
			"Custom template development",
		},
		MaxResolution: models.Resolution4K,
		MaxUploads:    4,
		EditEnabled:   true,
		PriorityQueue: true,
	},
}

// PlanCatalog is the compiled-in table of pricing tiers.
type PlanCatalog struct {
	plans []models.Plan
}

func NewPlanCatalog() *PlanCatalog {
	return &PlanCatalog{plans: pricingPlans}
}

// List returns the plans in ascending price order.
func (c *PlanCatalog) List() []models.Plan {
	out := make([]models.Plan, len(c.plans))
	for i, p := range c.plans {
		out[i] = clonePlan(p)
	}
	return out
}

// Resolve returns the plan with the given id, falling back to free.
func (c *PlanCatalog) Resolve(id models.PlanType) models.Plan {
	for _, p := range c.plans {
		if p.ID == id {
			return clonePlan(p)
		}
	}
	return clonePlan(c.plans[0])
}

func (c *PlanCatalog) Exists(id models.PlanType) bool {
	return slices.ContainsFunc(c.plans, func(p models.Plan) bool { return p.ID == id })
}

func clonePlan(p models.Plan) models.Plan {
	p.Features = slices.Clone(p.Features)
	return p
}

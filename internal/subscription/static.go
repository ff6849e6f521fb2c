package subscription

import (
	"context"
	"sync"

	"github.com/BroadApps-official/App-056/internal/models"
)

// DefaultPlans mirrors the "main" paywall: an annual and a weekly plan.
func DefaultPlans() []models.Plan {
	return []models.Plan{
		{ID: "yearly", ProductID: 1, Title: "Annual", Price: "$39.99"},
		{ID: "weekly", ProductID: 2, Title: "Weekly", Price: "$6.99"},
	}
}

// StaticBilling is an in-process Billing used in development and tests, where
// no store SDK is attached. Every purchase of a known plan succeeds.
type StaticBilling struct {
	mu       sync.Mutex
	plans    []models.Plan
	entitled bool
	owned    bool
}

func NewStaticBilling(plans []models.Plan, entitled bool) *StaticBilling {
	return &StaticBilling{plans: plans, entitled: entitled}
}

func (b *StaticBilling) Plans(context.Context) ([]models.Plan, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Plan(nil), b.plans...), nil
}

func (b *StaticBilling) HasPremium(context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entitled, nil
}

func (b *StaticBilling) Purchase(_ context.Context, planID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.plans {
		if p.ID == planID {
			b.entitled = true
			b.owned = true
			return true, nil
		}
	}
	return false, nil
}

// Restore succeeds only when something was bought earlier.
func (b *StaticBilling) Restore(context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.owned {
		b.entitled = true
	}
	return b.owned, nil
}

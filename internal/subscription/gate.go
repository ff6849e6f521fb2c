package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/BroadApps-official/App-056/internal/realtime"
)

var (
	ErrNotEntitled = errors.New("subscription: premium access required")
	ErrUnknownPlan = errors.New("subscription: unknown plan")
)

// Billing is the store SDK that owns products and receipts.
type Billing interface {
	Plans(ctx context.Context) ([]models.Plan, error)
	HasPremium(ctx context.Context) (bool, error)
	Purchase(ctx context.Context, planID string) (bool, error)
	Restore(ctx context.Context) (bool, error)
}

// PaidPlanReporter tells the generation backend about a completed purchase.
type PaidPlanReporter interface {
	SetPaidPlan(ctx context.Context, userID string, productID int) (map[string]any, error)
}

// Gate caches the entitlement flag and plan catalog and decides whether premium
// actions may proceed. The flag belongs to the install: sessions are only
// issued for the install user, as with the store account the billing SDK uses.
type Gate struct {
	mu       sync.RWMutex
	state    models.SubscriptionState
	billing  Billing
	reporter PaidPlanReporter
	bus      realtime.Bus
	enforce  bool
	log      *logger.Logger
}

func NewGate(billing Billing, reporter PaidPlanReporter, bus realtime.Bus, enforce bool, log *logger.Logger) *Gate {
	return &Gate{
		billing:  billing,
		reporter: reporter,
		bus:      bus,
		enforce:  enforce,
		log:      log.With("service", "SubscriptionGate"),
	}
}

// Refresh reloads plans and entitlement from billing.
func (g *Gate) Refresh(ctx context.Context) error {
	plans, err := g.billing.Plans(ctx)
	if err != nil {
		return fmt.Errorf("failed to load plans: %w", err)
	}
	entitled, err := g.billing.HasPremium(ctx)
	if err != nil {
		return fmt.Errorf("failed to check entitlement: %w", err)
	}

	g.mu.Lock()
	g.state = models.SubscriptionState{Entitled: entitled, Plans: plans, RefreshedAt: time.Now().UTC()}
	g.mu.Unlock()

	g.log.Info("Subscription state refreshed", "entitled", entitled, "plans", len(plans))
	return nil
}

func (g *Gate) IsEntitled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state.Entitled
}

func (g *Gate) State() models.SubscriptionState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := g.state
	out.Plans = append([]models.Plan(nil), g.state.Plans...)
	return out
}

// Require returns ErrNotEntitled when premium is enforced and not owned.
func (g *Gate) Require() error {
	if !g.enforce || g.IsEntitled() {
		return nil
	}
	return ErrNotEntitled
}

// Purchase buys planID. On success the backend is told about it; that report
// is best effort and never fails the purchase.
func (g *Gate) Purchase(ctx context.Context, userID, planID string) (bool, error) {
	plan, ok := g.plan(planID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}

	success, err := g.billing.Purchase(ctx, planID)
	if err != nil {
		g.log.Warn("Purchase failed", "plan", planID, "error", err)
		return false, err
	}
	if !success {
		return false, nil
	}

	g.setEntitled(ctx, userID, true)
	if g.reporter != nil {
		if _, err := g.reporter.SetPaidPlan(ctx, userID, plan.ProductID); err != nil {
			g.log.Warn("Failed to report paid plan", "user_id", userID, "product_id", plan.ProductID, "error", err)
		}
	}
	return true, nil
}

func (g *Gate) Restore(ctx context.Context, userID string) (bool, error) {
	restored, err := g.billing.Restore(ctx)
	if err != nil {
		g.log.Warn("Restore failed", "error", err)
		return false, err
	}
	if restored {
		g.setEntitled(ctx, userID, true)
	}
	return restored, nil
}

func (g *Gate) plan(planID string) (models.Plan, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.state.Plans {
		if p.ID == planID {
			return p, true
		}
	}
	return models.Plan{}, false
}

func (g *Gate) setEntitled(ctx context.Context, userID string, entitled bool) {
	g.mu.Lock()
	changed := g.state.Entitled != entitled
	g.state.Entitled = entitled
	g.state.RefreshedAt = time.Now().UTC()
	g.mu.Unlock()

	if !changed || g.bus == nil {
		return
	}
	if err := g.bus.Publish(ctx, realtime.Event{
		Type:    realtime.EventSubscriptionChanged,
		UserID:  userID,
		Payload: realtime.SubscriptionChangedPayload(entitled),
	}); err != nil {
		g.log.Warn("Failed to publish subscription change", "error", err)
	}
}

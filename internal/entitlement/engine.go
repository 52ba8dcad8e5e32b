package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/fortune-bot/internal/commerce"
	"github.com/example/fortune-bot/internal/kv"
	"github.com/example/fortune-bot/internal/platform/analytics"
	"github.com/example/fortune-bot/internal/usage"
)

var (
	// ErrOrderNotPaid means the order exists but carries no paid signal.
	ErrOrderNotPaid = errors.New("entitlement: order is not paid")
	// ErrOrderAlreadyUsed means the same user already redeemed this order.
	ErrOrderAlreadyUsed = errors.New("entitlement: order already redeemed")
	// ErrOrderOwnedByOther means a different user redeemed this order first.
	ErrOrderOwnedByOther = errors.New("entitlement: order redeemed by another user")
	// ErrVerifyUnavailable means a subscription re-verification could not
	// reach the shop API. Access is denied (fail closed) but the caller
	// should apologize rather than blame the user.
	ErrVerifyUnavailable = errors.New("entitlement: subscription verification unavailable")
)

// OrderLookup is the slice of the commerce client the engine needs.
type OrderLookup interface {
	LookupOrder(ctx context.Context, token string) (*commerce.Order, error)
}

type Engine struct {
	store  kv.Store
	usage  usage.Store
	shop   OrderLookup
	rules  commerce.PlanRules
	policy Policy
	events *analytics.Publisher
	log    *zap.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

func NewEngine(store kv.Store, us usage.Store, shop OrderLookup, rules commerce.PlanRules, policy Policy, events *analytics.Publisher, log *zap.Logger) *Engine {
	if policy.DayPassDuration <= 0 {
		policy.DayPassDuration = 24 * time.Hour
	}
	return &Engine{
		store:  store,
		usage:  us,
		shop:   shop,
		rules:  rules,
		policy: policy,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

// Redeem converts an order token into an entitlement for userID.
//
// The usage record is written before the entitlement; a crash between
// the two writes loses the purchase, which is an accepted risk — the
// alternative (entitlement first) would allow double redemption.
func (e *Engine) Redeem(ctx context.Context, userID, token string) (*Entitlement, error) {
	order, err := e.shop.LookupOrder(ctx, token)
	if err != nil {
		return nil, err
	}
	if !order.Paid() {
		return nil, ErrOrderNotPaid
	}

	kind, err := e.rules.Infer(order)
	if err != nil {
		return nil, err
	}

	orderID := order.ID
	if orderID == "" {
		orderID = order.Number
	}

	claim, err := e.usage.Claim(ctx, orderID, userID)
	if err != nil {
		return nil, fmt.Errorf("entitlement: usage claim: %w", err)
	}
	if claim.Duplicate {
		e.events.Publish(analytics.SubjectRedemptionRejected, "redemption_rejected", userID,
			map[string]any{"order_id": orderID, "owner": claim.Owner})
		if claim.Owner != "" && claim.Owner != userID {
			return nil, ErrOrderOwnedByOther
		}
		return nil, ErrOrderAlreadyUsed
	}

	ent := &Entitlement{
		Kind:      kind,
		OrderID:   orderID,
		GrantedAt: e.now().UTC(),
	}
	if kind == commerce.PlanDayPass {
		exp := ent.GrantedAt.Add(e.policy.DayPassDuration)
		ent.ExpiresAt = &exp
	}

	if err := e.store.Set(ctx, entKey(userID), ent, 0); err != nil {
		return nil, fmt.Errorf("entitlement: store: %w", err)
	}

	e.log.Info("entitlement granted",
		zap.String("user_id", userID),
		zap.String("plan", string(kind)),
		zap.String("order_id", orderID),
	)
	e.events.Publish(analytics.SubjectOrderRedeemed, "order_redeemed", userID,
		map[string]any{"order_id": orderID, "plan": string(kind)})
	return ent, nil
}

// Check reports the user's current standing. Expired entitlements are
// deleted the moment expiry is detected; the standing still reports
// Expired once so the caller can explain what happened.
func (e *Engine) Check(ctx context.Context, userID string) (Standing, *Entitlement, error) {
	var ent Entitlement
	found, err := e.store.Get(ctx, entKey(userID), &ent)
	if err != nil {
		return StandingNone, nil, fmt.Errorf("entitlement: load: %w", err)
	}
	if !found {
		return StandingNone, nil, nil
	}

	if ent.ExpiresAt != nil && e.now().After(*ent.ExpiresAt) {
		if err := e.store.Delete(ctx, entKey(userID)); err != nil {
			e.log.Warn("expired entitlement cleanup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return StandingExpired, &ent, nil
	}

	if ent.Kind == commerce.PlanTrial && ent.Consumed {
		return StandingExhausted, &ent, nil
	}

	if ent.Kind == commerce.PlanSubscription && e.policy.SubscriptionReverify {
		order, err := e.shop.LookupOrder(ctx, ent.OrderID)
		if err != nil {
			if errors.Is(err, commerce.ErrOrderNotFound) {
				// Order gone from the shop: treat as lapsed.
				_ = e.store.Delete(ctx, entKey(userID))
				return StandingExpired, &ent, nil
			}
			// Fail closed on transport errors.
			return StandingNone, &ent, ErrVerifyUnavailable
		}
		if !order.Paid() {
			_ = e.store.Delete(ctx, entKey(userID))
			return StandingExpired, &ent, nil
		}
	}

	return StandingActive, &ent, nil
}

// Consume spends a single-use plan after a successful reply.
// Unlimited plans are untouched.
func (e *Engine) Consume(ctx context.Context, userID string) error {
	var ent Entitlement
	found, err := e.store.Get(ctx, entKey(userID), &ent)
	if err != nil || !found {
		return err
	}
	if ent.Kind != commerce.PlanTrial || ent.Consumed {
		return nil
	}
	ent.Consumed = true
	return e.store.Set(ctx, entKey(userID), &ent, 0)
}

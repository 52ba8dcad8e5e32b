// Package entitlement decides whether a user currently holds the right to
// receive readings, and turns verified paid orders into that right.
package entitlement

import (
	"time"

	"github.com/example/fortune-bot/internal/commerce"
)

// Entitlement is a user's current access right. At most one exists per
// user; a new successful redemption overwrites the previous one.
type Entitlement struct {
	Kind      commerce.PlanKind `json:"kind"`
	OrderID   string            `json:"order_id"`
	GrantedAt time.Time         `json:"granted_at"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	// Consumed marks a spent single-use plan.
	Consumed bool `json:"consumed"`
}

// Standing is the user's effective state as seen by the chat path.
type Standing int

const (
	StandingNone Standing = iota
	StandingActive
	StandingExpired
	StandingExhausted
)

func (s Standing) String() string {
	switch s {
	case StandingActive:
		return "active"
	case StandingExpired:
		return "expired"
	case StandingExhausted:
		return "exhausted"
	default:
		return "none"
	}
}

// Policy holds the product-policy knobs that the engine must not guess.
type Policy struct {
	// DayPassDuration is the validity window of a time-boxed pass.
	DayPassDuration time.Duration
	// SubscriptionReverify controls whether a subscription re-checks the
	// original order's paid status on every use. When off, the
	// subscription is trusted once granted.
	SubscriptionReverify bool
}

// entKey is the kv key holding a user's entitlement.
func entKey(userID string) string { return "fortune:ent:" + userID }

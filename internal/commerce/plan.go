package commerce

import (
	"errors"
	"strings"
)

// PlanKind identifies which usage plan a purchase maps to.
type PlanKind string

const (
	PlanTrial        PlanKind = "trial"
	PlanDayPass      PlanKind = "daypass"
	PlanSubscription PlanKind = "subscription"
)

// ErrPlanUnknown means no rule matched the order's items or amount.
// Callers must surface a "could not identify product" message rather
// than guessing.
var ErrPlanUnknown = errors.New("commerce: cannot identify plan from order")

// PriceBand maps a paid-amount range to a plan when item matching fails.
// Max<=0 means no upper bound.
type PriceBand struct {
	Min  float64
	Max  float64
	Kind PlanKind
}

// PlanRules resolves an order to a plan kind: exact product id / SKU
// match first, then title keywords, then price bands.
type PlanRules struct {
	ProductIDs map[string]PlanKind
	Keywords   map[PlanKind][]string
	PriceBands []PriceBand
}

// DefaultPlanRules returns the keyword sets used when no explicit
// product table is configured.
func DefaultPlanRules() PlanRules {
	return PlanRules{
		ProductIDs: map[string]PlanKind{},
		Keywords: map[PlanKind][]string{
			PlanTrial:        {"trial", "one-time", "single reading", "first reading"},
			PlanDayPass:      {"day pass", "daypass", "24h", "24-hour", "1 day"},
			PlanSubscription: {"subscription", "monthly", "unlimited", "member"},
		},
	}
}

func (r PlanRules) Infer(o *Order) (PlanKind, error) {
	if o == nil {
		return "", ErrPlanUnknown
	}

	for _, it := range o.Items {
		if kind, ok := r.ProductIDs[it.ProductID]; ok && it.ProductID != "" {
			return kind, nil
		}
		if kind, ok := r.ProductIDs[it.SKU]; ok && it.SKU != "" {
			return kind, nil
		}
	}

	// Keyword order matters: daypass before trial, so "1 day trial pass"
	// style titles resolve to the stronger product.
	for _, kind := range []PlanKind{PlanSubscription, PlanDayPass, PlanTrial} {
		words := r.Keywords[kind]
		for _, it := range o.Items {
			title := strings.ToLower(it.Title)
			for _, w := range words {
				if w != "" && strings.Contains(title, w) {
					return kind, nil
				}
			}
		}
	}

	for _, band := range r.PriceBands {
		if o.Amount >= band.Min && (band.Max <= 0 || o.Amount < band.Max) {
			return band.Kind, nil
		}
	}

	return "", ErrPlanUnknown
}

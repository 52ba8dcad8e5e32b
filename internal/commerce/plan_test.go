package commerce

import (
	"errors"
	"testing"
)

func TestInfer_ProductIDMatch(t *testing.T) {
	rules := DefaultPlanRules()
	rules.ProductIDs["prod-sub-01"] = PlanSubscription

	o := &Order{ID: "1", Items: []Item{{ProductID: "prod-sub-01", Title: "whatever"}}}
	kind, err := rules.Infer(o)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != PlanSubscription {
		t.Fatalf("expected subscription, got %s", kind)
	}
}

func TestInfer_SKUMatch(t *testing.T) {
	rules := DefaultPlanRules()
	rules.ProductIDs["SKU-TRIAL"] = PlanTrial

	o := &Order{ID: "1", Items: []Item{{SKU: "SKU-TRIAL"}}}
	kind, err := rules.Infer(o)
	if err != nil || kind != PlanTrial {
		t.Fatalf("expected trial, got %s (%v)", kind, err)
	}
}

func TestInfer_TitleKeywords(t *testing.T) {
	rules := DefaultPlanRules()
	cases := []struct {
		title string
		want  PlanKind
	}{
		{"Fortune Trial Reading", PlanTrial},
		{"24-Hour Day Pass", PlanDayPass},
		{"Monthly Unlimited Plan", PlanSubscription},
	}
	for _, tc := range cases {
		o := &Order{ID: "1", Items: []Item{{Title: tc.title}}}
		kind, err := rules.Infer(o)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.title, err)
		}
		if kind != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.title, tc.want, kind)
		}
	}
}

func TestInfer_DayPassBeatsTrialInMixedTitle(t *testing.T) {
	rules := DefaultPlanRules()
	o := &Order{ID: "1", Items: []Item{{Title: "1 Day Trial Pass"}}}
	kind, err := rules.Infer(o)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != PlanDayPass {
		t.Fatalf("expected daypass to win over trial, got %s", kind)
	}
}

func TestInfer_PriceBandFallback(t *testing.T) {
	rules := DefaultPlanRules()
	rules.PriceBands = []PriceBand{
		{Min: 0, Max: 500, Kind: PlanTrial},
		{Min: 500, Max: 2000, Kind: PlanDayPass},
		{Min: 2000, Kind: PlanSubscription},
	}

	o := &Order{ID: "1", Amount: 980, Items: []Item{{Title: "mystery product"}}}
	kind, err := rules.Infer(o)
	if err != nil || kind != PlanDayPass {
		t.Fatalf("expected daypass via price band, got %s (%v)", kind, err)
	}

	o = &Order{ID: "2", Amount: 3500}
	kind, err = rules.Infer(o)
	if err != nil || kind != PlanSubscription {
		t.Fatalf("expected subscription via open-ended band, got %s (%v)", kind, err)
	}
}

func TestInfer_Unknown(t *testing.T) {
	rules := DefaultPlanRules()
	o := &Order{ID: "1", Items: []Item{{Title: "gift wrapping"}}}
	if _, err := rules.Infer(o); !errors.Is(err, ErrPlanUnknown) {
		t.Fatalf("expected ErrPlanUnknown, got %v", err)
	}
	if _, err := rules.Infer(nil); !errors.Is(err, ErrPlanUnknown) {
		t.Fatalf("expected ErrPlanUnknown for nil order, got %v", err)
	}
}

package domain

import (
	"fmt"
	"strings"
)

// Plan enumerates billing plans.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPro     Plan = "pro"
	PlanProPlus Plan = "pro_plus"
)

// IsPaid reports whether the plan requires a checkout session.
func (p Plan) IsPaid() bool {
	return p == PlanPro || p == PlanProPlus
}

// ParsePlan normalizes user input into a known plan.
func ParsePlan(s string) (Plan, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free":
		return PlanFree, nil
	case "pro":
		return PlanPro, nil
	case "pro_plus", "pro+", "proplus":
		return PlanProPlus, nil
	default:
		return "", fmt.Errorf("unsupported plan %q", s)
	}
}

// PlanInfo describes a plan for display purposes.
type PlanInfo struct {
	Plan        Plan
	Price       string
	Period      string
	Description string
	Features    []string
}

// Plans lists the offered tiers in display order.
var Plans = []PlanInfo{
	{
		Plan:        PlanFree,
		Price:       "$0",
		Period:      "per month",
		Description: "Perfect for trying out",
		Features: []string{
			"1 image per day",
			"Standard processing",
			"Basic detection",
			"Watermark applied",
		},
	},
	{
		Plan:        PlanPro,
		Price:       "$5",
		Period:      "per month",
		Description: "For serious sellers",
		Features: []string{
			"Unlimited images",
			"Fast processing",
			"No watermark",
			"Improved detection accuracy",
		},
	},
	{
		Plan:        PlanProPlus,
		Price:       "$9",
		Period:      "per month",
		Description: "For teams and power users",
		Features: []string{
			"Everything in Pro",
			"Ultra-fast processing",
			"Highest detection accuracy",
			"Priority queue",
		},
	},
}

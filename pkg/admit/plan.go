package admit

import (
	"fmt"
	"strings"
	"time"
)

// ParsePlanType converts a plan string into a PlanType. Unknown strings
// are an integration error, not a policy outcome, so they fail hard
// with ErrInvalidPlanType.
func ParsePlanType(s string) (PlanType, error) {
	switch PlanType(strings.ToLower(strings.TrimSpace(s))) {
	case PlanNone:
		return PlanNone, nil
	case PlanDay:
		return PlanDay, nil
	case PlanWeek:
		return PlanWeek, nil
	case PlanMonth:
		return PlanMonth, nil
	case PlanYear:
		return PlanYear, nil
	case PlanWeekUltimate:
		return PlanWeekUltimate, nil
	case PlanMonthUltimate:
		return PlanMonthUltimate, nil
	case PlanYearUltimate:
		return PlanYearUltimate, nil
	default:
		return PlanNone, fmt.Errorf("%w: %q", ErrInvalidPlanType, s)
	}
}

// PlanTypeFromProductID infers a plan from a billing product identifier
// by its naming convention. Unrecognized products default to a monthly
// plan.
func PlanTypeFromProductID(productID string) PlanType {
	id := strings.ToLower(productID)
	ultimate := strings.Contains(id, "ultimate")
	switch {
	case strings.Contains(id, "year"):
		if ultimate {
			return PlanYearUltimate
		}
		return PlanYear
	case strings.Contains(id, "month"):
		if ultimate {
			return PlanMonthUltimate
		}
		return PlanMonth
	case strings.Contains(id, "week"), strings.Contains(id, "day"):
		if ultimate {
			return PlanWeekUltimate
		}
		return PlanWeek
	default:
		return PlanMonth
	}
}

// IsUltimatePlan reports whether the plan belongs to the ultimate tier.
func IsUltimatePlan(p PlanType) bool {
	return p == PlanWeekUltimate || p == PlanMonthUltimate || p == PlanYearUltimate
}

// IsStandardPlan reports whether the plan belongs to the standard tier.
func IsStandardPlan(p PlanType) bool {
	return p == PlanDay || p == PlanWeek || p == PlanMonth || p == PlanYear
}

// NormalizePlanType maps legacy plans onto their current equivalent.
// Day was sold as a 7-day plan, so it is treated as Week everywhere.
func NormalizePlanType(p PlanType) PlanType {
	if p == PlanDay {
		return PlanWeek
	}
	return p
}

// PlanDays returns the paid duration of a plan in days.
func PlanDays(p PlanType) (int, error) {
	switch NormalizePlanType(p) {
	case PlanWeek, PlanWeekUltimate:
		return 7, nil
	case PlanMonth, PlanMonthUltimate:
		return 30, nil
	case PlanYear, PlanYearUltimate:
		return 390, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidPlanType, p)
	}
}

// SubscriptionEndDate computes when a plan purchased at start lapses.
func SubscriptionEndDate(p PlanType, start time.Time) (time.Time, error) {
	days, err := PlanDays(p)
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 0, days), nil
}

// PlanDisplayName returns a user-facing name for a plan.
func PlanDisplayName(p PlanType) string {
	switch p {
	case PlanDay, PlanWeek:
		return "Weekly"
	case PlanMonth:
		return "Monthly"
	case PlanYear:
		return "Annual"
	case PlanWeekUltimate:
		return "Weekly Ultimate"
	case PlanMonthUltimate:
		return "Monthly Ultimate"
	case PlanYearUltimate:
		return "Annual Ultimate"
	case PlanNone:
		return "No Subscription"
	default:
		return "Unknown"
	}
}

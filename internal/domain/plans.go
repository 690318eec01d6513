/**
 * @description
 * This file defines the static pricing plan catalog served to the pricing page
 * and used to resolve a plan id to its provider price reference at checkout
 * time. The price references themselves come from deployment configuration.
 */
package domain

// Plan describes one entry of the pricing catalog. The feature list is purely
// descriptive and carries no business logic.
type Plan struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    int64    `json:"price"`
	Currency string   `json:"currency"`
	Duration string   `json:"duration"`
	PriceID  string   `json:"price_id"`
	Popular  bool     `json:"popular,omitempty"`
	Savings  string   `json:"savings,omitempty"`
	Features []string `json:"features"`
}

// PlanCatalog holds the two offered plans keyed by plan id.
type PlanCatalog struct {
	plans []Plan
}

// NewPlanCatalog builds the catalog from the configured provider price
// references for the monthly and yearly plans.
func NewPlanCatalog(monthlyPriceID, yearlyPriceID string) PlanCatalog {
	return PlanCatalog{plans: []Plan{
		{
			ID:       PlanMonthly,
			Name:     "Monthly Plan",
			Price:    49,
			Currency: "$",
			Duration: "month",
			PriceID:  monthlyPriceID,
			Features: []string{
				"Unlimited appointments",
				"Customer management",
				"Service management",
				"Email notifications",
				"Analytics dashboard",
				"Team members (up to 5)",
			},
		},
		{
			ID:       PlanYearly,
			Name:     "Yearly Plan",
			Price:    499,
			Currency: "$",
			Duration: "year",
			PriceID:  yearlyPriceID,
			Popular:  true,
			Savings:  "15%",
			Features: []string{
				"Everything in Monthly",
				"Save $89 compared to monthly",
				"Priority support",
				"Custom branding",
				"Advanced analytics",
				"Unlimited team members",
			},
		},
	}}
}

// Plans returns the catalog entries in display order.
func (c PlanCatalog) Plans() []Plan {
	return c.plans
}

// Resolve looks a plan up by id. It returns false when the id is unknown or
// the plan's price reference is not configured for this deployment.
func (c PlanCatalog) Resolve(planID string) (Plan, bool) {
	for _, p := range c.plans {
		if p.ID == planID {
			if p.PriceID == "" {
				return Plan{}, false
			}
			return p, true
		}
	}
	return Plan{}, false
}

// PlanForPriceID maps a provider price reference back to a local plan name.
// Any price that is not the yearly reference is treated as monthly.
func (c PlanCatalog) PlanForPriceID(priceID string) string {
	for _, p := range c.plans {
		if p.ID == PlanYearly && p.PriceID != "" && p.PriceID == priceID {
			return PlanYearly
		}
	}
	return PlanMonthly
}

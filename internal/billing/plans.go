// Package billing sells monthly subscription plans through a payment provider.
package billing

import "strings"

// Plan is a monthly subscription tier. Prices are in the smallest currency unit.
type Plan struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	PriceCents int64    `json:"price"`
	Currency   string   `json:"currency"`
	Interval   string   `json:"billing_period"`
	Features   []string `json:"features"`
}

var plans = []Plan{
	{
		ID: "basic", Name: "Basic Plan", PriceCents: 990, Currency: "usd", Interval: "month",
		Features: []string{"5 resumes per month", "Basic AI templates", "PDF export"},
	},
	{
		ID: "pro", Name: "Pro Plan", PriceCents: 1990, Currency: "usd", Interval: "month",
		Features: []string{"Unlimited resumes", "All AI templates", "Premium PDF templates", "Interview prep", "Priority support"},
	},
	{
		ID: "enterprise", Name: "Enterprise Plan", PriceCents: 4990, Currency: "usd", Interval: "month",
		Features: []string{"Everything in Pro", "Team collaboration", "Custom templates", "API access", "Dedicated support"},
	},
}

// Plans returns the plan catalog.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// LookupPlan finds a plan by id.
func LookupPlan(id string) (Plan, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// summary is the short product description shown on the checkout page.
func (p Plan) summary() string {
	n := min(2, len(p.Features))
	return strings.Join(p.Features[:n], ", ") + "..."
}

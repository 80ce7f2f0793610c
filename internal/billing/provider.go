package billing

import (
	"context"
)

// Webhook event types acted upon.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Checkout is a hosted checkout session.
type Checkout struct {
	ID             string `json:"session_id"`
	URL            string `json:"session_url,omitempty"`
	Status         string `json:"status,omitempty"`
	PaymentStatus  string `json:"payment_status,omitempty"`
	CustomerEmail  string `json:"customer_email,omitempty"`
	CustomerID     string `json:"customer_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	PlanID         string `json:"plan,omitempty"`
}

// Event is a verified webhook notification.
type Event struct {
	ID             string
	Type           string
	Checkout       *Checkout
	SubscriptionID string
}

// Provider talks to the payment processor.
type Provider interface {
	CreateCheckout(ctx context.Context, plan Plan, email string) (*Checkout, error)
	RetrieveCheckout(ctx context.Context, id string) (*Checkout, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

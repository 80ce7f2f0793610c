package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/spigell/resume-agent/internal/apperr"
)

const stripeService = "payment provider"

// StripeConfig holds the Stripe credentials and redirect targets.
type StripeConfig struct {
	APIKey        string `mapstructure:"api-key"`
	WebhookSecret string `mapstructure:"webhook-secret"`
	// FrontendURL receives the success and cancel redirects.
	FrontendURL string `mapstructure:"frontend-url"`
}

// Stripe implements Provider with hosted Stripe Checkout.
type Stripe struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
}

// NewStripe validates cfg and builds the provider.
func NewStripe(cfg StripeConfig, backends *stripe.Backends) (*Stripe, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("stripe api key is required")
	}
	frontend := strings.TrimRight(strings.TrimSpace(cfg.FrontendURL), "/")
	if frontend == "" {
		frontend = "http://localhost:3000"
	}

	api := &client.API{}
	api.Init(key, backends)

	return &Stripe{
		api:           api,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		successURL:    frontend + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		cancelURL:     frontend + "/payment/cancelled",
	}, nil
}

func (s *Stripe) CreateCheckout(ctx context.Context, plan Plan, email string) (*Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		CustomerEmail: stripe.String(email),
		SuccessURL:    stripe.String(s.successURL),
		CancelURL:     stripe.String(s.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(plan.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(plan.Name),
					Description: stripe.String(plan.summary()),
				},
				UnitAmount: stripe.Int64(plan.PriceCents),
				Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
					Interval:      stripe.String(plan.Interval),
					IntervalCount: stripe.Int64(1),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	params.AddMetadata("plan", plan.ID)

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, stripeError(err)
	}
	return checkoutFromStripe(sess), nil
}

func (s *Stripe) RetrieveCheckout(ctx context.Context, id string) (*Checkout, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, stripeError(err)
	}
	return checkoutFromStripe(sess), nil
}

func (s *Stripe) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	if _, err := s.api.Subscriptions.Cancel(subscriptionID, params); err != nil {
		return stripeError(err)
	}
	return nil
}

func (s *Stripe) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if s.webhookSecret == "" {
		return nil, apperr.NotConfigured("payment webhook secret")
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, apperr.Unauthorized("invalid webhook signature")
	}

	out := &Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data == nil {
		return out, nil
	}

	switch out.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			return nil, apperr.Validation("malformed checkout session payload")
		}
		out.Checkout = checkoutFromStripe(&sess)
	case EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return nil, apperr.Validation("malformed subscription payload")
		}
		out.SubscriptionID = sub.ID
	}
	return out, nil
}

func checkoutFromStripe(sess *stripe.CheckoutSession) *Checkout {
	c := &Checkout{
		ID:            sess.ID,
		URL:           sess.URL,
		Status:        string(sess.Status),
		PaymentStatus: string(sess.PaymentStatus),
		CustomerEmail: sess.CustomerEmail,
		PlanID:        sess.Metadata["plan"],
	}
	if c.CustomerEmail == "" && sess.CustomerDetails != nil {
		c.CustomerEmail = sess.CustomerDetails.Email
	}
	if sess.Customer != nil {
		c.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		c.SubscriptionID = sess.Subscription.ID
	}
	return c
}

// stripeError separates rejected requests from transport failures.
func stripeError(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		switch {
		case serr.HTTPStatusCode == 404:
			return apperr.NotFound("checkout session")
		case serr.HTTPStatusCode >= 400 && serr.HTTPStatusCode < 500 && serr.HTTPStatusCode != 401 && serr.HTTPStatusCode != 429:
			return apperr.Validation("payment provider rejected the request: %s", serr.Msg)
		}
	}
	return apperr.UpstreamUnavailable(stripeService, fmt.Errorf("stripe: %w", err))
}

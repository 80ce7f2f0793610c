package billing

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/resume-agent/internal/apperr"
)

// PlanStore records which plan a user is on.
type PlanStore interface {
	SetPlan(ctx context.Context, email, plan, customerID, subscriptionID string) error
	ResetPlan(ctx context.Context, subscriptionID string) error
}

// Service validates billing requests and applies webhook events to accounts.
// A nil provider means payments are not configured.
type Service struct {
	provider Provider
	store    PlanStore
	logger   *zap.Logger
}

func NewService(provider Provider, store PlanStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{provider: provider, store: store, logger: log}
}

// Enabled reports whether a provider is configured.
func (s *Service) Enabled() bool { return s.provider != nil }

func (s *Service) require() error {
	if s.provider == nil {
		return apperr.NotConfigured("payments")
	}
	return nil
}

// Checkout starts a hosted checkout for planID.
func (s *Service) Checkout(ctx context.Context, planID, email string) (*Checkout, error) {
	if err := s.require(); err != nil {
		return nil, err
	}
	plan, ok := LookupPlan(planID)
	if !ok {
		return nil, apperr.Validation("invalid plan type %q", planID)
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	return s.provider.CreateCheckout(ctx, plan, email)
}

// Retrieve returns the state of a checkout session.
func (s *Service) Retrieve(ctx context.Context, sessionID string) (*Checkout, error) {
	if err := s.require(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.Validation("session_id is required")
	}
	return s.provider.RetrieveCheckout(ctx, sessionID)
}

// Manage applies action to a subscription. Only cancel is supported.
func (s *Service) Manage(ctx context.Context, subscriptionID, action string) error {
	if err := s.require(); err != nil {
		return err
	}
	if strings.TrimSpace(subscriptionID) == "" {
		return apperr.Validation("subscription_id is required")
	}
	if action != "cancel" {
		return apperr.Validation("unsupported action %q", action)
	}
	return s.provider.CancelSubscription(ctx, subscriptionID)
}

// HandleWebhook verifies payload and updates the affected account.
// Unhandled event types are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*Event, error) {
	if err := s.require(); err != nil {
		return nil, err
	}
	evt, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("event_id", evt.ID), zap.String("event_type", evt.Type))

	switch evt.Type {
	case EventCheckoutCompleted:
		c := evt.Checkout
		if c == nil || c.CustomerEmail == "" {
			log.Warn("checkout completed without a customer email")
			return evt, nil
		}
		plan := c.PlanID
		if _, ok := LookupPlan(plan); !ok {
			log.Warn("checkout completed for an unknown plan", zap.String("plan", plan))
			return evt, nil
		}
		if err := s.store.SetPlan(ctx, c.CustomerEmail, plan, c.CustomerID, c.SubscriptionID); err != nil {
			return nil, err
		}
		log.Info("subscription activated", zap.String("plan", plan))
	case EventSubscriptionDeleted:
		if err := s.store.ResetPlan(ctx, evt.SubscriptionID); err != nil {
			if apperr.Code(err) == apperr.CodeNotFound {
				log.Warn("cancelled subscription has no account", zap.String("subscription_id", evt.SubscriptionID))
				return evt, nil
			}
			return nil, err
		}
		log.Info("subscription cancelled", zap.String("subscription_id", evt.SubscriptionID))
	default:
		log.Debug("ignoring webhook event")
	}
	return evt, nil
}

package server

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/spigell/resume-agent/internal/apperr"
	"github.com/spigell/resume-agent/internal/billing"
)

const maxWebhookBody = 64 << 10

type checkoutRequest struct {
	PlanType string `json:"plan_type"`
	Email    string `json:"email"`
}

type retrieveRequest struct {
	SessionID string `json:"session_id"`
}

type manageRequest struct {
	Action         string `json:"action"`
	SubscriptionID string `json:"subscription_id"`
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]billing.Plan{"plans": billing.Plans()})
}

func (s *Server) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	checkout, err := s.deps.Billing.Checkout(r.Context(), req.PlanType, req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkout)
}

func (s *Server) handleRetrieveCheckout(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	checkout, err := s.deps.Billing.Retrieve(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkout)
}

// handleManageSubscription acts on the caller's own subscription. Admins may
// name any subscription.
func (s *Server) handleManageSubscription(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req manageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.SubscriptionID == "" {
		req.SubscriptionID = user.BillingSubscriptionID
	}
	if req.SubscriptionID != user.BillingSubscriptionID && !user.IsAdmin {
		s.writeError(w, r, apperr.Forbidden("subscription belongs to another account"))
		return
	}

	if err := s.deps.Billing.Manage(r.Context(), req.SubscriptionID, req.Action); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log(r).Info("subscription updated",
		zap.String("action", req.Action),
		zap.String("subscription_id", req.SubscriptionID),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "action": req.Action})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		s.writeError(w, r, apperr.Validation("invalid webhook body"))
		return
	}

	evt, err := s.deps.Billing.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "type": evt.Type})
}

package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/writinggym/internal/auth"
	"github.com/dukerupert/writinggym/internal/billing"
	"github.com/dukerupert/writinggym/internal/metrics"
)

// maxWebhookBytes matches the size Stripe documents for event payloads.
const maxWebhookBytes = 65536

type BillingHandler struct {
	service  *billing.Service
	webhooks *billing.Webhooks
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewBillingHandler(svc *billing.Service, wh *billing.Webhooks, m *metrics.Metrics, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{service: svc, webhooks: wh, metrics: m, logger: logger}
}

// Checkout handles POST /api/checkout. Signing in is optional.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[billing.CheckoutRequest](w, r)
	if !ok {
		return
	}
	var user *auth.User
	if u, ok := auth.FromContext(r.Context()); ok {
		user = &u
	}

	res, err := h.service.Checkout(r.Context(), user, req)
	switch {
	case errors.Is(err, billing.ErrPriceRequired):
		writeError(w, http.StatusBadRequest, "Either lookupKey or priceId is required")
		return
	case errors.Is(err, billing.ErrPriceNotFound):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Price not found", "message": err.Error()})
		return
	case errors.Is(err, billing.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, "successPath and cancelPath must start with /")
		return
	case errors.Is(err, billing.ErrNotConfigured):
		writeError(w, http.StatusInternalServerError, "payments are not configured")
		return
	case err != nil:
		h.logger.Error("create checkout session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create checkout session", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Portal handles POST /api/billing-portal
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	url, err := h.service.Portal(r.Context(), auth.UserID(r.Context()))
	switch {
	case errors.Is(err, billing.ErrNoSubscription):
		writeError(w, http.StatusNotFound, "No active subscription found")
		return
	case err != nil:
		h.logger.Error("create portal session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create portal session", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Webhook handles POST /webhooks/stripe. Once the signature checks out the
// event is acknowledged even if applying it fails, so Stripe does not retry
// events this service cannot process.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}

	event, err := h.webhooks.Verify(body, r.Header.Get("Stripe-Signature"))
	if errors.Is(err, billing.ErrWebhookNotConfigured) {
		h.logger.Error("stripe webhook secret is not configured")
		writeError(w, http.StatusInternalServerError, "Webhook secret not configured")
		return
	}
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		h.metrics.Webhook("unknown", "invalid_signature")
		writeError(w, http.StatusBadRequest, "Webhook Error: "+err.Error())
		return
	}

	h.logger.Info("webhook received", "type", event.Type, "id", event.ID)
	if err := h.webhooks.Handle(r.Context(), event); err != nil {
		h.logger.Error("webhook processing failed", "type", event.Type, "id", event.ID, "error", err)
		h.metrics.Webhook(string(event.Type), "error")
	} else {
		h.metrics.Webhook(string(event.Type), "ok")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

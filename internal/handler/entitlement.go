package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/writinggym/internal/auth"
	"github.com/dukerupert/writinggym/internal/entitlement"
	"github.com/dukerupert/writinggym/internal/metrics"
	"github.com/dukerupert/writinggym/internal/model"
	"github.com/dukerupert/writinggym/internal/store"
)

type EntitlementHandler struct {
	resolver   *entitlement.Resolver
	planStore  *store.PlanStore
	categories *store.CategoryStore
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewEntitlementHandler(r *entitlement.Resolver, ps *store.PlanStore, cs *store.CategoryStore, m *metrics.Metrics, logger *slog.Logger) *EntitlementHandler {
	return &EntitlementHandler{resolver: r, planStore: ps, categories: cs, metrics: m, logger: logger}
}

// entitlementsResponse is the snapshot plus the derived remaining count.
type entitlementsResponse struct {
	entitlement.Snapshot
	Remaining *int `json:"remaining_this_week"`
}

// Plans handles GET /api/plans
func (h *EntitlementHandler) Plans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.planStore.List()
	if err != nil {
		h.logger.Error("list plans", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list plans")
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// Entitlements handles GET /api/entitlements
func (h *EntitlementHandler) Entitlements(w http.ResponseWriter, r *http.Request) {
	snap, err := h.resolver.Resolve(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("resolve entitlements", "error", err)
		writeError(w, http.StatusServiceUnavailable, "entitlements unavailable")
		return
	}
	writeJSON(w, http.StatusOK, entitlementsResponse{Snapshot: snap, Remaining: snap.Remaining()})
}

// Categories handles GET /api/categories
func (h *EntitlementHandler) Categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.categories.List()
	if err != nil {
		h.logger.Error("list categories", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	if cats == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

type categoryAccessResponse struct {
	CategoryID    string              `json:"category_id"`
	Allowed       bool                `json:"allowed"`
	MinAccess     model.ExtractAccess `json:"min_access"`
	ExtractAccess model.ExtractAccess `json:"extract_access"`
}

// CategoryAccess handles GET /api/categories/{id}/access
func (h *EntitlementHandler) CategoryAccess(w http.ResponseWriter, r *http.Request) {
	cat, err := h.categories.Get(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get category", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get category")
		return
	}
	if cat == nil {
		writeError(w, http.StatusNotFound, "category not found")
		return
	}

	snap, err := h.resolver.Resolve(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("resolve entitlements", "error", err)
		writeError(w, http.StatusServiceUnavailable, "entitlements unavailable")
		return
	}
	writeJSON(w, http.StatusOK, categoryAccessResponse{
		CategoryID:    cat.ID,
		Allowed:       snap.ExtractAccess.Allows(cat.MinAccess),
		MinAccess:     cat.MinAccess,
		ExtractAccess: snap.ExtractAccess,
	})
}

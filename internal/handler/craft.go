package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/writinggym/internal/anthropic"
	"github.com/dukerupert/writinggym/internal/auth"
	"github.com/dukerupert/writinggym/internal/constraint"
	"github.com/dukerupert/writinggym/internal/craft"
	"github.com/dukerupert/writinggym/internal/entitlement"
	"github.com/dukerupert/writinggym/internal/metrics"
	"github.com/dukerupert/writinggym/internal/store"
	"github.com/dukerupert/writinggym/internal/websocket"
)

// CraftHandler serves the AI analysis and feedback endpoints. Both consume
// the weekly analysis quota.
type CraftHandler struct {
	resolver      *entitlement.Resolver
	analyzer      *craft.Analyzer
	analysisStore *store.AnalysisStore
	hub           *websocket.Hub
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func NewCraftHandler(r *entitlement.Resolver, a *craft.Analyzer, as *store.AnalysisStore, hub *websocket.Hub, m *metrics.Metrics, logger *slog.Logger) *CraftHandler {
	return &CraftHandler{resolver: r, analyzer: a, analysisStore: as, hub: hub, metrics: m, logger: logger}
}

type quotaExceededResponse struct {
	Error string `json:"error"`
	Used  int    `json:"used"`
	Limit *int   `json:"limit"`
}

const quotaExceededMessage = "Weekly analysis limit reached"

// gate resolves the caller's entitlements and writes the refusal when the
// quota is spent or cannot be checked. Store failures deny the request.
func (h *CraftHandler) gate(w http.ResponseWriter, userID string) (entitlement.Snapshot, bool) {
	snap, err := h.resolver.Resolve(userID)
	if err != nil {
		h.logger.Error("resolve entitlements", "user_id", userID, "error", err)
		h.metrics.Quota("unknown", "error")
		writeError(w, http.StatusServiceUnavailable, "entitlements unavailable")
		return snap, false
	}
	if !snap.Allowed {
		h.metrics.Quota(string(snap.PlanID), "blocked")
		writeJSON(w, http.StatusPaymentRequired, quotaExceededResponse{
			Error: quotaExceededMessage,
			Used:  snap.UsedThisWeek,
			Limit: snap.WeeklyLimit,
		})
		return snap, false
	}
	h.metrics.Quota(string(snap.PlanID), "allowed")
	return snap, true
}

// record appends the usage event after a successful call. In strict mode a
// concurrent request may have taken the last slot; that refuses the result.
func (h *CraftHandler) record(w http.ResponseWriter, userID, contentID, key string, snap entitlement.Snapshot) bool {
	err := h.resolver.Record(userID, contentID, key)
	if errors.Is(err, entitlement.ErrQuotaExceeded) {
		h.metrics.Quota(string(snap.PlanID), "blocked")
		used := snap.UsedThisWeek
		if snap.WeeklyLimit != nil {
			used = *snap.WeeklyLimit
		}
		writeJSON(w, http.StatusPaymentRequired, quotaExceededResponse{
			Error: quotaExceededMessage,
			Used:  used,
			Limit: snap.WeeklyLimit,
		})
		return false
	}
	if err != nil {
		h.logger.Error("record usage", "user_id", userID, "error", err)
		h.metrics.Quota(string(snap.PlanID), "record_error")
		return true
	}

	if h.hub != nil {
		snap.UsedThisWeek++
		h.hub.Broadcast(userID, websocket.NewMessage(websocket.TypeUsageChanged, entitlementsResponse{
			Snapshot:  snap,
			Remaining: snap.Remaining(),
		}))
	}
	return true
}

// upstreamError maps a failed model call to a response.
func (h *CraftHandler) upstreamError(w http.ResponseWriter, op string, err error) {
	var decodeErr *craft.DecodeError
	switch {
	case errors.Is(err, anthropic.ErrNotConfigured):
		writeError(w, http.StatusInternalServerError, "AI analysis is not configured")
	case errors.As(err, &decodeErr):
		h.logger.Warn("unparseable model reply", "op", op, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "Failed to parse model response as JSON",
			"raw":   decodeErr.Raw,
		})
	case errors.Is(err, anthropic.ErrNoText):
		writeError(w, http.StatusBadGateway, "No text response from model")
	default:
		h.logger.Error("model call failed", "op", op, "error", err)
		writeError(w, http.StatusBadGateway, "AI service error")
	}
}

type analyseRequest struct {
	ExtractID  string `json:"extractId" validate:"max=200"`
	Text       string `json:"text" validate:"required,max=20000"`
	Constraint string `json:"constraint" validate:"required,max=2000"`
}

// Analyse handles POST /api/analyse
func (h *CraftHandler) Analyse(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[analyseRequest](w, r)
	if !ok {
		return
	}
	userID := auth.UserID(r.Context())
	key := constraint.Key(req.Constraint)

	if req.ExtractID != "" {
		cached, err := h.analysisStore.Get(req.ExtractID, key)
		if err != nil {
			h.logger.Warn("read cached analysis", "extract_id", req.ExtractID, "error", err)
		} else if cached != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(cached.Analysis)
			return
		}
	}

	snap, ok := h.gate(w, userID)
	if !ok {
		return
	}

	start := time.Now()
	analysis, err := h.analyzer.AnalyzeExtract(r.Context(), req.Text, req.Constraint)
	h.metrics.Upstream("anthropic", start, err)
	if err != nil {
		h.upstreamError(w, "analyse", err)
		return
	}

	if req.ExtractID != "" {
		if raw, err := json.Marshal(analysis); err == nil {
			if err := h.analysisStore.Save(req.ExtractID, key, raw); err != nil {
				h.logger.Warn("cache analysis", "extract_id", req.ExtractID, "error", err)
			}
		}
	}

	if !h.record(w, userID, req.ExtractID, key, snap) {
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

type feedbackRequest struct {
	ExtractID    string `json:"extractId" validate:"max=200"`
	UserText     string `json:"userText" validate:"required,max=20000"`
	OriginalText string `json:"originalText" validate:"required,max=20000"`
	Constraint   string `json:"constraint" validate:"required,max=2000"`
}

// Feedback handles POST /api/feedback
func (h *CraftHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[feedbackRequest](w, r)
	if !ok {
		return
	}
	if len([]rune(strings.TrimSpace(req.UserText))) < craft.MinFeedbackChars {
		writeError(w, http.StatusBadRequest, craft.ErrTooShort.Error())
		return
	}
	userID := auth.UserID(r.Context())

	snap, ok := h.gate(w, userID)
	if !ok {
		return
	}

	start := time.Now()
	fb, err := h.analyzer.ReviewWriting(r.Context(), req.OriginalText, req.Constraint, req.UserText)
	h.metrics.Upstream("anthropic", start, err)
	if err != nil {
		h.upstreamError(w, "feedback", err)
		return
	}

	if !h.record(w, userID, req.ExtractID, constraint.Key(req.Constraint), snap) {
		return
	}
	writeJSON(w, http.StatusOK, fb)
}

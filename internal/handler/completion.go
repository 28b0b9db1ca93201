package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/writinggym/internal/auth"
	"github.com/dukerupert/writinggym/internal/constraint"
	"github.com/dukerupert/writinggym/internal/model"
	"github.com/dukerupert/writinggym/internal/store"
	"github.com/dukerupert/writinggym/internal/streak"
	"github.com/dukerupert/writinggym/internal/websocket"
)

// statsWindowDays is how much daily history the streak endpoint returns.
const statsWindowDays = 30

// CompletionHandler saves finished exercises and keeps the practice
// profile (streaks, daily stats) in step with them.
type CompletionHandler struct {
	completionStore *store.CompletionStore
	profileStore    *store.ProfileStore
	hub             *websocket.Hub
	loc             *time.Location
	now             func() time.Time
	logger          *slog.Logger
}

func NewCompletionHandler(cs *store.CompletionStore, ps *store.ProfileStore, hub *websocket.Hub, loc *time.Location, logger *slog.Logger) *CompletionHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &CompletionHandler{
		completionStore: cs,
		profileStore:    ps,
		hub:             hub,
		loc:             loc,
		now:             time.Now,
		logger:          logger,
	}
}

// List handles GET /api/completions?passageId=&constraint=
func (h *CompletionHandler) List(w http.ResponseWriter, r *http.Request) {
	passageID := r.URL.Query().Get("passageId")
	c := r.URL.Query().Get("constraint")
	if passageID == "" || c == "" {
		writeError(w, http.StatusBadRequest, "Missing passageId or constraint")
		return
	}

	list, err := h.completionStore.ListForPassage(auth.UserID(r.Context()), passageID, constraint.Key(c))
	if err != nil {
		h.logger.Error("list completions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch submissions")
		return
	}
	if list == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type completionRequest struct {
	PassageID  string          `json:"passageId" validate:"required,max=200"`
	Constraint string          `json:"constraint" validate:"required,max=2000"`
	UserText   *string         `json:"userText" validate:"omitempty,max=20000"`
	WordCount  *int            `json:"wordCount" validate:"omitempty,min=0"`
	Feedback   json.RawMessage `json:"feedback" validate:"required"`
}

// Create handles POST /api/completions
func (h *CompletionHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[completionRequest](w, r)
	if !ok {
		return
	}
	user, _ := auth.FromContext(r.Context())

	c, err := h.completionStore.Create(model.Completion{
		UserID:        user.ID,
		PassageID:     req.PassageID,
		ConstraintKey: constraint.Key(req.Constraint),
		UserText:      req.UserText,
		WordCount:     req.WordCount,
		Feedback:      req.Feedback,
		CompletedAt:   h.now(),
	})
	if err != nil {
		h.logger.Error("create completion", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save completion")
		return
	}

	// The completion is saved; profile bookkeeping failures are only logged.
	words := 0
	if req.WordCount != nil {
		words = *req.WordCount
	}
	if s, err := h.recordSession(user, c.CompletedAt, words); err != nil {
		h.logger.Error("record session", "user_id", user.ID, "error", err)
	} else {
		h.broadcastStreak(user.ID, s)
	}

	writeJSON(w, http.StatusCreated, c)
}

func (h *CompletionHandler) recordSession(user auth.User, at time.Time, words int) (streak.Streaks, error) {
	if _, err := h.profileStore.Ensure(user.ID, user.Email); err != nil {
		return streak.Streaks{}, err
	}
	s, err := h.streaks(user.ID)
	if err != nil {
		return s, err
	}
	err = h.profileStore.RecordSession(store.Session{
		UserID:        user.ID,
		Date:          streak.DateKey(at, h.loc),
		WordCount:     words,
		CurrentStreak: s.Current,
		LongestStreak: s.Longest,
	})
	return s, err
}

func (h *CompletionHandler) streaks(userID string) (streak.Streaks, error) {
	times, err := h.completionStore.CompletedAt(userID)
	if err != nil {
		return streak.Streaks{}, err
	}
	return streak.Compute(times, h.now().In(h.loc)), nil
}

func (h *CompletionHandler) broadcastStreak(userID string, s streak.Streaks) {
	if h.hub != nil {
		h.hub.Broadcast(userID, websocket.NewMessage(websocket.TypeStreakChanged, s))
	}
}

// Delete handles DELETE /api/completions/{id}
func (h *CompletionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid submission id")
		return
	}
	userID := auth.UserID(r.Context())

	deleted, err := h.completionStore.Delete(id, userID)
	if err != nil {
		h.logger.Error("delete completion", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete submission")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "submission not found")
		return
	}

	if s, err := h.streaks(userID); err != nil {
		h.logger.Error("recompute streak", "user_id", userID, "error", err)
	} else if err := h.profileStore.SetStreak(userID, s.Current, s.Longest); err != nil {
		h.logger.Error("store streak", "user_id", userID, "error", err)
	} else {
		h.broadcastStreak(userID, s)
	}

	w.WriteHeader(http.StatusNoContent)
}

// Summary handles GET /api/completions/summary. It returns completion
// counts keyed by passage id.
func (h *CompletionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.completionStore.Summary(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("completion summary", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch completion summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type streakResponse struct {
	streak.Streaks
	Badge           *streak.Badge     `json:"badge"`
	NextBadge       *streak.Badge     `json:"next_badge"`
	DaysUntilNext   *int              `json:"days_until_next_badge"`
	ShowStreakBadge bool              `json:"show_streak_badge"`
	StreakReminders bool              `json:"streak_reminders"`
	DailyStats      []model.DailyStat `json:"daily_stats"`
}

// Streak handles GET /api/profile/streak
func (h *CompletionHandler) Streak(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.FromContext(r.Context())

	profile, err := h.profileStore.Ensure(user.ID, user.Email)
	if err != nil {
		h.logger.Error("ensure profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	s, err := h.streaks(user.ID)
	if err != nil {
		h.logger.Error("compute streak", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load streak")
		return
	}
	from := streak.DateKey(h.now().AddDate(0, 0, -(statsWindowDays-1)), h.loc)
	stats, err := h.profileStore.ListDailyStats(user.ID, from)
	if err != nil {
		h.logger.Error("list daily stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load daily stats")
		return
	}
	if stats == nil {
		stats = []model.DailyStat{}
	}

	resp := streakResponse{
		Streaks:         s,
		Badge:           streak.CurrentBadge(s.Current),
		NextBadge:       streak.NextBadge(s.Current),
		ShowStreakBadge: profile.ShowStreakBadge,
		StreakReminders: profile.StreakReminders,
		DailyStats:      stats,
	}
	if n, ok := streak.DaysUntilNextBadge(s.Current); ok {
		resp.DaysUntilNext = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

type preferencesRequest struct {
	ShowStreakBadge *bool `json:"showStreakBadge"`
	StreakReminders *bool `json:"streakReminders"`
}

// Preferences handles PUT /api/profile/preferences. Omitted fields keep
// their current value.
func (h *CompletionHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[preferencesRequest](w, r)
	if !ok {
		return
	}
	user, _ := auth.FromContext(r.Context())

	profile, err := h.profileStore.Ensure(user.ID, user.Email)
	if err != nil {
		h.logger.Error("ensure profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	show, remind := profile.ShowStreakBadge, profile.StreakReminders
	if req.ShowStreakBadge != nil {
		show = *req.ShowStreakBadge
	}
	if req.StreakReminders != nil {
		remind = *req.StreakReminders
	}
	if err := h.profileStore.SetPreferences(user.ID, show, remind); err != nil {
		h.logger.Error("set preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"show_streak_badge": show, "streak_reminders": remind})
}

package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/writinggym/internal/auth"
	"github.com/dukerupert/writinggym/internal/constraint"
	"github.com/dukerupert/writinggym/internal/craft"
	"github.com/dukerupert/writinggym/internal/database"
	"github.com/dukerupert/writinggym/internal/dialogue"
	"github.com/dukerupert/writinggym/internal/entitlement"
	"github.com/dukerupert/writinggym/internal/metrics"
	"github.com/dukerupert/writinggym/internal/model"
	"github.com/dukerupert/writinggym/internal/speech"
	"github.com/dukerupert/writinggym/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testUser = auth.User{ID: "7f1c2a9e-3b4d-4e5f-8a6b-1c2d3e4f5a6b", Email: "writer@example.com"}

// do runs h with body as JSON, authenticated as u when u is not nil.
func do(t *testing.T, h http.HandlerFunc, method, target string, body any, u *auth.User) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if u != nil {
		req = req.WithContext(auth.WithUser(req.Context(), *u))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

type fakeModel struct {
	reply string
	err   error
	calls int
}

func (f *fakeModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	f.calls++
	return f.reply, f.err
}

const analysisReply = "```json\n" + `{
  "segments": [{"text": "It was late.", "annotation": {"category": "pacing", "note": "Flat."}}],
  "summary": ["One.", "Two.", "Three."],
  "constraint": "Write about closing time."
}` + "\n```"

const feedbackReply = `{"segments": [{"text": "Mine."}], "summary": ["Good."], "feedback": "Tighten the ending."}`

type craftFixture struct {
	db       *sql.DB
	usage    *store.UsageStore
	analyses *store.AnalysisStore
	model    *fakeModel
	h        *CraftHandler
}

func newCraftFixture(t *testing.T, opts ...entitlement.Option) *craftFixture {
	db := setupTestDB(t)
	f := &craftFixture{
		db:       db,
		usage:    store.NewUsageStore(db),
		analyses: store.NewAnalysisStore(db),
		model:    &fakeModel{reply: analysisReply},
	}
	resolver := entitlement.NewResolver(store.NewPlanStore(db), store.NewSubscriptionStore(db), f.usage, opts...)
	f.h = NewCraftHandler(resolver, craft.NewAnalyzer(f.model), f.analyses, nil, metrics.New(), testLogger())
	return f
}

func (f *craftFixture) used(t *testing.T) int {
	t.Helper()
	n, err := f.usage.CountSince(testUser.ID, entitlement.WeekStart(time.Now().UTC()))
	if err != nil {
		t.Fatalf("count usage: %v", err)
	}
	return n
}

func (f *craftFixture) spend(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ev := model.UsageEvent{ID: uuid.NewString(), UserID: testUser.ID, ContentID: "p", ConstraintKey: "k", RequestedAt: time.Now()}
		if err := f.usage.Record(ev); err != nil {
			t.Fatalf("record usage: %v", err)
		}
	}
}

var analyseBody = map[string]string{"extractId": "hemingway-1", "text": "It was late.", "constraint": "Write short."}

func TestAnalyseRecordsUsageAndCaches(t *testing.T) {
	f := newCraftFixture(t)

	rec := do(t, f.h.Analyse, "POST", "/api/analyse", analyseBody, &testUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decodeBody[craft.Analysis](t, rec)
	if len(got.Segments) != 1 || got.Constraint != "Write about closing time." {
		t.Errorf("analysis = %+v", got)
	}
	if n := f.used(t); n != 1 {
		t.Errorf("used = %d, want 1", n)
	}
	cached, err := f.analyses.Get("hemingway-1", constraint.Key("Write short."))
	if err != nil || cached == nil {
		t.Fatalf("cached = %v, %v", cached, err)
	}
}

func TestAnalyseCachedDoesNotConsumeQuota(t *testing.T) {
	f := newCraftFixture(t)
	f.spend(t, 5)
	if err := f.analyses.Save("hemingway-1", constraint.Key("Write short."), []byte(`{"segments":[],"summary":["cached"]}`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec := do(t, f.h.Analyse, "POST", "/api/analyse", analyseBody, &testUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if rec.Body.String() != `{"segments":[],"summary":["cached"]}` {
		t.Errorf("body = %s", rec.Body)
	}
	if f.model.calls != 0 {
		t.Errorf("model calls = %d, want 0", f.model.calls)
	}
	if n := f.used(t); n != 5 {
		t.Errorf("used = %d, want 5", n)
	}
}

func TestAnalyseQuotaExhausted(t *testing.T) {
	f := newCraftFixture(t)
	f.spend(t, 5)

	rec := do(t, f.h.Analyse, "POST", "/api/analyse", analyseBody, &testUser)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	body := decodeBody[quotaExceededResponse](t, rec)
	if body.Used != 5 || body.Limit == nil || *body.Limit != 5 || body.Error == "" {
		t.Errorf("body = %+v", body)
	}
	if f.model.calls != 0 {
		t.Errorf("model calls = %d, want 0", f.model.calls)
	}
}

func TestAnalyseFailedCallDoesNotConsumeQuota(t *testing.T) {
	f := newCraftFixture(t)
	f.model.reply = "I cannot help with that."

	rec := do(t, f.h.Analyse, "POST", "/api/analyse", analyseBody, &testUser)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["raw"] != "I cannot help with that." {
		t.Errorf("raw = %q", body["raw"])
	}
	if n := f.used(t); n != 0 {
		t.Errorf("used = %d, want 0", n)
	}
}

func TestAnalyseStoreFailureDenies(t *testing.T) {
	f := newCraftFixture(t)
	f.db.Close()

	rec := do(t, f.h.Analyse, "POST", "/api/analyse", analyseBody, &testUser)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if f.model.calls != 0 {
		t.Errorf("model calls = %d, want 0", f.model.calls)
	}
}

// failingUsage counts from the database but refuses to store new events.
type failingUsage struct {
	*store.UsageStore
}

var errUsageWrite = errors.New("disk I/O error")

func (failingUsage) Record(model.UsageEvent) error { return errUsageWrite }

func (failingUsage) RecordIfUnder(model.UsageEvent, time.Time, int) (int, bool, error) {
	return 0, false, errUsageWrite
}

func TestAnalyseRecordFailureCounted(t *testing.T) {
	db := setupTestDB(t)
	m := metrics.New()
	usage := failingUsage{store.NewUsageStore(db)}
	resolver := entitlement.NewResolver(store.NewPlanStore(db), store.NewSubscriptionStore(db), usage)
	h := NewCraftHandler(resolver, craft.NewAnalyzer(&fakeModel{reply: analysisReply}), store.NewAnalysisStore(db), nil, m, testLogger())

	rec := do(t, h.Analyse, "POST", "/api/analyse", analyseBody, &testUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest("GET", "/metrics", nil))
	out := scrape.Body.String()
	for _, want := range []string{
		`writinggym_quota_decisions_total{outcome="allowed",plan="free"} 1`,
		`writinggym_quota_decisions_total{outcome="record_error",plan="free"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestAnalyseValidation(t *testing.T) {
	f := newCraftFixture(t)

	rec := do(t, f.h.Analyse, "POST", "/api/analyse", map[string]string{"extractId": "x"}, &testUser)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeBody[map[string]string](t, rec)["error"]; got != "Missing required fields: text, constraint" {
		t.Errorf("error = %q", got)
	}

	rec = do(t, f.h.Analyse, "POST", "/api/analyse", "{not json", &testUser)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", rec.Code)
	}
}

var feedbackBody = map[string]string{
	"extractId":    "hemingway-1",
	"userText":     "The cafe emptied slowly, chair by chair, until only the waiter remained awake.",
	"originalText": "It was late.",
	"constraint":   "Write short.",
}

func TestFeedbackConsumesQuota(t *testing.T) {
	f := newCraftFixture(t)
	f.model.reply = feedbackReply

	rec := do(t, f.h.Feedback, "POST", "/api/feedback", feedbackBody, &testUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if got := decodeBody[craft.Feedback](t, rec); got.Feedback != "Tighten the ending." {
		t.Errorf("feedback = %+v", got)
	}
	if n := f.used(t); n != 1 {
		t.Errorf("used = %d, want 1", n)
	}
}

func TestFeedbackTooShort(t *testing.T) {
	f := newCraftFixture(t)
	body := map[string]string{"userText": "  too short  ", "originalText": "x", "constraint": "y"}

	rec := do(t, f.h.Feedback, "POST", "/api/feedback", body, &testUser)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if f.model.calls != 0 || f.used(t) != 0 {
		t.Errorf("short text reached the model or quota")
	}
}

func TestFeedbackStrictQuotaTakesLastSlot(t *testing.T) {
	f := newCraftFixture(t, entitlement.WithStrictRecording(true))
	f.model.reply = feedbackReply
	f.spend(t, 4)

	rec := do(t, f.h.Feedback, "POST", "/api/feedback", feedbackBody, &testUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	rec = do(t, f.h.Feedback, "POST", "/api/feedback", feedbackBody, &testUser)
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("second status = %d, want 402", rec.Code)
	}
	if n := f.used(t); n != 5 {
		t.Errorf("used = %d, want 5", n)
	}
}

func newEntitlementHandler(t *testing.T) (*EntitlementHandler, *store.SubscriptionStore) {
	db := setupTestDB(t)
	subs := store.NewSubscriptionStore(db)
	resolver := entitlement.NewResolver(store.NewPlanStore(db), subs, store.NewUsageStore(db))
	return NewEntitlementHandler(resolver, store.NewPlanStore(db), store.NewCategoryStore(db), metrics.New(), testLogger()), subs
}

func TestEntitlementsShape(t *testing.T) {
	h, _ := newEntitlementHandler(t)

	rec := do(t, h.Entitlements, "GET", "/api/entitlements", nil, &testUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeBody[map[string]any](t, rec)
	want := map[string]any{
		"plan_id":                 "free",
		"plan_label":              "Free",
		"weekly_analysis_limit":   float64(5),
		"analyses_used_this_week": float64(0),
		"allowed":                 true,
		"extract_access":          "restricted",
		"has_playground":          false,
		"has_custom_voice":        false,
		"remaining_this_week":     float64(5),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestPlansPublicList(t *testing.T) {
	h, _ := newEntitlementHandler(t)
	rec := do(t, h.Plans, "GET", "/api/plans", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if plans := decodeBody[[]model.Plan](t, rec); len(plans) != 3 {
		t.Errorf("plans = %d, want 3", len(plans))
	}
}

func TestCategoryAccess(t *testing.T) {
	h, subs := newEntitlementHandler(t)

	access := func(id string, u *auth.User) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/categories/"+id+"/access", nil)
		req.SetPathValue("id", id)
		req = req.WithContext(auth.WithUser(req.Context(), *u))
		rec := httptest.NewRecorder()
		h.CategoryAccess(rec, req)
		return rec
	}

	tests := []struct {
		id      string
		allowed bool
	}{
		{"structure", true},
		{"imagery", false},
		{"dialogue", false},
	}
	for _, tt := range tests {
		rec := access(tt.id, &testUser)
		if got := decodeBody[categoryAccessResponse](t, rec); got.Allowed != tt.allowed {
			t.Errorf("free %s: allowed = %v, want %v", tt.id, got.Allowed, tt.allowed)
		}
	}

	if _, err := subs.Upsert(model.Subscription{UserID: testUser.ID, PlanID: model.PlanPremium, Status: model.StatusActive}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got := decodeBody[categoryAccessResponse](t, access("dialogue", &testUser)); !got.Allowed {
		t.Error("premium should open dialogue")
	}

	if rec := access("nope", &testUser); rec.Code != http.StatusNotFound {
		t.Errorf("unknown category status = %d, want 404", rec.Code)
	}
}

type fakeSynth struct {
	narrated int
	dialogue [][]dialogue.Turn
}

func (f *fakeSynth) TextToSpeech(ctx context.Context, voiceID, text string) ([]byte, error) {
	f.narrated++
	return []byte("ID3narration"), nil
}

func (f *fakeSynth) Dialogue(ctx context.Context, turns []dialogue.Turn) ([]byte, error) {
	f.dialogue = append(f.dialogue, turns)
	return []byte("ID3dialogue"), nil
}

func TestSpeech(t *testing.T) {
	synth := &fakeSynth{}
	h := NewSpeechHandler(speech.NewService(synth, nil, testLogger()), metrics.New(), testLogger())

	rec := do(t, h.Speech, "POST", "/api/speech", map[string]string{"text": "ALICE: Hi.\nBOB: Hello."}, &testUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("content type = %q", ct)
	}
	if rec.Header().Get("X-Speech-Mode") != "dialogue" || len(synth.dialogue) != 1 {
		t.Errorf("mode = %q, dialogue calls = %d", rec.Header().Get("X-Speech-Mode"), len(synth.dialogue))
	}

	rec = do(t, h.Speech, "POST", "/api/speech", map[string]string{"text": "Just prose."}, &testUser)
	if rec.Body.String() != "ID3narration" || synth.narrated != 1 {
		t.Errorf("narration body = %q, calls = %d", rec.Body, synth.narrated)
	}
}

func TestSpeechRejectsBadText(t *testing.T) {
	h := NewSpeechHandler(speech.NewService(&fakeSynth{}, nil, testLogger()), metrics.New(), testLogger())

	long := bytes.Repeat([]byte("a"), speech.MaxTextChars+1)
	for _, text := range []string{"", "   ", string(long)} {
		rec := do(t, h.Speech, "POST", "/api/speech", map[string]string{"text": text}, &testUser)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("len %d: status = %d, want 400", len(text), rec.Code)
		}
	}
}

func TestSpeechTurns(t *testing.T) {
	h := NewSpeechHandler(speech.NewService(&fakeSynth{}, nil, testLogger()), metrics.New(), testLogger())

	rec := do(t, h.Turns, "POST", "/api/speech/turns", map[string]string{"text": "ALICE: Hi.\nBOB: Hello."}, &testUser)
	got := decodeBody[turnsResponse](t, rec)
	if !got.Dialogue || len(got.Turns) != 2 {
		t.Errorf("turns = %+v", got)
	}

	rec = do(t, h.Turns, "POST", "/api/speech/turns", map[string]string{"text": "Just prose."}, &testUser)
	got = decodeBody[turnsResponse](t, rec)
	if got.Dialogue || len(got.Turns) != 1 || got.Turns[0].VoiceID != dialogue.VoiceNarrator {
		t.Errorf("narration turns = %+v", got)
	}
}

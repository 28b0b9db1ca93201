package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/writinggym/internal/auth"
	"github.com/dukerupert/writinggym/internal/billing"
	"github.com/dukerupert/writinggym/internal/database"
	"github.com/dukerupert/writinggym/internal/dialogue"
)

type stubModel struct{}

func (stubModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	return `{"segments":[{"text":"x"}],"summary":["a"],"constraint":"c"}`, nil
}

type stubSpeech struct{}

func (stubSpeech) TextToSpeech(ctx context.Context, voiceID, text string) ([]byte, error) {
	return []byte("mp3"), nil
}

func (stubSpeech) Dialogue(ctx context.Context, turns []dialogue.Turn) ([]byte, error) {
	return []byte("mp3"), nil
}

const testSecret = "test-jwt-secret"

func newTestServer(t *testing.T) (http.Handler, string) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	verifier := auth.NewVerifier(testSecret, "")
	srv := New(Options{
		DB:       db,
		BaseURL:  "https://gym.test",
		Location: time.UTC,
		Verifier: verifier,
		Model:    stubModel{},
		Speech:   stubSpeech{},
		Payments: billing.NewStripeClient(billing.Config{}, nil),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	token, err := verifier.Issue(auth.User{ID: "7f1c2a9e-3b4d-4e5f-8a6b-1c2d3e4f5a6b", Email: "writer@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return srv.Router(), token
}

func serve(h http.Handler, method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPublicRoutes(t *testing.T) {
	h, _ := newTestServer(t)

	for _, path := range []string{"/health", "/api/plans", "/api/categories", "/metrics"} {
		if rec := serve(h, "GET", path, "", ""); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
	if rec := serve(h, "GET", "/api/push/vapid-key", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("vapid key without push = %d, want 404", rec.Code)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	h, _ := newTestServer(t)

	for _, path := range []string{"/api/entitlements", "/api/profile/streak", "/api/completions/summary"} {
		if rec := serve(h, "GET", path, "", ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want 401", path, rec.Code)
		}
		if rec := serve(h, "GET", path, "", "garbage"); rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s with bad token = %d, want 401", path, rec.Code)
		}
	}
}

func TestQuotaThroughRouter(t *testing.T) {
	h, token := newTestServer(t)

	body := `{"text":"It was late.","constraint":"Write short."}`
	for i := 0; i < 5; i++ {
		if rec := serve(h, "POST", "/api/analyse", body, token); rec.Code != http.StatusOK {
			t.Fatalf("analyse %d = %d, body %s", i, rec.Code, rec.Body)
		}
	}
	rec := serve(h, "POST", "/api/analyse", body, token)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("sixth analyse = %d, want 402", rec.Code)
	}

	rec = serve(h, "GET", "/api/entitlements", "", token)
	var snap map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap["analyses_used_this_week"] != float64(5) || snap["allowed"] != false {
		t.Errorf("entitlements = %v", snap)
	}
}

func TestCheckoutWithoutStripe(t *testing.T) {
	h, _ := newTestServer(t)
	rec := serve(h, "POST", "/api/checkout", `{"priceId":"price_x"}`, "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("checkout = %d, want 500", rec.Code)
	}
}

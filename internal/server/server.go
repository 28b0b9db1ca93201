package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dukerupert/writinggym/internal/billing"
	"github.com/dukerupert/writinggym/internal/craft"
	"github.com/dukerupert/writinggym/internal/entitlement"
	"github.com/dukerupert/writinggym/internal/handler"
	"github.com/dukerupert/writinggym/internal/metrics"
	"github.com/dukerupert/writinggym/internal/middleware"
	"github.com/dukerupert/writinggym/internal/newsletter"
	"github.com/dukerupert/writinggym/internal/push"
	"github.com/dukerupert/writinggym/internal/speech"
	"github.com/dukerupert/writinggym/internal/store"
	ws "github.com/dukerupert/writinggym/internal/websocket"
)

// Upstream rate limits. The weekly plan quota is enforced by the handlers.
const (
	aiRequestsPerMinute       = 20
	checkoutRequestsPerMinute = 10
)

// Options carries everything New needs from main. Upstream clients are
// interfaces so tests can swap in fakes.
type Options struct {
	DB          *sql.DB
	BaseURL     string
	StrictQuota bool
	Location    *time.Location

	Verifier   middleware.TokenVerifier
	Model      craft.Completer
	Speech     speech.Synthesizer
	AudioCache speech.Cache
	Payments   billing.Gateway
	Newsletter billing.Tagger
	Push       *push.Service
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	verifier      middleware.TokenVerifier
	healthH       *handler.HealthHandler
	entitlementH  *handler.EntitlementHandler
	craftH        *handler.CraftHandler
	speechH       *handler.SpeechHandler
	completionH   *handler.CompletionHandler
	billingH      *handler.BillingHandler
	pushH         *handler.PushHandler
	rateLimiter   *middleware.RateLimiter
	pushService   *push.Service
	pushScheduler *push.Scheduler
	metrics       *metrics.Metrics
	origins       []string
	logger        *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	hub := ws.NewHub(logger.With("component", "websocket"))

	planStore := store.NewPlanStore(opts.DB)
	subscriptionStore := store.NewSubscriptionStore(opts.DB)
	usageStore := store.NewUsageStore(opts.DB)
	analysisStore := store.NewAnalysisStore(opts.DB)
	completionStore := store.NewCompletionStore(opts.DB)
	profileStore := store.NewProfileStore(opts.DB)
	categoryStore := store.NewCategoryStore(opts.DB)
	pushStore := store.NewPushStore(opts.DB)

	resolver := entitlement.NewResolver(planStore, subscriptionStore, usageStore,
		entitlement.WithLocation(loc),
		entitlement.WithStrictRecording(opts.StrictQuota),
	)

	billingLogger := logger.With("component", "billing")
	webhookOpts := []billing.WebhookOption{billing.WithNotifier(hub)}
	if opts.Newsletter != nil {
		webhookOpts = append(webhookOpts, billing.WithTagger(opts.Newsletter, newsletter.TagForProduct))
	}
	webhooks := billing.NewWebhooks(opts.Payments, subscriptionStore, planStore, billingLogger, webhookOpts...)
	checkout := billing.NewService(opts.Payments, subscriptionStore, opts.BaseURL)

	s := &Server{
		db:           opts.DB,
		hub:          hub,
		verifier:     opts.Verifier,
		healthH:      handler.NewHealthHandler(opts.DB),
		entitlementH: handler.NewEntitlementHandler(resolver, planStore, categoryStore, m, logger.With("component", "entitlement")),
		craftH:       handler.NewCraftHandler(resolver, craft.NewAnalyzer(opts.Model), analysisStore, hub, m, logger.With("component", "craft")),
		speechH:      handler.NewSpeechHandler(speech.NewService(opts.Speech, opts.AudioCache, logger), m, logger.With("component", "speech_handler")),
		completionH:  handler.NewCompletionHandler(completionStore, profileStore, hub, loc, logger.With("component", "completion")),
		billingH:     handler.NewBillingHandler(checkout, webhooks, m, billingLogger),
		rateLimiter:  middleware.NewRateLimiter(),
		metrics:      m,
		origins:      originPatterns(opts.BaseURL),
		logger:       logger,
	}

	if opts.Push != nil {
		pushLogger := logger.With("component", "push")
		s.pushService = opts.Push
		s.pushScheduler = push.NewScheduler(opts.Push, reminderStore{pushStore, profileStore}, loc, pushLogger)
	}
	s.pushH = handler.NewPushHandler(pushStore, s.pushService, logger.With("component", "push_handler"))
	return s
}

// reminderStore joins the push and profile stores for the scheduler.
type reminderStore struct {
	*store.PushStore
	*store.ProfileStore
}

// originPatterns allows WebSocket upgrades from the site's own host.
func originPatterns(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// PushScheduler returns the streak reminder scheduler, or nil when push is
// not configured.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthH.Health)
	outerMux.Handle("GET /metrics", s.metrics.Handler())
	outerMux.HandleFunc("GET /api/plans", s.entitlementH.Plans)
	outerMux.HandleFunc("GET /api/categories", s.entitlementH.Categories)
	outerMux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	outerMux.HandleFunc("POST /webhooks/stripe", s.billingH.Webhook)

	// Checkout works signed in or out
	optional := middleware.OptionalAuth(s.verifier)
	outerMux.Handle("POST /api/checkout", optional(s.limitByIP(s.billingH.Checkout, checkoutRequestsPerMinute)))

	// Protected routes, wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.verifier)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"), s.metrics)(outerMux)
}

func (s *Server) limitByIP(h http.HandlerFunc, perMinute int) http.Handler {
	return middleware.RateLimit(s.rateLimiter, func(r *http.Request) string {
		return "ip:" + middleware.RealIP(r)
	}, perMinute, time.Minute)(h)
}

func (s *Server) limitByUser(h http.HandlerFunc, perMinute int) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.UserOrIP, perMinute, time.Minute)
	return rl(h).ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Entitlements
	mux.HandleFunc("GET /api/entitlements", s.entitlementH.Entitlements)
	mux.HandleFunc("GET /api/categories/{id}/access", s.entitlementH.CategoryAccess)

	// AI analysis and feedback, quota-gated
	mux.HandleFunc("POST /api/analyse", s.limitByUser(s.craftH.Analyse, aiRequestsPerMinute))
	mux.HandleFunc("POST /api/feedback", s.limitByUser(s.craftH.Feedback, aiRequestsPerMinute))

	// Speech
	mux.HandleFunc("POST /api/speech", s.limitByUser(s.speechH.Speech, aiRequestsPerMinute))
	mux.HandleFunc("POST /api/speech/turns", s.speechH.Turns)

	// Completions and practice profile
	mux.HandleFunc("GET /api/completions", s.completionH.List)
	mux.HandleFunc("POST /api/completions", s.completionH.Create)
	mux.HandleFunc("GET /api/completions/summary", s.completionH.Summary)
	mux.HandleFunc("DELETE /api/completions/{id}", s.completionH.Delete)
	mux.HandleFunc("GET /api/profile/streak", s.completionH.Streak)
	mux.HandleFunc("PUT /api/profile/preferences", s.completionH.Preferences)

	// Billing
	mux.HandleFunc("POST /api/billing-portal", s.billingH.Portal)

	// Push notification API routes
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscribe", s.pushH.Unsubscribe)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.origins, s.logger.With("component", "websocket")))
}

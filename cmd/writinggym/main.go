package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/writinggym/internal/anthropic"
	"github.com/dukerupert/writinggym/internal/auth"
	"github.com/dukerupert/writinggym/internal/billing"
	"github.com/dukerupert/writinggym/internal/config"
	"github.com/dukerupert/writinggym/internal/database"
	"github.com/dukerupert/writinggym/internal/logging"
	"github.com/dukerupert/writinggym/internal/metrics"
	"github.com/dukerupert/writinggym/internal/newsletter"
	"github.com/dukerupert/writinggym/internal/push"
	"github.com/dukerupert/writinggym/internal/server"
	"github.com/dukerupert/writinggym/internal/speech"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	loc := time.UTC
	if cfg.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			slog.Error("invalid timezone", "timezone", cfg.Timezone, "error", err)
			os.Exit(1)
		}
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var modelOpts []anthropic.Option
	if cfg.AnthropicModel != "" {
		modelOpts = append(modelOpts, anthropic.WithModel(cfg.AnthropicModel))
	}
	model := anthropic.NewClient(cfg.AnthropicAPIKey, modelOpts...)
	if !model.Configured() {
		slog.Warn("ANTHROPIC_API_KEY not set, analysis endpoints will fail")
	}

	tts := speech.NewClient(cfg.ElevenLabsKey)
	if !tts.Configured() {
		slog.Warn("ELEVENLABS_API_KEY not set, speech endpoint will fail")
	}
	var audioCache speech.Cache
	if c := speech.NewS3Cache(speech.S3Config(cfg.AudioS3)); c != nil {
		audioCache = c
		slog.Info("audio cache enabled", "bucket", cfg.AudioS3.Bucket)
	}

	payments := billing.NewStripeClient(billing.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
	}, nil)
	if !payments.Configured() {
		slog.Warn("STRIPE_SECRET_KEY not set, checkout is disabled")
	}

	opts := server.Options{
		DB:          db,
		BaseURL:     cfg.BaseURL,
		StrictQuota: cfg.StrictQuota,
		Location:    loc,
		Verifier:    auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Model:       model,
		Speech:      tts,
		AudioCache:  audioCache,
		Payments:    payments,
		Metrics:     metrics.New(),
		Logger:      logger,
	}
	if cfg.ConvertKitSecret != "" {
		opts.Newsletter = newsletter.NewClient(cfg.ConvertKitSecret)
	}
	pushCfg := push.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subject:         cfg.VAPIDSubject,
	}
	if pushCfg.Enabled() {
		opts.Push = push.NewService(pushCfg)
	}

	srv := server.New(opts)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-bgCtx.Done():
				return
			}
		}
	}()

	if sched := srv.PushScheduler(); sched != nil {
		sched.Start(bgCtx)
		defer sched.Stop()
		slog.Info("streak reminders enabled")
	}

	go func() {
		slog.Info("writing gym running", "addr", ":"+cfg.Port, "base_url", cfg.BaseURL, "strict_quota", cfg.StrictQuota)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	bgCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
